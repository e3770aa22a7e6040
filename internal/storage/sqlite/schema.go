package sqlite

import "fmt"

// Schema for the scheduler core. Timestamps are stored as Unix
// milliseconds; structured columns (params, alerts) as JSON text.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS scheduler_job_config (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_name TEXT NOT NULL,
		job_group TEXT NOT NULL DEFAULT 'DEFAULT',
		environment TEXT NOT NULL,
		job_type TEXT NOT NULL,
		job_class TEXT NOT NULL,
		cron_expression TEXT,
		job_params TEXT NOT NULL DEFAULT '{}',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'STOPPED',
		retry_count INTEGER NOT NULL DEFAULT 3,
		retry_interval INTEGER NOT NULL DEFAULT 60,
		timeout INTEGER NOT NULL DEFAULT 0,
		alert_enabled INTEGER NOT NULL DEFAULT 0,
		alert_types TEXT NOT NULL DEFAULT '[]',
		alert_receivers TEXT NOT NULL DEFAULT '{}',
		gray_release_enabled INTEGER NOT NULL DEFAULT 0,
		gray_release_percent INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		creator TEXT NOT NULL DEFAULT '',
		modifier TEXT NOT NULL DEFAULT '',
		create_time INTEGER NOT NULL,
		update_time INTEGER NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_job_config_natural_key
		ON scheduler_job_config (job_name, job_group, environment)`,

	`CREATE TABLE IF NOT EXISTS scheduler_job_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id INTEGER NOT NULL,
		job_name TEXT NOT NULL,
		job_group TEXT NOT NULL,
		execution_id TEXT NOT NULL UNIQUE,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		duration INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'RUNNING',
		retry_count INTEGER NOT NULL DEFAULT 0,
		server_ip TEXT NOT NULL DEFAULT 'unknown',
		server_name TEXT NOT NULL DEFAULT 'unknown',
		execution_log TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_job_log_job_id
		ON scheduler_job_log (job_id, start_time DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_job_log_status
		ON scheduler_job_log (status)`,
}

// migrate applies the schema statements in order
func (s *SQLiteDB) migrate() error {
	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	s.logger.Debug().Int("statements", len(migrations)).Msg("Schema migrations applied")
	return nil
}
