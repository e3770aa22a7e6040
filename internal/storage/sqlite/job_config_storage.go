package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/models"
)

// JobConfigStorage handles job configuration persistence in SQLite
type JobConfigStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobConfigStorage creates a new job config storage
func NewJobConfigStorage(db *SQLiteDB, logger arbor.ILogger) *JobConfigStorage {
	return &JobConfigStorage{
		db:     db,
		logger: logger,
	}
}

const jobConfigColumns = `id, job_name, job_group, environment, job_type, job_class,
	cron_expression, job_params, description, status, retry_count, retry_interval,
	timeout, alert_enabled, alert_types, alert_receivers, gray_release_enabled,
	gray_release_percent, version, creator, modifier, create_time, update_time`

// Save inserts a new row, assigning ID, Version=1, and audit times
func (s *JobConfigStorage) Save(ctx context.Context, cfg *models.JobConfig) error {
	params, err := cfg.MarshalParams()
	if err != nil {
		return common.StorageError(err, "failed to encode job params")
	}
	alertTypes, alertReceivers, err := cfg.MarshalAlerts()
	if err != nil {
		return common.StorageError(err, "failed to encode alert metadata")
	}

	now := time.Now()
	cfg.CreateTime = now
	cfg.UpdateTime = now
	cfg.Version = 1

	query := `
		INSERT INTO scheduler_job_config (
			job_name, job_group, environment, job_type, job_class, cron_expression,
			job_params, description, status, retry_count, retry_interval, timeout,
			alert_enabled, alert_types, alert_receivers, gray_release_enabled,
			gray_release_percent, version, creator, modifier, create_time, update_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.db.ExecContext(ctx, query,
		cfg.JobName, cfg.JobGroup, cfg.Environment, string(cfg.JobType), cfg.JobClass,
		nullableString(cfg.CronExpression), params, cfg.Description, string(cfg.Status),
		cfg.RetryCount, cfg.RetryInterval, cfg.Timeout,
		boolToInt(cfg.AlertEnabled), alertTypes, alertReceivers,
		boolToInt(cfg.GrayReleaseEnabled), cfg.GrayReleasePercent,
		cfg.Version, cfg.Creator, cfg.Modifier,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return common.StorageError(err, "failed to insert job config")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return common.StorageError(err, "failed to read inserted job config id")
	}
	cfg.ID = id

	s.logger.Debug().
		Int64("job_id", cfg.ID).
		Str("job_name", cfg.JobName).
		Str("environment", cfg.Environment).
		Msg("Job config saved")

	return nil
}

// Update writes the row by id only. The WHERE clause matches the primary
// key alone: columns that drifted between read and write never cause the
// update to fail. Version is incremented as a monotone audit counter.
func (s *JobConfigStorage) Update(ctx context.Context, cfg *models.JobConfig) error {
	params, err := cfg.MarshalParams()
	if err != nil {
		return common.StorageError(err, "failed to encode job params")
	}
	alertTypes, alertReceivers, err := cfg.MarshalAlerts()
	if err != nil {
		return common.StorageError(err, "failed to encode alert metadata")
	}

	now := time.Now()

	query := `
		UPDATE scheduler_job_config SET
			job_name = ?, job_group = ?, environment = ?, job_type = ?, job_class = ?,
			cron_expression = ?, job_params = ?, description = ?, status = ?,
			retry_count = ?, retry_interval = ?, timeout = ?,
			alert_enabled = ?, alert_types = ?, alert_receivers = ?,
			gray_release_enabled = ?, gray_release_percent = ?,
			version = version + 1, modifier = ?, update_time = ?
		WHERE id = ?
	`

	result, err := s.db.db.ExecContext(ctx, query,
		cfg.JobName, cfg.JobGroup, cfg.Environment, string(cfg.JobType), cfg.JobClass,
		nullableString(cfg.CronExpression), params, cfg.Description, string(cfg.Status),
		cfg.RetryCount, cfg.RetryInterval, cfg.Timeout,
		boolToInt(cfg.AlertEnabled), alertTypes, alertReceivers,
		boolToInt(cfg.GrayReleaseEnabled), cfg.GrayReleasePercent,
		cfg.Modifier, now.UnixMilli(),
		cfg.ID,
	)
	if err != nil {
		return common.StorageError(err, "failed to update job config")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return common.StorageError(err, "failed to read rows affected")
	}
	if affected == 0 {
		return common.StorageError(sql.ErrNoRows, "job config not found for update")
	}

	cfg.Version++
	cfg.UpdateTime = now

	s.logger.Debug().
		Int64("job_id", cfg.ID).
		Int64("version", cfg.Version).
		Msg("Job config updated")

	return nil
}

// GetByID returns nil when no row exists
func (s *JobConfigStorage) GetByID(ctx context.Context, id int64) (*models.JobConfig, error) {
	query := `SELECT ` + jobConfigColumns + ` FROM scheduler_job_config WHERE id = ?`
	return s.scanOne(s.db.db.QueryRowContext(ctx, query, id))
}

// GetByNaturalKey returns nil when no row exists
func (s *JobConfigStorage) GetByNaturalKey(ctx context.Context, jobName, jobGroup, environment string) (*models.JobConfig, error) {
	query := `SELECT ` + jobConfigColumns + ` FROM scheduler_job_config
		WHERE job_name = ? AND job_group = ? AND environment = ?`
	return s.scanOne(s.db.db.QueryRowContext(ctx, query, jobName, jobGroup, environment))
}

// ListAll returns rows, optionally filtered by environment
func (s *JobConfigStorage) ListAll(ctx context.Context, environment string) ([]*models.JobConfig, error) {
	query := `SELECT ` + jobConfigColumns + ` FROM scheduler_job_config`
	args := []any{}
	if environment != "" {
		query += ` WHERE environment = ?`
		args = append(args, environment)
	}
	query += ` ORDER BY job_name, job_group`

	return s.scanMany(ctx, query, args...)
}

// ListByStatus returns rows in a status, optionally filtered by environment
func (s *JobConfigStorage) ListByStatus(ctx context.Context, status models.JobStatus, environment string) ([]*models.JobConfig, error) {
	query := `SELECT ` + jobConfigColumns + ` FROM scheduler_job_config WHERE status = ?`
	args := []any{string(status)}
	if environment != "" {
		query += ` AND environment = ?`
		args = append(args, environment)
	}
	query += ` ORDER BY job_name, job_group`

	return s.scanMany(ctx, query, args...)
}

// Delete removes the row by id
func (s *JobConfigStorage) Delete(ctx context.Context, id int64) error {
	result, err := s.db.db.ExecContext(ctx, `DELETE FROM scheduler_job_config WHERE id = ?`, id)
	if err != nil {
		return common.StorageError(err, "failed to delete job config")
	}

	affected, _ := result.RowsAffected()
	s.logger.Debug().
		Int64("job_id", id).
		Int64("rows_affected", affected).
		Msg("Job config deleted")

	return nil
}

func (s *JobConfigStorage) scanMany(ctx context.Context, query string, args ...any) ([]*models.JobConfig, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.StorageError(err, "failed to query job configs")
	}
	defer rows.Close()

	var configs []*models.JobConfig
	for rows.Next() {
		cfg, err := scanJobConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, common.StorageError(err, "error iterating job configs")
	}

	return configs, nil
}

func (s *JobConfigStorage) scanOne(row *sql.Row) (*models.JobConfig, error) {
	cfg, err := scanJobConfig(row)
	if err != nil {
		if cfg == nil && isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobConfig(row rowScanner) (*models.JobConfig, error) {
	var (
		cfg            models.JobConfig
		jobType        string
		status         string
		cron           sql.NullString
		params         string
		alertEnabled   int
		alertTypes     string
		alertReceivers string
		grayEnabled    int
		createTime     int64
		updateTime     int64
	)

	err := row.Scan(
		&cfg.ID, &cfg.JobName, &cfg.JobGroup, &cfg.Environment, &jobType, &cfg.JobClass,
		&cron, &params, &cfg.Description, &status, &cfg.RetryCount, &cfg.RetryInterval,
		&cfg.Timeout, &alertEnabled, &alertTypes, &alertReceivers, &grayEnabled,
		&cfg.GrayReleasePercent, &cfg.Version, &cfg.Creator, &cfg.Modifier,
		&createTime, &updateTime,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, common.StorageError(err, "failed to scan job config")
	}

	cfg.JobType = models.JobType(jobType)
	cfg.Status = models.JobStatus(status)
	if cron.Valid {
		cfg.CronExpression = cron.String
	}
	cfg.AlertEnabled = alertEnabled != 0
	cfg.GrayReleaseEnabled = grayEnabled != 0
	cfg.CreateTime = time.UnixMilli(createTime)
	cfg.UpdateTime = time.UnixMilli(updateTime)

	if err := cfg.UnmarshalParams(params); err != nil {
		return nil, common.StorageError(err, "failed to decode job params")
	}
	if err := cfg.UnmarshalAlerts(alertTypes, alertReceivers); err != nil {
		return nil, common.StorageError(err, "failed to decode alert metadata")
	}

	return &cfg, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
