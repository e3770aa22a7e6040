package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/models"
)

// JobLogStorage handles execution log persistence in SQLite
type JobLogStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new job log storage
func NewJobLogStorage(db *SQLiteDB, logger arbor.ILogger) *JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

const jobLogColumns = `id, job_id, job_name, job_group, execution_id, start_time,
	end_time, duration, status, retry_count, server_ip, server_name,
	execution_log, error_message`

// SaveLog inserts a new execution log row, assigning ID
func (s *JobLogStorage) SaveLog(ctx context.Context, log *models.JobLog) error {
	query := `
		INSERT INTO scheduler_job_log (
			job_id, job_name, job_group, execution_id, start_time, end_time,
			duration, status, retry_count, server_ip, server_name,
			execution_log, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.db.ExecContext(ctx, query,
		log.JobID, log.JobName, log.JobGroup, log.ExecutionID,
		log.StartTime.UnixMilli(), nullableTime(log.EndTime),
		log.Duration, string(log.Status), log.RetryCount,
		log.ServerIP, log.ServerName, log.ExecutionLog, log.ErrorMessage,
	)
	if err != nil {
		return common.StorageError(err, "failed to insert job log")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return common.StorageError(err, "failed to read inserted job log id")
	}
	log.ID = id

	return nil
}

// UpdateLog rewrites the row by id
func (s *JobLogStorage) UpdateLog(ctx context.Context, log *models.JobLog) error {
	query := `
		UPDATE scheduler_job_log SET
			end_time = ?, duration = ?, status = ?, retry_count = ?,
			execution_log = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.db.ExecContext(ctx, query,
		nullableTime(log.EndTime), log.Duration, string(log.Status),
		log.RetryCount, log.ExecutionLog, log.ErrorMessage, log.ID,
	)
	if err != nil {
		return common.StorageError(err, "failed to update job log")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return common.StorageError(err, "failed to read rows affected")
	}
	if affected == 0 {
		return common.StorageError(sql.ErrNoRows, "job log not found for update")
	}

	return nil
}

// GetLogByID returns nil when no row exists
func (s *JobLogStorage) GetLogByID(ctx context.Context, id int64) (*models.JobLog, error) {
	query := `SELECT ` + jobLogColumns + ` FROM scheduler_job_log WHERE id = ?`
	return s.scanOneLog(s.db.db.QueryRowContext(ctx, query, id))
}

// GetLogByExecutionID returns nil when no row exists
func (s *JobLogStorage) GetLogByExecutionID(ctx context.Context, executionID string) (*models.JobLog, error) {
	query := `SELECT ` + jobLogColumns + ` FROM scheduler_job_log WHERE execution_id = ?`
	return s.scanOneLog(s.db.db.QueryRowContext(ctx, query, executionID))
}

// ListLogsByJobID returns the most recent logs for a job, newest first
func (s *JobLogStorage) ListLogsByJobID(ctx context.Context, jobID int64, limit int) ([]*models.JobLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobLogColumns + ` FROM scheduler_job_log
		WHERE job_id = ? ORDER BY start_time DESC, id DESC LIMIT ?`

	rows, err := s.db.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, common.StorageError(err, "failed to query job logs")
	}
	defer rows.Close()

	var logs []*models.JobLog
	for rows.Next() {
		log, err := scanJobLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, common.StorageError(err, "error iterating job logs")
	}

	return logs, nil
}

// FailRunningLogs transitions every RUNNING row to FAILED with the given
// reason. Called once at startup to close out fires orphaned by a
// previous process.
func (s *JobLogStorage) FailRunningLogs(ctx context.Context, reason string) (int, error) {
	now := time.Now()

	query := `
		UPDATE scheduler_job_log SET
			status = ?, end_time = ?,
			duration = ? - start_time,
			error_message = CASE WHEN error_message = '' THEN ? ELSE error_message || char(10) || ? END
		WHERE status = ?
	`

	result, err := s.db.db.ExecContext(ctx, query,
		string(models.JobLogStatusFailed), now.UnixMilli(), now.UnixMilli(),
		reason, reason, string(models.JobLogStatusRunning),
	)
	if err != nil {
		return 0, common.StorageError(err, "failed to fail running job logs")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, common.StorageError(err, "failed to read rows affected")
	}

	if affected > 0 {
		s.logger.Info().
			Int64("count", affected).
			Str("reason", reason).
			Msg("Orphaned running job logs marked failed")
	}

	return int(affected), nil
}

func (s *JobLogStorage) scanOneLog(row *sql.Row) (*models.JobLog, error) {
	log, err := scanJobLog(row)
	if err != nil {
		if log == nil && isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return log, nil
}

func scanJobLog(row rowScanner) (*models.JobLog, error) {
	var (
		log       models.JobLog
		status    string
		startTime int64
		endTime   sql.NullInt64
	)

	err := row.Scan(
		&log.ID, &log.JobID, &log.JobName, &log.JobGroup, &log.ExecutionID,
		&startTime, &endTime, &log.Duration, &status, &log.RetryCount,
		&log.ServerIP, &log.ServerName, &log.ExecutionLog, &log.ErrorMessage,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, common.StorageError(err, "failed to scan job log")
	}

	log.Status = models.JobLogStatus(status)
	log.StartTime = time.UnixMilli(startTime)
	if endTime.Valid {
		t := time.UnixMilli(endTime.Int64)
		log.EndTime = &t
	}

	return &log, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
