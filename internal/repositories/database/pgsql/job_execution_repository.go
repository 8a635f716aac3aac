package pgsql

import (
	"context"
	"errors"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxJobExecutionRepository implements ports.JobExecutionRepository on the
// job_executions table. Reads are concurrent; per-job writes arrive serialized from
// the engine, which owns the execution while it runs.
type PgxJobExecutionRepository struct {
	BaseRepository
}

// NewPgxJobExecutionRepository creates a new PgxJobExecutionRepository.
func NewPgxJobExecutionRepository(db *pgxpool.Pool) *PgxJobExecutionRepository {
	return &PgxJobExecutionRepository{
		BaseRepository: BaseRepository{Pool: db},
	}
}

const jobExecutionColumns = `
	job_id, job_instance_id, job_name, status, exit_message,
	content_key, original_filename, file_size_bytes, submitted_at_millis,
	read_count, write_count, commit_count, skip_count,
	read_skips, process_skips, duplicate_hits, retry_count,
	create_time, start_time, end_time, checkpoint_pos`

// SaveExecution inserts a freshly created execution.
func (r *PgxJobExecutionRepository) SaveExecution(ctx context.Context, exec models.JobExecution) error {
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO job_executions (`+jobExecutionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		exec.JobID, exec.JobInstanceID, exec.JobName, exec.Status, exec.ExitMessage,
		exec.Parameters.ContentKey, exec.Parameters.OriginalFilename,
		exec.Parameters.FileSizeBytes, exec.Parameters.SubmittedAtMillis,
		exec.Counts.ReadCount, exec.Counts.WriteCount, exec.Counts.CommitCount, exec.Counts.SkipCount,
		exec.Counts.ReadSkips, exec.Counts.ProcessSkips, exec.Counts.DuplicateHits, exec.Counts.RetryCount,
		exec.CreateTime, exec.StartTime, exec.EndTime, exec.CheckpointPos,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to save job execution", err)
	}
	return nil
}

// UpdateExecution persists the mutable fields of a running or finished execution.
func (r *PgxJobExecutionRepository) UpdateExecution(ctx context.Context, exec models.JobExecution) error {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE job_executions SET
			status = $2, exit_message = $3,
			read_count = $4, write_count = $5, commit_count = $6, skip_count = $7,
			read_skips = $8, process_skips = $9, duplicate_hits = $10, retry_count = $11,
			start_time = $12, end_time = $13, checkpoint_pos = $14
		WHERE job_id = $1`,
		exec.JobID, exec.Status, exec.ExitMessage,
		exec.Counts.ReadCount, exec.Counts.WriteCount, exec.Counts.CommitCount, exec.Counts.SkipCount,
		exec.Counts.ReadSkips, exec.Counts.ProcessSkips, exec.Counts.DuplicateHits, exec.Counts.RetryCount,
		exec.StartTime, exec.EndTime, exec.CheckpointPos,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update job execution", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("job execution " + exec.JobID + " not found")
	}
	return nil
}

// FindByID retrieves one execution by job id.
func (r *PgxJobExecutionRepository) FindByID(ctx context.Context, jobID string) (*models.JobExecution, error) {
	row := r.Pool.QueryRow(ctx,
		`SELECT `+jobExecutionColumns+` FROM job_executions WHERE job_id = $1`, jobID)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("job " + jobID + " not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find job execution", err)
	}
	return exec, nil
}

// FindRunning lists executions that have not reached a terminal state.
func (r *PgxJobExecutionRepository) FindRunning(ctx context.Context) ([]models.JobExecution, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT `+jobExecutionColumns+`
		FROM job_executions
		WHERE status IN ($1, $2)
		ORDER BY create_time DESC`,
		models.JobStarting, models.JobStarted,
	)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to list running jobs", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// FindByName returns one page of executions for a job name, newest first, plus the total.
func (r *PgxJobExecutionRepository) FindByName(ctx context.Context, jobName string, page, size int) ([]models.JobExecution, int, error) {
	var total int
	err := r.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM job_executions WHERE job_name = $1`, jobName).Scan(&total)
	if err != nil {
		return nil, 0, apperrors.NewAppError(500, "failed to count job executions", err)
	}
	if total == 0 {
		return []models.JobExecution{}, 0, nil
	}

	// zero-based pages
	offset := page * size
	rows, err := r.Pool.Query(ctx, `
		SELECT `+jobExecutionColumns+`
		FROM job_executions
		WHERE job_name = $1
		ORDER BY create_time DESC
		LIMIT $2 OFFSET $3`,
		jobName, size, offset,
	)
	if err != nil {
		return nil, 0, apperrors.NewAppError(500, "failed to list job executions", err)
	}
	defer rows.Close()

	execs, err := scanExecutions(rows)
	if err != nil {
		return nil, 0, err
	}
	return execs, total, nil
}

// FindActiveByInstanceID returns the non-terminal execution for a logical job
// identity, or ErrNotFound when none is active.
func (r *PgxJobExecutionRepository) FindActiveByInstanceID(ctx context.Context, jobInstanceID string) (*models.JobExecution, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT `+jobExecutionColumns+`
		FROM job_executions
		WHERE job_instance_id = $1 AND status IN ($2, $3)
		LIMIT 1`,
		jobInstanceID, models.JobStarting, models.JobStarted,
	)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("no active execution for instance " + jobInstanceID)
		}
		return nil, apperrors.NewAppError(500, "failed to find active job execution", err)
	}
	return exec, nil
}

// CountByStatus aggregates executions per status.
func (r *PgxJobExecutionRepository) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT status, COUNT(*) FROM job_executions GROUP BY status`)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to aggregate job statistics", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan job statistics", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating job statistics", err)
	}
	return counts, nil
}

func scanExecution(row pgx.Row) (*models.JobExecution, error) {
	var exec models.JobExecution
	err := row.Scan(
		&exec.JobID, &exec.JobInstanceID, &exec.JobName, &exec.Status, &exec.ExitMessage,
		&exec.Parameters.ContentKey, &exec.Parameters.OriginalFilename,
		&exec.Parameters.FileSizeBytes, &exec.Parameters.SubmittedAtMillis,
		&exec.Counts.ReadCount, &exec.Counts.WriteCount, &exec.Counts.CommitCount, &exec.Counts.SkipCount,
		&exec.Counts.ReadSkips, &exec.Counts.ProcessSkips, &exec.Counts.DuplicateHits, &exec.Counts.RetryCount,
		&exec.CreateTime, &exec.StartTime, &exec.EndTime, &exec.CheckpointPos,
	)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

func scanExecutions(rows pgx.Rows) ([]models.JobExecution, error) {
	var execs []models.JobExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan job execution", err)
		}
		execs = append(execs, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating job executions", err)
	}
	return execs, nil
}
