package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/core/ports"
	"github.com/canbulut/fxbatch/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobStatusService serves execution metadata queries: single status, running jobs,
// per-name history and aggregate statistics.
type JobStatusService struct {
	execRepo ports.JobExecutionRepository
	logger   *slog.Logger
}

func NewJobStatusService(execRepo ports.JobExecutionRepository, logger *slog.Logger) *JobStatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStatusService{execRepo: execRepo, logger: logger}
}

// GetJob returns one execution by job id.
func (s *JobStatusService) GetJob(ctx context.Context, jobID string) (*models.JobExecution, error) {
	if jobID == "" {
		return nil, apperrors.NewValidationError("job id is required")
	}
	exec, err := s.execRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job in service: %w", err)
	}
	return exec, nil
}

// RunningJobs returns all executions that have not reached a terminal state.
func (s *JobStatusService) RunningJobs(ctx context.Context) ([]models.JobExecution, error) {
	execs, err := s.execRepo.FindRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list running jobs in service: %w", err)
	}
	if execs == nil {
		execs = []models.JobExecution{}
	}
	return execs, nil
}

// JobsByName returns a page of execution history for one job name, newest first.
func (s *JobStatusService) JobsByName(ctx context.Context, jobName string, page, size int) ([]models.JobExecution, int, error) {
	if jobName == "" {
		return nil, 0, apperrors.NewValidationError("job name is required")
	}
	page, size = normalizePaging(page, size)
	execs, total, err := s.execRepo.FindByName(ctx, jobName, page, size)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs by name in service: %w", err)
	}
	if execs == nil {
		execs = []models.JobExecution{}
	}
	return execs, total, nil
}

// Statistics aggregates execution counts by status across all job names.
func (s *JobStatusService) Statistics(ctx context.Context) (map[models.JobStatus]int, int, error) {
	counts, err := s.execRepo.CountByStatus(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate job statistics in service: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return counts, total, nil
}

// normalizePaging clamps page to zero-based and size to [1, maxPageSize], defaulting
// size when unset.
func normalizePaging(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
