package services

import (
	"context"

	"github.com/canbulut/fxbatch/internal/contentstore"
	"github.com/canbulut/fxbatch/internal/dto"
	"github.com/canbulut/fxbatch/internal/models"
)

// ConversionSvcFacade combines single-conversion and read-model query operations
type ConversionSvcFacade interface {
	// Convert performs one conversion end to end and persists the result.
	Convert(ctx context.Context, req dto.CreateConversionRequest, correlationID string) (*models.ConversionResult, error)

	// GetByTransactionID serves a single conversion from the read model.
	GetByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error)

	// ListConversions serves a page of conversion history from the read model.
	ListConversions(ctx context.Context, page, size int) ([]models.ConversionRecord, int, error)
}

// BatchJobSvcFacade defines bulk job orchestration operations
type BatchJobSvcFacade interface {
	// ProcessFile runs a bulk conversion synchronously.
	ProcessFile(ctx context.Context, filename, content string) (*models.JobExecution, error)

	// ProcessFileAsync enqueues a bulk conversion and returns its task id.
	ProcessFileAsync(ctx context.Context, filename, content string) (string, error)

	// PollTask reports task state; a terminal task is collected on first poll.
	PollTask(ctx context.Context, taskID string) (string, *models.JobExecution, error)

	// StopJob requests a stop at the next chunk boundary.
	StopJob(ctx context.Context, jobID string) error

	// RestartJob re-enqueues a FAILED or STOPPED job from its checkpoint.
	RestartJob(ctx context.Context, jobID string) (string, error)

	// ContentStats reports content store occupancy.
	ContentStats() contentstore.Stats

	// CleanupContent sweeps expired entries, or everything when all is set.
	CleanupContent(all bool) int
}

// JobStatusSvcFacade defines execution metadata query operations
type JobStatusSvcFacade interface {
	GetJob(ctx context.Context, jobID string) (*models.JobExecution, error)
	RunningJobs(ctx context.Context) ([]models.JobExecution, error)
	JobsByName(ctx context.Context, jobName string, page, size int) ([]models.JobExecution, int, error)
	Statistics(ctx context.Context) (map[models.JobStatus]int, int, error)
}

// ServiceContainer bundles the service facades handed to the HTTP layer
type ServiceContainer struct {
	Conversion ConversionSvcFacade
	BatchJob   BatchJobSvcFacade
	JobStatus  JobStatusSvcFacade
}
