package ports

import (
	"context"
	"fmt"

	"github.com/canbulut/fxbatch/internal/models"
)

// BatchItemError reports which record of a batch save failed. The batch is rolled
// back as a whole when it is returned.
type BatchItemError struct {
	Index int
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchItemError) Unwrap() error {
	return e.Err
}

// ConversionWriteRepository is the authoritative write-model store for conversions.
// Records are unique on transaction id; a duplicate save is reported as already
// applied, never as an error.
type ConversionWriteRepository interface {
	// SaveRecord persists a record. created is false when the transaction id already
	// existed and the write was treated as already applied.
	SaveRecord(ctx context.Context, record models.ConversionRecord) (created bool, err error)
	// SaveBatch persists all records in one transaction. On failure it rolls the whole
	// batch back and returns a *BatchItemError naming the offending record. created
	// excludes already-applied duplicates.
	SaveBatch(ctx context.Context, records []models.ConversionRecord) (created int, err error)
	ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error)
}

// ConversionReadRepository is the event-fed read-model projection. It is eventually
// consistent with the write model and uses upsert-on-duplicate semantics.
type ConversionReadRepository interface {
	UpsertRecord(ctx context.Context, record models.ConversionRecord) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error)
	ListRecords(ctx context.Context, page, size int) ([]models.ConversionRecord, int, error)
}

// JobExecutionRepository persists job execution metadata. Reads may be concurrent;
// writes for a single job are serialized by the engine.
type JobExecutionRepository interface {
	SaveExecution(ctx context.Context, exec models.JobExecution) error
	UpdateExecution(ctx context.Context, exec models.JobExecution) error
	FindByID(ctx context.Context, jobID string) (*models.JobExecution, error)
	FindRunning(ctx context.Context) ([]models.JobExecution, error)
	FindByName(ctx context.Context, jobName string, page, size int) ([]models.JobExecution, int, error)
	// FindActiveByInstanceID detects a non-terminal execution for the same logical job
	// identity, used to reject duplicate launches as conflicts.
	FindActiveByInstanceID(ctx context.Context, jobInstanceID string) (*models.JobExecution, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// EventPublisher emits conversion domain events onto the event channel.
type EventPublisher interface {
	PublishConversionEvent(ctx context.Context, event models.ConversionEvent) error
}
