package batch

import (
	"context"
	"log/slog"

	"github.com/canbulut/fxbatch/internal/core/ports"
	"github.com/canbulut/fxbatch/internal/models"
)

// DualWriter persists a chunk's results to the write model and, for every item actually
// persisted (idempotent-duplicate hits included), emits one CONVERSION_CREATED event.
// The write repository is a required collaborator; the event publisher is optional -
// when absent the read model is simply not fed and an operational reconciliation sweep
// is needed to catch it up.
type DualWriter struct {
	writeRepo ports.ConversionWriteRepository
	publisher ports.EventPublisher
	logger    *slog.Logger
}

// NewDualWriter creates a DualWriter. writeRepo must be non-nil; publisher may be nil.
func NewDualWriter(writeRepo ports.ConversionWriteRepository, publisher ports.EventPublisher, logger *slog.Logger) *DualWriter {
	if writeRepo == nil {
		panic("batch: DualWriter requires a write repository")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DualWriter{writeRepo: writeRepo, publisher: publisher, logger: logger}
}

// Write persists the batch in one transaction and returns how many records were
// written (duplicates count as written: they are already applied, not failures). A
// persistence failure rolls the whole batch back and surfaces a *ports.BatchItemError
// for the engine's skip/retry classification. Event emission happens only after the
// commit; emission failures are logged and never roll back the write.
func (w *DualWriter) Write(ctx context.Context, results []models.ConversionResult, correlationID string) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	records := make([]models.ConversionRecord, len(results))
	for i, res := range results {
		records[i] = models.RecordFromResult(res, correlationID)
	}

	created, err := w.writeRepo.SaveBatch(ctx, records)
	if err != nil {
		return 0, err
	}
	if dup := len(records) - created; dup > 0 {
		w.logger.Debug("duplicate transactions already applied", slog.Int("count", dup))
	}

	w.publishCreated(ctx, results, correlationID)
	return len(records), nil
}

// WriteOne persists a single result and emits its event; used by the synchronous
// command path. created is false when the transaction was already applied.
func (w *DualWriter) WriteOne(ctx context.Context, res models.ConversionResult, correlationID string) (bool, error) {
	record := models.RecordFromResult(res, correlationID)
	created, err := w.writeRepo.SaveRecord(ctx, record)
	if err != nil {
		return false, err
	}
	w.publishCreated(ctx, []models.ConversionResult{res}, correlationID)
	return created, nil
}

func (w *DualWriter) publishCreated(ctx context.Context, results []models.ConversionResult, correlationID string) {
	if w.publisher == nil {
		w.logger.Warn("event publisher not configured, read model will not be updated",
			slog.Int("unpublished", len(results)))
		return
	}
	for _, res := range results {
		event := models.NewCreatedEvent(res, correlationID)
		if err := w.publisher.PublishConversionEvent(ctx, event); err != nil {
			// write model is authoritative; the read model catches up later
			w.logger.Warn("failed to publish conversion event",
				slog.String("transaction_id", res.TransactionID),
				slog.String("error", err.Error()),
			)
		}
	}
}
