package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/canbulut/fxbatch/internal/core/ports"
	"github.com/canbulut/fxbatch/internal/models"
	kgo "github.com/segmentio/kafka-go"
)

// fetchRetryDelay spaces out fetch attempts after a non-context error so a broken
// broker connection does not spin the loop.
const fetchRetryDelay = time.Second

// messageSource is the consuming side of a Kafka reader.
type messageSource interface {
	FetchMessage(ctx context.Context) (kgo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Projector is the read-model sync consumer group: it consumes conversion events and
// upserts them into the read-model store. Delivery is at-least-once; the upsert makes
// replays harmless.
type Projector struct {
	reader     messageSource
	readRepo   ports.ConversionReadRepository
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewProjector creates a Projector in the given consumer group.
func NewProjector(brokersCSV, topic, groupID string, readRepo ports.ConversionReadRepository, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        splitCSV(brokersCSV),
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits, after the upsert succeeds
	})
	return &Projector{reader: r, readRepo: readRepo, logger: logger, retryDelay: fetchRetryDelay}
}

// Close closes the underlying reader.
func (p *Projector) Close() error { return p.reader.Close() }

// Run consumes until ctx is cancelled. Malformed messages are committed and dropped so
// the group does not wedge on them; upsert failures leave the offset uncommitted for
// redelivery.
func (p *Projector) Run(ctx context.Context) {
	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			p.logger.Error("failed to fetch event", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
			continue
		}
		if p.handle(ctx, m) {
			p.commit(ctx, m)
		}
	}
}

// handle processes one fetched message and reports whether its offset may be
// committed. A malformed payload is dropped as committable; an apply failure keeps
// the offset uncommitted so the group redelivers the message.
func (p *Projector) handle(ctx context.Context, m kgo.Message) bool {
	var event models.ConversionEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.logger.Warn("dropping malformed event message", slog.String("error", err.Error()))
		return true
	}

	if err := p.apply(ctx, event); err != nil {
		p.logger.Error("failed to apply event, leaving uncommitted for redelivery",
			slog.String("transaction_id", event.TransactionID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (p *Projector) apply(ctx context.Context, event models.ConversionEvent) error {
	if event.EventType != models.EventConversionCreated {
		p.logger.Warn("ignoring event type",
			slog.String("event_type", string(event.EventType)),
			slog.String("transaction_id", event.TransactionID),
		)
		return nil
	}

	record := models.ConversionRecord{
		TransactionID:  event.TransactionID,
		SourceCurrency: event.SourceCurrency,
		TargetCurrency: event.TargetCurrency,
		SourceAmount:   event.SourceAmount,
		TargetAmount:   event.TargetAmount,
		ExchangeRate:   event.ExchangeRate,
		Status:         models.ConversionCompleted,
		CorrelationID:  event.CorrelationID,
		Timestamp:      event.Timestamp,
		CreatedAt:      time.Now(),
	}
	if err := p.readRepo.UpsertRecord(ctx, record); err != nil {
		return err
	}
	p.logger.Debug("projected conversion into read model",
		slog.String("transaction_id", event.TransactionID))
	return nil
}

func (p *Projector) commit(ctx context.Context, m kgo.Message) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := p.reader.CommitMessages(cctx, m); err != nil {
		p.logger.Error("failed to commit event offset", slog.String("error", err.Error()))
	}
}
