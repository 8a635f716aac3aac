// Package events wires the conversion domain to Kafka: a producer publishing
// conversion events after write-model commits, a consumer group projecting them into
// the read model, and an optional command consumer for the command-driven entry point.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/canbulut/fxbatch/internal/models"
	kgo "github.com/segmentio/kafka-go"
)

// Producer publishes conversion events onto the event topic.
type Producer struct {
	writer  *kgo.Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewProducer creates a Producer against the comma-separated broker list.
func NewProducer(brokersCSV, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kgo.Writer{
		Addr:         kgo.TCP(splitCSV(brokersCSV)...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}
	return &Producer{writer: w, timeout: 3 * time.Second, logger: logger}
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error { return p.writer.Close() }

// PublishConversionEvent publishes one event, keyed by transaction id so events for
// the same conversion stay ordered.
func (p *Producer) PublishConversionEvent(ctx context.Context, event models.ConversionEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// bounded timeout so a chunk commit does not hang on an unreachable broker
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug("publishing conversion event",
		slog.String("transaction_id", event.TransactionID),
		slog.String("event_type", string(event.EventType)),
	)
	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(event.TransactionID),
		Value: b,
		Time:  time.Now(),
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
