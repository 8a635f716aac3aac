package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/canbulut/fxbatch/internal/models"
	kgo "github.com/segmentio/kafka-go"
)

// CommandHandler applies a single conversion command. Implementations are expected to
// persist the result and publish the follow-up event themselves.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd models.ConversionCommand) error
}

// CommandConsumer consumes conversion commands from the command topic. It is an
// optional entry point, only started when enabled in config.
type CommandConsumer struct {
	reader     messageSource
	handler    CommandHandler
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewCommandConsumer(brokersCSV, topic, groupID string, handler CommandHandler, logger *slog.Logger) *CommandConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        splitCSV(brokersCSV),
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return &CommandConsumer{reader: r, handler: handler, logger: logger, retryDelay: fetchRetryDelay}
}

func (c *CommandConsumer) Close() error { return c.reader.Close() }

// Run consumes until ctx is cancelled. A command is committed once handled; handler
// failures are committed too, since the handler records the failure outcome itself
// and a redelivery would only repeat it.
func (c *CommandConsumer) Run(ctx context.Context) {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			c.logger.Error("failed to fetch command", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.handle(ctx, m)

		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := c.reader.CommitMessages(cctx, m); err != nil {
			c.logger.Error("failed to commit command offset", slog.String("error", err.Error()))
		}
		cancel()
	}
}

func (c *CommandConsumer) handle(ctx context.Context, m kgo.Message) {
	var cmd models.ConversionCommand
	if err := json.Unmarshal(m.Value, &cmd); err != nil {
		c.logger.Warn("dropping malformed command message", slog.String("error", err.Error()))
		return
	}
	if err := c.handler.HandleCommand(ctx, cmd); err != nil {
		c.logger.Error("command handling failed",
			slog.String("command_id", cmd.CommandID),
			slog.String("error", err.Error()),
		)
	}
}
