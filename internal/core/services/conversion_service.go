package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/batch"
	"github.com/canbulut/fxbatch/internal/core/ports"
	"github.com/canbulut/fxbatch/internal/dto"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/canbulut/fxbatch/internal/rates"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConversionService handles single synchronous conversions plus read-model queries.
// Bulk processing goes through BatchJobService instead.
type ConversionService struct {
	provider  rates.Provider
	writer    *batch.DualWriter
	readRepo  ports.ConversionReadRepository
	publisher ports.EventPublisher
	logger    *slog.Logger
}

func NewConversionService(provider rates.Provider, writer *batch.DualWriter, readRepo ports.ConversionReadRepository, publisher ports.EventPublisher, logger *slog.Logger) *ConversionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversionService{
		provider:  provider,
		writer:    writer,
		readRepo:  readRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// Convert performs one conversion end to end: rate lookup, computation, dual write.
func (s *ConversionService) Convert(ctx context.Context, req dto.CreateConversionRequest, correlationID string) (*models.ConversionResult, error) {
	// Format validation (len=3, uppercase) is handled by DTO binding tags.
	if req.SourceAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: source amount must be positive", apperrors.ErrValidation)
	}
	if req.SourceCurrency == req.TargetCurrency {
		return nil, fmt.Errorf("%w: source and target currency cannot be the same", apperrors.ErrValidation)
	}

	rate, err := s.provider.GetRate(ctx, req.SourceCurrency, req.TargetCurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange rate in service: %w", err)
	}

	result := models.ConversionResult{
		TransactionID:  uuid.NewString(),
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		SourceAmount:   req.SourceAmount,
		TargetAmount:   req.SourceAmount.Mul(rate.Rate).Round(2),
		ExchangeRate:   rate.Rate,
		Timestamp:      time.Now(),
	}

	if _, err := s.writer.WriteOne(ctx, result, correlationID); err != nil {
		return nil, fmt.Errorf("failed to persist conversion in service: %w", err)
	}
	return &result, nil
}

// HandleCommand applies a command-topic conversion request. A failed conversion is
// reported back on the event topic as CONVERSION_FAILED rather than surfaced as an
// error, so the consumer can commit the command either way.
func (s *ConversionService) HandleCommand(ctx context.Context, cmd models.ConversionCommand) error {
	req := dto.CreateConversionRequest{
		SourceAmount:   cmd.SourceAmount,
		SourceCurrency: cmd.SourceCurrency,
		TargetCurrency: cmd.TargetCurrency,
	}

	result, err := s.Convert(ctx, req, cmd.CorrelationID)
	if err != nil {
		s.logger.Warn("command conversion failed",
			slog.String("command_id", cmd.CommandID),
			slog.String("error", err.Error()),
		)
		s.publishFailed(ctx, cmd, err)
		return nil
	}

	s.logger.Info("command conversion applied",
		slog.String("command_id", cmd.CommandID),
		slog.String("transaction_id", result.TransactionID),
	)
	return nil
}

func (s *ConversionService) publishFailed(ctx context.Context, cmd models.ConversionCommand, cause error) {
	if s.publisher == nil {
		return
	}
	event := models.NewFailedEvent(models.ConversionRequest{
		SourceAmount:   cmd.SourceAmount,
		SourceCurrency: cmd.SourceCurrency,
		TargetCurrency: cmd.TargetCurrency,
	}, cmd.CorrelationID, cause.Error())
	event.CommandID = cmd.CommandID
	if err := s.publisher.PublishConversionEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish failure event",
			slog.String("command_id", cmd.CommandID),
			slog.String("error", err.Error()),
		)
	}
}

// GetByTransactionID serves a single conversion from the read model.
func (s *ConversionService) GetByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", apperrors.ErrValidation)
	}
	record, err := s.readRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion in service: %w", err)
	}
	return record, nil
}

// ListConversions serves a page of conversion history from the read model.
func (s *ConversionService) ListConversions(ctx context.Context, page, size int) ([]models.ConversionRecord, int, error) {
	page, size = normalizePaging(page, size)
	records, total, err := s.readRepo.ListRecords(ctx, page, size)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversions in service: %w", err)
	}
	if records == nil {
		records = []models.ConversionRecord{}
	}
	return records, total, nil
}
