package dto

import (
	"time"

	"github.com/canbulut/fxbatch/internal/models"
	"github.com/shopspring/decimal"
)

// CreateConversionRequest defines the data needed for a single synchronous conversion.
type CreateConversionRequest struct {
	SourceAmount   decimal.Decimal `json:"sourceAmount" binding:"required"`
	SourceCurrency string          `json:"sourceCurrency" binding:"required,currencycode"`
	TargetCurrency string          `json:"targetCurrency" binding:"required,currencycode"`
}

// ConversionResponse defines the data returned for a completed conversion.
type ConversionResponse struct {
	TransactionID  string          `json:"transactionId"`
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	SourceAmount   decimal.Decimal `json:"sourceAmount"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	ExchangeRate   decimal.Decimal `json:"exchangeRate"`
	Status         string          `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ToConversionResponse converts a models.ConversionRecord to ConversionResponse DTO
func ToConversionResponse(rec *models.ConversionRecord) ConversionResponse {
	return ConversionResponse{
		TransactionID:  rec.TransactionID,
		SourceCurrency: rec.SourceCurrency,
		TargetCurrency: rec.TargetCurrency,
		SourceAmount:   rec.SourceAmount,
		TargetAmount:   rec.TargetAmount,
		ExchangeRate:   rec.ExchangeRate,
		Status:         string(rec.Status),
		Timestamp:      rec.Timestamp,
	}
}

// ConversionPageResponse is a page of conversion records from the read model.
type ConversionPageResponse struct {
	Content       []ConversionResponse `json:"content"`
	Page          int                  `json:"page"`
	Size          int                  `json:"size"`
	TotalElements int                  `json:"totalElements"`
	TotalPages    int                  `json:"totalPages"`
}

// ToConversionPageResponse converts a slice of records plus paging metadata to a page DTO
func ToConversionPageResponse(records []models.ConversionRecord, page, size, total int) ConversionPageResponse {
	content := make([]ConversionResponse, len(records))
	for i, rec := range records {
		content[i] = ToConversionResponse(&rec)
	}
	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}
	return ConversionPageResponse{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
	}
}
