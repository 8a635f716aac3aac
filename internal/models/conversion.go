package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConversionStatus tracks the lifecycle of a persisted conversion record.
type ConversionStatus string

const (
	ConversionPending   ConversionStatus = "PENDING"
	ConversionCompleted ConversionStatus = "COMPLETED"
	ConversionFailed    ConversionStatus = "FAILED"
)

// ConversionRequest is a single validated input record from an uploaded file.
// It is consumed once by the step engine and never persisted.
type ConversionRequest struct {
	SourceAmount   decimal.Decimal `json:"sourceAmount"`
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
}

// ConversionResult is the enriched outcome of one conversion, immutable once written.
type ConversionResult struct {
	TransactionID  string          `json:"transactionId"`
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	SourceAmount   decimal.Decimal `json:"sourceAmount"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	ExchangeRate   decimal.Decimal `json:"exchangeRate"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ConversionRecord is the persisted form of a ConversionResult. The same shape backs
// both the authoritative write model and the event-fed read model projection; both are
// unique on TransactionID.
type ConversionRecord struct {
	TransactionID  string           `json:"transactionId"`
	SourceCurrency string           `json:"sourceCurrency"`
	TargetCurrency string           `json:"targetCurrency"`
	SourceAmount   decimal.Decimal  `json:"sourceAmount"`
	TargetAmount   decimal.Decimal  `json:"targetAmount"`
	ExchangeRate   decimal.Decimal  `json:"exchangeRate"`
	Status         ConversionStatus `json:"status"`
	CorrelationID  string           `json:"correlationId"`
	Timestamp      time.Time        `json:"timestamp"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// RecordFromResult builds a COMPLETED write-model record from an engine result.
func RecordFromResult(res ConversionResult, correlationID string) ConversionRecord {
	return ConversionRecord{
		TransactionID:  res.TransactionID,
		SourceCurrency: res.SourceCurrency,
		TargetCurrency: res.TargetCurrency,
		SourceAmount:   res.SourceAmount,
		TargetAmount:   res.TargetAmount,
		ExchangeRate:   res.ExchangeRate,
		Status:         ConversionCompleted,
		CorrelationID:  correlationID,
		Timestamp:      res.Timestamp,
		CreatedAt:      time.Now(),
	}
}
