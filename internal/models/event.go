package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType distinguishes conversion domain events on the event topic.
type EventType string

const (
	EventConversionCreated EventType = "CONVERSION_CREATED"
	EventConversionFailed  EventType = "CONVERSION_FAILED"
)

// ConversionEvent is the wire form published on the event topic after a write-model
// commit. It exists only on the channel; the read model consumes it once per group.
type ConversionEvent struct {
	EventID        string          `json:"eventId"`
	CommandID      string          `json:"commandId,omitempty"`
	TransactionID  string          `json:"transactionId"`
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	SourceAmount   decimal.Decimal `json:"sourceAmount"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	ExchangeRate   decimal.Decimal `json:"exchangeRate"`
	Timestamp      time.Time       `json:"timestamp"`
	EventType      EventType       `json:"eventType"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
}

// NewCreatedEvent builds a CONVERSION_CREATED event from a conversion result.
func NewCreatedEvent(res ConversionResult, correlationID string) ConversionEvent {
	return ConversionEvent{
		EventID:        uuid.NewString(),
		TransactionID:  res.TransactionID,
		SourceCurrency: res.SourceCurrency,
		TargetCurrency: res.TargetCurrency,
		SourceAmount:   res.SourceAmount,
		TargetAmount:   res.TargetAmount,
		ExchangeRate:   res.ExchangeRate,
		Timestamp:      res.Timestamp,
		EventType:      EventConversionCreated,
		CorrelationID:  correlationID,
	}
}

// NewFailedEvent builds a CONVERSION_FAILED event for a request that could not be applied.
func NewFailedEvent(req ConversionRequest, correlationID, errMsg string) ConversionEvent {
	return ConversionEvent{
		EventID:        uuid.NewString(),
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		SourceAmount:   req.SourceAmount,
		Timestamp:      time.Now(),
		EventType:      EventConversionFailed,
		CorrelationID:  correlationID,
		ErrorMessage:   errMsg,
	}
}

// ConversionCommand is the optional command-driven entry point: a single conversion
// request carried on the command topic.
type ConversionCommand struct {
	CommandID      string          `json:"commandId"`
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	SourceAmount   decimal.Decimal `json:"sourceAmount"`
	CorrelationID  string          `json:"correlationId,omitempty"`
}
