package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a rate quote for a currency pair as returned by the rate collaborator.
type ExchangeRate struct {
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	Rate           decimal.Decimal `json:"rate"`
	AsOf           time.Time       `json:"asOf"`
}
