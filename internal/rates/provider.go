// Package rates provides exchange-rate lookup against the rate service.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/shopspring/decimal"
)

// Provider returns the current exchange rate for a currency pair.
// "pair not found" and "upstream unavailable" are distinct failures: the former
// matches apperrors.ErrNotFound, the latter is a *TransientError.
type Provider interface {
	GetRate(ctx context.Context, sourceCurrency, targetCurrency string) (models.ExchangeRate, error)
}

// TransientError marks a retryable upstream failure (timeout, 5xx, rate-limited).
// It matches apperrors.ErrUnavailable via errors.Is.
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient rate lookup failure (%s): %v", e.Reason, e.Err)
	}
	return "transient rate lookup failure: " + e.Reason
}

func (e *TransientError) Unwrap() error {
	return apperrors.ErrUnavailable
}

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

type rateResponse struct {
	SourceCurrency string          `json:"sourceCurrency"`
	TargetCurrency string          `json:"targetCurrency"`
	Rate           decimal.Decimal `json:"rate"`
	Timestamp      time.Time       `json:"timestamp"`
}

// HTTPProvider calls the rate service over HTTP with an explicit per-call timeout.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProvider creates a Provider against baseURL. Exceeding timeout is classified
// as transient, identical to a 5xx response.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (p *HTTPProvider) GetRate(ctx context.Context, sourceCurrency, targetCurrency string) (models.ExchangeRate, error) {
	endpoint := fmt.Sprintf("%s/api/v1/rates?from=%s&to=%s",
		p.baseURL, url.QueryEscape(sourceCurrency), url.QueryEscape(targetCurrency))

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("building rate request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// network errors and deadline expiry are retryable
		return models.ExchangeRate{}, &TransientError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode == http.StatusNotFound:
		return models.ExchangeRate{}, apperrors.NewNotFoundError(
			fmt.Sprintf("no exchange rate for pair %s/%s", sourceCurrency, targetCurrency))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return models.ExchangeRate{}, &TransientError{
			Reason: fmt.Sprintf("rate service returned %d", resp.StatusCode),
		}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ExchangeRate{}, apperrors.NewAppError(resp.StatusCode,
			fmt.Sprintf("rate lookup rejected: %s", string(body)), nil)
	}

	var rr rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return models.ExchangeRate{}, fmt.Errorf("decoding rate response: %w", err)
	}
	if rr.Rate.LessThanOrEqual(decimal.Zero) {
		return models.ExchangeRate{}, apperrors.NewValidationError("rate service returned non-positive rate")
	}

	asOf := rr.Timestamp
	if asOf.IsZero() {
		asOf = time.Now()
	}
	return models.ExchangeRate{
		SourceCurrency: sourceCurrency,
		TargetCurrency: targetCurrency,
		Rate:           rr.Rate,
		AsOf:           asOf,
	}, nil
}
