// Package parser decodes uploaded conversion files into validated conversion requests.
// The format is a tolerant CSV: header names are matched case-insensitively against a
// set of aliases, with positional and concatenated-currency-pair fallbacks for the
// inconsistent producers upstream. The fallbacks are best-effort, not guaranteed-correct.
package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/shopspring/decimal"
)

var (
	currencyPairRe  = regexp.MustCompile(`^[A-Z]{6}$`)
	amountSanitizer = regexp.MustCompile(`[,%$€£\s]`)

	amountAliases = []string{"sourceamount", "amount", "value"}
	sourceAliases = []string{"sourcecurrency", "fromcurrency", "from", "source_currency"}
	targetAliases = []string{"targetcurrency", "tocurrency", "to", "target_currency"}
)

// RecordError is a validation failure for one input record. It matches
// apperrors.ErrValidation via errors.Is, making it skip-eligible for the step engine.
type RecordError struct {
	Record int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Record, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return apperrors.ErrValidation
}

// Reader is a lazy, one-pass, restartable sequence of conversion requests.
type Reader struct {
	csv      *csv.Reader
	header   map[string]int
	columns  int
	consumed int
	logger   *slog.Logger
}

// NewReader parses the header row of content and positions the reader at the first
// data record. An empty payload is a validation error at file granularity.
func NewReader(content string, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("file content is empty")
	}

	cr := csv.NewReader(strings.NewReader(content))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	headerRow, err := cr.Read()
	if err != nil {
		return nil, apperrors.NewValidationError("unable to read header row: " + err.Error())
	}

	header := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	logger.Debug("detected columns", slog.Int("count", len(headerRow)))

	return &Reader{csv: cr, header: header, columns: len(headerRow), logger: logger}, nil
}

// Skip advances past n already-consumed records, for restart-after-failure. The
// consumed counter resumes from n so checkpoints stay monotonic across restarts.
func (r *Reader) Skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.csv.Read(); err != nil {
			if err == io.EOF {
				r.logger.Warn("restart skip ran past end of input",
					slog.Int("requested", n), slog.Int("skipped", i))
				r.consumed = i
				return nil
			}
			// a malformed row still occupies one input position
			continue
		}
	}
	r.consumed = n
	return nil
}

// Consumed returns the count of records read so far, including skipped ones.
func (r *Reader) Consumed() int {
	return r.consumed
}

// Read returns the next validated conversion request. io.EOF signals exhaustion.
// Any other error is a RecordError for that single record; reading may continue.
func (r *Reader) Read() (models.ConversionRequest, error) {
	row, err := r.csv.Read()
	if err == io.EOF {
		return models.ConversionRequest{}, io.EOF
	}
	r.consumed++
	if err != nil {
		return models.ConversionRequest{}, &RecordError{Record: r.consumed, Reason: "malformed row: " + err.Error()}
	}
	return r.parseRow(row)
}

func (r *Reader) parseRow(row []string) (models.ConversionRequest, error) {
	amountStr := r.lookup(row, amountAliases)
	sourceStr := r.lookup(row, sourceAliases)
	targetStr := r.lookup(row, targetAliases)

	// Header lookup found nothing; rows with exactly three fields map positionally.
	if amountStr == "" && sourceStr == "" && targetStr == "" && len(row) == 3 {
		amountStr, sourceStr, targetStr = row[0], row[1], row[2]
	}

	// Two-field rows where one side looks like a concatenated currency pair.
	if len(row) == 2 && (sourceStr == "" || targetStr == "") {
		f1 := strings.TrimSpace(row[0])
		f2 := strings.TrimSpace(row[1])
		switch {
		case currencyPairRe.MatchString(f1):
			sourceStr, targetStr, amountStr = f1[:3], f1[3:], f2
		case currencyPairRe.MatchString(f2):
			amountStr, sourceStr, targetStr = f1, f2[:3], f2[3:]
		}
	}

	if strings.TrimSpace(amountStr) == "" {
		return models.ConversionRequest{}, &RecordError{Record: r.consumed, Reason: "missing or empty source amount"}
	}
	if strings.TrimSpace(sourceStr) == "" {
		return models.ConversionRequest{}, &RecordError{Record: r.consumed, Reason: "missing or empty source currency"}
	}
	if strings.TrimSpace(targetStr) == "" {
		return models.ConversionRequest{}, &RecordError{Record: r.consumed, Reason: "missing or empty target currency"}
	}

	cleaned := amountSanitizer.ReplaceAllString(amountStr, "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return models.ConversionRequest{}, &RecordError{
			Record: r.consumed,
			Reason: fmt.Sprintf("invalid source amount %q (cleaned %q)", amountStr, cleaned),
		}
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return models.ConversionRequest{}, &RecordError{
			Record: r.consumed,
			Reason: "source amount must be positive: " + amount.String(),
		}
	}

	source := strings.ToUpper(strings.TrimSpace(sourceStr))
	target := strings.ToUpper(strings.TrimSpace(targetStr))
	if len(source) != 3 {
		return models.ConversionRequest{}, &RecordError{
			Record: r.consumed,
			Reason: fmt.Sprintf("invalid source currency %q, must be 3 characters", sourceStr),
		}
	}
	if len(target) != 3 {
		return models.ConversionRequest{}, &RecordError{
			Record: r.consumed,
			Reason: fmt.Sprintf("invalid target currency %q, must be 3 characters", targetStr),
		}
	}
	if source == target {
		return models.ConversionRequest{}, &RecordError{
			Record: r.consumed,
			Reason: "source and target currency cannot be the same: " + source,
		}
	}

	return models.ConversionRequest{
		SourceAmount:   amount,
		SourceCurrency: source,
		TargetCurrency: target,
	}, nil
}

func (r *Reader) lookup(row []string, aliases []string) string {
	for _, alias := range aliases {
		idx, ok := r.header[alias]
		if !ok || idx >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[idx]); v != "" {
			return v
		}
	}
	return ""
}
