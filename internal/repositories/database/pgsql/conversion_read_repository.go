package pgsql

import (
	"context"
	"errors"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxConversionReadRepository implements ports.ConversionReadRepository on the
// conversion_read_records projection table. It is populated only by the event
// consumer, with upsert-on-duplicate semantics.
type PgxConversionReadRepository struct {
	BaseRepository
}

// NewPgxConversionReadRepository creates a new PgxConversionReadRepository.
func NewPgxConversionReadRepository(db *pgxpool.Pool) *PgxConversionReadRepository {
	return &PgxConversionReadRepository{
		BaseRepository: BaseRepository{Pool: db},
	}
}

// UpsertRecord inserts or refreshes the projection row for a transaction id.
func (r *PgxConversionReadRepository) UpsertRecord(ctx context.Context, record models.ConversionRecord) error {
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO conversion_read_records (
			transaction_id, source_currency, target_currency, source_amount,
			target_amount, exchange_rate, status, correlation_id, conversion_timestamp, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (transaction_id) DO UPDATE SET
			target_amount = EXCLUDED.target_amount,
			exchange_rate = EXCLUDED.exchange_rate,
			status = EXCLUDED.status,
			conversion_timestamp = EXCLUDED.conversion_timestamp`,
		record.TransactionID, record.SourceCurrency, record.TargetCurrency,
		record.SourceAmount, record.TargetAmount, record.ExchangeRate,
		record.Status, record.CorrelationID, record.Timestamp, record.CreatedAt,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to upsert read-model record", err)
	}
	return nil
}

// FindByTransactionID retrieves a projection row. A record not yet propagated is a
// not-found outcome, not an internal error.
func (r *PgxConversionReadRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error) {
	query := `
		SELECT
			transaction_id, source_currency, target_currency, source_amount,
			target_amount, exchange_rate, status, correlation_id, conversion_timestamp, created_at
		FROM conversion_read_records
		WHERE transaction_id = $1;
	`

	var record models.ConversionRecord
	err := r.Pool.QueryRow(ctx, query, transactionID).Scan(
		&record.TransactionID, &record.SourceCurrency, &record.TargetCurrency,
		&record.SourceAmount, &record.TargetAmount, &record.ExchangeRate,
		&record.Status, &record.CorrelationID, &record.Timestamp, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("conversion " + transactionID + " not found in read model")
		}
		return nil, apperrors.NewAppError(500, "failed to query read model", err)
	}
	return &record, nil
}

// ListRecords returns one page of conversion history, newest first, with the total count.
func (r *PgxConversionReadRepository) ListRecords(ctx context.Context, page, size int) ([]models.ConversionRecord, int, error) {
	var total int
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversion_read_records`).Scan(&total); err != nil {
		return nil, 0, apperrors.NewAppError(500, "failed to count read-model records", err)
	}
	if total == 0 {
		return []models.ConversionRecord{}, 0, nil
	}

	// zero-based pages
	offset := page * size
	rows, err := r.Pool.Query(ctx, `
		SELECT
			transaction_id, source_currency, target_currency, source_amount,
			target_amount, exchange_rate, status, correlation_id, conversion_timestamp, created_at
		FROM conversion_read_records
		ORDER BY conversion_timestamp DESC, transaction_id
		LIMIT $1 OFFSET $2`,
		size, offset,
	)
	if err != nil {
		return nil, 0, apperrors.NewAppError(500, "failed to list read-model records", err)
	}
	defer rows.Close()

	var records []models.ConversionRecord
	for rows.Next() {
		var record models.ConversionRecord
		err := rows.Scan(
			&record.TransactionID, &record.SourceCurrency, &record.TargetCurrency,
			&record.SourceAmount, &record.TargetAmount, &record.ExchangeRate,
			&record.Status, &record.CorrelationID, &record.Timestamp, &record.CreatedAt,
		)
		if err != nil {
			return nil, 0, apperrors.NewAppError(500, "failed to scan read-model record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewAppError(500, "error iterating read-model records", err)
	}

	return records, total, nil
}
