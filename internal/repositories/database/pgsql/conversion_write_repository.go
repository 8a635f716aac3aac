package pgsql

import (
	"context"
	"errors"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/core/ports"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxConversionWriteRepository implements ports.ConversionWriteRepository on the
// conversion_write_records table. Transaction ids are unique; inserts use
// ON CONFLICT DO NOTHING so duplicate writes resolve as already applied.
type PgxConversionWriteRepository struct {
	BaseRepository
}

// NewPgxConversionWriteRepository creates a new PgxConversionWriteRepository.
func NewPgxConversionWriteRepository(db *pgxpool.Pool) *PgxConversionWriteRepository {
	return &PgxConversionWriteRepository{
		BaseRepository: BaseRepository{Pool: db},
	}
}

const insertWriteRecordSQL = `
	INSERT INTO conversion_write_records (
		transaction_id, source_currency, target_currency, source_amount,
		target_amount, exchange_rate, status, correlation_id, conversion_timestamp, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (transaction_id) DO NOTHING`

// SaveRecord inserts a record, reporting created=false for an already-applied duplicate.
func (r *PgxConversionWriteRepository) SaveRecord(ctx context.Context, record models.ConversionRecord) (bool, error) {
	tag, err := r.Pool.Exec(ctx, insertWriteRecordSQL,
		record.TransactionID, record.SourceCurrency, record.TargetCurrency,
		record.SourceAmount, record.TargetAmount, record.ExchangeRate,
		record.Status, record.CorrelationID, record.Timestamp, record.CreatedAt,
	)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to save conversion record", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveBatch inserts all records in one transaction. Any failure rolls the whole batch
// back and is reported as a *ports.BatchItemError naming the offending record.
func (r *PgxConversionWriteRepository) SaveBatch(ctx context.Context, records []models.ConversionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.Begin(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, record := range records {
		tag, err := tx.Exec(ctx, insertWriteRecordSQL,
			record.TransactionID, record.SourceCurrency, record.TargetCurrency,
			record.SourceAmount, record.TargetAmount, record.ExchangeRate,
			record.Status, record.CorrelationID, record.Timestamp, record.CreatedAt,
		)
		if err != nil {
			_ = r.Rollback(ctx, tx)
			return 0, &ports.BatchItemError{Index: i, Err: err}
		}
		if tag.RowsAffected() == 1 {
			created++
		}
	}

	if err := r.Commit(ctx, tx); err != nil {
		return 0, err
	}
	return created, nil
}

// ExistsByTransactionID reports whether a record with the given transaction id exists.
func (r *PgxConversionWriteRepository) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := r.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversion_write_records WHERE transaction_id = $1)`,
		transactionID,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.NewAppError(500, "failed to check for existing transaction", err)
	}
	return exists, nil
}

// FindByTransactionID retrieves a write-model record by transaction id.
func (r *PgxConversionWriteRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error) {
	query := `
		SELECT
			transaction_id, source_currency, target_currency, source_amount,
			target_amount, exchange_rate, status, correlation_id, conversion_timestamp, created_at
		FROM conversion_write_records
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
			return nil, apperrors.NewNotFoundError("conversion " + transactionID + " not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find conversion record", err)
	}
	return &record, nil
}
