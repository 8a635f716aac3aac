// Package batch implements the chunked bulk-conversion pipeline: records are read from
// the parsed file, enriched with an exchange rate, and committed in bounded batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/canbulut/fxbatch/internal/core/ports"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/canbulut/fxbatch/internal/parser"
	"github.com/canbulut/fxbatch/internal/rates"
)

// Config bounds one job run.
type Config struct {
	ChunkSize    int
	SkipLimit    int
	RetryLimit   int
	RetryBackoff time.Duration
}

// Engine processes one job at a time: chunks are sequential within a run so commit
// order matches input order and the checkpoint stays consistent. Distinct jobs run
// concurrently on the orchestrator's worker pool, each with its own Run call.
type Engine struct {
	cfg       Config
	provider  rates.Provider
	writeRepo ports.ConversionWriteRepository
	writer    *DualWriter
	execRepo  ports.JobExecutionRepository
	txID      TransactionIDFunc
	logger    *slog.Logger
}

// NewEngine builds an Engine with random transaction ids.
func NewEngine(
	cfg Config,
	provider rates.Provider,
	writeRepo ports.ConversionWriteRepository,
	writer *DualWriter,
	execRepo ports.JobExecutionRepository,
	logger *slog.Logger,
) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		provider:  provider,
		writeRepo: writeRepo,
		writer:    writer,
		execRepo:  execRepo,
		txID:      RandomTransactionID,
		logger:    logger,
	}
}

// SetTransactionIDFunc overrides the id scheme, e.g. LegacyTransactionID for
// idempotent re-submission tooling.
func (e *Engine) SetTransactionIDFunc(f TransactionIDFunc) {
	if f != nil {
		e.txID = f
	}
}

// Run drives exec through STARTED to a terminal state, committing chunk by chunk.
// reader must already be positioned past exec.CheckpointPos records. stopRequested is
// polled at chunk boundaries only; in-flight records finish before the signal is
// honored. The returned error is non-nil only when the job FAILED.
func (e *Engine) Run(ctx context.Context, exec *models.JobExecution, reader *parser.Reader, stopRequested func() bool) error {
	logger := e.logger.With(slog.String("job_id", exec.JobID), slog.String("job_name", exec.JobName))

	exec.Status = models.JobStarted
	exec.StartTime = time.Now()
	committed := exec.Counts
	if err := e.execRepo.UpdateExecution(ctx, *exec); err != nil {
		return e.failJob(ctx, exec, committed, fmt.Errorf("persisting job start: %w", err), logger)
	}

	for {
		if stopRequested != nil && stopRequested() {
			logger.Info("stop signal honored at chunk boundary")
			exec.Status = models.JobStopped
			exec.EndTime = time.Now()
			_ = e.execRepo.UpdateExecution(ctx, *exec)
			return nil
		}

		requests, exhausted, err := e.readChunk(exec, reader, logger)
		if err != nil {
			return e.failJob(ctx, exec, committed, err, logger)
		}

		results, err := e.processChunk(ctx, exec, requests, logger)
		if err != nil {
			return e.failJob(ctx, exec, committed, err, logger)
		}

		if err := e.commitChunk(ctx, exec, results, reader, logger); err != nil {
			return e.failJob(ctx, exec, committed, err, logger)
		}
		committed = exec.Counts

		if exhausted {
			exec.Status = models.JobCompleted
			exec.EndTime = time.Now()
			if err := e.execRepo.UpdateExecution(ctx, *exec); err != nil {
				logger.Error("failed to persist job completion", slog.String("error", err.Error()))
			}
			logger.Info("job completed",
				slog.Int("read", exec.Counts.ReadCount),
				slog.Int("written", exec.Counts.WriteCount),
				slog.Int("skipped", exec.Counts.SkipCount),
			)
			return nil
		}
	}
}

// readChunk pulls up to ChunkSize valid requests. Record-level validation failures are
// skipped and counted; exceeding the skip limit is fatal.
func (e *Engine) readChunk(exec *models.JobExecution, reader *parser.Reader, logger *slog.Logger) ([]models.ConversionRequest, bool, error) {
	requests := make([]models.ConversionRequest, 0, e.cfg.ChunkSize)
	for len(requests) < e.cfg.ChunkSize {
		req, err := reader.Read()
		if err == io.EOF {
			return requests, true, nil
		}
		if err != nil {
			var recErr *parser.RecordError
			if errors.As(err, &recErr) {
				exec.Counts.ReadSkips++
				exec.Counts.SkipCount++
				logger.Warn("skipping malformed record", slog.String("error", recErr.Error()))
				if err := e.checkSkipLimit(exec); err != nil {
					return nil, false, err
				}
				continue
			}
			return nil, false, fmt.Errorf("reading input: %w", err)
		}
		exec.Counts.ReadCount++
		requests = append(requests, req)
	}
	return requests, false, nil
}

// processChunk enriches each request with an exchange rate and computes the target
// amount rounded half-up to two decimals.
func (e *Engine) processChunk(ctx context.Context, exec *models.JobExecution, requests []models.ConversionRequest, logger *slog.Logger) ([]models.ConversionResult, error) {
	results := make([]models.ConversionResult, 0, len(requests))
	for _, req := range requests {
		transactionID := e.txID(req)

		exists, err := e.writeRepo.ExistsByTransactionID(ctx, transactionID)
		if err != nil {
			return nil, fmt.Errorf("duplicate check for %s: %w", transactionID, err)
		}
		if exists {
			exec.Counts.DuplicateHits++
			logger.Info("transaction already processed, skipping",
				slog.String("transaction_id", transactionID))
			continue
		}

		rate, err := e.lookupRateWithRetry(ctx, exec, req)
		if err != nil {
			switch Classify(err) {
			case ActionSkip, ActionRetry: // retries exhausted count as a skip
				exec.Counts.ProcessSkips++
				exec.Counts.SkipCount++
				logger.Warn("skipping record after failed rate lookup",
					slog.String("pair", req.SourceCurrency+"/"+req.TargetCurrency),
					slog.String("error", err.Error()),
				)
				if err := e.checkSkipLimit(exec); err != nil {
					return nil, err
				}
				continue
			default:
				return nil, fmt.Errorf("rate lookup for %s/%s: %w", req.SourceCurrency, req.TargetCurrency, err)
			}
		}

		targetAmount := req.SourceAmount.Mul(rate.Rate).Round(2)
		results = append(results, models.ConversionResult{
			TransactionID:  transactionID,
			SourceCurrency: req.SourceCurrency,
			TargetCurrency: req.TargetCurrency,
			SourceAmount:   req.SourceAmount,
			TargetAmount:   targetAmount,
			ExchangeRate:   rate.Rate,
			Timestamp:      time.Now(),
		})
	}
	return results, nil
}

// commitChunk flushes the chunk's results as one atomic batch. A skip-eligible item
// failure rolls the batch back, drops the offending record, and retries so the
// successful subset still commits; a fatal failure aborts with the chunk uncommitted.
func (e *Engine) commitChunk(ctx context.Context, exec *models.JobExecution, results []models.ConversionResult, reader *parser.Reader, logger *slog.Logger) error {
	pending := results
	for len(pending) > 0 {
		written, err := e.writer.Write(ctx, pending, exec.JobID)
		if err == nil {
			exec.Counts.WriteCount += written
			break
		}

		var itemErr *ports.BatchItemError
		if !errors.As(err, &itemErr) || Classify(err) != ActionSkip {
			return fmt.Errorf("chunk commit: %w", err)
		}

		exec.Counts.SkipCount++
		logger.Warn("skipping unwritable record",
			slog.String("transaction_id", pending[itemErr.Index].TransactionID),
			slog.String("error", itemErr.Error()),
		)
		if err := e.checkSkipLimit(exec); err != nil {
			return err
		}
		pending = append(pending[:itemErr.Index:itemErr.Index], pending[itemErr.Index+1:]...)
	}

	exec.Counts.CommitCount++
	exec.CheckpointPos = reader.Consumed()
	if err := e.execRepo.UpdateExecution(ctx, *exec); err != nil {
		return fmt.Errorf("persisting checkpoint: %w", err)
	}
	return nil
}

func (e *Engine) lookupRateWithRetry(ctx context.Context, exec *models.JobExecution, req models.ConversionRequest) (models.ExchangeRate, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryLimit; attempt++ {
		rate, err := e.provider.GetRate(ctx, req.SourceCurrency, req.TargetCurrency)
		if err == nil {
			return rate, nil
		}
		lastErr = err
		if Classify(err) != ActionRetry {
			return models.ExchangeRate{}, err
		}
		if attempt < e.cfg.RetryLimit-1 {
			exec.Counts.RetryCount++
			backoff := e.cfg.RetryBackoff * time.Duration(attempt+1)
			select {
			case <-ctx.Done():
				return models.ExchangeRate{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return models.ExchangeRate{}, lastErr
}

func (e *Engine) checkSkipLimit(exec *models.JobExecution) error {
	if exec.Counts.SkipCount > e.cfg.SkipLimit {
		return fmt.Errorf("skip limit of %d exceeded after %d skips", e.cfg.SkipLimit, exec.Counts.SkipCount)
	}
	return nil
}

// failJob persists the FAILED terminal state. Counters roll back to the last commit
// boundary so a restart re-reading the failed chunk does not count its skips twice
// against the skip limit.
func (e *Engine) failJob(ctx context.Context, exec *models.JobExecution, committed models.StepCounts, cause error, logger *slog.Logger) error {
	exec.Counts = committed
	exec.Status = models.JobFailed
	exec.ExitMessage = cause.Error()
	exec.EndTime = time.Now()
	if err := e.execRepo.UpdateExecution(ctx, *exec); err != nil {
		logger.Error("failed to persist job failure", slog.String("error", err.Error()))
	}
	logger.Error("job failed", slog.String("cause", cause.Error()))
	return cause
}
