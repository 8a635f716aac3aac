package batch

import (
	"errors"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/rates"
)

// Action is the engine's disposition for a failed record or commit.
type Action int

const (
	// ActionRetry retries the operation up to the configured retry limit.
	ActionRetry Action = iota
	// ActionSkip drops the single offending record, counted against the skip limit.
	ActionSkip
	// ActionFatal aborts the chunk and fails the job.
	ActionFatal
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionSkip:
		return "skip"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error to the engine's retry/skip/fatal policy:
//   - transient upstream failures (timeout, 5xx, rate-limited) retry;
//   - record-level validation failures and missing rate pairs skip;
//   - conflicts and everything else are fatal. Duplicate keys never reach here,
//     the writer resolves them as already applied.
func Classify(err error) Action {
	switch {
	case err == nil:
		return ActionSkip
	case rates.IsTransient(err):
		return ActionRetry
	case errors.Is(err, apperrors.ErrValidation):
		return ActionSkip
	case errors.Is(err, apperrors.ErrNotFound):
		return ActionSkip
	case errors.Is(err, apperrors.ErrConflict):
		return ActionFatal
	default:
		return ActionFatal
	}
}
