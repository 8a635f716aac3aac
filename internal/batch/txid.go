package batch

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/canbulut/fxbatch/internal/models"
	"github.com/google/uuid"
)

// TransactionIDFunc computes the transaction identifier for a parsed request.
type TransactionIDFunc func(req models.ConversionRequest) string

// RandomTransactionID returns a unique identifier for each call. This is the canonical
// scheme: two distinct logical requests with identical inputs get distinct ids.
func RandomTransactionID(models.ConversionRequest) string {
	return "BATCH-" + uuid.NewString()
}

// LegacyTransactionID derives a deterministic id from the currency pair, amount and a
// minute-granularity time bucket. Useful for idempotent re-submission of the same file,
// but it collides for genuinely distinct requests with identical inputs inside one
// bucket, so it is not the default.
func LegacyTransactionID(req models.ConversionRequest) string {
	now := time.Now()
	bucket := fmt.Sprintf("%04d%02d%02d%02d%02d",
		now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute())
	seed := fmt.Sprintf("%s-%s-%s-%s",
		req.SourceCurrency, req.TargetCurrency, req.SourceAmount.String(), bucket)
	sum := md5.Sum([]byte(seed))
	return "BATCH-" + strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}
