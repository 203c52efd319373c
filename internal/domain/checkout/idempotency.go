package checkout

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewIdempotencyKey returns "<unix-millis>-<8 hex chars>". Two calls never
// share a key, even for identical bookings.
func NewIdempotencyKey() string {
	return newIdempotencyKey(time.Now())
}

func newIdempotencyKey(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}
