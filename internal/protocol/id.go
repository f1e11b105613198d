package protocol

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

var requestCounter atomic.Uint64

// NewRequestID returns a correlation id that is never reused within the
// process: a monotonic counter joined with a random token.
func NewRequestID() string {
	n := requestCounter.Add(1)
	return strconv.FormatUint(n, 36) + "-" + uuid.NewString()
}
