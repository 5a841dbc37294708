package harness

import (
	"context"
	"time"
)

// Settle waits out a settle window: the bounded delay between performing
// an action and asserting its asynchronous effect has (or has not)
// occurred. It returns early only if ctx is cancelled.
func Settle(ctx context.Context, window time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(window):
	}
}
