package ocr

import (
	"context"
	"time"
)

const baseBackoff = 200 * time.Millisecond

// backoff sleeps 200ms, 400ms, 800ms... for attempt 1, 2, 3...
// honoring context cancellation.
func backoff(ctx context.Context, attempt int) error {
	d := baseBackoff << (attempt - 1)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
