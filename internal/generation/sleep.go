package generation

import (
	"context"
	"fmt"
	"time"

	"imagine/internal/domain"
)

// Sleep waits for d or until ctx is done. Early returns wrap
// domain.ErrCancelled together with the context error.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
