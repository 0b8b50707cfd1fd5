package dataset

import (
	"context"
	"time"

	"github.com/sahtee/admin/pkg/adminsdk"
)

// WarmUp waits delay, then loads entity unless its dataset is already
// ready. An organic load in flight is joined, not duplicated. Cancelling
// ctx before the delay elapses skips the load entirely.
func WarmUp(ctx context.Context, cache *Cache, entity adminsdk.EntityType, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if cache.State(entity) == StateReady {
		return nil
	}

	_, err := cache.Load(ctx, entity)
	return err
}
