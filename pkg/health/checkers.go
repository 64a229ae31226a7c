package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// Pinger is satisfied by pgxpool.Pool and sql.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when the underlying connection cannot be
// pinged.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// GoroutineCountCheck reports unhealthy when the goroutine count exceeds the
// threshold, which usually indicates a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}
