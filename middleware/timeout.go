package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/camber-run/camber/job"
)

// Timeout returns middleware that enforces a per-job execution
// deadline. A non-positive duration makes it a pass-through. The
// deadline is independent of the lock lifetime: the watchdog guards
// the lease, this guards wall-clock runtime.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d > 0 {
			logger.Debug("job deadline set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
