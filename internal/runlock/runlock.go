// Package runlock keeps two processes from running the greeting pass for the
// same date at once, and records each guarded run in a history store.
package runlock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"greetbot/internal/run"
	"greetbot/internal/types"
)

// JobType is the history job type and the lock key prefix.
const JobType = "greetings"

// Key is the lock key for date.
func Key(date types.Date) string {
	return JobType + ":" + date.String()
}

// Release gives a held lock back.
type Release func(ctx context.Context) error

// Locker acquires named locks with a TTL. Acquire returns an AppError with
// ErrCodeLockUnavailable when another holder has the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// History stores one row per guarded run.
type History interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, jobErr error) error
}

// Nop is a Locker that always succeeds. Used when no lock backend is
// configured; the run controller still rejects overlapping runs in-process.
type Nop struct{}

// Acquire implements Locker.
func (Nop) Acquire(context.Context, string, time.Duration) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// Guard wraps a run with a cross-process lock and optional history.
type Guard struct {
	locker  Locker
	history History
	ttl     time.Duration
	logger  *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithHistory records each guarded run.
func WithHistory(h History) GuardOption {
	return func(g *Guard) { g.history = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard creates a Guard. A nil locker means Nop.
func NewGuard(locker Locker, ttl time.Duration, opts ...GuardOption) *Guard {
	if locker == nil {
		locker = Nop{}
	}
	g := &Guard{locker: locker, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run acquires the lock for date, runs fn and releases the lock. When the
// lock is held elsewhere fn is not called and the Result carries the lock
// error.
func (g *Guard) Run(ctx context.Context, date types.Date, fn func(ctx context.Context) run.Result) run.Result {
	key := Key(date)
	release, err := g.locker.Acquire(ctx, key, g.ttl)
	if err != nil {
		g.logger.WarnContext(ctx, "run lock not acquired", "lock_key", key, "error", err)
		return run.Result{Date: date, State: run.StateFailed, Err: err}
	}
	defer func() {
		// The caller's context may already be done; release must still go out.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			g.logger.WarnContext(ctx, "failed to release run lock", "lock_key", key, "error", err)
		}
	}()

	var historyID int64
	if g.history != nil {
		if historyID, err = g.history.Start(ctx, JobType); err != nil {
			g.logger.WarnContext(ctx, "failed to start run history", "error", err)
			historyID = 0
		}
	}

	res := fn(ctx)

	if g.history != nil && historyID != 0 {
		err := g.history.Finish(context.WithoutCancel(ctx), historyID, string(res.Status()), len(res.Totals().Sent), res.Err)
		if err != nil {
			g.logger.WarnContext(ctx, "failed to finish run history", "history_id", historyID, "error", err)
		}
	}
	return res
}

// lockUnavailable is the error every Locker returns for a held lock.
func lockUnavailable(key string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeLockUnavailable, "run lock is held by another process", err,
		map[string]any{"lock_key": key})
}

// newOwnerID identifies this process as a lock holder.
func newOwnerID() string {
	return uuid.NewString()
}
