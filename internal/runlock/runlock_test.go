package runlock

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greetbot/internal/run"
	"greetbot/internal/types"
)

var day = types.Date{Year: 2024, Month: time.March, Day: 10}

// fakeRepo emulates the job_locks table.
type fakeRepo struct {
	mu         sync.Mutex
	holders    map[string]string
	acquireErr error
	releases   int
}

func (r *fakeRepo) Acquire(_ context.Context, lockID, workerID string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acquireErr != nil {
		return false, r.acquireErr
	}
	if r.holders == nil {
		r.holders = make(map[string]string)
	}
	if _, held := r.holders[lockID]; held {
		return false, nil
	}
	r.holders[lockID] = workerID
	return true, nil
}

func (r *fakeRepo) Release(_ context.Context, lockID, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases++
	if r.holders[lockID] == workerID {
		delete(r.holders, lockID)
	}
	return nil
}

type fakeHistory struct {
	startErr error
	started  []string
	finished []string
	items    []int
	errs     []error
}

func (h *fakeHistory) Start(_ context.Context, jobType string) (int64, error) {
	if h.startErr != nil {
		return 0, h.startErr
	}
	h.started = append(h.started, jobType)
	return int64(len(h.started)), nil
}

func (h *fakeHistory) Finish(_ context.Context, _ int64, status string, items int, jobErr error) error {
	h.finished = append(h.finished, status)
	h.items = append(h.items, items)
	h.errs = append(h.errs, jobErr)
	return nil
}

func succeeded(sent ...string) func(context.Context) run.Result {
	return func(context.Context) run.Result {
		return run.Result{
			Date:    day,
			State:   run.StateDone,
			Reports: map[types.OccasionKind]types.DispatchReport{types.OccasionBirthday: {Sent: sent}},
		}
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "greetings:2024-03-10", Key(day))
}

func TestPostgresLocker_ExclusiveUntilReleased(t *testing.T) {
	repo := &fakeRepo{}
	a := NewPostgresLocker(repo)
	b := NewPostgresLocker(repo)
	ctx := context.Background()

	release, err := a.Acquire(ctx, Key(day), time.Minute)
	require.NoError(t, err)

	_, err = b.Acquire(ctx, Key(day), time.Minute)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeLockUnavailable, types.CodeOf(err))

	require.NoError(t, release(ctx))
	_, err = b.Acquire(ctx, Key(day), time.Minute)
	assert.NoError(t, err)
}

func TestPostgresLocker_RepoError(t *testing.T) {
	repo := &fakeRepo{acquireErr: types.NewAppError(types.ErrCodeInternalDB, "down", nil)}
	_, err := NewPostgresLocker(repo).Acquire(context.Background(), "k", time.Minute)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

func TestRedisLocker_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code types.ErrorCode
	}{
		{"held", redislock.ErrNotObtained, types.ErrCodeLockUnavailable},
		{"unreachable", errors.New("dial tcp: refused"), types.ErrCodeUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &RedisLocker{obtain: func(context.Context, string, time.Duration) (Release, error) {
				return nil, tt.err
			}}
			_, err := l.Acquire(context.Background(), "k", time.Minute)
			assert.Equal(t, tt.code, types.CodeOf(err))
		})
	}
}

func TestRedisLocker_ReleaseIgnoresExpiredLock(t *testing.T) {
	l := &RedisLocker{obtain: func(context.Context, string, time.Duration) (Release, error) {
		return func(context.Context) error { return redislock.ErrLockNotHeld }, nil
	}}
	release, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
}

func TestNewRedisLocker_InvalidURL(t *testing.T) {
	_, _, err := NewRedisLocker(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestGuard_RunsAndRecordsHistory(t *testing.T) {
	repo := &fakeRepo{}
	history := &fakeHistory{}
	g := NewGuard(NewPostgresLocker(repo), time.Minute, WithHistory(history))

	res := g.Run(context.Background(), day, succeeded("a@x.com", "b@x.com"))

	assert.Equal(t, run.StatusSuccess, res.Status())
	assert.Equal(t, []string{JobType}, history.started)
	assert.Equal(t, []string{"success"}, history.finished)
	assert.Equal(t, []int{2}, history.items)
	assert.Equal(t, 1, repo.releases)
	assert.Empty(t, repo.holders)
}

func TestGuard_LockHeldSkipsRun(t *testing.T) {
	repo := &fakeRepo{holders: map[string]string{Key(day): "someone-else"}}
	history := &fakeHistory{}
	var logs bytes.Buffer
	g := NewGuard(NewPostgresLocker(repo), time.Minute,
		WithHistory(history),
		WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
	)

	called := false
	res := g.Run(context.Background(), day, func(context.Context) run.Result {
		called = true
		return run.Result{}
	})

	assert.False(t, called)
	assert.Equal(t, run.StatusFailure, res.Status())
	assert.Equal(t, types.ErrCodeLockUnavailable, types.CodeOf(res.Err))
	assert.Empty(t, history.started)
	assert.Contains(t, logs.String(), "run lock not acquired")
}

func TestGuard_HistoryStartFailureDoesNotBlockRun(t *testing.T) {
	history := &fakeHistory{startErr: errors.New("db down")}
	g := NewGuard(nil, time.Minute, WithHistory(history))

	res := g.Run(context.Background(), day, succeeded("a@x.com"))

	assert.Equal(t, run.StatusSuccess, res.Status())
	assert.Empty(t, history.finished)
}

func TestGuard_RecordsFailure(t *testing.T) {
	history := &fakeHistory{}
	g := NewGuard(Nop{}, time.Minute, WithHistory(history))
	runErr := &types.DataLoadError{Table: "festivals", Occasion: types.OccasionFestival, Err: errors.New("503")}

	res := g.Run(context.Background(), day, func(context.Context) run.Result {
		return run.Result{Date: day, State: run.StateFailed, Err: runErr}
	})

	assert.Equal(t, run.StatusFailure, res.Status())
	assert.Equal(t, []string{"failure"}, history.finished)
	assert.Equal(t, []error{runErr}, history.errs)
}
