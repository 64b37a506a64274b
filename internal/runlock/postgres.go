package runlock

import (
	"context"
	"time"
)

// lockRepository is satisfied by *db.JobLockRepository.
type lockRepository interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// PostgresLocker implements Locker over the job_locks table. An expired lock
// is reclaimed by the next Acquire.
type PostgresLocker struct {
	repo  lockRepository
	owner string
}

// NewPostgresLocker creates a PostgresLocker with a fresh owner ID.
func NewPostgresLocker(repo lockRepository) *PostgresLocker {
	return &PostgresLocker{repo: repo, owner: newOwnerID()}
}

// Acquire implements Locker.
func (l *PostgresLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	ok, err := l.repo.Acquire(ctx, key, l.owner, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, lockUnavailable(key, nil)
	}
	return func(ctx context.Context) error {
		return l.repo.Release(ctx, key, l.owner)
	}, nil
}
