package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SendError is returned when every delivery attempt for a message failed.
// Err is the cause of the last attempt.
type SendError struct {
	Recipient string
	Attempts  int
	Err       error
}

// Error implements the error interface.
func (e *SendError) Error() string {
	return fmt.Sprintf("sending to %s failed after %d attempt(s): %v", RedactEmail(e.Recipient), e.Attempts, e.Err)
}

// Unwrap returns the last underlying cause.
func (e *SendError) Unwrap() error {
	return e.Err
}

// RetryingSender retries a Sender with a fixed pause between attempts. Every
// error is retried; there is no permanent-failure class.
type RetryingSender struct {
	next        Sender
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// RetryOption configures a RetryingSender.
type RetryOption func(*RetryingSender)

// WithSleepFunc overrides the wait between attempts. Intended for tests.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *RetryingSender) { r.sleep = fn }
}

// WithRetryLogger sets the logger used for per-attempt warnings.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *RetryingSender) { r.logger = logger }
}

// NewRetryingSender wraps next. maxAttempts below 1 is treated as 1.
func NewRetryingSender(next Sender, maxAttempts int, backoff time.Duration, opts ...RetryOption) *RetryingSender {
	r := &RetryingSender{
		next:        next,
		maxAttempts: max(maxAttempts, 1),
		backoff:     backoff,
		sleep:       sleepContext,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send implements Sender. On final failure it returns a *SendError. A
// cancelled context stops the wait and ends the retries early.
func (r *RetryingSender) Send(ctx context.Context, msg Message) error {
	var lastErr error
	attempts := 0
	for attempts < r.maxAttempts {
		attempts++
		lastErr = r.next.Send(ctx, msg)
		if lastErr == nil {
			return nil
		}

		r.logger.WarnContext(ctx, "send attempt failed",
			"recipient", RedactEmail(msg.To),
			"attempt", attempts,
			"max_attempts", r.maxAttempts,
			"error", lastErr,
		)

		if attempts == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, r.backoff); err != nil {
			lastErr = fmt.Errorf("%w (retry wait aborted: %v)", lastErr, err)
			break
		}
	}
	return &SendError{Recipient: msg.To, Attempts: attempts, Err: lastErr}
}

// SendWithRetry sends msg through sender, retrying up to maxAttempts times
// with a fixed backoff.
func SendWithRetry(ctx context.Context, sender Sender, msg Message, maxAttempts int, backoff time.Duration) error {
	return NewRetryingSender(sender, maxAttempts, backoff).Send(ctx, msg)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
