package mailer

import (
	"context"
	"errors"
	"time"

	"greetbot/internal/types"

	"github.com/sony/gobreaker/v2"
)

// BreakerSender stops calling the transport after a run of consecutive
// failures and fails fast until the breaker half-opens.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSender trips after failures consecutive errors and probes again
// after timeout.
func NewBreakerSender(next Sender, name string, failures uint32, timeout time.Duration) *BreakerSender {
	if failures == 0 {
		failures = 1
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about the transport's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerSender{next: next, breaker: cb}
}

// Send implements Sender. An open breaker yields an upstream_unavailable
// AppError, which the retry layer treats like any other failure.
func (b *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "mail transport circuit open", err)
	}
	return err
}

// State exposes the breaker state for logging.
func (b *BreakerSender) State() gobreaker.State {
	return b.breaker.State()
}
