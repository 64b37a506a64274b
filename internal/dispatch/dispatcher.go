package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"greetbot/internal/ledger"
	"greetbot/internal/mailer"
	"greetbot/internal/types"

	"golang.org/x/sync/errgroup"
)

// FailedSend describes one candidate whose delivery failed for good in this
// run.
type FailedSend struct {
	RunID        string             `json:"run_id,omitempty"`
	Date         string             `json:"date"`
	OccasionKind types.OccasionKind `json:"occasion_kind"`
	OccasionKey  string             `json:"occasion_key"`
	Recipient    string             `json:"recipient"`
	Subject      string             `json:"subject"`
	Attempts     int                `json:"attempts"`
	Error        string             `json:"error"`
}

// FailureSink receives every final send failure, for example to alert an
// operator. Errors from the sink are logged and otherwise ignored.
type FailureSink interface {
	PublishFailure(ctx context.Context, f FailedSend) error
}

// outcome is the per-candidate result before merging into a report.
type outcome int

const (
	outcomeSent outcome = iota
	outcomeSkipped
	outcomeFailed
)

type result struct {
	outcome outcome
	summary string
}

// Dispatcher runs the check-send-record sequence for each candidate.
type Dispatcher struct {
	sender     mailer.Sender
	ledger     ledger.Ledger
	chunkPause time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	failures   FailureSink
	logger     *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChunkPause sets the wait between chunks.
func WithChunkPause(d time.Duration) Option {
	return func(ds *Dispatcher) { ds.chunkPause = d }
}

// WithSleepFunc overrides the wait between chunks. Intended for tests.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(ds *Dispatcher) { ds.sleep = fn }
}

// WithFailureSink registers a sink for final send failures.
func WithFailureSink(sink FailureSink) Option {
	return func(ds *Dispatcher) { ds.failures = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ds *Dispatcher) {
		if logger != nil {
			ds.logger = logger
		}
	}
}

// New creates a Dispatcher. sender is used as-is: wrap it in a
// mailer.RetryingSender for bounded retries.
func New(sender mailer.Sender, l ledger.Ledger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender: sender,
		ledger: l,
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers candidates for date in chunks of chunkSize. It never
// returns an error: every candidate ends up in exactly one of the report's
// sent, skipped or failed lists, in candidate order.
func (d *Dispatcher) Dispatch(ctx context.Context, date types.Date, candidates []types.Candidate, chunkSize int) types.DispatchReport {
	results := make([]result, len(candidates))
	chunks := Chunk(candidates, chunkSize)

	offset := 0
	for i, chunk := range chunks {
		if i > 0 && d.chunkPause > 0 {
			if err := d.sleep(ctx, d.chunkPause); err != nil {
				d.logger.WarnContext(ctx, "dispatch interrupted between chunks",
					"chunk_index", i,
					"remaining", len(candidates)-offset,
					"error", err,
				)
				for j := offset; j < len(candidates); j++ {
					results[j] = result{outcome: outcomeFailed, summary: fmt.Sprintf("not attempted: %v", err)}
				}
				break
			}
		}

		d.runChunk(ctx, date, chunk, results[offset:offset+len(chunk)])
		d.logger.DebugContext(ctx, "chunk dispatched", "chunk_index", i, "size", len(chunk))
		offset += len(chunk)
	}

	var report types.DispatchReport
	for i, c := range candidates {
		switch r := results[i]; r.outcome {
		case outcomeSent:
			report.Sent = append(report.Sent, c.RecipientEmail)
		case outcomeSkipped:
			report.Skipped = append(report.Skipped, c.RecipientEmail)
		case outcomeFailed:
			report.Failed = append(report.Failed, types.FailedRecipient{
				Email:        c.RecipientEmail,
				OccasionKey:  c.OccasionKey,
				ErrorSummary: r.summary,
			})
		}
	}
	return report
}

// runChunk processes one chunk concurrently and waits for all of it.
// Per-candidate failures, panics included, are recorded in out and never
// abort siblings.
func (d *Dispatcher) runChunk(ctx context.Context, date types.Date, chunk []types.Candidate, out []result) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(chunk))

	for i, c := range chunk {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					d.logger.ErrorContext(gctx, "delivery panicked; candidate failed",
						"occasion_key", c.OccasionKey,
						"recipient", mailer.RedactEmail(c.RecipientEmail),
						"panic", p,
						"stack", string(debug.Stack()),
					)
					out[i] = result{outcome: outcomeFailed, summary: fmt.Sprintf("panic: %v", p)}
				}
			}()
			out[i] = d.deliver(gctx, date, c)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, date types.Date, c types.Candidate) result {
	recipient := mailer.RedactEmail(c.RecipientEmail)

	sent, err := d.ledger.WasSent(ctx, c.RecipientEmail, c.OccasionKey, date)
	if err != nil {
		d.logger.ErrorContext(ctx, "send log check failed; candidate not sent",
			"occasion_key", c.OccasionKey,
			"recipient", recipient,
			"error", err,
		)
		return result{outcome: outcomeFailed, summary: fmt.Sprintf("send log check: %v", err)}
	}
	if sent {
		d.logger.InfoContext(ctx, "already notified; skipping",
			"occasion_key", c.OccasionKey,
			"recipient", recipient,
		)
		return result{outcome: outcomeSkipped}
	}

	msg := mailer.Message{To: c.RecipientEmail, Subject: c.Subject, Body: c.Body}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "notification failed",
			"occasion_key", c.OccasionKey,
			"recipient", recipient,
			"error", err,
		)
		d.publishFailure(ctx, date, c, err)
		return result{outcome: outcomeFailed, summary: err.Error()}
	}

	if err := d.ledger.Record(ctx, c.RecipientEmail, c.OccasionKey, date); err != nil {
		// The mail went out; only the record is missing, so a later run may
		// send it again.
		d.logger.WarnContext(ctx, "notification sent but not recorded",
			"occasion_key", c.OccasionKey,
			"recipient", recipient,
			"error", err,
		)
	}

	d.logger.InfoContext(ctx, "notification sent",
		"occasion_key", c.OccasionKey,
		"recipient", recipient,
	)
	return result{outcome: outcomeSent}
}

func (d *Dispatcher) publishFailure(ctx context.Context, date types.Date, c types.Candidate, sendErr error) {
	if d.failures == nil {
		return
	}
	attempts := 1
	var se *mailer.SendError
	if errors.As(sendErr, &se) {
		attempts = se.Attempts
	}
	f := FailedSend{
		RunID:        types.GetRunID(ctx),
		Date:         date.String(),
		OccasionKind: c.OccasionKind,
		OccasionKey:  c.OccasionKey,
		Recipient:    c.RecipientEmail,
		Subject:      c.Subject,
		Attempts:     attempts,
		Error:        sendErr.Error(),
	}
	if err := d.failures.PublishFailure(ctx, f); err != nil {
		d.logger.WarnContext(ctx, "failed to publish send failure",
			"occasion_key", c.OccasionKey,
			"error", err,
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
