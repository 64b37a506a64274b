// Package run orchestrates one end-to-end greeting pass: load the roster,
// then for each occasion kind in turn load its data, match candidates and
// dispatch them. A data-load failure stops the whole run; individual send
// failures never do.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"greetbot/internal/types"

	"github.com/google/uuid"
)

// State is a step of the run state machine:
// Idle → LoadingData → Matching → Dispatching → (next kind) … → Done | Failed.
type State string

const (
	StateIdle        State = "idle"
	StateLoadingData State = "loading_data"
	StateMatching    State = "matching"
	StateDispatching State = "dispatching"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// DataSource loads the read-only tables. Every call reads fresh.
type DataSource interface {
	Roster(ctx context.Context) ([]types.RosterEntry, error)
	Festivals(ctx context.Context) ([]types.FestivalEntry, error)
	CustomMessages(ctx context.Context) ([]types.CustomMessage, error)
}

// Matcher produces the candidates of one occasion kind.
type Matcher interface {
	MatchKind(kind types.OccasionKind, today types.Date, roster []types.RosterEntry, festivals []types.FestivalEntry, customs []types.CustomMessage) ([]types.Candidate, error)
}

// Dispatcher delivers candidates and reports per-candidate outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, date types.Date, candidates []types.Candidate, chunkSize int) types.DispatchReport
}

// Metrics receives per-cycle and per-run telemetry.
type Metrics interface {
	RecordReport(ctx context.Context, kind types.OccasionKind, report types.DispatchReport)
	RecordRun(ctx context.Context, duration time.Duration, status Status)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock with the system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Controller runs greeting passes. It is safe for concurrent use; a second
// Run while one is in progress fails immediately instead of overlapping.
type Controller struct {
	data       DataSource
	matcher    Matcher
	dispatcher Dispatcher
	chunkSize  int
	loc        *time.Location
	clock      Clock
	metrics    Metrics
	logger     *slog.Logger

	running sync.Mutex
	mu      sync.Mutex
	state   State
}

// Config holds the controller's tunables.
type Config struct {
	ChunkSize int
	// Location defines "today". UTC when nil.
	Location *time.Location
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithMetrics registers a telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(ctl *Controller) { ctl.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ctl *Controller) {
		if logger != nil {
			ctl.logger = logger
		}
	}
}

// NewController wires a Controller.
func NewController(data DataSource, matcher Matcher, dispatcher Dispatcher, cfg Config, opts ...Option) *Controller {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	c := &Controller{
		data:       data,
		matcher:    matcher,
		dispatcher: dispatcher,
		chunkSize:  max(cfg.ChunkSize, 1),
		loc:        loc,
		clock:      RealClock{},
		logger:     slog.Default(),
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Today is the current calendar date in the controller's location.
func (c *Controller) Today() types.Date {
	return types.NewDate(c.clock.Now().In(c.loc))
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(ctx context.Context, to State, attrs ...any) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.logger.DebugContext(ctx, "run state changed", append([]any{"from", from, "to", to}, attrs...)...)
}

// Run performs one pass for today. It never panics and never returns an
// error: the outcome, including a failure, is in the Result.
func (c *Controller) Run(ctx context.Context, today types.Date) (res Result) {
	res = Result{
		RunID:   uuid.NewString(),
		Date:    today,
		Reports: make(map[types.OccasionKind]types.DispatchReport),
	}

	if !c.running.TryLock() {
		res.State = StateFailed
		res.Err = types.NewAppError(types.ErrCodeLockUnavailable, "a run is already in progress", nil)
		c.logger.WarnContext(ctx, "run rejected: another run in progress", "date", today.String())
		return res
	}
	defer c.running.Unlock()

	ctx = types.WithRunID(ctx, res.RunID)
	start := c.clock.Now()
	logger := c.logger.With("run_id", res.RunID, "date", today.String())

	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "run panicked", "panic", p, "stack", string(debug.Stack()))
			res.Err = types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("run panicked: %v", p), nil)
			res.State = StateFailed
			c.transition(ctx, StateFailed)
		}
		res.Duration = c.clock.Now().Sub(start)
		if c.metrics != nil {
			c.metrics.RecordRun(ctx, res.Duration, res.Status())
		}
		c.transition(ctx, StateIdle)
	}()

	logger.InfoContext(ctx, "run started")

	if err := c.run(ctx, today, &res); err != nil {
		res.State = StateFailed
		res.Err = err
		c.transition(ctx, StateFailed)
		logger.ErrorContext(ctx, "run failed", "error", err, "completed_cycles", len(res.Reports))
		return res
	}

	res.State = StateDone
	c.transition(ctx, StateDone)
	logger.InfoContext(ctx, "run finished", "summary", res.Summary())
	return res
}

// run executes the cycles in order, storing each completed report in res.
func (c *Controller) run(ctx context.Context, today types.Date, res *Result) error {
	c.transition(ctx, StateLoadingData, "table", "roster")
	roster, err := c.data.Roster(ctx)
	if err != nil {
		return withOccasion(err, types.OccasionBirthday)
	}

	var (
		festivals []types.FestivalEntry
		customs   []types.CustomMessage
	)

	for _, kind := range types.AllOccasionKinds {
		switch kind {
		case types.OccasionFestival:
			c.transition(ctx, StateLoadingData, "occasion", kind)
			if festivals, err = c.data.Festivals(ctx); err != nil {
				return withOccasion(err, kind)
			}
		case types.OccasionCustom:
			c.transition(ctx, StateLoadingData, "occasion", kind)
			if customs, err = c.data.CustomMessages(ctx); err != nil {
				return withOccasion(err, kind)
			}
		}

		c.transition(ctx, StateMatching, "occasion", kind)
		candidates, err := c.matcher.MatchKind(kind, today, roster, festivals, customs)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("matching %s", kind), err)
		}

		c.transition(ctx, StateDispatching, "occasion", kind, "candidates", len(candidates))
		report := c.dispatcher.Dispatch(ctx, today, candidates, c.chunkSize)
		res.Reports[kind] = report

		c.logger.InfoContext(ctx, "occasion cycle complete",
			"occasion", kind,
			"sent", len(report.Sent),
			"skipped", len(report.Skipped),
			"failed", len(report.Failed),
		)
		if c.metrics != nil {
			c.metrics.RecordReport(ctx, kind, report)
		}
	}
	return nil
}

// Preview loads the tables and returns every candidate due today without
// sending anything or touching the send log.
func (c *Controller) Preview(ctx context.Context, today types.Date) ([]types.Candidate, error) {
	roster, err := c.data.Roster(ctx)
	if err != nil {
		return nil, err
	}
	festivals, err := c.data.Festivals(ctx)
	if err != nil {
		return nil, withOccasion(err, types.OccasionFestival)
	}
	customs, err := c.data.CustomMessages(ctx)
	if err != nil {
		return nil, withOccasion(err, types.OccasionCustom)
	}

	var all []types.Candidate
	for _, kind := range types.AllOccasionKinds {
		cands, err := c.matcher.MatchKind(kind, today, roster, festivals, customs)
		if err != nil {
			return nil, err
		}
		all = append(all, cands...)
	}
	return all, nil
}

// withOccasion tags a DataLoadError with the cycle it aborted. Other errors
// are wrapped into one.
func withOccasion(err error, kind types.OccasionKind) error {
	var dle *types.DataLoadError
	if errors.As(err, &dle) {
		tagged := *dle
		if tagged.Occasion == "" {
			tagged.Occasion = kind
		}
		return &tagged
	}
	return &types.DataLoadError{Table: string(kind), Occasion: kind, Err: err}
}
