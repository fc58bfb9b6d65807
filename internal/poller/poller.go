package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"translator/internal/logger"
)

// Clock abstracts wall-clock reads and interval sleeps.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poller runs poll sessions with a fixed timing policy. A Poller holds no
// per-session state and can run any number of sessions concurrently.
type Poller struct {
	config    Config
	clock     Clock
	observers []func(Event)
	failures  map[Status]struct{}
	log       zerolog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithConfig replaces the whole timing policy.
func WithConfig(config Config) Option {
	return func(p *Poller) {
		p.config = config
	}
}

// WithMaxWait sets the total wall-clock budget of a session.
func WithMaxWait(d time.Duration) Option {
	return func(p *Poller) {
		p.config.MaxWait = d
	}
}

// WithInterval sets the delay between status checks.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.config.Interval = d
	}
}

// WithCheckTimeout bounds each individual status check.
func WithCheckTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.config.CheckTimeout = d
	}
}

// WithClock overrides the clock used for elapsed time and sleeps.
func WithClock(clock Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithObserver registers a progress callback. Callbacks run synchronously on
// the polling goroutine.
func WithObserver(fn func(Event)) Option {
	return func(p *Poller) {
		if fn != nil {
			p.observers = append(p.observers, fn)
		}
	}
}

// WithFailureStatuses adds provider-specific values to the failure terminal set.
func WithFailureStatuses(statuses ...Status) Option {
	return func(p *Poller) {
		for _, s := range statuses {
			p.failures[s] = struct{}{}
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Poller) {
		p.log = log
	}
}

// New creates a Poller. It fails with ErrConfiguration when MaxWait or
// Interval is not positive.
func New(opts ...Option) (*Poller, error) {
	const op = "New"

	p := &Poller{
		config: DefaultConfig(),
		clock:  realClock{},
		failures: map[Status]struct{}{
			StatusFailed:    {},
			StatusCancelled: {},
		},
		log: logger.WithComponent("poller"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.config.MaxWait <= 0 {
		return nil, NewPollError(op, ErrConfiguration, fmt.Sprintf("max wait must be positive, got %s", p.config.MaxWait))
	}
	if p.config.Interval <= 0 {
		return nil, NewPollError(op, ErrConfiguration, fmt.Sprintf("interval must be positive, got %s", p.config.Interval))
	}
	if p.config.CheckTimeout < 0 {
		return nil, NewPollError(op, ErrConfiguration, fmt.Sprintf("check timeout must not be negative, got %s", p.config.CheckTimeout))
	}
	if p.config.Interval >= p.config.MaxWait {
		p.log.Warn().
			Dur("interval", p.config.Interval).
			Dur("max_wait", p.config.MaxWait).
			Msg("Poll interval is not smaller than the maximum wait; at most one check will run")
	}

	return p, nil
}

// Config returns the timing policy in effect.
func (p *Poller) Config() Config {
	return p.config
}

// WaitForCompletion runs a single poll session with the given options.
func WaitForCompletion(ctx context.Context, check CheckFunc, opts ...Option) (*Operation, error) {
	p, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx, check)
}

// Watch runs a poll session in the background and streams its progress.
// The channel receives one event per status check and is closed after the
// final event (Done set). Canceling ctx tears the session down.
func Watch(ctx context.Context, check CheckFunc, opts ...Option) (<-chan Event, error) {
	events := make(chan Event, 1)
	send := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	p, err := New(append(append([]Option{}, opts...), WithObserver(send))...)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(events)
		_, _ = p.Wait(ctx, check)
	}()

	return events, nil
}

// Wait polls check until the job reaches a terminal state, the session
// budget runs out, or ctx is canceled.
func (p *Poller) Wait(ctx context.Context, check CheckFunc) (*Operation, error) {
	const op = "Wait"

	if check == nil {
		return nil, NewPollError(op, ErrConfiguration, "status check is required")
	}

	start := p.clock.Now()
	var last *Operation
	attempt := 0
	warned := make(map[Status]struct{})

	for {
		elapsed := p.clock.Now().Sub(start)
		if elapsed >= p.config.MaxWait {
			timeoutErr := &TimeoutError{Elapsed: elapsed, LastObserved: last}
			p.log.Warn().
				Int("attempts", attempt).
				Dur("elapsed", elapsed).
				Str("last_status", lastStatus(last)).
				Msg("Operation did not reach a terminal state in time")
			p.emit(Event{Attempt: attempt, Elapsed: elapsed, Operation: last, Err: timeoutErr, Done: true})
			return nil, timeoutErr
		}

		if err := p.clock.Sleep(ctx, p.config.Interval); err != nil {
			return nil, p.canceled(ctx, op, attempt, start, last)
		}

		attempt++
		observed, err := p.check(ctx, check)
		elapsed = p.clock.Now().Sub(start)

		if err != nil {
			if ctx.Err() != nil {
				return nil, p.canceled(ctx, op, attempt, start, last)
			}
			if IsTransient(err) {
				p.log.Warn().
					Err(err).
					Int("attempt", attempt).
					Dur("elapsed", elapsed).
					Msg("Transient status check failure, retrying")
				p.emit(Event{Attempt: attempt, Elapsed: elapsed, Err: err})
				continue
			}
			fatal := WrapPollError(op, err, fmt.Sprintf("status check %d failed", attempt))
			p.emit(Event{Attempt: attempt, Elapsed: elapsed, Operation: last, Err: fatal, Done: true})
			return nil, fatal
		}

		if observed == nil {
			fatal := NewPollError(op, ErrNilOperation, fmt.Sprintf("status check %d", attempt))
			p.emit(Event{Attempt: attempt, Elapsed: elapsed, Operation: last, Err: fatal, Done: true})
			return nil, fatal
		}
		last = observed

		if observed.Status == StatusSucceeded {
			p.log.Info().
				Str("operation_id", observed.ID).
				Int("attempts", attempt).
				Dur("elapsed", elapsed).
				Msg("Operation succeeded")
			p.emit(Event{Attempt: attempt, Elapsed: elapsed, Operation: observed, Done: true})
			return observed, nil
		}

		if _, failed := p.failures[observed.Status]; failed {
			jobErr := &JobFailedError{Operation: observed, Status: observed.Status, Message: observed.Error}
			p.log.Error().
				Str("operation_id", observed.ID).
				Str("status", string(observed.Status)).
				Str("reason", observed.Error).
				Msg("Operation failed")
			p.emit(Event{Attempt: attempt, Elapsed: elapsed, Operation: observed, Err: jobErr, Done: true})
			return nil, jobErr
		}

		if _, known := knownStatuses[observed.Status]; !known {
			if _, seen := warned[observed.Status]; !seen {
				warned[observed.Status] = struct{}{}
				p.log.Warn().
					Str("operation_id", observed.ID).
					Str("status", string(observed.Status)).
					Msg("Unrecognized operation status, treating as in progress")
			}
		}

		p.log.Debug().
			Str("operation_id", observed.ID).
			Str("status", string(observed.Status)).
			Int("attempt", attempt).
			Dur("elapsed", elapsed).
			Msg("Operation still in progress")
		p.emit(Event{Attempt: attempt, Elapsed: elapsed, Operation: observed})
	}
}

func (p *Poller) check(ctx context.Context, check CheckFunc) (*Operation, error) {
	if p.config.CheckTimeout <= 0 {
		return check(ctx)
	}
	checkCtx, cancel := context.WithTimeout(ctx, p.config.CheckTimeout)
	defer cancel()
	return check(checkCtx)
}

func (p *Poller) canceled(ctx context.Context, op string, attempt int, start time.Time, last *Operation) error {
	err := NewPollError(op, ctx.Err(), "poll session canceled")
	p.log.Info().
		Int("attempts", attempt).
		Str("last_status", lastStatus(last)).
		Msg("Poll session canceled")
	p.emit(Event{Attempt: attempt, Elapsed: p.clock.Now().Sub(start), Operation: last, Err: err, Done: true})
	return err
}

func (p *Poller) emit(ev Event) {
	for _, fn := range p.observers {
		fn(ev)
	}
}

func lastStatus(op *Operation) string {
	if op == nil {
		return "unknown"
	}
	return string(op.Status)
}
