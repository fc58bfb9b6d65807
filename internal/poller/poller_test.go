package poller

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeClock advances virtual time on every Sleep instead of blocking.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// scriptedCheck replays a fixed sequence of results and counts calls.
type scriptedCheck struct {
	mu      sync.Mutex
	results []checkResult
	calls   int
}

type checkResult struct {
	op  *Operation
	err error
}

func (s *scriptedCheck) check(context.Context) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	r := s.results[idx]
	return r.op, r.err
}

func (s *scriptedCheck) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func statusOp(status Status) *Operation {
	return &Operation{ID: "op-1", Status: status}
}

func quiet() Option {
	return WithLogger(zerolog.Nop())
}

func TestWaitReturnsSucceededOperation(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	final := &Operation{ID: "op-1", Status: StatusSucceeded, Payload: json.RawMessage(`{"status":"Succeeded"}`)}
	script := &scriptedCheck{results: []checkResult{
		{op: statusOp(StatusRunning)},
		{op: statusOp(StatusRunning)},
		{op: final},
	}}

	got, err := WaitForCompletion(context.Background(), script.check,
		WithClock(clock), WithInterval(10*time.Millisecond), WithMaxWait(time.Second), quiet())

	require.NoError(t, err)
	assert.Same(t, final, got)
	assert.Equal(t, 3, script.count())
	assert.Equal(t, 30*time.Millisecond, clock.Now().Sub(start))
}

func TestWaitSucceedsAfterManyNonTerminalReads(t *testing.T) {
	results := []checkResult{
		{op: statusOp(StatusNotStarted)},
		{op: statusOp(StatusNotStarted)},
	}
	for i := 0; i < 20; i++ {
		results = append(results, checkResult{op: statusOp(StatusRunning)})
	}
	results = append(results, checkResult{op: statusOp(StatusCancelling)}, checkResult{op: statusOp(StatusSucceeded)})
	script := &scriptedCheck{results: results}

	got, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Hour), quiet())

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, len(results), script.count())
}

func TestWaitFailsFastOnFailureStatuses(t *testing.T) {
	for _, terminal := range []Status{StatusFailed, StatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			failed := &Operation{ID: "op-1", Status: terminal, Error: "source document is encrypted"}
			script := &scriptedCheck{results: []checkResult{
				{op: statusOp(StatusRunning)},
				{op: failed},
				{op: statusOp(StatusSucceeded)},
			}}

			got, err := WaitForCompletion(context.Background(), script.check,
				WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute), quiet())

			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrJobFailed)

			var jobErr *JobFailedError
			require.ErrorAs(t, err, &jobErr)
			assert.Equal(t, terminal, jobErr.Status)
			assert.Contains(t, err.Error(), "source document is encrypted")
			assert.Equal(t, 2, script.count(), "no check may run after a failure status")
		})
	}
}

func TestWaitTimesOutWithinBudget(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	running := &Operation{ID: "op-1", Status: StatusRunning, Payload: json.RawMessage(`{"status":"Running"}`)}
	script := &scriptedCheck{results: []checkResult{{op: running}}}
	maxWait := 100 * time.Millisecond
	interval := 10 * time.Millisecond

	got, err := WaitForCompletion(context.Background(), script.check,
		WithClock(clock), WithInterval(interval), WithMaxWait(maxWait), quiet())

	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrTimeout)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Same(t, running, timeoutErr.LastObserved)
	assert.Contains(t, err.Error(), `last status: {"status":"Running"}`)

	elapsed := clock.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, maxWait)
	assert.LessOrEqual(t, elapsed, maxWait+interval)
	assert.Equal(t, 10, script.count())
}

func TestWaitRetriesTransientErrors(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection reset")}
	script := &scriptedCheck{results: []checkResult{
		{err: netErr},
		{op: statusOp(StatusSucceeded)},
	}}

	got, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute), quiet())

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 2, script.count())
}

func TestWaitTransientErrorsDoNotExtendDeadline(t *testing.T) {
	script := &scriptedCheck{results: []checkResult{{err: Transient(errors.New("throttled"))}}}

	_, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(5*time.Second), quiet())

	require.ErrorIs(t, err, ErrTimeout)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Nil(t, timeoutErr.LastObserved)
	assert.Contains(t, err.Error(), "last status: unknown")
	assert.Equal(t, 5, script.count())
}

func TestWaitPropagatesFatalCheckErrors(t *testing.T) {
	boom := errors.New("401 unauthorized")
	script := &scriptedCheck{results: []checkResult{{err: boom}, {op: statusOp(StatusSucceeded)}}}

	_, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute), quiet())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, script.count())
}

func TestWaitFailsFastOnCertificateErrors(t *testing.T) {
	untrusted := &url.Error{
		Op:  "Get",
		URL: "https://translator.example.com/batches/1",
		Err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}},
	}
	script := &scriptedCheck{results: []checkResult{{err: untrusted}, {op: statusOp(StatusSucceeded)}}}

	_, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(30*time.Second), quiet())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	var certErr *tls.CertificateVerificationError
	assert.ErrorAs(t, err, &certErr)
	assert.Equal(t, 1, script.count())
}

func TestWaitRejectsNilOperation(t *testing.T) {
	script := &scriptedCheck{results: []checkResult{{}}}

	_, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute), quiet())

	assert.ErrorIs(t, err, ErrNilOperation)
}

func TestWaitKeepsPollingUnrecognizedStatus(t *testing.T) {
	script := &scriptedCheck{results: []checkResult{
		{op: statusOp("Validating")},
		{op: statusOp("Validating")},
		{op: statusOp(StatusSucceeded)},
	}}

	got, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute), quiet())

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 3, script.count())
}

func TestWithFailureStatusesExtendsTerminalSet(t *testing.T) {
	script := &scriptedCheck{results: []checkResult{
		{op: &Operation{ID: "op-1", Status: "ValidationFailed", Error: "container not found"}},
	}}

	_, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute),
		WithFailureStatuses("ValidationFailed"), quiet())

	var jobErr *JobFailedError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, Status("ValidationFailed"), jobErr.Status)
	assert.Equal(t, 1, script.count())
}

func TestNewRejectsInvalidTiming(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "zero max wait", opts: []Option{WithMaxWait(0)}},
		{name: "negative max wait", opts: []Option{WithMaxWait(-time.Second)}},
		{name: "zero interval", opts: []Option{WithInterval(0)}},
		{name: "negative check timeout", opts: []Option{WithCheckTimeout(-time.Second)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(append(tt.opts, quiet())...)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	p, err := New(quiet())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, p.Config().MaxWait)
	assert.Equal(t, 3*time.Second, p.Config().Interval)
}

func TestWaitStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	check := func(context.Context) (*Operation, error) {
		calls++
		cancel()
		return statusOp(StatusRunning), nil
	}

	_, err := WaitForCompletion(ctx, check,
		WithInterval(time.Millisecond), WithMaxWait(time.Minute), quiet())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWaitTreatsCheckTimeoutAsTransient(t *testing.T) {
	calls := 0
	check := func(ctx context.Context) (*Operation, error) {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return statusOp(StatusSucceeded), nil
	}

	got, err := WaitForCompletion(context.Background(), check,
		WithInterval(time.Millisecond), WithMaxWait(5*time.Second), WithCheckTimeout(5*time.Millisecond), quiet())

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 2, calls)
}

func TestObserverReceivesOrderedEvents(t *testing.T) {
	var events []Event
	transient := Transient(errors.New("blip"))
	script := &scriptedCheck{results: []checkResult{
		{op: statusOp(StatusNotStarted)},
		{err: transient},
		{op: statusOp(StatusRunning)},
		{op: statusOp(StatusSucceeded)},
	}}

	_, err := WaitForCompletion(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute),
		WithObserver(func(ev Event) { events = append(events, ev) }), quiet())
	require.NoError(t, err)

	require.Len(t, events, 4)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Attempt)
		assert.Equal(t, time.Duration(i+1)*time.Second, ev.Elapsed)
	}
	assert.Equal(t, StatusNotStarted, events[0].Operation.Status)
	assert.ErrorIs(t, events[1].Err, transient)
	assert.Nil(t, events[1].Operation)
	assert.False(t, events[2].Done)
	assert.True(t, events[3].Done)
	assert.Equal(t, StatusSucceeded, events[3].Operation.Status)
}

func TestWatchStreamsUntilTerminalEvent(t *testing.T) {
	script := &scriptedCheck{results: []checkResult{
		{op: statusOp(StatusRunning)},
		{op: &Operation{ID: "op-1", Status: StatusFailed, Error: "unsupported format"}},
	}}

	events, err := Watch(context.Background(), script.check,
		WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute), quiet())
	require.NoError(t, err)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.False(t, got[0].Done)
	assert.True(t, got[1].Done)
	assert.ErrorIs(t, got[1].Err, ErrJobFailed)
}

func TestWatchLeavesCallerOptionsUntouched(t *testing.T) {
	opts := make([]Option, 0, 8)
	opts = append(opts, WithClock(newFakeClock()), WithInterval(time.Second), WithMaxWait(time.Minute), quiet())

	for i := 0; i < 2; i++ {
		script := &scriptedCheck{results: []checkResult{{op: statusOp(StatusSucceeded)}}}
		events, err := Watch(context.Background(), script.check, opts...)
		require.NoError(t, err)

		var got []Event
		for ev := range events {
			got = append(got, ev)
		}
		require.Len(t, got, 1, "run %d", i)
	}

	assert.Len(t, opts, 4)
	for _, spare := range opts[len(opts):cap(opts)] {
		assert.Nil(t, spare)
	}
}

func TestWatchRejectsInvalidConfig(t *testing.T) {
	_, err := Watch(context.Background(), (&scriptedCheck{}).check, WithInterval(0), quiet())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	p, err := New(WithInterval(time.Millisecond), WithMaxWait(5*time.Second), quiet())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			script := &scriptedCheck{results: make([]checkResult, 0, n+1)}
			for j := 0; j < n; j++ {
				script.results = append(script.results, checkResult{op: statusOp(StatusRunning)})
			}
			script.results = append(script.results, checkResult{op: statusOp(StatusSucceeded)})

			_, err := p.Wait(context.Background(), script.check)
			assert.NoError(t, err)
			assert.Equal(t, n+1, script.count())
		}(i)
	}
	wg.Wait()
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("bad request"), want: false},
		{name: "marked", err: Transient(errors.New("x")), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "aborted", err: context.Canceled, want: true},
		{name: "net op", err: &net.OpError{Op: "read", Err: errors.New("reset")}, want: true},
		{name: "url error", err: &url.Error{Op: "Get", URL: "https://x", Err: &net.DNSError{Err: "no such host"}}, want: true},
		{name: "url connection refused", err: &url.Error{Op: "Get", URL: "https://x", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, want: true},
		{name: "url client timeout", err: &url.Error{Op: "Get", URL: "https://x", Err: context.DeadlineExceeded}, want: true},
		{name: "url unsupported scheme", err: &url.Error{Op: "Get", URL: "ftp://x", Err: errors.New(`unsupported protocol scheme "ftp"`)}, want: false},
		{name: "url plain cause", err: &url.Error{Op: "Get", URL: "https://x", Err: errors.New("http: server gave HTTP response to HTTPS client")}, want: false},
		{name: "url unknown authority", err: &url.Error{Op: "Get", URL: "https://x", Err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}}, want: false},
		{name: "url hostname mismatch", err: &url.Error{Op: "Get", URL: "https://x", Err: x509.HostnameError{Host: "x"}}, want: false},
		{name: "url tls record header", err: &url.Error{Op: "Get", URL: "https://x", Err: tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}}, want: false},
		{name: "expired certificate", err: x509.CertificateInvalidError{Reason: x509.Expired}, want: false},
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "down"), want: true},
		{name: "grpc invalid argument", err: status.Error(codes.InvalidArgument, "bad"), want: false},
		{name: "googleapi 503", err: &googleapi.Error{Code: 503}, want: true},
		{name: "googleapi 429", err: &googleapi.Error{Code: 429}, want: true},
		{name: "googleapi 403", err: &googleapi.Error{Code: 403}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
