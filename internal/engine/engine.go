// Package engine runs the reminder delivery cycle: fetch candidate meetings,
// find due reminders, dispatch them and record them as sent.
//
// A cycle holds no state between runs. The sent flag in the store is the only
// record of delivery, so a reminder whose dispatch fails is simply picked up
// again by the next cycle until its meeting starts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meeting-reminders/internal/lock"
	"meeting-reminders/internal/notify"
	"meeting-reminders/internal/scanner"
	"meeting-reminders/internal/storage"
)

const (
	DefaultInterval        = time.Minute
	DefaultDispatchTimeout = 30 * time.Second
	DefaultConcurrency     = 4

	// commitTimeout bounds recording a delivered reminder as sent. The commit
	// does not inherit cancellation from the cycle.
	commitTimeout = 10 * time.Second
)

// Error kinds attached to log entries.
const (
	kindStoreUnavailable  = "store_unavailable"
	kindDispatchFailed    = "dispatch_failed"
	kindMalformedReminder = "malformed_reminder"
)

// Report summarizes one cycle.
type Report struct {
	Candidates     int
	Due            int
	Sent           int
	DispatchFailed int
	CommitFailed   int
	Malformed      int
	// Skipped is set when the cycle did not run because another cycle held
	// the engine or the lease.
	Skipped bool
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeDispatchFailed
	outcomeCommitFailed
)

type Option func(*Engine)

// WithInterval sets the scan cadence. Cron schedules have one second resolution.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithDispatchTimeout bounds each dispatch call. Zero disables the bound.
func WithDispatchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.dispatchTimeout = d }
}

// WithConcurrency limits how many reminders are dispatched at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithLocker makes every cycle take a lease first.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	store           storage.ReminderStore
	dispatcher      notify.Dispatcher
	locker          lock.Locker
	log             *zap.Logger
	interval        time.Duration
	dispatchTimeout time.Duration
	concurrency     int
	now             func() time.Time

	// cycle is held for the whole of a cycle.
	cycle sync.Mutex

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(store storage.ReminderStore, dispatcher notify.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		interval:        DefaultInterval,
		dispatchTimeout: DefaultDispatchTimeout,
		concurrency:     DefaultConcurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.log = e.log.With(zap.String("component", "engine"))
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	e.dispatcher = notify.WithTimeout(dispatcher, e.dispatchTimeout)
	return e
}

// RunCycle performs one full cycle and reports what happened. It never fails:
// store and dispatch errors are logged and left for the next cycle. A call
// made while another cycle is running returns immediately with Skipped set.
func (e *Engine) RunCycle(ctx context.Context) Report {
	if !e.cycle.TryLock() {
		e.log.Debug("cycle already running, skipping")
		return Report{Skipped: true}
	}
	defer e.cycle.Unlock()

	if e.locker != nil {
		release, ok, err := e.locker.TryLock(ctx)
		if err != nil {
			e.log.Warn("cycle lease unavailable", zap.String("kind", kindStoreUnavailable), zap.Error(err))
			return Report{Skipped: true}
		}
		if !ok {
			e.log.Debug("cycle lease held elsewhere, skipping")
			return Report{Skipped: true}
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				e.log.Warn("failed to release cycle lease", zap.Error(err))
			}
		}()
	}

	started := time.Now()
	now := e.now()
	var report Report

	meetings, err := e.store.FetchCandidateMeetings(ctx, now)
	if err != nil {
		e.log.Warn("candidate fetch failed", zap.String("kind", kindStoreUnavailable), zap.Error(err))
		return report
	}
	report.Candidates = len(meetings)

	work := scanner.ScanAll(meetings, now)
	report.Due = len(work)
	for _, d := range work {
		if d.Malformed {
			report.Malformed++
			e.log.Warn("unrecognized reminder unit, treating offset as zero",
				zap.String("kind", kindMalformedReminder),
				zap.String("meeting_id", d.MeetingID),
				zap.Int("reminder_index", d.Index))
		}
	}

	outcomes := make([]outcome, len(work))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, d := range work {
		g.Go(func() error {
			outcomes[i] = e.deliver(ctx, d)
			return nil
		})
	}
	g.Wait()

	for _, o := range outcomes {
		switch o {
		case outcomeSent:
			report.Sent++
		case outcomeDispatchFailed:
			report.DispatchFailed++
		case outcomeCommitFailed:
			report.CommitFailed++
		}
	}

	fields := []zap.Field{
		zap.Int("candidates", report.Candidates),
		zap.Int("due", report.Due),
		zap.Int("sent", report.Sent),
		zap.Int("dispatch_failed", report.DispatchFailed),
		zap.Int("commit_failed", report.CommitFailed),
		zap.Duration("took", time.Since(started)),
	}
	if report.Due > 0 {
		e.log.Info("cycle finished", fields...)
	} else {
		e.log.Debug("cycle finished", fields...)
	}
	return report
}

// deliver dispatches one due reminder and, only if that succeeded, commits it.
func (e *Engine) deliver(ctx context.Context, d scanner.Due) (o outcome) {
	log := e.log.With(zap.String("meeting_id", d.MeetingID), zap.Int("reminder_index", d.Index))

	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", zap.String("kind", kindDispatchFailed), zap.Any("panic", r))
			o = outcomeDispatchFailed
		}
	}()

	if err := e.dispatcher.Dispatch(ctx, d.Recipients, d.Message); err != nil {
		log.Warn("reminder dispatch failed, will retry next cycle",
			zap.String("kind", kindDispatchFailed), zap.Error(err))
		return outcomeDispatchFailed
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := e.store.MarkReminderSent(commitCtx, d.MeetingID, d.Index); err != nil {
		kind := kindStoreUnavailable
		if errors.Is(err, storage.ErrNotFound) {
			kind = "not_found"
		}
		log.Error("reminder sent but not recorded", zap.String("kind", kind), zap.Error(err))
		return outcomeCommitFailed
	}

	log.Debug("reminder sent", zap.Int("recipients", len(d.Recipients)), zap.Time("fire_time", d.FireTime))
	return outcomeSent
}

// Start runs a cycle right away and then one per interval until Stop. Ticks
// that arrive while a cycle is still running are dropped. Cycles keep ctx's
// values but not its cancellation: only Stop ends them.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return errors.New("engine already started")
	}

	logger := cronLogger{log: e.log.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id := c.Schedule(cron.Every(e.interval), cron.FuncJob(func() { e.RunCycle(runCtx) }))

	// Share the wrapped job so the first run and scheduled runs skip each other.
	first := c.Entry(id).WrappedJob
	if first == nil {
		cancel()
		return fmt.Errorf("cron entry %d not registered", id)
	}

	e.cron = c
	e.cancel = cancel
	c.Start()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		first.Run()
	}()

	e.log.Info("engine started",
		zap.Duration("interval", e.interval),
		zap.Duration("dispatch_timeout", e.dispatchTimeout),
		zap.Int("concurrency", e.concurrency))
	return nil
}

// Stop stops scheduling and waits for a running cycle to finish. If ctx ends
// first, the running cycle is cancelled and ctx's error returned.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	c, cancel := e.cron, e.cancel
	e.cron, e.cancel = nil, nil
	e.mu.Unlock()
	if c == nil {
		return nil
	}

	stopped := c.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		e.wg.Wait()
		close(done)
	}()

	defer cancel()
	select {
	case <-done:
		e.log.Info("engine stopped")
		return nil
	case <-ctx.Done():
		e.log.Warn("engine stop timed out, cancelling running cycle", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
