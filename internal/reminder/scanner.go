package reminder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"pockettodo/internal/clock"
	"pockettodo/internal/todo"
	logx "pockettodo/pkg/logx"
)

type State int32

const (
	StateIdle State = iota
	StateScanning
)

func (s State) String() string {
	if s == StateScanning {
		return "scanning"
	}
	return "idle"
}

type ScanConfig struct {
	Every        string
	InitialDelay time.Duration
}

// ScanReport describes one completed scan.
type ScanReport struct {
	ID       string         `json:"id"`
	Started  time.Time      `json:"started"`
	Took     time.Duration  `json:"took"`
	Due      int            `json:"due"`
	Err      string         `json:"error,omitempty"`
	Dispatch DispatchReport `json:"dispatch"`
}

// ScannerSnapshot is the ops view of the scanner.
type ScannerSnapshot struct {
	State    string        `json:"state"`
	Schedule string        `json:"schedule"`
	Next     time.Time     `json:"next,omitempty"`
	Scans    uint64        `json:"scans"`
	Skipped  uint64        `json:"skipped"`
	Failures uint64        `json:"failures"`
	Last     *ScanReport   `json:"last,omitempty"`
	Dispatch DispatchStats `json:"dispatch"`
}

// Scanner periodically hands due reminders to a Dispatcher. Scans never overlap.
type Scanner struct {
	store todo.Store
	disp  *Dispatcher
	clock clock.Clock
	log   logx.Logger

	state atomic.Int32

	mu      sync.Mutex
	cfg     ScanConfig
	sched   ScanSchedule
	c       *cron.Cron
	entry   cron.EntryID
	initial *time.Timer
	// initialDone closes once the initial scan has finished or was never run.
	initialDone chan struct{}
	cancel      context.CancelFunc
	last        *ScanReport

	scans    atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64
}

func NewScanner(store todo.Store, disp *Dispatcher, c clock.Clock, cfg ScanConfig, log logx.Logger) *Scanner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scanner{store: store, disp: disp, clock: c, cfg: cfg, log: log}
}

// Start registers the scan schedule and arms the initial scan.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	sched, err := ParseScanSchedule(s.cfg.Every)
	if err != nil {
		return fmt.Errorf("reminders.scan.every: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.clock.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	entry, err := c.AddFunc(sched.Spec, func() { s.ScanOnce(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("register scan schedule: %w", err)
	}
	c.Start()

	delay := s.cfg.InitialDelay
	if delay < 0 {
		delay = 0
	}
	initialDone := make(chan struct{})
	s.initial = time.AfterFunc(delay, func() {
		defer close(initialDone)
		s.ScanOnce(runCtx)
	})
	s.initialDone = initialDone

	s.c, s.entry, s.sched, s.cancel = c, entry, sched, cancel
	s.log.Info("scanner started",
		logx.String("schedule", sched.Spec),
		logx.Duration("initial_delay", delay),
		logx.String("tz", s.clock.Location().String()),
	)
	return nil
}

// Stop cancels in-flight work and waits for a running scan, bounded by ctx.
func (s *Scanner) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel, initial, initialDone := s.c, s.cancel, s.initial, s.initialDone
	s.c, s.cancel, s.initial, s.initialDone = nil, nil, nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if initial.Stop() {
		close(initialDone)
	}
	cancel()
	cronDone := c.Stop().Done()
	for _, done := range []<-chan struct{}{cronDone, initialDone} {
		select {
		case <-done:
		case <-ctx.Done():
			s.log.Warn("scanner stop deadline reached, scan still running")
			return
		}
	}
	s.log.Info("scanner stopped")
}

// ScanOnce runs one scan cycle. It returns false when another scan was in progress.
func (s *Scanner) ScanOnce(ctx context.Context) (ScanReport, bool) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		s.skipped.Add(1)
		s.log.Debug("scan skipped, previous scan still running")
		return ScanReport{}, false
	}
	defer s.state.Store(int32(StateIdle))

	now := s.clock.Now()
	rep := ScanReport{ID: uuid.NewString(), Started: now}
	log := s.log.With(logx.String("scan_id", rep.ID))

	batch, err := s.store.ListDueBefore(ctx, now)
	if err != nil {
		s.failures.Add(1)
		rep.Err = err.Error()
		log.Error("scan failed, retrying next tick", logx.Err(err))
		return s.finish(rep, now), true
	}
	rep.Due = len(batch)
	if len(batch) > 0 {
		log.Info("due reminders found", logx.Int("count", len(batch)))
		rep.Dispatch = s.disp.Dispatch(ctx, batch)
		log.Info("scan dispatched",
			logx.Int("delivered", rep.Dispatch.Delivered),
			logx.Int("permanent", rep.Dispatch.Permanent),
			logx.Int("retried", rep.Dispatch.Retried),
			logx.Int("dead_lettered", rep.Dispatch.DeadLettered),
		)
	}
	return s.finish(rep, now), true
}

func (s *Scanner) finish(rep ScanReport, started time.Time) ScanReport {
	rep.Took = s.clock.Now().Sub(started)
	s.scans.Add(1)
	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
	return rep
}

func (s *Scanner) State() State { return State(s.state.Load()) }

func (s *Scanner) Snapshot() ScannerSnapshot {
	s.mu.Lock()
	snap := ScannerSnapshot{Schedule: s.sched.Spec}
	if s.c != nil {
		snap.Next = s.c.Entry(s.entry).Next
	}
	if s.last != nil {
		last := *s.last
		snap.Last = &last
	}
	s.mu.Unlock()

	snap.State = s.State().String()
	snap.Scans = s.scans.Load()
	snap.Skipped = s.skipped.Load()
	snap.Failures = s.failures.Load()
	if s.disp != nil {
		snap.Dispatch = s.disp.Stats()
	}
	return snap
}

// cronLogger routes robfig/cron's logger into logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
