package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pockettodo/internal/todo"
	logx "pockettodo/pkg/logx"
)

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	OutcomeRetry Outcome = iota
	OutcomeDelivered
	OutcomePermanentlyFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomePermanentlyFailed:
		return "permanently_failed"
	default:
		return "retry"
	}
}

// ActionKind enumerates the buttons attached to a reminder.
type ActionKind int

const (
	ActionDone ActionKind = iota + 1
	ActionSnoozeMinutes
	ActionSnoozeTomorrow
	ActionCustom
	ActionDeleteReminder
)

type NoticeAction struct {
	Kind    ActionKind
	Minutes int // ActionSnoozeMinutes only
}

// Notice is what the transport renders for one due reminder.
type Notice struct {
	TaskID  int64
	ChatID  int64
	Text    string
	Due     time.Time
	Actions []NoticeAction
}

// Transport delivers a notice. A nil error with OutcomeRetry is allowed.
type Transport interface {
	Deliver(ctx context.Context, n Notice) (Outcome, error)
}

type TransportFunc func(ctx context.Context, n Notice) (Outcome, error)

func (f TransportFunc) Deliver(ctx context.Context, n Notice) (Outcome, error) { return f(ctx, n) }

type DispatchConfig struct {
	Workers     int
	SendTimeout time.Duration
	RatePerSec  float64
	// MaxAttempts dead-letters a reminder after this many transient failures. 0 disables.
	MaxAttempts int
	SnoozeShort time.Duration
	SnoozeLong  time.Duration
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.SnoozeShort <= 0 {
		c.SnoozeShort = 30 * time.Minute
	}
	if c.SnoozeLong <= 0 {
		c.SnoozeLong = time.Hour
	}
	return c
}

// DispatchReport counts what happened to one batch.
type DispatchReport struct {
	Delivered    int `json:"delivered"`
	Permanent    int `json:"permanent"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"dead_lettered"`
	Superseded   int `json:"superseded"`
	Errors       int `json:"errors"`
}

// DispatchStats are lifetime counters.
type DispatchStats struct {
	Delivered    uint64 `json:"delivered"`
	Permanent    uint64 `json:"permanent"`
	Retried      uint64 `json:"retried"`
	DeadLettered uint64 `json:"dead_lettered"`
	Superseded   uint64 `json:"superseded"`
	Panics       uint64 `json:"panics"`
}

type Dispatcher struct {
	store todo.Store
	tr    Transport
	locks *Locks
	log   logx.Logger

	mu      sync.Mutex
	cfg     DispatchConfig
	limiter *rate.Limiter

	delivered    atomic.Uint64
	permanent    atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	superseded   atomic.Uint64
	panics       atomic.Uint64
}

func NewDispatcher(store todo.Store, tr Transport, locks *Locks, cfg DispatchConfig, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if locks == nil {
		locks = NewLocks()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		store:   store,
		tr:      tr,
		locks:   locks,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burstFor(cfg.RatePerSec)),
	}
}

func burstFor(perSec float64) int {
	if perSec < 1 {
		return 1
	}
	return int(perSec)
}

// Apply swaps tuning at runtime. Batches already running keep their pool size.
func (d *Dispatcher) Apply(cfg DispatchConfig) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	d.cfg = cfg
	d.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	d.limiter.SetBurst(burstFor(cfg.RatePerSec))
	d.mu.Unlock()
	d.log.Info("dispatch config applied",
		logx.Int("workers", cfg.Workers),
		logx.Duration("send_timeout", cfg.SendTimeout),
		logx.Int("max_attempts", cfg.MaxAttempts),
	)
}

func (d *Dispatcher) config() DispatchConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Delivered:    d.delivered.Load(),
		Permanent:    d.permanent.Load(),
		Retried:      d.retried.Load(),
		DeadLettered: d.deadLettered.Load(),
		Superseded:   d.superseded.Load(),
		Panics:       d.panics.Load(),
	}
}

// Actions returns the response buttons attached to every reminder.
func (c DispatchConfig) Actions() []NoticeAction {
	c = c.withDefaults()
	return []NoticeAction{
		{Kind: ActionDone},
		{Kind: ActionSnoozeMinutes, Minutes: int(c.SnoozeShort / time.Minute)},
		{Kind: ActionSnoozeMinutes, Minutes: int(c.SnoozeLong / time.Minute)},
		{Kind: ActionSnoozeTomorrow},
		{Kind: ActionCustom},
		{Kind: ActionDeleteReminder},
	}
}

// Dispatch delivers the batch and returns once every reminder was handled.
// Reminders are launched in batch order; at most cfg.Workers run at a time.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []todo.DueReminder) DispatchReport {
	cfg := d.config()
	actions := cfg.Actions()

	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
		rep DispatchReport
	)
	sem := make(chan struct{}, cfg.Workers)

launch:
	for _, r := range batch {
		select {
		case <-ctx.Done():
			break launch
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(r todo.DueReminder) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if p := recover(); p != nil {
					d.panics.Add(1)
					d.log.Error("dispatch panic",
						logx.Int64("task_id", r.TaskID),
						logx.Any("panic", p),
						logx.String("stack", string(debug.Stack())),
					)
					rmu.Lock()
					rep.Errors++
					rmu.Unlock()
				}
			}()
			res := d.deliverOne(ctx, cfg, actions, r)
			rmu.Lock()
			res.addTo(&rep)
			rmu.Unlock()
		}(r)
	}
	wg.Wait()
	return rep
}

type deliveryResult int

const (
	resNone deliveryResult = iota
	resDelivered
	resPermanent
	resRetried
	resDeadLettered
	resSuperseded
	resError
)

func (r deliveryResult) addTo(rep *DispatchReport) {
	switch r {
	case resDelivered:
		rep.Delivered++
	case resPermanent:
		rep.Permanent++
	case resRetried:
		rep.Retried++
	case resDeadLettered:
		rep.DeadLettered++
	case resSuperseded:
		rep.Superseded++
	case resError:
		rep.Errors++
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, cfg DispatchConfig, actions []NoticeAction, r todo.DueReminder) deliveryResult {
	log := d.log.With(logx.Int64("task_id", r.TaskID), logx.Int64("chat_id", r.OwnerID))

	if err := d.limiter.Wait(ctx); err != nil {
		// Shutdown; the reminder stays due and is picked up on the next start.
		return resNone
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	outcome, err := d.tr.Deliver(sendCtx, Notice{
		TaskID:  r.TaskID,
		ChatID:  r.OwnerID,
		Text:    r.Text,
		Due:     r.Due,
		Actions: actions,
	})
	cancel()

	switch outcome {
	case OutcomeDelivered:
		return d.clear(ctx, log, r, resDelivered)
	case OutcomePermanentlyFailed:
		log.Warn("reminder undeliverable, clearing", logx.Err(err))
		return d.clear(ctx, log, r, resPermanent)
	}

	if ctx.Err() != nil {
		return resNone
	}
	attempts, ferr := d.recordFailure(ctx, r.TaskID)
	if ferr != nil {
		if errors.Is(ferr, todo.ErrNotFound) {
			return resSuperseded
		}
		log.Error("record delivery failure", logx.Err(ferr))
		return resError
	}
	if cfg.MaxAttempts > 0 && attempts >= cfg.MaxAttempts {
		log.Error("reminder dead-lettered after repeated failures",
			logx.Int("attempts", attempts), logx.Err(err))
		return d.clear(ctx, log, r, resDeadLettered)
	}
	log.Warn("reminder delivery failed, will retry",
		logx.Int("attempts", attempts), logx.Err(err))
	d.retried.Add(1)
	return resRetried
}

func (d *Dispatcher) recordFailure(ctx context.Context, id int64) (int, error) {
	unlock := d.locks.Lock(id)
	defer unlock()
	return d.store.RecordDeliveryFailure(ctx, id)
}

// clear compare-and-clears the due time; a snooze that moved it in the meantime wins.
func (d *Dispatcher) clear(ctx context.Context, log logx.Logger, r todo.DueReminder, res deliveryResult) deliveryResult {
	unlock := d.locks.Lock(r.TaskID)
	ok, err := d.store.ClearDueTime(ctx, r.TaskID, r.Due)
	unlock()
	if err != nil {
		log.Error("clear due time", logx.Err(fmt.Errorf("after %s: %w", res.outcomeName(), err)))
		return resError
	}
	if !ok {
		d.superseded.Add(1)
		log.Debug("due time changed during delivery, keeping new schedule")
		return resSuperseded
	}
	switch res {
	case resDelivered:
		d.delivered.Add(1)
		log.Debug("reminder delivered", logx.Time("due", r.Due))
	case resPermanent:
		d.permanent.Add(1)
	case resDeadLettered:
		d.deadLettered.Add(1)
	}
	return res
}

func (r deliveryResult) outcomeName() string {
	switch r {
	case resDelivered:
		return "delivery"
	case resPermanent:
		return "permanent failure"
	case resDeadLettered:
		return "dead-letter"
	default:
		return "dispatch"
	}
}
