// Package bot is the chat surface of the to-do list: commands, free-text task
// capture, inline-button callbacks and reminder delivery.
package bot

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"pockettodo/internal/annotate"
	"pockettodo/internal/clock"
	"pockettodo/internal/reminder"
	rtsup "pockettodo/internal/runtime/supervisor"
	"pockettodo/internal/todo"
	kit "pockettodo/internal/transport"
	logx "pockettodo/pkg/logx"
	"pockettodo/pkg/tgui"
)

// pendingTTL bounds how long a "send me the new time" prompt stays armed.
const pendingTTL = 10 * time.Minute

type Config struct {
	Workers        int
	HandlerTimeout time.Duration
	// AdminChatID restricts /status when non-zero.
	AdminChatID int64
	// Actions are the reminder buttons offered from the reminders menu.
	Actions []reminder.NoticeAction
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = max(2, runtime.NumCPU())
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if len(c.Actions) == 0 {
		c.Actions = reminder.DispatchConfig{}.Actions()
	}
	return c
}

// StatusSource reports scheduler state for /status.
type StatusSource interface {
	Snapshot() reminder.ScannerSnapshot
}

type Deps struct {
	Store   todo.Store
	Parser  *annotate.Parser
	Snoozer *reminder.Snoozer
	Clock   clock.Clock
	Status  StatusSource
	Log     logx.Logger
}

type pendingCustom struct {
	taskID int64
	since  time.Time
}

type Bot struct {
	ad      kit.Adapter
	store   todo.Store
	parser  *annotate.Parser
	snoozer *reminder.Snoozer
	clock   clock.Clock
	status  StatusSource
	log     logx.Logger

	cmds map[string]command

	mu  sync.RWMutex
	cfg Config

	pendingMu sync.Mutex
	pending   map[int64]pendingCustom
}

func New(ad kit.Adapter, d Deps, cfg Config) *Bot {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		ad:      ad,
		store:   d.Store,
		parser:  d.Parser,
		snoozer: d.Snoozer,
		clock:   d.Clock,
		status:  d.Status,
		log:     log,
		cfg:     cfg.withDefaults(),
		pending: map[int64]pendingCustom{},
	}
	if b.parser == nil {
		b.parser = annotate.NewParser(d.Clock)
	}
	b.cmds = make(map[string]command)
	for _, c := range b.commands() {
		b.cmds[c.name] = c
	}
	return b
}

// Apply swaps runtime tuning. Workers only change on the next Run.
func (b *Bot) Apply(cfg Config) {
	b.mu.Lock()
	b.cfg = cfg.withDefaults()
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

// Start publishes the command menu when the adapter supports it.
func (b *Bot) Start(ctx context.Context) error {
	mu, ok := b.ad.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	if err := mu.UpdateMenuCommands(ctx, b.menu()); err != nil {
		b.log.Warn("menu commands update failed", logx.Err(err))
	}
	return nil
}

// Run handles updates with a bounded worker pool until ctx is done or the
// channel is closed.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	workers := b.config().Workers
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(b.log),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("bot.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-updates:
					if !ok {
						return nil
					}
					b.HandleUpdate(c, up)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	b.log.Info("update dispatcher started", logx.Int("workers", workers))

	_ = sup.Wait(ctx)
	wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	_ = sup.Stop(wctx)
	cancel()
	b.log.Info("update dispatcher stopped")
	return nil
}

// HandleUpdate routes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, up kit.Update) {
	req := &request{kind: up.Kind}
	var h handlerFunc
	switch {
	case up.Kind == kit.UpdateMessage && up.Message != nil:
		m := up.Message
		req.chatID, req.fromID = m.ChatID, m.FromID
		h = func(ctx context.Context, req *request) error { return b.onMessage(ctx, req, m) }
	case up.Kind == kit.UpdateCallback && up.Callback != nil:
		cb := up.Callback
		req.chatID, req.fromID = cb.ChatID, cb.FromID
		h = func(ctx context.Context, req *request) error { return b.onCallback(ctx, req, cb) }
	default:
		return
	}
	req.log = b.log.With(
		logx.String("rid", uuid.NewString()),
		logx.Int64("chat_id", req.chatID),
		logx.Int64("from_id", req.fromID),
	)
	final := chain(h,
		withRecover(),
		withRequestLog(),
		withTimeout(b.config().HandlerTimeout),
	)
	_ = final(ctx, req)
}

func (b *Bot) send(ctx context.Context, chatID int64, msg tgui.Message) error {
	_, err := msg.Send(ctx, b.ad, kit.ChatTarget{ChatID: chatID})
	return err
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	return b.send(ctx, chatID, tgui.New().Line(text).Build())
}

func (b *Bot) setPending(chatID, taskID int64) {
	b.pendingMu.Lock()
	b.pending[chatID] = pendingCustom{taskID: taskID, since: b.clock.Now()}
	b.pendingMu.Unlock()
}

func (b *Bot) pendingFor(chatID int64) (int64, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	p, ok := b.pending[chatID]
	if !ok {
		return 0, false
	}
	if b.clock.Now().Sub(p.since) > pendingTTL {
		delete(b.pending, chatID)
		return 0, false
	}
	return p.taskID, true
}

func (b *Bot) clearPending(chatID int64) bool {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	_, ok := b.pending[chatID]
	delete(b.pending, chatID)
	return ok
}

// ownedTask hides tasks of other chats behind ErrNotFound.
func (b *Bot) ownedTask(ctx context.Context, id, owner int64) (todo.Task, error) {
	t, err := b.store.GetTask(ctx, id)
	if err != nil {
		return todo.Task{}, err
	}
	if t.OwnerID != owner {
		return todo.Task{}, todo.ErrNotFound
	}
	return t, nil
}
