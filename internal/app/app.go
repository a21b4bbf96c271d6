package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pockettodo/internal/annotate"
	"pockettodo/internal/bot"
	"pockettodo/internal/clock"
	"pockettodo/internal/ops"
	"pockettodo/internal/reminder"
	"pockettodo/internal/storage"
	"pockettodo/internal/todo"
	kit "pockettodo/internal/transport"
	telegram "pockettodo/internal/transport/telegram/adapter"
	logx "pockettodo/pkg/logx"
)

type App struct {
	cfgPath string
	version string
	started time.Time

	cfgm *ConfigManager

	supMu sync.Mutex
	sup   *Supervisor

	log   logx.Logger
	logs  *logx.Service
	store todo.Store

	adapter *telegram.Adapter

	disp    *reminder.Dispatcher
	scanner *reminder.Scanner
	bot     *bot.Bot
	ops     *ops.Service

	updates chan kit.Update
}

func NewApp(cfgPath, version string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}

	loc, err := mapLocation(cfg)
	if err != nil {
		return nil, err
	}
	clk := clock.NewSystem(loc)

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver), logx.String("tz", loc.String()))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	scfg, err := mapScanConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	locks := reminder.NewLocks()
	delivery := bot.NewDelivery(ad, clk)
	disp := reminder.NewDispatcher(store, delivery, locks, dcfg, log.With(logx.String("comp", "dispatcher")))
	scanner := reminder.NewScanner(store, disp, clk, scfg, log.With(logx.String("comp", "scanner")))
	snoozer := reminder.NewSnoozer(store, locks, clk, log.With(logx.String("comp", "snooze")))

	b := bot.New(ad, bot.Deps{
		Store:   store,
		Parser:  annotate.NewParser(clk),
		Snoozer: snoozer,
		Clock:   clk,
		Status:  scanner,
		Log:     log.With(logx.String("comp", "bot")),
	}, mapBotConfig(cfg, dcfg))

	a := &App{
		cfgPath: cfgPath,
		version: version,
		started: time.Now(),
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		disp:    disp,
		scanner: scanner,
		bot:     b,
		updates: make(chan kit.Update, 256),
	}
	a.ops = ops.New(ocfg, ops.Sources{
		Scanner:     scanner,
		Supervisors: a.supervisorCounters,
		Started:     a.started,
		Version:     version,
	}, log.With(logx.String("comp", "ops")))
	return a, nil
}

func mapBotConfig(cfg *Config, dcfg reminder.DispatchConfig) bot.Config {
	return bot.Config{
		AdminChatID: cfg.Telegram.AdminChatID,
		Actions:     dcfg.Actions(),
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	sup := a.supervisor()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	sup := a.supervisor()
	if sup == nil {
		return nil
	}
	return sup.Err()
}

func (a *App) supervisor() *Supervisor {
	a.supMu.Lock()
	defer a.supMu.Unlock()
	return a.sup
}

// supervisorCounters feeds the ops /status document.
func (a *App) supervisorCounters() map[string]SupervisorCounters {
	out := make(map[string]SupervisorCounters, 3)
	if sup := a.supervisor(); sup != nil {
		out["app"] = sup.Counters()
	}
	if sup := a.adapter.Supervisor(); sup != nil {
		out["telegram.adapter"] = sup.Counters()
	}
	if a.ops != nil {
		if sup := a.ops.Supervisor(); sup != nil {
			out["ops"] = sup.Counters()
		}
	}
	return out
}

func (a *App) Start(ctx context.Context) error {
	sup := NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	a.supMu.Lock()
	a.sup = sup
	a.supMu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	if err := a.adapter.Start(sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.bot.Start(sup.Context()); err != nil {
		return err
	}
	sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	if err := a.scanner.Start(sup.Context()); err != nil {
		return err
	}

	a.ops.Start(sup.Context())

	lastApplied := a.cfgm.Get()
	sub := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.log.With(logx.String("comp", "systemd")))
	})

	notifySystemd(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("version", a.version))
	return nil
}

// applyConfig pushes a validated config to every live-reloadable component.
func (a *App) applyConfig(ctx context.Context, prev, next *Config) {
	sections, attrs := SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if pending := restartOnly(prev, next, sections); len(pending) > 0 {
		a.log.Warn("config changes require a restart to take effect", logx.Strings("keys", pending))
	}

	a.logs.Apply(mapLoggingConfig(next))

	dcfg, err := mapDispatchConfig(next)
	if err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dcfg)
		a.bot.Apply(mapBotConfig(next, dcfg))
	}

	ocfg, err := mapOpsConfig(next)
	if err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, ocfg)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	sup := a.supervisor()
	if sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	sup.Cancel()

	// step bounds one shutdown stage so a stuck component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Scanner first so no new dispatch starts while the adapter goes away.
	step("scanner", 3*time.Second, func(c context.Context) error { a.scanner.Stop(c); return nil })
	step("ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// Bot workers and config loops exit on cancel; wait before closing the store they use.
	step("supervisor", 3*time.Second, func(c context.Context) error { return sup.Wait(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
