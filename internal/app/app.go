package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"raidwatch/internal/commands"
	"raidwatch/internal/config"
	"raidwatch/internal/eventbus"
	"raidwatch/internal/notifier"
	"raidwatch/internal/observability/ops"
	"raidwatch/internal/registry"
	"raidwatch/internal/runtime/supervisor"
	"raidwatch/internal/task/engine"
	"raidwatch/internal/task/scheduler"
	kit "raidwatch/internal/transport"
	"raidwatch/internal/transport/discord"
	"raidwatch/internal/transport/router"
	"raidwatch/internal/transport/telegram"
	logx "raidwatch/pkg/logx"
	"raidwatch/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter *discord.Adapter
	pipe    *Pipeline

	engine *engine.Service
	sched  *scheduler.Service
	reg    *registry.Registry
	router *router.Router
	ops    *ops.Server

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "discord"))
	ad, err := discord.New(discord.Config{Token: cfg.Discord.Token, GuildID: cfg.Discord.GuildID}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	if chatTransport(cfg) == "telegram" && cfg.Telegram != nil {
		tg, err := telegram.New(telegram.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		})
		if err != nil {
			return nil, err
		}
		logSvc.SetSender(tg)
	}
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	bus := eventbus.New()
	pipe, err := NewPipeline(cfgm.Get, ad, log, bus)
	if err != nil {
		return nil, err
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, eng,
		log.With(logx.String("comp", "scheduler")))
	reg := registry.New(cfgm, sched, pipe.State, pipe.Watcher.Job, log.With(logx.String("comp", "registry")))

	rt := router.New(log.With(logx.String("comp", "commands")), ad, cfg.Discord.CommandWorkers)
	rt.SetOwners(cfg.Discord.OwnerIDs)
	rt.SetCommands(commands.New(commands.Deps{
		Sources:   reg,
		Config:    cfgm,
		Audit:     pipe.Store,
		Lookup:    newLookupClient(cfg, userAgent(cfg)),
		Messenger: ad,
		Schedules: sched.Snapshot,
		Engine:    eng.Snapshot,
		Log:       log.With(logx.String("comp", "commands")),
	}).Commands())

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		pipe:    pipe,
		engine:  eng,
		sched:   sched,
		reg:     reg,
		router:  rt,
		updates: make(chan kit.Update, 256),
	}
	a.ops = ops.New(mapOpsConfig(cfg), ops.Probe{Healthy: a.healthy, Status: a.status},
		log.With(logx.String("comp", "ops")))
	return a, nil
}

func (a *App) healthy() bool { return a.sup != nil && a.sup.Context().Err() == nil }

// Status is the JSON body of the ops /status endpoint.
type Status struct {
	Engine        engine.Snapshot          `json:"engine"`
	Schedules     []scheduler.ScheduleInfo `json:"schedules"`
	Notifications []notifier.HistoryItem   `json:"notifications"`
	Supervisor    []supervisor.TaskStats   `json:"supervisor"`
}

func (a *App) status() any {
	st := Status{
		Engine:        a.engine.Snapshot(),
		Schedules:     a.sched.Snapshot(),
		Notifications: a.pipe.Notifier.History(),
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Snapshot()
	}
	return st
}

func userAgent(cfg *config.Config) string {
	if cfg.Watcher != nil && strings.TrimSpace(cfg.Watcher.UserAgent) != "" {
		return strings.TrimSpace(cfg.Watcher.UserAgent)
	}
	return ""
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	regCtx, cancel := context.WithTimeout(c, 30*time.Second)
	err := a.adapter.RegisterCommands(regCtx, a.router.Specs())
	cancel()
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}

	// Commands are served while catch-up runs.
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.engine.Start(c)
	n := a.reg.Load()
	a.log.Info("sources loaded", logx.Int("count", n))

	cfg := a.cfgm.Get()
	if cfg.Scheduler.CatchUpEnabled() {
		start := time.Now()
		a.sched.CatchUp(c)
		a.log.Info("catch-up done", logx.Duration("took", time.Since(start)))
	}
	if cfg.Scheduler.Enabled {
		a.sched.Start()
	} else {
		a.log.Warn("scheduler disabled via config; sources run only on demand")
	}

	a.ops.Start(c)

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.RunWatchdog(c, func() bool { return c.Err() == nil })
	})

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return nil
				case e, ok := <-events:
					if !ok {
						return nil
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
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

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	_, _ = systemd.Status(fmt.Sprintf("watching %d sources", n))
	a.log.Info("app started", logx.Int("sources", n))
	return nil
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, diff := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	for _, s := range restartSections(oldCfg, newCfg, sections) {
		a.log.Warn("config change needs a restart to take effect", logx.String("section", s))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.router.SetOwners(newCfg.Discord.OwnerIDs)

	if ec, err := mapEngineConfig(newCfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ec)
	}
	if nc, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.pipe.Notifier.Apply(nc)
	}

	a.ops.Reconfigure(ctx, mapOpsConfig(newCfg))
	a.sched.Apply(ctx, scheduler.Config{Timezone: newCfg.Scheduler.Timezone})
	if oldCfg.Scheduler.Enabled && !newCfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	} else if !oldCfg.Scheduler.Enabled && newCfg.Scheduler.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start()
	}

	if !diff.Empty() {
		applied := a.reg.Sync(newCfg)
		a.log.Info("sources synced",
			logx.Strings("added", applied.Added),
			logx.Strings("removed", applied.Removed),
			logx.Strings("changed", applied.Changed))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigApplied, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	a.sup.Cancel()

	// step bounds one shutdown step and never extends the caller's deadline.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

		if dl, ok := ctx.Deadline(); ok {
			limit = min(limit, max(0, time.Until(dl)))
		}
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline",
					logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, a.engine.Stop)
	step("ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("storage", 1*time.Second, func(context.Context) error { return a.pipe.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
