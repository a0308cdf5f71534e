package app

import (
	"context"
	"time"

	"remindbot/internal/api"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/pprof"
	"remindbot/internal/reminder"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// App owns every long-lived component and wires them together: config,
// logging, storage, the reminder core, the trigger scheduler, the delivery
// notifier and the Telegram/HTTP surfaces.
type App struct {
	cfgPath string
	version string

	log  logx.Logger
	logs *logx.Service

	cfgm *ConfigManager
	bus  eventbus.Bus

	store   storage.Store
	adapter kit.Adapter

	rem   *reminder.Service
	sched *scheduler.Service
	notif *notifier.Service

	api   *api.Service
	pprof *pprof.Service
	cmdm  *CommandManager

	serv    *Services
	sup     *Supervisor
	updates chan kit.Update
}

func NewApp(cfgPath, version string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	ad, err := buildAdapter(cfg)
	if err != nil {
		return nil, err
	}
	logSvc, log := initLogging(cfg, ad)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	store, err := openStorage(cfg, log)
	if err != nil {
		return nil, err
	}
	sender, err := openMail(cfg, log)
	if err != nil {
		return nil, err
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")), bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, sender, log.With(logx.String("comp", "notifier")), bus, store)

	rem := reminder.New(reminder.Config{MaxReminders: cfg.Reminders.MaxReminders},
		log.With(logx.String("comp", "reminder")), bus, sched, notif)
	rem.SetDefaultTarget(defaultTarget(cfg))
	if store != nil {
		rem.SetAuditSink(store)
	}

	pprofCfg, err := mapPprofConfig(cfg)
	if err != nil {
		return nil, err
	}
	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, err
	}
	apiSvc := api.New(apiCfg, api.Deps{
		Reminders: rem,
		Scheduler: sched,
		Notifier:  notif,
		Store:     store,
	}, log.With(logx.String("comp", "api")))

	serv := &Services{
		Reminders:          rem,
		Scheduler:          sched,
		Notifier:           notif,
		Store:              store,
		RuntimeSupervisors: NewSupervisorRegistry(),
	}

	a := &App{
		cfgPath: cfgPath,
		version: version,
		log:     log,
		logs:    logSvc,
		cfgm:    cfgm,
		bus:     bus,
		store:   store,
		adapter: ad,
		rem:     rem,
		sched:   sched,
		notif:   notif,
		api:     apiSvc,
		pprof:   pprof.New(pprofCfg, log.With(logx.String("comp", "pprof"))),
		serv:    serv,
		updates: make(chan kit.Update, 256),
	}
	a.cmdm = NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfgm, serv, cfg.Telegram.OwnerUserIDs)
	return a, nil
}

// Done closes when the app run context ends, either a fatal error or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err reports the first fatal error the supervisor saw, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	a.serv.AppSupervisor = a.sup
	if a.serv.RuntimeSupervisors == nil {
		a.serv.RuntimeSupervisors = NewSupervisorRegistry()
	}
	a.registerCommands()

	// Reloads are transactional: the validator rejects a bad edit before
	// the manager commits and fans it out.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateConfig)

	run := a.sup.Context()
	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.noteSupervisor("telegram.adapter", supervisorOf(a.adapter))

	// Delivery first: the notifier must be accepting before a trigger can
	// fire a reminder into it.
	if a.notif.Enabled() {
		a.notif.Start(run)
		a.noteSupervisor("notifier", a.notif.Supervisor())
	}
	if a.sched.Enabled() {
		a.sched.Start(run)
		a.noteSupervisor("scheduler", a.sched.Supervisor())
	}
	a.scheduleMaintenance()

	if a.pprof.Enabled() {
		a.pprof.Start(run)
		a.noteSupervisor("pprof", a.pprof.Supervisor())
	}
	if a.api.Enabled() {
		a.api.Start(run)
		a.noteSupervisor("api", a.api.Supervisor())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) { a.relayEvents(c, events, unsub) })

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// scheduleMaintenance registers recurring housekeeping on the trigger
// scheduler. The job name sits outside the "reminder:" namespace so
// reminder bookkeeping never touches it.
func (a *App) scheduleMaintenance() {
	if a.store == nil {
		return
	}
	if _, err := a.sched.AddDaily("storage.compact", "03:30", time.Minute, a.store.Compact); err != nil {
		a.log.Warn("storage compact schedule not registered", logx.Any("err", err))
	}
}

// noteSupervisor registers a component supervisor for the runtime
// inspection commands; nil supervisors are skipped.
func (a *App) noteSupervisor(name string, sup *Supervisor) {
	if sup == nil || a.serv == nil {
		return
	}
	a.serv.RuntimeSupervisors.Set(name, sup)
}

// supervisorOf extracts the internal supervisor from components that expose
// one without widening their interface.
func supervisorOf(v any) *Supervisor {
	if sp, ok := v.(interface{ Supervisor() *Supervisor }); ok {
		return sp.Supervisor()
	}
	return nil
}

// defaultTarget picks the fallback chat for reminders created without one
// (the HTTP API has no chat context). A Telegram DM chat id equals the user
// id, so the first owner works as a destination.
func defaultTarget(cfg *Config) kit.ChatTarget {
	if cfg == nil || len(cfg.Telegram.OwnerUserIDs) == 0 {
		return kit.ChatTarget{}
	}
	return kit.ChatTarget{ChatID: cfg.Telegram.OwnerUserIDs[0]}
}
