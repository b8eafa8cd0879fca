// Package app is the composition root: it builds every component from the
// config file, registers the daily use case triggers and applies hot reloads.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"gunter/internal/collab"
	"gunter/internal/collab/calendar"
	"gunter/internal/collab/gateway"
	"gunter/internal/collab/prefs"
	"gunter/internal/config"
	"gunter/internal/eventbus"
	"gunter/internal/metrics"
	"gunter/internal/notifier"
	"gunter/internal/ops"
	"gunter/internal/recommend"
	rtsup "gunter/internal/runtime/supervisor"
	"gunter/internal/storage"
	"gunter/internal/task/engine"
	"gunter/internal/task/scheduler"
	"gunter/internal/usecase"
	logx "gunter/pkg/logx"
)

// ErrUnknownUseCase is returned by Query for an unregistered name.
var ErrUnknownUseCase = errors.New("unknown use case")

// metricsMaxRestarts bounds the metrics loop. The app keeps running after it
// gives up.
const metricsMaxRestarts = 5

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	root  logx.Logger
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	ops     *ops.Service
	metrics *metrics.Metrics

	notifying []usecase.Notifying
	travel    *usecase.TravelPlanning

	mu       sync.Mutex
	triggers map[string]scheduler.Job
}

// Option adjusts the loaded config before the components are built. Hot
// reloads do not reapply it.
type Option func(*config.Config)

// WithLogLevel overrides logging.level, for one-shot commands that print to
// stdout.
func WithLogLevel(level string) Option {
	return func(c *config.Config) { c.Logging.Level = level }
}

// New loads and validates the config at cfgPath and builds every component.
// Nothing runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}
	eff := *cfg
	for _, o := range opts {
		o(&eff)
	}
	return build(cfgm, &eff, nil)
}

// CheckConfig loads and validates the config at path without building
// anything.
func CheckConfig(path string) (*config.Config, error) {
	cfg, err := config.NewManager(path).Parse()
	if err != nil {
		return nil, err
	}
	return cfg, validate(cfg)
}

// validate runs the field checks plus the mapping every component needs, so
// a reload that would fail to apply is rejected before commit.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	checks := []func() error{
		func() error { _, err := mapSchedulerConfig(cfg); return err },
		func() error { _, err := mapTaskEngineConfig(cfg); return err },
		func() error { _, err := mapNotifierConfig(cfg); return err },
		func() error { _, err := mapStorageConfig(cfg); return err },
		func() error { _, err := mapOpsConfig(cfg); return err },
		func() error { _, err := mapCalendarConfig(cfg); return err },
		func() error { _, err := callTimeout(cfg); return err },
	}
	for _, c := range checks {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// build wires the components. hc overrides the HTTP client of the calendar
// and gateway collaborators.
func build(cfgm *config.Manager, cfg *config.Config, hc *http.Client) (*App, error) {
	logs, root := logx.New(mapLoggingConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root)

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, err
	}
	if store != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, root, bus)

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, eng, root, bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	sender, err := mapSender(cfg, root)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, sender, root, bus, store)

	ps := prefs.New(cfgm)
	calCfg, err := mapCalendarConfig(cfg)
	if err != nil {
		return nil, err
	}
	cal := calendar.New(calCfg, ps.CalendarURL, hc, root)
	gw, err := gateway.New(mapGatewayConfig(cfg), hc, root)
	if err != nil {
		return nil, err
	}

	timeout, err := callTimeout(cfg)
	if err != nil {
		return nil, err
	}
	seed := cfg.Assistant.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	deps := usecase.Deps{
		Prefs:       ps,
		Calendar:    cal,
		Weather:     gw,
		Transit:     gw,
		Places:      gw,
		Stations:    gw,
		Notifier:    notif,
		Scheduler:   sched,
		Picker:      recommend.NewPicker(seed),
		Log:         root,
		Bus:         bus,
		CallTimeout: timeout,
	}

	a := &App{
		cfgm:   cfgm,
		root:   root,
		log:    log,
		logs:   logs,
		bus:    bus,
		store:  store,
		engine: eng,
		sched:  sched,
		notif:  notif,
		notifying: []usecase.Notifying{
			usecase.NewMorningRoutine(deps),
			usecase.NewLunchBreak(deps),
			usecase.NewPersonalTrainer(deps),
		},
		travel:   usecase.NewTravelPlanning(deps),
		metrics:  metrics.New(root, func() uint64 { return eventbus.Lost(bus) }),
		triggers: map[string]scheduler.Job{},
	}

	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(opsCfg, ops.Sources{
		Metrics:    a.metrics.Handler(),
		Health:     a.health,
		Jobs:       func() any { return a.sched.Pending() },
		Deliveries: a.deliveries,
	}, root)
	return a, nil
}

// Done is closed when the app supervisor stops, after Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	if a.engine.Enabled() {
		a.engine.Start(run)
	}
	if a.notif.Enabled() {
		a.notif.Start(run)
	}
	if err := a.registerTriggers(a.cfgm.Get()); err != nil {
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(run)
	}
	a.ops.Start(run)

	a.sup.GoRestart("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) },
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		rtsup.WithMaxRestarts(metricsMaxRestarts),
	)
	a.sup.Go("eventbus.log", a.logEvents)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		return a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int("triggers", len(a.Triggers())))
	return nil
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// registerTriggers replaces every recurring use case job with one built from
// cfg.
func (a *App) registerTriggers(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, job := range a.triggers {
		a.sched.Cancel(job)
		delete(a.triggers, id)
	}
	for _, uc := range a.notifying {
		spec, enabled, err := triggerSpec(cfg, uc.Name(), uc.Trigger())
		if err != nil {
			return err
		}
		if !enabled {
			a.log.Info("use case disabled", logx.String("usecase", uc.Name()))
			continue
		}
		run := uc.Run
		job, err := a.sched.ScheduleRecurring(uc.Name(), spec, func(ctx context.Context) error {
			run(ctx)
			return nil
		})
		if err != nil {
			return fmt.Errorf("%s: %w", uc.Name(), err)
		}
		a.triggers[uc.Name()] = job
	}
	return nil
}

// Triggers lists the registered recurring jobs by use case name.
func (a *App) Triggers() map[string]scheduler.Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]scheduler.Job, len(a.triggers))
	for k, v := range a.triggers {
		out[k] = v
	}
	return out
}

// UseCases lists every queryable use case name.
func (a *App) UseCases() []string {
	out := []string{a.travel.Name()}
	for _, uc := range a.notifying {
		out = append(out, uc.Name())
	}
	sort.Strings(out)
	return out
}

// Query evaluates name for display. destination only applies to travel
// planning, where an empty value picks a random station.
func (a *App) Query(ctx context.Context, name, destination string) (usecase.View, error) {
	if name == a.travel.Name() {
		return a.travel.Plan(ctx, destination), nil
	}
	for _, uc := range a.notifying {
		if uc.Name() == name {
			return uc.Query(ctx), nil
		}
	}
	return usecase.View{}, fmt.Errorf("%w: %q", ErrUnknownUseCase, name)
}

// ConnectionToMainStation routes from home to the configured main station.
func (a *App) ConnectionToMainStation(ctx context.Context, arrival time.Time) (*collab.Connection, error) {
	return a.travel.ConnectionToMainStation(ctx, arrival)
}

type healthState struct {
	Scheduler scheduler.Snapshot `json:"scheduler"`
	Notifier  bool               `json:"notifier_enabled"`
	Loops     rtsup.Snapshot     `json:"loops"`
	Triggers  map[string]string  `json:"triggers"`
	Fatal     string             `json:"fatal,omitempty"`
}

func (a *App) health(context.Context) (any, bool) {
	st := healthState{
		Scheduler: a.sched.Snapshot(),
		Notifier:  a.notif.Enabled(),
		Triggers:  map[string]string{},
	}
	for id, job := range a.Triggers() {
		st.Triggers[id] = job.ID
	}
	ok := !st.Scheduler.Enabled || st.Scheduler.Running
	if a.sup != nil {
		st.Loops = a.sup.Snapshot()
		if err := a.sup.Err(); err != nil {
			st.Fatal = err.Error()
			ok = false
		}
	}
	return st, ok
}

func (a *App) deliveries(ctx context.Context, limit int) (any, error) {
	if a.store != nil {
		return a.store.RecentDeliveries(ctx, limit)
	}
	h := a.notif.History()
	out := make([]storage.Delivery, 0, min(len(h), limit))
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}
	return out, nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by limit and by ctx's deadline. A step
// that overruns is logged and left to finish in the background.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max(limit, 0))
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
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}
