package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"gunter/internal/config"
	logx "gunter/pkg/logx"
)

// restartOnly sections are read once at startup.
var restartOnly = []string{"storage", "providers"}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) error {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			// Coalesce bursts: only the newest config is applied.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig moves the running components from prev to next. Invalid
// sections keep their previous settings.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range restartOnly {
		if slices.Contains(sections, s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLoggingConfig(next))
	a.applyExecution(ctx, next)
	a.applyNotifier(ctx, prev, next)

	if oc, err := mapOpsConfig(next); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}

	if config.TriggersChanged(prev, next) || userTimezone(prev) != userTimezone(next) {
		if err := a.registerTriggers(next); err != nil {
			a.log.Warn("use case triggers not re-registered", logx.Err(err))
		} else {
			a.log.Info("use case triggers re-registered", logx.Int("count", len(a.Triggers())))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// applyExecution updates the scheduler and the engine. A disabled scheduler
// stops before the engine it feeds; an enabled one starts after it.
func (a *App) applyExecution(ctx context.Context, next *config.Config) {
	sc, serr := mapSchedulerConfig(next)
	if serr != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(serr))
	}
	wasSched := a.sched.Enabled()
	if serr == nil && wasSched && !sc.Enabled {
		a.log.Info("scheduler disabled via config")
		c, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(c)
		cancel()
	}

	if ec, err := mapTaskEngineConfig(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, ec)
	}

	if serr != nil {
		return
	}
	a.sched.Apply(sc)
	if !wasSched && sc.Enabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}
}

func (a *App) applyNotifier(ctx context.Context, prev, next *config.Config) {
	if prev.Telegram != next.Telegram {
		if s, err := mapSender(next, a.root); err != nil {
			a.log.Warn("invalid telegram config; keeping previous sender", logx.Err(err))
		} else {
			a.notif.SetSender(s)
			a.log.Info("notification channel updated", logx.String("channel", s.Name()))
		}
	}

	was := a.notif.Enabled()
	nc, err := mapNotifierConfig(next)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		return
	}
	a.notif.Apply(nc)
	switch {
	case was && !nc.Enabled:
		a.log.Info("notifier disabled via config")
		c, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(c)
		cancel()
	case !was && nc.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}
}
