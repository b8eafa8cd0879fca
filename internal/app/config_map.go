package app

import (
	"fmt"
	"strings"
	"time"

	"gunter/internal/collab/calendar"
	"gunter/internal/collab/gateway"
	"gunter/internal/config"
	"gunter/internal/notifier"
	"gunter/internal/ops"
	"gunter/internal/storage"
	"gunter/internal/task/engine"
	"gunter/internal/task/scheduler"
	"gunter/internal/usecase"
	logx "gunter/pkg/logx"
)

const defaultTimezone = "Europe/Berlin"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	jt, err := config.ParseDurationField("scheduler.job_timeout", cfg.Scheduler.JobTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:    cfg.Scheduler.Enabled,
		Timezone:   strings.TrimSpace(cfg.Scheduler.Timezone),
		JobTimeout: jt,
	}, nil
}

// mapTaskEngineConfig follows scheduler.enabled unless task_engine.enabled is
// set explicitly. Omitted sizes fall back to workers 2, queue 128, history 100.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Workers:     2,
		QueueSize:   128,
		HistorySize: 100,
	}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Enabled != nil {
		out.Enabled = *te.Enabled
	}
	if te.Workers > 0 {
		out.Workers = te.Workers
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	if te.HistorySize > 0 {
		out.HistorySize = te.HistorySize
	}

	var err error
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

// mapNotifierConfig enables the notifier with a one hour dedup window when the
// section is omitted.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{Enabled: true, DedupWindow: time.Hour}, nil
	}
	out := notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}
	for _, d := range []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"notifier.retry_base", nc.RetryBase, &out.RetryBase},
		{"notifier.retry_max_delay", nc.RetryMaxDelay, &out.RetryMaxDelay},
		{"notifier.dedup_window", nc.DedupWindow, &out.DedupWindow},
		{"notifier.send_timeout", nc.SendTimeout, &out.SendTimeout},
	} {
		v, err := config.ParseDurationField(d.path, d.raw)
		if err != nil {
			return notifier.Config{}, err
		}
		*d.dst = v
	}
	return out, nil
}

// mapSender picks Telegram when a token is configured and the log channel
// otherwise.
func mapSender(cfg *config.Config, log logx.Logger) (notifier.Sender, error) {
	tg := cfg.Telegram
	if strings.TrimSpace(tg.Token) == "" {
		return notifier.NewLogSender(log), nil
	}
	s, err := notifier.NewTelegramSender(notifier.TelegramConfig{
		Token:    tg.Token,
		ChatID:   tg.ChatID,
		ThreadID: tg.ThreadID,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return s, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none":
		return storage.Config{}, nil
	case "file":
		if path == "" {
			path = "./data/gunter"
		}
		return storage.Config{Driver: driver, Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	out := ops.Config{
		Enabled:       oc.Enabled,
		Addr:          strings.TrimSpace(oc.Addr),
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
	}
	if out.Addr == "" {
		out.Addr = ops.DefaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 10*time.Second); err != nil {
		return ops.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, time.Minute); err != nil {
		return ops.Config{}, err
	}
	return out, nil
}

func mapGatewayConfig(cfg *config.Config) gateway.Config {
	p := cfg.Providers
	return gateway.Config{
		BaseURL:    p.GatewayURL,
		APIKey:     p.APIKey,
		RatePerSec: p.RatePerSec,
		Burst:      p.Burst,
	}
}

func mapCalendarConfig(cfg *config.Config) (calendar.Config, error) {
	ttl, err := config.ParseDurationField("providers.calendar_cache_ttl", cfg.Providers.CalendarCacheTTL)
	if err != nil {
		return calendar.Config{}, err
	}
	loc, err := time.LoadLocation(userTimezone(cfg))
	if err != nil {
		return calendar.Config{}, fmt.Errorf("preferences.timezone: %w", err)
	}
	return calendar.Config{CacheTTL: ttl, Location: loc}, nil
}

func callTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("assistant.call_timeout", cfg.Assistant.CallTimeout, usecase.DefaultCallTimeout)
}

// userTimezone resolves the zone triggers and floating calendar times use:
// preferences first, then the scheduler, then Europe/Berlin.
func userTimezone(cfg *config.Config) string {
	if tz := strings.TrimSpace(cfg.Preferences.Timezone); tz != "" {
		return tz
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		return tz
	}
	return defaultTimezone
}

// triggerSpec applies the assistant.usecases override for id to def. An
// override may set only the clock or only the days.
func triggerSpec(cfg *config.Config, id string, def scheduler.CronSpec) (scheduler.CronSpec, bool, error) {
	spec := def
	spec.Timezone = userTimezone(cfg)
	uc, ok := cfg.Assistant.UseCases[id]
	if !ok {
		return spec, true, nil
	}
	if !uc.IsEnabled() {
		return scheduler.CronSpec{}, false, nil
	}
	if strings.TrimSpace(uc.At) != "" {
		h, m, err := scheduler.ParseClock(uc.At)
		if err != nil {
			return scheduler.CronSpec{}, false, fmt.Errorf("assistant.usecases.%s.at: %w", id, err)
		}
		spec.Hour, spec.Minute = h, m
	}
	if strings.TrimSpace(uc.Days) != "" {
		wd, err := scheduler.ParseWeekdays(uc.Days)
		if err != nil {
			return scheduler.CronSpec{}, false, fmt.Errorf("assistant.usecases.%s.days: %w", id, err)
		}
		spec.Weekdays = wd
	}
	return spec, true, spec.Validate()
}
