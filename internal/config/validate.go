package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gunter/internal/recommend"
	"gunter/internal/task/scheduler"
)

var knownUseCases = map[string]bool{
	recommend.MorningRoutineID:  true,
	recommend.LunchBreakID:      true,
	recommend.PersonalTrainerID: true,
	recommend.TravelPlanningID:  true,
}

// Validate checks every field that would otherwise fail at use time. All
// problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		check(err)
	}
	clock := func(path, raw string) {
		_, _, err := ParseClockField(path, raw, 0, 0)
		check(err)
	}
	tz := func(path, raw string) {
		if s := strings.TrimSpace(raw); s != "" {
			if _, err := time.LoadLocation(s); err != nil {
				check(fmt.Errorf("%s: unknown timezone %q", path, raw))
			}
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		check(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		check(errors.New("logging.file.path: required when file logging is enabled"))
	}

	tz("scheduler.timezone", cfg.Scheduler.Timezone)
	dur("scheduler.job_timeout", cfg.Scheduler.JobTimeout)

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
			check(errors.New("task_engine: sizes must be >= 0"))
		}
		dur("task_engine.default_timeout", te.DefaultTimeout)
		dur("task_engine.max_queue_delay", te.MaxQueueDelay)
	}

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
			check(errors.New("notifier: counts must be >= 0"))
		}
		dur("notifier.retry_base", n.RetryBase)
		dur("notifier.retry_max_delay", n.RetryMaxDelay)
		dur("notifier.dedup_window", n.DedupWindow)
		dur("notifier.send_timeout", n.SendTimeout)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			check(fmt.Errorf("storage.driver: unsupported driver %q", s.Driver))
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	if cfg.Ops.Enabled {
		dur("ops.read_timeout", cfg.Ops.ReadTimeout)
		dur("ops.idle_timeout", cfg.Ops.IdleTimeout)
	}

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID == 0 {
		check(errors.New("telegram.chat_id: required when a token is set"))
	}

	if raw := strings.TrimSpace(cfg.Providers.GatewayURL); raw != "" {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			check(fmt.Errorf("providers.gateway_url: invalid url %q", raw))
		}
	}
	if cfg.Providers.RatePerSec < 0 || cfg.Providers.Burst < 0 {
		check(errors.New("providers: rate_per_sec and burst must be >= 0"))
	}
	dur("providers.calendar_cache_ttl", cfg.Providers.CalendarCacheTTL)

	dur("assistant.call_timeout", cfg.Assistant.CallTimeout)
	for name, uc := range cfg.Assistant.UseCases {
		path := "assistant.usecases." + name
		if !knownUseCases[name] {
			check(fmt.Errorf("%s: unknown use case", path))
			continue
		}
		if uc.At == "" && uc.Days == "" {
			continue
		}
		at := uc.At
		if at == "" {
			at = "00:00"
		}
		if _, err := scheduler.ParseCronSpec(at, uc.Days, cfg.Preferences.Timezone); err != nil {
			check(fmt.Errorf("%s: %w", path, err))
		}
	}

	p := cfg.Preferences
	tz("preferences.timezone", p.Timezone)
	if p.PreparationMinutes < 0 {
		check(errors.New("preferences.preparation_minutes: must be >= 0"))
	}
	for _, sc := range []struct {
		path string
		cfg  SlotConfig
	}{{"preferences.lunch_break", p.LunchBreak}, {"preferences.personal_trainer", p.PersonalTrainer}} {
		clock(sc.path+".start", sc.cfg.Start)
		clock(sc.path+".end", sc.cfg.End)
		if sc.cfg.RequiredMinutes < 0 || sc.cfg.MinutesBeforeStart < 0 || sc.cfg.MaxDistanceKm < 0 {
			check(fmt.Errorf("%s: values must be >= 0", sc.path))
		}
	}
	clock("preferences.travel.departure", p.Travel.Departure)
	clock("preferences.travel.return", p.Travel.Return)
	if p.Travel.MaxDistanceKm > 0 && p.Travel.MinDistanceKm > p.Travel.MaxDistanceKm {
		check(errors.New("preferences.travel: min_distance_km exceeds max_distance_km"))
	}

	return errors.Join(errs...)
}
