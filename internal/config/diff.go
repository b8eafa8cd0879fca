package config

import (
	"encoding/json"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "gunter/pkg/logx"
)

// SummarizeConfigChange lists the sections that differ between two configs
// and returns log fields describing the new values. Secrets (tokens, API
// keys, the calendar URL) are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var changed []string
	var attrs []logx.Field

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
		te := derefTaskEngine(newCfg.TaskEngine)
		attrs = append(attrs,
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.workers", n.Workers),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
			)
		}
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs, logx.String("storage.driver", s.Driver), logx.Bool("storage.path_set", s.Path != ""))
		}
	}
	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", newCfg.Telegram.Token != ""),
			logx.Bool("telegram.chat_set", newCfg.Telegram.ChatID != 0),
		)
	}
	if oldCfg.Providers != newCfg.Providers {
		changed = append(changed, "providers")
		attrs = append(attrs,
			logx.String("providers.gateway_url", newCfg.Providers.GatewayURL),
			logx.Bool("providers.api_key_set", newCfg.Providers.APIKey != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Assistant, newCfg.Assistant) {
		changed = append(changed, "assistant")
		attrs = append(attrs,
			logx.String("assistant.call_timeout", newCfg.Assistant.CallTimeout),
			logx.Int("assistant.usecase_overrides", len(newCfg.Assistant.UseCases)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Preferences, newCfg.Preferences) {
		changed = append(changed, "preferences")
		attrs = append(attrs,
			logx.String("preferences.timezone", newCfg.Preferences.Timezone),
			logx.Bool("preferences.calendar_set", newCfg.Preferences.CalendarURL != ""),
			logx.Bool("preferences.home_set", newCfg.Preferences.Home != nil),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// TriggersChanged reports whether the recurring use case triggers must be
// re-registered.
func TriggersChanged(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return !reflect.DeepEqual(oldCfg.Assistant.UseCases, newCfg.Assistant.UseCases) ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone)
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
