package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "20s", "1m"); clock times are "HH:MM".
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine defaults to scheduler.enabled with pool defaults when omitted.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	// Notifier defaults to enabled when omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Storage is disabled when omitted.
	Storage *StorageConfig `json:"storage,omitempty"`

	Ops       OpsConfig       `json:"ops,omitempty"`
	Telegram  TelegramConfig  `json:"telegram"`
	Providers ProvidersConfig `json:"providers"`
	Assistant AssistantConfig `json:"assistant"`

	Preferences PreferencesConfig `json:"preferences"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone applies to triggers that do not name one (default Europe/Berlin).
	Timezone   string `json:"timezone,omitempty"`
	JobTimeout string `json:"job_timeout,omitempty"`
}

// TaskEngineConfig defaults: workers 2, queue_size 128, history_size 100,
// no default timeout, no stale-queue dropping. Failed runs are not retried.
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
	// SendTimeout bounds one channel delivery attempt.
	SendTimeout string `json:"send_timeout,omitempty"`
}

// StorageConfig selects the delivery log / dedup store.
//
//	"storage": { "driver": "sqlite", "path": "./gunter.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// OpsConfig controls the operator HTTP endpoint (health, metrics, jobs, pprof).
// Bind to loopback or set a token.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// TelegramConfig routes notifications to a chat. Without a token the
// notifier only logs.
type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

type ProvidersConfig struct {
	// GatewayURL serves weather, transit, places and stations.
	GatewayURL string  `json:"gateway_url"`
	APIKey     string  `json:"api_key,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	// CalendarCacheTTL reuses a fetched feed for this long. 0 disables.
	CalendarCacheTTL string `json:"calendar_cache_ttl,omitempty"`
}

type AssistantConfig struct {
	// CallTimeout bounds every collaborator call (default 20s).
	CallTimeout string `json:"call_timeout,omitempty"`
	// Seed fixes the candidate picker. 0 seeds from the clock.
	Seed     int64                    `json:"seed,omitempty"`
	UseCases map[string]UseCaseConfig `json:"usecases,omitempty"`
}

// UseCaseConfig overrides a use case's daily trigger.
type UseCaseConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	At      string `json:"at,omitempty"`
	Days    string `json:"days,omitempty"`
}

func (u UseCaseConfig) IsEnabled() bool { return u.Enabled == nil || *u.Enabled }

type PreferencesConfig struct {
	Timezone           string          `json:"timezone,omitempty"`
	CalendarURL        string          `json:"calendar_url"`
	Home               *LocationConfig `json:"home,omitempty"`
	PreparationMinutes int             `json:"preparation_minutes,omitempty"`
	LunchBreak         SlotConfig      `json:"lunch_break"`
	PersonalTrainer    SlotConfig      `json:"personal_trainer"`
	Travel             TravelConfig    `json:"travel"`
}

type LocationConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type SlotConfig struct {
	Start              string  `json:"start,omitempty"`
	End                string  `json:"end,omitempty"`
	RequiredMinutes    int     `json:"required_minutes,omitempty"`
	MaxDistanceKm      float64 `json:"max_distance_km,omitempty"`
	MinutesBeforeStart int     `json:"minutes_before_start,omitempty"`
}

type TravelConfig struct {
	MainStationID string  `json:"main_station_id,omitempty"`
	MinDistanceKm float64 `json:"min_distance_km,omitempty"`
	MaxDistanceKm float64 `json:"max_distance_km,omitempty"`
	Departure     string  `json:"departure,omitempty"`
	Return        string  `json:"return,omitempty"`
}
