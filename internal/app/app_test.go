package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gunter/internal/config"
	"gunter/internal/recommend"
	"gunter/internal/task/scheduler"
	logx "gunter/pkg/logx"
)

func writeConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, b, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func boolPtr(b bool) *bool { return &b }

func startApp(t *testing.T, path string) *App {
	t.Helper()
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a
}

func TestTriggerSpec(t *testing.T) {
	t.Parallel()
	def := scheduler.CronSpec{Weekdays: scheduler.Weekdays, Timezone: "Europe/Berlin"}
	override := func(uc config.UseCaseConfig) config.Config {
		return config.Config{Assistant: config.AssistantConfig{UseCases: map[string]config.UseCaseConfig{
			recommend.LunchBreakID: uc,
		}}}
	}
	cases := []struct {
		name    string
		cfg     config.Config
		enabled bool
		hour    int
		minute  int
		days    int
		tz      string
		wantErr bool
	}{
		{name: "default", enabled: true, days: 5, tz: "Europe/Berlin"},
		{name: "clock override keeps days", cfg: override(config.UseCaseConfig{At: "05:30"}), enabled: true, hour: 5, minute: 30, days: 5, tz: "Europe/Berlin"},
		{name: "days override", cfg: override(config.UseCaseConfig{Days: "daily"}), enabled: true, tz: "Europe/Berlin"},
		{name: "user timezone", cfg: config.Config{Preferences: config.PreferencesConfig{Timezone: "UTC"}}, enabled: true, days: 5, tz: "UTC"},
		{name: "disabled", cfg: override(config.UseCaseConfig{Enabled: boolPtr(false), At: "bogus"})},
		{name: "bad clock", cfg: override(config.UseCaseConfig{At: "25:00"}), wantErr: true},
	}
	for _, tc := range cases {
		spec, enabled, err := triggerSpec(&tc.cfg, recommend.LunchBreakID, def)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err = %v", tc.name, err)
		}
		if tc.wantErr {
			continue
		}
		if enabled != tc.enabled {
			t.Fatalf("%s: enabled = %v", tc.name, enabled)
		}
		if !enabled {
			continue
		}
		if spec.Hour != tc.hour || spec.Minute != tc.minute || len(spec.Weekdays) != tc.days || spec.Timezone != tc.tz {
			t.Fatalf("%s: spec = %+v", tc.name, spec)
		}
	}
}

func TestMapConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true}}

	ec, err := mapTaskEngineConfig(cfg)
	if err != nil || !ec.Enabled || ec.Workers != 2 || ec.QueueSize != 128 || ec.HistorySize != 100 {
		t.Fatalf("engine = %+v, %v", ec, err)
	}
	nc, err := mapNotifierConfig(cfg)
	if err != nil || !nc.Enabled || nc.DedupWindow != time.Hour {
		t.Fatalf("notifier = %+v, %v", nc, err)
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil || sc.Driver != "" {
		t.Fatalf("storage = %+v, %v", sc, err)
	}
	oc, err := mapOpsConfig(cfg)
	if err != nil || oc.Addr != "127.0.0.1:9464" || oc.ReadTimeout != 10*time.Second {
		t.Fatalf("ops = %+v, %v", oc, err)
	}
	to, err := callTimeout(cfg)
	if err != nil || to != 20*time.Second {
		t.Fatalf("call timeout = %v, %v", to, err)
	}
	s, err := mapSender(cfg, logx.Nop())
	if err != nil || s.Name() != "log" {
		t.Fatalf("sender = %v, %v", s, err)
	}
}

func TestMapConfigErrors(t *testing.T) {
	t.Parallel()
	cases := map[string]*config.Config{
		"sqlite without path":   {Storage: &config.StorageConfig{Driver: "sqlite"}},
		"unknown driver":        {Storage: &config.StorageConfig{Driver: "redis"}},
		"bad engine timeout":    {TaskEngine: &config.TaskEngineConfig{DefaultTimeout: "soon"}},
		"bad retry base":        {Notifier: &config.NotifierConfig{RetryBase: "x"}},
		"telegram without chat": {Telegram: config.TelegramConfig{Token: "123:abc"}},
		"bad call timeout":      {Assistant: config.AssistantConfig{CallTimeout: "-"}},
	}
	for name, cfg := range cases {
		if err := validate(cfg); err == nil {
			t.Fatalf("%s: validate accepted", name)
		}
	}
	if err := validate(&config.Config{}); err != nil {
		t.Fatalf("empty config rejected: %v", err)
	}
}

func TestStartRegistersTriggers(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"logging":   map[string]any{"level": "error"},
		"scheduler": map[string]any{"enabled": true},
		"assistant": map[string]any{"usecases": map[string]any{
			recommend.PersonalTrainerID: map[string]any{"enabled": false},
			recommend.LunchBreakID:      map[string]any{"at": "06:15"},
		}},
	})
	a := startApp(t, path)

	got := a.Triggers()
	if len(got) != 2 {
		t.Fatalf("triggers = %v", got)
	}
	if _, ok := got[recommend.PersonalTrainerID]; ok {
		t.Fatal("disabled use case registered")
	}
	lunch := got[recommend.LunchBreakID]
	if lunch.Kind != scheduler.KindRecurring || lunch.Spec == nil || lunch.Spec.Hour != 6 || lunch.Spec.Minute != 15 {
		t.Fatalf("lunch trigger = %+v", lunch)
	}
	if len(a.sched.Pending()) != 2 {
		t.Fatalf("pending = %+v", a.sched.Pending())
	}

	state, ok := a.health(context.Background())
	if !ok {
		t.Fatalf("health not ok: %+v", state)
	}
}

func TestApplyConfigReRegistersTriggers(t *testing.T) {
	path := writeConfig(t, map[string]any{"logging": map[string]any{"level": "error"}})
	a := startApp(t, path)

	prev := a.cfgm.Get()
	if len(a.Triggers()) != 3 {
		t.Fatalf("triggers = %v", a.Triggers())
	}
	before := a.Triggers()[recommend.MorningRoutineID].ID

	next := *prev
	next.Assistant.UseCases = map[string]config.UseCaseConfig{
		recommend.LunchBreakID: {Enabled: boolPtr(false)},
	}
	next.Notifier = &config.NotifierConfig{Enabled: false}
	a.applyConfig(context.Background(), prev, &next)

	got := a.Triggers()
	if len(got) != 2 {
		t.Fatalf("triggers after reload = %v", got)
	}
	if got[recommend.MorningRoutineID].ID == before {
		t.Fatal("morning trigger was not replaced")
	}
	if len(a.sched.Pending()) != 2 {
		t.Fatalf("stale jobs left: %+v", a.sched.Pending())
	}
	if a.notif.Enabled() {
		t.Fatal("notifier still enabled")
	}
}

func TestQuery(t *testing.T) {
	path := writeConfig(t, map[string]any{"logging": map[string]any{"level": "error"}})
	a := startApp(t, path)
	ctx := context.Background()

	if _, err := a.Query(ctx, "weather-report", ""); !errors.Is(err, ErrUnknownUseCase) {
		t.Fatalf("unknown use case err = %v", err)
	}
	for _, name := range a.UseCases() {
		v, err := a.Query(ctx, name, "")
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !v.Failed || v.Message != "Could not find your preferences: preferences.calendar_url is not set up." {
			t.Fatalf("%s: view = %+v", name, v)
		}
	}
	if _, err := a.ConnectionToMainStation(ctx, time.Now()); err == nil {
		t.Fatal("connection without preferences succeeded")
	}
}

func TestTravelQueryAgainstProviders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cal.ics", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"))
	})
	mux.HandleFunc("/v1/stations", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	path := writeConfig(t, map[string]any{
		"logging":   map[string]any{"level": "error"},
		"providers": map[string]any{"gateway_url": srv.URL},
		"preferences": map[string]any{
			"timezone":     "UTC",
			"calendar_url": srv.URL + "/cal.ics",
			"home":         map[string]any{"latitude": 52.52, "longitude": 13.405},
		},
	})
	a := startApp(t, path)

	v, err := a.Query(context.Background(), recommend.TravelPlanningID, "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if v.Failed || !strings.Contains(v.Message, "destination") {
		t.Fatalf("view = %+v", v)
	}
}

func TestDeliveriesFromNotifierHistory(t *testing.T) {
	path := writeConfig(t, map[string]any{"logging": map[string]any{"level": "error"}})
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := a.deliveries(context.Background(), 5)
	if err != nil {
		t.Fatalf("deliveries: %v", err)
	}
	if b, _ := json.Marshal(out); string(b) != "[]" {
		t.Fatalf("deliveries = %s", b)
	}
}

func TestStopWithoutStart(t *testing.T) {
	path := writeConfig(t, map[string]any{})
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Stop(context.Background(), StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed before Start")
	}
}
