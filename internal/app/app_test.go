package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pockettodo/internal/config"
	logx "pockettodo/pkg/logx"
)

func validConfig() *Config {
	return &Config{
		Telegram: config.TelegramConfig{Token: "123:abc", PollTimeout: "10s"},
		Storage:  config.StorageConfig{Driver: "memory"},
	}
}

func intPtr(v int) *int { return &v }

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "no token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: "telegram.token"},
		{name: "bad poll timeout", mutate: func(c *Config) { c.Telegram.PollTimeout = "soon" }, wantErr: "telegram.poll_timeout"},
		{name: "bad offset", mutate: func(c *Config) { c.Reminders.UTCOffset = "3" }, wantErr: "reminders.utc_offset"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, wantErr: "storage.path"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }, wantErr: "storage.driver"},
		{name: "bad scan", mutate: func(c *Config) { c.Reminders.Scan.Every = "cron:nope" }, wantErr: "reminders.scan.every"},
		{name: "negative attempts", mutate: func(c *Config) { c.Reminders.Dispatch.MaxAttempts = intPtr(-1) }, wantErr: "max_attempts"},
		{name: "fractional snooze", mutate: func(c *Config) { c.Reminders.Snooze.Short = "90s" }, wantErr: "whole minutes"},
		{name: "bad ops addr", mutate: func(c *Config) { c.Ops = config.OpsConfig{Enabled: true, Addr: "nohost"} }, wantErr: "ops.addr"},
		{name: "ops disabled ignores addr", mutate: func(c *Config) { c.Ops.Addr = "nohost" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validateConfig(context.Background(), cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateConfig error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validateConfig error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Storage = config.StorageConfig{Driver: "SQLite", Path: "./todo.db"}
	sc, err := mapStorageConfig(cfg, time.UTC)
	if err != nil {
		t.Fatalf("mapStorageConfig error: %v", err)
	}
	if sc.Driver != "sqlite" || sc.Path != "./todo.db" || sc.BusyTimeout != time.Second || sc.Location != time.UTC {
		t.Fatalf("storage config = %+v", sc)
	}

	cfg.Storage = config.StorageConfig{}
	if sc, err = mapStorageConfig(cfg, time.UTC); err != nil || sc.Driver != "memory" {
		t.Fatalf("empty driver = %+v, %v; want memory", sc, err)
	}
}

func TestMapDispatchConfig(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	dc, err := mapDispatchConfig(cfg)
	if err != nil {
		t.Fatalf("mapDispatchConfig error: %v", err)
	}
	if dc.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("MaxAttempts = %d, want %d", dc.MaxAttempts, defaultMaxAttempts)
	}

	cfg.Reminders.Dispatch.MaxAttempts = intPtr(0)
	cfg.Reminders.Dispatch.Workers = 8
	cfg.Reminders.Dispatch.SendTimeout = "5s"
	cfg.Reminders.Snooze.Short = "15m"
	dc, err = mapDispatchConfig(cfg)
	if err != nil {
		t.Fatalf("mapDispatchConfig error: %v", err)
	}
	if dc.MaxAttempts != 0 || dc.Workers != 8 || dc.SendTimeout != 5*time.Second || dc.SnoozeShort != 15*time.Minute {
		t.Fatalf("dispatch config = %+v", dc)
	}
	acts := dc.Actions()
	if len(acts) < 2 || acts[1].Minutes != 15 {
		t.Fatalf("first snooze action = %+v, want 15 minutes", acts)
	}
}

func TestMapScanConfigDefaults(t *testing.T) {
	t.Parallel()
	sc, err := mapScanConfig(validConfig())
	if err != nil {
		t.Fatalf("mapScanConfig error: %v", err)
	}
	if sc.InitialDelay != 5*time.Second {
		t.Fatalf("InitialDelay = %v, want 5s", sc.InitialDelay)
	}
}

func TestMapLocationDefault(t *testing.T) {
	t.Parallel()
	loc, err := mapLocation(validConfig())
	if err != nil {
		t.Fatalf("mapLocation error: %v", err)
	}
	_, off := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	if off != 3*3600 {
		t.Fatalf("default offset = %d, want %d", off, 3*3600)
	}
}

func TestMapLoggingConfigUsesAdminChat(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Telegram.AdminChatID = -100123
	cfg.Logging.Telegram.Enabled = true
	lc := mapLoggingConfig(cfg)
	if !lc.Telegram.Enabled || lc.Telegram.ChatID != -100123 {
		t.Fatalf("telegram log config = %+v", lc.Telegram)
	}
}

func TestMapOpsConfig(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Ops = config.OpsConfig{Enabled: true, Token: " t "}
	oc, err := mapOpsConfig(cfg)
	if err != nil {
		t.Fatalf("mapOpsConfig error: %v", err)
	}
	if oc.Addr != "127.0.0.1:8089" || oc.Token != "t" {
		t.Fatalf("ops config = %+v", oc)
	}
}

func TestRestartOnly(t *testing.T) {
	t.Parallel()
	prev := validConfig()
	next := validConfig()
	next.Reminders.Scan.Every = "5m"
	next.Reminders.Dispatch.Workers = 2
	next.Storage.Path = "x"
	sections, _ := SummarizeConfigChange(prev, next)
	got := restartOnly(prev, next, sections)
	want := []string{"storage", "reminders.scan"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("restartOnly = %v, want %v", got, want)
	}
}

func TestNotifySystemd(t *testing.T) {
	orig := sdNotify
	t.Cleanup(func() { sdNotify = orig })

	var states []string
	sdNotify = func(unsetEnv bool, state string) (bool, error) {
		states = append(states, state)
		return true, nil
	}
	notifySystemd(logx.Nop(), daemon.SdNotifyReady)

	sdNotify = func(unsetEnv bool, state string) (bool, error) {
		states = append(states, state)
		return false, errors.New("socket gone")
	}
	notifySystemd(logx.Nop(), daemon.SdNotifyStopping)

	if strings.Join(states, "|") != "READY=1|STOPPING=1" {
		t.Fatalf("states = %v, want READY=1 then STOPPING=1", states)
	}
}
