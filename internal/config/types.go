package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Ops       OpsConfig       `json:"ops,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// AdminChatID receives Telegram log lines when logging.telegram is enabled.
	AdminChatID int64 `json:"admin_chat_id,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the task store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/pockettodo.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`                 // "sqlite" | "memory"
	Path        string `json:"path"`                   // sqlite only
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// RemindersConfig controls due detection and delivery.
//
// All durations are Go duration strings. Defaults:
//   - utc_offset: "+03:00"
//   - scan.every: "60s" (also accepts HH:MM intervals and cron specs)
//   - scan.initial_delay: "5s"
//   - dispatch.workers: 4, send_timeout: "10s", rate_per_sec: 20, max_attempts: 10
//   - snooze.short: "30m", snooze.long: "1h"
type RemindersConfig struct {
	UTCOffset string         `json:"utc_offset,omitempty"`
	Scan      ScanConfig     `json:"scan"`
	Dispatch  DispatchConfig `json:"dispatch"`
	Snooze    SnoozeConfig   `json:"snooze"`
}

type ScanConfig struct {
	Every        string `json:"every,omitempty"`
	InitialDelay string `json:"initial_delay,omitempty"`
}

type DispatchConfig struct {
	Workers     int     `json:"workers,omitempty"`
	SendTimeout string  `json:"send_timeout,omitempty"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	// MaxAttempts is a pointer so an explicit 0 (never dead-letter) differs from omitted.
	MaxAttempts *int `json:"max_attempts,omitempty"`
}

type SnoozeConfig struct {
	Short string `json:"short,omitempty"`
	Long  string `json:"long,omitempty"`
}

// OpsConfig controls the health/status HTTP endpoint.
//
// Security: prefer binding to localhost (default "127.0.0.1:8089"). A
// non-loopback addr requires Token or AllowInsecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}
