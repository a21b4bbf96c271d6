package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pockettodo/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Secrets such as the bot token are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		ot.AdminChatID != nt.AdminChatID ||
		ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(nt.PollTimeout)),
			logx.Bool("telegram.admin_chat_set", nt.AdminChatID != 0),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		r := newCfg.Reminders
		maxAttempts := -1
		if r.Dispatch.MaxAttempts != nil {
			maxAttempts = *r.Dispatch.MaxAttempts
		}
		attrs = append(attrs,
			logx.String("reminders.utc_offset", r.UTCOffset),
			logx.String("reminders.scan.every", r.Scan.Every),
			logx.Int("reminders.dispatch.workers", r.Dispatch.Workers),
			logx.Int("reminders.dispatch.max_attempts", maxAttempts),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that cannot be applied live.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "telegram", "storage":
			out = append(out, s)
		}
	}
	return out
}
