package app

import logx "pockettodo/pkg/logx"

func mapLoggingConfig(cfg *Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "INFO", Console: true}
	}
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     cfg.Telegram.AdminChatID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}
