package app

import (
	"context"
	"fmt"
	"strings"
)

// validateConfig rejects a config before it is committed, so a bad hot
// reload keeps the previous config in place.
func validateConfig(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is empty")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		return fmt.Errorf("logging.telegram.rate_per_sec must be >= 0")
	}
	loc, err := mapLocation(cfg)
	if err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg, loc); err != nil {
		return err
	}
	if _, err := mapScanConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapOpsConfig(cfg); err != nil {
		return err
	}
	return nil
}

// restartOnly lists changes that the reload loop cannot apply live.
func restartOnly(oldCfg, newCfg *Config, sections []string) []string {
	out := RestartRequired(sections)
	if oldCfg == nil || newCfg == nil {
		return out
	}
	or, nr := oldCfg.Reminders, newCfg.Reminders
	if strings.TrimSpace(or.UTCOffset) != strings.TrimSpace(nr.UTCOffset) {
		out = append(out, "reminders.utc_offset")
	}
	if or.Scan != nr.Scan {
		out = append(out, "reminders.scan")
	}
	return out
}
