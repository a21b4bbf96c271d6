package app

import (
	"fmt"
	"time"

	"pockettodo/internal/clock"
	"pockettodo/internal/reminder"
)

func mapLocation(cfg *Config) (*time.Location, error) {
	raw := ""
	if cfg != nil {
		raw = cfg.Reminders.UTCOffset
	}
	loc, err := clock.ParseOffset(raw)
	if err != nil {
		return nil, fmt.Errorf("reminders.utc_offset: %w", err)
	}
	return loc, nil
}

func mapScanConfig(cfg *Config) (reminder.ScanConfig, error) {
	if cfg == nil {
		return reminder.ScanConfig{Every: reminder.DefaultScanEvery, InitialDelay: 5 * time.Second}, nil
	}
	sc := cfg.Reminders.Scan
	if _, err := reminder.ParseScanSchedule(sc.Every); err != nil {
		return reminder.ScanConfig{}, fmt.Errorf("reminders.scan.every: %w", err)
	}
	delay, err := parseDurationOrDefault("reminders.scan.initial_delay", sc.InitialDelay, 5*time.Second)
	if err != nil {
		return reminder.ScanConfig{}, err
	}
	return reminder.ScanConfig{Every: sc.Every, InitialDelay: delay}, nil
}

// defaultMaxAttempts applies when reminders.dispatch.max_attempts is omitted.
const defaultMaxAttempts = 10

func mapDispatchConfig(cfg *Config) (reminder.DispatchConfig, error) {
	out := reminder.DispatchConfig{MaxAttempts: defaultMaxAttempts}
	if cfg == nil {
		return out, nil
	}
	d := cfg.Reminders.Dispatch
	if d.Workers < 0 {
		return out, fmt.Errorf("reminders.dispatch.workers must be >= 0")
	}
	if d.RatePerSec < 0 {
		return out, fmt.Errorf("reminders.dispatch.rate_per_sec must be >= 0")
	}
	if d.MaxAttempts != nil {
		if *d.MaxAttempts < 0 {
			return out, fmt.Errorf("reminders.dispatch.max_attempts must be >= 0")
		}
		out.MaxAttempts = *d.MaxAttempts
	}
	out.Workers = d.Workers
	out.RatePerSec = d.RatePerSec

	var err error
	if out.SendTimeout, err = parseDurationField("reminders.dispatch.send_timeout", d.SendTimeout); err != nil {
		return out, err
	}
	sn := cfg.Reminders.Snooze
	if out.SnoozeShort, err = parseDurationField("reminders.snooze.short", sn.Short); err != nil {
		return out, err
	}
	if out.SnoozeLong, err = parseDurationField("reminders.snooze.long", sn.Long); err != nil {
		return out, err
	}
	for path, v := range map[string]time.Duration{
		"reminders.snooze.short": out.SnoozeShort,
		"reminders.snooze.long":  out.SnoozeLong,
	} {
		if v > 0 && v%time.Minute != 0 {
			return out, fmt.Errorf("%s: must be whole minutes", path)
		}
	}
	return out, nil
}
