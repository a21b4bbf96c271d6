package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "pockettodo/pkg/logx"
)

// sdNotify is swapped in tests.
var sdNotify = daemon.SdNotify

// notifySystemd reports state to systemd. Outside a Type=notify unit it is a no-op.
func notifySystemd(log logx.Logger, state string) {
	sent, err := sdNotify(false, state)
	switch {
	case err != nil:
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		log.Debug("systemd notified", logx.String("state", state))
	}
}

// watchdogLoop pings the systemd watchdog at half the configured interval.
// It returns immediately when WatchdogSec is not set for the unit.
func watchdogLoop(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog check failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			notifySystemd(log, daemon.SdNotifyWatchdog)
		}
	}
}
