package app

import (
	"fmt"
	"net"
	"strings"
	"time"

	"pockettodo/internal/ops"
)

func mapOpsConfig(cfg *Config) (ops.Config, error) {
	if cfg == nil {
		return ops.Config{}, nil
	}
	oc := cfg.Ops
	addr := strings.TrimSpace(oc.Addr)
	if addr == "" {
		addr = ops.DefaultAddr
	}
	if oc.Enabled {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return ops.Config{}, fmt.Errorf("ops.addr: invalid %q: %w", addr, err)
		}
	}
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(oc.Token),
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   60 * time.Second,
	}, nil
}
