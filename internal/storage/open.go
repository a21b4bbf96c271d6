package storage

import (
	"fmt"
	"strings"
	"time"

	"pockettodo/internal/todo"
	logx "pockettodo/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (todo.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	switch driver {
	case "memory":
		return NewMemory(cfg.Location), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
