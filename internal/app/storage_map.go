package app

import (
	"fmt"
	"strings"
	"time"

	"pockettodo/internal/storage"
)

func mapStorageConfig(cfg *Config, loc *time.Location) (storage.Config, error) {
	if cfg == nil {
		return storage.Config{Driver: "memory", Location: loc}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory", Location: loc}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Location: loc}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
