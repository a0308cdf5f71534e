package app

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/storage"
)

// mapStorageConfig converts the JSON storage section into the backend
// config. The second result is false when storage is disabled.
func mapStorageConfig(cfg *Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage

	out := storage.Config{
		Driver: strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:   strings.TrimSpace(sc.Path),
	}
	switch out.Driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "file":
		return out, true, nil
	case "sqlite", "sqlite3":
		if out.Path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		out.BusyTimeout = busy
		return out, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
