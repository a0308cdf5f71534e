package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Store is the persistence surface behind the audit trail and the
// notifier's dedup state.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to limit entries, oldest first.
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	// Compact drops expired dedup state and shrinks backing files. Cheap
	// enough to run on a daily schedule.
	Compact(ctx context.Context) error

	Close() error
}

// Open initializes the configured store. A missing or "none" driver means
// storage is off, reported as (nil, nil).
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		return newFileStore(cfg, log)
	case "sqlite", "sqlite3":
		return newSQLiteStore(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
