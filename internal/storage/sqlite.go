//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	insertAuditSQL = `INSERT INTO audit(at, actor_id, actor_username, chat_id, thread_id, source, action, target, ok, err, took_ms, meta)
	 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`
	selectAuditSQL = `SELECT at, actor_id, actor_username, chat_id, thread_id, source, action, target, ok, err, took_ms, meta
	 FROM audit ORDER BY id DESC LIMIT ?`
	upsertDedupSQL = `INSERT INTO dedup(key, until) VALUES(?,?)
	 ON CONFLICT(key) DO UPDATE SET until=excluded.until`
	selectDedupSQL   = `SELECT until FROM dedup WHERE key = ?`
	deleteExpiredSQL = `DELETE FROM dedup WHERE until < ?`
)

// pruneEveryOps piggybacks an expired-key sweep on every Nth dedup write.
const pruneEveryOps = 500

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	ops atomic.Uint64
}

func newSQLiteStore(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	applyPragmas(db, cfg)

	st := &sqliteStore{db: db, log: log}
	if err := st.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func applyPragmas(db *sql.DB, cfg Config) {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, p := range pragmas {
		_, _ = db.Exec(p)
	}
}

func (s *sqliteStore) initSchema(ctx context.Context) error {
	ddl, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(ddl))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, insertAuditSQL,
		e.At.Format(time.RFC3339Nano), e.ActorID, orNull(e.ActorUsername), e.ChatID, e.ThreadID,
		e.Source, e.Action, orNull(e.Target), e.OK, orNull(e.Error), e.TookMS, orNull(e.MetaJSON),
	)
	return err
}

func (s *sqliteStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectAuditSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The query walks newest-first; callers want oldest-first.
	slices.Reverse(out)
	return out, nil
}

func scanAudit(rows *sql.Rows) (AuditEntry, error) {
	var (
		e        AuditEntry
		at       string
		username sql.NullString
		target   sql.NullString
		errText  sql.NullString
		meta     sql.NullString
	)
	err := rows.Scan(&at, &e.ActorID, &username, &e.ChatID, &e.ThreadID,
		&e.Source, &e.Action, &target, &e.OK, &errText, &e.TookMS, &meta)
	if err != nil {
		return AuditEntry{}, err
	}
	if t, perr := time.Parse(time.RFC3339Nano, at); perr == nil {
		e.At = t
	}
	e.ActorUsername = username.String
	e.Target = target.String
	e.Error = errText.String
	e.MetaJSON = meta.String
	return e, nil
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, upsertDedupSQL, key, until.UnixMilli())
	if err == nil && s.ops.Add(1)%pruneEveryOps == 0 {
		s.sweepSoon()
	}
	return err
}

// sweepSoon runs a bounded expired-key sweep off the caller's context.
func (s *sqliteStore) sweepSoon() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = s.pruneExpired(ctx)
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, selectDedupSQL, key).Scan(&ms)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) Compact(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	return s.pruneExpired(ctx)
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, deleteExpiredSQL, time.Now().UnixMilli())
	return err
}

func orNull(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
