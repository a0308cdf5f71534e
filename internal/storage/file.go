package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// fileStore persists to plain files next to the configured path, no
// database required.
//
// Layout, derived from Config.Path with its extension dropped:
//
//	<stem>.audit.jsonl          audit trail, one JSON object per line
//	<stem>.dedup.snapshot.json  dedup state at the last compaction
//	<stem>.dedup.journal.jsonl  dedup writes since the last compaction
//
// Startup restores the snapshot and replays the journal over it, so the
// last write wins. Compaction rewrites the snapshot from memory and
// empties the journal.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	paths   layout
	audit   *os.File
	journal *os.File

	keys   dedupState
	writes int // journal appends since the last compaction
}

// journalAutoCompact folds the journal into the snapshot after this many
// writes, independent of the scheduled compaction.
const journalAutoCompact = 1000

type journalRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

type layout struct {
	audit    string
	snapshot string
	journal  string
}

func layoutFor(path string) layout {
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return layout{
		audit:    stem + ".audit.jsonl",
		snapshot: stem + ".dedup.snapshot.json",
		journal:  stem + ".dedup.journal.jsonl",
	}
}

func newFileStore(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	paths := layoutFor(path)

	keys := dedupState{}
	keys.loadSnapshot(paths.snapshot)
	keys.replayJournal(paths.journal)
	keys.prune(time.Now().UnixMilli())

	audit, err := os.OpenFile(paths.audit, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	journal, err := os.OpenFile(paths.journal, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = audit.Close()
		return nil, err
	}

	return &fileStore{
		log:     log,
		paths:   paths,
		audit:   audit,
		journal: journal,
		keys:    keys,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
		s.audit = nil
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrDisabled
	}
	_, err = s.audit.Write(append(line, '\n'))
	return err
}

// RecentAudit reads the audit file and returns the last limit entries,
// oldest first. Unparseable lines are skipped.
func (s *fileStore) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	path := s.paths.audit
	open := s.audit != nil
	s.mu.Unlock()
	if !open {
		return nil, ErrDisabled
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	// Keep only the last limit entries while streaming.
	ring := make([]AuditEntry, limit)
	total := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e AuditEntry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		ring[total%limit] = e
		total++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	n := min(total, limit)
	out := make([]AuditEntry, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, ring[i%limit])
	}
	return out, nil
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	line, err := json.Marshal(journalRecord{Key: key, Until: ms})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}
	if s.keys == nil {
		s.keys = dedupState{}
	}
	s.keys[key] = ms

	if _, err := s.journal.Write(append(line, '\n')); err != nil {
		return err
	}
	if s.writes++; s.writes >= journalAutoCompact {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.keys[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrDisabled
	}
	return s.compactLocked()
}

// compactLocked writes the pruned state to the snapshot (atomically, via
// rename) and truncates the journal. Call with s.mu held.
func (s *fileStore) compactLocked() error {
	s.keys.prune(time.Now().UnixMilli())

	b, err := json.Marshal(s.keys)
	if err != nil {
		return err
	}
	tmp := s.paths.snapshot + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.paths.snapshot); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	if _, err := s.journal.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	s.writes = 0
	return nil
}

// dedupState maps dedup key to expiry in unix milliseconds.
type dedupState map[string]int64

func (d dedupState) prune(now int64) {
	for k, until := range d {
		if until < now {
			delete(d, k)
		}
	}
}

// loadSnapshot merges a snapshot file into d. A missing or malformed
// snapshot is skipped; the journal replay still applies newer writes.
func (d dedupState) loadSnapshot(path string) {
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var m map[string]int64
	if json.Unmarshal(b, &m) != nil {
		return
	}
	for k, v := range m {
		d[k] = v
	}
}

// replayJournal applies journal records in order, last write wins. Replay
// stops at the first record that does not decode, which drops a torn tail
// left by a crash mid-append.
func (d dedupState) replayJournal(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	for {
		var r journalRecord
		if dec.Decode(&r) != nil {
			return
		}
		if r.Key != "" {
			d[r.Key] = r.Until
		}
	}
}
