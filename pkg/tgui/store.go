package tgui

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// TokenStore maps short opaque tokens to payloads that are too large for
// Telegram callback_data (64 bytes). Handlers park the payload here and put
// only the token on the button; the callback handler redeems it.
//
// Entries expire after a TTL and the store holds at most max entries,
// evicting the oldest when full. Everything lives in memory: tokens do not
// survive a restart, which is acceptable for short-lived inline keyboards.
type TokenStore struct {
	mu    sync.Mutex
	items map[string]tokenEntry
	order []string // insertion order, oldest first; may contain stale keys

	ttl       time.Duration
	max       int
	nextSweep time.Time
}

type tokenEntry struct {
	payload []byte
	expires time.Time
}

const tokenSweepEvery = time.Minute

// NewTokenStore returns a store with a 15 minute TTL and room for 5000
// entries. Tune with WithTTL and WithMax.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		items: make(map[string]tokenEntry),
		ttl:   15 * time.Minute,
		max:   5000,
	}
}

// WithTTL sets the entry lifetime. Non-positive values keep the default.
func (s *TokenStore) WithTTL(ttl time.Duration) *TokenStore {
	if s != nil && ttl > 0 {
		s.mu.Lock()
		s.ttl = ttl
		s.mu.Unlock()
	}
	return s
}

// WithMax sets the entry cap. Non-positive values keep the default.
func (s *TokenStore) WithMax(n int) *TokenStore {
	if s != nil && n > 0 {
		s.mu.Lock()
		s.max = n
		s.mu.Unlock()
	}
	return s
}

// PutBytes stores payload and returns its token. Tokens start with '~' so
// they cannot be mistaken for literal IDs in callback payloads, and they
// never contain ':', keeping callback data splittable.
func (s *TokenStore) PutBytes(payload []byte) string {
	if s == nil {
		return ""
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	var tok string
	for {
		tok = newToken(now)
		if _, taken := s.items[tok]; !taken {
			break
		}
	}

	s.items[tok] = tokenEntry{
		payload: append([]byte(nil), payload...),
		expires: now.Add(s.ttl),
	}
	s.order = append(s.order, tok)
	s.evictLocked()
	return tok
}

// PutString stores a string payload and returns its token.
func (s *TokenStore) PutString(payload string) string {
	return s.PutBytes([]byte(payload))
}

// GetBytes redeems a token. Expired or unknown tokens miss.
func (s *TokenStore) GetBytes(tok string) ([]byte, bool) {
	if s == nil || tok == "" {
		return nil, false
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[tok]
	if !ok {
		return nil, false
	}
	if now.After(e.expires) {
		delete(s.items, tok)
		return nil, false
	}
	return append([]byte(nil), e.payload...), true
}

// GetString redeems a token as a string.
func (s *TokenStore) GetString(tok string) (string, bool) {
	b, ok := s.GetBytes(tok)
	if !ok {
		return "", false
	}
	return string(b), true
}

// sweepLocked drops expired entries, at most once per tokenSweepEvery.
func (s *TokenStore) sweepLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(tokenSweepEvery)

	for tok, e := range s.items {
		if now.After(e.expires) {
			delete(s.items, tok)
		}
	}
	s.compactOrderLocked()
}

// evictLocked enforces the cap by dropping the oldest entries.
func (s *TokenStore) evictLocked() {
	for len(s.items) > s.max && len(s.order) > 0 {
		tok := s.order[0]
		s.order = s.order[1:]
		delete(s.items, tok)
	}
}

// compactOrderLocked removes keys from the order queue whose entries are
// already gone, so the queue cannot grow unbounded across sweeps.
func (s *TokenStore) compactOrderLocked() {
	live := s.order[:0]
	for _, tok := range s.order {
		if _, ok := s.items[tok]; ok {
			live = append(live, tok)
		}
	}
	s.order = live
}

// newToken returns "~" plus 12 hex characters (6 random bytes). Short enough
// to leave room for the feature/action prefix inside the 64 byte callback
// budget.
func newToken(now time.Time) string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable in practice; fall back to a
		// time-derived token rather than panicking in a UI path.
		ts := now.UnixNano()
		for i := range b {
			b[i] = byte(ts >> (8 * i))
		}
	}
	return "~" + hex.EncodeToString(b[:])
}
