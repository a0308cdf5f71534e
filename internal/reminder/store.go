package reminder

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store holds reminders in creation order. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	limit int
	items []Reminder
}

// NewStore returns an empty store capped at limit entries (<= 0 selects the
// package default).
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = defaultMaxReminders
	}
	return &Store{limit: limit}
}

// SetLimit changes the cap. Shrinking below the current count never evicts;
// it only blocks new appends until the count drops.
func (s *Store) SetLimit(n int) {
	if n <= 0 {
		n = defaultMaxReminders
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
}

// Limit returns the current cap.
func (s *Store) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Append adds r at the end of the list. Returns ErrStoreFull at the cap.
func (s *Store) Append(r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) >= s.limit {
		return ErrStoreFull
	}
	s.items = append(s.items, r)
	return nil
}

// Remove deletes the reminder with the given id, preserving the order of the
// remaining entries. ok is false when nothing matched.
func (s *Store) Remove(id uuid.UUID) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			r := s.items[i]
			s.items = append(s.items[:i], s.items[i+1:]...)
			return r, true
		}
	}
	return Reminder{}, false
}

// Get returns the reminder with the given id.
func (s *Store) Get(id uuid.UUID) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			return s.items[i], true
		}
	}
	return Reminder{}, false
}

// ByPrefix resolves a reminder from a full id or a unique id prefix.
// Returns ErrNotFound when nothing matches and ErrAmbiguous when the prefix
// matches more than one entry.
func (s *Store) ByPrefix(prefix string) (Reminder, error) {
	p := strings.ToLower(strings.TrimSpace(prefix))
	if p == "" {
		return Reminder{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var found Reminder
	matches := 0
	for i := range s.items {
		if strings.HasPrefix(s.items[i].ID.String(), p) {
			found = s.items[i]
			matches++
		}
	}
	switch matches {
	case 0:
		return Reminder{}, ErrNotFound
	case 1:
		return found, nil
	default:
		return Reminder{}, ErrAmbiguous
	}
}

// List returns a copy of the reminders in creation order.
func (s *Store) List() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reminder, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of stored reminders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
