package scheduler

import (
	"sort"
	"time"
)

// Snapshot returns a point-in-time view of the service for status surfaces.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: s.cfg.Timezone,
		Workers:  s.cfg.Workers,
	}
	defs := append([]repeatDef(nil), s.defs...)
	cr := s.cr
	loc := s.loc
	if q := s.queue; q != nil {
		snap.QueueLen, snap.QueueCap = len(q), cap(q)
	}
	s.mu.Unlock()

	if snap.Workers <= 0 {
		snap.Workers = 2
	}
	if loc == nil {
		loc = time.Local
	}
	if snap.Timezone == "" {
		snap.Timezone = loc.String()
	}

	snap.Schedules = make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		info := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if cr != nil && d.entryID != 0 {
			entry := cr.Entry(d.entryID)
			info.Next, info.Prev = entry.Next, entry.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}

	s.onceMu.Lock()
	snap.Once = make([]OnceInfo, 0, len(s.once))
	for name, e := range s.once {
		snap.Once = append(snap.Once, OnceInfo{Name: name, At: e.at})
	}
	s.onceMu.Unlock()
	sort.Slice(snap.Once, func(i, j int) bool {
		a, b := snap.Once[i], snap.Once[j]
		if a.At.Equal(b.At) {
			return a.Name < b.Name
		}
		return a.At.Before(b.At)
	})

	s.histMu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.histMu.Unlock()

	return snap
}
