package supervisor

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

// SupervisorCounters are coarse goroutine counters for status output. They
// are advisory, never a synchronization primitive.
type SupervisorCounters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

// GoroutineStats is one row of per-task bookkeeping. Tasks sharing a name
// aggregate into the same row.
type GoroutineStats struct {
	Name         string        `json:"name"`
	Active       int64         `json:"active"`
	Started      uint64        `json:"started"`
	Panics       uint64        `json:"panics"`
	Restarts     uint64        `json:"restarts"`
	LastStartAt  time.Time     `json:"last_start_at"`
	LastStopAt   time.Time     `json:"last_stop_at"`
	LastErrAt    time.Time     `json:"last_err_at"`
	LastErr      string        `json:"last_err,omitempty"`
	LastPanicAt  time.Time     `json:"last_panic_at"`
	LastPanic    string        `json:"last_panic,omitempty"`
	LastRuntime  time.Duration `json:"last_runtime"`
	TotalRuntime time.Duration `json:"total_runtime"`
}

// SupervisorSnapshot is a point-in-time view of a supervisor.
type SupervisorSnapshot struct {
	Counters   SupervisorCounters `json:"counters"`
	FirstError string             `json:"first_error,omitempty"`
	Goroutines []GoroutineStats   `json:"goroutines"`
}

// taskStats is the mutable backing row; all mutation happens under
// Supervisor.muStats.
type taskStats struct {
	row GoroutineStats
}

func (t *taskStats) onStart(now time.Time, isRestart bool) {
	t.row.Started++
	t.row.Active++
	t.row.LastStartAt = now
	if isRestart {
		t.row.Restarts++
	}
}

func (t *taskStats) onStop(now time.Time, dur time.Duration, err error) {
	if t.row.Active > 0 {
		t.row.Active--
	}
	t.row.LastStopAt = now
	t.row.LastRuntime = dur
	t.row.TotalRuntime += dur
	if err != nil {
		t.row.LastErr = err.Error()
		t.row.LastErrAt = now
	}
}

func (t *taskStats) onPanic(now time.Time, p any) {
	t.row.Panics++
	t.row.LastPanic = fmt.Sprint(p)
	t.row.LastPanicAt = now
}

func (s *Supervisor) Counters() SupervisorCounters {
	if s == nil {
		return SupervisorCounters{}
	}
	return SupervisorCounters{
		Active:  atomic.LoadInt64(&s.nActive),
		Started: atomic.LoadUint64(&s.nStarted),
	}
}

// Snapshot collects counters and per-task rows for status and debug output.
// Rows are ordered active first, then most recently started, then by name.
func (s *Supervisor) Snapshot() SupervisorSnapshot {
	if s == nil {
		return SupervisorSnapshot{}
	}
	snap := SupervisorSnapshot{Counters: s.Counters()}
	if err := s.Err(); err != nil {
		snap.FirstError = err.Error()
	}

	s.muStats.Lock()
	rows := make([]GoroutineStats, 0, len(s.tasks))
	for _, t := range s.tasks {
		rows = append(rows, t.row)
	}
	s.muStats.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.Active != b.Active:
			return a.Active > b.Active
		case !a.LastStartAt.Equal(b.LastStartAt):
			return a.LastStartAt.After(b.LastStartAt)
		default:
			return a.Name < b.Name
		}
	})

	snap.Goroutines = rows
	return snap
}

func (s *Supervisor) task(name string) *taskStats {
	t := s.tasks[name]
	if t == nil {
		t = &taskStats{row: GoroutineStats{Name: name}}
		if s.tasks == nil {
			s.tasks = map[string]*taskStats{}
		}
		s.tasks[name] = t
	}
	return t
}

func (s *Supervisor) markStart(name string, isRestart bool) time.Time {
	now := time.Now()
	if s == nil {
		return now
	}
	s.muStats.Lock()
	s.task(name).onStart(now, isRestart)
	s.muStats.Unlock()
	return now
}

func (s *Supervisor) markStop(name string, startedAt time.Time, err error) {
	if s == nil {
		return
	}
	now := time.Now()
	s.muStats.Lock()
	s.task(name).onStop(now, now.Sub(startedAt), err)
	s.muStats.Unlock()
}

func (s *Supervisor) markPanic(name string, p any) {
	if s == nil {
		return
	}
	s.muStats.Lock()
	s.task(name).onPanic(time.Now(), p)
	s.muStats.Unlock()
}
