package router

import (
	"maps"
	"sync"
)

// SupervisorRegistry tracks subsystem supervisors by name so operational
// commands can inspect them. It is shared across handler goroutines, so
// access is locked; a nil registry is a no-op.
type SupervisorRegistry struct {
	mu     sync.RWMutex
	byName map[string]*Supervisor
}

func NewSupervisorRegistry() *SupervisorRegistry {
	return &SupervisorRegistry{byName: map[string]*Supervisor{}}
}

// Set registers or replaces a supervisor; a nil sup removes the entry.
func (r *SupervisorRegistry) Set(name string, sup *Supervisor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.byName, name)
		return
	}
	r.byName[name] = sup
}

func (r *SupervisorRegistry) Delete(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byName, name)
}

// Snapshot copies the current name to supervisor mapping.
func (r *SupervisorRegistry) Snapshot() map[string]*Supervisor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.byName)
}
