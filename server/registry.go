package server

import (
	"sync"
	"time"

	"github.com/hkinc45/dev-kitchen-onboarding/onboarding"
)

// Visitor is the per-session state kept between requests.
type Visitor struct {
	Orchestrator *onboarding.Orchestrator

	// SetBearer forwards the verified visitor token to the remote gateway.
	// It may be nil.
	SetBearer func(token string)
}

// VisitorFactory builds the state of a new session.
type VisitorFactory func(sessionID string) *Visitor

type visitorEntry struct {
	visitor  *Visitor
	lastSeen time.Time
}

// Registry maps session ids to visitors.
type Registry struct {
	factory VisitorFactory
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitorEntry
}

func NewRegistry(factory VisitorFactory) *Registry {
	return &Registry{
		factory:  factory,
		now:      time.Now,
		visitors: make(map[string]*visitorEntry),
	}
}

// Get returns the visitor for id, creating it on first use.
func (r *Registry) Get(id string) *Visitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.visitors[id]
	if !ok {
		entry = &visitorEntry{visitor: r.factory(id)}
		r.visitors[id] = entry
	}
	entry.lastSeen = r.now()
	return entry.visitor
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Sweep closes visitors idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	var stale []*Visitor

	r.mu.Lock()
	for id, entry := range r.visitors {
		if entry.lastSeen.Before(cutoff) {
			stale = append(stale, entry.visitor)
			delete(r.visitors, id)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		v.Orchestrator.Close()
	}
	return len(stale)
}

// Close closes every visitor.
func (r *Registry) Close() {
	r.mu.Lock()
	visitors := r.visitors
	r.visitors = make(map[string]*visitorEntry)
	r.mu.Unlock()

	for _, entry := range visitors {
		entry.visitor.Orchestrator.Close()
	}
}
