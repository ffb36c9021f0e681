// Package gate serializes work per competition and numbers committed mutations.
package gate

import (
	"sync"
	"sync/atomic"
)

type entry struct {
	mu       sync.Mutex
	revision atomic.Int64
}

// Gate hands out one mutex and one revision counter per competition.
// Different competitions never block each other.
type Gate struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns an empty gate.
func New() *Gate {
	return &Gate{entries: make(map[int64]*entry)}
}

func (g *Gate) get(competitionID int64) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[competitionID]
	if !ok {
		e = &entry{}
		g.entries[competitionID] = e
	}
	return e
}

// Lock acquires the competition's mutex and returns its Held handle.
func (g *Gate) Lock(competitionID int64) *Held {
	e := g.get(competitionID)
	e.mu.Lock()
	return &Held{e: e, CompetitionID: competitionID}
}

// Revision returns the last committed revision without locking the competition.
// It is only stable while the caller holds the competition.
func (g *Gate) Revision(competitionID int64) int64 {
	return g.get(competitionID).revision.Load()
}

// Held is a locked competition.
type Held struct {
	e             *entry
	CompetitionID int64
	released      bool
}

// Revision returns the competition's current revision.
func (h *Held) Revision() int64 { return h.e.revision.Load() }

// Advance bumps and returns the revision. Call it once per committed mutation.
func (h *Held) Advance() int64 {
	return h.e.revision.Add(1)
}

// Unlock releases the competition. Calling it twice is a no-op.
func (h *Held) Unlock() {
	if h.released {
		return
	}
	h.released = true
	h.e.mu.Unlock()
}
