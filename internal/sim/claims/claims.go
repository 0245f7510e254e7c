package claims

import (
	"sort"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/google/uuid"
)

// Manager tracks the block positions drones have committed to. Claims are
// advisory: only task types that must not collide query and claim them.
type Manager struct {
	mu sync.Mutex
	m  map[cube.Pos]uuid.UUID
}

func NewManager() *Manager {
	return &Manager{m: map[cube.Pos]uuid.UUID{}}
}

// Claim reserves pos for holder. The first holder keeps the claim; the
// result reports whether holder owns pos afterwards.
func (c *Manager) Claim(pos cube.Pos, holder uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.m[pos]
	if !ok {
		c.m[pos] = holder
		return true
	}
	return cur == holder
}

func (c *Manager) IsClaimed(pos cube.Pos) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.m[pos]
	return ok
}

func (c *Manager) Holder(pos cube.Pos) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.m[pos]
	return h, ok
}

// Release drops the claim on pos if holder owns it.
func (c *Manager) Release(pos cube.Pos, holder uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.m[pos]; ok && cur == holder {
		delete(c.m, pos)
		return true
	}
	return false
}

// ReleaseHolder drops every claim owned by holder and returns how many
// were removed.
func (c *Manager) ReleaseHolder(holder uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for pos, h := range c.m {
		if h == holder {
			delete(c.m, pos)
			n++
		}
	}
	return n
}

func (c *Manager) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

type Entry struct {
	Pos    cube.Pos
	Holder uuid.UUID
}

// Snapshot returns every claim sorted by position.
func (c *Manager) Snapshot() []Entry {
	c.mu.Lock()
	out := make([]Entry, 0, len(c.m))
	for pos, h := range c.m {
		out = append(out, Entry{Pos: pos, Holder: h})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pos, out[j].Pos
		if a.X() != b.X() {
			return a.X() < b.X()
		}
		if a.Y() != b.Y() {
			return a.Y() < b.Y()
		}
		return a.Z() < b.Z()
	})
	return out
}

// Restore replaces all claims with entries.
func (c *Manager) Restore(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[cube.Pos]uuid.UUID, len(entries))
	for _, e := range entries {
		c.m[e.Pos] = e.Holder
	}
}

// Registry hands out one Manager per world.
type Registry struct {
	mu     sync.Mutex
	worlds map[string]*Manager
}

func NewRegistry() *Registry {
	return &Registry{worlds: map[string]*Manager{}}
}

func (r *Registry) For(worldID string) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.worlds[worldID]
	if !ok {
		m = NewManager()
		r.worlds[worldID] = m
	}
	return m
}

// Drop forgets a world's claims, e.g. when the world is unloaded.
func (r *Registry) Drop(worldID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.worlds, worldID)
}

var defaultRegistry = NewRegistry()

// ForWorld returns the process-wide claim manager of a world.
func ForWorld(worldID string) *Manager { return defaultRegistry.For(worldID) }

// DropWorld forgets a world's process-wide claims.
func DropWorld(worldID string) { defaultRegistry.Drop(worldID) }
