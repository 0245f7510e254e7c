package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/feature/blocksearch"
	"dronecraft.ai/internal/sim/tasks"
)

type Tank struct {
	Fluid    string `json:"fluid,omitempty"`
	Amount   int    `json:"amount"`
	Capacity int    `json:"capacity"`
}

func (t Tank) Accepts(fluid string) bool {
	return t.Amount < t.Capacity && (t.Amount == 0 || t.Fluid == fluid)
}

type Drone struct {
	ID        uuid.UUID
	Name      string
	Pos       mgl64.Vec3
	Speed     float64
	Inventory map[string]int
	Tank      Tank
	Fluids    map[string]bool
	Loop      bool

	steps []tasks.Descriptor
	// Cursor is the index of the running step.
	Cursor int
	// Actions counts committed positions over the drone's lifetime.
	Actions  int
	Finished bool
	Aborted  bool

	nav       *navigator
	dbg       *debugger.Debugger
	search    *blocksearch.Search
	exec      tasks.Executor
	running   bool
	idleUntil uint64
}

func (d *Drone) Steps() int { return len(d.steps) }

// Step returns the running step descriptor, if any.
func (d *Drone) Step() (tasks.Descriptor, bool) {
	if d.Finished || d.Cursor < 0 || d.Cursor >= len(d.steps) {
		return tasks.Descriptor{}, false
	}
	return d.steps[d.Cursor], true
}

// State reports the search state of the running step.
func (d *Drone) State() blocksearch.State {
	if d.Aborted {
		return blocksearch.StateAborted
	}
	if d.search == nil {
		return blocksearch.StateIdle
	}
	return d.search.State()
}

// StepActions counts positions committed in the running step.
func (d *Drone) StepActions() int {
	if d.search == nil {
		return 0
	}
	return d.search.TotalActions()
}

func (d *Drone) inventoryKeys() []string {
	keys := make([]string, 0, len(d.Inventory))
	for k := range d.Inventory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
