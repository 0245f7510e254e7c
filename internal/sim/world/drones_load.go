package world

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/program"
	"dronecraft.ai/internal/sim/tasks"
)

// DroneID derives a stable drone id from the world and drone name so
// snapshots line up with reloaded programs.
func DroneID(worldID, name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(worldID+"/"+name))
}

// LoadProgram spawns the program's drones. It must be called before Run.
func (w *World) LoadProgram(p *program.Program) error {
	if p == nil {
		return fmt.Errorf("world %s: nil program", w.cfg.ID)
	}
	drones := make([]*Drone, 0, len(p.Drones))
	for _, pd := range p.Drones {
		d, err := w.newDrone(pd)
		if err != nil {
			return fmt.Errorf("drone %s: %w", pd.Name, err)
		}
		if _, dup := w.drones[d.ID]; dup {
			return fmt.Errorf("drone %s: already loaded", pd.Name)
		}
		drones = append(drones, d)
	}
	for _, d := range drones {
		w.drones[d.ID] = d
		w.order = append(w.order, d.ID)
		for _, o := range w.observers {
			o.attachIfWatching(d)
		}
	}
	sort.Slice(w.order, func(i, j int) bool { return w.order[i].String() < w.order[j].String() })
	w.programName = p.Name
	w.log.WithField("program", p.Name).WithField("drones", len(drones)).Info("program loaded")
	return nil
}

func (w *World) newDrone(pd program.Drone) (*Drone, error) {
	steps := make([]tasks.Descriptor, 0, len(pd.Steps))
	for i, st := range pd.Steps {
		desc, err := st.Descriptor()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if desc.Block != "" {
			if _, ok := w.catalogs.Blocks.Index[desc.Block]; !ok {
				return nil, fmt.Errorf("step %d: unknown block %s", i, desc.Block)
			}
		}
		steps = append(steps, desc)
	}
	speed := pd.Speed
	if speed <= 0 {
		speed = w.cfg.DroneSpeed
	}
	d := &Drone{
		ID:        DroneID(w.cfg.ID, pd.Name),
		Name:      pd.Name,
		Pos:       mgl64.Vec3{pd.Spawn[0], pd.Spawn[1], pd.Spawn[2]},
		Speed:     speed,
		Inventory: map[string]int{},
		Tank:      Tank{Capacity: w.cfg.TankCapacity},
		Fluids:    map[string]bool{},
		Loop:      pd.Loop,
		steps:     steps,
	}
	for item, n := range pd.Inventory {
		if n > 0 {
			d.Inventory[item] = n
		}
	}
	for _, f := range pd.Fluids {
		d.Fluids[f] = true
	}
	d.nav = &navigator{w: w, d: d}
	d.dbg = debugger.New(d.ID.String(), w.tick.Load, w.debugSink, w.cfg.DebugHistory)
	return d, nil
}

// Drone looks a drone up by id or name.
func (w *World) Drone(ref string) (*Drone, bool) {
	if id, err := uuid.Parse(ref); err == nil {
		d, ok := w.drones[id]
		return d, ok
	}
	for _, id := range w.order {
		if d := w.drones[id]; d.Name == ref {
			return d, true
		}
	}
	return nil, false
}

// DroneNames lists drone names in stepping order. The set is fixed once the
// program is loaded, so it is safe to call from other goroutines after Run
// starts.
func (w *World) DroneNames() []string {
	out := make([]string, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.drones[id].Name)
	}
	return out
}
