package world

import (
	"context"
	"fmt"

	"dronecraft.ai/internal/sim/debugger"
)

type abortReq struct {
	Ref  string
	Resp chan bool
}

type stateReq struct {
	Resp chan StateView
}

type StateView struct {
	WorldID string      `json:"world_id"`
	Program string      `json:"program"`
	Tick    uint64      `json:"tick"`
	Drones  []DroneView `json:"drones"`
}

type DroneView struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Pos          [3]float64       `json:"pos"`
	Step         int              `json:"step"`
	Steps        int              `json:"steps"`
	Kind         string           `json:"kind,omitempty"`
	State        string           `json:"state"`
	StepActions  int              `json:"step_actions"`
	TotalActions int              `json:"total_actions"`
	Finished     bool             `json:"finished"`
	Aborted      bool             `json:"aborted"`
	Inventory    map[string]int   `json:"inventory,omitempty"`
	Tank         Tank             `json:"tank"`
	Debug        []debugger.Entry `json:"debug,omitempty"`
}

// AbortDrone stops a drone's program for good. It must run on the world
// loop goroutine; other goroutines use RequestAbort.
func (w *World) AbortDrone(ref string) bool {
	d, ok := w.Drone(ref)
	if !ok || d.Finished {
		return false
	}
	tick := w.tick.Load()
	d.dbg.AddEntry(debugger.KeyAborted)
	if d.search != nil {
		d.search.Abort()
		w.finishStep(tick, d, ReasonAborted)
	} else {
		d.Aborted, d.Finished = true, true
		d.nav.stop()
		w.claims.ReleaseHolder(d.ID)
	}
	w.droneLog(d).Warn("drone aborted")
	return true
}

// State builds a read-only view of all drones. Loop goroutine only.
func (w *World) State() StateView {
	v := StateView{WorldID: w.cfg.ID, Program: w.programName, Tick: w.tick.Load()}
	for _, id := range w.order {
		d := w.drones[id]
		dv := DroneView{
			ID:           d.ID.String(),
			Name:         d.Name,
			Pos:          [3]float64{d.Pos[0], d.Pos[1], d.Pos[2]},
			Step:         d.Cursor,
			Steps:        d.Steps(),
			State:        d.State().String(),
			StepActions:  d.StepActions(),
			TotalActions: d.Actions + d.StepActions(),
			Finished:     d.Finished,
			Aborted:      d.Aborted,
			Tank:         d.Tank,
			Debug:        d.dbg.Entries(),
		}
		if desc, ok := d.Step(); ok {
			dv.Kind = string(desc.Kind)
		}
		if len(d.Inventory) > 0 {
			dv.Inventory = make(map[string]int, len(d.Inventory))
			for _, k := range d.inventoryKeys() {
				dv.Inventory[k] = d.Inventory[k]
			}
		}
		v.Drones = append(v.Drones, dv)
	}
	return v
}

// RequestAbort asks the running world loop to abort a drone.
func (w *World) RequestAbort(ctx context.Context, ref string) (bool, error) {
	resp := make(chan bool, 1)
	select {
	case w.abort <- abortReq{Ref: ref, Resp: resp}:
	case <-ctx.Done():
		return false, ctx.Err()
	default:
		return false, fmt.Errorf("world %s: abort queue full", w.cfg.ID)
	}
	select {
	case ok := <-resp:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// RequestState asks the running world loop for a state view.
func (w *World) RequestState(ctx context.Context) (StateView, error) {
	resp := make(chan StateView, 1)
	select {
	case w.state <- stateReq{Resp: resp}:
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
}
