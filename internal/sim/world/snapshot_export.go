package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"dronecraft.ai/internal/persistence/snapshot"
	"dronecraft.ai/internal/sim/claims"
)

func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: 1, WorldID: w.cfg.ID, Tick: tick},
		Seed:        w.cfg.Seed,
		TickRate:    w.cfg.TickRateHz,
		ProgramName: w.programName,
	}
	for _, id := range w.order {
		d := w.drones[id]
		dv := snapshot.DroneV1{
			ID:         d.ID.String(),
			Name:       d.Name,
			Pos:        [3]float64{d.Pos[0], d.Pos[1], d.Pos[2]},
			Cursor:     d.Cursor,
			Actions:    d.Actions + d.StepActions(),
			Finished:   d.Finished,
			Aborted:    d.Aborted,
			TankFluid:  d.Tank.Fluid,
			TankAmount: d.Tank.Amount,
		}
		if len(d.Inventory) > 0 {
			dv.Inventory = make(map[string]int, len(d.Inventory))
			for k, n := range d.Inventory {
				dv.Inventory[k] = n
			}
		}
		s.Drones = append(s.Drones, dv)
	}
	for _, e := range w.terrain.Edits() {
		s.Blocks = append(s.Blocks, snapshot.BlockV1{Pos: [3]int(e.Pos), Block: e.Block})
	}
	for _, c := range w.claims.Snapshot() {
		s.Claims = append(s.Claims, snapshot.ClaimV1{Pos: [3]int(c.Pos), Holder: c.Holder.String()})
	}
	return s
}

// ImportSnapshot restores drones, terrain edits and claims. The program
// must already be loaded; running steps restart from their first pass.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world %q does not match %q", s.Header.WorldID, w.cfg.ID)
	}
	if s.ProgramName != w.programName {
		return fmt.Errorf("snapshot program %q does not match %q", s.ProgramName, w.programName)
	}
	edits := make([]BlockEdit, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		edits = append(edits, BlockEdit{Pos: cube.Pos(b.Pos), Block: b.Block})
	}
	entries := make([]claims.Entry, 0, len(s.Claims))
	for _, c := range s.Claims {
		holder, err := uuid.Parse(c.Holder)
		if err != nil {
			return fmt.Errorf("claim at %v: %w", c.Pos, err)
		}
		entries = append(entries, claims.Entry{Pos: cube.Pos(c.Pos), Holder: holder})
	}
	for _, dv := range s.Drones {
		id, err := uuid.Parse(dv.ID)
		if err != nil {
			return fmt.Errorf("drone %s: %w", dv.Name, err)
		}
		d, ok := w.drones[id]
		if !ok {
			return fmt.Errorf("drone %s not in program", dv.Name)
		}
		if dv.Cursor < 0 || dv.Cursor > len(d.steps) {
			return fmt.Errorf("drone %s: cursor %d out of range", dv.Name, dv.Cursor)
		}
	}
	if err := w.terrain.RestoreEdits(edits); err != nil {
		return err
	}
	w.claims.Restore(entries)
	for _, dv := range s.Drones {
		id, _ := uuid.Parse(dv.ID)
		d := w.drones[id]
		d.Pos = mgl64.Vec3{dv.Pos[0], dv.Pos[1], dv.Pos[2]}
		d.Cursor = dv.Cursor
		d.Actions = dv.Actions
		d.Finished = dv.Finished || dv.Cursor >= len(d.steps)
		d.Aborted = dv.Aborted
		d.Inventory = map[string]int{}
		for k, n := range dv.Inventory {
			d.Inventory[k] = n
		}
		d.Tank.Fluid, d.Tank.Amount = dv.TankFluid, dv.TankAmount
		d.search, d.exec, d.running = nil, nil, false
		d.nav.stop()
	}
	w.tick.Store(s.Header.Tick)
	return nil
}

func (w *World) droneTicks() []DroneTick {
	out := make([]DroneTick, 0, len(w.order))
	for _, id := range w.order {
		d := w.drones[id]
		dt := DroneTick{
			ID:      d.ID.String(),
			Step:    d.Cursor,
			State:   d.State().String(),
			Pos:     [3]float64{d.Pos[0], d.Pos[1], d.Pos[2]},
			Actions: d.Actions + d.StepActions(),
		}
		if desc, ok := d.Step(); ok {
			dt.Kind = string(desc.Kind)
		}
		out = append(out, dt)
	}
	return out
}

// stateDigest hashes drone positions, cursors, action counts and the terrain
// edit version.
func (w *World) stateDigest(tick uint64) string {
	h := sha256.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	put(tick)
	put(w.terrain.Version())
	for _, id := range w.order {
		d := w.drones[id]
		_, _ = h.Write(d.ID[:])
		for i := 0; i < 3; i++ {
			put(math.Float64bits(d.Pos[i]))
		}
		put(uint64(d.Cursor))
		put(uint64(d.Actions + d.StepActions()))
	}
	return hex.EncodeToString(h.Sum(nil))
}
