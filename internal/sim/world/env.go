package world

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"dronecraft.ai/internal/sim/catalogs"
	"dronecraft.ai/internal/sim/feature/blocksearch"
	"dronecraft.ai/internal/sim/feature/observe"
)

// droneEnv adapts a drone and its world to the search and task contracts.
type droneEnv struct {
	w *World
	d *Drone
}

func (e droneEnv) DroneID() uuid.UUID                   { return e.d.ID }
func (e droneEnv) DronePos() mgl64.Vec3                 { return e.d.Pos }
func (e droneEnv) Navigator() blocksearch.Navigator     { return e.d.nav }
func (e droneEnv) Debugger() blocksearch.Debugger       { return e.d.dbg }
func (e droneEnv) Claims() blocksearch.ClaimStore       { return e.w.claims }
func (e droneEnv) Sorter() blocksearch.Sorter           { return e.w.sorter }
func (e droneEnv) Indicators() *observe.Channel         { return e.w.indicators }
func (e droneEnv) Block(pos cube.Pos) catalogs.BlockDef { return e.w.terrain.Block(pos) }
func (e droneEnv) CanMoveIntoFluid(fluid string) bool   { return e.d.Fluids[fluid] }
func (e droneEnv) ItemCount(item string) int            { return e.d.Inventory[item] }
func (e droneEnv) TankAccepts(fluid string) bool        { return e.d.Tank.Accepts(fluid) }

func (e droneEnv) Passable(pos cube.Pos) bool {
	return e.w.terrain.InBounds(pos) && !e.w.terrain.Block(pos).Solid
}

func (e droneEnv) FluidAt(pos cube.Pos) (string, bool) {
	f := e.w.terrain.Block(pos).Fluid
	return f, f != ""
}

// editable reports whether this drone may change the block at pos: another
// drone's claim protects it.
func (e droneEnv) editable(pos cube.Pos) bool {
	holder, ok := e.w.claims.Holder(pos)
	return !ok || holder == e.d.ID
}

func (e droneEnv) Break(pos cube.Pos) (string, bool) {
	b := e.w.terrain.Block(pos)
	if !b.Breakable || !e.editable(pos) || !e.w.terrain.SetBlock(pos, catalogs.Air) {
		return "", false
	}
	return b.DropsItem, true
}

func (e droneEnv) Place(pos cube.Pos, block string) bool {
	if e.w.terrain.Block(pos).ID != catalogs.Air || !e.editable(pos) {
		return false
	}
	return e.w.terrain.SetBlock(pos, block)
}

func (e droneEnv) AddItem(item string, n int) {
	if n <= 0 {
		return
	}
	e.d.Inventory[item] += n
}

func (e droneEnv) TakeItem(item string, n int) bool {
	if e.d.Inventory[item] < n {
		return false
	}
	e.d.Inventory[item] -= n
	if e.d.Inventory[item] == 0 {
		delete(e.d.Inventory, item)
	}
	return true
}

func (e droneEnv) Drain(pos cube.Pos) bool {
	b := e.w.terrain.Block(pos)
	if b.Fluid == "" || !e.d.Tank.Accepts(b.Fluid) || !e.editable(pos) {
		return false
	}
	if !e.w.terrain.SetBlock(pos, catalogs.Air) {
		return false
	}
	e.d.Tank.Fluid = b.Fluid
	e.d.Tank.Amount++
	return true
}

func (e droneEnv) Reject(pos cube.Pos) {
	if e.d.search != nil {
		e.d.search.Blacklist(pos)
	}
}
