package blocksearch

import (
	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"dronecraft.ai/internal/sim/feature/observe"
	"dronecraft.ai/internal/sim/sorter"
)

// Debug entry keys recorded by the search.
const (
	KeyCantNavigate  = "drone.debug.cant_navigate"
	KeyNoValidBlocks = "drone.debug.no_valid_blocks"
	KeyBlacklisted   = "drone.debug.blacklisted"
)

// Task is the per-task-type interaction contract.
//
// Validate must not change the world; it may simulate the interaction.
// Interact performs it. Beware the result of Interact: false means the work
// at pos is done and the drone should stop retrying; true means try again
// next tick.
type Task interface {
	Validate(pos cube.Pos) bool
	Interact(pos cube.Pos, distSq float64) bool
}

// Traits are the static properties of a task type.
type Traits struct {
	// RespectClaims skips positions other drones claimed and claims on commit.
	RespectClaims bool
	// MoveIntoBlock makes the drone fly into the target block instead of
	// next to it.
	MoveIntoBlock bool
	// InPlace tasks run without moving the drone.
	InPlace bool
	// Sides limits the faces a drone may approach from. Empty means all.
	Sides []cube.Face
}

func (t Traits) sideSelected(f cube.Face) bool {
	if len(t.Sides) == 0 {
		return true
	}
	for _, s := range t.Sides {
		if s == f {
			return true
		}
	}
	return false
}

type Navigator interface {
	// MoveTo requests a path to target and reports whether one was found.
	MoveTo(target mgl64.Vec3) bool
	// IsGoingToTeleport reports that the last failed request will be served
	// by an instant relocation instead.
	IsGoingToTeleport() bool
	HasNoPath() bool
}

type Debugger interface {
	AddEntry(key string, pos ...cube.Pos)
	Observers() []observe.Observer
	Wireframe(pos cube.Pos)
}

type ClaimStore interface {
	Claim(pos cube.Pos, holder uuid.UUID) bool
	IsClaimed(pos cube.Pos) bool
}

type Sorter interface {
	Sort(positions []cube.Pos, less sorter.Less) *sorter.Job
}

// Env is everything the search needs from the drone and its world.
type Env interface {
	DroneID() uuid.UUID
	DronePos() mgl64.Vec3
	Navigator() Navigator
	Debugger() Debugger
	Claims() ClaimStore
	Sorter() Sorter
	Indicators() *observe.Channel

	// Passable reports whether a drone can occupy pos.
	Passable(pos cube.Pos) bool
	// FluidAt returns the fluid filling pos, if any.
	FluidAt(pos cube.Pos) (string, bool)
	CanMoveIntoFluid(fluid string) bool
}
