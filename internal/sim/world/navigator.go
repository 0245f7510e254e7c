package world

import (
	"math"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/go-gl/mathgl/mgl64"
)

// navigator flies a drone in a straight line. A blocked line either fails
// or, when the world allows it, schedules a teleport to the target.
type navigator struct {
	w *World
	d *Drone

	target   mgl64.Vec3
	moving   bool
	teleport bool
}

const pathSampleStep = 0.25

func (n *navigator) MoveTo(target mgl64.Vec3) bool {
	n.teleport = false
	if n.clearLine(n.d.Pos, target) {
		n.target, n.moving = target, true
		return true
	}
	n.moving = false
	if n.w.cfg.TeleportWhenBlocked && n.passable(cube.PosFromVec3(target)) {
		n.target, n.teleport = target, true
	}
	return false
}

func (n *navigator) IsGoingToTeleport() bool { return n.teleport }
func (n *navigator) HasNoPath() bool         { return !n.moving && !n.teleport }

func (n *navigator) stop() {
	n.moving, n.teleport = false, false
}

// tick advances the drone by one tick of movement.
func (n *navigator) tick() {
	if n.teleport {
		n.d.Pos = n.target
		n.teleport = false
		return
	}
	if !n.moving {
		return
	}
	delta := n.target.Sub(n.d.Pos)
	dist := delta.Len()
	speed := n.d.Speed
	if dist <= speed || dist == 0 {
		n.d.Pos = n.target
		n.moving = false
		return
	}
	next := n.d.Pos.Add(delta.Mul(speed / dist))
	if !n.passable(cube.PosFromVec3(next)) {
		// The world changed under the path.
		n.moving = false
		return
	}
	n.d.Pos = next
}

func (n *navigator) clearLine(from, to mgl64.Vec3) bool {
	delta := to.Sub(from)
	steps := int(math.Ceil(delta.Len() / pathSampleStep))
	start := cube.PosFromVec3(from)
	for i := 1; i <= steps; i++ {
		p := cube.PosFromVec3(from.Add(delta.Mul(float64(i) / float64(steps))))
		if p == start {
			continue
		}
		if !n.passable(p) {
			return false
		}
	}
	return n.passable(cube.PosFromVec3(to))
}

func (n *navigator) passable(pos cube.Pos) bool {
	if !n.w.terrain.InBounds(pos) {
		return false
	}
	b := n.w.terrain.Block(pos)
	if b.Solid {
		return false
	}
	return b.Fluid == "" || n.d.Fluids[b.Fluid]
}
