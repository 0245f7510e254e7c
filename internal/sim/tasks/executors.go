package tasks

import (
	"github.com/df-mc/dragonfly/server/block/cube"

	"dronecraft.ai/internal/sim/catalogs"
)

// Interact results follow blocksearch.Task: false ends the work at pos.

type digTask struct {
	d   Descriptor
	env Env
}

func (t *digTask) Kind() Kind { return KindDig }

func (t *digTask) Validate(pos cube.Pos) bool {
	b := t.env.Block(pos)
	return b.ID != catalogs.Air && b.Breakable && t.d.matches(b.ID)
}

func (t *digTask) Interact(pos cube.Pos, _ float64) bool {
	if !t.Validate(pos) {
		return false
	}
	drop, ok := t.env.Break(pos)
	if !ok {
		t.env.Reject(pos)
		return false
	}
	if drop != "" {
		t.env.AddItem(drop, 1)
	}
	return false
}

type placeTask struct {
	d   Descriptor
	env Env
}

func (t *placeTask) Kind() Kind { return KindPlace }

func (t *placeTask) Validate(pos cube.Pos) bool {
	return t.env.Block(pos).ID == catalogs.Air && t.env.ItemCount(t.d.Block) > 0
}

func (t *placeTask) Interact(pos cube.Pos, _ float64) bool {
	if !t.Validate(pos) || !t.env.TakeItem(t.d.Block, 1) {
		return false
	}
	if !t.env.Place(pos, t.d.Block) {
		t.env.AddItem(t.d.Block, 1)
		t.env.Reject(pos)
	}
	return false
}

type harvestTask struct {
	d   Descriptor
	env Env
}

func (t *harvestTask) Kind() Kind { return KindHarvest }

func (t *harvestTask) Validate(pos cube.Pos) bool {
	b := t.env.Block(pos)
	return b.Crop != nil && b.Crop.Ripe && t.d.matches(b.ID)
}

func (t *harvestTask) Interact(pos cube.Pos, _ float64) bool {
	b := t.env.Block(pos)
	if b.Crop == nil || !b.Crop.Ripe {
		return false
	}
	drop, ok := t.env.Break(pos)
	if !ok {
		t.env.Reject(pos)
		return false
	}
	if drop != "" {
		n := b.Crop.Yield
		if n <= 0 {
			n = 1
		}
		t.env.AddItem(drop, n)
	}
	if b.Crop.Replant != "" {
		t.env.Place(pos, b.Crop.Replant)
	}
	return false
}

type pumpTask struct {
	d   Descriptor
	env Env
}

func (t *pumpTask) Kind() Kind { return KindPump }

func (t *pumpTask) Validate(pos cube.Pos) bool {
	b := t.env.Block(pos)
	return b.Fluid != "" && t.d.matches(b.ID) && t.env.TankAccepts(b.Fluid)
}

func (t *pumpTask) Interact(pos cube.Pos, _ float64) bool {
	if t.Validate(pos) && !t.env.Drain(pos) {
		t.env.Reject(pos)
	}
	return false
}

type countTask struct {
	d      Descriptor
	env    Env
	seen   map[cube.Pos]struct{}
	counts map[string]int
}

func (t *countTask) Kind() Kind { return KindCount }

func (t *countTask) Validate(pos cube.Pos) bool {
	if _, ok := t.seen[pos]; ok {
		return false
	}
	b := t.env.Block(pos)
	return b.ID != catalogs.Air && t.d.matches(b.ID)
}

func (t *countTask) Interact(pos cube.Pos, _ float64) bool {
	if _, ok := t.seen[pos]; !ok {
		t.seen[pos] = struct{}{}
		t.counts[t.env.Block(pos).ID]++
	}
	return false
}

func (t *countTask) Counts() map[string]int {
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
