package world

import (
	"fmt"
	"sort"

	"github.com/df-mc/dragonfly/server/block/cube"

	"dronecraft.ai/internal/sim/catalogs"
	"dronecraft.ai/internal/sim/world/logic/mathx"
)

type TerrainConfig struct {
	Seed           int64
	MinY           int
	MaxY           int
	GroundY        int
	Radius         int
	CropGrowthOdds int
}

// Terrain is generated block data plus the edits drones made on top of it.
// Blocks are stored as palette indices.
type Terrain struct {
	cfg  TerrainConfig
	cats *catalogs.BlockCatalog

	edits   map[cube.Pos]uint16
	// growing holds crop positions that can still grow a stage.
	growing map[cube.Pos]struct{}
	version uint64

	air, bedrock, stone, dirt, grass, water uint16
	coal, iron, seedling, ripe              uint16
	hasCrops, hasOres                       bool
}

func NewTerrain(cats *catalogs.BlockCatalog, cfg TerrainConfig) (*Terrain, error) {
	need := func(id string) (uint16, error) {
		v, ok := cats.Index[id]
		if !ok {
			return 0, fmt.Errorf("missing block id in palette: %s", id)
		}
		return v, nil
	}
	t := &Terrain{
		cfg:     cfg,
		cats:    cats,
		edits:   map[cube.Pos]uint16{},
		growing: map[cube.Pos]struct{}{},
	}
	var err error
	for _, r := range []struct {
		dst *uint16
		id  string
	}{
		{&t.air, catalogs.Air},
		{&t.bedrock, "BEDROCK"},
		{&t.stone, "STONE"},
		{&t.dirt, "DIRT"},
		{&t.grass, "GRASS"},
		{&t.water, "WATER"},
	} {
		if *r.dst, err = need(r.id); err != nil {
			return nil, err
		}
	}
	var okCoal, okIron, okSeed, okRipe bool
	t.coal, okCoal = cats.Index["COAL_ORE"]
	t.iron, okIron = cats.Index["IRON_ORE"]
	t.seedling, okSeed = cats.Index["WHEAT_SEEDLING"]
	t.ripe, okRipe = cats.Index["WHEAT_RIPE"]
	t.hasOres = okCoal && okIron
	t.hasCrops = okSeed && okRipe
	return t, nil
}

func (t *Terrain) InBounds(pos cube.Pos) bool {
	return mathx.AbsInt(pos.X()) <= t.cfg.Radius && mathx.AbsInt(pos.Z()) <= t.cfg.Radius &&
		pos.Y() >= t.cfg.MinY && pos.Y() <= t.cfg.MaxY
}

func (t *Terrain) surface(x, z int) int {
	return t.cfg.GroundY + int(mathx.Hash2(t.cfg.Seed, x, z)%3) - 1
}

// pond reports whether the surface column at x, z is water. Ponds cover
// 4x4 cells.
func (t *Terrain) pond(x, z int) bool {
	return mathx.OneIn(mathx.Hash2(t.cfg.Seed^0x70d, x>>2, z>>2), 13)
}

func (t *Terrain) generated(pos cube.Pos) uint16 {
	x, y, z := pos.X(), pos.Y(), pos.Z()
	if !t.InBounds(pos) {
		if y < t.cfg.MinY {
			return t.bedrock
		}
		return t.air
	}
	if y == t.cfg.MinY {
		return t.bedrock
	}
	h := t.surface(x, z)
	switch {
	case y > h+1:
		return t.air
	case y == h+1:
		if t.hasCrops && !t.pond(x, z) && mathx.OneIn(mathx.Hash2(t.cfg.Seed^0xc0, x, z), 11) {
			if mathx.OneIn(mathx.Hash2(t.cfg.Seed^0xc1, x, z), 2) {
				return t.ripe
			}
			return t.seedling
		}
		return t.air
	case y == h:
		if t.pond(x, z) {
			return t.water
		}
		return t.grass
	case y >= h-2:
		return t.dirt
	}
	if t.hasOres {
		r := mathx.Hash3(t.cfg.Seed, x, y, z) % 100
		switch {
		case r < 3:
			return t.iron
		case r < 8:
			return t.coal
		}
	}
	return t.stone
}

func (t *Terrain) index(pos cube.Pos) uint16 {
	if v, ok := t.edits[pos]; ok {
		return v
	}
	return t.generated(pos)
}

// Block returns the definition of the block at pos.
func (t *Terrain) Block(pos cube.Pos) catalogs.BlockDef {
	d, _ := t.cats.Def(t.cats.ID(t.index(pos)))
	return d
}

// SetBlock replaces the block at pos. It fails for unknown ids and
// positions outside the world.
func (t *Terrain) SetBlock(pos cube.Pos, id string) bool {
	idx, ok := t.cats.Index[id]
	if !ok || !t.InBounds(pos) {
		return false
	}
	if idx == t.generated(pos) {
		delete(t.edits, pos)
	} else {
		t.edits[pos] = idx
	}
	t.version++
	t.track(pos, id)
	return true
}

func (t *Terrain) track(pos cube.Pos, id string) {
	if d, ok := t.cats.Def(id); ok && d.Crop != nil && d.Crop.GrowsInto != "" {
		t.growing[pos] = struct{}{}
		return
	}
	delete(t.growing, pos)
}

// Grow advances tracked crops by one stage with the configured odds.
// Generated seedlings are tracked once they have been touched by a drone.
func (t *Terrain) Grow(tick uint64) int {
	if len(t.growing) == 0 {
		return 0
	}
	var ready []cube.Pos
	for p := range t.growing {
		if mathx.OneIn(mathx.Hash3(t.cfg.Seed+int64(tick), p.X(), p.Y(), p.Z()), t.cfg.CropGrowthOdds) {
			ready = append(ready, p)
		}
	}
	for _, p := range ready {
		d := t.Block(p)
		if d.Crop == nil || d.Crop.GrowsInto == "" {
			delete(t.growing, p)
			continue
		}
		t.SetBlock(p, d.Crop.GrowsInto)
	}
	return len(ready)
}

// Version changes whenever a block is set.
func (t *Terrain) Version() uint64 { return t.version }

type BlockEdit struct {
	Pos   cube.Pos
	Block string
}

// Edits lists blocks that differ from generation, sorted by position.
func (t *Terrain) Edits() []BlockEdit {
	out := make([]BlockEdit, 0, len(t.edits))
	for p, v := range t.edits {
		out = append(out, BlockEdit{Pos: p, Block: t.cats.ID(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pos, out[j].Pos
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return out
}

// RestoreEdits replaces all edits.
func (t *Terrain) RestoreEdits(edits []BlockEdit) error {
	t.edits = make(map[cube.Pos]uint16, len(edits))
	t.growing = map[cube.Pos]struct{}{}
	for _, e := range edits {
		if !t.SetBlock(e.Pos, e.Block) {
			return fmt.Errorf("restore block %s at %v", e.Block, e.Pos)
		}
	}
	return nil
}
