package world

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
)

func newTestTerrain(t *testing.T, growthOdds int) *Terrain {
	t.Helper()
	cats := testCatalogs(t)
	tr, err := NewTerrain(&cats.Blocks, TerrainConfig{Seed: 7, MinY: 0, MaxY: 32, GroundY: 8, Radius: 16, CropGrowthOdds: growthOdds})
	if err != nil {
		t.Fatalf("terrain: %v", err)
	}
	return tr
}

func TestTerrainGenerationLayers(t *testing.T) {
	tr := newTestTerrain(t, 1)
	for x := -4; x <= 4; x++ {
		for z := -4; z <= 4; z++ {
			if id := tr.Block(cube.Pos{x, 0, z}).ID; id != "BEDROCK" {
				t.Fatalf("expected bedrock floor at %d,%d, got %s", x, z, id)
			}
			if id := tr.Block(cube.Pos{x, 20, z}).ID; id != "AIR" {
				t.Fatalf("expected air high up at %d,%d, got %s", x, z, id)
			}
			h := tr.surface(x, z)
			if h < 7 || h > 9 {
				t.Fatalf("surface %d out of range", h)
			}
			if id := tr.Block(cube.Pos{x, h, z}).ID; id != "GRASS" && id != "WATER" {
				t.Fatalf("unexpected surface block %s", id)
			}
		}
	}
	if tr.Block(cube.Pos{100, 5, 0}).ID != "AIR" {
		t.Fatalf("outside the radius must read as air")
	}
	if tr.Block(cube.Pos{0, -1, 0}).ID != "BEDROCK" {
		t.Fatalf("below the world must read as bedrock")
	}
}

func TestTerrainEditsAndRevert(t *testing.T) {
	tr := newTestTerrain(t, 1)
	p := cube.Pos{1, 20, 1}
	v := tr.Version()
	if !tr.SetBlock(p, "STONE") || tr.Block(p).ID != "STONE" {
		t.Fatalf("expected stone placed")
	}
	if tr.Version() == v {
		t.Fatalf("expected version bump")
	}
	if len(tr.Edits()) != 1 {
		t.Fatalf("expected one edit")
	}
	tr.SetBlock(p, "AIR")
	if len(tr.Edits()) != 0 {
		t.Fatalf("setting the generated block must drop the edit")
	}
	if tr.SetBlock(cube.Pos{0, 40, 0}, "STONE") || tr.SetBlock(p, "NOPE") {
		t.Fatalf("out of bounds and unknown ids must be refused")
	}
}

func TestTerrainEditsSortedAndRestored(t *testing.T) {
	tr := newTestTerrain(t, 1)
	tr.SetBlock(cube.Pos{2, 20, 0}, "STONE")
	tr.SetBlock(cube.Pos{1, 21, 0}, "DIRT")
	tr.SetBlock(cube.Pos{1, 20, 5}, "PLANKS")
	edits := tr.Edits()
	if edits[0].Pos != (cube.Pos{1, 20, 5}) || edits[2].Pos != (cube.Pos{2, 20, 0}) {
		t.Fatalf("unexpected order %v", edits)
	}

	other := newTestTerrain(t, 1)
	if err := other.RestoreEdits(edits); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if other.Block(cube.Pos{1, 21, 0}).ID != "DIRT" || len(other.Edits()) != 3 {
		t.Fatalf("restore mismatch")
	}
}

func TestTerrainCropsGrow(t *testing.T) {
	tr := newTestTerrain(t, 1)
	p := cube.Pos{3, 20, 3}
	tr.SetBlock(p, "WHEAT_SEEDLING")
	if n := tr.Grow(0); n != 1 {
		t.Fatalf("expected one crop to grow, got %d", n)
	}
	if tr.Block(p).ID != "WHEAT_RIPE" {
		t.Fatalf("expected ripe wheat, got %s", tr.Block(p).ID)
	}
	if n := tr.Grow(1); n != 0 {
		t.Fatalf("ripe crops must not keep growing")
	}
}
