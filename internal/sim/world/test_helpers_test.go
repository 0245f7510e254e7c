package world

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"

	"dronecraft.ai/internal/sim/catalogs"
	"dronecraft.ai/internal/sim/claims"
	"dronecraft.ai/internal/sim/program"
)

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

func testConfig(id string) WorldConfig {
	return WorldConfig{
		ID:                  id,
		TickRateHz:          20,
		DebugHistory:        32,
		MaxLookups:          30,
		IndicatorRange:      32,
		IndicatorCaps:       []string{"ENTITY_TRACKER", "DISPENSER"},
		DroneSpeed:          1,
		TeleportWhenBlocked: true,
		TankCapacity:        4,
		RetryDelayTicks:     1,
		MinY:                0,
		MaxY:                32,
		GroundY:             8,
		Seed:                42,
		Radius:              32,
		CropGrowthOdds:      1 << 30,
	}
}

type memStepLog struct{ results []StepResult }

func (m *memStepLog) WriteStep(r StepResult) error {
	m.results = append(m.results, r)
	return nil
}

func newTestWorld(t *testing.T, cfg WorldConfig, prog string) (*World, *memStepLog) {
	t.Helper()
	w, err := New(cfg, testCatalogs(t))
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	w.UseClaims(claims.NewManager())
	t.Cleanup(w.Close)
	p, err := program.Parse([]byte(prog))
	if err != nil {
		t.Fatalf("parse program: %v", err)
	}
	if err := w.LoadProgram(p); err != nil {
		t.Fatalf("load program: %v", err)
	}
	steps := &memStepLog{}
	w.SetStepLogger(steps)
	return w, steps
}

// stepUntil steps the world until cond holds. Sorting runs on background
// goroutines, so each tick yields briefly.
func stepUntil(t *testing.T, w *World, maxTicks int, cond func() bool) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		if cond() {
			return
		}
		w.StepOnce()
		time.Sleep(200 * time.Microsecond)
	}
	if !cond() {
		t.Fatalf("condition not met after %d ticks", maxTicks)
	}
}

func mustDrone(t *testing.T, w *World, name string) *Drone {
	t.Helper()
	d, ok := w.Drone(name)
	if !ok {
		t.Fatalf("drone %s not found", name)
	}
	return d
}

func setBlocks(t *testing.T, w *World, id string, ps ...cube.Pos) {
	t.Helper()
	for _, p := range ps {
		if !w.terrain.SetBlock(p, id) {
			t.Fatalf("set %s at %v", id, p)
		}
	}
}
