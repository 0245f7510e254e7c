package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRepoTuning(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 20 || tu.Search.MaxLookups != 30 {
		t.Fatalf("unexpected tuning %+v", tu)
	}
	if tu.Search.IndicatorRange != 32 {
		t.Fatalf("indicator range: got %v", tu.Search.IndicatorRange)
	}
	if !tu.Drone.TeleportWhenBlocked || tu.Terrain.GroundY != 8 {
		t.Fatalf("unexpected drone/terrain tuning %+v %+v", tu.Drone, tu.Terrain)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 5\nsearch:\n  indicator_capabilities: [' entity_tracker ']\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 5 {
		t.Fatalf("explicit value overwritten: %d", tu.TickRateHz)
	}
	if tu.Search.MaxLookups != 30 || tu.Sorter.Queue != 64 || tu.Terrain.MaxY != 32 {
		t.Fatalf("defaults not applied: %+v", tu)
	}
	if len(tu.Search.IndicatorCapabilities) != 1 || tu.Search.IndicatorCapabilities[0] != "ENTITY_TRACKER" {
		t.Fatalf("capabilities not normalized: %v", tu.Search.IndicatorCapabilities)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error")
	}
}
