package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	DebugHistory       int `yaml:"debug_history"`

	Search  Search  `yaml:"search"`
	Sorter  Sorter  `yaml:"sorter"`
	Drone   Drone   `yaml:"drone"`
	Terrain Terrain `yaml:"terrain"`
}

type Search struct {
	MaxLookups            int      `yaml:"max_lookups_per_search"`
	IndicatorRange        float64  `yaml:"indicator_range"`
	IndicatorCapabilities []string `yaml:"indicator_capabilities"`
}

type Sorter struct {
	Workers int `yaml:"sorter_workers"`
	Queue   int `yaml:"sorter_queue"`
}

type Drone struct {
	// Speed is in blocks per tick.
	Speed               float64 `yaml:"drone_speed"`
	TeleportWhenBlocked bool    `yaml:"teleport_when_blocked"`
	TankCapacity        int     `yaml:"tank_capacity"`
	// RetryDelayTicks idles a drone after a step found nothing to do.
	RetryDelayTicks     int     `yaml:"retry_delay_ticks"`
}

type Terrain struct {
	MinY           int   `yaml:"min_y"`
	MaxY           int   `yaml:"max_y"`
	GroundY        int   `yaml:"ground_y"`
	Seed           int64 `yaml:"seed"`
	Radius         int   `yaml:"radius"`
	// CropGrowthOdds is the per-tick 1-in-n chance a crop grows a stage.
	CropGrowthOdds int   `yaml:"crop_growth_odds"`
}

func Defaults() Tuning {
	var t Tuning
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.DebugHistory <= 0 {
		t.DebugHistory = 64
	}
	if t.Search.MaxLookups <= 0 {
		t.Search.MaxLookups = 30
	}
	if t.Search.IndicatorRange <= 0 {
		t.Search.IndicatorRange = 32
	}
	if t.Search.IndicatorCapabilities == nil {
		t.Search.IndicatorCapabilities = []string{"ENTITY_TRACKER", "DISPENSER"}
	}
	for i, c := range t.Search.IndicatorCapabilities {
		t.Search.IndicatorCapabilities[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	if t.Sorter.Workers <= 0 {
		t.Sorter.Workers = 2
	}
	if t.Sorter.Queue <= 0 {
		t.Sorter.Queue = 64
	}
	if t.Drone.Speed <= 0 {
		t.Drone.Speed = 0.5
	}
	if t.Drone.TankCapacity <= 0 {
		t.Drone.TankCapacity = 16
	}
	if t.Drone.RetryDelayTicks <= 0 {
		t.Drone.RetryDelayTicks = 20
	}
	if t.Terrain.CropGrowthOdds <= 0 {
		t.Terrain.CropGrowthOdds = 200
	}
	if t.Terrain.MaxY <= t.Terrain.MinY {
		t.Terrain.MinY, t.Terrain.MaxY = 0, 32
	}
	if t.Terrain.GroundY < t.Terrain.MinY || t.Terrain.GroundY > t.Terrain.MaxY {
		t.Terrain.GroundY = t.Terrain.MinY + (t.Terrain.MaxY-t.Terrain.MinY)/4
	}
	if t.Terrain.Radius <= 0 {
		t.Terrain.Radius = 32
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}
