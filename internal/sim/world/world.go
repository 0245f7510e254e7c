package world

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"dronecraft.ai/internal/persistence/snapshot"
	"dronecraft.ai/internal/sim/catalogs"
	"dronecraft.ai/internal/sim/claims"
	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/feature/observe"
	"dronecraft.ai/internal/sim/sorter"
	"dronecraft.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int
	DebugHistory       int

	MaxLookups     int
	IndicatorRange float64
	IndicatorCaps  []string

	SorterWorkers int
	SorterQueue   int

	DroneSpeed          float64
	TeleportWhenBlocked bool
	TankCapacity        int
	RetryDelayTicks     int

	MinY           int
	MaxY           int
	GroundY        int
	Seed           int64
	Radius         int
	CropGrowthOdds int
}

// ConfigFromTuning maps a loaded tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                  id,
		TickRateHz:          t.TickRateHz,
		SnapshotEveryTicks:  t.SnapshotEveryTicks,
		DebugHistory:        t.DebugHistory,
		MaxLookups:          t.Search.MaxLookups,
		IndicatorRange:      t.Search.IndicatorRange,
		IndicatorCaps:       t.Search.IndicatorCapabilities,
		SorterWorkers:       t.Sorter.Workers,
		SorterQueue:         t.Sorter.Queue,
		DroneSpeed:          t.Drone.Speed,
		TeleportWhenBlocked: t.Drone.TeleportWhenBlocked,
		TankCapacity:        t.Drone.TankCapacity,
		RetryDelayTicks:     t.Drone.RetryDelayTicks,
		MinY:                t.Terrain.MinY,
		MaxY:                t.Terrain.MaxY,
		GroundY:             t.Terrain.GroundY,
		Seed:                t.Terrain.Seed,
		Radius:              t.Terrain.Radius,
		CropGrowthOdds:      t.Terrain.CropGrowthOdds,
	}
}

// World is a single-threaded authoritative simulation of drones running
// programs. All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	log      logrus.FieldLogger

	tick atomic.Uint64

	terrain    *Terrain
	claims     *claims.Manager
	sorter     *sorter.Pool
	indicators *observe.Channel

	programName string
	drones      map[uuid.UUID]*Drone
	order       []uuid.UUID

	observers map[string]*observerClient

	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	abort         chan abortReq
	state         chan stateReq
	stop          chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger TickLogger
	stepLogger StepLogger
	debugSink  debugger.Sink

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type StepLogger interface {
	WriteStep(res StepResult) error
}

type TickLogEntry struct {
	Tick   uint64      `json:"tick"`
	Drones []DroneTick `json:"drones,omitempty"`
	Digest string      `json:"digest"`
}

type DroneTick struct {
	ID      string     `json:"id"`
	Step    int        `json:"step"`
	Kind    string     `json:"kind,omitempty"`
	State   string     `json:"state"`
	Pos     [3]float64 `json:"pos"`
	Actions int        `json:"actions"`
}

// StepResult records how a program step ended.
type StepResult struct {
	Tick      uint64         `json:"tick"`
	DroneID   string         `json:"drone_id"`
	DroneName string         `json:"drone_name"`
	Step      int            `json:"step"`
	Kind      string         `json:"kind"`
	Reason    string         `json:"reason"`
	Actions   int            `json:"actions"`
	Counts    map[string]int `json:"counts,omitempty"`
}

// Step end reasons.
const (
	ReasonDone    = "DONE"
	ReasonNoWork  = "NO_VALID_BLOCKS"
	ReasonAborted = "ABORTED"
	ReasonError   = "ERROR"
)

func New(cfg WorldConfig, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world %s: nil catalogs", cfg.ID)
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world %s: tick rate must be positive", cfg.ID)
	}
	terrain, err := NewTerrain(&cats.Blocks, TerrainConfig{
		Seed:           cfg.Seed,
		MinY:           cfg.MinY,
		MaxY:           cfg.MaxY,
		GroundY:        cfg.GroundY,
		Radius:         cfg.Radius,
		CropGrowthOdds: cfg.CropGrowthOdds,
	})
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}

	quiet := logrus.New()
	quiet.Out = io.Discard

	w := &World{
		cfg:           cfg,
		catalogs:      cats,
		log:           quiet,
		terrain:       terrain,
		claims:        claims.ForWorld(cfg.ID),
		sorter:        sorter.NewPool(cfg.SorterWorkers, cfg.SorterQueue),
		indicators:    observe.NewChannel(cfg.IndicatorRange*cfg.IndicatorRange, observe.RequireCapabilities(cfg.IndicatorCaps...)),
		drones:        map[uuid.UUID]*Drone{},
		observers:     map[string]*observerClient{},
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 256),
		observerLeave: make(chan string, 64),
		abort:         make(chan abortReq, 16),
		state:         make(chan stateReq, 16),
		stop:          make(chan struct{}),
	}
	w.metrics.Store(WorldMetrics{})
	return w, nil
}

func (w *World) SetLogger(l logrus.FieldLogger) {
	if l != nil {
		w.log = l.WithField("world", w.cfg.ID)
	}
}

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }
func (w *World) SetStepLogger(l StepLogger) { w.stepLogger = l }

// SetDebugSink forwards every drone debug entry to s.
func (w *World) SetDebugSink(s debugger.Sink) {
	w.debugSink = s
	for _, d := range w.drones {
		d.dbg.SetSink(s)
	}
}

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// UseClaims swaps the claim manager, e.g. to isolate worlds in tests.
func (w *World) UseClaims(m *claims.Manager) { w.claims = m }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) BlockPalette() []string {
	return append([]string(nil), w.catalogs.Blocks.Palette...)
}

// Close releases the sorter workers. The world must not be stepped after.
func (w *World) Close() {
	w.sorter.Close()
	claims.DropWorld(w.cfg.ID)
}
