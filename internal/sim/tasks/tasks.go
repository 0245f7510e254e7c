package tasks

import (
	"fmt"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"

	"dronecraft.ai/internal/sim/area"
	"dronecraft.ai/internal/sim/catalogs"
	"dronecraft.ai/internal/sim/feature/blocksearch"
)

type Kind string

const (
	KindDig     Kind = "DIG"
	KindPlace   Kind = "PLACE"
	KindHarvest Kind = "HARVEST"
	KindPump    Kind = "PUMP"
	KindCount   Kind = "COUNT"
)

var Kinds = []Kind{KindDig, KindPlace, KindHarvest, KindPump, KindCount}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown task kind %q", s)
}

// Env is the drone-side view of the world a task executor acts on.
type Env interface {
	Block(pos cube.Pos) catalogs.BlockDef
	// Break removes the block at pos and returns what it dropped. ok is false
	// when the world refused.
	Break(pos cube.Pos) (drop string, ok bool)
	Place(pos cube.Pos, block string) bool

	AddItem(item string, n int)
	TakeItem(item string, n int) bool
	ItemCount(item string) int

	TankAccepts(fluid string) bool
	// Drain empties the fluid block at pos into the drone tank.
	Drain(pos cube.Pos) bool

	// Reject excludes pos from the running search pass.
	Reject(pos cube.Pos)
}

// Descriptor describes one program step: what to do and where.
type Descriptor struct {
	Kind     Kind
	Area     *area.Area
	Ordering area.Ordering
	// MaxActions caps committed positions. Negative means no cap.
	MaxActions int
	Sides      []cube.Face
	Color      uint32
	// Block is the block PLACE puts down.
	Block string
	// Filter restricts the block ids a step acts on. Empty matches all.
	Filter []string
}

func (d Descriptor) Traits() blocksearch.Traits {
	switch d.Kind {
	case KindPump:
		return blocksearch.Traits{RespectClaims: true, MoveIntoBlock: true}
	case KindCount:
		return blocksearch.Traits{InPlace: true}
	default:
		return blocksearch.Traits{RespectClaims: true, Sides: d.Sides}
	}
}

func (d Descriptor) matches(id string) bool {
	if len(d.Filter) == 0 {
		return true
	}
	for _, f := range d.Filter {
		if f == id {
			return true
		}
	}
	return false
}

// Executor is a task bound to one drone for the lifetime of a step.
type Executor interface {
	blocksearch.Task
	Kind() Kind
}

// Counter is implemented by executors that tally what they saw.
type Counter interface {
	Counts() map[string]int
}

func (d Descriptor) Build(env Env) (Executor, error) {
	if env == nil {
		return nil, fmt.Errorf("%s: nil env", d.Kind)
	}
	switch d.Kind {
	case KindDig:
		return &digTask{d: d, env: env}, nil
	case KindPlace:
		if d.Block == "" {
			return nil, fmt.Errorf("PLACE: missing block")
		}
		return &placeTask{d: d, env: env}, nil
	case KindHarvest:
		return &harvestTask{d: d, env: env}, nil
	case KindPump:
		return &pumpTask{d: d, env: env}, nil
	case KindCount:
		return &countTask{d: d, env: env, seen: map[cube.Pos]struct{}{}, counts: map[string]int{}}, nil
	default:
		return nil, fmt.Errorf("unknown task kind %q", d.Kind)
	}
}

var faceNames = map[string]cube.Face{
	"DOWN":  cube.FaceDown,
	"UP":    cube.FaceUp,
	"NORTH": cube.FaceNorth,
	"SOUTH": cube.FaceSouth,
	"WEST":  cube.FaceWest,
	"EAST":  cube.FaceEast,
}

func ParseFace(s string) (cube.Face, error) {
	f, ok := faceNames[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown side %q", s)
	}
	return f, nil
}
