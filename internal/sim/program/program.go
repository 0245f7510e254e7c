package program

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/df-mc/dragonfly/server/block/cube"

	"dronecraft.ai/internal/sim/area"
	"dronecraft.ai/internal/sim/tasks"
)

var ErrInvalidProgram = errors.New("invalid program")

// DefaultColor tints indicators for steps without a colour.
const DefaultColor uint32 = 0x33CC33

// Program is the JSON document a server is started with.
type Program struct {
	Name   string  `json:"name" jsonschema:"required,minLength=1"`
	Drones []Drone `json:"drones" jsonschema:"required,minItems=1"`
}

type Drone struct {
	Name  string     `json:"name" jsonschema:"required,minLength=1"`
	Spawn [3]float64 `json:"spawn" jsonschema:"required"`
	// Speed overrides the tuned drone speed, in blocks per tick.
	Speed     float64        `json:"speed,omitempty" jsonschema:"minimum=0"`
	Inventory map[string]int `json:"inventory,omitempty"`
	// Fluids lists the fluids the drone may fly into.
	Fluids []string `json:"fluids,omitempty"`
	Loop   bool     `json:"loop,omitempty"`
	Steps  []Step   `json:"steps" jsonschema:"required,minItems=1"`
}

type Step struct {
	Kind       string   `json:"kind" jsonschema:"required,enum=DIG,enum=PLACE,enum=HARVEST,enum=PUMP,enum=COUNT"`
	Areas      []Box    `json:"areas" jsonschema:"required,minItems=1"`
	Ordering   string   `json:"ordering,omitempty" jsonschema:"enum=CLOSEST,enum=HIGH_TO_LOW,enum=LOW_TO_HIGH"`
	MaxActions int      `json:"max_actions,omitempty" jsonschema:"minimum=0"`
	Sides      []string `json:"sides,omitempty"`
	Block      string   `json:"block,omitempty"`
	Filter     []string `json:"filter,omitempty"`
	Color      string   `json:"color,omitempty" jsonschema:"pattern=^#[0-9a-fA-F]{6}$"`
}

type Box struct {
	From [3]int `json:"from" jsonschema:"required"`
	To   [3]int `json:"to" jsonschema:"required"`
}

func Load(path string) (*Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse validates raw against the program schema and decodes it.
func Parse(raw []byte) (*Program, error) {
	s, err := compiled()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Program
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	names := map[string]bool{}
	for i, d := range p.Drones {
		if names[d.Name] {
			return nil, fmt.Errorf("%w: duplicate drone name %q", ErrInvalidProgram, d.Name)
		}
		names[d.Name] = true
		for j, st := range d.Steps {
			if _, err := st.Descriptor(); err != nil {
				return nil, fmt.Errorf("%w: drones[%d].steps[%d]: %v", ErrInvalidProgram, i, j, err)
			}
		}
	}
	return &p, nil
}

// Descriptor converts the step to the task descriptor a drone executes.
func (s Step) Descriptor() (tasks.Descriptor, error) {
	var d tasks.Descriptor
	kind, err := tasks.ParseKind(s.Kind)
	if err != nil {
		return d, err
	}
	order, err := area.ParseOrdering(s.Ordering)
	if err != nil {
		return d, err
	}
	if kind == tasks.KindPlace && s.Block == "" {
		return d, fmt.Errorf("PLACE needs a block")
	}
	boxes := make([]area.Box, 0, len(s.Areas))
	for _, b := range s.Areas {
		boxes = append(boxes, area.Box{From: cube.Pos(b.From), To: cube.Pos(b.To)})
	}
	var sides []cube.Face
	for _, name := range s.Sides {
		f, err := tasks.ParseFace(name)
		if err != nil {
			return d, err
		}
		sides = append(sides, f)
	}
	color := DefaultColor
	if s.Color != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(s.Color, "#"), 16, 32)
		if err != nil {
			return d, fmt.Errorf("bad color %q", s.Color)
		}
		color = uint32(v)
	}
	maxActions := s.MaxActions
	if maxActions <= 0 {
		maxActions = -1
	}
	return tasks.Descriptor{
		Kind:       kind,
		Area:       area.New(boxes...),
		Ordering:   order,
		MaxActions: maxActions,
		Sides:      sides,
		Color:      color,
		Block:      s.Block,
		Filter:     s.Filter,
	}, nil
}
