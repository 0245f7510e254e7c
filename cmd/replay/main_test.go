package main

import (
	"strings"
	"testing"

	"dronecraft.ai/internal/persistence/snapshot"
	"dronecraft.ai/internal/sim/world"
)

func entry(tick uint64, step, actions int) world.TickLogEntry {
	return world.TickLogEntry{
		Tick:   tick,
		Digest: "d",
		Drones: []world.DroneTick{{ID: "a", Step: step, Actions: actions, Pos: [3]float64{1, 2, 3}}},
	}
}

func TestCheckerAcceptsContiguousLog(t *testing.T) {
	snap := &snapshot.SnapshotV1{
		Header: snapshot.Header{Tick: 2},
		Drones: []snapshot.DroneV1{{ID: "a", Name: "digger", Cursor: 1, Actions: 4, Pos: [3]float64{1, 2, 3}}},
	}
	c := &checker{snap: snap}
	for i, e := range []world.TickLogEntry{entry(1, 0, 2), entry(2, 1, 4), entry(3, 1, 5)} {
		if err := c.add(e); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
	if err := c.finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if c.checked != 3 || c.first != 1 || c.last != 3 {
		t.Fatalf("unexpected range %d %d..%d", c.checked, c.first, c.last)
	}
}

func TestCheckerRejectsGap(t *testing.T) {
	c := &checker{}
	_ = c.add(entry(1, 0, 0))
	if err := c.add(entry(3, 0, 0)); err == nil || !strings.Contains(err.Error(), "gap") {
		t.Fatalf("expected gap error, got %v", err)
	}
}

func TestCheckerAllowsRestartRewind(t *testing.T) {
	c := &checker{}
	for _, e := range []world.TickLogEntry{entry(4, 1, 9), entry(5, 1, 10), entry(3, 1, 8), entry(4, 1, 9)} {
		if err := c.add(e); err != nil {
			t.Fatalf("tick %d: %v", e.Tick, err)
		}
	}
}

func TestCheckerRejectsSnapshotMismatch(t *testing.T) {
	snap := &snapshot.SnapshotV1{
		Header: snapshot.Header{Tick: 1},
		Drones: []snapshot.DroneV1{{ID: "a", Name: "digger", Cursor: 0, Actions: 3, Pos: [3]float64{1, 2, 3}}},
	}
	c := &checker{snap: snap}
	if err := c.add(entry(1, 0, 2)); err == nil {
		t.Fatalf("expected actions mismatch")
	}

	c = &checker{snap: &snapshot.SnapshotV1{Header: snapshot.Header{Tick: 9}}}
	_ = c.add(entry(1, 0, 0))
	if err := c.finish(); err == nil {
		t.Fatalf("expected missing snapshot tick error")
	}
}
