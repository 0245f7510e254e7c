package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "dronecraft.ai/internal/persistence/log"
	"dronecraft.ai/internal/persistence/snapshot"
	"dronecraft.ai/internal/sim/world"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst (optional)")
		ticksDir = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst")
		fromTick = flag.Uint64("from_tick", 0, "start checking from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *ticksDir == "" {
		fmt.Fprintln(os.Stderr, "missing -ticks")
		os.Exit(2)
	}

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		snap = &s
		fmt.Printf("snapshot v%d world=%s tick=%d program=%s drones=%d blocks=%d claims=%d\n",
			s.Header.Version, s.Header.WorldID, s.Header.Tick, s.ProgramName, len(s.Drones), len(s.Blocks), len(s.Claims))
	}

	files, err := listTickFiles(*ticksDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *ticksDir)
		os.Exit(1)
	}

	c := &checker{from: *fromTick, to: *toTick, snap: snap}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line json.RawMessage) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			return c.add(entry)
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	if err := c.finish(); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (%d..%d)\n", c.checked, c.first, c.last)
}

func listTickFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// checker verifies that logged ticks are contiguous, that drone action
// counts never go backwards within a run, and that the snapshot agrees with
// the tick log entry written for the same tick.
type checker struct {
	from, to uint64
	snap     *snapshot.SnapshotV1

	checked     uint64
	first, last uint64
	started     bool
	actions     map[string]int
	snapMatched bool
}

func (c *checker) add(e world.TickLogEntry) error {
	if e.Tick < c.from || (c.to != 0 && e.Tick > c.to) {
		return nil
	}
	if e.Digest == "" {
		return fmt.Errorf("tick %d: missing digest", e.Tick)
	}
	if c.started {
		switch {
		case e.Tick == c.last+1:
		case e.Tick <= c.last:
			// A restart from an older snapshot rewinds the log; drone counters
			// rewind with it.
			c.actions = nil
		default:
			return fmt.Errorf("gap in tick log: %d then %d", c.last, e.Tick)
		}
	} else {
		c.started = true
		c.first = e.Tick
	}
	if c.actions == nil {
		c.actions = map[string]int{}
	}
	for _, d := range e.Drones {
		if prev, ok := c.actions[d.ID]; ok && d.Actions < prev {
			return fmt.Errorf("tick %d: drone %s actions went from %d to %d", e.Tick, d.ID, prev, d.Actions)
		}
		c.actions[d.ID] = d.Actions
	}
	c.last = e.Tick
	c.checked++

	if c.snap != nil && e.Tick == c.snap.Header.Tick {
		if err := matchSnapshot(*c.snap, e); err != nil {
			return err
		}
		c.snapMatched = true
	}
	return nil
}

func (c *checker) finish() error {
	if c.checked == 0 {
		return fmt.Errorf("no ticks in range")
	}
	if c.snap != nil && !c.snapMatched {
		return fmt.Errorf("snapshot tick %d not found in tick log", c.snap.Header.Tick)
	}
	return nil
}

func matchSnapshot(s snapshot.SnapshotV1, e world.TickLogEntry) error {
	byID := make(map[string]world.DroneTick, len(e.Drones))
	for _, d := range e.Drones {
		byID[d.ID] = d
	}
	if len(byID) != len(s.Drones) {
		return fmt.Errorf("tick %d: snapshot has %d drones, log has %d", e.Tick, len(s.Drones), len(byID))
	}
	for _, sd := range s.Drones {
		ld, ok := byID[sd.ID]
		if !ok {
			return fmt.Errorf("tick %d: drone %s missing from log", e.Tick, sd.Name)
		}
		if ld.Step != sd.Cursor || ld.Actions != sd.Actions {
			return fmt.Errorf("tick %d: drone %s step/actions log=%d/%d snapshot=%d/%d",
				e.Tick, sd.Name, ld.Step, ld.Actions, sd.Cursor, sd.Actions)
		}
		for i := 0; i < 3; i++ {
			if math.Abs(ld.Pos[i]-sd.Pos[i]) > 1e-9 {
				return fmt.Errorf("tick %d: drone %s position log=%v snapshot=%v", e.Tick, sd.Name, ld.Pos, sd.Pos)
			}
		}
	}
	return nil
}
