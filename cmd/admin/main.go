package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	persistlog "dronecraft.ai/internal/persistence/log"
	"dronecraft.ai/internal/persistence/snapshot"
	"dronecraft.ai/internal/sim/program"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "reset":
			resetCmd(os.Args[2:])
			return
		case "debug", "steps", "ticks":
			dbCmd(os.Args[1], os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		case "schema":
			schemaCmd()
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "abort":
			abortCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func schemaCmd() {
	b, err := program.SchemaJSON()
	if err != nil {
		fmt.Fprintln(os.Stderr, "schema:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}

// logCmd prints a compressed JSONL log file, one entry per line.
func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin log <file.jsonl.zst>")
		os.Exit(2)
	}
	err := persistlog.ReadJSONL(fs.Arg(0), func(line json.RawMessage) error {
		_, err := fmt.Println(string(line))
		return err
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
}

// snapshotCmd summarizes a snapshot file.
func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used when no path is given)")
	_ = fs.Parse(args)

	path := fs.Arg(0)
	if path == "" {
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("world=%s tick=%d program=%s seed=%d blocks=%d claims=%d\n",
		snap.Header.WorldID, snap.Header.Tick, snap.ProgramName, snap.Seed, len(snap.Blocks), len(snap.Claims))
	for _, d := range snap.Drones {
		fmt.Println(formatSnapshotDrone(d))
	}
}

func formatSnapshotDrone(d snapshot.DroneV1) string {
	state := "running"
	switch {
	case d.Aborted:
		state = "aborted"
	case d.Finished:
		state = "finished"
	}
	return fmt.Sprintf("  %-12s step=%d actions=%d pos=%.1f,%.1f,%.1f %s",
		d.Name, d.Cursor, d.Actions, d.Pos[0], d.Pos[1], d.Pos[2], state)
}

// resetCmd drops the drone edits inside a box from a snapshot so the region
// reads as freshly generated when the server resumes from it.
func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to reset from (optional; defaults to latest)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	blocks, claims := resetRegion(&snap, min, max)

	if strings.TrimSpace(*outPath) == "" {
		// A higher tick than any snapshot the server wrote makes it the one
		// -load_latest_snapshot picks up.
		snap.Header.Tick++
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("reset ok: snapshot=%s aabb=%s blocks=%d claims=%d out=%s\n",
		filepath.Base(snapshotToLoad), *aabb, blocks, claims, *outPath)
}

// resetRegion removes block edits and claims inside the box and reports how
// many of each were dropped.
func resetRegion(snap *snapshot.SnapshotV1, min, max [3]int) (blocks, claims int) {
	keptBlocks := snap.Blocks[:0]
	for _, b := range snap.Blocks {
		if withinAABB(b.Pos, min, max) {
			blocks++
			continue
		}
		keptBlocks = append(keptBlocks, b)
	}
	snap.Blocks = keptBlocks

	keptClaims := snap.Claims[:0]
	for _, c := range snap.Claims {
		if withinAABB(c.Pos, min, max) {
			claims++
			continue
		}
		keptClaims = append(keptClaims, c)
	}
	snap.Claims = keptClaims
	return blocks, claims
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
