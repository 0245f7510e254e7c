package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"dronecraft.ai/internal/persistence/indexdb"
	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/world"
)

var (
	tickColor  = color.New(color.FgHiBlack)
	droneColor = color.New(color.FgCyan)
	keyColor   = color.New(color.FgMagenta)
)

func dbCmd(what string, args []string) {
	fs := flag.NewFlagSet(what, flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	drone := fs.String("drone", "", "drone filter: id for debug, name for steps")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch what {
	case "debug":
		es, err := r.RecentDebug(ctx, *drone, *limit)
		exitOn(err)
		for _, e := range es {
			fmt.Println(formatDebug(e))
		}
	case "steps":
		rs, err := r.RecentSteps(ctx, *drone, *limit)
		exitOn(err)
		for _, res := range rs {
			fmt.Println(formatStep(res))
		}
	case "ticks":
		ts, err := r.RecentTicks(ctx, *limit)
		exitOn(err)
		for _, t := range ts {
			fmt.Printf("%s drones=%d actions=%d digest=%s\n", tickColor.Sprintf("#%d", t.Tick), t.Drones, t.Actions, shortDigest(t.Digest))
		}
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

func formatDebug(e debugger.Entry) string {
	s := fmt.Sprintf("%s %s %s", tickColor.Sprintf("#%d", e.Tick), droneColor.Sprint(shortID(e.DroneID)), keyColor.Sprint(e.Key))
	if e.Pos != nil {
		s += fmt.Sprintf(" @%d,%d,%d", e.Pos[0], e.Pos[1], e.Pos[2])
	}
	return s
}

func reasonColor(reason string) *color.Color {
	switch reason {
	case world.ReasonDone:
		return color.New(color.FgGreen)
	case world.ReasonNoWork:
		return color.New(color.FgYellow)
	case world.ReasonAborted:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func formatStep(r world.StepResult) string {
	s := fmt.Sprintf("%s %s step=%d %-7s %s actions=%d",
		tickColor.Sprintf("#%d", r.Tick), droneColor.Sprint(r.DroneName), r.Step, r.Kind, reasonColor(r.Reason).Sprint(r.Reason), r.Actions)
	if len(r.Counts) > 0 {
		keys := make([]string, 0, len(r.Counts))
		for k := range r.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, r.Counts[k]))
		}
		s += " counts[" + strings.Join(parts, " ") + "]"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
