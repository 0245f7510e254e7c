package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dronecraft.ai/internal/persistence/indexdb"
	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/world"
)

func openRuntimeIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("DC_INDEX_BACKEND")))
	switch backend {
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	case "none", "off", "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported DC_INDEX_BACKEND: %s", backend)
	}
}

// fanout copies every log entry to each configured writer. Writer errors are
// ignored; the sim must not stall on persistence.
type fanout struct {
	ticks []world.TickLogger
	debug []debugger.Sink
	steps []world.StepLogger
}

func (f fanout) WriteTick(e world.TickLogEntry) error {
	for _, l := range f.ticks {
		_ = l.WriteTick(e)
	}
	return nil
}

func (f fanout) WriteDebug(e debugger.Entry) error {
	for _, l := range f.debug {
		_ = l.WriteDebug(e)
	}
	return nil
}

func (f fanout) WriteStep(r world.StepResult) error {
	for _, l := range f.steps {
		_ = l.WriteStep(r)
	}
	return nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
