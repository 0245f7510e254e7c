package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"dronecraft.ai/internal/persistence/indexdb"
	"dronecraft.ai/internal/sim/world"
)

type handlers struct {
	world *world.World
	index *indexdb.SQLiteIndex
	log   logrus.FieldLogger
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", h.metrics)
}

// registerAdmin installs local-only admin endpoints. They never change the
// simulation except through the world loop's abort queue.
func (h *handlers) registerAdmin(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", loopbackOnly(h.state))
	mux.HandleFunc("/admin/v1/abort", loopbackOnly(h.abort))
	mux.HandleFunc("/admin/v1/debug", loopbackOnly(h.debug))
	mux.HandleFunc("/admin/v1/steps", loopbackOnly(h.steps))
}

func (h *handlers) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	id := h.world.ID()
	m := h.world.Metrics()
	tick := h.world.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	// Minimal Prometheus exposition format.
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
		fmt.Fprintf(rw, "%s{world=%q} %v\n", name, id, v)
	}
	gauge("dronecraft_world_tick", "Current world tick.", tick)
	gauge("dronecraft_world_drones", "Drones loaded from the program.", m.Drones)
	gauge("dronecraft_world_active_drones", "Drones still running their program.", m.ActiveDrones)
	gauge("dronecraft_world_observers", "Connected observers.", m.Observers)
	gauge("dronecraft_world_claims", "Claimed block positions.", m.Claims)
	gauge("dronecraft_world_edited_blocks", "Blocks that differ from generation.", m.EditedBlocks)
	gauge("dronecraft_world_actions", "Committed drone actions.", m.TotalActions)
	gauge("dronecraft_sorter_submitted", "Sort jobs submitted.", m.SorterSubmitted)
	gauge("dronecraft_sorter_overflow", "Sort jobs that bypassed the full worker queue.", m.SorterOverflow)
	fmt.Fprintf(rw, "# HELP dronecraft_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE dronecraft_world_step_ms gauge\n")
	fmt.Fprintf(rw, "dronecraft_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	fmt.Fprintf(rw, "# HELP dronecraft_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE dronecraft_world_queue_depth gauge\n")
	for _, q := range []struct {
		name string
		n    int
	}{
		{"observer_join", m.QueueDepths.ObserverJoin},
		{"observer_sub", m.QueueDepths.ObserverSub},
		{"observer_leave", m.QueueDepths.ObserverLeave},
		{"abort", m.QueueDepths.Abort},
	} {
		fmt.Fprintf(rw, "dronecraft_world_queue_depth{world=%q,queue=%q} %d\n", id, q.name, q.n)
	}

	if h.index != nil {
		st := h.index.Stats()
		fmt.Fprintf(rw, "# HELP dronecraft_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE dronecraft_index_dropped_total counter\n")
		fmt.Fprintf(rw, "dronecraft_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", st.DropTick)
		fmt.Fprintf(rw, "dronecraft_index_dropped_total{world=%q,kind=%q} %d\n", id, "debug", st.DropDebug)
		fmt.Fprintf(rw, "dronecraft_index_dropped_total{world=%q,kind=%q} %d\n", id, "step", st.DropStep)
		fmt.Fprintf(rw, "dronecraft_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", st.DropSnapshot)
	}
}

func (h *handlers) state(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := h.world.RequestState(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, struct {
		world.StateView
		Metrics world.WorldMetrics `json:"metrics"`
	}{StateView: st, Metrics: h.world.Metrics()})
}

func (h *handlers) abort(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ref := strings.TrimSpace(r.URL.Query().Get("drone"))
	if ref == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing drone"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, err := h.world.RequestAbort(ctx, ref)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if !ok {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown or finished drone"})
		return
	}
	h.log.WithField("drone", ref).Warn("drone aborted via admin")
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "drone": ref})
}

func (h *handlers) debug(rw http.ResponseWriter, r *http.Request) {
	reader, ctx, cancel, ok := h.indexReader(rw, r)
	if !ok {
		return
	}
	defer cancel()
	out, err := reader.RecentDebug(ctx, r.URL.Query().Get("drone"), queryInt(r, "limit", 50))
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, out)
}

func (h *handlers) steps(rw http.ResponseWriter, r *http.Request) {
	reader, ctx, cancel, ok := h.indexReader(rw, r)
	if !ok {
		return
	}
	defer cancel()
	out, err := reader.RecentSteps(ctx, r.URL.Query().Get("drone"), queryInt(r, "limit", 50))
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, out)
}

func (h *handlers) indexReader(rw http.ResponseWriter, r *http.Request) (*indexdb.Reader, context.Context, context.CancelFunc, bool) {
	if h.index == nil {
		writeJSON(rw, http.StatusNotImplemented, map[string]any{"ok": false, "error": "index disabled"})
		return nil, nil, nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	if err := h.index.Sync(ctx); err != nil {
		cancel()
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return nil, nil, nil, false
	}
	return h.index.Reader(), ctx, cancel, true
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func loopbackOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
