package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/atomic"
	_ "modernc.org/sqlite"

	"dronecraft.ai/internal/persistence/snapshot"
	"dronecraft.ai/internal/sim/catalogs"
	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/tuning"
	"dronecraft.ai/internal/sim/world"
)

// SQLiteIndex is a secondary, queryable index of what the world loop wrote
// to the JSONL logs. Writes are queued and applied by a single goroutine;
// when the queue is full they are dropped and counted.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropDebug    atomic.Uint64
	dropStep     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqDebug
	reqStep
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	debug    debugger.Entry
	step     world.StepResult
	snapshot SnapshotRow
	done     chan struct{}
}

type SnapshotRow struct {
	Tick    uint64 `json:"tick"`
	Path    string `json:"path"`
	Seed    int64  `json:"seed"`
	Program string `json:"program"`
	Drones  int    `json:"drones"`
	Blocks  int    `json:"blocks"`
	Claims  int    `json:"claims"`
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTick      uint64 `json:"drop_tick_total"`
	DropDebug     uint64 `json:"drop_debug_total"`
	DropStep      uint64 `json:"drop_step_total"`
	DropSnapshot  uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Debug entries come in bursts when many drones fail a pass together.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			drones INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS debug_entries (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			drone_id TEXT NOT NULL,
			key TEXT NOT NULL,
			x INTEGER,
			y INTEGER,
			z INTEGER,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_debug_drone_tick ON debug_entries(drone_id, tick);`,
		`CREATE TABLE IF NOT EXISTS step_results (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			drone_id TEXT NOT NULL,
			drone_name TEXT NOT NULL,
			step INTEGER NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT NOT NULL,
			actions INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_drone_tick ON step_results(drone_name, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			program TEXT NOT NULL,
			drones INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			claims INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTick:      s.dropTick.Load(),
		DropDebug:     s.dropDebug.Load(),
		DropStep:      s.dropStep.Load(),
		DropSnapshot:  s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		drops.Inc()
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s != nil {
		s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	}
	return nil
}

func (s *SQLiteIndex) WriteDebug(e debugger.Entry) error {
	if s != nil {
		s.enqueue(req{kind: reqDebug, debug: e}, &s.dropDebug)
	}
	return nil
}

func (s *SQLiteIndex) WriteStep(r world.StepResult) error {
	if s != nil {
		s.enqueue(req{kind: reqStep, step: r}, &s.dropStep)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	r := SnapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		Seed:    snap.Seed,
		Program: snap.ProgramName,
		Drones:  len(snap.Drones),
		Blocks:  len(snap.Blocks),
		Claims:  len(snap.Claims),
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// Sync waits until every write queued before the call is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertCatalogs stores the block catalog and the tuning actually applied so
// that indexed runs can be compared later.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	if cats == nil {
		return fmt.Errorf("nil catalogs")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,drones,actions,raw_json) VALUES(?,?,?,?,?)`)
	insertDebug, _ := s.db.Prepare(`INSERT OR REPLACE INTO debug_entries(tick,seq,drone_id,key,x,y,z) VALUES(?,?,?,?,?,?,?)`)
	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO step_results(tick,seq,drone_id,drone_name,step,kind,reason,actions,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,program,drones,blocks,claims) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertDebug, insertStep, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		debugSeq seqCounter
		stepSeq  seqCounter
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case <-ticker.C:
			if time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}

		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			actions := 0
			for _, d := range r.tick.Drones {
				actions += d.Actions
			}
			exec(insertTick, int64(r.tick.Tick), r.tick.Digest, len(r.tick.Drones), actions, string(b))

		case reqDebug:
			e := r.debug
			var x, y, z sql.NullInt64
			if e.Pos != nil {
				x = sql.NullInt64{Int64: int64(e.Pos[0]), Valid: true}
				y = sql.NullInt64{Int64: int64(e.Pos[1]), Valid: true}
				z = sql.NullInt64{Int64: int64(e.Pos[2]), Valid: true}
			}
			exec(insertDebug, int64(e.Tick), debugSeq.next(e.Tick), e.DroneID, e.Key, x, y, z)

		case reqStep:
			st := r.step
			b, _ := json.Marshal(st)
			exec(insertStep, int64(st.Tick), stepSeq.next(st.Tick), st.DroneID, st.DroneName, st.Step, st.Kind, st.Reason, st.Actions, string(b))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Program, sn.Drones, sn.Blocks, sn.Claims)
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}

// seqCounter numbers rows within a tick.
type seqCounter struct {
	tick uint64
	seq  int
}

func (c *seqCounter) next(tick uint64) int {
	if tick != c.tick {
		c.tick, c.seq = tick, 0
	}
	n := c.seq
	c.seq++
	return n
}
