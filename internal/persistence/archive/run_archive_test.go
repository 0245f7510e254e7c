package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"dronecraft.ai/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, worldDir string, tick int) string {
	t.Helper()
	src := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	return src
}

func TestArchiveCompletedRunCopiesOnce(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	snap := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: 1, WorldID: "w1", Tick: 5},
		Seed:        42,
		ProgramName: "quarry",
		Drones: []snapshot.DroneV1{
			{Name: "a", Actions: 7, Finished: true},
			{Name: "b", Actions: 2, Aborted: true},
		},
	}

	src := writeDummy(t, worldDir, 5)
	path, ok, err := ArchiveCompletedRun(worldDir, src, snap)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "dummy" {
		t.Fatalf("archived content: %q %v", got, err)
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(path), "meta.json"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta RunArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	if meta.Program != "quarry" || meta.EndTick != 5 || meta.Drones["a"] != 7 || len(meta.Aborted) != 1 {
		t.Fatalf("unexpected meta %#v", meta)
	}

	snap.Header.Tick = 6
	src = writeDummy(t, worldDir, 6)
	if _, ok, err := ArchiveCompletedRun(worldDir, src, snap); ok || err != nil {
		t.Fatalf("expected second snapshot of the run to be skipped, ok=%v err=%v", ok, err)
	}
}

func TestArchiveSkipsRunningDrones(t *testing.T) {
	worldDir := t.TempDir()
	snap := snapshot.SnapshotV1{Drones: []snapshot.DroneV1{{Name: "a", Finished: true}, {Name: "b"}}}
	if _, ok, err := ArchiveCompletedRun(worldDir, "missing", snap); ok || err != nil {
		t.Fatalf("expected skip, ok=%v err=%v", ok, err)
	}
	if Complete(snapshot.SnapshotV1{}) {
		t.Fatalf("empty snapshot must not count as complete")
	}
}
