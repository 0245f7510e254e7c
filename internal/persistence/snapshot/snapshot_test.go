package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots", "120.snap.zst")
	in := SnapshotV1{
		Header:      Header{Version: 1, WorldID: "W1", Tick: 120},
		Seed:        9,
		ProgramName: "quarry",
		Drones: []DroneV1{{
			ID:        "d1",
			Name:      "digger",
			Pos:       [3]float64{0.5, 9, 0.5},
			Cursor:    1,
			Actions:   7,
			Inventory: map[string]int{"COBBLESTONE": 7},
		}},
		Blocks: []BlockV1{{Pos: [3]int{1, 8, 1}, Block: "AIR"}},
		Claims: []ClaimV1{{Pos: [3]int{2, 8, 1}, Holder: "d1"}},
	}
	if err := WriteSnapshot(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file renamed away")
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header mismatch: %+v", h)
	}

	out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.ProgramName != "quarry" || len(out.Drones) != 1 || out.Drones[0].Inventory["COBBLESTONE"] != 7 {
		t.Fatalf("unexpected snapshot %+v", out)
	}
	if len(out.Blocks) != 1 || len(out.Claims) != 1 || out.Claims[0].Holder != "d1" {
		t.Fatalf("unexpected blocks/claims %+v %+v", out.Blocks, out.Claims)
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected error")
	}
}
