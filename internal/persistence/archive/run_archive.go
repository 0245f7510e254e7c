package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dronecraft.ai/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	Program   string         `json:"program"`
	Seed      int64          `json:"seed"`
	EndTick   uint64         `json:"end_tick"`
	Snapshot  string         `json:"snapshot"`
	CreatedAt string         `json:"created_at"`
	Drones    map[string]int `json:"drone_actions"`
	Aborted   []string       `json:"aborted,omitempty"`
}

// Complete reports whether every drone in the snapshot has finished or been
// aborted. Snapshots without drones never count as complete.
func Complete(snap snapshot.SnapshotV1) bool {
	if len(snap.Drones) == 0 {
		return false
	}
	for _, d := range snap.Drones {
		if !d.Finished && !d.Aborted {
			return false
		}
	}
	return true
}

// ArchiveCompletedRun copies the first snapshot in which every drone is done
// into worldDir/archives/<program>_<seed>/. Later snapshots of the same run
// are left alone.
func ArchiveCompletedRun(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !Complete(snap) {
		return "", false, nil
	}
	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("%s_%d", snap.ProgramName, snap.Seed))
	metaPath := filepath.Join(archiveDir, "meta.json")
	if _, err := os.Stat(metaPath); err == nil {
		return "", false, nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		Program:   snap.ProgramName,
		Seed:      snap.Seed,
		EndTick:   snap.Header.Tick,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Drones:    make(map[string]int, len(snap.Drones)),
	}
	for _, d := range snap.Drones {
		meta.Drones[d.Name] = d.Actions
		if d.Aborted {
			meta.Aborted = append(meta.Aborted, d.Name)
		}
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
