// Package snapshot persists a full dump of tracked purchase orders and
// alerts so a restart does not have to replay the whole mutation journal.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quenishay-arch/traceloom2/internal/store"
)

// Info reports what a just-written snapshot contains, for the manifest record.
type Info struct {
	POs    int
	Alerts int
}

type Snapshotter interface {
	WriteSnapshot(snapshotID string, st store.Store) (Info, error)
}

// Loader reads a previously written snapshot back into a dump.
type Loader interface {
	ReadSnapshot(snapshotID string) (store.Dump, error)
}

type FilesystemSnapshotter struct {
	baseDir string
}

func NewFilesystemSnapshotter(baseDir string) *FilesystemSnapshotter {
	return &FilesystemSnapshotter{baseDir: baseDir}
}

func (f *FilesystemSnapshotter) WriteSnapshot(snapshotID string, st store.Store) (Info, error) {
	if err := os.MkdirAll(filepath.Join(f.baseDir, snapshotID), 0o755); err != nil {
		return Info{}, fmt.Errorf("mkdir: %w", err)
	}
	dump, err := st.Export()
	if err != nil {
		return Info{}, fmt.Errorf("export: %w", err)
	}
	file := filepath.Join(f.baseDir, snapshotID, "state.json")
	out, err := os.Create(file)
	if err != nil {
		return Info{}, fmt.Errorf("create: %w", err)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return Info{}, fmt.Errorf("encode: %w", err)
	}
	return Info{POs: len(dump.POs), Alerts: len(dump.Alerts)}, nil
}

func (f *FilesystemSnapshotter) ReadSnapshot(snapshotID string) (store.Dump, error) {
	var dump store.Dump
	b, err := os.ReadFile(filepath.Join(f.baseDir, snapshotID, "state.json"))
	if err != nil {
		return dump, fmt.Errorf("read: %w", err)
	}
	if err := json.Unmarshal(b, &dump); err != nil {
		return dump, fmt.Errorf("decode: %w", err)
	}
	return dump, nil
}
