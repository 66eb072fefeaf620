package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/maplab/internal/apperr"
	"github.com/starford/maplab/internal/checksum"
	"github.com/starford/maplab/internal/models"
)

// Ext is the file extension of stored snapshots.
const Ext = ".automerge"

// FS implements Provider with one file per room in a directory.
type FS struct {
	root string // absolute path to the snapshot directory
}

// NewFS creates a new FS provider rooted at the given directory, creating
// it if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the snapshot directory.
func (f *FS) Root() string { return f.root }

// roomPath maps a room id to its file, rejecting ids that could escape root.
func (f *FS) roomPath(room string) (string, error) {
	if !models.ValidRoomID(room) {
		return "", fmt.Errorf("storage: %q: %w", room, apperr.ErrInvalidRoom)
	}
	p := filepath.Join(f.root, room+Ext)
	if filepath.Dir(p) != f.root {
		return "", fmt.Errorf("storage: %q: %w", room, apperr.ErrInvalidRoom)
	}
	return p, nil
}

// List returns metadata for every snapshot file in root.
func (f *FS) List() ([]models.RoomMeta, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.RoomMeta
	for _, e := range entries {
		room, ok := strings.CutSuffix(e.Name(), Ext)
		if e.IsDir() || !ok || !models.ValidRoomID(room) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", err)
		}
		out = append(out, models.RoomMeta{
			Room:      room,
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	slices.SortFunc(out, func(a, b models.RoomMeta) int { return strings.Compare(a.Room, b.Room) })
	return out, nil
}

// Read returns the stored snapshot of room.
func (f *FS) Read(room string) ([]byte, error) {
	p, err := f.roomPath(room)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w", room, apperr.ErrRoomNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", room, err)
	}
	return data, nil
}

// Write atomically writes the snapshot: tmp file → fsync → rename.
func (f *FS) Write(room string, data []byte) error {
	p, err := f.roomPath(room)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".maplab-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the snapshot of room.
func (f *FS) Delete(room string) error {
	p, err := f.roomPath(room)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", room, apperr.ErrRoomNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", room, err)
	}
	return nil
}
