// Package storage persists encoded board snapshots, one blob per room.
package storage

import "github.com/starford/maplab/internal/models"

// Provider is the interface for room snapshot storage. Reading or deleting a
// room that was never written returns an error wrapping
// apperr.ErrRoomNotFound; an invalid room id wraps apperr.ErrInvalidRoom.
type Provider interface {
	// List returns metadata for every stored room, ordered by room id.
	List() ([]models.RoomMeta, error)
	// Read returns the encoded snapshot of room.
	Read(room string) ([]byte, error)
	// Write atomically replaces the snapshot of room.
	Write(room string, data []byte) error
	// Delete removes the snapshot of room.
	Delete(room string) error
}
