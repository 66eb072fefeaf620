// Package apperr defines sentinel errors shared across maplab packages.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidRoom  = errors.New("invalid room id")
)
