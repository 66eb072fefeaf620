package models

import "regexp"

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidRoomID reports whether id can name a board room. Room ids double as
// storage keys, so they are restricted to a safe character set.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}
