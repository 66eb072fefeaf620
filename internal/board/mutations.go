package board

import "github.com/starford/maplab/internal/models"

const maxIDAttempts = 8

// NewNote returns a note with default style at the given position.
func NewNote(id string, x, y float64) models.Note {
	return models.Note{
		ID:            id,
		X:             x,
		Y:             y,
		Width:         models.DefaultWidth,
		Height:        models.DefaultHeight,
		FillColor:     models.DefaultFillColor,
		StrokeColor:   models.DefaultStrokeColor,
		FillOpacity:   models.DefaultOpacity,
		StrokeOpacity: models.DefaultOpacity,
		StrokeWidth:   models.DefaultStrokeWidth,
		FontClassName: DefaultFontClassName,
	}
}

// AddNote creates a note with a fresh id at a random position and default
// style. It returns the new id, or "" if self is read-only.
func AddNote(tx *Tx, self models.Participant) string {
	if self.ReadOnly {
		return ""
	}
	for range maxIDAttempts {
		id := tx.newID()
		if _, taken := tx.Get(id); taken || id == "" {
			continue
		}
		n := NewNote(id, tx.randomCoord(models.SpawnRange), tx.randomCoord(models.SpawnRange))
		tx.Insert(n)
		return id
	}
	return ""
}

// UpdateNote merges patch into the note with the given id. Fields absent
// from the patch are untouched; out-of-range values are clamped.
func UpdateNote(tx *Tx, self models.Participant, id string, patch models.Patch) {
	if self.ReadOnly {
		return
	}
	p := patch.Clone()
	p.Normalize()
	tx.Patch(id, p)
}

// DeleteNote removes the note with the given id if present.
func DeleteNote(tx *Tx, self models.Participant, id string) {
	if self.ReadOnly {
		return
	}
	tx.Delete(id)
}

// ClearSelectionForUser clears selectedBy on every note selected by self.
func ClearSelectionForUser(tx *Tx, self models.Participant) {
	if self.ReadOnly {
		return
	}
	for _, id := range tx.IDs() {
		n, ok := tx.Get(id)
		if ok && n.IsSelectedBy(self.Info.ID) {
			UpdateNote(tx, self, id, models.Patch{SelectedBy: &models.Selection{}})
		}
	}
}
