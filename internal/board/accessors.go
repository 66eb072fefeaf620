package board

import "github.com/starford/maplab/internal/models"

// GetNote returns the note with the given id. An empty id or a missing note
// yields false.
func GetNote(r Reader, id string) (models.Note, bool) {
	if r == nil || id == "" {
		return models.Note{}, false
	}
	return r.Get(id)
}

// FillColor returns the fill colour of a note.
func FillColor(r Reader, id string) (string, bool) {
	return project(r, id, func(n models.Note) string { return n.FillColor })
}

// StrokeColor returns the stroke colour of a note.
func StrokeColor(r Reader, id string) (string, bool) {
	return project(r, id, func(n models.Note) string { return n.StrokeColor })
}

// FillOpacity returns the fill opacity of a note.
func FillOpacity(r Reader, id string) (float64, bool) {
	return project(r, id, func(n models.Note) float64 { return n.FillOpacity })
}

// StrokeOpacity returns the stroke opacity of a note.
func StrokeOpacity(r Reader, id string) (float64, bool) {
	return project(r, id, func(n models.Note) float64 { return n.StrokeOpacity })
}

// StrokeWidth returns the stroke width of a note.
func StrokeWidth(r Reader, id string) (float64, bool) {
	return project(r, id, func(n models.Note) float64 { return n.StrokeWidth })
}

// FontLabel returns the display label of a note's font. A note whose font
// class is not a known preset yields false.
func FontLabel(r Reader, id string) (string, bool) {
	n, ok := GetNote(r, id)
	if !ok {
		return "", false
	}
	return LabelForFont(n.FontClassName)
}

// SelectedBy returns the presence snapshot of whoever selected a note.
func SelectedBy(r Reader, id string) (*models.UserInfo, bool) {
	n, ok := GetNote(r, id)
	if !ok || n.SelectedBy == nil {
		return nil, false
	}
	return n.SelectedBy, true
}

// SelectedNoteID returns the id of the note selected by the given user.
func SelectedNoteID(r Reader, userID string) (string, bool) {
	if r == nil || userID == "" {
		return "", false
	}
	for _, id := range r.IDs() {
		if n, ok := r.Get(id); ok && n.IsSelectedBy(userID) {
			return id, true
		}
	}
	return "", false
}

func project[T any](r Reader, id string, field func(models.Note) T) (T, bool) {
	n, ok := GetNote(r, id)
	if !ok {
		var zero T
		return zero, false
	}
	return field(n), true
}
