package board

import (
	"slices"
	"sync"
)

// Toolbar is the style panel state for one user: the values shown for the
// note that user has selected.
type Toolbar struct {
	NoteID        string  `json:"noteId,omitempty"`
	FillColor     string  `json:"fillColor,omitempty"`
	StrokeColor   string  `json:"strokeColor,omitempty"`
	FillOpacity   float64 `json:"fillOpacity"`
	StrokeOpacity float64 `json:"strokeOpacity"`
	StrokeWidth   float64 `json:"strokeWidth"`
	FontLabel     string  `json:"fontLabel,omitempty"`
}

// Active reports whether the user has a note selected.
func (t Toolbar) Active() bool { return t.NoteID != "" }

// NoteIDs returns the ids of all notes in insertion order.
func NoteIDs(r Reader) []string {
	if r == nil {
		return nil
	}
	return r.IDs()
}

// ToolbarFor derives the toolbar for the user with the given id. A user
// with no selection gets the zero Toolbar.
func ToolbarFor(r Reader, userID string) Toolbar {
	id, ok := SelectedNoteID(r, userID)
	if !ok {
		return Toolbar{}
	}
	n, ok := GetNote(r, id)
	if !ok {
		return Toolbar{}
	}
	label, _ := LabelForFont(n.FontClassName)
	return Toolbar{
		NoteID:        id,
		FillColor:     n.FillColor,
		StrokeColor:   n.StrokeColor,
		FillOpacity:   n.FillOpacity,
		StrokeOpacity: n.StrokeOpacity,
		StrokeWidth:   n.StrokeWidth,
		FontLabel:     label,
	}
}

// Equal is shallow equality for comparable projections.
func Equal[T comparable](a, b T) bool { return a == b }

// SliceEqual is element-wise equality for slice projections.
func SliceEqual[T comparable](a, b []T) bool { return slices.Equal(a, b) }

// Watch evaluates project against the document now and again after every
// change, calling onChange only when the projected value differs from the
// last one under equal. It returns the initial value and a cancel func.
func Watch[T any](doc *Doc, project func(Snapshot) T, equal func(a, b T) bool, onChange func(T)) (T, func()) {
	var mu sync.Mutex
	initial := project(doc.Snapshot())
	last := initial
	cancel := doc.Subscribe(func(ev Event) {
		next := project(ev.Snapshot)
		mu.Lock()
		if equal(last, next) {
			mu.Unlock()
			return
		}
		last = next
		mu.Unlock()
		onChange(next)
	})
	return initial, cancel
}
