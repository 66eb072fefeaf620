// Package snapshot encodes board notes as automerge documents for storage.
//
// Layout of the root map:
//
//	format: 1
//	notes:  { <id>: { seq, x, y, width, height, text, fillColor, ... } }
//
// seq preserves insertion order. selectedBy is presence state and is never
// persisted.
package snapshot

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/automerge/automerge-go"

	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/models"
)

// FormatVersion is written to every snapshot.
const FormatVersion = 1

// ErrUnsupportedFormat is returned for snapshots written by a newer format.
var ErrUnsupportedFormat = errors.New("snapshot: unsupported format")

// Encode serializes notes, in order, into an automerge document.
func Encode(notes []models.Note) ([]byte, error) {
	doc := automerge.New()
	entries := make(map[string]any, len(notes))
	for i, n := range notes {
		entries[n.ID] = map[string]any{
			"seq":           float64(i),
			"x":             n.X,
			"y":             n.Y,
			"width":         n.Width,
			"height":        n.Height,
			"text":          n.Text,
			"fillColor":     n.FillColor,
			"strokeColor":   n.StrokeColor,
			"fillOpacity":   n.FillOpacity,
			"strokeOpacity": n.StrokeOpacity,
			"strokeWidth":   n.StrokeWidth,
			"fontClassName": n.FontClassName,
		}
	}
	if err := doc.Path("format").Set(float64(FormatVersion)); err != nil {
		return nil, fmt.Errorf("snapshot: set format: %w", err)
	}
	if err := doc.Path("notes").Set(entries); err != nil {
		return nil, fmt.Errorf("snapshot: set notes: %w", err)
	}
	if _, err := doc.Commit("snapshot", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, fmt.Errorf("snapshot: commit: %w", err)
	}
	return doc.Save(), nil
}

// Decode parses a snapshot written by Encode. Fields missing from a stored
// note fall back to the defaults of a new note.
func Decode(data []byte) ([]models.Note, error) {
	doc, err := automerge.Load(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load: %w", err)
	}
	format, err := automerge.As[float64](doc.Path("format").Get())
	if err != nil {
		return nil, fmt.Errorf("snapshot: read format: %w", err)
	}
	if int(format) > FormatVersion {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}

	v, err := doc.Path("notes").Get()
	if err != nil {
		return nil, fmt.Errorf("snapshot: read notes: %w", err)
	}
	if v.Kind() != automerge.KindMap {
		return nil, nil
	}
	ids, err := v.Map().Keys()
	if err != nil {
		return nil, fmt.Errorf("snapshot: list notes: %w", err)
	}

	type entry struct {
		seq  float64
		note models.Note
	}
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		n := board.NewNote(id, 0, 0)
		r := reader{doc: doc, id: id}
		seq := r.float("seq", 0)
		n.X = r.float("x", n.X)
		n.Y = r.float("y", n.Y)
		n.Width = r.float("width", n.Width)
		n.Height = r.float("height", n.Height)
		n.Text = r.str("text", n.Text)
		n.FillColor = r.str("fillColor", n.FillColor)
		n.StrokeColor = r.str("strokeColor", n.StrokeColor)
		n.FillOpacity = r.float("fillOpacity", n.FillOpacity)
		n.StrokeOpacity = r.float("strokeOpacity", n.StrokeOpacity)
		n.StrokeWidth = r.float("strokeWidth", n.StrokeWidth)
		n.FontClassName = r.str("fontClassName", n.FontClassName)
		if r.err != nil {
			return nil, fmt.Errorf("snapshot: note %s: %w", id, r.err)
		}
		entries = append(entries, entry{seq: seq, note: n})
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.Or(cmp.Compare(a.seq, b.seq), cmp.Compare(a.note.ID, b.note.ID))
	})

	notes := make([]models.Note, len(entries))
	for i, e := range entries {
		notes[i] = e.note
	}
	return notes, nil
}

// reader reads fields of one stored note, keeping the first error.
type reader struct {
	doc *automerge.Doc
	id  string
	err error
}

func (r *reader) value(field string) *automerge.Value {
	if r.err != nil {
		return nil
	}
	v, err := r.doc.Path("notes", r.id, field).Get()
	if err != nil {
		r.err = err
		return nil
	}
	if v.Kind() == automerge.KindVoid {
		return nil
	}
	return v
}

func (r *reader) float(field string, def float64) float64 {
	v := r.value(field)
	if v == nil {
		return def
	}
	f, err := automerge.As[float64](v)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", field, err)
		return def
	}
	return f
}

func (r *reader) str(field string, def string) string {
	v := r.value(field)
	if v == nil {
		return def
	}
	s, err := automerge.As[string](v)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", field, err)
		return def
	}
	return s
}
