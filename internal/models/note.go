// Package models defines the domain types for maplab.
package models

import (
	"encoding/json"
	"time"
)

// Note geometry and style bounds.
const (
	DefaultWidth  = 200.0
	DefaultHeight = 100.0
	MinWidth      = 100.0
	MinHeight     = 100.0

	// SpawnRange bounds the random initial position of a new note on both axes.
	SpawnRange = 300

	MaxOpacity     = 1.0
	MaxStrokeWidth = 10.0

	DefaultFillColor   = "#ffffff"
	DefaultStrokeColor = "#000"
	DefaultStrokeWidth = 3.0
	DefaultOpacity     = 1.0
)

// UserInfo is the presence snapshot of a participant, stamped on a note
// when that participant selects it.
type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Participant is a connected user acting on a board.
type Participant struct {
	Info     UserInfo `json:"info"`
	ReadOnly bool     `json:"isReadOnly"`
}

// Note is one entry of the shared board document.
type Note struct {
	ID            string    `json:"id"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
	Width         float64   `json:"width"`
	Height        float64   `json:"height"`
	Text          string    `json:"text"`
	FillColor     string    `json:"fillColor"`
	StrokeColor   string    `json:"strokeColor"`
	FillOpacity   float64   `json:"fillOpacity"`
	StrokeOpacity float64   `json:"strokeOpacity"`
	StrokeWidth   float64   `json:"strokeWidth"`
	FontClassName string    `json:"fontClassName"`
	SelectedBy    *UserInfo `json:"selectedBy"`
}

// IsSelectedBy reports whether the note is currently selected by the user
// with the given id.
func (n Note) IsSelectedBy(userID string) bool {
	return n.SelectedBy != nil && userID != "" && n.SelectedBy.ID == userID
}

// Clone returns a copy of n that shares no memory with it.
func (n Note) Clone() Note {
	if n.SelectedBy != nil {
		u := *n.SelectedBy
		n.SelectedBy = &u
	}
	return n
}

// Selection is an explicit assignment of a note's selectedBy field.
// A nil User clears the selection.
type Selection struct {
	User *UserInfo
}

// Patch is a partial update of a note. Nil fields are left untouched.
type Patch struct {
	X             *float64   `json:"x,omitempty"`
	Y             *float64   `json:"y,omitempty"`
	Width         *float64   `json:"width,omitempty"`
	Height        *float64   `json:"height,omitempty"`
	Text          *string    `json:"text,omitempty"`
	FillColor     *string    `json:"fillColor,omitempty"`
	StrokeColor   *string    `json:"strokeColor,omitempty"`
	FillOpacity   *float64   `json:"fillOpacity,omitempty"`
	StrokeOpacity *float64   `json:"strokeOpacity,omitempty"`
	StrokeWidth   *float64   `json:"strokeWidth,omitempty"`
	FontClassName *string    `json:"fontClassName,omitempty"`
	SelectedBy    *Selection `json:"-"`
}

// MarshalJSON encodes an explicit selection clear as "selectedBy": null and
// omits the key when the patch does not touch the selection.
func (p Patch) MarshalJSON() ([]byte, error) {
	type fields Patch
	if p.SelectedBy == nil {
		return json.Marshal(fields(p))
	}
	return json.Marshal(struct {
		fields
		SelectedBy *UserInfo `json:"selectedBy"`
	}{fields(p), p.SelectedBy.User})
}

// UnmarshalJSON decodes a patch, treating a present "selectedBy": null as a
// request to clear the selection.
func (p *Patch) UnmarshalJSON(data []byte) error {
	type fields Patch
	var aux struct {
		fields
		SelectedBy json.RawMessage `json:"selectedBy"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Patch(aux.fields)
	if aux.SelectedBy == nil {
		return nil
	}
	sel := &Selection{}
	if string(aux.SelectedBy) != "null" {
		var u UserInfo
		if err := json.Unmarshal(aux.SelectedBy, &u); err != nil {
			return err
		}
		sel.User = &u
	}
	p.SelectedBy = sel
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil &&
		p.Text == nil && p.FillColor == nil && p.StrokeColor == nil &&
		p.FillOpacity == nil && p.StrokeOpacity == nil && p.StrokeWidth == nil &&
		p.FontClassName == nil && p.SelectedBy == nil
}

// Normalize clamps numeric fields into their valid ranges.
func (p *Patch) Normalize() {
	clampPtr(p.FillOpacity, 0, MaxOpacity)
	clampPtr(p.StrokeOpacity, 0, MaxOpacity)
	clampPtr(p.StrokeWidth, 0, MaxStrokeWidth)
	if p.Width != nil && *p.Width < MinWidth {
		*p.Width = MinWidth
	}
	if p.Height != nil && *p.Height < MinHeight {
		*p.Height = MinHeight
	}
}

// Apply merges the patch into n and returns the patch that would restore
// the previous values of every field it touched.
func (p Patch) Apply(n *Note) Patch {
	var inv Patch
	setFloat(&n.X, p.X, &inv.X)
	setFloat(&n.Y, p.Y, &inv.Y)
	setFloat(&n.Width, p.Width, &inv.Width)
	setFloat(&n.Height, p.Height, &inv.Height)
	setString(&n.Text, p.Text, &inv.Text)
	setString(&n.FillColor, p.FillColor, &inv.FillColor)
	setString(&n.StrokeColor, p.StrokeColor, &inv.StrokeColor)
	setFloat(&n.FillOpacity, p.FillOpacity, &inv.FillOpacity)
	setFloat(&n.StrokeOpacity, p.StrokeOpacity, &inv.StrokeOpacity)
	setFloat(&n.StrokeWidth, p.StrokeWidth, &inv.StrokeWidth)
	setString(&n.FontClassName, p.FontClassName, &inv.FontClassName)
	if p.SelectedBy != nil {
		inv.SelectedBy = &Selection{User: clonePtr(n.SelectedBy)}
		if p.SelectedBy.User != nil {
			u := *p.SelectedBy.User
			n.SelectedBy = &u
		} else {
			n.SelectedBy = nil
		}
	}
	return inv
}

// Clone returns a deep copy of the patch.
func (p Patch) Clone() Patch {
	out := Patch{
		X:             clonePtr(p.X),
		Y:             clonePtr(p.Y),
		Width:         clonePtr(p.Width),
		Height:        clonePtr(p.Height),
		Text:          clonePtr(p.Text),
		FillColor:     clonePtr(p.FillColor),
		StrokeColor:   clonePtr(p.StrokeColor),
		FillOpacity:   clonePtr(p.FillOpacity),
		StrokeOpacity: clonePtr(p.StrokeOpacity),
		StrokeWidth:   clonePtr(p.StrokeWidth),
		FontClassName: clonePtr(p.FontClassName),
	}
	if p.SelectedBy != nil {
		out.SelectedBy = &Selection{User: clonePtr(p.SelectedBy.User)}
	}
	return out
}

// Float returns a pointer to v, for building patches.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v, for building patches.
func String(v string) *string { return &v }

// RoomMeta is a lightweight description of a stored board snapshot.
type RoomMeta struct {
	Room      string    `json:"room"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

func setFloat(dst *float64, v *float64, old **float64) {
	if v == nil {
		return
	}
	prev := *dst
	*old = &prev
	*dst = *v
}

func setString(dst *string, v *string, old **string) {
	if v == nil {
		return
	}
	prev := *dst
	*old = &prev
	*dst = *v
}

func clampPtr(v *float64, lo, hi float64) {
	if v == nil {
		return
	}
	*v = min(max(*v, lo), hi)
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
