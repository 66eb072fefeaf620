// Package ws serves the live gesture channel of a board room over
// websockets. Each connection drives its own board.Controller; committed
// changes of the room are pushed back to every connection.
package ws

import (
	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/models"
)

// Client message types.
const (
	MsgCanvasOrigin      = "canvasOrigin"
	MsgNotePointerDown   = "notePointerDown"
	MsgPointerMove       = "pointerMove"
	MsgPointerUp         = "pointerUp"
	MsgPointerLeave      = "pointerLeave"
	MsgCanvasPointerDown = "canvasPointerDown"
	MsgResizeStart       = "resizeStart"
	MsgResize            = "resize"
	MsgResizeStop        = "resizeStop"
	MsgFocus             = "focus"
	MsgBlur              = "blur"
	MsgKeyDown           = "keyDown"
	MsgTextChange        = "textChange"
	MsgPopover           = "popover"
	MsgStyle             = "style"
	MsgFont              = "font"
	MsgAddNote           = "addNote"
	MsgDeleteNote        = "deleteNote"
	MsgUndo              = "undo"
	MsgRedo              = "redo"
)

// Server message types.
const (
	MsgHello   = "hello"
	MsgChange  = "change"
	MsgHistory = "history"
	MsgToolbar = "toolbar"
	MsgError   = "error"
)

// ClientMessage is any input sent by a client. Only the fields relevant to
// Type are read.
type ClientMessage struct {
	Type   string        `json:"type"`
	ID     string        `json:"id,omitempty"`
	X      float64       `json:"x,omitempty"`
	Y      float64       `json:"y,omitempty"`
	Width  float64       `json:"width,omitempty"`
	Height float64       `json:"height,omitempty"`
	Key    string        `json:"key,omitempty"`
	Text   string        `json:"text,omitempty"`
	Name   string        `json:"name,omitempty"`
	Open   bool          `json:"open,omitempty"`
	Label  string        `json:"label,omitempty"`
	Patch  *models.Patch `json:"patch,omitempty"`
}

// HistoryState is the undo availability of the connected participant.
type HistoryState struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
	Paused  bool `json:"paused"`
}

// ServerMessage is pushed to clients.
type ServerMessage struct {
	Type     string              `json:"type"`
	Version  uint64              `json:"version,omitempty"`
	Origin   string              `json:"origin,omitempty"`
	Self     *models.Participant `json:"self,omitempty"`
	Notes    []models.Note       `json:"notes,omitempty"`
	Fonts    []board.FontPreset  `json:"fonts,omitempty"`
	Changes  []board.Change      `json:"changes,omitempty"`
	History  *HistoryState       `json:"history,omitempty"`
	Toolbar  *board.Toolbar      `json:"toolbar,omitempty"`
	Width    float64             `json:"width,omitempty"`
	Height   float64             `json:"height,omitempty"`
	Dragging bool                `json:"dragging,omitempty"`
	Error    string              `json:"error,omitempty"`
}

func historyState(h *board.History) *HistoryState {
	return &HistoryState{CanUndo: h.CanUndo(), CanRedo: h.CanRedo(), Paused: h.Paused()}
}
