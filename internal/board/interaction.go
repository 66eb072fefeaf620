package board

import (
	"maps"
	"slices"
	"strings"

	"github.com/starford/maplab/internal/models"
)

// Point is a position in client (pointer) or canvas coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// DragState is the drag gesture state: Idle or Dragging.
type DragState interface{ isDragState() }

// ResizeState is the resize gesture state: Idle or Resizing.
type ResizeState interface{ isResizeState() }

// Idle is the rest state of both gestures.
type Idle struct{}

func (Idle) isDragState()   {}
func (Idle) isResizeState() {}

// Dragging records the note under the pointer and where on the note it was
// grabbed, relative to the note's top-left corner.
type Dragging struct {
	NoteID string
	Offset Point
}

func (Dragging) isDragState() {}

// Resizing holds the live size shown while the resize handle is dragged.
// The size is committed to the document when the gesture stops.
type Resizing struct {
	NoteID string
	Width  float64
	Height float64
}

func (Resizing) isResizeState() {}

// Popover names a style control panel.
type Popover string

// Style popovers.
const (
	PopoverFill   Popover = "fill"
	PopoverStroke Popover = "stroke"
	PopoverFont   Popover = "font"
)

const (
	leaseDrag          = "drag"
	leaseResize        = "resize"
	leasePopoverPrefix = "popover:"
)

// KeyEscape is the key name that blurs the focused note.
const KeyEscape = "Escape"

// Controller turns one client's pointer and keyboard input into document
// mutations. Multi-step gestures (drag, resize, open style popovers) hold
// a lease on the participant's history; history is paused while any lease
// of any controller on the same session is held and resumed when the last
// one is released, so each gesture becomes a single undo step.
//
// A Controller is not safe for concurrent use; feed it from one goroutine.
type Controller struct {
	session *Session
	origin  Point
	drag    DragState
	resize  ResizeState
	focused string
	leases  map[string]func()
}

// NewController creates an idle controller for session.
func NewController(session *Session) *Controller {
	return &Controller{
		session: session,
		drag:    Idle{},
		resize:  Idle{},
		leases:  make(map[string]func()),
	}
}

// Session returns the session the controller acts for.
func (c *Controller) Session() *Session { return c.session }

// SetCanvasOrigin records where the canvas's top-left corner sits in client
// coordinates.
func (c *Controller) SetCanvasOrigin(p Point) { c.origin = p }

// DragState returns the current drag state.
func (c *Controller) DragState() DragState { return c.drag }

// ResizeState returns the current resize state.
func (c *Controller) ResizeState() ResizeState { return c.resize }

// Dragging reports whether a drag is in progress; the presentation layer
// uses it for the grabbing cursor.
func (c *Controller) Dragging() bool {
	_, ok := c.drag.(Dragging)
	return ok
}

// Focused returns the note whose text input has focus.
func (c *Controller) Focused() string { return c.focused }

// NotePointerDown starts dragging a note and selects it.
func (c *Controller) NotePointerDown(id string, pointer Point) {
	n, ok := GetNote(c.session.Doc().Snapshot(), id)
	if !ok {
		return
	}
	if selected, _ := c.session.SelectedNoteID(); selected != id {
		c.closePopovers()
	}
	c.acquire(leaseDrag)
	c.drag = Dragging{
		NoteID: id,
		Offset: pointer.Sub(c.origin).Sub(Point{X: n.X, Y: n.Y}),
	}
	c.session.Select(id)
}

// PointerMove moves the dragged note so the grab point follows the pointer.
func (c *Controller) PointerMove(pointer Point) {
	d, ok := c.drag.(Dragging)
	if !ok {
		return
	}
	pos := pointer.Sub(c.origin).Sub(d.Offset)
	c.session.UpdateNote(d.NoteID, models.Patch{X: models.Float(pos.X), Y: models.Float(pos.Y)})
}

// PointerUp ends any gesture in progress.
func (c *Controller) PointerUp() {
	c.drag = Idle{}
	c.release(leaseDrag)
	c.ResizeStop()
}

// PointerLeave handles the pointer leaving the canvas; it ends gestures the
// same way PointerUp does.
func (c *Controller) PointerLeave() { c.PointerUp() }

// CanvasPointerDown handles a press on the empty canvas: it clears the
// participant's selection.
func (c *Controller) CanvasPointerDown() {
	c.session.Deselect()
}

// ResizeStart begins resizing a note from its bottom-right handle.
func (c *Controller) ResizeStart(id string) {
	n, ok := GetNote(c.session.Doc().Snapshot(), id)
	if !ok {
		return
	}
	c.acquire(leaseResize)
	c.resize = Resizing{NoteID: id, Width: n.Width, Height: n.Height}
}

// Resize updates the live size of the note being resized, enforcing the
// minimum size. It returns the size to display.
func (c *Controller) Resize(width, height float64) (float64, float64, bool) {
	r, ok := c.resize.(Resizing)
	if !ok {
		return 0, 0, false
	}
	r.Width = max(width, models.MinWidth)
	r.Height = max(height, models.MinHeight)
	c.resize = r
	return r.Width, r.Height, true
}

// ResizeStop commits the live size and ends the resize gesture.
func (c *Controller) ResizeStop() {
	r, ok := c.resize.(Resizing)
	if !ok {
		return
	}
	c.session.UpdateNote(r.NoteID, models.Patch{
		Width:  models.Float(r.Width),
		Height: models.Float(r.Height),
	})
	c.resize = Idle{}
	c.release(leaseResize)
}

// Focus gives a note's text input focus (double click).
func (c *Controller) Focus(id string) {
	if _, ok := GetNote(c.session.Doc().Snapshot(), id); ok {
		c.focused = id
	}
}

// Blur removes text focus.
func (c *Controller) Blur() { c.focused = "" }

// KeyDown handles a key press in the focused note. Escape blurs.
func (c *Controller) KeyDown(key string) {
	if key == KeyEscape {
		c.Blur()
	}
}

// TextChange writes a note's text on every keystroke. Editing implies
// selection, so the note is selected in the same transaction.
func (c *Controller) TextChange(id, text string) {
	c.session.Mutate(func(tx *Tx, self models.Participant) {
		if _, ok := tx.Get(id); !ok {
			return
		}
		Select(tx, self, id)
		UpdateNote(tx, self, id, models.Patch{Text: models.String(text)})
	})
}

// PopoverOpenChange tracks a style popover opening or closing.
func (c *Controller) PopoverOpenChange(p Popover, open bool) {
	if open {
		c.acquire(leasePopoverPrefix + string(p))
		return
	}
	c.release(leasePopoverPrefix + string(p))
}

// StyleChange applies the style fields of patch to the participant's
// selected note. Position, size, text and selection are ignored.
func (c *Controller) StyleChange(patch models.Patch) {
	id, ok := c.session.SelectedNoteID()
	if !ok {
		return
	}
	style := models.Patch{
		FillColor:     patch.FillColor,
		StrokeColor:   patch.StrokeColor,
		FillOpacity:   patch.FillOpacity,
		StrokeOpacity: patch.StrokeOpacity,
		StrokeWidth:   patch.StrokeWidth,
		FontClassName: patch.FontClassName,
	}
	if style.IsEmpty() {
		return
	}
	c.session.UpdateNote(id, style)
}

// SelectFont sets the selected note's font by preset label.
func (c *Controller) SelectFont(label string) {
	className, ok := FontForLabel(label)
	if !ok {
		return
	}
	c.StyleChange(models.Patch{FontClassName: models.String(className)})
}

// Close ends every gesture and releases all history leases, so an
// interrupted client never leaves the history paused.
func (c *Controller) Close() {
	c.PointerUp()
	c.closePopovers()
	for _, name := range slices.Sorted(maps.Keys(c.leases)) {
		c.release(name)
	}
	c.focused = ""
}

func (c *Controller) closePopovers() {
	for _, name := range slices.Sorted(maps.Keys(c.leases)) {
		if strings.HasPrefix(name, leasePopoverPrefix) {
			c.release(name)
		}
	}
}

func (c *Controller) acquire(name string) {
	if _, held := c.leases[name]; held {
		return
	}
	c.leases[name] = c.session.History().Hold()
}

func (c *Controller) release(name string) {
	done, held := c.leases[name]
	if !held {
		return
	}
	delete(c.leases, name)
	done()
}
