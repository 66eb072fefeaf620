package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/maplab/internal/models"
)

func newController(t *testing.T, notes ...models.Note) (*Controller, *Doc) {
	t.Helper()
	doc := newTestDoc(WithNotes(notes))
	return NewController(NewSession(doc, user("u1"))), doc
}

func TestDragMovesNoteAsOneUndoStep(t *testing.T) {
	c, doc := newController(t, NewNote("a", 10, 20))
	c.SetCanvasOrigin(Point{X: 100, Y: 50})

	c.NotePointerDown("a", Point{X: 115, Y: 75})
	assert.True(t, c.Dragging())
	assert.Equal(t, Dragging{NoteID: "a", Offset: Point{X: 5, Y: 5}}, c.DragState())
	assert.True(t, c.Session().History().Paused())

	c.PointerMove(Point{X: 200, Y: 100})
	c.PointerMove(Point{X: 305, Y: 255})

	n, _ := GetNote(doc.Snapshot(), "a")
	assert.Equal(t, 200.0, n.X)
	assert.Equal(t, 200.0, n.Y)
	assert.True(t, n.IsSelectedBy("u1"))

	c.PointerUp()
	assert.False(t, c.Dragging())
	assert.Equal(t, Idle{}, c.DragState())
	assert.False(t, c.Session().History().Paused())

	require.True(t, c.Session().History().Undo())
	n, _ = GetNote(doc.Snapshot(), "a")
	assert.Equal(t, 10.0, n.X)
	assert.Equal(t, 20.0, n.Y)
	assert.True(t, n.IsSelectedBy("u1"), "selection is not part of undo")
	assert.False(t, c.Session().History().CanUndo())
}

func TestPointerMoveWithoutDragIsIgnored(t *testing.T) {
	c, doc := newController(t, NewNote("a", 10, 20))
	v := doc.Snapshot().Version()
	c.PointerMove(Point{X: 500, Y: 500})
	assert.Equal(t, v, doc.Snapshot().Version())
}

func TestPointerDownOnMissingNote(t *testing.T) {
	c, _ := newController(t)
	c.NotePointerDown("missing", Point{})
	assert.False(t, c.Dragging())
	assert.False(t, c.Session().History().Paused())
}

func TestPointerLeaveEndsDrag(t *testing.T) {
	c, _ := newController(t, NewNote("a", 0, 0))
	c.NotePointerDown("a", Point{})
	c.PointerLeave()
	assert.False(t, c.Dragging())
	assert.False(t, c.Session().History().Paused())
}

func TestDragOfDeletedNote(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))
	c.NotePointerDown("a", Point{})
	doc.ApplyRemote("peer", []Change{{Kind: ChangeDelete, NoteID: "a"}})

	assert.NotPanics(t, func() { c.PointerMove(Point{X: 50, Y: 50}) })
	assert.Equal(t, 0, doc.Snapshot().Len())
	c.PointerUp()
}

func TestCanvasPointerDownDeselects(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))
	c.Session().Select("a")
	c.CanvasPointerDown()

	n, _ := GetNote(doc.Snapshot(), "a")
	assert.Nil(t, n.SelectedBy)
}

func TestResize(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))

	_, _, ok := c.Resize(300, 300)
	assert.False(t, ok)

	c.ResizeStart("a")
	w, h, ok := c.Resize(50, 250)
	require.True(t, ok)
	assert.Equal(t, models.MinWidth, w)
	assert.Equal(t, 250.0, h)

	n, _ := GetNote(doc.Snapshot(), "a")
	assert.Equal(t, models.DefaultWidth, n.Width, "live size is local until stop")

	c.ResizeStop()
	n, _ = GetNote(doc.Snapshot(), "a")
	assert.Equal(t, models.MinWidth, n.Width)
	assert.Equal(t, 250.0, n.Height)
	assert.Equal(t, Idle{}, c.ResizeState())

	require.True(t, c.Session().History().Undo())
	n, _ = GetNote(doc.Snapshot(), "a")
	assert.Equal(t, models.DefaultWidth, n.Width)
	assert.Equal(t, models.DefaultHeight, n.Height)
}

func TestTextChangeSelects(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0), NewNote("b", 0, 0))
	c.Session().Select("b")

	c.Focus("a")
	assert.Equal(t, "a", c.Focused())
	c.TextChange("a", "h")
	c.TextChange("a", "hi")

	snap := doc.Snapshot()
	a, _ := GetNote(snap, "a")
	b, _ := GetNote(snap, "b")
	assert.Equal(t, "hi", a.Text)
	assert.True(t, a.IsSelectedBy("u1"))
	assert.Nil(t, b.SelectedBy)

	v := snap.Version()
	c.KeyDown("a")
	assert.Equal(t, "a", c.Focused())
	c.KeyDown(KeyEscape)
	assert.Equal(t, "", c.Focused())
	assert.Equal(t, v, doc.Snapshot().Version())
}

func TestTextChangeOnMissingNote(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))
	c.Session().Select("a")
	c.TextChange("missing", "x")

	a, _ := GetNote(doc.Snapshot(), "a")
	assert.True(t, a.IsSelectedBy("u1"))
}

func TestStyleChangeWhilePopoverOpenIsOneStep(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))
	c.Session().Select("a")

	c.PopoverOpenChange(PopoverFill, true)
	c.StyleChange(models.Patch{FillOpacity: models.Float(0.8)})
	c.StyleChange(models.Patch{FillOpacity: models.Float(0.5)})
	c.StyleChange(models.Patch{FillColor: models.String("#00ff00"), X: models.Float(99)})
	c.PopoverOpenChange(PopoverFill, false)

	n, _ := GetNote(doc.Snapshot(), "a")
	assert.Equal(t, 0.5, n.FillOpacity)
	assert.Equal(t, "#00ff00", n.FillColor)
	assert.Equal(t, 0.0, n.X)

	require.True(t, c.Session().History().Undo())
	n, _ = GetNote(doc.Snapshot(), "a")
	assert.Equal(t, 1.0, n.FillOpacity)
	assert.Equal(t, models.DefaultFillColor, n.FillColor)
	assert.True(t, n.IsSelectedBy("u1"))
}

func TestStyleChangeWithoutSelection(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))
	v := doc.Snapshot().Version()
	c.StyleChange(models.Patch{FillColor: models.String("#00ff00")})
	c.SelectFont("Roboto")
	assert.Equal(t, v, doc.Snapshot().Version())
}

func TestSelectFont(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))
	c.Session().Select("a")

	c.SelectFont("Caveat")
	label, ok := FontLabel(doc.Snapshot(), "a")
	assert.True(t, ok)
	assert.Equal(t, "Caveat", label)

	v := doc.Snapshot().Version()
	c.SelectFont("Comic Sans")
	assert.Equal(t, v, doc.Snapshot().Version())
}

func TestSelectingOtherNoteEndsPopoverBatch(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0), NewNote("b", 0, 0))
	c.Session().Select("a")

	c.PopoverOpenChange(PopoverStroke, true)
	c.StyleChange(models.Patch{StrokeWidth: models.Float(7)})
	c.NotePointerDown("b", Point{})
	c.PointerUp()

	h := c.Session().History()
	assert.False(t, h.Paused())
	require.True(t, h.Undo())
	a, _ := GetNote(doc.Snapshot(), "a")
	assert.Equal(t, models.DefaultStrokeWidth, a.StrokeWidth)
	b, _ := GetNote(doc.Snapshot(), "b")
	assert.True(t, b.IsSelectedBy("u1"))
	assert.False(t, h.CanUndo(), "selecting b records nothing")
}

func TestControllersOfOneUserShareHistoryBatch(t *testing.T) {
	doc := newTestDoc(WithNotes([]models.Note{NewNote("a", 0, 0)}))
	sess := NewSession(doc, user("u1"))
	tab1 := NewController(sess)
	tab2 := NewController(sess)
	sess.Select("a")

	tab1.NotePointerDown("a", Point{})
	tab2.PopoverOpenChange(PopoverFill, true)
	tab1.PointerUp()
	assert.True(t, sess.History().Paused(), "tab2 still holds its popover")

	tab2.StyleChange(models.Patch{FillColor: models.String("#111111")})
	tab2.StyleChange(models.Patch{FillColor: models.String("#222222")})
	tab2.PopoverOpenChange(PopoverFill, false)
	assert.False(t, sess.History().Paused())

	require.True(t, sess.Undo())
	n, _ := GetNote(doc.Snapshot(), "a")
	assert.Equal(t, models.DefaultFillColor, n.FillColor)
	assert.False(t, sess.History().CanUndo())
}

func TestClosingOneControllerKeepsOtherBatchOpen(t *testing.T) {
	doc := newTestDoc(WithNotes([]models.Note{NewNote("a", 0, 0)}))
	sess := NewSession(doc, user("u1"))
	tab1 := NewController(sess)
	tab2 := NewController(sess)
	sess.Select("a")

	tab1.PopoverOpenChange(PopoverStroke, true)
	tab2.PopoverOpenChange(PopoverStroke, true)
	tab1.Close()
	assert.True(t, sess.History().Paused())

	tab2.Close()
	assert.False(t, sess.History().Paused())
}

func TestCloseReleasesLeases(t *testing.T) {
	c, doc := newController(t, NewNote("a", 0, 0))
	c.NotePointerDown("a", Point{})
	c.ResizeStart("a")
	c.Resize(400, 400)
	c.PopoverOpenChange(PopoverFont, true)
	c.Focus("a")

	c.Close()
	assert.False(t, c.Session().History().Paused())
	assert.False(t, c.Dragging())
	assert.Equal(t, Idle{}, c.ResizeState())
	assert.Equal(t, "", c.Focused())

	n, _ := GetNote(doc.Snapshot(), "a")
	assert.Equal(t, 400.0, n.Width)
}
