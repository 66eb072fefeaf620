package board

import "sync"

// DefaultHistoryLimit bounds the number of undo entries kept per participant.
const DefaultHistoryLimit = 100

// History is one participant's undo/redo stack over a shared document.
//
// Pause starts a batch: everything recorded until Resume collapses into a
// single undo entry. Pausing is not nested; a second Pause is ignored and
// Resume without Pause does nothing. Hold is the counted form used when
// several clients of the same participant batch at once: the batch closes
// when the last hold is released, and Resume is ignored while holds remain.
//
// Selection is presence, not content. Entries never carry selectedBy, so
// undo and redo leave every participant's selection where it is.
type History struct {
	doc   *Doc
	limit int

	mu      sync.Mutex
	undo    [][]Change
	redo    [][]Change
	paused  bool
	holds   int
	pending []Change
}

// NewHistory creates a history over doc. A limit <= 0 selects
// DefaultHistoryLimit.
func NewHistory(doc *Doc, limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{doc: doc, limit: limit}
}

// Record adds the inverse of a transaction.
func (h *History) Record(inverse []Change) {
	inverse = withoutSelection(inverse)
	if len(inverse) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		h.pending = append(append([]Change(nil), inverse...), h.pending...)
		return
	}
	h.pushUndoLocked(inverse)
	h.redo = nil
}

// Pause starts collapsing recorded changes into one entry.
func (h *History) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
}

// Resume closes the batch started by Pause.
func (h *History) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.holds > 0 {
		return
	}
	h.resumeLocked()
}

// Hold pauses the history until the returned release func is called. Holds
// nest: the batch stays open until every holder has released. Calling
// release more than once has no further effect.
func (h *History) Hold() (release func()) {
	h.mu.Lock()
	h.holds++
	h.paused = true
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.holds--
			if h.holds == 0 {
				h.resumeLocked()
			}
		})
	}
}

func (h *History) resumeLocked() {
	if !h.paused {
		return
	}
	h.paused = false
	if len(h.pending) > 0 {
		h.pushUndoLocked(h.pending)
		h.pending = nil
		h.redo = nil
	}
}

// Paused reports whether a batch is open.
func (h *History) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.paused && len(h.undo) > 0
}

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.paused && len(h.redo) > 0
}

// Undo reverts the most recent entry. It is a no-op while paused.
func (h *History) Undo() bool {
	entry, ok := h.pop(&h.undo)
	if !ok {
		return false
	}
	inverse := withoutSelection(h.doc.Apply(entry))
	h.mu.Lock()
	if len(inverse) > 0 {
		h.redo = append(h.redo, inverse)
	}
	h.mu.Unlock()
	return true
}

// Redo reapplies the most recently undone entry. It is a no-op while paused.
func (h *History) Redo() bool {
	entry, ok := h.pop(&h.redo)
	if !ok {
		return false
	}
	inverse := withoutSelection(h.doc.Apply(entry))
	h.mu.Lock()
	if len(inverse) > 0 {
		h.pushUndoLocked(inverse)
	}
	h.mu.Unlock()
	return true
}

func (h *History) pop(stack *[][]Change) ([]Change, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused || len(*stack) == 0 {
		return nil, false
	}
	last := len(*stack) - 1
	entry := (*stack)[last]
	*stack = (*stack)[:last]
	return entry, true
}

func (h *History) pushUndoLocked(entry []Change) {
	h.undo = append(h.undo, entry)
	if over := len(h.undo) - h.limit; over > 0 {
		h.undo = append([][]Change(nil), h.undo[over:]...)
	}
}

// withoutSelection drops selectedBy from changes. Updates that only moved a
// selection disappear; restored notes come back unselected.
func withoutSelection(changes []Change) []Change {
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		switch {
		case c.Patch != nil && c.Patch.SelectedBy != nil:
			p := *c.Patch
			p.SelectedBy = nil
			if p.IsEmpty() {
				continue
			}
			c.Patch = &p
		case c.Note != nil && c.Note.SelectedBy != nil:
			n := *c.Note
			n.SelectedBy = nil
			c.Note = &n
		}
		out = append(out, c)
	}
	return out
}
