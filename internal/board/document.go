// Package board implements the collaborative mutation engine of a shared
// note board: the document, the mutation operations, per-user selection,
// per-participant undo history, gesture handling and derived views.
package board

import (
	"maps"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/maplab/internal/models"
)

// ChangeKind identifies the shape of a Change.
type ChangeKind string

// Change kinds.
const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one atomic edit of the document. It is both the unit broadcast
// to other participants and the unit recorded for undo.
type Change struct {
	Kind   ChangeKind    `json:"kind"`
	NoteID string        `json:"noteId"`
	Index  int           `json:"index,omitempty"`
	Note   *models.Note  `json:"note,omitempty"`
	Patch  *models.Patch `json:"patch,omitempty"`
}

// Event is delivered to listeners after every transaction that changed the
// document. Origin is empty for local transactions and carries the sending
// instance id for changes applied from a relay.
type Event struct {
	Version  uint64
	Origin   string
	Changes  []Change
	Snapshot Snapshot
}

// Listener receives document events in commit order. Listeners run
// synchronously and must not mutate the document.
type Listener func(Event)

// Reader is read access to the notes of a document.
type Reader interface {
	Get(id string) (models.Note, bool)
	IDs() []string
}

// Snapshot is an immutable view of the document at one version.
type Snapshot struct {
	version uint64
	notes   []models.Note
	index   map[string]int
}

// Version returns the document version the snapshot was taken at.
func (s Snapshot) Version() uint64 { return s.version }

// Len returns the number of notes.
func (s Snapshot) Len() int { return len(s.notes) }

// Get returns the note with the given id.
func (s Snapshot) Get(id string) (models.Note, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.Note{}, false
	}
	return s.notes[i].Clone(), true
}

// IDs returns note ids in insertion order.
func (s Snapshot) IDs() []string {
	out := make([]string, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.ID
	}
	return out
}

// Notes returns a copy of all notes in insertion order.
func (s Snapshot) Notes() []models.Note {
	out := make([]models.Note, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.Clone()
	}
	return out
}

// DocOption configures a Doc.
type DocOption func(*Doc)

// WithRand makes note spawn positions deterministic.
func WithRand(r *rand.Rand) DocOption {
	return func(d *Doc) {
		d.intN = r.IntN
	}
}

// WithIDGenerator overrides the note id generator.
func WithIDGenerator(gen func() string) DocOption {
	return func(d *Doc) {
		d.newID = gen
	}
}

// WithNotes seeds the document, e.g. from a stored snapshot.
func WithNotes(notes []models.Note) DocOption {
	return func(d *Doc) {
		for _, n := range notes {
			if n.ID == "" {
				continue
			}
			if _, dup := d.notes[n.ID]; dup {
				continue
			}
			c := n.Clone()
			d.notes[n.ID] = &c
			d.order = append(d.order, n.ID)
		}
	}
}

// Doc is the shared board document: an ordered map from note id to note.
//
// Transactions are serialized by mu. Events are emitted under emitMu, which
// is taken before mu is released so listeners observe commits in order.
type Doc struct {
	mu      sync.Mutex
	order   []string
	notes   map[string]*models.Note
	version uint64
	snap    *Snapshot

	intN  func(int) int
	newID func() string

	emitMu    sync.Mutex
	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewDoc creates an empty document.
func NewDoc(opts ...DocOption) *Doc {
	d := &Doc{
		notes:     make(map[string]*models.Note),
		intN:      rand.IntN,
		newID:     uuid.NewString,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Snapshot returns the current immutable view of the document.
func (d *Doc) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Doc) snapshotLocked() Snapshot {
	if d.snap != nil {
		return *d.snap
	}
	s := Snapshot{
		version: d.version,
		notes:   make([]models.Note, len(d.order)),
		index:   make(map[string]int, len(d.order)),
	}
	for i, id := range d.order {
		s.notes[i] = d.notes[id].Clone()
		s.index[id] = i
	}
	d.snap = &s
	return s
}

// Subscribe registers l for document events and returns a function that
// removes it.
func (d *Doc) Subscribe(l Listener) func() {
	d.lmu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	d.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.lmu.Lock()
			delete(d.listeners, id)
			d.lmu.Unlock()
		})
	}
}

// Mutate runs fn as one atomic transaction and returns the changes that
// undo it, in the order they must be applied.
func (d *Doc) Mutate(fn func(tx *Tx)) []Change {
	return d.commit("", fn)
}

// Apply applies changes as one local transaction and returns their inverse.
// Changes that no longer apply (e.g. patching a deleted note) are skipped.
func (d *Doc) Apply(changes []Change) []Change {
	return d.commit("", func(tx *Tx) {
		for _, c := range changes {
			tx.apply(c)
		}
	})
}

// ApplyRemote applies changes that originated on another instance.
func (d *Doc) ApplyRemote(origin string, changes []Change) {
	d.commit(origin, func(tx *Tx) {
		for _, c := range changes {
			tx.apply(c)
		}
	})
}

func (d *Doc) commit(origin string, fn func(tx *Tx)) []Change {
	d.mu.Lock()
	tx := &Tx{doc: d}
	fn(tx)
	if len(tx.forward) == 0 {
		d.mu.Unlock()
		return nil
	}
	d.version++
	d.snap = nil
	ev := Event{
		Version:  d.version,
		Origin:   origin,
		Changes:  tx.forward,
		Snapshot: d.snapshotLocked(),
	}
	d.emitMu.Lock()
	d.mu.Unlock()

	d.lmu.Lock()
	ls := make([]Listener, 0, len(d.listeners))
	for _, id := range slices.Sorted(maps.Keys(d.listeners)) {
		ls = append(ls, d.listeners[id])
	}
	d.lmu.Unlock()
	for _, l := range ls {
		l(ev)
	}
	d.emitMu.Unlock()

	slices.Reverse(tx.inverse)
	return tx.inverse
}

// Tx is mutable access to the document inside one transaction.
type Tx struct {
	doc     *Doc
	forward []Change
	inverse []Change
}

// Get returns a copy of the note with the given id.
func (tx *Tx) Get(id string) (models.Note, bool) {
	n, ok := tx.doc.notes[id]
	if !ok {
		return models.Note{}, false
	}
	return n.Clone(), true
}

// IDs returns note ids in insertion order.
func (tx *Tx) IDs() []string {
	return slices.Clone(tx.doc.order)
}

// Insert appends a note. It reports false if the id is empty or taken.
func (tx *Tx) Insert(n models.Note) bool {
	return tx.insertAt(n, len(tx.doc.order))
}

// Patch merges p into the note with the given id. It reports false if the
// note does not exist.
func (tx *Tx) Patch(id string, p models.Patch) bool {
	n, ok := tx.doc.notes[id]
	if !ok || p.IsEmpty() {
		return false
	}
	p = p.Clone()
	inv := p.Apply(n)
	tx.forward = append(tx.forward, Change{Kind: ChangeUpdate, NoteID: id, Patch: &p})
	tx.inverse = append(tx.inverse, Change{Kind: ChangeUpdate, NoteID: id, Patch: &inv})
	return true
}

// Delete removes the note with the given id. It reports false if the note
// does not exist.
func (tx *Tx) Delete(id string) bool {
	n, ok := tx.doc.notes[id]
	if !ok {
		return false
	}
	idx := slices.Index(tx.doc.order, id)
	tx.doc.order = slices.Delete(tx.doc.order, idx, idx+1)
	delete(tx.doc.notes, id)
	prev := n.Clone()
	tx.forward = append(tx.forward, Change{Kind: ChangeDelete, NoteID: id})
	tx.inverse = append(tx.inverse, Change{Kind: ChangeInsert, NoteID: id, Index: idx, Note: &prev})
	return true
}

func (tx *Tx) insertAt(n models.Note, idx int) bool {
	if n.ID == "" {
		return false
	}
	if _, exists := tx.doc.notes[n.ID]; exists {
		return false
	}
	idx = min(max(idx, 0), len(tx.doc.order))
	c := n.Clone()
	tx.doc.notes[n.ID] = &c
	tx.doc.order = slices.Insert(tx.doc.order, idx, n.ID)
	fwd := n.Clone()
	tx.forward = append(tx.forward, Change{Kind: ChangeInsert, NoteID: n.ID, Index: idx, Note: &fwd})
	tx.inverse = append(tx.inverse, Change{Kind: ChangeDelete, NoteID: n.ID})
	return true
}

func (tx *Tx) apply(c Change) {
	switch c.Kind {
	case ChangeInsert:
		if c.Note != nil {
			n := c.Note.Clone()
			n.ID = c.NoteID
			tx.insertAt(n, c.Index)
		}
	case ChangeUpdate:
		if c.Patch != nil {
			tx.Patch(c.NoteID, *c.Patch)
		}
	case ChangeDelete:
		tx.Delete(c.NoteID)
	}
}

func (tx *Tx) newID() string { return tx.doc.newID() }

func (tx *Tx) randomCoord(n int) float64 { return float64(tx.doc.intN(n)) }
