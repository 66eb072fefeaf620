package board

import (
	"sync"

	"github.com/starford/maplab/internal/models"
)

// Session binds a participant to a document and to that participant's own
// undo history. It is the mutation dispatch point for one user.
type Session struct {
	doc     *Doc
	history *History

	mu   sync.RWMutex
	self models.Participant
}

// NewSession creates a session for self on doc.
func NewSession(doc *Doc, self models.Participant) *Session {
	return &Session{
		doc:     doc,
		history: NewHistory(doc, DefaultHistoryLimit),
		self:    self,
	}
}

// Participant returns the acting participant.
func (s *Session) Participant() models.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// SetParticipant refreshes presence metadata or permissions, e.g. after a
// reconnect with a new token.
func (s *Session) SetParticipant(p models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = p
}

// Doc returns the shared document.
func (s *Session) Doc() *Doc { return s.doc }

// History returns the participant's undo history.
func (s *Session) History() *History { return s.history }

// Mutate runs fn as one transaction on behalf of the participant and
// records it for undo.
func (s *Session) Mutate(fn func(tx *Tx, self models.Participant)) {
	self := s.Participant()
	if self.ReadOnly {
		return
	}
	inverse := s.doc.Mutate(func(tx *Tx) { fn(tx, self) })
	s.history.Record(inverse)
}

// Undo reverts the participant's most recent undo entry. Read-only
// participants cannot undo.
func (s *Session) Undo() bool {
	if s.Participant().ReadOnly {
		return false
	}
	return s.history.Undo()
}

// Redo reapplies the participant's most recently undone entry. Read-only
// participants cannot redo.
func (s *Session) Redo() bool {
	if s.Participant().ReadOnly {
		return false
	}
	return s.history.Redo()
}

// AddNote creates a note and returns its id.
func (s *Session) AddNote() string {
	var id string
	s.Mutate(func(tx *Tx, self models.Participant) {
		id = AddNote(tx, self)
	})
	return id
}

// UpdateNote merges patch into a note.
func (s *Session) UpdateNote(id string, patch models.Patch) {
	s.Mutate(func(tx *Tx, self models.Participant) {
		UpdateNote(tx, self, id, patch)
	})
}

// DeleteNote removes a note.
func (s *Session) DeleteNote(id string) {
	s.Mutate(func(tx *Tx, self models.Participant) {
		DeleteNote(tx, self, id)
	})
}

// Select makes id the participant's selected note.
func (s *Session) Select(id string) {
	s.Mutate(func(tx *Tx, self models.Participant) {
		Select(tx, self, id)
	})
}

// Deselect clears the participant's selection.
func (s *Session) Deselect() {
	s.Mutate(func(tx *Tx, self models.Participant) {
		Deselect(tx, self)
	})
}

// SelectedNoteID returns the note the participant has selected.
func (s *Session) SelectedNoteID() (string, bool) {
	return SelectedNoteID(s.doc.Snapshot(), s.Participant().Info.ID)
}
