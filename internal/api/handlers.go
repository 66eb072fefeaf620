package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/maplab/internal/apperr"
	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/boardservice"
	"github.com/starford/maplab/internal/checksum"
	"github.com/starford/maplab/internal/export"
	"github.com/starford/maplab/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *boardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *boardservice.Service) *Handler {
	return &Handler{svc: svc}
}

// NoteListResponse is the body of GET /rooms/{room}/notes.
type NoteListResponse struct {
	Version uint64        `json:"version"`
	Notes   []models.Note `json:"notes"`
}

// ViewResponse is the per-user board projection.
type ViewResponse struct {
	Version uint64        `json:"version"`
	NoteIDs []string      `json:"noteIds"`
	Toolbar board.Toolbar `json:"toolbar"`
}

// HistoryResponse reports the caller's undo state.
type HistoryResponse struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
	Paused  bool `json:"paused"`
}

// ListFonts handles GET /api/fonts.
func (h *Handler) ListFonts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"fonts": board.FontPresets})
}

// ListRooms handles GET /api/rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.svc.Rooms(r.Context())
	if err != nil {
		slog.Error("list rooms failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// ListNotes handles GET /api/rooms/{room}/notes. The response carries an
// ETag over its body; a matching If-None-Match yields 304.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	snap := room.Doc().Snapshot()
	data, err := json.Marshal(NoteListResponse{Version: snap.Version(), Notes: snap.Notes()})
	if err != nil {
		slog.Error("encode notes failed", slog.String("room", room.ID()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	etag := checksum.ETag(data)
	w.Header().Set("ETag", etag)
	if checksum.NoneMatch(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(data, '\n'))
}

// CreateNote handles POST /api/rooms/{room}/notes. An optional patch body
// is applied to the new note in the same change. Read-only participants
// get 204 and nothing is created.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	room, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	patch, ok := decodePatch(w, r, true)
	if !ok {
		return
	}

	var id string
	sess.Mutate(func(tx *board.Tx, self models.Participant) {
		id = board.AddNote(tx, self)
		if id != "" && !patch.IsEmpty() {
			board.UpdateNote(tx, self, id, patch)
		}
	})
	if id == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	n, err := room.GetNote(id)
	if err != nil {
		// Deleted by a concurrent change before we could read it back.
		writeJSON(w, http.StatusConflict, errorBody("note deleted concurrently"))
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// GetNote handles GET /api/rooms/{room}/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	n, ok := h.note(w, r, room)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// UpdateNote handles PATCH /api/rooms/{room}/notes/{id}. The body is a
// partial note; selection is changed through the select endpoints only.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	room, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, ok := h.note(w, r, room); !ok {
		return
	}
	patch, ok := decodePatch(w, r, false)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	sess.UpdateNote(id, patch)
	n, ok := h.note(w, r, room)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /api/rooms/{room}/notes/{id}. Deleting a
// missing note is a no-op.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.DeleteNote(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// SelectNote handles POST /api/rooms/{room}/notes/{id}/select.
func (h *Handler) SelectNote(w http.ResponseWriter, r *http.Request) {
	room, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, ok := h.note(w, r, room); !ok {
		return
	}
	sess.Select(chi.URLParam(r, "id"))
	n, ok := h.note(w, r, room)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ClearSelection handles POST /api/rooms/{room}/selection/clear.
func (h *Handler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Deselect()
	w.WriteHeader(http.StatusNoContent)
}

// View handles GET /api/rooms/{room}/view.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	p, _ := ParticipantFrom(r.Context())
	snap := room.Doc().Snapshot()
	ids := board.NoteIDs(snap)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ViewResponse{
		Version: snap.Version(),
		NoteIDs: ids,
		Toolbar: board.ToolbarFor(snap, p.Info.ID),
	})
}

// History handles GET /api/rooms/{room}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, historyResponse(sess.History()))
}

// HistoryAction handles POST /api/rooms/{room}/history/{action} where
// action is undo or redo. Batching is driven by gestures on the websocket
// connection, never by a standalone request.
func (h *Handler) HistoryAction(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := h.session(w, r)
	if !ok {
		return
	}
	switch chi.URLParam(r, "action") {
	case "undo":
		sess.Undo()
	case "redo":
		sess.Redo()
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown history action"))
		return
	}
	writeJSON(w, http.StatusOK, historyResponse(sess.History()))
}

// Export handles GET /api/rooms/{room}/export.pdf.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.PDF(&buf, room.ID(), room.Notes()); err != nil {
		slog.Error("export failed", slog.String("room", room.ID()), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+room.ID()+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func historyResponse(h *board.History) HistoryResponse {
	return HistoryResponse{CanUndo: h.CanUndo(), CanRedo: h.CanRedo(), Paused: h.Paused()}
}

func (h *Handler) room(w http.ResponseWriter, r *http.Request) (*boardservice.Room, bool) {
	id := chi.URLParam(r, "room")
	room, err := h.svc.Room(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidRoom) {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid room id"))
		} else {
			slog.Error("open room failed", slog.String("room", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return nil, false
	}
	return room, true
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*boardservice.Room, *board.Session, bool) {
	room, ok := h.room(w, r)
	if !ok {
		return nil, nil, false
	}
	p, ok := ParticipantFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
		return nil, nil, false
	}
	return room, room.Session(p), true
}

func (h *Handler) note(w http.ResponseWriter, r *http.Request, room *boardservice.Room) (models.Note, bool) {
	n, err := room.GetNote(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("note not found"))
		} else {
			slog.Error("get note failed", slog.String("room", room.ID()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return models.Note{}, false
	}
	return n, true
}
