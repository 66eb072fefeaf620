package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/maplab/internal/boardservice"
	"github.com/starford/maplab/internal/models"
	"github.com/starford/maplab/internal/testutil"
)

const testSecret = "test-secret"

// testEnv sets up a temp snapshot store, room service and router.
// An empty secret means disabled auth mode.
func testEnv(t *testing.T, secret string) (*boardservice.Service, http.Handler) {
	t.Helper()
	_, store := testutil.TestStore(t)
	svc := boardservice.NewService(store)
	return svc, NewRouter(svc, secret != "", secret, nil, nil)
}

func do(t *testing.T, h http.Handler, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func as(id string) http.Header {
	h := http.Header{}
	h.Set(HeaderParticipantID, id)
	h.Set(HeaderParticipantName, strings.ToUpper(id))
	return h
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createNote(t *testing.T, h http.Handler, room string, body any) models.Note {
	t.Helper()
	w := do(t, h, http.MethodPost, "/rooms/"+room+"/notes", body, as("alice"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[models.Note](t, w)
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	n := createNote(t, router, "demo", map[string]any{"text": "hello", "fillColor": "#ffeeaa"})
	if n.ID == "" || n.Text != "hello" || n.FillColor != "#ffeeaa" {
		t.Fatalf("created note = %+v", n)
	}
	if n.Width != models.DefaultWidth || n.Height != models.DefaultHeight {
		t.Errorf("size = %vx%v, want defaults", n.Width, n.Height)
	}

	w := do(t, router, http.MethodGet, "/rooms/demo/notes/"+n.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[models.Note](t, w)
	if got.Text != "hello" {
		t.Errorf("text = %q, want hello", got.Text)
	}
}

func TestCreateNoteEmptyBody(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "demo", nil)
	if n.Text != "" || n.FillColor != models.DefaultFillColor {
		t.Errorf("note = %+v, want defaults", n)
	}
}

func TestCreateNoteReadOnly(t *testing.T) {
	svc, router := testEnv(t, "")
	h := as("viewer")
	h.Set(HeaderParticipantReadOnly, "true")

	w := do(t, router, http.MethodPost, "/rooms/demo/notes", nil, h)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	room, err := svc.Room(t.Context(), "demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(room.Notes()) != 0 {
		t.Error("read-only participant created a note")
	}
}

func TestGetNoteNotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/rooms/demo/notes/missing", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestInvalidRoom(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/rooms/-bad!/notes", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListNotesETag(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "demo", nil)

	w := do(t, router, http.MethodGet, "/rooms/demo/notes", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[NoteListResponse](t, w)
	if len(list.Notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(list.Notes))
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	h := http.Header{}
	h.Set("If-None-Match", etag)
	w = do(t, router, http.MethodGet, "/rooms/demo/notes", nil, h)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d, want 304", w.Code)
	}

	createNote(t, router, "demo", nil)
	w = do(t, router, http.MethodGet, "/rooms/demo/notes", nil, h)
	if w.Code != http.StatusOK {
		t.Fatalf("status after change = %d, want 200", w.Code)
	}
}

func TestListNotesEmptyRoom(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/rooms/fresh/notes", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"notes":[]`) {
		t.Errorf("body = %s, want empty notes array", w.Body.String())
	}
}

func TestUpdateNote(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "demo", nil)

	w := do(t, router, http.MethodPatch, "/rooms/demo/notes/"+n.ID,
		map[string]any{"x": 42, "width": 10, "fillOpacity": 3}, as("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[models.Note](t, w)
	if got.X != 42 {
		t.Errorf("x = %v, want 42", got.X)
	}
	if got.Width != models.MinWidth {
		t.Errorf("width = %v, want clamped to %v", got.Width, models.MinWidth)
	}
	if got.FillOpacity != 1 {
		t.Errorf("fillOpacity = %v, want clamped to 1", got.FillOpacity)
	}
	if got.Y != n.Y {
		t.Errorf("y changed: %v -> %v", n.Y, got.Y)
	}
}

func TestUpdateNoteValidation(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "demo", nil)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"bad color", map[string]any{"fillColor": "blue"}, http.StatusUnprocessableEntity},
		{"unknown font", map[string]any{"fontClassName": "font-nope"}, http.StatusUnprocessableEntity},
		{"malformed", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPatch, "/rooms/demo/notes/"+n.ID, tt.body, nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := do(t, router, http.MethodPatch, "/rooms/demo/notes/missing", map[string]any{"x": 1}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing note status = %d, want 404", w.Code)
	}
}

func TestUpdateNoteIgnoresSelection(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "demo", nil)

	w := do(t, router, http.MethodPatch, "/rooms/demo/notes/"+n.ID,
		`{"selectedBy":{"id":"mallory","name":"M"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[models.Note](t, w); got.SelectedBy != nil {
		t.Errorf("selectedBy = %+v, want nil", got.SelectedBy)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "demo", nil)

	w := do(t, router, http.MethodDelete, "/rooms/demo/notes/"+n.ID, nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/rooms/demo/notes/"+n.ID, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/rooms/demo/notes/"+n.ID, nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("second delete status = %d, want 204", w.Code)
	}
}

func TestSelectionAndView(t *testing.T) {
	_, router := testEnv(t, "")
	a := createNote(t, router, "demo", nil)
	b := createNote(t, router, "demo", nil)

	w := do(t, router, http.MethodPost, "/rooms/demo/notes/"+a.ID+"/select", nil, as("bob"))
	if w.Code != http.StatusOK {
		t.Fatalf("select status = %d", w.Code)
	}
	got := decode[models.Note](t, w)
	if got.SelectedBy == nil || got.SelectedBy.ID != "bob" || got.SelectedBy.Name != "BOB" {
		t.Fatalf("selectedBy = %+v, want bob", got.SelectedBy)
	}

	do(t, router, http.MethodPost, "/rooms/demo/notes/"+b.ID+"/select", nil, as("bob"))

	w = do(t, router, http.MethodGet, "/rooms/demo/view", nil, as("bob"))
	view := decode[ViewResponse](t, w)
	if len(view.NoteIDs) != 2 || view.NoteIDs[0] != a.ID || view.NoteIDs[1] != b.ID {
		t.Errorf("noteIds = %v, want [%s %s]", view.NoteIDs, a.ID, b.ID)
	}
	if view.Toolbar.NoteID != b.ID {
		t.Errorf("toolbar note = %q, want %q", view.Toolbar.NoteID, b.ID)
	}

	w = do(t, router, http.MethodGet, "/rooms/demo/notes/"+a.ID, nil, nil)
	if decode[models.Note](t, w).SelectedBy != nil {
		t.Error("selecting another note left the first one selected")
	}

	w = do(t, router, http.MethodGet, "/rooms/demo/view", nil, as("carol"))
	if decode[ViewResponse](t, w).Toolbar.NoteID != "" {
		t.Error("carol sees bob's selection in her toolbar")
	}

	w = do(t, router, http.MethodPost, "/rooms/demo/selection/clear", nil, as("bob"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/rooms/demo/view", nil, as("bob"))
	if decode[ViewResponse](t, w).Toolbar.NoteID != "" {
		t.Error("selection not cleared")
	}
}

func TestHistoryUndoRedo(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "demo", nil)

	w := do(t, router, http.MethodGet, "/rooms/demo/history", nil, as("alice"))
	if hist := decode[HistoryResponse](t, w); !hist.CanUndo || hist.CanRedo {
		t.Fatalf("history = %+v, want undo only", hist)
	}

	w = do(t, router, http.MethodPost, "/rooms/demo/history/undo", nil, as("alice"))
	if w.Code != http.StatusOK {
		t.Fatalf("undo status = %d", w.Code)
	}
	if hist := decode[HistoryResponse](t, w); hist.CanUndo || !hist.CanRedo {
		t.Fatalf("history after undo = %+v", hist)
	}
	w = do(t, router, http.MethodGet, "/rooms/demo/notes", nil, nil)
	if n := len(decode[NoteListResponse](t, w).Notes); n != 0 {
		t.Fatalf("notes after undo = %d, want 0", n)
	}

	do(t, router, http.MethodPost, "/rooms/demo/history/redo", nil, as("alice"))
	w = do(t, router, http.MethodGet, "/rooms/demo/notes", nil, nil)
	if n := len(decode[NoteListResponse](t, w).Notes); n != 1 {
		t.Fatalf("notes after redo = %d, want 1", n)
	}

	// Another participant has their own, empty history.
	w = do(t, router, http.MethodGet, "/rooms/demo/history", nil, as("bob"))
	if hist := decode[HistoryResponse](t, w); hist.CanUndo {
		t.Error("bob can undo alice's change")
	}
}

func TestHistoryReadOnlyCannotUndo(t *testing.T) {
	svc, router := testEnv(t, "")
	createNote(t, router, "demo", nil)

	viewer := as("alice")
	viewer.Set(HeaderParticipantReadOnly, "true")
	for _, action := range []string{"undo", "redo"} {
		w := do(t, router, http.MethodPost, "/rooms/demo/history/"+action, nil, viewer)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", action, w.Code)
		}
	}

	room, err := svc.Room(t.Context(), "demo")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(room.Notes()); n != 1 {
		t.Fatalf("notes after read-only undo = %d, want 1", n)
	}
	w := do(t, router, http.MethodGet, "/rooms/demo/history", nil, as("alice"))
	if hist := decode[HistoryResponse](t, w); !hist.CanUndo || hist.CanRedo {
		t.Errorf("history = %+v, want alice's entry untouched", hist)
	}
}

func TestHistoryUnknownAction(t *testing.T) {
	_, router := testEnv(t, "")
	for _, action := range []string{"rewind", "pause", "resume"} {
		w := do(t, router, http.MethodPost, "/rooms/demo/history/"+action, nil, as("alice"))
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", action, w.Code)
		}
	}
	w := do(t, router, http.MethodGet, "/rooms/demo/history", nil, as("alice"))
	if decode[HistoryResponse](t, w).Paused {
		t.Error("history paused by a request")
	}
}

func TestListFontsAndRooms(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/fonts", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "font-ibm-plex-sans") {
		t.Fatalf("fonts = %d %s", w.Code, w.Body.String())
	}

	createNote(t, router, "alpha", nil)
	w = do(t, router, http.MethodGet, "/rooms", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"room":"alpha"`) {
		t.Fatalf("rooms = %d %s", w.Code, w.Body.String())
	}
}

func TestExportPDF(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "demo", map[string]any{"text": "ship it"})

	w := do(t, router, http.MethodGet, "/rooms/demo/export.pdf", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func validClaims(sub string) Claims {
	return Claims{
		Name: "Dana",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestJWTAuth(t *testing.T) {
	_, router := testEnv(t, testSecret)

	w := do(t, router, http.MethodGet, "/fonts", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}

	bad := http.Header{}
	bad.Set("Authorization", "Bearer "+signToken(t, "other-secret", validClaims("dana")))
	if w := do(t, router, http.MethodGet, "/fonts", nil, bad); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret status = %d, want 401", w.Code)
	}

	expired := validClaims("dana")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	old := http.Header{}
	old.Set("Authorization", "Bearer "+signToken(t, testSecret, expired))
	if w := do(t, router, http.MethodGet, "/fonts", nil, old); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d, want 401", w.Code)
	}

	good := http.Header{}
	good.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims("dana")))
	w = do(t, router, http.MethodPost, "/rooms/demo/notes", nil, good)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	n := decode[models.Note](t, w)

	w = do(t, router, http.MethodPost, "/rooms/demo/notes/"+n.ID+"/select", nil, good)
	sel := decode[models.Note](t, w).SelectedBy
	if sel == nil || sel.ID != "dana" || sel.Name != "Dana" {
		t.Fatalf("selectedBy = %+v, want dana", sel)
	}

	// EventSource and WebSocket clients pass the token as a query parameter.
	tok := signToken(t, testSecret, validClaims("dana"))
	if w := do(t, router, http.MethodGet, "/fonts?access_token="+tok, nil, nil); w.Code != http.StatusOK {
		t.Fatalf("query token status = %d, want 200", w.Code)
	}
}

func TestJWTReadOnlyClaim(t *testing.T) {
	_, router := testEnv(t, testSecret)
	claims := validClaims("guest")
	claims.ReadOnly = true
	h := http.Header{}
	h.Set("Authorization", "Bearer "+signToken(t, testSecret, claims))

	w := do(t, router, http.MethodPost, "/rooms/demo/notes", nil, h)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestDisabledModeDefaultsToAnonymous(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "demo", nil)
	w := do(t, router, http.MethodPost, "/rooms/demo/notes/"+n.ID+"/select", nil, nil)
	sel := decode[models.Note](t, w).SelectedBy
	if sel == nil || sel.ID != AnonymousID {
		t.Fatalf("selectedBy = %+v, want %s", sel, AnonymousID)
	}
}
