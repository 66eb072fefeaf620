package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/maplab/internal/boardservice"
	"github.com/starford/maplab/internal/models"
)

// EventStreamer streams server-sent events for one room.
type EventStreamer interface {
	ServeRoom(w http.ResponseWriter, r *http.Request, room string)
}

// GestureServer runs a websocket gesture connection for one participant.
type GestureServer interface {
	Serve(w http.ResponseWriter, r *http.Request, room *boardservice.Room, p models.Participant)
}

// NewRouter creates a chi router with all API routes mounted.
// jwtEnabled controls whether participants must present a signed token.
// events and gestures, if non-nil, are mounted at /rooms/{room}/events and
// /rooms/{room}/ws inside the same participant middleware.
func NewRouter(svc *boardservice.Service, jwtEnabled bool, secret string, events EventStreamer, gestures GestureServer) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(ParticipantMiddleware(jwtEnabled, secret))

	r.Get("/fonts", h.ListFonts)
	r.Get("/rooms", h.ListRooms)

	r.Route("/rooms/{room}", func(r chi.Router) {
		r.Get("/notes", h.ListNotes)
		r.Post("/notes", h.CreateNote)
		r.Get("/notes/{id}", h.GetNote)
		r.Patch("/notes/{id}", h.UpdateNote)
		r.Delete("/notes/{id}", h.DeleteNote)
		r.Post("/notes/{id}/select", h.SelectNote)
		r.Post("/selection/clear", h.ClearSelection)

		r.Get("/view", h.View)
		r.Get("/history", h.History)
		r.Post("/history/{action}", h.HistoryAction)
		r.Get("/export.pdf", h.Export)

		if events != nil {
			r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
				room, ok := h.room(w, r)
				if !ok {
					return
				}
				events.ServeRoom(w, r, room.ID())
			})
		}
		if gestures != nil {
			r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
				room, ok := h.room(w, r)
				if !ok {
					return
				}
				p, _ := ParticipantFrom(r.Context())
				gestures.Serve(w, r, room, p)
			})
		}
	})

	return r
}
