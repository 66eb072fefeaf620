// Package boardservice hosts the live board rooms of a maplab instance: it
// restores rooms from storage, hands out per-participant sessions, fans
// committed changes out to SSE subscribers and the relay, and flushes dirty
// rooms back to storage.
package boardservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/maplab/internal/apperr"
	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/models"
	"github.com/starford/maplab/internal/relay"
	"github.com/starford/maplab/internal/snapshot"
	"github.com/starford/maplab/internal/storage"
)

// Publisher receives every committed change set of every room.
type Publisher interface {
	PublishChanges(room string, version uint64, changes any)
}

// Relay carries change sets between instances.
type Relay interface {
	Publish(ctx context.Context, room string, version uint64, changes []board.Change) error
	Subscribe(ctx context.Context) (*relay.Subscription, error)
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the local fan-out target, usually the SSE broker.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDocOptions passes options to every room document.
func WithDocOptions(opts ...board.DocOption) Option {
	return func(s *Service) { s.docOpts = append(s.docOpts, opts...) }
}

// RoomInfo describes a live or stored room.
type RoomInfo struct {
	Room      string    `json:"room"`
	Notes     int       `json:"notes"`
	Loaded    bool      `json:"loaded"`
	Checksum  string    `json:"checksum,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Service is the room registry.
type Service struct {
	store     storage.Provider
	publisher Publisher
	logger    *slog.Logger
	docOpts   []board.DocOption
	outbox    chan relay.Message

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewService creates a room registry backed by store.
func NewService(store storage.Provider, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		outbox: make(chan relay.Message, 256),
		rooms:  make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Room returns the live room with the given id, restoring it from storage
// on first use. A room that was never stored starts empty.
func (s *Service) Room(_ context.Context, id string) (*Room, error) {
	if !models.ValidRoomID(id) {
		return nil, fmt.Errorf("boardservice: %q: %w", id, apperr.ErrInvalidRoom)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		return r, nil
	}

	var notes []models.Note
	data, err := s.store.Read(id)
	switch {
	case errors.Is(err, apperr.ErrRoomNotFound):
	case err != nil:
		return nil, fmt.Errorf("boardservice: restore %s: %w", id, err)
	default:
		notes, err = snapshot.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("boardservice: restore %s: %w", id, err)
		}
	}

	opts := append(slices.Clone(s.docOpts), board.WithNotes(notes))
	r := &Room{
		id:       id,
		doc:      board.NewDoc(opts...),
		sessions: make(map[string]*board.Session),
	}
	r.doc.Subscribe(func(ev board.Event) { s.onEvent(r, ev) })
	s.rooms[id] = r

	s.logger.Info("room loaded", slog.String("room", id), slog.Int("notes", len(notes)))
	return r, nil
}

// Rooms lists stored and live rooms, ordered by id.
func (s *Service) Rooms(_ context.Context) ([]RoomInfo, error) {
	metas, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("boardservice: list rooms: %w", err)
	}
	byID := make(map[string]RoomInfo, len(metas))
	for _, m := range metas {
		byID[m.Room] = RoomInfo{Room: m.Room, Checksum: m.Checksum, UpdatedAt: m.UpdatedAt}
	}

	s.mu.Lock()
	for id, r := range s.rooms {
		info := byID[id]
		info.Room = id
		info.Loaded = true
		info.Notes = r.doc.Snapshot().Len()
		byID[id] = info
	}
	s.mu.Unlock()

	out := make([]RoomInfo, 0, len(byID))
	for _, info := range byID {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return strings.Compare(a.Room, b.Room) })
	return out, nil
}

func (s *Service) onEvent(r *Room, ev board.Event) {
	r.dirty.Store(true)
	if s.publisher != nil {
		s.publisher.PublishChanges(r.id, ev.Version, ev.Changes)
	}
	if ev.Origin != "" {
		return
	}
	select {
	case s.outbox <- relay.Message{Room: r.id, Version: ev.Version, Changes: ev.Changes}:
	default:
		s.logger.Warn("relay outbox full, dropping changes", slog.String("room", r.id))
	}
}

// Flush writes every dirty room to storage.
func (s *Service) Flush(_ context.Context) error {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	var errs []error
	for _, r := range rooms {
		if !r.dirty.Swap(false) {
			continue
		}
		snap := r.doc.Snapshot()
		data, err := snapshot.Encode(snap.Notes())
		if err == nil {
			err = s.store.Write(r.id, data)
		}
		if err != nil {
			r.dirty.Store(true)
			errs = append(errs, fmt.Errorf("boardservice: flush %s: %w", r.id, err))
			continue
		}
		s.logger.Debug("room flushed", slog.String("room", r.id), slog.Uint64("version", snap.Version()))
	}
	return errors.Join(errs...)
}

// RunFlusher flushes dirty rooms every interval until ctx is cancelled, then
// flushes once more.
func (s *Service) RunFlusher(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("snapshot flush failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Error("final snapshot flush failed", slog.String("error", err.Error()))
				return err
			}
			return nil
		}
	}
}

// ApplyRemote applies a change set received from another instance.
func (s *Service) ApplyRemote(ctx context.Context, m *relay.Message) error {
	r, err := s.Room(ctx, m.Room)
	if err != nil {
		return err
	}
	r.doc.ApplyRemote(m.Origin, m.Changes)
	return nil
}

// RunRelay publishes local change sets to rl and applies remote ones until
// ctx is cancelled.
func (s *Service) RunRelay(ctx context.Context, rl Relay) error {
	sub, err := rl.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	errs := sub.Errors()
	s.logger.Info("relay: started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("relay: stopped")
			return nil
		case m := <-s.outbox:
			if err := rl.Publish(ctx, m.Room, m.Version, m.Changes); err != nil {
				s.logger.Warn("relay publish failed", slog.String("room", m.Room), slog.String("error", err.Error()))
			}
		case m, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := s.ApplyRemote(ctx, m); err != nil {
				s.logger.Warn("relay apply failed", slog.String("room", m.Room), slog.String("error", err.Error()))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("relay message skipped", slog.String("error", err.Error()))
		}
	}
}

// Room is one live board document and the sessions acting on it.
type Room struct {
	id    string
	doc   *board.Doc
	dirty atomic.Bool

	mu       sync.Mutex
	sessions map[string]*board.Session
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Doc returns the shared document.
func (r *Room) Doc() *board.Doc { return r.doc }

// Dirty reports whether the room changed since it was last flushed.
func (r *Room) Dirty() bool { return r.dirty.Load() }

// Session returns the session of participant p, creating it on first use.
// Sessions are keyed by user id, so every connection of one user shares one
// undo history. The stored participant is refreshed from p.
func (r *Room) Session(p models.Participant) *board.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[p.Info.ID]; ok {
		s.SetParticipant(p)
		return s
	}
	s := board.NewSession(r.doc, p)
	r.sessions[p.Info.ID] = s
	return s
}

// Notes returns all notes in insertion order.
func (r *Room) Notes() []models.Note {
	return r.doc.Snapshot().Notes()
}

// GetNote returns the note with the given id.
func (r *Room) GetNote(id string) (models.Note, error) {
	n, ok := board.GetNote(r.doc.Snapshot(), id)
	if !ok {
		return models.Note{}, fmt.Errorf("boardservice: note %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}
