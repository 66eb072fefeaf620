package boardservice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/maplab/internal/apperr"
	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/models"
	"github.com/starford/maplab/internal/relay"
	"github.com/starford/maplab/internal/snapshot"
	"github.com/starford/maplab/internal/testutil"
)

type recordingPublisher struct {
	mu       sync.Mutex
	versions map[string][]uint64
}

func (p *recordingPublisher) PublishChanges(room string, version uint64, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.versions == nil {
		p.versions = make(map[string][]uint64)
	}
	p.versions[room] = append(p.versions[room], version)
}

func (p *recordingPublisher) get(room string) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.versions[room]...)
}

func alice() models.Participant {
	return models.Participant{Info: models.UserInfo{ID: "alice", Name: "Alice"}}
}

func TestRoomLazyRestore(t *testing.T) {
	_, store := testutil.TestStore(t)
	stored := board.NewNote("n1", 5, 6)
	stored.Text = "from disk"
	data, err := snapshot.Encode([]models.Note{stored})
	require.NoError(t, err)
	require.NoError(t, store.Write("r1", data))

	svc := NewService(store)
	ctx := context.Background()

	r, err := svc.Room(ctx, "r1")
	require.NoError(t, err)
	n, err := r.GetNote("n1")
	require.NoError(t, err)
	assert.Equal(t, "from disk", n.Text)

	again, err := svc.Room(ctx, "r1")
	require.NoError(t, err)
	assert.Same(t, r, again)

	empty, err := svc.Room(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, empty.Notes())
	assert.False(t, empty.Dirty())
}

func TestRoomRejectsInvalidID(t *testing.T) {
	_, store := testutil.TestStore(t)
	svc := NewService(store)
	_, err := svc.Room(context.Background(), "../etc")
	assert.ErrorIs(t, err, apperr.ErrInvalidRoom)
}

func TestGetNoteNotFound(t *testing.T) {
	_, store := testutil.TestStore(t)
	r, err := NewService(store).Room(context.Background(), "r1")
	require.NoError(t, err)
	_, err = r.GetNote("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSessionsArePerUser(t *testing.T) {
	_, store := testutil.TestStore(t)
	r, err := NewService(store).Room(context.Background(), "r1")
	require.NoError(t, err)

	s1 := r.Session(alice())
	ro := alice()
	ro.ReadOnly = true
	s2 := r.Session(ro)
	assert.Same(t, s1, s2)
	assert.True(t, s1.Participant().ReadOnly)

	bob := r.Session(models.Participant{Info: models.UserInfo{ID: "bob"}})
	assert.NotSame(t, s1, bob)
}

func TestChangesArePublishedAndFlushed(t *testing.T) {
	_, store := testutil.TestStore(t)
	pub := &recordingPublisher{}
	svc := NewService(store, WithPublisher(pub))
	ctx := context.Background()

	r, err := svc.Room(ctx, "r1")
	require.NoError(t, err)
	s := r.Session(alice())
	id := s.AddNote()
	s.UpdateNote(id, models.Patch{Text: models.String("saved")})

	assert.Equal(t, []uint64{1, 2}, pub.get("r1"))
	assert.True(t, r.Dirty())

	require.NoError(t, svc.Flush(ctx))
	assert.False(t, r.Dirty())

	data, err := store.Read("r1")
	require.NoError(t, err)
	notes, err := snapshot.Decode(data)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "saved", notes[0].Text)

	rooms, err := svc.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "r1", rooms[0].Room)
	assert.True(t, rooms[0].Loaded)
	assert.Equal(t, 1, rooms[0].Notes)
	assert.NotEmpty(t, rooms[0].Checksum)
}

func TestRunFlusherFlushesOnShutdown(t *testing.T) {
	_, store := testutil.TestStore(t)
	svc := NewService(store)
	ctx, cancel := context.WithCancel(context.Background())

	r, err := svc.Room(ctx, "r1")
	require.NoError(t, err)
	r.Session(alice()).AddNote()

	done := make(chan error, 1)
	go func() { done <- svc.RunFlusher(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("flusher did not stop")
	}
	_, err = store.Read("r1")
	assert.NoError(t, err)
}

func TestRelayBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func(id string) *Service {
		_, store := testutil.TestStore(t)
		client, err := relay.NewClient(&redis.Options{Addr: mr.Addr()}, "test", id)
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		svc := NewService(store)
		go func() { _ = svc.RunRelay(ctx, client) }()
		return svc
	}
	a := newInstance("a")
	b := newInstance("b")

	// Wait until both subscriptions are registered.
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("test:*")) == 1 && mr.PubSubNumSub("test:changes")["test:changes"] == 2
	}, time.Second, 10*time.Millisecond)

	ra, err := a.Room(ctx, "shared")
	require.NoError(t, err)
	id := ra.Session(alice()).AddNote()

	rb, err := b.Room(ctx, "shared")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := rb.GetNote(id)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	// Remote changes mark the room dirty but do not echo back.
	assert.True(t, rb.Dirty())
	assert.Equal(t, 1, ra.Doc().Snapshot().Len())
}

type chanRelay struct {
	sub *relay.Subscription
}

func (r chanRelay) Publish(context.Context, string, uint64, []board.Change) error { return nil }

func (r chanRelay) Subscribe(context.Context) (*relay.Subscription, error) { return r.sub, nil }

func TestRunRelayKeepsApplyingAfterErrorsClose(t *testing.T) {
	_, store := testutil.TestStore(t)
	svc := NewService(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan *relay.Message)
	errs := make(chan error)
	close(errs)
	rl := chanRelay{sub: relay.NewSubscription(events, errs, nil)}

	done := make(chan error, 1)
	go func() { done <- svc.RunRelay(ctx, rl) }()

	note := board.NewNote("remote", 1, 2)
	msg := &relay.Message{
		Origin:  "other",
		Room:    "r1",
		Version: 1,
		Changes: []board.Change{{Kind: board.ChangeInsert, NoteID: note.ID, Note: &note}},
	}
	select {
	case events <- msg:
	case <-time.After(2 * time.Second):
		t.Fatal("relay loop stopped reading events")
	}

	r, err := svc.Room(ctx, "r1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := r.GetNote("remote")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay loop did not stop")
	}
}
