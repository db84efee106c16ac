package collab

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/canvas"
	"github.com/driftboard/driftboard/internal/typeid"
)

type savedBoard struct {
	boardID string
	seq     int64
	entAX   float64
}

type saveRecorder struct {
	mu    sync.Mutex
	saves []savedBoard
}

func (r *saveRecorder) record(boardID string, b *board.Board, seq int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := savedBoard{boardID: boardID, seq: seq}
	if e, ok := b.ByID("ent_a"); ok {
		s.entAX = e.X
	}
	r.saves = append(r.saves, s)
}

func (r *saveRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *saveRecorder) last() savedBoard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[len(r.saves)-1]
}

// collabServer wires a hub to a websocket endpoint the way the server
// binary does, against an in-memory loader.
func collabServer(t *testing.T, rec *saveRecorder) *httptest.Server {
	t.Helper()

	loader := func(ctx context.Context, boardID string) (*board.Board, error) {
		if boardID == "board_missing" {
			return nil, errors.New("no snapshot")
		}
		b := board.New(boardID, "shared")
		if err := b.Add(&board.Entity{ID: "ent_a", Kind: board.KindImage, X: 100, Y: 100, Width: 200, Height: 100}); err != nil {
			return nil, err
		}
		return b, nil
	}
	saver := func(ctx context.Context, boardID string, b *board.Board, seq int64) error {
		rec.record(boardID, b, seq)
		return nil
	}

	hub := NewHub(loader, saver)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		client := NewClient(hub, conn, q.Get("user"), q.Get("name"), q.Get("board"), typeid.New("client"))
		hub.Register(client)
		go client.WritePump(r.Context())
		client.ReadPump(r.Context())
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func wsURL(srv *httptest.Server, boardID, user, name string) string {
	return strings.Replace(srv.URL, "http", "ws", 1) + "/?board=" + boardID + "&user=" + user + "&name=" + name
}

func dialAndSync(t *testing.T, srv *httptest.Server, boardID, user, name string) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Dial(ctx, wsURL(srv, boardID, user, name), boardID)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	_, _, err = s.AwaitBoard(ctx)
	require.NoError(t, err)
	return s
}

func liveMoveOp(toX float64) *canvas.Command {
	op := moveOp("ent_a", toX)
	op.BoardID = "board_live"
	return op
}

func TestSessionSyncSubmitAck(t *testing.T) {
	srv := collabServer(t, &saveRecorder{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Dial(ctx, wsURL(srv, "board_live", "user_a", "Ada"), "board_live")
	require.NoError(t, err)
	defer s.Close()

	b, seq, err := s.AwaitBoard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
	e, ok := b.ByID("ent_a")
	require.True(t, ok)
	assert.Equal(t, 100.0, e.X)
	assert.NotEmpty(t, s.ClientID())
	assert.Equal(t, "user_a", s.UserID())

	op := liveMoveOp(400)
	select {
	case res := <-s.Submit(op):
		assert.True(t, res.Confirmed)
		assert.Equal(t, op.ID, res.CommandID)
		assert.Equal(t, int64(1), res.ServerSeq)
	case <-time.After(3 * time.Second):
		t.Fatal("no ack received")
	}
}

func TestSessionNackOnRejectedOp(t *testing.T) {
	srv := collabServer(t, &saveRecorder{})
	s := dialAndSync(t, srv, "board_live", "user_a", "Ada")

	op := moveOp("ent_ghost", 400)
	op.BoardID = "board_live"
	select {
	case res := <-s.Submit(op):
		assert.False(t, res.Confirmed)
		assert.NotEmpty(t, res.Reason)
	case <-time.After(3 * time.Second):
		t.Fatal("no nack received")
	}
}

func TestBroadcastReachesOtherClients(t *testing.T) {
	srv := collabServer(t, &saveRecorder{})
	watcher := dialAndSync(t, srv, "board_live", "user_b", "Bea")
	actor := dialAndSync(t, srv, "board_live", "user_a", "Ada")

	op := liveMoveOp(250)
	select {
	case res := <-actor.Submit(op):
		require.True(t, res.Confirmed)
	case <-time.After(3 * time.Second):
		t.Fatal("no ack received")
	}

	select {
	case remote := <-watcher.RemoteOps():
		assert.Equal(t, op.ID, remote.ID)
		require.Len(t, remote.Changes, 1)
		assert.Equal(t, 250.0, remote.Changes[0].After.X)
	case <-time.After(3 * time.Second):
		t.Fatal("no broadcast received")
	}

	// The sender never hears its own op back.
	select {
	case cmd := <-actor.RemoteOps():
		t.Fatalf("unexpected echo of op %s", cmd.ID)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDraftConfirmedWithCanonicalIDs(t *testing.T) {
	srv := collabServer(t, &saveRecorder{})
	watcher := dialAndSync(t, srv, "board_live", "user_b", "Bea")
	actor := dialAndSync(t, srv, "board_live", "user_a", "Ada")

	draftID := typeid.NewDraftID()
	op := &canvas.Command{
		ID:      typeid.NewOpID(),
		Kind:    canvas.CmdCreate,
		BoardID: "board_live",
		Created: []canvas.EntitySnapshot{{
			Entity: &board.Entity{ID: draftID, Kind: board.KindText, X: 0, Y: 0, Width: 120, Height: 80, Draft: true},
			ZIndex: 1,
		}},
	}

	var canonical string
	select {
	case res := <-actor.Submit(op):
		require.True(t, res.Confirmed)
		canonical = res.IDMap[draftID]
		require.NotEmpty(t, canonical)
		assert.True(t, strings.HasPrefix(canonical, "ent_"))
	case <-time.After(3 * time.Second):
		t.Fatal("no ack received")
	}

	// Other clients only ever see the canonical id.
	select {
	case remote := <-watcher.RemoteOps():
		require.Len(t, remote.Created, 1)
		assert.Equal(t, canonical, remote.Created[0].Entity.ID)
		assert.False(t, remote.Created[0].Entity.Draft)
	case <-time.After(3 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestPresenceReachesOtherClients(t *testing.T) {
	srv := collabServer(t, &saveRecorder{})
	watcher := dialAndSync(t, srv, "board_live", "user_b", "Bea")
	actor := dialAndSync(t, srv, "board_live", "user_a", "Ada")

	actor.PublishPresence(&CursorPos{X: 5, Y: 7}, []string{"ent_a"})

	for {
		select {
		case ev := <-watcher.Presence():
			if ev.UserID != "user_a" || ev.Payload == nil {
				continue
			}
			require.NotNil(t, ev.Payload.Cursor)
			assert.Equal(t, 5.0, ev.Payload.Cursor.X)
			assert.Equal(t, 7.0, ev.Payload.Cursor.Y)
			assert.Equal(t, []string{"ent_a"}, ev.Payload.Selection)
			assert.Equal(t, "Ada", ev.Payload.DisplayName)
			return
		case <-time.After(3 * time.Second):
			t.Fatal("no presence update received")
		}
	}
}

func TestSnapshotSavedOnLastLeave(t *testing.T) {
	rec := &saveRecorder{}
	srv := collabServer(t, rec)
	s := dialAndSync(t, srv, "board_live", "user_a", "Ada")

	op := liveMoveOp(333)
	select {
	case res := <-s.Submit(op):
		require.True(t, res.Confirmed)
	case <-time.After(3 * time.Second):
		t.Fatal("no ack received")
	}

	s.Close()

	require.Eventually(t, func() bool { return rec.count() > 0 }, 2*time.Second, 20*time.Millisecond)
	saved := rec.last()
	assert.Equal(t, "board_live", saved.boardID)
	assert.Equal(t, int64(1), saved.seq)
	assert.Equal(t, 333.0, saved.entAX)
}

func TestDialUnloadableBoard(t *testing.T) {
	srv := collabServer(t, &saveRecorder{})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	s, err := Dial(ctx, wsURL(srv, "board_missing", "user_a", "Ada"), "board_missing")
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.AwaitBoard(ctx)
	require.Error(t, err)
}
