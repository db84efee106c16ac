package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/canvas"
)

// Session is the client half of the sync protocol: it dials the hub, waits
// for the board, and then acts as the editor's authority, turning submitted
// commands into op.submit frames and acks into results. Broadcast ops,
// resyncs, and presence buffer on the event channels from the moment the
// connection opens, so nothing is lost while the host builds its editor.
//
// Submit and PublishPresence are called from the engine thread; the read
// and write loops run on their own goroutines.
type Session struct {
	conn *websocket.Conn

	boardID  string
	clientID string
	userID   string

	outgoing chan []byte
	syncCh   chan BoardSyncPayload
	done     chan struct{}

	remoteOps chan *canvas.Command
	resyncs   chan ResyncEvent
	presence  chan PresenceEvent

	mu      sync.Mutex
	futures map[string]chan canvas.Result
	closed  bool
	synced  bool
	lastSeq int64
}

// ResyncEvent is a full board snapshot sent after the initial sync.
type ResyncEvent struct {
	Board     *board.Board
	ServerSeq int64
}

// PresenceEvent is one user's presence update. Payload is nil when the
// user left the room.
type PresenceEvent struct {
	UserID  string
	Payload *PresencePayload
}

// Dial connects to the hub and starts the session loops. The caller should
// AwaitBoard before editing.
func Dial(ctx context.Context, url, boardID string) (*Session, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMsgSize)

	s := &Session{
		conn:      conn,
		boardID:   boardID,
		outgoing:  make(chan []byte, 256),
		syncCh:    make(chan BoardSyncPayload, 1),
		done:      make(chan struct{}),
		remoteOps: make(chan *canvas.Command, 256),
		resyncs:   make(chan ResyncEvent, 1),
		presence:  make(chan PresenceEvent, 64),
		futures:   make(map[string]chan canvas.Result),
	}
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

// RemoteOps delivers confirmed commands from other clients, in server
// order. Drain it into Pipeline.EnqueueRemote. Closed when the session
// ends.
func (s *Session) RemoteOps() <-chan *canvas.Command { return s.remoteOps }

// Resyncs delivers full board snapshots sent after the initial sync, most
// recent only. Closed when the session ends.
func (s *Session) Resyncs() <-chan ResyncEvent { return s.resyncs }

// Presence delivers remote presence updates. Closed when the session ends.
func (s *Session) Presence() <-chan PresenceEvent { return s.presence }

// AwaitBoard blocks until the initial board.sync arrives and returns the
// decoded board.
func (s *Session) AwaitBoard(ctx context.Context) (*board.Board, int64, error) {
	select {
	case payload := <-s.syncCh:
		var b board.Board
		if err := json.Unmarshal(payload.Board, &b); err != nil {
			return nil, 0, fmt.Errorf("decode board: %w", err)
		}
		return &b, payload.ServerSeq, nil
	case <-s.done:
		return nil, 0, fmt.Errorf("connection closed before sync")
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// ClientID returns the id the hub assigned, empty before the welcome frame.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// UserID returns the authenticated user id, empty before the welcome frame.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Submit implements canvas.Authority. The result channel resolves exactly
// once, with a rejection if the session dies first.
func (s *Session) Submit(cmd *canvas.Command) <-chan canvas.Result {
	future := make(chan canvas.Result, 1)

	payload, err := json.Marshal(OpSubmitPayload{Op: *cmd})
	if err != nil {
		future <- canvas.Result{CommandID: cmd.ID, Reason: "encode failed"}
		return future
	}
	data, _ := json.Marshal(Message{Type: TypeOpSubmit, BoardID: s.boardID, Payload: payload})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		future <- canvas.Result{CommandID: cmd.ID, Reason: "disconnected"}
		return future
	}
	s.futures[cmd.ID] = future
	s.mu.Unlock()

	if !s.enqueue(data) {
		s.resolve(cmd.ID, canvas.Result{CommandID: cmd.ID, Reason: "send queue full"})
	}
	return future
}

// PublishPresence shares the local cursor and selection with the room.
// Dropped silently under backpressure; the next update supersedes it anyway.
func (s *Session) PublishPresence(cursor *CursorPos, selection []string) {
	payload, _ := json.Marshal(PresencePayload{Cursor: cursor, Selection: selection})
	data, _ := json.Marshal(Message{Type: TypePresenceUpdate, BoardID: s.boardID, Payload: payload})
	s.enqueue(data)
}

// Close tears the connection down and rejects every outstanding future.
func (s *Session) Close() {
	s.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Session) enqueue(data []byte) bool {
	select {
	case s.outgoing <- data:
		return true
	case <-s.done:
		return false
	default:
		slog.Warn("session send queue full, dropping frame")
		return false
	}
}

func (s *Session) readLoop() {
	defer s.shutdown()

	ctx := context.Background()
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				slog.Debug("session read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("session received invalid message", "error", err)
			continue
		}
		s.dispatch(&msg)
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case data := <-s.outgoing:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := s.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("session write error", "error", err)
				s.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) dispatch(msg *Message) {
	switch msg.Type {
	case TypeWelcome:
		var payload WelcomePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		s.mu.Lock()
		s.clientID = payload.ClientID
		s.userID = payload.UserID
		s.mu.Unlock()

	case TypeBoardSync:
		var payload BoardSyncPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			slog.Warn("invalid board sync", "error", err)
			return
		}
		s.mu.Lock()
		first := !s.synced
		s.synced = true
		s.lastSeq = payload.ServerSeq
		s.mu.Unlock()
		if first {
			s.syncCh <- payload
			return
		}
		var b board.Board
		if err := json.Unmarshal(payload.Board, &b); err != nil {
			slog.Warn("invalid resync board", "error", err)
			return
		}
		// Keep only the newest snapshot; a stale one is useless.
		select {
		case <-s.resyncs:
		default:
		}
		s.resyncs <- ResyncEvent{Board: &b, ServerSeq: payload.ServerSeq}

	case TypeOpAck:
		var payload OpAckPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		s.trackSeq(payload.ServerSeq)
		s.resolve(payload.OpID, canvas.Result{
			CommandID: payload.OpID,
			Confirmed: true,
			ServerSeq: payload.ServerSeq,
			IDMap:     payload.IDMap,
		})

	case TypeOpNack:
		var payload OpNackPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		s.resolve(payload.OpID, canvas.Result{CommandID: payload.OpID, Reason: payload.Reason})

	case TypeOpBroadcast:
		var payload OpBroadcastPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			slog.Warn("invalid op broadcast", "error", err)
			return
		}
		s.trackSeq(payload.ServerSeq)
		op := payload.Op
		select {
		case s.remoteOps <- &op:
		default:
			slog.Warn("remote op buffer full, dropping op", "op", op.ID)
		}

	case TypePresenceUpdate:
		var payload PresencePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		s.pushPresence(PresenceEvent{UserID: msg.UserID, Payload: &payload})

	case TypePresenceState:
		var payload PresenceStatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		for userID, p := range payload.Presences {
			s.pushPresence(PresenceEvent{UserID: userID, Payload: p})
		}

	case TypePresenceLeave:
		var payload PresenceLeavePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		s.pushPresence(PresenceEvent{UserID: payload.UserID})

	case TypePresenceJoin:
		// Joins surface through the first presence update.

	case TypeError:
		var payload ErrorPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		slog.Error("server error", "code", payload.Code, "message", payload.Message)

	default:
		slog.Debug("unhandled message type", "type", msg.Type)
	}
}

// pushPresence drops the event when the buffer is full; presence is
// display state and the next update supersedes it.
func (s *Session) pushPresence(ev PresenceEvent) {
	select {
	case s.presence <- ev:
	default:
	}
}

func (s *Session) trackSeq(seq int64) {
	s.mu.Lock()
	if seq > s.lastSeq {
		s.lastSeq = seq
	}
	s.mu.Unlock()
}

func (s *Session) resolve(opID string, res canvas.Result) {
	s.mu.Lock()
	future, ok := s.futures[opID]
	if ok {
		delete(s.futures, opID)
	}
	s.mu.Unlock()
	if ok {
		future <- res
	}
}

// shutdown closes the session and rejects every future still waiting, so
// the pipeline rolls its optimistic state back instead of hanging. Runs
// after the read loop exits, which makes closing the event channels safe.
func (s *Session) shutdown() {
	close(s.done)

	s.mu.Lock()
	s.closed = true
	futures := s.futures
	s.futures = make(map[string]chan canvas.Result)
	s.mu.Unlock()

	for opID, future := range futures {
		future <- canvas.Result{CommandID: opID, Reason: "disconnected"}
	}

	close(s.remoteOps)
	close(s.resyncs)
	close(s.presence)
}
