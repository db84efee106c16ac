package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/driftboard/driftboard/internal/board"
)

// BoardLoader fetches a board when the first client of a room arrives.
type BoardLoader func(ctx context.Context, boardID string) (*board.Board, error)

// BoardSaver persists a board snapshot when the last client leaves and on
// shutdown.
type BoardSaver func(ctx context.Context, boardID string, b *board.Board, serverSeq int64) error

type Room struct {
	boardID  string
	state    *BoardState
	clients  map[string]*Client // clientID -> client
	presence *PresenceManager
}

func NewRoom(boardID string, state *BoardState) *Room {
	return &Room{
		boardID:  boardID,
		state:    state,
		clients:  make(map[string]*Client),
		presence: NewPresenceManager(),
	}
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // boardID -> room
	register   chan *Client
	unregister chan *Client
	loader     BoardLoader
	saver      BoardSaver
}

func NewHub(loader BoardLoader, saver BoardSaver) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		loader:     loader,
		saver:      saver,
	}
}

// Run drives registration until the context ends, then snapshots every open
// room.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.addClient(ctx, client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			h.saveAll()
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Stop snapshots every open room. Safe to call alongside Run's own
// shutdown save; whichever runs first drains the room map.
func (h *Hub) Stop() {
	h.saveAll()
}

func (h *Hub) addClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.BoardID]
	if !ok {
		loadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		b, err := h.loader(loadCtx, client.BoardID)
		cancel()
		if err != nil {
			h.mu.Unlock()
			slog.Error("board load failed", "board", client.BoardID, "error", err)
			client.SendError("board_unavailable", "board could not be loaded")
			close(client.send)
			return
		}
		room = NewRoom(client.BoardID, NewBoardState(b))
		h.rooms[client.BoardID] = room
	}
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	welcome, _ := json.Marshal(WelcomePayload{
		ClientID:    client.ClientID,
		UserID:      client.UserID,
		DisplayName: client.DisplayName,
	})
	client.Send(&Message{Type: TypeWelcome, BoardID: client.BoardID, Payload: welcome})

	boardSync, err := room.state.SyncPayload()
	if err != nil {
		slog.Error("board sync failed", "board", client.BoardID, "error", err)
	} else {
		raw, _ := json.Marshal(boardSync)
		client.Send(&Message{Type: TypeBoardSync, BoardID: client.BoardID, Seq: boardSync.ServerSeq, Payload: raw})
	}

	// Send current presence state to new client
	if stateMsg := room.presence.StateMessage(); stateMsg != nil {
		client.Send(stateMsg)
	}

	// Broadcast join to other clients
	joinPayload, _ := json.Marshal(PresenceJoinPayload{
		UserID:      client.UserID,
		DisplayName: client.DisplayName,
	})
	h.broadcastToRoom(client.BoardID, &Message{
		Type:    TypePresenceJoin,
		UserID:  client.UserID,
		Payload: joinPayload,
	}, client.ClientID)

	slog.Info("client joined", "user", client.UserID, "board", client.BoardID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.BoardID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	close(client.send)
	room.presence.Remove(client.UserID)

	last := len(room.clients) == 0
	if last {
		delete(h.rooms, client.BoardID)
	}
	h.mu.Unlock()

	if last {
		h.saveRoom(room)
	} else {
		leavePayload, _ := json.Marshal(PresenceLeavePayload{UserID: client.UserID})
		h.broadcastToRoom(client.BoardID, &Message{
			Type:    TypePresenceLeave,
			UserID:  client.UserID,
			Payload: leavePayload,
		}, "")
	}

	slog.Info("client left", "user", client.UserID, "board", client.BoardID)
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch msg.Type {
	case TypeOpSubmit:
		h.handleOpSubmit(sender, msg)
	case TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "user", sender.UserID)
	}
}

func (h *Hub) handleOpSubmit(sender *Client, msg *Message) {
	var payload OpSubmitPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		slog.Warn("invalid op payload", "error", err, "user", sender.UserID)
		return
	}
	op := payload.Op

	if !sender.limiter.Allow() {
		slog.Warn("op rate limit exceeded", "user", sender.UserID, "board", sender.BoardID)
		sender.SendNack(op.ID, "rate limited")
		return
	}

	h.mu.RLock()
	room, ok := h.rooms[sender.BoardID]
	h.mu.RUnlock()
	if !ok {
		sender.SendNack(op.ID, "room closed")
		return
	}

	seq, idMap, err := room.state.Apply(&op)
	if err != nil {
		slog.Warn("op rejected", "op", op.ID, "kind", op.Kind, "user", sender.UserID, "error", err)
		sender.SendNack(op.ID, err.Error())
		return
	}

	ack, _ := json.Marshal(OpAckPayload{OpID: op.ID, ServerSeq: seq, IDMap: idMap})
	sender.Send(&Message{Type: TypeOpAck, BoardID: sender.BoardID, Seq: seq, Payload: ack})

	// The applied op carries canonical ids; fan it out as-is.
	broadcast, _ := json.Marshal(OpBroadcastPayload{Op: op, UserID: sender.UserID, ServerSeq: seq})
	h.broadcastToRoom(sender.BoardID, &Message{
		Type:    TypeOpBroadcast,
		BoardID: sender.BoardID,
		UserID:  sender.UserID,
		Seq:     seq,
		Payload: broadcast,
	}, sender.ClientID)
}

func (h *Hub) handlePresenceUpdate(sender *Client, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		slog.Warn("invalid presence payload", "error", err)
		return
	}

	presence.DisplayName = sender.DisplayName

	h.mu.RLock()
	room, ok := h.rooms[sender.BoardID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	room.presence.Update(sender.UserID, &presence)

	// Broadcast to other clients in room
	outPayload, _ := json.Marshal(presence)
	h.broadcastToRoom(sender.BoardID, &Message{
		Type:    TypePresenceUpdate,
		UserID:  sender.UserID,
		Payload: outPayload,
	}, sender.ClientID)
}

func (h *Hub) broadcastToRoom(boardID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[boardID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}

func (h *Hub) saveRoom(room *Room) {
	if h.saver == nil {
		return
	}
	b, seq := room.state.Snapshot()
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.saver(saveCtx, room.boardID, b, seq); err != nil {
		slog.Error("board save failed", "board", room.boardID, "error", err)
		return
	}
	slog.Info("board saved", "board", room.boardID, "seq", seq)
}

func (h *Hub) saveAll() {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.rooms = make(map[string]*Room)
	h.mu.Unlock()

	for _, room := range rooms {
		h.saveRoom(room)
	}
}
