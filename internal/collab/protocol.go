package collab

import (
	"encoding/json"

	"github.com/driftboard/driftboard/internal/canvas"
)

// Message is the envelope every frame travels in, both directions.
type Message struct {
	Type     string          `json:"type"`
	BoardID  string          `json:"boardId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

const (
	// Connection
	TypeWelcome = "welcome"

	// Board sync
	TypeBoardSync = "board.sync"

	// Command flow
	TypeOpSubmit    = "op.submit"
	TypeOpAck       = "op.ack"
	TypeOpNack      = "op.nack"
	TypeOpBroadcast = "op.broadcast"

	// Presence
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"

	TypeError = "error"
)

// WelcomePayload greets a freshly registered client with its identity.
type WelcomePayload struct {
	ClientID    string `json:"clientId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// BoardSyncPayload carries the full authoritative board. Sent on join and
// whenever a client falls behind far enough that incremental ops won't do.
type BoardSyncPayload struct {
	Board     json.RawMessage `json:"board"`
	ServerSeq int64           `json:"serverSeq"`
}

// OpSubmitPayload wraps a client command on its way to the authority.
type OpSubmitPayload struct {
	Op canvas.Command `json:"op"`
}

// OpAckPayload confirms a command. IDMap carries the canonical ids the
// authority minted for any draft entities the command created.
type OpAckPayload struct {
	OpID      string            `json:"opId"`
	ServerSeq int64             `json:"serverSeq"`
	IDMap     map[string]string `json:"idMap,omitempty"`
}

// OpNackPayload rejects a command.
type OpNackPayload struct {
	OpID   string `json:"opId"`
	Reason string `json:"reason"`
}

// OpBroadcastPayload fans a confirmed command out to the other clients in
// the room, with drafts already rewritten to canonical ids.
type OpBroadcastPayload struct {
	Op        canvas.Command `json:"op"`
	UserID    string         `json:"userId"`
	ServerSeq int64          `json:"serverSeq"`
}

// PresencePayload is one user's live state: cursor in document coordinates
// plus their current selection.
type PresencePayload struct {
	Cursor      *CursorPos `json:"cursor,omitempty"`
	Selection   []string   `json:"selection,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
}

type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type PresenceLeavePayload struct {
	UserID string `json:"userId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
