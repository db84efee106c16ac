package collab

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/canvas"
	"github.com/driftboard/driftboard/internal/typeid"
)

// BoardState holds the authoritative board for one room. Commands are
// validated, applied in arrival order, and stamped with a server sequence;
// draft entity ids are swapped for canonical ones before the command
// touches the board, so only the submitting client ever sees a draft id.
type BoardState struct {
	mu        sync.RWMutex
	board     *board.Board
	serverSeq int64
	opLog     []*canvas.Command
}

// NewBoardState wraps a loaded board.
func NewBoardState(b *board.Board) *BoardState {
	return &BoardState{board: b}
}

// ServerSeq returns the sequence of the last applied command.
func (bs *BoardState) ServerSeq() int64 {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.serverSeq
}

// Snapshot returns a deep copy of the board plus the sequence it reflects,
// for persistence and board.sync frames.
func (bs *BoardState) Snapshot() (*board.Board, int64) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.board.Clone(), bs.serverSeq
}

// SyncPayload marshals the current board into a board.sync payload.
func (bs *BoardState) SyncPayload() (*BoardSyncPayload, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	raw, err := json.Marshal(bs.board)
	if err != nil {
		return nil, fmt.Errorf("marshal board: %w", err)
	}
	return &BoardSyncPayload{Board: raw, ServerSeq: bs.serverSeq}, nil
}

// Apply validates and applies one command, returning the server sequence it
// was stamped with and the draft-to-canonical id map for any entities it
// created. A returned error means the command was rejected and the board is
// unchanged.
func (bs *BoardState) Apply(cmd *canvas.Command) (int64, map[string]string, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if cmd.BoardID != "" && cmd.BoardID != bs.board.ID() {
		return 0, nil, fmt.Errorf("command targets board %q", cmd.BoardID)
	}
	if err := bs.validateLocked(cmd); err != nil {
		return 0, nil, err
	}

	idMap := bs.mintCanonicalIDs(cmd)

	if err := cmd.Apply(bs.board); err != nil {
		return 0, nil, err
	}

	bs.serverSeq++
	bs.opLog = append(bs.opLog, cmd)
	return bs.serverSeq, idMap, nil
}

// validateLocked rejects commands the board could not sensibly absorb:
// placements that are not finite or shrink below the minimum size, and
// references to entities that are gone. Every reference is checked before
// anything is applied, so a rejection leaves the board untouched even for
// commands that apply in several steps.
func (bs *BoardState) validateLocked(cmd *canvas.Command) error {
	for _, ch := range cmd.Changes {
		if _, ok := bs.board.ByID(ch.EntityID); !ok {
			return fmt.Errorf("entity %q not found", ch.EntityID)
		}
		if !placementFinite(ch.After) {
			return fmt.Errorf("entity %q placement is not finite", ch.EntityID)
		}
		if ch.After.Width < board.MinEntitySize || ch.After.Height < board.MinEntitySize {
			return fmt.Errorf("entity %q below minimum size", ch.EntityID)
		}
	}
	for _, snap := range cmd.Created {
		if snap.Entity == nil || snap.Entity.ID == "" {
			return fmt.Errorf("creation without entity")
		}
		if !typeid.IsDraft(snap.Entity.ID) {
			if _, taken := bs.board.ByID(snap.Entity.ID); taken {
				return fmt.Errorf("entity %q already exists", snap.Entity.ID)
			}
		}
	}
	for _, snap := range cmd.Removed {
		if snap.Entity == nil {
			return fmt.Errorf("removal without entity")
		}
		if _, ok := bs.board.ByID(snap.Entity.ID); !ok {
			return fmt.Errorf("entity %q not found", snap.Entity.ID)
		}
	}
	for _, id := range cmd.OrderAfter {
		if _, ok := bs.board.ByID(id); !ok {
			return fmt.Errorf("entity %q not found", id)
		}
	}
	if cmd.Kind == canvas.CmdProps {
		if _, ok := bs.board.ByID(cmd.PropsID); !ok {
			return fmt.Errorf("entity %q not found", cmd.PropsID)
		}
	}
	return nil
}

func placementFinite(p canvas.Placement) bool {
	for _, v := range []float64{p.X, p.Y, p.Width, p.Height, p.Rotation} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// mintCanonicalIDs rewrites every draft entity id in the command to a fresh
// canonical id and clears the draft flags, returning the mapping.
func (bs *BoardState) mintCanonicalIDs(cmd *canvas.Command) map[string]string {
	var idMap map[string]string
	for _, snap := range cmd.Created {
		if !typeid.IsDraft(snap.Entity.ID) {
			continue
		}
		if idMap == nil {
			idMap = make(map[string]string)
		}
		canonical := typeid.NewEntityID()
		idMap[snap.Entity.ID] = canonical
		cmd.RewriteID(snap.Entity.ID, canonical)
	}
	for _, snap := range cmd.Created {
		snap.Entity.Draft = false
	}
	return idMap
}
