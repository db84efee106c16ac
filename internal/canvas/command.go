package canvas

import (
	"encoding/json"
	"fmt"

	"github.com/driftboard/driftboard/internal/board"
)

// CommandKind discriminates what a command does to the board.
type CommandKind string

const (
	CmdMove    CommandKind = "move"
	CmdResize  CommandKind = "resize"
	CmdRotate  CommandKind = "rotate"
	CmdCreate  CommandKind = "create"
	CmdDelete  CommandKind = "delete"
	CmdGroup   CommandKind = "group"
	CmdUngroup CommandKind = "ungroup"
	CmdReorder CommandKind = "reorder"
	CmdProps   CommandKind = "props"
	CmdRename  CommandKind = "rename"
)

// PlacementChange pairs one entity's placement before and after a command.
type PlacementChange struct {
	EntityID string    `json:"entityId"`
	Before   Placement `json:"before"`
	After    Placement `json:"after"`
}

// EntitySnapshot is a full entity plus its z-index, captured so creation
// and deletion can be undone into the exact same board position.
type EntitySnapshot struct {
	Entity *board.Entity `json:"entity"`
	ZIndex int           `json:"zIndex"`
}

// Command is one undoable, submittable unit of board change. Fields beyond
// ID/Kind/BoardID are populated per kind; every populated field carries
// enough before-state to invert the command without consulting the board.
// Commands are immutable once committed, except for draft id rewrites when
// the authority confirms a creation.
type Command struct {
	ID      string      `json:"id"`
	Kind    CommandKind `json:"kind"`
	BoardID string      `json:"boardId"`

	// Move, resize, rotate.
	Changes []PlacementChange `json:"changes,omitempty"`

	// Create (including duplicate) and delete.
	Created []EntitySnapshot `json:"created,omitempty"`
	Removed []EntitySnapshot `json:"removed,omitempty"`

	// Group and ungroup. Group uses Created for the group entity; ungroup
	// uses Removed.
	MemberIDs []string `json:"memberIds,omitempty"`

	// Reorder: the full z-order before and after.
	OrderBefore []string `json:"orderBefore,omitempty"`
	OrderAfter  []string `json:"orderAfter,omitempty"`

	// Props: one entity's meta bag.
	PropsID     string          `json:"propsId,omitempty"`
	PropsBefore json.RawMessage `json:"propsBefore,omitempty"`
	PropsAfter  json.RawMessage `json:"propsAfter,omitempty"`

	// Rename: the board name.
	NameBefore string `json:"nameBefore,omitempty"`
	NameAfter  string `json:"nameAfter,omitempty"`
}

// IsNoop reports whether the command would change nothing. Creation is
// never a no-op: a duplicate dropped in place still creates.
func (c *Command) IsNoop() bool {
	switch c.Kind {
	case CmdCreate, CmdDelete, CmdGroup, CmdUngroup:
		return len(c.Created) == 0 && len(c.Removed) == 0
	case CmdMove, CmdResize, CmdRotate:
		for _, ch := range c.Changes {
			if ch.Before != ch.After {
				return false
			}
		}
		return true
	case CmdReorder:
		if len(c.OrderBefore) != len(c.OrderAfter) {
			return false
		}
		for i := range c.OrderBefore {
			if c.OrderBefore[i] != c.OrderAfter[i] {
				return false
			}
		}
		return true
	case CmdProps:
		return string(c.PropsBefore) == string(c.PropsAfter)
	case CmdRename:
		return c.NameBefore == c.NameAfter
	}
	return true
}

// Invert returns the command that undoes this one. The inverse shares the
// id; callers re-mint before submitting it anywhere.
func (c *Command) Invert() *Command {
	inv := &Command{
		ID:      c.ID,
		BoardID: c.BoardID,
	}
	switch c.Kind {
	case CmdMove, CmdResize, CmdRotate:
		inv.Kind = c.Kind
		inv.Changes = make([]PlacementChange, len(c.Changes))
		for i, ch := range c.Changes {
			inv.Changes[i] = PlacementChange{EntityID: ch.EntityID, Before: ch.After, After: ch.Before}
		}
	case CmdCreate:
		inv.Kind = CmdDelete
		inv.Removed = c.Created
	case CmdDelete:
		inv.Kind = CmdCreate
		inv.Created = c.Removed
	case CmdGroup:
		inv.Kind = CmdUngroup
		inv.Removed = c.Created
		inv.MemberIDs = c.MemberIDs
	case CmdUngroup:
		inv.Kind = CmdGroup
		inv.Created = c.Removed
		inv.MemberIDs = c.MemberIDs
	case CmdReorder:
		inv.Kind = CmdReorder
		inv.OrderBefore = c.OrderAfter
		inv.OrderAfter = c.OrderBefore
	case CmdProps:
		inv.Kind = CmdProps
		inv.PropsID = c.PropsID
		inv.PropsBefore = c.PropsAfter
		inv.PropsAfter = c.PropsBefore
	case CmdRename:
		inv.Kind = CmdRename
		inv.NameBefore = c.NameAfter
		inv.NameAfter = c.NameBefore
	default:
		inv.Kind = c.Kind
	}
	return inv
}

// Apply brings a board into the command's after-state. Used for the
// optimistic local apply, for remote ops arriving over sync, and by the
// authority itself. Apply is not transactional; a failed partial apply
// reports the first error.
func (c *Command) Apply(b *board.Board) error {
	switch c.Kind {
	case CmdMove, CmdResize, CmdRotate:
		for _, ch := range c.Changes {
			e, ok := b.ByID(ch.EntityID)
			if !ok {
				return fmt.Errorf("%s: entity %q not found", c.Kind, ch.EntityID)
			}
			ch.After.Apply(e)
		}
	case CmdCreate:
		for _, snap := range c.Created {
			if err := b.Insert(snap.Entity.Clone(), snap.ZIndex); err != nil {
				return fmt.Errorf("create: %w", err)
			}
		}
	case CmdDelete:
		for _, snap := range c.Removed {
			if removed := b.Remove(snap.Entity.ID); removed == nil {
				return fmt.Errorf("delete: entity %q not found", snap.Entity.ID)
			}
		}
	case CmdGroup:
		if len(c.Created) != 1 {
			return fmt.Errorf("group: expected one group entity, got %d", len(c.Created))
		}
		snap := c.Created[0]
		g := snap.Entity.Clone()
		g.Children = nil
		if err := b.Insert(g, snap.ZIndex); err != nil {
			return fmt.Errorf("group: %w", err)
		}
		if err := b.AttachToGroup(g.ID, c.MemberIDs); err != nil {
			b.Remove(g.ID)
			return fmt.Errorf("group: %w", err)
		}
	case CmdUngroup:
		if len(c.Removed) != 1 {
			return fmt.Errorf("ungroup: expected one group entity, got %d", len(c.Removed))
		}
		groupID := c.Removed[0].Entity.ID
		if _, ok := b.ByID(groupID); !ok {
			return fmt.Errorf("ungroup: group %q not found", groupID)
		}
		b.DetachGroup(groupID)
		b.Remove(groupID)
	case CmdReorder:
		for i, id := range c.OrderAfter {
			if !b.MoveToIndex(id, i) {
				return fmt.Errorf("reorder: entity %q not found", id)
			}
		}
	case CmdProps:
		e, ok := b.ByID(c.PropsID)
		if !ok {
			return fmt.Errorf("props: entity %q not found", c.PropsID)
		}
		e.Meta = append(json.RawMessage(nil), c.PropsAfter...)
	case CmdRename:
		b.Rename(c.NameAfter)
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// RewriteID replaces every reference to an entity id across the command's
// payload. Used when the authority assigns canonical ids to drafts.
func (c *Command) RewriteID(oldID, newID string) {
	for i := range c.Changes {
		if c.Changes[i].EntityID == oldID {
			c.Changes[i].EntityID = newID
		}
	}
	for _, snaps := range [][]EntitySnapshot{c.Created, c.Removed} {
		for _, snap := range snaps {
			if snap.Entity.ID == oldID {
				snap.Entity.ID = newID
			}
			if snap.Entity.Group == oldID {
				snap.Entity.Group = newID
			}
			for i, child := range snap.Entity.Children {
				if child == oldID {
					snap.Entity.Children[i] = newID
				}
			}
		}
	}
	for i, id := range c.MemberIDs {
		if id == oldID {
			c.MemberIDs[i] = newID
		}
	}
	for i, id := range c.OrderBefore {
		if id == oldID {
			c.OrderBefore[i] = newID
		}
	}
	for i, id := range c.OrderAfter {
		if id == oldID {
			c.OrderAfter[i] = newID
		}
	}
	if c.PropsID == oldID {
		c.PropsID = newID
	}
}

// TouchedIDs returns every entity id the command references, in payload
// order without duplicates.
func (c *Command) TouchedIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, ch := range c.Changes {
		add(ch.EntityID)
	}
	for _, snap := range c.Created {
		add(snap.Entity.ID)
	}
	for _, snap := range c.Removed {
		add(snap.Entity.ID)
	}
	for _, id := range c.MemberIDs {
		add(id)
	}
	add(c.PropsID)
	return out
}
