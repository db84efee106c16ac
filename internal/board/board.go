package board

import (
	"encoding/json"
	"fmt"

	"github.com/driftboard/driftboard/internal/geom"
)

// Board is the entity store for one canvas: a z-ordered list (bottom to top)
// with an id index. Boards are not safe for concurrent use; the editor owns
// one on its single thread, the sync authority guards one with a mutex.
type Board struct {
	id    string
	name  string
	order []*Entity
	byID  map[string]*Entity
}

// New creates an empty board.
func New(id, name string) *Board {
	return &Board{
		id:   id,
		name: name,
		byID: make(map[string]*Entity),
	}
}

func (b *Board) ID() string   { return b.id }
func (b *Board) Name() string { return b.name }

// Rename sets the board name. Empty names are kept as-is upstream; the
// board itself accepts anything.
func (b *Board) Rename(name string) { b.name = name }

// Len returns the entity count.
func (b *Board) Len() int { return len(b.order) }

// Add appends the entity at the top of the z-order. Duplicate or empty ids
// and unknown kinds are rejected; undersized geometry is clamped, rotation
// is wrapped into [0, 360).
func (b *Board) Add(e *Entity) error {
	return b.Insert(e, len(b.order))
}

// Insert places the entity at the given z-index, shifting everything above
// it up. Indexes out of range are clamped.
func (b *Board) Insert(e *Entity, index int) error {
	if e.ID == "" {
		return fmt.Errorf("entity has no id")
	}
	if _, exists := b.byID[e.ID]; exists {
		return fmt.Errorf("duplicate entity id %q", e.ID)
	}
	if !ValidKind(e.Kind) {
		return fmt.Errorf("unknown entity kind %q", e.Kind)
	}

	sanitize(e)

	if index < 0 {
		index = 0
	}
	if index > len(b.order) {
		index = len(b.order)
	}
	b.order = append(b.order, nil)
	copy(b.order[index+1:], b.order[index:])
	b.order[index] = e
	b.byID[e.ID] = e
	return nil
}

// sanitize clamps geometry floors and wraps rotation. Invalid numbers are
// replaced rather than propagated.
func sanitize(e *Entity) {
	if e.Width < MinEntitySize {
		e.Width = MinEntitySize
	}
	if e.Height < MinEntitySize {
		e.Height = MinEntitySize
	}
	e.Rotation = geom.NormalizeDeg(e.Rotation)
}

// Remove deletes the entity and returns it, or nil if absent. Removing a
// group releases its children back to the top level.
func (b *Board) Remove(id string) *Entity {
	e, ok := b.byID[id]
	if !ok {
		return nil
	}
	if e.Kind == KindGroup {
		for _, childID := range e.Children {
			if child, ok := b.byID[childID]; ok && child.Group == id {
				child.Group = ""
			}
		}
	}
	delete(b.byID, id)
	idx := b.IndexOf(id)
	b.order = append(b.order[:idx], b.order[idx+1:]...)
	return e
}

// ByID looks up an entity.
func (b *Board) ByID(id string) (*Entity, bool) {
	e, ok := b.byID[id]
	return e, ok
}

// List returns the entities bottom to top. The slice is a copy; the entities
// are not.
func (b *Board) List() []*Entity {
	out := make([]*Entity, len(b.order))
	copy(out, b.order)
	return out
}

// IndexOf returns the z-index of the entity, or -1.
func (b *Board) IndexOf(id string) int {
	for i, e := range b.order {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// MoveToIndex reorders the entity to the given z-index, clamped in range.
func (b *Board) MoveToIndex(id string, index int) bool {
	from := b.IndexOf(id)
	if from == -1 {
		return false
	}
	e := b.order[from]
	b.order = append(b.order[:from], b.order[from+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(b.order) {
		index = len(b.order)
	}
	b.order = append(b.order, nil)
	copy(b.order[index+1:], b.order[index:])
	b.order[index] = e
	return true
}

// BringToFront moves the entity to the top of the z-order.
func (b *Board) BringToFront(id string) bool {
	return b.MoveToIndex(id, len(b.order)-1)
}

// SendToBack moves the entity to the bottom of the z-order.
func (b *Board) SendToBack(id string) bool {
	return b.MoveToIndex(id, 0)
}

// EntityAt returns the topmost entity whose rotated bounds contain the
// document-space point, or nil.
func (b *Board) EntityAt(p geom.Point) *Entity {
	for i := len(b.order) - 1; i >= 0; i-- {
		if b.order[i].ContainsPoint(p) {
			return b.order[i]
		}
	}
	return nil
}

// TopLevel resolves an entity to its selectable container: the owning group
// when one exists, the entity itself otherwise.
func (b *Board) TopLevel(e *Entity) *Entity {
	if e == nil || e.Group == "" {
		return e
	}
	if g, ok := b.byID[e.Group]; ok {
		return g
	}
	return e
}

// AttachToGroup makes the listed entities members of the group. Groups may
// not contain groups, and an entity belongs to at most one group.
func (b *Board) AttachToGroup(groupID string, ids []string) error {
	g, ok := b.byID[groupID]
	if !ok {
		return fmt.Errorf("group %q not found", groupID)
	}
	if g.Kind != KindGroup {
		return fmt.Errorf("entity %q is not a group", groupID)
	}
	for _, id := range ids {
		e, ok := b.byID[id]
		if !ok {
			return fmt.Errorf("entity %q not found", id)
		}
		if e.Kind == KindGroup {
			return fmt.Errorf("group %q cannot contain group %q", groupID, id)
		}
		if e.Group != "" && e.Group != groupID {
			return fmt.Errorf("entity %q already belongs to group %q", id, e.Group)
		}
	}
	for _, id := range ids {
		e := b.byID[id]
		if e.Group == groupID {
			continue
		}
		e.Group = groupID
		g.Children = append(g.Children, id)
	}
	return nil
}

// DetachGroup dissolves the group membership links without removing any
// entity: children return to the top level and the group's member list is
// cleared. The caller decides what happens to the group entity itself.
func (b *Board) DetachGroup(groupID string) []string {
	g, ok := b.byID[groupID]
	if !ok || g.Kind != KindGroup {
		return nil
	}
	released := make([]string, 0, len(g.Children))
	for _, childID := range g.Children {
		if child, ok := b.byID[childID]; ok && child.Group == groupID {
			child.Group = ""
			released = append(released, childID)
		}
	}
	g.Children = nil
	return released
}

// Members returns the resolved child entities of a group, skipping dangling
// ids.
func (b *Board) Members(groupID string) []*Entity {
	g, ok := b.byID[groupID]
	if !ok {
		return nil
	}
	out := make([]*Entity, 0, len(g.Children))
	for _, id := range g.Children {
		if child, ok := b.byID[id]; ok {
			out = append(out, child)
		}
	}
	return out
}

// ReplaceID rewrites an entity's id in place, preserving its z-position and
// every membership link that referenced the old id. Used when the authority
// confirms a draft under its canonical id.
func (b *Board) ReplaceID(oldID, newID string) bool {
	e, ok := b.byID[oldID]
	if !ok {
		return false
	}
	if _, taken := b.byID[newID]; taken {
		return false
	}
	delete(b.byID, oldID)
	e.ID = newID
	b.byID[newID] = e

	for _, other := range b.order {
		if other.Group == oldID {
			other.Group = newID
		}
		for i, childID := range other.Children {
			if childID == oldID {
				other.Children[i] = newID
			}
		}
	}
	return true
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	cp := New(b.id, b.name)
	for _, e := range b.order {
		ce := e.Clone()
		cp.order = append(cp.order, ce)
		cp.byID[ce.ID] = ce
	}
	return cp
}

type boardJSON struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Entities []*Entity `json:"entities"`
}

// MarshalJSON serializes the board with entities in z-order.
func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(boardJSON{ID: b.id, Name: b.name, Entities: b.order})
}

// UnmarshalJSON rebuilds the board and its id index from a snapshot.
func (b *Board) UnmarshalJSON(data []byte) error {
	var raw boardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode board: %w", err)
	}
	b.id = raw.ID
	b.name = raw.Name
	b.order = nil
	b.byID = make(map[string]*Entity, len(raw.Entities))
	for _, e := range raw.Entities {
		if e.ID == "" {
			return fmt.Errorf("board %q has an entity without an id", raw.ID)
		}
		if _, dup := b.byID[e.ID]; dup {
			return fmt.Errorf("board %q has duplicate entity id %q", raw.ID, e.ID)
		}
		b.order = append(b.order, e)
		b.byID[e.ID] = e
	}
	return nil
}
