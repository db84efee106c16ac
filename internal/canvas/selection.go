package canvas

import (
	"github.com/samber/lo"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
)

// Selection tracks which entities are selected, in the order they were
// selected. It caches the union of the members' unrotated rects; the cache
// is dropped on membership change and must be dropped by the owner whenever
// member geometry changes.
type Selection struct {
	ids       []string
	index     map[string]struct{}
	observers []func()

	bounds      geom.Rect
	boundsValid bool
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{index: make(map[string]struct{})}
}

// Observe registers a callback fired after every membership change.
func (s *Selection) Observe(fn func()) {
	s.observers = append(s.observers, fn)
}

func (s *Selection) notify() {
	s.boundsValid = false
	for _, fn := range s.observers {
		fn()
	}
}

// IDs returns the selected ids in selection order. The slice is a copy.
func (s *Selection) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of selected entities.
func (s *Selection) Len() int { return len(s.ids) }

// IsEmpty reports whether nothing is selected.
func (s *Selection) IsEmpty() bool { return len(s.ids) == 0 }

// Contains reports whether the id is selected.
func (s *Selection) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Set replaces the selection. Duplicates collapse to their first position.
// No-op (and no notification) when the membership is unchanged in order.
func (s *Selection) Set(ids []string) {
	ids = lo.Uniq(ids)
	if len(ids) == len(s.ids) {
		same := true
		for i, id := range ids {
			if s.ids[i] != id {
				same = false
				break
			}
		}
		if same {
			return
		}
	}
	s.ids = ids
	s.index = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.index[id] = struct{}{}
	}
	s.notify()
}

// Add appends the id to the selection if not already present.
func (s *Selection) Add(id string) {
	if s.Contains(id) {
		return
	}
	s.ids = append(s.ids, id)
	s.index[id] = struct{}{}
	s.notify()
}

// Remove drops the id from the selection if present.
func (s *Selection) Remove(id string) {
	if !s.Contains(id) {
		return
	}
	s.ids = lo.Without(s.ids, id)
	delete(s.index, id)
	s.notify()
}

// Toggle flips membership of the id.
func (s *Selection) Toggle(id string) {
	if s.Contains(id) {
		s.Remove(id)
	} else {
		s.Add(id)
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	if len(s.ids) == 0 {
		return
	}
	s.ids = nil
	s.index = make(map[string]struct{})
	s.notify()
}

// ReplaceID rewrites a member id in place, keeping its selection position.
// Membership observers do not fire: the selection did not change, only the
// name of one member.
func (s *Selection) ReplaceID(oldID, newID string) {
	if !s.Contains(oldID) || s.Contains(newID) {
		return
	}
	for i, id := range s.ids {
		if id == oldID {
			s.ids[i] = newID
			break
		}
	}
	delete(s.index, oldID)
	s.index[newID] = struct{}{}
}

// InvalidateBounds drops the cached bounding box. Call after any selected
// entity's geometry changes.
func (s *Selection) InvalidateBounds() {
	s.boundsValid = false
}

// Bounds returns the union of the members' unrotated rects in document
// space, cached until the membership or geometry changes. Ids that no
// longer resolve on the board are skipped. An empty selection yields the
// zero rect.
func (s *Selection) Bounds(b *board.Board) geom.Rect {
	if s.boundsValid {
		return s.bounds
	}
	var out geom.Rect
	for _, id := range s.ids {
		e, ok := b.ByID(id)
		if !ok {
			continue
		}
		out = out.Union(e.Rect())
	}
	s.bounds = out
	s.boundsValid = true
	return out
}

// Prune drops members that no longer exist on the board. Fires observers
// only when something was actually dropped.
func (s *Selection) Prune(b *board.Board) {
	kept := lo.Filter(s.ids, func(id string, _ int) bool {
		_, ok := b.ByID(id)
		return ok
	})
	if len(kept) == len(s.ids) {
		return
	}
	s.ids = kept
	s.index = make(map[string]struct{}, len(kept))
	for _, id := range kept {
		s.index[id] = struct{}{}
	}
	s.notify()
}
