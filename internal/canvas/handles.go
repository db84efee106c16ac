package canvas

import (
	"math"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
)

// Handle kinds. Rotate outranks resize when hit areas overlap.
type HandleKind string

const (
	HandleResize HandleKind = "resize"
	HandleRotate HandleKind = "rotate"
)

// Handle is one grabbable control, positioned in surface coordinates so its
// size stays constant on screen at any zoom. EntityID is empty for the pair
// attached to the multi-selection bounds.
type Handle struct {
	Kind     HandleKind `json:"kind"`
	EntityID string     `json:"entityId,omitempty"`
	Pos      geom.Point `json:"pos"`
}

// HandleDetector produces and hit-tests transform handles. All distances
// are surface pixels.
type HandleDetector struct {
	// HitRadius is how close the pointer must be to a handle's center.
	HitRadius float64
	// RotateOffset is how far beyond the bottom-right corner the rotate
	// handle floats, along the center-to-corner direction.
	RotateOffset float64
	// SuppressBelow hides an entity's handles when its smaller side renders
	// under this many pixels; grabbing them would be hopeless and they would
	// cover the entity.
	SuppressBelow float64
}

// NewHandleDetector returns a detector with the stock geometry.
func NewHandleDetector() *HandleDetector {
	return &HandleDetector{
		HitRadius:     14,
		RotateOffset:  26,
		SuppressBelow: 24,
	}
}

// Handles returns the active handles for the selection: a pair per selected
// entity at its rotated bottom-right corner, plus a pair on the selection
// bounds when more than one entity is selected. Bounds handles come first.
func (d *HandleDetector) Handles(b *board.Board, sel *Selection, vp *Viewport) []Handle {
	if sel.IsEmpty() {
		return nil
	}

	var out []Handle

	if sel.Len() > 1 {
		bounds := sel.Bounds(b)
		if !bounds.IsEmpty() && min(bounds.Width, bounds.Height)*vp.Zoom >= d.SuppressBelow {
			corner := vp.ToSurface(geom.Point{X: bounds.X + bounds.Width, Y: bounds.Y + bounds.Height})
			center := vp.ToSurface(bounds.Center())
			out = append(out,
				Handle{Kind: HandleRotate, Pos: offsetOutward(corner, center, d.RotateOffset)},
				Handle{Kind: HandleResize, Pos: corner},
			)
		}
	}

	for _, id := range sel.IDs() {
		e, ok := b.ByID(id)
		if !ok {
			continue
		}
		if min(e.Width, e.Height)*vp.Zoom < d.SuppressBelow {
			continue
		}
		corners := e.Corners()
		corner := vp.ToSurface(corners[2])
		center := vp.ToSurface(e.Center())
		out = append(out,
			Handle{Kind: HandleRotate, EntityID: id, Pos: offsetOutward(corner, center, d.RotateOffset)},
			Handle{Kind: HandleResize, EntityID: id, Pos: corner},
		)
	}
	return out
}

// HitTest returns the handle under the surface point, or nil. Rotate
// handles win over resize handles; within a kind, the most recently
// selected entity's handle wins, and entity handles win over the bounds
// pair.
func (d *HandleDetector) HitTest(p geom.Point, b *board.Board, sel *Selection, vp *Viewport) *Handle {
	handles := d.Handles(b, sel, vp)
	for _, kind := range []HandleKind{HandleRotate, HandleResize} {
		for i := len(handles) - 1; i >= 0; i-- {
			h := handles[i]
			if h.Kind != kind {
				continue
			}
			if math.Hypot(p.X-h.Pos.X, p.Y-h.Pos.Y) <= d.HitRadius {
				return &h
			}
		}
	}
	return nil
}

// offsetOutward pushes a point dist pixels further away from center. A
// degenerate zero-length direction falls back to straight down-right.
func offsetOutward(p, center geom.Point, dist float64) geom.Point {
	dx := p.X - center.X
	dy := p.Y - center.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		inv := dist / math.Sqrt2
		return geom.Point{X: p.X + inv, Y: p.Y + inv}
	}
	return geom.Point{X: p.X + dx/length*dist, Y: p.Y + dy/length*dist}
}
