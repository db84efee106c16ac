package board

import (
	"encoding/json"

	"github.com/driftboard/driftboard/internal/geom"
)

// Kind identifies what an entity renders as. The transform machinery treats
// all kinds uniformly; kind only matters to rendering and to the property
// bags stored in Meta.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindText  Kind = "text"
	KindGroup Kind = "group"
)

// ValidKind reports whether k is one of the known entity kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindImage, KindVideo, KindText, KindGroup:
		return true
	}
	return false
}

// MinEntitySize is the floor for entity width and height in document units.
// Resize math clamps against it; the store and the sync authority reject
// anything below it that arrives over the wire.
const MinEntitySize = 50.0

// Entity is one item on a board: an axis-aligned rectangle at (X, Y) with
// size (Width, Height), rotated by Rotation degrees around its center.
// X and Y are the unrotated top-left corner in document coordinates.
type Entity struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`

	// Aspect is the width/height ratio captured at creation, used when a
	// resize gesture locks proportions. Zero means "derive from current size".
	Aspect float64 `json:"aspect,omitempty"`

	// Group is the id of the owning group entity, or empty. Groups never
	// own other groups.
	Group string `json:"group,omitempty"`

	// Children lists member ids, bottom to top. Only set on KindGroup.
	Children []string `json:"children,omitempty"`

	// Meta is the kind-specific property bag: media URL and natural size for
	// images and videos, text runs for text. Opaque to the transform engine.
	Meta json.RawMessage `json:"meta,omitempty"`

	// Draft marks an entity created locally and not yet confirmed by the
	// sync authority. Drafts carry draft ids; confirmation swaps both.
	Draft bool `json:"draft,omitempty"`
}

// Rect returns the unrotated rectangle of the entity in document space.
func (e *Entity) Rect() geom.Rect {
	return geom.Rect{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
}

// Center returns the rotation center in document space.
func (e *Entity) Center() geom.Point {
	return geom.Point{X: e.X + e.Width/2, Y: e.Y + e.Height/2}
}

// AspectRatio returns the locked aspect ratio, falling back to the current
// width/height when none was captured.
func (e *Entity) AspectRatio() float64 {
	if e.Aspect > 0 {
		return e.Aspect
	}
	if e.Height == 0 {
		return 1
	}
	return e.Width / e.Height
}

// Corners returns the four rotated corners in document space, in
// top-left, top-right, bottom-right, bottom-left order.
func (e *Entity) Corners() [4]geom.Point {
	c := e.Center()
	r := e.Rect()
	return [4]geom.Point{
		geom.RotatePoint(geom.Point{X: r.X, Y: r.Y}, c, e.Rotation),
		geom.RotatePoint(geom.Point{X: r.X + r.Width, Y: r.Y}, c, e.Rotation),
		geom.RotatePoint(geom.Point{X: r.X + r.Width, Y: r.Y + r.Height}, c, e.Rotation),
		geom.RotatePoint(geom.Point{X: r.X, Y: r.Y + r.Height}, c, e.Rotation),
	}
}

// ContainsPoint checks whether a document-space point falls inside the
// rotated entity. The point is carried into the entity's local frame by the
// inverse rotation and tested against the axis-aligned rect there.
func (e *Entity) ContainsPoint(p geom.Point) bool {
	local := geom.RotatePoint(p, e.Center(), -e.Rotation)
	return e.Rect().Contains(local)
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	cp := *e
	if e.Children != nil {
		cp.Children = make([]string, len(e.Children))
		copy(cp.Children, e.Children)
	}
	if e.Meta != nil {
		cp.Meta = make(json.RawMessage, len(e.Meta))
		copy(cp.Meta, e.Meta)
	}
	return &cp
}
