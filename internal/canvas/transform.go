package canvas

import (
	"math"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
)

// RotationSnapStep is the increment rotation snaps to while the snap
// modifier is held.
const RotationSnapStep = 15.0

// Placement is the transformable state of one entity: the unrotated
// top-left position, size, and rotation around the center. Gestures capture
// placements at pointer-down and derive every frame from those captures;
// commands carry before/after placements for undo.
type Placement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
}

// PlacementOf captures an entity's current placement.
func PlacementOf(e *board.Entity) Placement {
	return Placement{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height, Rotation: e.Rotation}
}

// Apply writes the placement back onto an entity.
func (p Placement) Apply(e *board.Entity) {
	e.X = p.X
	e.Y = p.Y
	e.Width = p.Width
	e.Height = p.Height
	e.Rotation = p.Rotation
}

// Rect returns the unrotated rect.
func (p Placement) Rect() geom.Rect {
	return geom.Rect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}
}

// Center returns the rotation center.
func (p Placement) Center() geom.Point {
	return geom.Point{X: p.X + p.Width/2, Y: p.Y + p.Height/2}
}

// rotatedTopLeft returns the document-space position of the top-left corner
// after rotation around the center. This is the anchor resize holds fixed.
func (p Placement) rotatedTopLeft() geom.Point {
	return geom.RotatePoint(geom.Point{X: p.X, Y: p.Y}, p.Center(), p.Rotation)
}

// rotateVec rotates a vector (no center) by deg.
func rotateVec(v geom.Point, deg float64) geom.Point {
	return geom.RotatePoint(v, geom.Point{}, deg)
}

// MoveBy translates a placement by a document-space delta.
func MoveBy(start Placement, delta geom.Point) Placement {
	start.X += delta.X
	start.Y += delta.Y
	return start
}

// ResizeSingle resizes one entity by its bottom-right handle toward the
// document-space pointer, holding the rotated top-left corner fixed and
// keeping the rotation. Works identically for rotated and unrotated
// entities: the pointer is carried into the entity's local frame, the new
// extent is the absolute local offset, and the new center is placed so the
// anchor does not move. Crossing the anchor mirrors the extent back onto
// the original side instead of flipping the entity. With lockAspect the
// width drives and the height follows the given width/height ratio.
func ResizeSingle(start Placement, pointer geom.Point, aspect float64, lockAspect bool) Placement {
	anchor := start.rotatedTopLeft()

	// Vector from anchor to pointer, expressed in the entity's local frame.
	// In that frame the anchor is the top-left and the extent is just the
	// vector's components.
	local := rotateVec(pointer.Sub(anchor), -start.Rotation)

	w := max(math.Abs(local.X), board.MinEntitySize)
	var h float64
	if lockAspect && aspect > 0 {
		h = w / aspect
		if h < board.MinEntitySize {
			h = board.MinEntitySize
			w = h * aspect
		}
	} else {
		h = max(math.Abs(local.Y), board.MinEntitySize)
	}

	center := anchor.Add(rotateVec(geom.Point{X: w / 2, Y: h / 2}, start.Rotation))
	return Placement{
		X:        center.X - w/2,
		Y:        center.Y - h/2,
		Width:    w,
		Height:   h,
		Rotation: start.Rotation,
	}
}

// ScaleFactors derives the per-axis scale factors for a bounds resize: the
// pointer position relative to the bounds origin over the original extent.
// Factors are floored at a small positive value so the geometry never
// inverts. With uniform set, the horizontal factor drives both axes.
func ScaleFactors(bounds geom.Rect, pointer geom.Point, uniform bool) (sx, sy float64) {
	const minFactor = 0.01
	if bounds.Width <= 0 || bounds.Height <= 0 {
		return 1, 1
	}
	sx = max((pointer.X-bounds.X)/bounds.Width, minFactor)
	sy = max((pointer.Y-bounds.Y)/bounds.Height, minFactor)
	if uniform {
		sy = sx
	}
	return sx, sy
}

// ScaleAboutOrigin scales a placement's position and size about a fixed
// document-space origin, as used when resizing a multi-selection by its
// bounding box. Unrotated entities scale exactly. Rotated entities cannot
// scale exactly per-axis without shearing, so the factors are projected
// onto the entity's local axes:
//
//	sxLocal = sx*cos²θ + sy*sin²θ
//	syLocal = sx*sin²θ + sy*cos²θ
//
// which is exact for uniform factors and for axis-aligned entities, and a
// fair shear-free approximation between those poles.
func ScaleAboutOrigin(start Placement, origin geom.Point, sx, sy float64) Placement {
	x := origin.X + (start.X-origin.X)*sx
	y := origin.Y + (start.Y-origin.Y)*sy

	sxL, syL := sx, sy
	if norm := geom.NormalizeDeg(start.Rotation); norm != 0 {
		rad := geom.Radians(norm)
		cos2 := math.Cos(rad) * math.Cos(rad)
		sin2 := math.Sin(rad) * math.Sin(rad)
		sxL = sx*cos2 + sy*sin2
		syL = sx*sin2 + sy*cos2
	}

	w := max(start.Width*sxL, board.MinEntitySize)
	h := max(start.Height*syL, board.MinEntitySize)

	return Placement{X: x, Y: y, Width: w, Height: h, Rotation: start.Rotation}
}

// ApplyFactors resizes a placement by shared factors, holding its own
// rotated top-left corner fixed. Used when one selected entity's handle
// drives a resize of the whole selection: the driver's factors are shared,
// the anchors are not.
func ApplyFactors(start Placement, fw, fh float64) Placement {
	anchor := start.rotatedTopLeft()
	w := max(start.Width*fw, board.MinEntitySize)
	h := max(start.Height*fh, board.MinEntitySize)

	center := anchor.Add(rotateVec(geom.Point{X: w / 2, Y: h / 2}, start.Rotation))
	return Placement{
		X:        center.X - w/2,
		Y:        center.Y - h/2,
		Width:    w,
		Height:   h,
		Rotation: start.Rotation,
	}
}

// RotateSpin rotates a placement in place: the center stays, the angle
// advances by delta. With snap the resulting angle locks to
// RotationSnapStep increments. Angles always land in [0, 360).
func RotateSpin(start Placement, delta float64, snap bool) Placement {
	angle := start.Rotation + delta
	if snap {
		angle = geom.SnapDeg(angle, RotationSnapStep)
	} else {
		angle = geom.NormalizeDeg(angle)
	}
	start.Rotation = angle
	return start
}

// RotateOrbit rotates a placement around an external pivot: the center
// orbits the pivot by delta and the entity's own angle advances by the same
// delta, so a multi-selection turns rigidly. With snap the shared delta
// locks to RotationSnapStep increments before it is applied, keeping the
// members rigid relative to each other.
func RotateOrbit(start Placement, pivot geom.Point, delta float64, snap bool) Placement {
	if snap {
		delta = math.Round(delta/RotationSnapStep) * RotationSnapStep
	}
	center := geom.RotatePoint(start.Center(), pivot, delta)
	return Placement{
		X:        center.X - start.Width/2,
		Y:        center.Y - start.Height/2,
		Width:    start.Width,
		Height:   start.Height,
		Rotation: geom.NormalizeDeg(start.Rotation + delta),
	}
}

// PointerAngle returns the angle in degrees of the pointer as seen from
// center, measured the same way rotations are.
func PointerAngle(center, pointer geom.Point) float64 {
	return geom.Degrees(math.Atan2(pointer.Y-center.Y, pointer.X-center.X))
}
