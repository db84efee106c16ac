package canvas

import (
	"math"

	"github.com/driftboard/driftboard/internal/geom"
)

// Zoom limits. Wheel and pinch input clamps against these; programmatic
// SetZoom does too.
const (
	MinZoom = 0.05
	MaxZoom = 16.0
)

// Viewport maps between document coordinates and surface coordinates.
// Surface coordinates are logical pixels on the drawing surface; the device
// pixel ratio is carried for hosts that render at native resolution but
// plays no part in the conversions.
//
// surface = document*zoom + offset
type Viewport struct {
	Zoom    float64 `json:"zoom"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	DPR     float64 `json:"dpr,omitempty"`
}

// NewViewport returns a viewport at 1:1 with no pan.
func NewViewport() *Viewport {
	return &Viewport{Zoom: 1, DPR: 1}
}

// ToSurface converts a document-space point to surface space.
func (v *Viewport) ToSurface(p geom.Point) geom.Point {
	return geom.Point{
		X: p.X*v.Zoom + v.OffsetX,
		Y: p.Y*v.Zoom + v.OffsetY,
	}
}

// ToDocument converts a surface-space point to document space.
func (v *Viewport) ToDocument(p geom.Point) geom.Point {
	return geom.Point{
		X: (p.X - v.OffsetX) / v.Zoom,
		Y: (p.Y - v.OffsetY) / v.Zoom,
	}
}

// RectToSurface converts a document-space rect to surface space.
func (v *Viewport) RectToSurface(r geom.Rect) geom.Rect {
	tl := v.ToSurface(geom.Point{X: r.X, Y: r.Y})
	return geom.Rect{X: tl.X, Y: tl.Y, Width: r.Width * v.Zoom, Height: r.Height * v.Zoom}
}

// Pan shifts the view by a surface-space delta.
func (v *Viewport) Pan(dx, dy float64) {
	if !isFinite(dx) || !isFinite(dy) {
		return
	}
	v.OffsetX += dx
	v.OffsetY += dy
}

// ZoomBy multiplies the zoom by factor, keeping the document point under
// the given surface pivot stationary. The resulting zoom is clamped to
// [MinZoom, MaxZoom]; non-finite input leaves the viewport untouched.
func (v *Viewport) ZoomBy(factor float64, pivot geom.Point) {
	if !isFinite(factor) || factor <= 0 {
		return
	}
	v.SetZoom(v.Zoom*factor, pivot)
}

// SetZoom sets an absolute zoom, keeping the document point under the given
// surface pivot stationary. An update that would produce a non-finite
// offset is discarded whole.
func (v *Viewport) SetZoom(zoom float64, pivot geom.Point) {
	if !isFinite(zoom) {
		return
	}
	zoom = min(max(zoom, MinZoom), MaxZoom)
	if zoom == v.Zoom {
		return
	}
	anchor := v.ToDocument(pivot)
	offX := pivot.X - anchor.X*zoom
	offY := pivot.Y - anchor.Y*zoom
	if !isFinite(offX) || !isFinite(offY) {
		return
	}
	v.Zoom = zoom
	v.OffsetX = offX
	v.OffsetY = offY
}

// Matrix returns the document-to-surface transform as an affine matrix.
func (v *Viewport) Matrix() geom.Matrix2D {
	return geom.Translate(v.OffsetX, v.OffsetY).Multiply(geom.Scale(v.Zoom, v.Zoom))
}

// VisibleRect returns the document-space rect covered by a surface of the
// given logical size.
func (v *Viewport) VisibleRect(surfaceW, surfaceH float64) geom.Rect {
	tl := v.ToDocument(geom.Point{})
	br := v.ToDocument(geom.Point{X: surfaceW, Y: surfaceH})
	return geom.FromCorners(tl, br)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
