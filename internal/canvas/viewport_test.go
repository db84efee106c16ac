package canvas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/geom"
)

func TestViewportRoundTrip(t *testing.T) {
	v := NewViewport()
	v.Zoom = 1.7320508
	v.OffsetX = -312.25
	v.OffsetY = 1044.5

	points := []geom.Point{
		{X: 0, Y: 0},
		{X: 12345.678, Y: -9876.543},
		{X: -0.001, Y: 0.001},
		{X: 1e6, Y: 1e6},
	}
	for _, p := range points {
		back := v.ToDocument(v.ToSurface(p))
		assert.InDelta(t, p.X, back.X, 1e-6)
		assert.InDelta(t, p.Y, back.Y, 1e-6)
	}
}

func TestViewportPan(t *testing.T) {
	v := NewViewport()
	v.Pan(30, -20)

	p := v.ToSurface(geom.Point{X: 0, Y: 0})
	assert.Equal(t, geom.Point{X: 30, Y: -20}, p)

	// Non-finite deltas are discarded.
	v.Pan(math.NaN(), 5)
	assert.Equal(t, 30.0, v.OffsetX)
	assert.Equal(t, -20.0, v.OffsetY)
}

func TestZoomKeepsPivotStationary(t *testing.T) {
	v := NewViewport()
	v.OffsetX = 100
	v.OffsetY = 50

	pivot := geom.Point{X: 400, Y: 300}
	before := v.ToDocument(pivot)

	v.ZoomBy(2.5, pivot)
	after := v.ToDocument(pivot)

	require.InDelta(t, before.X, after.X, 1e-9)
	require.InDelta(t, before.Y, after.Y, 1e-9)
	assert.InDelta(t, 2.5, v.Zoom, 1e-9)
}

func TestZoomClamps(t *testing.T) {
	v := NewViewport()
	v.SetZoom(1000, geom.Point{})
	assert.Equal(t, MaxZoom, v.Zoom)

	v.SetZoom(1e-9, geom.Point{})
	assert.Equal(t, MinZoom, v.Zoom)
}

func TestZoomRejectsBadInput(t *testing.T) {
	v := NewViewport()
	v.ZoomBy(math.NaN(), geom.Point{})
	v.ZoomBy(math.Inf(1), geom.Point{})
	v.ZoomBy(-2, geom.Point{})
	v.SetZoom(math.NaN(), geom.Point{})

	assert.Equal(t, 1.0, v.Zoom)
	assert.Equal(t, 0.0, v.OffsetX)

	// A pivot that would blow up the offset discards the whole update,
	// zoom included.
	v.SetZoom(2, geom.Point{X: math.Inf(1), Y: 0})
	assert.Equal(t, 1.0, v.Zoom)
	assert.Equal(t, 0.0, v.OffsetX)
}

func TestRectToSurface(t *testing.T) {
	v := NewViewport()
	v.Zoom = 2
	v.OffsetX = 10
	v.OffsetY = 20

	r := v.RectToSurface(geom.Rect{X: 5, Y: 5, Width: 50, Height: 25})
	assert.Equal(t, geom.Rect{X: 20, Y: 30, Width: 100, Height: 50}, r)
}

func TestVisibleRect(t *testing.T) {
	v := NewViewport()
	v.Zoom = 2
	v.OffsetX = -100
	v.OffsetY = -200

	r := v.VisibleRect(800, 600)
	assert.InDelta(t, 50.0, r.X, 1e-9)
	assert.InDelta(t, 100.0, r.Y, 1e-9)
	assert.InDelta(t, 400.0, r.Width, 1e-9)
	assert.InDelta(t, 300.0, r.Height, 1e-9)
}

func TestViewportMatrixMatchesConversion(t *testing.T) {
	v := NewViewport()
	v.Zoom = 3
	v.OffsetX = 7
	v.OffsetY = -9

	p := geom.Point{X: 11, Y: 13}
	viaMatrix := v.Matrix().TransformPoint(p)
	direct := v.ToSurface(p)

	assert.InDelta(t, direct.X, viaMatrix.X, 1e-9)
	assert.InDelta(t, direct.Y, viaMatrix.Y, 1e-9)
}
