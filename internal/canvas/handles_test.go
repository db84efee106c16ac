package canvas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
)

func handleTestBoard(t *testing.T) *board.Board {
	t.Helper()
	b := board.New("board_h", "h")
	require.NoError(t, b.Add(&board.Entity{ID: "ent_a", Kind: board.KindImage, X: 100, Y: 100, Width: 200, Height: 100}))
	require.NoError(t, b.Add(&board.Entity{ID: "ent_b", Kind: board.KindImage, X: 400, Y: 300, Width: 120, Height: 80}))
	return b
}

func TestHandlesEmptySelection(t *testing.T) {
	b := handleTestBoard(t)
	sel := NewSelection()

	d := NewHandleDetector()
	assert.Nil(t, d.Handles(b, sel, NewViewport()))
	assert.Nil(t, d.HitTest(geom.Point{X: 300, Y: 200}, b, sel, NewViewport()))
}

func TestSingleSelectionHandlePositions(t *testing.T) {
	b := handleTestBoard(t)
	sel := NewSelection()
	sel.Add("ent_a")

	d := NewHandleDetector()
	handles := d.Handles(b, sel, NewViewport())
	require.Len(t, handles, 2)

	// Unrotated at zoom 1: resize on the raw bottom-right corner, rotate
	// further out along the center-to-corner diagonal.
	var resize, rotate Handle
	for _, h := range handles {
		switch h.Kind {
		case HandleResize:
			resize = h
		case HandleRotate:
			rotate = h
		}
	}
	assert.Equal(t, geom.Point{X: 300, Y: 200}, resize.Pos)
	assert.Greater(t, rotate.Pos.X, resize.Pos.X)
	assert.Greater(t, rotate.Pos.Y, resize.Pos.Y)

	dx := rotate.Pos.X - resize.Pos.X
	dy := rotate.Pos.Y - resize.Pos.Y
	assert.InDelta(t, d.RotateOffset*d.RotateOffset, dx*dx+dy*dy, 1e-6)
}

func TestHandlesFollowRotation(t *testing.T) {
	b := board.New("board_h", "h")
	require.NoError(t, b.Add(&board.Entity{ID: "ent_r", Kind: board.KindImage, X: 100, Y: 100, Width: 200, Height: 100, Rotation: 90}))
	sel := NewSelection()
	sel.Add("ent_r")

	d := NewHandleDetector()
	handles := d.Handles(b, sel, NewViewport())
	require.Len(t, handles, 2)

	// Center (200, 150); the bottom-right corner (300, 200) rotates to
	// (150, 250).
	for _, h := range handles {
		if h.Kind == HandleResize {
			assert.InDelta(t, 150.0, h.Pos.X, 1e-9)
			assert.InDelta(t, 250.0, h.Pos.Y, 1e-9)
		}
	}
}

func TestHandlePositionsScaleWithViewport(t *testing.T) {
	b := handleTestBoard(t)
	sel := NewSelection()
	sel.Add("ent_a")

	vp := NewViewport()
	vp.Zoom = 2
	vp.OffsetX = 50

	d := NewHandleDetector()
	handles := d.Handles(b, sel, vp)
	require.Len(t, handles, 2)

	for _, h := range handles {
		if h.Kind == HandleResize {
			assert.Equal(t, geom.Point{X: 650, Y: 400}, h.Pos)
		}
	}
}

func TestHandleSuppressionWhenTiny(t *testing.T) {
	b := handleTestBoard(t)
	sel := NewSelection()
	sel.Add("ent_a")

	vp := NewViewport()
	vp.Zoom = 0.1 // 100px tall entity renders at 10px

	d := NewHandleDetector()
	assert.Empty(t, d.Handles(b, sel, vp))

	vp.Zoom = 0.5 // 50px on the small side, above the cutoff
	assert.Len(t, d.Handles(b, sel, vp), 2)
}

func TestMultiSelectionAddsBoundsHandles(t *testing.T) {
	b := handleTestBoard(t)
	sel := NewSelection()
	sel.Set([]string{"ent_a", "ent_b"})

	d := NewHandleDetector()
	handles := d.Handles(b, sel, NewViewport())
	// Bounds pair + one pair per entity.
	require.Len(t, handles, 6)

	assert.Empty(t, handles[0].EntityID)
	assert.Empty(t, handles[1].EntityID)
	assert.Equal(t, HandleRotate, handles[0].Kind)
	assert.Equal(t, HandleResize, handles[1].Kind)

	// Bounds run (100,100) to (520,380).
	assert.Equal(t, geom.Point{X: 520, Y: 380}, handles[1].Pos)
}

func TestHitTestPriority(t *testing.T) {
	b := handleTestBoard(t)
	sel := NewSelection()
	sel.Add("ent_a")

	d := NewHandleDetector()
	vp := NewViewport()

	// Resize handle center.
	hit := d.HitTest(geom.Point{X: 300, Y: 200}, b, sel, vp)
	require.NotNil(t, hit)
	assert.Equal(t, HandleResize, hit.Kind)
	assert.Equal(t, "ent_a", hit.EntityID)

	// Within radius of both the resize and rotate handles: rotate wins.
	// Rotate sits 26px out along the diagonal from (300, 200); 13px along
	// the same diagonal is 13 from each center.
	between := geom.Point{X: 300 + 13/math.Sqrt2, Y: 200 + 13/math.Sqrt2}
	hit = d.HitTest(between, b, sel, vp)
	require.NotNil(t, hit)
	assert.Equal(t, HandleRotate, hit.Kind)

	// Far away misses.
	assert.Nil(t, d.HitTest(geom.Point{X: 0, Y: 0}, b, sel, vp))
}

func TestHitTestJustOutsideRadius(t *testing.T) {
	b := handleTestBoard(t)
	sel := NewSelection()
	sel.Add("ent_a")

	d := NewHandleDetector()
	vp := NewViewport()

	hit := d.HitTest(geom.Point{X: 300 + d.HitRadius + 0.5, Y: 200}, b, sel, vp)
	// That point is outside the resize radius and not near the rotate
	// handle's diagonal position.
	assert.Nil(t, hit)
}
