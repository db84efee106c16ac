package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
)

func TestSelectionOrderAndDedup(t *testing.T) {
	s := NewSelection()
	s.Add("ent_a")
	s.Add("ent_b")
	s.Add("ent_a")

	assert.Equal(t, []string{"ent_a", "ent_b"}, s.IDs())
	assert.Equal(t, 2, s.Len())

	s.Set([]string{"ent_c", "ent_a", "ent_c"})
	assert.Equal(t, []string{"ent_c", "ent_a"}, s.IDs())
}

func TestSelectionToggleAndRemove(t *testing.T) {
	s := NewSelection()
	s.Toggle("ent_a")
	assert.True(t, s.Contains("ent_a"))

	s.Toggle("ent_a")
	assert.False(t, s.Contains("ent_a"))

	s.Add("ent_b")
	s.Remove("ent_missing")
	assert.Equal(t, []string{"ent_b"}, s.IDs())
}

func TestSelectionObservers(t *testing.T) {
	s := NewSelection()
	fired := 0
	s.Observe(func() { fired++ })

	s.Add("ent_a")
	s.Add("ent_a") // already present, no change
	s.Remove("ent_a")
	s.Clear() // already empty, no change
	s.Set([]string{"ent_b"})
	s.Set([]string{"ent_b"}) // same membership, no change

	assert.Equal(t, 3, fired)
}

func TestSelectionReplaceIDKeepsPositionSilently(t *testing.T) {
	s := NewSelection()
	s.Set([]string{"ent_a", "draft_x", "ent_c"})

	fired := 0
	s.Observe(func() { fired++ })

	s.ReplaceID("draft_x", "ent_b")
	assert.Equal(t, []string{"ent_a", "ent_b", "ent_c"}, s.IDs())
	assert.True(t, s.Contains("ent_b"))
	assert.False(t, s.Contains("draft_x"))
	assert.Zero(t, fired)

	// Replacing onto an existing member is refused.
	s.ReplaceID("ent_a", "ent_c")
	assert.Equal(t, []string{"ent_a", "ent_b", "ent_c"}, s.IDs())
}

func TestSelectionBoundsUnionAndCache(t *testing.T) {
	b := board.New("board_t", "t")
	require.NoError(t, b.Add(&board.Entity{ID: "ent_a", Kind: board.KindImage, X: 0, Y: 0, Width: 100, Height: 50}))
	require.NoError(t, b.Add(&board.Entity{ID: "ent_b", Kind: board.KindImage, X: 200, Y: 100, Width: 50, Height: 50, Rotation: 45}))

	s := NewSelection()
	s.Set([]string{"ent_a", "ent_b"})

	// Unrotated rects only; ent_b's rotation is ignored.
	got := s.Bounds(b)
	assert.Equal(t, geom.Rect{X: 0, Y: 0, Width: 250, Height: 150}, got)

	// Mutate geometry behind the cache; stale until invalidated.
	e, _ := b.ByID("ent_b")
	e.X = 500
	assert.Equal(t, got, s.Bounds(b))

	s.InvalidateBounds()
	assert.Equal(t, geom.Rect{X: 0, Y: 0, Width: 550, Height: 150}, s.Bounds(b))
}

func TestSelectionBoundsSkipsMissing(t *testing.T) {
	b := board.New("board_t", "t")
	require.NoError(t, b.Add(&board.Entity{ID: "ent_a", Kind: board.KindImage, X: 10, Y: 10, Width: 100, Height: 100}))

	s := NewSelection()
	s.Set([]string{"ent_a", "ent_gone"})

	assert.Equal(t, geom.Rect{X: 10, Y: 10, Width: 100, Height: 100}, s.Bounds(b))
}

func TestSelectionPrune(t *testing.T) {
	b := board.New("board_t", "t")
	require.NoError(t, b.Add(&board.Entity{ID: "ent_a", Kind: board.KindImage, Width: 100, Height: 100}))

	s := NewSelection()
	s.Set([]string{"ent_a", "ent_gone"})

	fired := 0
	s.Observe(func() { fired++ })

	s.Prune(b)
	assert.Equal(t, []string{"ent_a"}, s.IDs())
	assert.Equal(t, 1, fired)

	s.Prune(b) // nothing to drop
	assert.Equal(t, 1, fired)
}
