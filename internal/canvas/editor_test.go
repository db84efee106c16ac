package canvas

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
)

func TestCreateEntityCommitsAndSelects(t *testing.T) {
	ed := gestureFixture(t)

	id, err := ed.CreateEntity(board.KindText, geom.Point{X: 10, Y: 20}, 200, 100, json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "draft_"))

	e, ok := ed.Board().ByID(id)
	require.True(t, ok)
	assert.Equal(t, 10.0, e.X)
	assert.Equal(t, 20.0, e.Y)
	assert.Equal(t, 2.0, e.Aspect)
	assert.False(t, e.Draft, "offline boards confirm immediately")
	assert.Equal(t, []string{id}, ed.Selection().IDs())

	require.True(t, ed.Pipeline().Undo())
	_, ok = ed.Board().ByID(id)
	assert.False(t, ok)
}

func TestCreateEntityRefusedMidGesture(t *testing.T) {
	ed := gestureFixture(t)

	press(ed, 150, 150, 0)
	_, err := ed.CreateEntity(board.KindText, geom.Point{}, 100, 100, nil)
	require.Error(t, err)
	release(ed, 150, 150, 0)
}

func TestGroupUngroupRoundTrip(t *testing.T) {
	ed := gestureFixture(t)
	ed.Selection().Set([]string{"ent_a", "ent_b"})

	require.NoError(t, ed.GroupSelection())

	sel := ed.Selection().IDs()
	require.Len(t, sel, 1)
	g, ok := ed.Board().ByID(sel[0])
	require.True(t, ok)
	assert.Equal(t, board.KindGroup, g.Kind)
	assert.ElementsMatch(t, []string{"ent_a", "ent_b"}, g.Children)

	// Group frame spans the members.
	assert.Equal(t, 100.0, g.X)
	assert.Equal(t, 100.0, g.Y)
	assert.Equal(t, 420.0, g.Width)
	assert.Equal(t, 280.0, g.Height)

	ea, _ := ed.Board().ByID("ent_a")
	assert.Equal(t, g.ID, ea.Group)

	ed.UngroupSelection()
	assert.ElementsMatch(t, []string{"ent_a", "ent_b"}, ed.Selection().IDs())
	_, ok = ed.Board().ByID(g.ID)
	assert.False(t, ok)
	ea, _ = ed.Board().ByID("ent_a")
	assert.Empty(t, ea.Group)

	// Undo restores the group with its members attached.
	require.True(t, ed.Pipeline().Undo())
	regrouped, ok := ed.Board().ByID(g.ID)
	require.True(t, ok)
	assert.Equal(t, board.KindGroup, regrouped.Kind)
	ea, _ = ed.Board().ByID("ent_a")
	assert.Equal(t, g.ID, ea.Group)
}

func TestGroupSelectionRefusesNesting(t *testing.T) {
	ed := gestureFixture(t)
	ed.Selection().Set([]string{"ent_a", "ent_b"})
	require.NoError(t, ed.GroupSelection())

	gid := ed.Selection().IDs()[0]
	ed.Selection().Set([]string{gid, "ent_a"})
	assert.Error(t, ed.GroupSelection())
}

func TestGroupSelectionNeedsTwo(t *testing.T) {
	ed := gestureFixture(t)
	ed.Selection().Set([]string{"ent_a"})
	assert.Error(t, ed.GroupSelection())
}

func TestDuplicateSelection(t *testing.T) {
	ed := gestureFixture(t)
	ed.Selection().Set([]string{"ent_a"})

	ed.DuplicateSelection()

	require.Equal(t, 3, ed.Board().Len())
	sel := ed.Selection().IDs()
	require.Len(t, sel, 1)
	require.NotEqual(t, "ent_a", sel[0])

	clone, ok := ed.Board().ByID(sel[0])
	require.True(t, ok)
	assert.Equal(t, 124.0, clone.X)
	assert.Equal(t, 124.0, clone.Y)
	assert.Equal(t, board.KindImage, clone.Kind)
}

func TestReorderSelection(t *testing.T) {
	b := board.New("board_z", "z")
	for _, id := range []string{"ent_1", "ent_2", "ent_3"} {
		require.NoError(t, b.Add(&board.Entity{ID: id, Kind: board.KindImage, X: 0, Y: 0, Width: 50, Height: 50}))
	}
	ed := NewEditor(testLogger(), b, nil)

	listIDs := func() []string {
		var ids []string
		for _, e := range b.List() {
			ids = append(ids, e.ID)
		}
		return ids
	}

	ed.Selection().Set([]string{"ent_1", "ent_3"})
	ed.BringSelectionToFront()
	assert.Equal(t, []string{"ent_2", "ent_1", "ent_3"}, listIDs())

	require.True(t, ed.Pipeline().Undo())
	assert.Equal(t, []string{"ent_1", "ent_2", "ent_3"}, listIDs())

	ed.Selection().Set([]string{"ent_3"})
	ed.SendSelectionToBack()
	assert.Equal(t, []string{"ent_3", "ent_1", "ent_2"}, listIDs())
}

func TestSetEntityMetaUndo(t *testing.T) {
	ed := gestureFixture(t)

	meta := json.RawMessage(`{"src":"photo.jpg"}`)
	require.NoError(t, ed.SetEntityMeta("ent_a", meta))

	e, _ := ed.Board().ByID("ent_a")
	assert.JSONEq(t, `{"src":"photo.jpg"}`, string(e.Meta))

	require.True(t, ed.Pipeline().Undo())
	assert.Empty(t, e.Meta)

	assert.Error(t, ed.SetEntityMeta("ent_missing", meta))
}

func TestRenameBoardUndo(t *testing.T) {
	ed := gestureFixture(t)

	require.NoError(t, ed.RenameBoard("launch plan"))
	assert.Equal(t, "launch plan", ed.Board().Name())

	require.True(t, ed.Pipeline().Undo())
	assert.Equal(t, "g", ed.Board().Name())

	// Renaming to the current name records nothing.
	require.NoError(t, ed.RenameBoard("g"))
	assert.False(t, ed.Pipeline().CanUndo())
}

func TestTickClearsDirtyFlag(t *testing.T) {
	ed := gestureFixture(t)

	// Construction leaves no repaint owed.
	ed.Tick()
	assert.False(t, ed.Tick())

	ed.MarkDirty()
	assert.True(t, ed.Tick())
	assert.False(t, ed.Tick())
}

func TestSceneState(t *testing.T) {
	ed := gestureFixture(t)
	ed.Selection().Add("ent_a")
	ed.Viewport().Pan(5, 7)

	scene := ed.Scene()
	assert.Equal(t, "board_g", scene.BoardID)
	assert.Equal(t, StateIdle, scene.State)
	assert.Equal(t, 1.0, scene.Zoom)
	assert.Equal(t, 5.0, scene.OffsetX)
	require.Len(t, scene.Entities, 2)

	// Bottom to top, flagged with selection state.
	assert.Equal(t, "ent_a", scene.Entities[0].ID)
	assert.True(t, scene.Entities[0].Selected)
	assert.False(t, scene.Entities[1].Selected)

	// Unrotated entity at zoom 1: the matrix is a plain translation by the
	// panned document position.
	assert.Equal(t, []float64{1, 0, 0, 1, 105, 107}, scene.Entities[0].Matrix)

	assert.Len(t, scene.Handles, 2)
	assert.Nil(t, scene.Band)
	assert.False(t, scene.CanUndo)
	assert.Zero(t, scene.Pending)
}
