package board

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftboard/driftboard/internal/geom"
)

func newTestEntity(id string, x, y, w, h float64) *Entity {
	return &Entity{ID: id, Kind: KindImage, X: x, Y: y, Width: w, Height: h}
}

func TestAddAndOrder(t *testing.T) {
	b := New("board_test", "test")

	require.NoError(t, b.Add(newTestEntity("ent_a", 0, 0, 100, 100)))
	require.NoError(t, b.Add(newTestEntity("ent_b", 50, 50, 100, 100)))

	list := b.List()
	require.Len(t, list, 2)
	assert.Equal(t, "ent_a", list[0].ID)
	assert.Equal(t, "ent_b", list[1].ID)
}

func TestAddRejectsDuplicatesAndUnknownKinds(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(newTestEntity("ent_a", 0, 0, 100, 100)))

	assert.Error(t, b.Add(newTestEntity("ent_a", 0, 0, 100, 100)))
	assert.Error(t, b.Add(&Entity{ID: "ent_x", Kind: "blob", Width: 100, Height: 100}))
	assert.Error(t, b.Add(&Entity{Kind: KindImage, Width: 100, Height: 100}))
}

func TestAddClampsGeometry(t *testing.T) {
	b := New("board_test", "test")
	e := &Entity{ID: "ent_tiny", Kind: KindText, Width: 3, Height: -20, Rotation: 450}
	require.NoError(t, b.Add(e))

	assert.Equal(t, MinEntitySize, e.Width)
	assert.Equal(t, MinEntitySize, e.Height)
	assert.Equal(t, 90.0, e.Rotation)
}

func TestInsertAtIndex(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(newTestEntity("ent_a", 0, 0, 100, 100)))
	require.NoError(t, b.Add(newTestEntity("ent_c", 0, 0, 100, 100)))
	require.NoError(t, b.Insert(newTestEntity("ent_b", 0, 0, 100, 100), 1))

	assert.Equal(t, 0, b.IndexOf("ent_a"))
	assert.Equal(t, 1, b.IndexOf("ent_b"))
	assert.Equal(t, 2, b.IndexOf("ent_c"))
}

func TestReorder(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(newTestEntity("ent_a", 0, 0, 100, 100)))
	require.NoError(t, b.Add(newTestEntity("ent_b", 0, 0, 100, 100)))
	require.NoError(t, b.Add(newTestEntity("ent_c", 0, 0, 100, 100)))

	assert.True(t, b.BringToFront("ent_a"))
	assert.Equal(t, 2, b.IndexOf("ent_a"))

	assert.True(t, b.SendToBack("ent_c"))
	assert.Equal(t, 0, b.IndexOf("ent_c"))

	assert.False(t, b.MoveToIndex("ent_missing", 0))
}

func TestRemoveReleasesGroupChildren(t *testing.T) {
	b := New("board_test", "test")
	child := newTestEntity("ent_child", 0, 0, 100, 100)
	child.Group = "ent_group"
	require.NoError(t, b.Add(child))
	require.NoError(t, b.Add(&Entity{
		ID: "ent_group", Kind: KindGroup, Width: 200, Height: 200,
		Children: []string{"ent_child"},
	}))

	removed := b.Remove("ent_group")
	require.NotNil(t, removed)
	assert.Empty(t, child.Group)
	assert.Equal(t, 1, b.Len())

	assert.Nil(t, b.Remove("ent_group"))
}

func TestEntityAtIsTopmostFirst(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(newTestEntity("ent_under", 0, 0, 200, 200)))
	require.NoError(t, b.Add(newTestEntity("ent_over", 50, 50, 200, 200)))

	hit := b.EntityAt(geom.Point{X: 100, Y: 100})
	require.NotNil(t, hit)
	assert.Equal(t, "ent_over", hit.ID)

	hit = b.EntityAt(geom.Point{X: 10, Y: 10})
	require.NotNil(t, hit)
	assert.Equal(t, "ent_under", hit.ID)

	assert.Nil(t, b.EntityAt(geom.Point{X: 999, Y: 999}))
}

func TestEntityAtRespectsRotation(t *testing.T) {
	b := New("board_test", "test")
	e := newTestEntity("ent_rot", 100, 100, 200, 50)
	e.Rotation = 90
	require.NoError(t, b.Add(e))

	// After a 90 degree turn around the center (200, 125), the long axis
	// runs vertically: x in [175, 225], y in [25, 225].
	assert.NotNil(t, b.EntityAt(geom.Point{X: 200, Y: 40}))
	assert.Nil(t, b.EntityAt(geom.Point{X: 110, Y: 110}))
}

func TestTopLevelResolvesGroup(t *testing.T) {
	b := New("board_test", "test")
	child := newTestEntity("ent_child", 0, 0, 100, 100)
	require.NoError(t, b.Add(child))
	require.NoError(t, b.Add(&Entity{ID: "ent_group", Kind: KindGroup, Width: 100, Height: 100}))
	require.NoError(t, b.AttachToGroup("ent_group", []string{"ent_child"}))

	g := b.TopLevel(child)
	assert.Equal(t, "ent_group", g.ID)

	solo := newTestEntity("ent_solo", 0, 0, 100, 100)
	require.NoError(t, b.Add(solo))
	assert.Equal(t, solo, b.TopLevel(solo))
}

func TestAttachToGroupRejectsNestedGroups(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(&Entity{ID: "ent_g1", Kind: KindGroup, Width: 100, Height: 100}))
	require.NoError(t, b.Add(&Entity{ID: "ent_g2", Kind: KindGroup, Width: 100, Height: 100}))

	err := b.AttachToGroup("ent_g1", []string{"ent_g2"})
	assert.ErrorContains(t, err, "cannot contain group")
}

func TestAttachToGroupRejectsDoubleMembership(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(newTestEntity("ent_a", 0, 0, 100, 100)))
	require.NoError(t, b.Add(&Entity{ID: "ent_g1", Kind: KindGroup, Width: 100, Height: 100}))
	require.NoError(t, b.Add(&Entity{ID: "ent_g2", Kind: KindGroup, Width: 100, Height: 100}))

	require.NoError(t, b.AttachToGroup("ent_g1", []string{"ent_a"}))
	assert.Error(t, b.AttachToGroup("ent_g2", []string{"ent_a"}))
}

func TestDetachGroup(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(newTestEntity("ent_a", 0, 0, 100, 100)))
	require.NoError(t, b.Add(newTestEntity("ent_b", 0, 0, 100, 100)))
	require.NoError(t, b.Add(&Entity{ID: "ent_g", Kind: KindGroup, Width: 100, Height: 100}))
	require.NoError(t, b.AttachToGroup("ent_g", []string{"ent_a", "ent_b"}))

	released := b.DetachGroup("ent_g")
	assert.ElementsMatch(t, []string{"ent_a", "ent_b"}, released)

	a, _ := b.ByID("ent_a")
	assert.Empty(t, a.Group)
	g, _ := b.ByID("ent_g")
	assert.Empty(t, g.Children)
}

func TestReplaceIDPreservesLinksAndOrder(t *testing.T) {
	b := New("board_test", "test")
	require.NoError(t, b.Add(newTestEntity("ent_bottom", 0, 0, 100, 100)))
	draft := newTestEntity("draft_new", 0, 0, 100, 100)
	draft.Draft = true
	require.NoError(t, b.Add(draft))
	require.NoError(t, b.Add(newTestEntity("ent_top", 0, 0, 100, 100)))
	require.NoError(t, b.Add(&Entity{ID: "ent_g", Kind: KindGroup, Width: 100, Height: 100}))
	require.NoError(t, b.AttachToGroup("ent_g", []string{"draft_new"}))

	require.True(t, b.ReplaceID("draft_new", "ent_real"))

	_, gone := b.ByID("draft_new")
	assert.False(t, gone)
	e, ok := b.ByID("ent_real")
	require.True(t, ok)
	assert.Equal(t, 1, b.IndexOf("ent_real"))
	assert.Equal(t, "ent_g", e.Group)

	g, _ := b.ByID("ent_g")
	assert.Contains(t, g.Children, "ent_real")
	assert.NotContains(t, g.Children, "draft_new")

	// Replacing onto a taken id fails and changes nothing.
	assert.False(t, b.ReplaceID("ent_real", "ent_top"))
	assert.False(t, b.ReplaceID("ent_missing", "ent_whatever"))
}

func TestJSONRoundTrip(t *testing.T) {
	b := NewSampleBoard("board_sample")

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var back Board
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, b.ID(), back.ID())
	assert.Equal(t, b.Name(), back.Name())
	require.Equal(t, b.Len(), back.Len())
	for i, e := range b.List() {
		assert.Equal(t, e.ID, back.List()[i].ID)
	}
}

func TestUnmarshalRejectsDuplicateIDs(t *testing.T) {
	raw := `{"id": "board_x", "name": "x", "entities": [
		{"id": "ent_a", "kind": "image", "width": 100, "height": 100},
		{"id": "ent_a", "kind": "image", "width": 100, "height": 100}
	]}`
	var b Board
	assert.Error(t, json.Unmarshal([]byte(raw), &b))
}

func TestCloneIsDeep(t *testing.T) {
	b := New("board_test", "test")
	e := newTestEntity("ent_a", 10, 10, 100, 100)
	e.Meta = json.RawMessage(`{"url": "x"}`)
	require.NoError(t, b.Add(e))

	cp := b.Clone()
	ce, ok := cp.ByID("ent_a")
	require.True(t, ok)

	ce.X = 999
	ce.Meta[2] = 'z'

	assert.Equal(t, 10.0, e.X)
	assert.Equal(t, json.RawMessage(`{"url": "x"}`), e.Meta)
}
