package canvas

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
	"github.com/driftboard/driftboard/internal/typeid"
)

// Editor is the interactive transform engine for one board: it owns the
// board, the selection, the viewport, the handle detector, the command
// pipeline, and the single active gesture. Everything runs on one thread;
// hosts feed input events in and pump Tick once per frame.
type Editor struct {
	log       *slog.Logger
	board     *board.Board
	selection *Selection
	viewport  *Viewport
	detector  *HandleDetector
	pipeline  *Pipeline

	interaction interaction
	spaceHeld   bool

	dirty bool

	// OnDirty, when set, fires every time the scene needs repainting.
	// Rendering stays outside; this is the only signal the editor sends.
	OnDirty func()

	// AlignRequested fires when an align gesture completes, with the
	// document-space point it ended on. The editor itself never aligns.
	AlignRequested func(doc geom.Point)
}

// NewEditor builds an editor around a board. The authority may be nil for
// boards edited offline.
func NewEditor(log *slog.Logger, b *board.Board, authority Authority) *Editor {
	sel := NewSelection()
	ed := &Editor{
		log:       log,
		board:     b,
		selection: sel,
		viewport:  NewViewport(),
		detector:  NewHandleDetector(),
		pipeline:  NewPipeline(log, b, sel, authority),
	}
	ed.interaction.state = StateIdle
	ed.pipeline.OnApplied = ed.MarkDirty
	sel.Observe(ed.MarkDirty)
	return ed
}

func (ed *Editor) Board() *board.Board { return ed.board }

func (ed *Editor) Selection() *Selection { return ed.selection }

func (ed *Editor) Viewport() *Viewport { return ed.viewport }

func (ed *Editor) Detector() *HandleDetector { return ed.detector }

func (ed *Editor) Pipeline() *Pipeline { return ed.pipeline }

// MarkDirty flags the scene for repaint and notifies the host.
func (ed *Editor) MarkDirty() {
	ed.dirty = true
	if ed.OnDirty != nil {
		ed.OnDirty()
	}
}

// Tick reconciles pending sync results and reports whether the scene needs
// repainting, clearing the flag. Hosts call it once per frame.
func (ed *Editor) Tick() bool {
	if ed.pipeline.Reconcile() {
		ed.dirty = true
	}
	wasDirty := ed.dirty
	ed.dirty = false
	return wasDirty
}

// CreateEntity places a new entity at a document position and commits the
// creation. Used by hosts for media drops and text insertion. The entity
// arrives as a draft and is confirmed by the authority like any other
// creation.
func (ed *Editor) CreateEntity(kind board.Kind, pos geom.Point, w, h float64, meta json.RawMessage) (string, error) {
	if ed.interaction.state != StateIdle {
		return "", fmt.Errorf("gesture in progress")
	}
	e := &board.Entity{
		ID:     typeid.NewDraftID(),
		Kind:   kind,
		X:      pos.X,
		Y:      pos.Y,
		Width:  w,
		Height: h,
		Meta:   meta,
		Draft:  true,
	}
	if h > 0 {
		e.Aspect = w / h
	}
	cmd := &Command{
		ID:      typeid.NewOpID(),
		Kind:    CmdCreate,
		BoardID: ed.board.ID(),
		Created: []EntitySnapshot{{Entity: e, ZIndex: ed.board.Len()}},
	}
	if err := ed.pipeline.Execute(cmd); err != nil {
		return "", err
	}
	live, _ := ed.board.ByID(e.ID)
	if live != nil {
		ed.selection.Set([]string{live.ID})
	}
	return e.ID, nil
}

// DeleteSelection removes the selected entities, taking group members down
// with their group.
func (ed *Editor) DeleteSelection() {
	if ed.selection.IsEmpty() {
		return
	}
	var removed []EntitySnapshot
	for _, id := range ed.selection.IDs() {
		e, ok := ed.board.ByID(id)
		if !ok {
			continue
		}
		removed = append(removed, EntitySnapshot{Entity: e.Clone(), ZIndex: ed.board.IndexOf(id)})
		if e.Kind == board.KindGroup {
			for _, m := range ed.board.Members(id) {
				removed = append(removed, EntitySnapshot{Entity: m.Clone(), ZIndex: ed.board.IndexOf(m.ID)})
			}
		}
	}
	if len(removed) == 0 {
		return
	}
	sortSnapshotsByZ(removed)
	cmd := &Command{
		ID:      typeid.NewOpID(),
		Kind:    CmdDelete,
		BoardID: ed.board.ID(),
		Removed: removed,
	}
	if err := ed.pipeline.Execute(cmd); err != nil {
		ed.log.Warn("delete failed", "error", err)
		return
	}
	ed.selection.Clear()
}

// GroupSelection wraps the selected entities in a new group sized to their
// bounds. Groups never nest, so a selection containing a group is refused.
func (ed *Editor) GroupSelection() error {
	ids := ed.selection.IDs()
	if len(ids) < 2 {
		return fmt.Errorf("grouping needs at least two entities")
	}
	for _, id := range ids {
		if e, ok := ed.board.ByID(id); ok && e.Kind == board.KindGroup {
			return fmt.Errorf("group %q cannot be nested", id)
		}
	}
	bounds := ed.selection.Bounds(ed.board)
	g := &board.Entity{
		ID:       typeid.NewDraftID(),
		Kind:     board.KindGroup,
		X:        bounds.X,
		Y:        bounds.Y,
		Width:    bounds.Width,
		Height:   bounds.Height,
		Children: ids,
		Draft:    true,
	}
	cmd := &Command{
		ID:        typeid.NewOpID(),
		Kind:      CmdGroup,
		BoardID:   ed.board.ID(),
		Created:   []EntitySnapshot{{Entity: g, ZIndex: ed.board.Len()}},
		MemberIDs: ids,
	}
	if err := ed.pipeline.Execute(cmd); err != nil {
		return err
	}
	ed.selection.Set([]string{g.ID})
	return nil
}

// UngroupSelection dissolves every selected group and selects the released
// members.
func (ed *Editor) UngroupSelection() {
	var next []string
	for _, id := range ed.selection.IDs() {
		e, ok := ed.board.ByID(id)
		if !ok {
			continue
		}
		if e.Kind != board.KindGroup {
			next = append(next, id)
			continue
		}
		members := append([]string(nil), e.Children...)
		cmd := &Command{
			ID:        typeid.NewOpID(),
			Kind:      CmdUngroup,
			BoardID:   ed.board.ID(),
			Removed:   []EntitySnapshot{{Entity: e.Clone(), ZIndex: ed.board.IndexOf(id)}},
			MemberIDs: members,
		}
		if err := ed.pipeline.Execute(cmd); err != nil {
			ed.log.Warn("ungroup failed", "group", id, "error", err)
			next = append(next, id)
			continue
		}
		next = append(next, members...)
	}
	ed.selection.Set(lo.Uniq(next))
}

// DuplicateSelection clones the selection in place with a small offset and
// selects the clones. The gesture-free sibling of alt-drag duplication.
func (ed *Editor) DuplicateSelection() {
	ids := ed.selection.IDs()
	if len(ids) == 0 {
		return
	}
	clones := ed.cloneEntities(ids, geom.Point{X: 24, Y: 24})
	if len(clones) == 0 {
		return
	}
	var created []EntitySnapshot
	z := ed.board.Len()
	for _, c := range clones {
		created = append(created, EntitySnapshot{Entity: c, ZIndex: z})
		z++
	}
	cmd := &Command{
		ID:      typeid.NewOpID(),
		Kind:    CmdCreate,
		BoardID: ed.board.ID(),
		Created: created,
	}
	if err := ed.pipeline.Execute(cmd); err != nil {
		ed.log.Warn("duplicate failed", "error", err)
		return
	}
	tops := lo.FilterMap(clones, func(e *board.Entity, _ int) (string, bool) {
		return e.ID, e.Group == ""
	})
	ed.selection.Set(tops)
}

// BringSelectionToFront moves the selected entities to the top of the
// z-order, preserving their relative stacking.
func (ed *Editor) BringSelectionToFront() {
	ed.reorderSelection(true)
}

// SendSelectionToBack moves the selected entities to the bottom of the
// z-order, preserving their relative stacking.
func (ed *Editor) SendSelectionToBack() {
	ed.reorderSelection(false)
}

func (ed *Editor) reorderSelection(toFront bool) {
	if ed.selection.IsEmpty() {
		return
	}
	selected := make(map[string]struct{})
	for _, id := range ed.selection.IDs() {
		selected[id] = struct{}{}
	}

	before := lo.Map(ed.board.List(), func(e *board.Entity, _ int) string { return e.ID })
	var moved, kept []string
	for _, id := range before {
		if _, ok := selected[id]; ok {
			moved = append(moved, id)
		} else {
			kept = append(kept, id)
		}
	}
	var after []string
	if toFront {
		after = append(kept, moved...)
	} else {
		after = append(moved, kept...)
	}

	cmd := &Command{
		ID:          typeid.NewOpID(),
		Kind:        CmdReorder,
		BoardID:     ed.board.ID(),
		OrderBefore: before,
		OrderAfter:  after,
	}
	if err := ed.pipeline.Execute(cmd); err != nil {
		ed.log.Warn("reorder failed", "error", err)
	}
}

// SetEntityMeta replaces an entity's property bag.
func (ed *Editor) SetEntityMeta(id string, meta json.RawMessage) error {
	e, ok := ed.board.ByID(id)
	if !ok {
		return fmt.Errorf("entity %q not found", id)
	}
	cmd := &Command{
		ID:          typeid.NewOpID(),
		Kind:        CmdProps,
		BoardID:     ed.board.ID(),
		PropsID:     id,
		PropsBefore: append(json.RawMessage(nil), e.Meta...),
		PropsAfter:  meta,
	}
	return ed.pipeline.Execute(cmd)
}

// RenameBoard changes the board name through the pipeline.
func (ed *Editor) RenameBoard(name string) error {
	cmd := &Command{
		ID:         typeid.NewOpID(),
		Kind:       CmdRename,
		BoardID:    ed.board.ID(),
		NameBefore: ed.board.Name(),
		NameAfter:  name,
	}
	return ed.pipeline.Execute(cmd)
}

func (ed *Editor) nudgeSelection(delta geom.Point) {
	if ed.interaction.state != StateIdle || ed.selection.IsEmpty() {
		return
	}
	var changes []PlacementChange
	for _, id := range ed.selection.IDs() {
		e, ok := ed.board.ByID(id)
		if !ok {
			continue
		}
		before := PlacementOf(e)
		changes = append(changes, PlacementChange{EntityID: id, Before: before, After: MoveBy(before, delta)})
		if e.Kind == board.KindGroup {
			for _, m := range ed.board.Members(id) {
				mb := PlacementOf(m)
				changes = append(changes, PlacementChange{EntityID: m.ID, Before: mb, After: MoveBy(mb, delta)})
			}
		}
	}
	if len(changes) == 0 {
		return
	}
	cmd := &Command{
		ID:      typeid.NewOpID(),
		Kind:    CmdMove,
		BoardID: ed.board.ID(),
		Changes: changes,
	}
	if err := ed.pipeline.Execute(cmd); err != nil {
		ed.log.Warn("nudge failed", "error", err)
	}
}

// EntityView is one entity prepared for rendering: document geometry plus
// the composed local-to-surface matrix, so hosts can paint the entity's
// content in its own [0,w]x[0,h] frame.
type EntityView struct {
	ID       string          `json:"id"`
	Kind     board.Kind      `json:"kind"`
	Rect     geom.Rect       `json:"rect"`
	Rotation float64         `json:"rotation"`
	Selected bool            `json:"selected"`
	Draft    bool            `json:"draft,omitempty"`
	Meta     json.RawMessage `json:"meta,omitempty"`
	Matrix   []float64       `json:"matrix"`
}

// SceneState is the full render description a host pulls per frame.
type SceneState struct {
	BoardID   string           `json:"boardId"`
	BoardName string           `json:"boardName"`
	Zoom      float64          `json:"zoom"`
	OffsetX   float64          `json:"offsetX"`
	OffsetY   float64          `json:"offsetY"`
	State     InteractionState `json:"state"`
	Entities  []EntityView     `json:"entities"`
	Handles   []Handle         `json:"handles"`
	Band      *geom.Rect       `json:"band,omitempty"`
	CanUndo   bool             `json:"canUndo"`
	CanRedo   bool             `json:"canRedo"`
	Pending   int              `json:"pending"`
}

// Scene assembles the current render description: entities bottom to top
// with composed matrices, active handles, and the rubber band if one is
// out.
func (ed *Editor) Scene() SceneState {
	vpMatrix := ed.viewport.Matrix()
	entities := lo.Map(ed.board.List(), func(e *board.Entity, _ int) EntityView {
		local := geom.Compose(
			e.X+e.Width/2, e.Y+e.Height/2,
			1, 1,
			e.Rotation,
			e.Width/2, e.Height/2,
		)
		return EntityView{
			ID:       e.ID,
			Kind:     e.Kind,
			Rect:     e.Rect(),
			Rotation: e.Rotation,
			Selected: ed.selection.Contains(e.ID),
			Draft:    e.Draft,
			Meta:     e.Meta,
			Matrix:   vpMatrix.Multiply(local).ToSlice(),
		}
	})

	state := SceneState{
		BoardID:   ed.board.ID(),
		BoardName: ed.board.Name(),
		Zoom:      ed.viewport.Zoom,
		OffsetX:   ed.viewport.OffsetX,
		OffsetY:   ed.viewport.OffsetY,
		State:     ed.interaction.state,
		Entities:  entities,
		Handles:   ed.detector.Handles(ed.board, ed.selection, ed.viewport),
		CanUndo:   ed.pipeline.CanUndo(),
		CanRedo:   ed.pipeline.CanRedo(),
		Pending:   ed.pipeline.PendingCount(),
	}
	if band, ok := ed.BandRect(); ok {
		state.Band = &band
	}
	return state
}
