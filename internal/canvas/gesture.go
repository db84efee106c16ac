package canvas

import (
	"math"

	"github.com/samber/lo"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/geom"
	"github.com/driftboard/driftboard/internal/typeid"
)

// InteractionState names what the active gesture is doing. Exactly one
// gesture runs at a time; every pointer-up lands back in StateIdle.
type InteractionState string

const (
	StateIdle          InteractionState = "idle"
	StatePanning       InteractionState = "panning"
	StateDragging      InteractionState = "dragging"
	StateResizing      InteractionState = "resizing"
	StateRotating      InteractionState = "rotating"
	StateRubberBanding InteractionState = "rubberBanding"
	StateAligning      InteractionState = "aligning"
)

// interaction is the arena for one gesture: everything captured at
// pointer-down that per-frame math derives from. It is rebuilt on every
// gesture start and zeroed on pointer-up.
type interaction struct {
	state InteractionState

	startSurface geom.Point
	lastSurface  geom.Point
	startDoc     geom.Point

	// captured holds the placements of every affected entity at gesture
	// start, in a stable order.
	captured map[string]Placement
	order    []string

	bounds geom.Rect // selection bounds at gesture start
	driver string    // entity whose handle drives the gesture, "" for the bounds pair

	pivot      geom.Point // rotation pivot
	startAngle float64    // pointer angle around the pivot at gesture start

	base       []string  // rubber band: prior selection kept under additive mode
	band       geom.Rect // current band in document space
	banding    bool      // band has a nonzero extent
	duplicated bool      // drag started by duplicating the selection
}

// State returns the current interaction state.
func (ed *Editor) State() InteractionState { return ed.interaction.state }

// BandRect returns the rubber band in surface coordinates and whether one
// is active.
func (ed *Editor) BandRect() (geom.Rect, bool) {
	if ed.interaction.state != StateRubberBanding || !ed.interaction.banding {
		return geom.Rect{}, false
	}
	return ed.viewport.RectToSurface(ed.interaction.band), true
}

// PointerDown starts a gesture. Disambiguation runs in fixed priority
// order: pan trigger, duplicate drag, rotate handle, resize handle, entity
// body, align gesture, rubber band. Input while a gesture is already
// running is ignored.
func (ed *Editor) PointerDown(ev PointerEvent) {
	if ed.interaction.state != StateIdle {
		return
	}
	docPos := ed.viewport.ToDocument(ev.Pos)

	if ed.isPanTrigger(ev) {
		ed.begin(StatePanning, ev, docPos)
		return
	}
	if ev.Button != ButtonPrimary {
		return
	}
	if ev.Mods.Has(ModAlt) {
		if ed.startDuplicateDrag(ev, docPos) {
			return
		}
		// Alt over empty space falls through to the marquee.
	}
	if h := ed.detector.HitTest(ev.Pos, ed.board, ed.selection, ed.viewport); h != nil {
		if h.Kind == HandleRotate {
			ed.startRotate(ev, docPos, h)
		} else {
			ed.startResize(ev, docPos, h)
		}
		return
	}
	if hit := ed.board.EntityAt(docPos); hit != nil {
		ed.startBodyDrag(ev, docPos, ed.board.TopLevel(hit))
		return
	}
	if ev.Mods.Has(ModMeta) {
		ed.begin(StateAligning, ev, docPos)
		return
	}
	ed.startRubberBand(ev, docPos)
}

// isPanTrigger recognizes the pan gesture: secondary or middle button,
// held space bar, or ctrl with the primary button.
func (ed *Editor) isPanTrigger(ev PointerEvent) bool {
	if ev.Button == ButtonSecondary || ev.Button == ButtonAuxiliary {
		return true
	}
	if ev.Button != ButtonPrimary {
		return false
	}
	return ed.spaceHeld || ev.Mods.Has(ModCtrl)
}

// begin seeds the interaction arena common to all gestures.
func (ed *Editor) begin(state InteractionState, ev PointerEvent, docPos geom.Point) {
	ed.interaction = interaction{
		state:        state,
		startSurface: ev.Pos,
		lastSurface:  ev.Pos,
		startDoc:     docPos,
	}
}

// capture snapshots the placements of the given entities plus the members
// of any group among them.
func (ed *Editor) capture(ids []string) {
	ia := &ed.interaction
	ia.captured = make(map[string]Placement)
	for _, id := range ids {
		e, ok := ed.board.ByID(id)
		if !ok {
			continue
		}
		if _, dup := ia.captured[id]; !dup {
			ia.captured[id] = PlacementOf(e)
			ia.order = append(ia.order, id)
		}
		if e.Kind == board.KindGroup {
			for _, m := range ed.board.Members(id) {
				if _, dup := ia.captured[m.ID]; !dup {
					ia.captured[m.ID] = PlacementOf(m)
					ia.order = append(ia.order, m.ID)
				}
			}
		}
	}
	ia.bounds = ed.selection.Bounds(ed.board)
}

func (ed *Editor) startBodyDrag(ev PointerEvent, docPos geom.Point, hit *board.Entity) {
	if ev.Mods.Has(ModShift) {
		ed.selection.Toggle(hit.ID)
		if !ed.selection.Contains(hit.ID) {
			// Shift-click deselected it; the gesture is spent.
			return
		}
	} else if !ed.selection.Contains(hit.ID) {
		ed.selection.Set([]string{hit.ID})
	}

	if !ed.pipeline.Begin() {
		return
	}
	ed.begin(StateDragging, ev, docPos)
	ed.capture(ed.selection.IDs())
}

// startDuplicateDrag clones the drag set and drags the clones. Returns
// false when no entity is under the pointer.
func (ed *Editor) startDuplicateDrag(ev PointerEvent, docPos geom.Point) bool {
	hit := ed.board.EntityAt(docPos)
	if hit == nil {
		return false
	}
	top := ed.board.TopLevel(hit)
	if !ed.selection.Contains(top.ID) {
		ed.selection.Set([]string{top.ID})
	}
	if !ed.pipeline.Begin() {
		return true
	}

	clones := ed.cloneEntities(ed.selection.IDs(), geom.Point{})
	tops := make([]string, 0, len(clones))
	for _, c := range clones {
		if err := ed.board.Add(c); err != nil {
			ed.log.Warn("duplicate add failed", "entity", c.ID, "error", err)
			continue
		}
		if c.Group == "" {
			tops = append(tops, c.ID)
		}
	}
	ed.selection.Set(tops)

	ed.begin(StateDragging, ev, docPos)
	ed.interaction.duplicated = true
	ed.capture(tops)
	ed.MarkDirty()
	return true
}

// cloneEntities deep-copies the given top-level entities (expanding group
// members) under fresh draft ids, offset by delta. Clones come back in
// z-order.
func (ed *Editor) cloneEntities(ids []string, delta geom.Point) []*board.Entity {
	idMap := make(map[string]string)
	var sources []*board.Entity
	for _, id := range ids {
		e, ok := ed.board.ByID(id)
		if !ok {
			continue
		}
		sources = append(sources, e)
		idMap[e.ID] = typeid.NewDraftID()
		if e.Kind == board.KindGroup {
			for _, m := range ed.board.Members(e.ID) {
				sources = append(sources, m)
				idMap[m.ID] = typeid.NewDraftID()
			}
		}
	}

	// Preserve relative stacking among the sources.
	sources = lo.UniqBy(sources, func(e *board.Entity) string { return e.ID })
	slicesSortByZ(ed.board, sources)

	clones := make([]*board.Entity, 0, len(sources))
	for _, src := range sources {
		c := src.Clone()
		c.ID = idMap[src.ID]
		c.Draft = true
		c.X += delta.X
		c.Y += delta.Y
		if mapped, ok := idMap[c.Group]; ok {
			c.Group = mapped
		}
		for i, child := range c.Children {
			if mapped, ok := idMap[child]; ok {
				c.Children[i] = mapped
			}
		}
		clones = append(clones, c)
	}
	return clones
}

func slicesSortByZ(b *board.Board, entities []*board.Entity) {
	idx := make(map[string]int, len(entities))
	for _, e := range entities {
		idx[e.ID] = b.IndexOf(e.ID)
	}
	for i := 1; i < len(entities); i++ {
		for j := i; j > 0 && idx[entities[j-1].ID] > idx[entities[j].ID]; j-- {
			entities[j-1], entities[j] = entities[j], entities[j-1]
		}
	}
}

func (ed *Editor) startResize(ev PointerEvent, docPos geom.Point, h *Handle) {
	if !ed.pipeline.Begin() {
		return
	}
	ed.begin(StateResizing, ev, docPos)
	ed.interaction.driver = h.EntityID
	ed.capture(ed.selection.IDs())
}

func (ed *Editor) startRotate(ev PointerEvent, docPos geom.Point, h *Handle) {
	if !ed.pipeline.Begin() {
		return
	}
	ed.begin(StateRotating, ev, docPos)
	ia := &ed.interaction
	ia.driver = h.EntityID
	ed.capture(ed.selection.IDs())

	if ed.selection.Len() == 1 && ia.driver != "" {
		ia.pivot = ia.captured[ia.driver].Center()
	} else {
		ia.pivot = ia.bounds.Center()
	}
	ia.startAngle = PointerAngle(ia.pivot, docPos)
}

func (ed *Editor) startRubberBand(ev PointerEvent, docPos geom.Point) {
	ed.begin(StateRubberBanding, ev, docPos)
	if ev.Mods.Has(ModShift) {
		ed.interaction.base = ed.selection.IDs()
	} else {
		ed.selection.Clear()
	}
}

// PointerMove advances the active gesture. Every frame derives from the
// gesture-start captures; panning alone integrates last-position deltas.
func (ed *Editor) PointerMove(ev PointerEvent) {
	ia := &ed.interaction
	docPos := ed.viewport.ToDocument(ev.Pos)

	switch ia.state {
	case StateIdle, StateAligning:
		return

	case StatePanning:
		ed.viewport.Pan(ev.Pos.X-ia.lastSurface.X, ev.Pos.Y-ia.lastSurface.Y)
		ia.lastSurface = ev.Pos
		ed.MarkDirty()

	case StateDragging:
		delta := docPos.Sub(ia.startDoc)
		ed.eachCaptured(func(e *board.Entity, start Placement) Placement {
			return MoveBy(start, delta)
		})

	case StateResizing:
		ed.applyResize(docPos, ev.Mods.Has(ModShift))

	case StateRotating:
		ed.applyRotate(docPos, ev.Mods.Has(ModShift))

	case StateRubberBanding:
		ia.band = geom.FromCorners(ia.startDoc, docPos)
		ia.banding = ia.band.Width > 0 || ia.band.Height > 0
		ed.MarkDirty()
	}
	ia.lastSurface = ev.Pos
}

// eachCaptured rewrites every captured entity from its start placement and
// invalidates dependent caches.
func (ed *Editor) eachCaptured(fn func(e *board.Entity, start Placement) Placement) {
	ia := &ed.interaction
	for _, id := range ia.order {
		e, ok := ed.board.ByID(id)
		if !ok {
			continue
		}
		fn(e, ia.captured[id]).Apply(e)
	}
	ed.selection.InvalidateBounds()
	ed.MarkDirty()
}

func (ed *Editor) applyResize(docPos geom.Point, lockOrUniform bool) {
	ia := &ed.interaction
	if ia.driver != "" {
		start, ok := ia.captured[ia.driver]
		if !ok {
			return
		}
		e, ok := ed.board.ByID(ia.driver)
		if !ok {
			return
		}
		resized := ResizeSingle(start, docPos, e.AspectRatio(), lockOrUniform)
		fw := resized.Width / start.Width
		fh := resized.Height / start.Height
		ed.eachCaptured(func(e *board.Entity, s Placement) Placement {
			if e.ID == ia.driver {
				return resized
			}
			return ApplyFactors(s, fw, fh)
		})
		return
	}

	sx, sy := ScaleFactors(ia.bounds, docPos, lockOrUniform)
	origin := geom.Point{X: ia.bounds.X, Y: ia.bounds.Y}
	ed.eachCaptured(func(_ *board.Entity, s Placement) Placement {
		return ScaleAboutOrigin(s, origin, sx, sy)
	})
}

func (ed *Editor) applyRotate(docPos geom.Point, snap bool) {
	ia := &ed.interaction
	rawDelta := PointerAngle(ia.pivot, docPos) - ia.startAngle

	if ed.selection.Len() == 1 && ia.driver != "" {
		// Single selection spins in place; snapping locks the final angle.
		primary := ia.captured[ia.driver]
		spun := RotateSpin(primary, rawDelta, snap)
		eff := signedAngleDiff(spun.Rotation, primary.Rotation)
		ed.eachCaptured(func(e *board.Entity, s Placement) Placement {
			if e.ID == ia.driver {
				return spun
			}
			// Group members orbit the group's center by the same delta.
			return RotateOrbit(s, ia.pivot, eff, false)
		})
		return
	}

	// Multi-selection orbits the captured bounds center rigidly; snapping
	// locks the shared delta.
	ed.eachCaptured(func(_ *board.Entity, s Placement) Placement {
		return RotateOrbit(s, ia.pivot, rawDelta, snap)
	})
}

// signedAngleDiff returns a-b wrapped into (-180, 180].
func signedAngleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}

// PointerUp ends the gesture: terminal states emit at most one command
// through the pipeline, and the machine returns to idle. Gestures that
// changed nothing emit nothing, except duplication, which always commits
// its creations.
func (ed *Editor) PointerUp(ev PointerEvent) {
	ia := &ed.interaction
	docPos := ed.viewport.ToDocument(ev.Pos)

	switch ia.state {
	case StateIdle:
		return

	case StatePanning:
		// Viewport state is per-user and never a command.

	case StateDragging:
		ed.finishDrag()

	case StateResizing:
		ed.finishPlacementGesture(CmdResize)

	case StateRotating:
		ed.finishPlacementGesture(CmdRotate)

	case StateRubberBanding:
		ed.resolveBand()

	case StateAligning:
		if ed.AlignRequested != nil {
			ed.AlignRequested(docPos)
		}
	}

	ed.interaction = interaction{state: StateIdle}
	ed.MarkDirty()
}

// placementChanges collects before/after pairs for captured entities whose
// placement moved.
func (ed *Editor) placementChanges() []PlacementChange {
	ia := &ed.interaction
	var changes []PlacementChange
	for _, id := range ia.order {
		e, ok := ed.board.ByID(id)
		if !ok {
			continue
		}
		after := PlacementOf(e)
		if before := ia.captured[id]; before != after {
			changes = append(changes, PlacementChange{EntityID: id, Before: before, After: after})
		}
	}
	return changes
}

func (ed *Editor) finishDrag() {
	ia := &ed.interaction

	if ia.duplicated {
		// Creation always commits, moved or not.
		var created []EntitySnapshot
		for _, id := range ia.order {
			e, ok := ed.board.ByID(id)
			if !ok {
				continue
			}
			created = append(created, EntitySnapshot{Entity: e.Clone(), ZIndex: ed.board.IndexOf(id)})
		}
		if len(created) == 0 {
			ed.pipeline.End(nil)
			return
		}
		sortSnapshotsByZ(created)
		ed.pipeline.End(&Command{
			ID:      typeid.NewOpID(),
			Kind:    CmdCreate,
			BoardID: ed.board.ID(),
			Created: created,
		})
		return
	}

	changes := ed.placementChanges()
	if len(changes) == 0 {
		ed.pipeline.End(nil)
		return
	}
	ed.pipeline.End(&Command{
		ID:      typeid.NewOpID(),
		Kind:    CmdMove,
		BoardID: ed.board.ID(),
		Changes: changes,
	})
}

func (ed *Editor) finishPlacementGesture(kind CommandKind) {
	changes := ed.placementChanges()
	if len(changes) == 0 {
		ed.pipeline.End(nil)
		return
	}
	ed.pipeline.End(&Command{
		ID:      typeid.NewOpID(),
		Kind:    kind,
		BoardID: ed.board.ID(),
		Changes: changes,
	})
}

// resolveBand settles the marquee selection once, at gesture end: an
// entity joins when its unrotated rect overlaps the band, members joining
// as their group.
func (ed *Editor) resolveBand() {
	ia := &ed.interaction
	ids := append([]string(nil), ia.base...)
	if ia.banding {
		for _, e := range ed.board.List() {
			if !e.Rect().Intersects(ia.band) {
				continue
			}
			top := ed.board.TopLevel(e)
			ids = append(ids, top.ID)
		}
	}
	ed.selection.Set(lo.Uniq(ids))
}

func sortSnapshotsByZ(snaps []EntitySnapshot) {
	for i := 1; i < len(snaps); i++ {
		for j := i; j > 0 && snaps[j-1].ZIndex > snaps[j].ZIndex; j-- {
			snaps[j-1], snaps[j] = snaps[j], snaps[j-1]
		}
	}
}

// Wheel pans the view, or zooms toward the pointer while ctrl or meta is
// held (pinch gestures arrive that way from browsers).
func (ed *Editor) Wheel(ev WheelEvent) {
	if ev.Mods.HasAny(ModCtrl | ModMeta) {
		ed.viewport.ZoomBy(math.Exp(-ev.DeltaY*0.0015), ev.Pos)
	} else {
		ed.viewport.Pan(-ev.DeltaX, -ev.DeltaY)
	}
	ed.MarkDirty()
}

// KeyDown handles the editor's keyboard surface: space pan mode, delete,
// undo/redo, nudging, escape.
func (ed *Editor) KeyDown(ev KeyEvent) {
	switch ev.Key {
	case " ":
		ed.spaceHeld = true
	case "Delete", "Backspace":
		if ed.interaction.state == StateIdle {
			ed.DeleteSelection()
		}
	case "Escape":
		if ed.interaction.state == StateIdle {
			ed.selection.Clear()
		}
	case "z", "Z":
		if !ev.Mods.HasAny(ModCtrl | ModMeta) {
			return
		}
		if ev.Mods.Has(ModShift) {
			ed.pipeline.Redo()
		} else {
			ed.pipeline.Undo()
		}
	case "y", "Y":
		if ev.Mods.HasAny(ModCtrl | ModMeta) {
			ed.pipeline.Redo()
		}
	case "ArrowLeft":
		ed.nudgeSelection(geom.Point{X: -ed.nudgeStep(ev.Mods)})
	case "ArrowRight":
		ed.nudgeSelection(geom.Point{X: ed.nudgeStep(ev.Mods)})
	case "ArrowUp":
		ed.nudgeSelection(geom.Point{Y: -ed.nudgeStep(ev.Mods)})
	case "ArrowDown":
		ed.nudgeSelection(geom.Point{Y: ed.nudgeStep(ev.Mods)})
	}
}

// KeyUp releases the space pan mode.
func (ed *Editor) KeyUp(ev KeyEvent) {
	if ev.Key == " " {
		ed.spaceHeld = false
	}
}

func (ed *Editor) nudgeStep(mods Modifiers) float64 {
	if mods.Has(ModShift) {
		return 10
	}
	return 1
}
