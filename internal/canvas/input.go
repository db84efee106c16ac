package canvas

import "github.com/driftboard/driftboard/internal/geom"

// PointerButton follows the browser convention: 0 primary, 1 auxiliary,
// 2 secondary. Hosts pass the value straight through.
type PointerButton int

const (
	ButtonPrimary   PointerButton = 0
	ButtonAuxiliary PointerButton = 1
	ButtonSecondary PointerButton = 2
)

// Modifiers is the set of modifier keys held during an input event.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Has reports whether all the given modifier bits are set.
func (m Modifiers) Has(f Modifiers) bool { return m&f == f }

// HasAny reports whether any of the given modifier bits are set.
func (m Modifiers) HasAny(f Modifiers) bool { return m&f != 0 }

// PointerEvent is a pointer transition in surface coordinates.
type PointerEvent struct {
	Pos    geom.Point
	Button PointerButton
	Mods   Modifiers
}

// WheelEvent is scroll or pinch input in surface coordinates.
type WheelEvent struct {
	Pos    geom.Point
	DeltaX float64
	DeltaY float64
	Mods   Modifiers
}

// KeyEvent carries a key name as the host reports it ("z", "Delete",
// " ", "ArrowLeft").
type KeyEvent struct {
	Key  string
	Mods Modifiers
}
