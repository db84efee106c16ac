//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"syscall/js"
	"time"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/canvas"
	"github.com/driftboard/driftboard/internal/collab"
	"github.com/driftboard/driftboard/internal/geom"
)

var (
	editor  *canvas.Editor
	session *collab.Session

	// presenceHandler is the JS callback invoked on remote presence changes.
	presenceHandler js.Value = js.Undefined()
)

func main() {
	// Create the engine API object
	driftboardEngine := js.Global().Get("Object").New()

	// --- Board lifecycle ---
	driftboardEngine.Set("loadBoard", js.FuncOf(loadBoard))
	driftboardEngine.Set("loadSampleBoard", js.FuncOf(loadSampleBoard))
	driftboardEngine.Set("connect", js.FuncOf(connect))
	driftboardEngine.Set("disconnect", js.FuncOf(disconnect))

	// --- Input (frontend → engine) ---
	driftboardEngine.Set("pointerDown", js.FuncOf(pointerDown))
	driftboardEngine.Set("pointerMove", js.FuncOf(pointerMove))
	driftboardEngine.Set("pointerUp", js.FuncOf(pointerUp))
	driftboardEngine.Set("wheel", js.FuncOf(wheel))
	driftboardEngine.Set("keyDown", js.FuncOf(keyDown))
	driftboardEngine.Set("tick", js.FuncOf(tick))

	// --- Edit operations ---
	driftboardEngine.Set("createEntity", js.FuncOf(createEntity))
	driftboardEngine.Set("deleteSelection", js.FuncOf(deleteSelection))
	driftboardEngine.Set("groupSelection", js.FuncOf(groupSelection))
	driftboardEngine.Set("ungroupSelection", js.FuncOf(ungroupSelection))
	driftboardEngine.Set("duplicateSelection", js.FuncOf(duplicateSelection))
	driftboardEngine.Set("bringToFront", js.FuncOf(bringToFront))
	driftboardEngine.Set("sendToBack", js.FuncOf(sendToBack))
	driftboardEngine.Set("setEntityMeta", js.FuncOf(setEntityMeta))
	driftboardEngine.Set("renameBoard", js.FuncOf(renameBoard))
	driftboardEngine.Set("undo", js.FuncOf(undo))
	driftboardEngine.Set("redo", js.FuncOf(redo))

	// --- Queries (frontend ← engine) ---
	driftboardEngine.Set("getScene", js.FuncOf(getScene))
	driftboardEngine.Set("getSelection", js.FuncOf(getSelection))
	driftboardEngine.Set("setSelection", js.FuncOf(setSelection))

	// --- Presence ---
	driftboardEngine.Set("publishPresence", js.FuncOf(publishPresence))
	driftboardEngine.Set("setPresenceHandler", js.FuncOf(setPresenceHandler))

	// Register on global scope
	js.Global().Set("driftboardEngine", driftboardEngine)

	// Signal that WASM is ready
	js.Global().Set("driftboardWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

// --- Board lifecycle ---

func loadBoard(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(map[string]interface{}{"error": "missing board JSON"})
	}

	var b board.Board
	if err := json.Unmarshal([]byte(args[0].String()), &b); err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}

	closeSession()
	editor = canvas.NewEditor(slog.Default(), &b, nil)
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func loadSampleBoard(this js.Value, args []js.Value) interface{} {
	boardID := "board_sample"
	if len(args) > 0 && args[0].Type() == js.TypeString {
		boardID = args[0].String()
	}

	closeSession()
	editor = canvas.NewEditor(slog.Default(), board.NewSampleBoard(boardID), nil)
	return js.ValueOf(map[string]interface{}{"ok": true})
}

// connect joins a live board over websocket. The third argument is a
// callback invoked with {ok} or {error} once the initial sync lands.
func connect(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return js.ValueOf(map[string]interface{}{"error": "need url, boardId, callback"})
	}
	url := args[0].String()
	boardID := args[1].String()
	onReady := args[2]

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		s, err := collab.Dial(ctx, url, boardID)
		if err != nil {
			onReady.Invoke(map[string]interface{}{"error": err.Error()})
			return
		}

		b, _, err := s.AwaitBoard(ctx)
		if err != nil {
			s.Close()
			onReady.Invoke(map[string]interface{}{"error": err.Error()})
			return
		}

		closeSession()
		session = s
		editor = canvas.NewEditor(slog.Default(), b, s)

		onReady.Invoke(map[string]interface{}{"ok": true, "clientId": s.ClientID()})
	}()

	return nil
}

func disconnect(this js.Value, args []js.Value) interface{} {
	closeSession()
	return nil
}

func closeSession() {
	if session != nil {
		session.Close()
		session = nil
	}
}

// --- Input handlers ---

func pointerEventFromArgs(args []js.Value) canvas.PointerEvent {
	ev := canvas.PointerEvent{}
	if len(args) >= 2 {
		ev.Pos.X = args[0].Float()
		ev.Pos.Y = args[1].Float()
	}
	if len(args) >= 3 {
		ev.Button = canvas.PointerButton(args[2].Int())
	}
	if len(args) >= 4 {
		ev.Mods = canvas.Modifiers(args[3].Int())
	}
	return ev
}

func pointerDown(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return nil
	}
	editor.PointerDown(pointerEventFromArgs(args))
	return nil
}

func pointerMove(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return nil
	}
	editor.PointerMove(pointerEventFromArgs(args))
	return nil
}

func pointerUp(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return nil
	}
	editor.PointerUp(pointerEventFromArgs(args))
	return nil
}

func wheel(this js.Value, args []js.Value) interface{} {
	if editor == nil || len(args) < 4 {
		return nil
	}
	ev := canvas.WheelEvent{
		DeltaX: args[2].Float(),
		DeltaY: args[3].Float(),
	}
	ev.Pos.X = args[0].Float()
	ev.Pos.Y = args[1].Float()
	if len(args) >= 5 {
		ev.Mods = canvas.Modifiers(args[4].Int())
	}
	editor.Wheel(ev)
	return nil
}

func keyDown(this js.Value, args []js.Value) interface{} {
	if editor == nil || len(args) < 1 {
		return nil
	}
	ev := canvas.KeyEvent{Key: args[0].String()}
	if len(args) >= 2 {
		ev.Mods = canvas.Modifiers(args[1].Int())
	}
	editor.KeyDown(ev)
	return nil
}

func tick(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return js.ValueOf(false)
	}
	drainSession()
	return js.ValueOf(editor.Tick())
}

// drainSession pulls buffered remote events into the editor. Runs on the
// frame tick so everything stays on the engine thread.
func drainSession() {
	if session == nil {
		return
	}
	for {
		select {
		case cmd, ok := <-session.RemoteOps():
			if !ok {
				return
			}
			editor.Pipeline().EnqueueRemote(cmd)
		case ev, ok := <-session.Resyncs():
			if !ok {
				return
			}
			editor = canvas.NewEditor(slog.Default(), ev.Board, session)
		case ev, ok := <-session.Presence():
			if !ok {
				return
			}
			forwardPresence(ev)
		default:
			return
		}
	}
}

func forwardPresence(ev collab.PresenceEvent) {
	if presenceHandler.Type() != js.TypeFunction {
		return
	}
	if ev.Payload == nil {
		presenceHandler.Invoke(ev.UserID, js.Null())
		return
	}
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return
	}
	presenceHandler.Invoke(ev.UserID, string(data))
}

// --- Edit operations ---

func createEntity(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return js.ValueOf(map[string]interface{}{"error": "no board loaded"})
	}
	if len(args) < 5 {
		return js.ValueOf(map[string]interface{}{"error": "need kind, x, y, width, height"})
	}

	var meta json.RawMessage
	if len(args) >= 6 && args[5].Type() == js.TypeString {
		meta = json.RawMessage(args[5].String())
	}

	id, err := editor.CreateEntity(
		board.Kind(args[0].String()),
		geom.Point{X: args[1].Float(), Y: args[2].Float()},
		args[3].Float(),
		args[4].Float(),
		meta,
	)
	if err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}
	return js.ValueOf(map[string]interface{}{"ok": true, "id": id})
}

func deleteSelection(this js.Value, args []js.Value) interface{} {
	if editor != nil {
		editor.DeleteSelection()
	}
	return nil
}

func groupSelection(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return nil
	}
	if err := editor.GroupSelection(); err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func ungroupSelection(this js.Value, args []js.Value) interface{} {
	if editor != nil {
		editor.UngroupSelection()
	}
	return nil
}

func duplicateSelection(this js.Value, args []js.Value) interface{} {
	if editor != nil {
		editor.DuplicateSelection()
	}
	return nil
}

func bringToFront(this js.Value, args []js.Value) interface{} {
	if editor != nil {
		editor.BringSelectionToFront()
	}
	return nil
}

func sendToBack(this js.Value, args []js.Value) interface{} {
	if editor != nil {
		editor.SendSelectionToBack()
	}
	return nil
}

func setEntityMeta(this js.Value, args []js.Value) interface{} {
	if editor == nil || len(args) < 2 {
		return js.ValueOf(map[string]interface{}{"error": "need id and meta JSON"})
	}
	err := editor.SetEntityMeta(args[0].String(), json.RawMessage(args[1].String()))
	if err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func renameBoard(this js.Value, args []js.Value) interface{} {
	if editor == nil || len(args) < 1 {
		return nil
	}
	if err := editor.RenameBoard(args[0].String()); err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func undo(this js.Value, args []js.Value) interface{} {
	if editor != nil {
		editor.Pipeline().Undo()
	}
	return nil
}

func redo(this js.Value, args []js.Value) interface{} {
	if editor != nil {
		editor.Pipeline().Redo()
	}
	return nil
}

// --- Queries ---

func getScene(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return js.ValueOf("{}")
	}
	data, err := json.Marshal(editor.Scene())
	if err != nil {
		return js.ValueOf("{}")
	}
	return js.ValueOf(string(data))
}

func getSelection(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return js.ValueOf("[]")
	}
	data, err := json.Marshal(editor.Selection().IDs())
	if err != nil {
		return js.ValueOf("[]")
	}
	return js.ValueOf(string(data))
}

func setSelection(this js.Value, args []js.Value) interface{} {
	if editor == nil {
		return nil
	}
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		editor.Selection().Clear()
		return nil
	}

	arr := args[0]
	length := arr.Length()
	ids := make([]string, length)
	for i := 0; i < length; i++ {
		ids[i] = arr.Index(i).String()
	}
	editor.Selection().Set(ids)
	return nil
}

// --- Presence ---

func publishPresence(this js.Value, args []js.Value) interface{} {
	if session == nil || editor == nil || len(args) < 2 {
		return nil
	}
	cursor := &collab.CursorPos{X: args[0].Float(), Y: args[1].Float()}
	session.PublishPresence(cursor, editor.Selection().IDs())
	return nil
}

func setPresenceHandler(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		presenceHandler = js.Undefined()
		return nil
	}
	presenceHandler = args[0]
	return nil
}
