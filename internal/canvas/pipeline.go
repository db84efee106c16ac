package canvas

import (
	"fmt"
	"log/slog"

	"github.com/driftboard/driftboard/internal/board"
	"github.com/driftboard/driftboard/internal/typeid"
)

// MaxUndoDepth bounds the undo stack; the oldest entry falls off first.
const MaxUndoDepth = 100

// Result is the authority's verdict on a submitted command.
type Result struct {
	CommandID string
	Confirmed bool
	Reason    string
	ServerSeq int64
	// IDMap maps draft entity ids to the canonical ids the authority
	// assigned, on confirmed creations.
	IDMap map[string]string
}

// Authority accepts commands for authoritative ordering. Submit must not
// block; the result lands on the returned channel exactly once. A nil
// Authority puts the pipeline in local-only mode where every command
// confirms immediately.
type Authority interface {
	Submit(cmd *Command) <-chan Result
}

// Pipeline runs commands through optimistic local application and
// reconciles them against the authority: confirmed commands swap draft ids
// for canonical ones, rejected commands roll back and lose their undo
// entry. All methods must be called from the engine thread; authority
// results and remote ops are queued and drained by Reconcile.
type Pipeline struct {
	log       *slog.Logger
	board     *board.Board
	selection *Selection
	authority Authority

	undo []*Command
	redo []*Command

	pending map[string]*Command

	results chan Result
	remote  chan *Command

	txnActive bool

	// OnCommandFailed is invoked on the engine thread after a rollback.
	OnCommandFailed func(cmd *Command, reason string)
	// OnApplied is invoked after any command, local or remote, changes the
	// board. Hosts use it to schedule a repaint.
	OnApplied func()
}

// NewPipeline wires a pipeline to a board and selection. The authority may
// be nil for local-only boards.
func NewPipeline(log *slog.Logger, b *board.Board, sel *Selection, authority Authority) *Pipeline {
	return &Pipeline{
		log:       log,
		board:     b,
		selection: sel,
		authority: authority,
		pending:   make(map[string]*Command),
		results:   make(chan Result, 256),
		remote:    make(chan *Command, 256),
	}
}

// SetAuthority swaps the sync target. Pending commands keep their original
// futures; new commands go to the new authority.
func (p *Pipeline) SetAuthority(a Authority) {
	p.authority = a
}

// LocalOnly reports whether the pipeline runs without an authority.
func (p *Pipeline) LocalOnly() bool { return p.authority == nil }

// CanUndo reports whether the undo stack is non-empty.
func (p *Pipeline) CanUndo() bool { return len(p.undo) > 0 }

// CanRedo reports whether the redo stack is non-empty.
func (p *Pipeline) CanRedo() bool { return len(p.redo) > 0 }

// Begin opens the per-gesture transaction. Transactions do not nest: a
// second Begin is refused.
func (p *Pipeline) Begin() bool {
	if p.txnActive {
		p.log.Warn("transaction already active")
		return false
	}
	p.txnActive = true
	return true
}

// End closes the transaction and commits its command. The board already
// reflects the command's after-state from the live gesture, so the command
// is recorded and submitted without re-applying. A nil or no-op command
// commits nothing, except creations, which always commit.
func (p *Pipeline) End(cmd *Command) {
	if !p.txnActive {
		p.log.Warn("transaction not active")
		return
	}
	p.txnActive = false
	if cmd == nil {
		return
	}
	if cmd.Kind != CmdCreate && cmd.IsNoop() {
		return
	}
	p.record(cmd)
}

// InTransaction reports whether a gesture transaction is open.
func (p *Pipeline) InTransaction() bool { return p.txnActive }

// Execute applies a discrete command optimistically and submits it. The
// error reports a failed local apply; submission failures surface later
// through rollback.
func (p *Pipeline) Execute(cmd *Command) error {
	if cmd.IsNoop() && cmd.Kind != CmdCreate {
		return nil
	}
	if err := cmd.Apply(p.board); err != nil {
		return fmt.Errorf("apply %s: %w", cmd.Kind, err)
	}
	p.record(cmd)
	return nil
}

// record pushes the command onto the undo stack, clears redo, and submits.
func (p *Pipeline) record(cmd *Command) {
	p.undo = append(p.undo, cmd)
	if len(p.undo) > MaxUndoDepth {
		p.undo = p.undo[1:]
	}
	p.redo = nil
	p.afterBoardChange()
	p.submit(cmd)
}

// submit hands the command to the authority, or confirms it on the spot in
// local-only mode.
func (p *Pipeline) submit(cmd *Command) {
	if p.authority == nil {
		p.confirmLocal(cmd)
		return
	}
	p.pending[cmd.ID] = cmd
	future := p.authority.Submit(cmd)
	go func() {
		p.results <- <-future
	}()
}

// confirmLocal finalizes a command without an authority: drafts keep their
// ids and simply stop being drafts.
func (p *Pipeline) confirmLocal(cmd *Command) {
	for _, snap := range cmd.Created {
		if e, ok := p.board.ByID(snap.Entity.ID); ok {
			e.Draft = false
		}
		snap.Entity.Draft = false
	}
}

// Undo reverts the most recent command and resubmits the reverted state as
// a fresh command. The selection is cleared. Returns false when there was
// nothing to undo.
func (p *Pipeline) Undo() bool {
	if p.txnActive || len(p.undo) == 0 {
		return false
	}
	cmd := p.undo[len(p.undo)-1]
	p.undo = p.undo[:len(p.undo)-1]

	inv := cmd.Invert()
	inv.ID = typeid.NewOpID()
	if err := inv.Apply(p.board); err != nil {
		// History diverged, usually under remote edits. Drop the entry.
		p.log.Warn("undo apply failed, dropping entry", "command", cmd.ID, "error", err)
		p.afterBoardChange()
		return false
	}
	p.redo = append(p.redo, cmd)
	p.selection.Clear()
	p.afterBoardChange()
	p.submit(inv)
	return true
}

// Redo reapplies the most recently undone command under a fresh id.
func (p *Pipeline) Redo() bool {
	if p.txnActive || len(p.redo) == 0 {
		return false
	}
	cmd := p.redo[len(p.redo)-1]
	p.redo = p.redo[:len(p.redo)-1]

	reissue := *cmd
	reissue.ID = typeid.NewOpID()
	if err := reissue.Apply(p.board); err != nil {
		p.log.Warn("redo apply failed, dropping entry", "command", cmd.ID, "error", err)
		p.afterBoardChange()
		return false
	}
	p.undo = append(p.undo, cmd)
	if len(p.undo) > MaxUndoDepth {
		p.undo = p.undo[1:]
	}
	p.selection.Clear()
	p.afterBoardChange()
	p.submit(&reissue)
	return true
}

// EnqueueRemote queues a broadcast op from another client. Safe to call
// from transport goroutines; the op is applied on the next Reconcile. A
// full queue drops the op, which the next board sync repairs.
func (p *Pipeline) EnqueueRemote(cmd *Command) {
	select {
	case p.remote <- cmd:
	default:
		p.log.Warn("remote op queue full, dropping", "command", cmd.ID)
	}
}

// Reconcile drains authority results and remote ops. Must run on the
// engine thread; hosts call it once per frame or after transport activity.
// Returns true when the board changed.
func (p *Pipeline) Reconcile() bool {
	changed := false
	for {
		select {
		case res := <-p.results:
			if p.resolve(res) {
				changed = true
			}
		case cmd := <-p.remote:
			if err := cmd.Apply(p.board); err != nil {
				p.log.Warn("remote op failed to apply", "command", cmd.ID, "error", err)
				continue
			}
			p.selection.Prune(p.board)
			changed = true
		default:
			if changed {
				p.afterBoardChange()
			}
			return changed
		}
	}
}

// resolve settles one pending command. Unknown or duplicate results are
// ignored.
func (p *Pipeline) resolve(res Result) bool {
	cmd, ok := p.pending[res.CommandID]
	if !ok {
		p.log.Debug("result for unknown command", "command", res.CommandID)
		return false
	}
	delete(p.pending, res.CommandID)

	if res.Confirmed {
		p.confirm(cmd, res)
		return len(res.IDMap) > 0
	}
	return p.rollback(cmd, res.Reason)
}

// confirm finalizes a confirmed command, swapping draft ids for the
// canonical ids the authority minted. The swap reaches the board, the
// selection, both history stacks, and every pending command so later
// results land on the right entities.
func (p *Pipeline) confirm(cmd *Command, res Result) {
	for oldID, newID := range res.IDMap {
		if !p.board.ReplaceID(oldID, newID) {
			p.log.Warn("confirmed id missing from board", "draft", oldID, "entity", newID)
		}
		p.selection.ReplaceID(oldID, newID)
		cmd.RewriteID(oldID, newID)
		for _, c := range p.undo {
			c.RewriteID(oldID, newID)
		}
		for _, c := range p.redo {
			c.RewriteID(oldID, newID)
		}
		for _, c := range p.pending {
			c.RewriteID(oldID, newID)
		}
	}
	for _, snap := range cmd.Created {
		if e, ok := p.board.ByID(snap.Entity.ID); ok {
			e.Draft = false
		}
		snap.Entity.Draft = false
	}
}

// rollback reverts a rejected command and strips it from history. A
// command still on the undo stack is inverted on the board; one already
// undone is only removed from redo, its effects being gone already. A
// command in neither stack (an undo/redo resubmission, or an entry that
// fell off the bounded stack) still has its board effect reverted, so the
// local board reconverges with the authority that refused it.
func (p *Pipeline) rollback(cmd *Command, reason string) bool {
	p.log.Warn("command rejected", "command", cmd.ID, "kind", cmd.Kind, "reason", reason)

	changed := false
	if idx := indexOfCommand(p.undo, cmd.ID); idx >= 0 {
		p.undo = append(p.undo[:idx], p.undo[idx+1:]...)
		changed = p.invertOnBoard(cmd)
	} else if idx := indexOfCommand(p.redo, cmd.ID); idx >= 0 {
		p.redo = append(p.redo[:idx], p.redo[idx+1:]...)
	} else {
		changed = p.invertOnBoard(cmd)
	}

	if p.OnCommandFailed != nil {
		p.OnCommandFailed(cmd, reason)
	}
	return changed
}

func (p *Pipeline) invertOnBoard(cmd *Command) bool {
	if err := cmd.Invert().Apply(p.board); err != nil {
		p.log.Warn("rollback apply failed", "command", cmd.ID, "error", err)
		return false
	}
	p.selection.Prune(p.board)
	return true
}

func (p *Pipeline) afterBoardChange() {
	p.selection.InvalidateBounds()
	if p.OnApplied != nil {
		p.OnApplied()
	}
}

func indexOfCommand(stack []*Command, id string) int {
	for i, c := range stack {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// PendingCount returns how many commands await an authority verdict.
func (p *Pipeline) PendingCount() int { return len(p.pending) }
