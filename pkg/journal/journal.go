// Package journal records committed workcell change sets and replays their
// inverses for undo and the originals for redo. Replays go through
// Workcell.Apply, so they are validated exactly like forward edits.
package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/chazu/workcell/pkg/logging"
	"github.com/chazu/workcell/pkg/workcell"
)

var (
	// ErrNothingToUndo is returned by Undo on an empty undo stack.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNothingToRedo is returned by Redo on an empty redo stack.
	ErrNothingToRedo = errors.New("nothing to redo")

	// ErrGroupOpen is returned when undo or redo is attempted inside Begin/End.
	ErrGroupOpen = errors.New("edit group is open")
)

// DefaultLimit is the undo depth used when Config.Limit is zero.
const DefaultLimit = 256

// Config configures a Journal.
type Config struct {
	// Limit caps the number of undo entries. Oldest entries are dropped
	// first. Negative means unlimited.
	Limit  int
	Logger logging.Logger
}

// Entry is one undoable step.
type Entry struct {
	Seq     uint64
	Label   string
	Changes workcell.ChangeSet
	At      time.Time
}

// Journal observes a workcell and keeps its undo and redo stacks. Like the
// workcell itself it must only be used from the single writer.
type Journal struct {
	w      *workcell.Workcell
	cfg    Config
	log    logging.Logger
	cancel func()

	undo []Entry
	redo []Entry
	seq  uint64

	replaying bool
	depth     int
	group     workcell.ChangeSet
	groupUsed bool
}

// New attaches a journal to w. Call Close to detach it.
func New(w *workcell.Workcell, cfg Config) *Journal {
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	j := &Journal{w: w, cfg: cfg, log: logging.OrNop(cfg.Logger)}
	j.cancel = w.Observe(j)
	return j
}

// Close stops recording.
func (j *Journal) Close() {
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
}

// Committed implements workcell.Observer.
func (j *Journal) Committed(_ *workcell.Workcell, cs workcell.ChangeSet) {
	if j.replaying {
		return
	}
	if j.depth > 0 {
		j.group = j.group.Merge(cs)
		j.groupUsed = true
		return
	}
	j.push(cs)
}

func (j *Journal) push(cs workcell.ChangeSet) {
	j.seq++
	j.undo = append(j.undo, Entry{Seq: j.seq, Label: cs.Label, Changes: cs, At: time.Now()})
	if n := j.cfg.Limit; n > 0 && len(j.undo) > n {
		j.undo = append([]Entry(nil), j.undo[len(j.undo)-n:]...)
	}
	if len(j.redo) > 0 {
		j.log.Debug("redo stack discarded", "entries", len(j.redo))
		j.redo = nil
	}
}

// Begin opens an edit group. Commits until the matching End are recorded
// as a single entry. Groups nest; only the outermost label is kept.
func (j *Journal) Begin(label string) {
	if j.depth == 0 {
		j.group = workcell.ChangeSet{Label: label}
		j.groupUsed = false
	}
	j.depth++
}

// End closes the innermost edit group.
func (j *Journal) End() {
	if j.depth == 0 {
		return
	}
	j.depth--
	if j.depth == 0 && j.groupUsed {
		j.push(j.group)
		j.group = workcell.ChangeSet{}
	}
}

// Undo reverts the most recent entry. If the workcell no longer matches the
// state the entry recorded, the entry and the redo stack are discarded and
// the error wraps workcell.ErrUndoPreconditionFailed.
func (j *Journal) Undo() error {
	if j.depth > 0 {
		return ErrGroupOpen
	}
	if len(j.undo) == 0 {
		return ErrNothingToUndo
	}
	e := j.undo[len(j.undo)-1]
	j.undo = j.undo[:len(j.undo)-1]

	if err := j.replay(e.Changes.Inverse()); err != nil {
		j.redo = nil
		j.log.Warn("undo failed, history discarded", "label", e.Label, "error", err)
		return fmt.Errorf("undo %q: %w", e.Label, precondition(err))
	}
	j.redo = append(j.redo, e)
	return nil
}

// Redo reapplies the most recently undone entry.
func (j *Journal) Redo() error {
	if j.depth > 0 {
		return ErrGroupOpen
	}
	if len(j.redo) == 0 {
		return ErrNothingToRedo
	}
	e := j.redo[len(j.redo)-1]
	j.redo = j.redo[:len(j.redo)-1]

	if err := j.replay(e.Changes); err != nil {
		j.redo = nil
		j.log.Warn("redo failed, redo history discarded", "label", e.Label, "error", err)
		return fmt.Errorf("redo %q: %w", e.Label, precondition(err))
	}
	j.undo = append(j.undo, e)
	return nil
}

func (j *Journal) replay(cs workcell.ChangeSet) error {
	j.replaying = true
	defer func() { j.replaying = false }()
	return j.w.Apply(cs)
}

// precondition makes every replay failure match ErrUndoPreconditionFailed
// while keeping the integrity error that caused it.
func precondition(err error) error {
	if errors.Is(err, workcell.ErrUndoPreconditionFailed) {
		return err
	}
	return errors.Join(workcell.ErrUndoPreconditionFailed, err)
}

// CanUndo reports whether Undo has an entry to revert.
func (j *Journal) CanUndo() bool { return len(j.undo) > 0 && j.depth == 0 }

// CanRedo reports whether Redo has an entry to reapply.
func (j *Journal) CanRedo() bool { return len(j.redo) > 0 && j.depth == 0 }

// UndoLabel returns the label of the entry Undo would revert.
func (j *Journal) UndoLabel() string {
	if len(j.undo) == 0 {
		return ""
	}
	return j.undo[len(j.undo)-1].Label
}

// RedoLabel returns the label of the entry Redo would reapply.
func (j *Journal) RedoLabel() string {
	if len(j.redo) == 0 {
		return ""
	}
	return j.redo[len(j.redo)-1].Label
}

// History returns the undo stack, oldest first.
func (j *Journal) History() []Entry {
	return append([]Entry(nil), j.undo...)
}

// Clear drops both stacks.
func (j *Journal) Clear() {
	j.undo = nil
	j.redo = nil
}
