// Package editor owns the live workcell of an editing session. Every edit,
// undo and document switch goes through a Session, which serializes them,
// records them in the journal and tells subscribers about the result.
package editor

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/chazu/workcell/pkg/asset"
	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/jobs"
	"github.com/chazu/workcell/pkg/journal"
	"github.com/chazu/workcell/pkg/logging"
	"github.com/chazu/workcell/pkg/sitefmt"
	"github.com/chazu/workcell/pkg/workcell"
)

// Config configures a Session.
type Config struct {
	// Metadata seeds new documents.
	Metadata workcell.Metadata
	// Cascade is the policy RemoveLink applies.
	Cascade      workcell.CascadePolicy
	JournalLimit int

	// ValidateSchema checks robot descriptions before importing them.
	ValidateSchema bool
	// Packages maps package:// names to directories for imports.
	Packages map[string]string
	// Assets is consulted for references the import directory cannot
	// resolve. Lookups through it are cached for the session.
	Assets asset.Resolver

	// Runner executes imports and exports. Nil creates a private pool.
	Runner jobs.Runner
	Logger logging.Logger
}

// Subscriber receives a read-only snapshot of the workcell and the change
// set that produced it. A document switch is reported with an empty change
// set labelled after the operation. Subscribers run on the writer and must
// not call back into the Session.
type Subscriber func(snap *workcell.Workcell, cs workcell.ChangeSet)

// Session is the single writer of a workcell.
type Session struct {
	cfg    Config
	log    logging.Logger
	runner jobs.Runner
	pool   *jobs.Pool
	assets asset.Resolver

	mu      sync.Mutex
	w       *workcell.Workcell
	j       *journal.Journal
	unwatch func()
	path    string
	saved   sitefmt.Digest

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int
}

// New starts a session on an empty document.
func New(cfg Config) (*Session, error) {
	s := &Session{
		cfg:    cfg,
		log:    logging.OrNop(cfg.Logger),
		runner: cfg.Runner,
		subs:   make(map[int]Subscriber),
	}
	if s.runner == nil {
		s.pool = jobs.NewPool(jobs.Config{Logger: cfg.Logger})
		s.runner = s.pool
	}
	if cfg.Assets != nil {
		s.assets = asset.NewCache(cfg.Assets)
	}

	w := workcell.New()
	if err := w.SetMetadata(cfg.Metadata); err != nil {
		return nil, fmt.Errorf("new document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.replace(w, "", "new document"); err != nil {
		return nil, err
	}
	return s, nil
}

// Close detaches the journal and stops a private job pool.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detach()
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Session) detach() {
	if s.j != nil {
		s.j.Close()
		s.j = nil
	}
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
}

// replace installs w as the live document with an empty history. Callers
// hold s.mu.
func (s *Session) replace(w *workcell.Workcell, path, label string) error {
	d, err := sitefmt.Sum(w)
	if err != nil {
		return err
	}
	s.detach()
	s.w = w
	s.path = path
	s.saved = d
	s.j = journal.New(w, journal.Config{Limit: s.cfg.JournalLimit, Logger: s.cfg.Logger})
	s.unwatch = w.Observe(workcell.ObserverFunc(func(w *workcell.Workcell, cs workcell.ChangeSet) {
		s.publish(w, cs)
	}))
	s.publish(w, workcell.ChangeSet{Label: label})
	return nil
}

func (s *Session) publish(w *workcell.Workcell, cs workcell.ChangeSet) {
	s.subMu.Lock()
	if len(s.subs) == 0 {
		s.subMu.Unlock()
		return
	}
	keys := make([]int, 0, len(s.subs))
	for k := range s.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	subs := make([]Subscriber, 0, len(keys))
	for _, k := range keys {
		subs = append(subs, s.subs[k])
	}
	s.subMu.Unlock()

	snap := w.Clone()
	for _, fn := range subs {
		fn(snap, cs)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Session) Subscribe(fn Subscriber) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Snapshot returns a copy of the live workcell.
func (s *Session) Snapshot() *workcell.Workcell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Clone()
}

// Path returns the file the document was last opened from or saved to.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// ---------------------------------------------------------------------------
// Edits
// ---------------------------------------------------------------------------

// Do runs fn against a private copy of the document and, if it succeeds,
// commits everything fn did as one journal entry. If fn fails the live
// document is untouched.
func (s *Session) Do(label string, fn func(w *workcell.Workcell) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.w.Clone()
	cs := workcell.ChangeSet{Label: label}
	draft.Observe(workcell.ObserverFunc(func(_ *workcell.Workcell, c workcell.ChangeSet) {
		cs = cs.Merge(c)
	}))
	if err := fn(draft); err != nil {
		return err
	}
	if cs.IsEmpty() {
		return nil
	}
	if err := s.w.Apply(cs); err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	s.w.ReserveIDs(draft.LastID())
	s.log.Debug("edit committed", "label", label, "changes", len(cs.Changes))
	return nil
}

// edit runs a single workcell operation under the writer lock.
func (s *Session) edit(op string, fn func(w *workcell.Workcell) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.w); err != nil {
		s.log.Debug("edit rejected", "op", op, "error", err)
		return err
	}
	s.log.Debug("edit committed", "op", op)
	return nil
}

func (s *Session) SetMetadata(m workcell.Metadata) error {
	return s.edit("set metadata", func(w *workcell.Workcell) error { return w.SetMetadata(m) })
}

func (s *Session) CreateAnchor(spec workcell.AnchorSpec) (id workcell.AnchorID, err error) {
	err = s.edit("create anchor", func(w *workcell.Workcell) error {
		id, err = w.CreateAnchor(spec)
		return err
	})
	return id, err
}

func (s *Session) MoveAnchor(id workcell.AnchorID, pose geom.Pose) error {
	return s.edit("move anchor", func(w *workcell.Workcell) error { return w.MoveAnchor(id, pose) })
}

func (s *Session) SetAnchorParent(id, parent workcell.AnchorID) error {
	return s.edit("set anchor parent", func(w *workcell.Workcell) error { return w.SetAnchorParent(id, parent) })
}

func (s *Session) RemoveAnchor(id workcell.AnchorID, opts workcell.RemoveAnchorOptions) error {
	return s.edit("remove anchor", func(w *workcell.Workcell) error { return w.RemoveAnchor(id, opts) })
}

func (s *Session) CreateLink(spec workcell.LinkSpec) (id workcell.LinkID, err error) {
	err = s.edit("create link", func(w *workcell.Workcell) error {
		id, err = w.CreateLink(spec)
		return err
	})
	return id, err
}

func (s *Session) UpdateLink(id workcell.LinkID, spec workcell.LinkSpec) error {
	return s.edit("update link", func(w *workcell.Workcell) error { return w.UpdateLink(id, spec) })
}

// RemoveLink removes a link using the session's cascade policy.
func (s *Session) RemoveLink(id workcell.LinkID) error {
	return s.edit("remove link", func(w *workcell.Workcell) error { return w.RemoveLink(id, s.cfg.Cascade) })
}

func (s *Session) CreateJoint(spec workcell.JointSpec) (id workcell.JointID, err error) {
	err = s.edit("create joint", func(w *workcell.Workcell) error {
		id, err = w.CreateJoint(spec)
		return err
	})
	return id, err
}

func (s *Session) UpdateJoint(id workcell.JointID, spec workcell.JointSpec) error {
	return s.edit("update joint", func(w *workcell.Workcell) error { return w.UpdateJoint(id, spec) })
}

func (s *Session) ReparentJoint(id workcell.JointID, parent workcell.LinkID) error {
	return s.edit("reparent joint", func(w *workcell.Workcell) error { return w.ReparentJoint(id, parent) })
}

func (s *Session) RemoveJoint(id workcell.JointID) error {
	return s.edit("remove joint", func(w *workcell.Workcell) error { return w.RemoveJoint(id) })
}

func (s *Session) CreateModelInstance(spec workcell.ModelSpec) (id workcell.ModelID, err error) {
	err = s.edit("create model", func(w *workcell.Workcell) error {
		id, err = w.CreateModelInstance(spec)
		return err
	})
	return id, err
}

func (s *Session) AttachModel(id workcell.ModelID, link workcell.LinkID) error {
	return s.edit("attach model", func(w *workcell.Workcell) error { return w.AttachModel(id, link) })
}

func (s *Session) RemoveModelInstance(id workcell.ModelID) error {
	return s.edit("remove model", func(w *workcell.Workcell) error { return w.RemoveModelInstance(id) })
}

func (s *Session) Rename(ref workcell.Ref, name string) error {
	return s.edit("rename", func(w *workcell.Workcell) error { return w.Rename(ref, name) })
}

// Validate runs the whole-document checks.
func (s *Session) Validate() []workcell.ValidationError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return workcell.Validate(s.w)
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

// Undo reverts the most recent edit.
func (s *Session) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.j.Undo()
}

// Redo reapplies the most recently undone edit.
func (s *Session) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.j.Redo()
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.j.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.j.CanRedo()
}

// History returns the labels of the undoable edits, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.j.History()
	labels := make([]string, len(h))
	for i, e := range h {
		labels[i] = e.Label
	}
	return labels
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// NewDocument discards the current document and its history. The id
// sequence restarts.
func (s *Session) NewDocument(m workcell.Metadata) error {
	w := workcell.New()
	if err := w.SetMetadata(m); err != nil {
		return fmt.Errorf("new document: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("new document", "name", m.Name)
	return s.replace(w, "", "new document")
}

// Open replaces the document with the one stored at path. On failure the
// current document is kept.
func (s *Session) Open(path string) error {
	w, err := sitefmt.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("opened document", "path", path, "name", w.Metadata().Name)
	return s.replace(w, path, "open")
}

// ErrNoPath is returned by Save when the document has never been saved
// and no path is given.
var ErrNoPath = errors.New("document has no file name")

// Save writes the document to path, or to the path it was opened from when
// path is empty.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		path = s.path
	}
	if path == "" {
		return ErrNoPath
	}
	if err := sitefmt.WriteFile(path, s.w); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	d, err := sitefmt.Sum(s.w)
	if err != nil {
		return err
	}
	s.path = path
	s.saved = d
	s.log.Info("saved document", "path", path, "digest", d.String()[:12])
	return nil
}

// Dirty reports whether the document differs from what was last opened or
// saved. Undoing back to the saved state makes it clean again.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := sitefmt.Sum(s.w)
	if err != nil {
		return true
	}
	return d != s.saved
}
