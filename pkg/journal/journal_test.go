package journal

import (
	"errors"
	"testing"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/workcell"
)

func setup(t *testing.T) (*workcell.Workcell, *Journal, workcell.AnchorID, workcell.LinkID) {
	t.Helper()
	w := workcell.New()
	a, err := w.CreateAnchor(workcell.AnchorSpec{Name: "A", Pose: geom.Identity()})
	if err != nil {
		t.Fatal(err)
	}
	l, err := w.CreateLink(workcell.LinkSpec{Name: "base", Anchor: a})
	if err != nil {
		t.Fatal(err)
	}
	return w, New(w, Config{}), a, l
}

func TestUndoRedoSymmetry(t *testing.T) {
	ops := []struct {
		name string
		op   func(w *workcell.Workcell, a workcell.AnchorID, l workcell.LinkID) error
	}{
		{"create anchor", func(w *workcell.Workcell, _ workcell.AnchorID, _ workcell.LinkID) error {
			_, err := w.CreateAnchor(workcell.AnchorSpec{Name: "B", Pose: geom.At(1, 0, 0)})
			return err
		}},
		{"move anchor", func(w *workcell.Workcell, a workcell.AnchorID, _ workcell.LinkID) error {
			return w.MoveAnchor(a, geom.PoseFromRPY(geom.Vec3{X: 1}, geom.Vec3{Z: 0.5}))
		}},
		{"rename link", func(w *workcell.Workcell, _ workcell.AnchorID, l workcell.LinkID) error {
			return w.Rename(l.Ref(), "pedestal")
		}},
		{"remove link", func(w *workcell.Workcell, _ workcell.AnchorID, l workcell.LinkID) error {
			return w.RemoveLink(l, workcell.CascadeSubtree)
		}},
		{"create model", func(w *workcell.Workcell, a workcell.AnchorID, l workcell.LinkID) error {
			_, err := w.CreateModelInstance(workcell.ModelSpec{Name: "gripper", Asset: "gripper.stl", Anchor: a, Link: l})
			return err
		}},
	}
	for _, tt := range ops {
		t.Run(tt.name, func(t *testing.T) {
			w, j, a, l := setup(t)
			before := w.Clone()
			if err := tt.op(w, a, l); err != nil {
				t.Fatalf("op: %v", err)
			}
			after := w.Clone()

			if err := j.Undo(); err != nil {
				t.Fatalf("Undo: %v", err)
			}
			if !w.Equal(before) {
				t.Error("undo did not restore the prior state")
			}
			if err := j.Redo(); err != nil {
				t.Fatalf("Redo: %v", err)
			}
			if !w.Equal(after) {
				t.Error("redo did not reproduce the post state")
			}
		})
	}
}

func TestNewEditDiscardsRedo(t *testing.T) {
	w, j, a, _ := setup(t)
	if err := w.MoveAnchor(a, geom.At(1, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := j.Undo(); err != nil {
		t.Fatal(err)
	}
	if !j.CanRedo() {
		t.Fatal("expected redo after undo")
	}
	if err := w.MoveAnchor(a, geom.At(2, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if j.CanRedo() {
		t.Error("diverging edit kept the redo stack")
	}
	if err := j.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo = %v, want ErrNothingToRedo", err)
	}
}

func TestRejectedEditIsNotRecorded(t *testing.T) {
	w, j, _, _ := setup(t)
	if _, err := w.CreateLink(workcell.LinkSpec{Name: "orphan", Anchor: 999}); err == nil {
		t.Fatal("expected dangling reference")
	}
	if len(j.History()) != 0 {
		t.Errorf("history = %d entries, want 0", len(j.History()))
	}
	if err := j.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo = %v, want ErrNothingToUndo", err)
	}
}

func TestGroupUndoesAsOne(t *testing.T) {
	w, j, a, _ := setup(t)
	before := w.Clone()

	j.Begin("place fixture")
	b, err := w.CreateAnchor(workcell.AnchorSpec{Name: "B", Parent: a, Pose: geom.At(0, 1, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.CreateLink(workcell.LinkSpec{Name: "fixture", Anchor: b}); err != nil {
		t.Fatal(err)
	}
	if err := j.Undo(); !errors.Is(err, ErrGroupOpen) {
		t.Errorf("Undo inside group = %v, want ErrGroupOpen", err)
	}
	j.End()

	if got := j.UndoLabel(); got != "place fixture" {
		t.Errorf("UndoLabel = %q", got)
	}
	if err := j.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !w.Equal(before) {
		t.Error("group undo left entities behind")
	}
}

func TestLimitDropsOldest(t *testing.T) {
	w := workcell.New()
	j := New(w, Config{Limit: 3})
	for i := 0; i < 5; i++ {
		if _, err := w.CreateAnchor(workcell.AnchorSpec{}); err != nil {
			t.Fatal(err)
		}
	}
	h := j.History()
	if len(h) != 3 {
		t.Fatalf("history = %d entries, want 3", len(h))
	}
	if h[0].Seq != 3 {
		t.Errorf("oldest kept seq = %d, want 3", h[0].Seq)
	}
}

func TestUndoPreconditionFailed(t *testing.T) {
	w, j, a, _ := setup(t)
	if err := w.MoveAnchor(a, geom.At(1, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := w.MoveAnchor(a, geom.At(2, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := j.Undo(); err != nil {
		t.Fatal(err)
	}

	// An edit the journal never saw invalidates the remaining record.
	j.Close()
	if err := w.MoveAnchor(a, geom.At(9, 9, 9)); err != nil {
		t.Fatal(err)
	}
	snapshot := w.Clone()

	err := j.Undo()
	if !errors.Is(err, workcell.ErrUndoPreconditionFailed) {
		t.Fatalf("Undo = %v, want ErrUndoPreconditionFailed", err)
	}
	if !w.Equal(snapshot) {
		t.Error("failed undo changed the workcell")
	}
	if j.CanRedo() || j.CanUndo() {
		t.Error("failed undo kept history")
	}
}

func TestUndoBlockedByIntegrity(t *testing.T) {
	w, j, _, _ := setup(t)
	b, err := w.CreateAnchor(workcell.AnchorSpec{Name: "B"})
	if err != nil {
		t.Fatal(err)
	}
	j.Close()
	if _, err := w.CreateLink(workcell.LinkSpec{Name: "late", Anchor: b}); err != nil {
		t.Fatal(err)
	}

	err = j.Undo()
	if !errors.Is(err, workcell.ErrUndoPreconditionFailed) {
		t.Errorf("Undo = %v, want ErrUndoPreconditionFailed", err)
	}
	if !errors.Is(err, workcell.ErrReferencedEntityInUse) {
		t.Errorf("Undo = %v, want the integrity cause preserved", err)
	}
	if _, ok := w.Anchor(b); !ok {
		t.Error("anchor removed despite failed undo")
	}
}
