package workcell

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/chazu/workcell/pkg/geom"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type arm struct {
	w              *Workcell
	a, b, c        AnchorID
	base, upper    LinkID
	fore           LinkID
	shoulder, elbw JointID
}

// buildArm creates a three-link chain base -> upper -> fore, each link on
// its own anchor, joined by a fixed and a revolute joint.
func buildArm(t *testing.T) arm {
	t.Helper()
	w := New()
	var r arm
	r.w = w
	r.a = mustAnchor(t, w, AnchorSpec{Name: "A", Pose: geom.Identity()})
	r.b = mustAnchor(t, w, AnchorSpec{Name: "B", Pose: geom.At(1, 0, 0)})
	r.c = mustAnchor(t, w, AnchorSpec{Name: "C", Pose: geom.At(0, 0, 0.5), Parent: r.b})
	r.base = mustLink(t, w, LinkSpec{Name: "base", Anchor: r.a})
	r.upper = mustLink(t, w, LinkSpec{Name: "upper", Anchor: r.b})
	r.fore = mustLink(t, w, LinkSpec{Name: "fore", Anchor: r.c})
	var err error
	r.shoulder, err = w.CreateJoint(JointSpec{Name: "shoulder", Kind: JointFixed, Parent: r.base, Child: r.upper, Origin: r.b})
	if err != nil {
		t.Fatalf("CreateJoint shoulder: %v", err)
	}
	r.elbw, err = w.CreateJoint(JointSpec{
		Name: "elbow", Kind: JointRevolute, Parent: r.upper, Child: r.fore, Origin: r.c,
		Axis: geom.Vec3{Z: 1}, Limits: &Limits{Lower: -1, Upper: 1, Velocity: 2, Effort: 10},
	})
	if err != nil {
		t.Fatalf("CreateJoint elbow: %v", err)
	}
	return r
}

func mustAnchor(t *testing.T, w *Workcell, s AnchorSpec) AnchorID {
	t.Helper()
	id, err := w.CreateAnchor(s)
	if err != nil {
		t.Fatalf("CreateAnchor(%q): %v", s.Name, err)
	}
	return id
}

func mustLink(t *testing.T, w *Workcell, s LinkSpec) LinkID {
	t.Helper()
	id, err := w.CreateLink(s)
	if err != nil {
		t.Fatalf("CreateLink(%q): %v", s.Name, err)
	}
	return id
}

// assertCode fails unless err carries the given code.
func assertCode(t *testing.T, err, code error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", code)
	}
	if !errors.Is(err, code) {
		t.Fatalf("expected %v, got %v", code, err)
	}
}

// assertTree checks the kinematic invariants directly on the tables.
func assertTree(t *testing.T, w *Workcell) {
	t.Helper()
	parents := map[LinkID]int{}
	for _, j := range w.Joints() {
		parents[j.Child]++
	}
	for l, n := range parents {
		if n > 1 {
			t.Fatalf("%s has %d parent joints", l, n)
		}
	}
	for _, l := range w.Links() {
		seen := map[LinkID]bool{}
		for cur := l.ID; ; {
			if seen[cur] {
				t.Fatalf("cycle through %s", cur)
			}
			seen[cur] = true
			pj, ok := w.ParentJoint(cur)
			if !ok {
				break
			}
			cur = pj.Parent
		}
	}
}

// assertNoDangling checks every anchor and link reference resolves.
func assertNoDangling(t *testing.T, w *Workcell) {
	t.Helper()
	for _, e := range Validate(w) {
		if e.Severity == SeverityError {
			t.Fatalf("integrity violation: %s", &e)
		}
	}
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestCreateJointRejectsCycle(t *testing.T) {
	w := New()
	a := mustAnchor(t, w, AnchorSpec{Name: "A", Pose: geom.Identity()})
	l1 := mustLink(t, w, LinkSpec{Name: "L1", Anchor: a})
	b := mustAnchor(t, w, AnchorSpec{Name: "B", Pose: geom.At(1, 0, 0)})
	l2 := mustLink(t, w, LinkSpec{Name: "L2", Anchor: b})

	if _, err := w.CreateJoint(JointSpec{Name: "J", Kind: JointFixed, Parent: l1, Child: l2, Origin: b}); err != nil {
		t.Fatalf("CreateJoint J: %v", err)
	}
	roots := w.Roots()
	if len(roots) != 1 || roots[0] != l1 {
		t.Fatalf("Roots() = %v, want [%s]", roots, l1)
	}

	before := w.Clone()
	_, err := w.CreateJoint(JointSpec{Name: "J2", Kind: JointFixed, Parent: l2, Child: l1, Origin: a})
	assertCode(t, err, ErrCyclicTopology)
	if !w.Equal(before) {
		t.Error("rejected joint changed the workcell")
	}
}

func TestRemoveAnchorInUse(t *testing.T) {
	w := New()
	a := mustAnchor(t, w, AnchorSpec{Name: "A", Pose: geom.Identity()})
	l1 := mustLink(t, w, LinkSpec{Name: "L1", Anchor: a})
	b := mustAnchor(t, w, AnchorSpec{Name: "B", Pose: geom.At(1, 0, 0)})
	l2 := mustLink(t, w, LinkSpec{Name: "L2", Anchor: b})
	j, err := w.CreateJoint(JointSpec{Name: "J", Kind: JointFixed, Parent: l1, Child: l2, Origin: b})
	if err != nil {
		t.Fatal(err)
	}

	err = w.RemoveAnchor(a, RemoveAnchorOptions{})
	assertCode(t, err, ErrReferencedEntityInUse)
	if !strings.Contains(err.Error(), "link") {
		t.Errorf("error %q does not name the referent", err)
	}

	if err := w.RemoveLink(l1, CascadeReparent); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	if _, ok := w.Joint(j); ok {
		t.Error("joint of removed root link survived")
	}
	if err := w.RemoveAnchor(a, RemoveAnchorOptions{}); err != nil {
		t.Fatalf("RemoveAnchor after unlinking: %v", err)
	}
	if roots := w.Roots(); len(roots) != 1 || roots[0] != l2 {
		t.Errorf("Roots() = %v, want [%s]", roots, l2)
	}
}

// ---------------------------------------------------------------------------
// Integrity rules
// ---------------------------------------------------------------------------

func TestDanglingReferences(t *testing.T) {
	r := buildArm(t)
	tests := []struct {
		name string
		op   func() error
	}{
		{"anchor parent", func() error {
			_, err := r.w.CreateAnchor(AnchorSpec{Parent: 999})
			return err
		}},
		{"link anchor", func() error {
			_, err := r.w.CreateLink(LinkSpec{Name: "x", Anchor: 999})
			return err
		}},
		{"link without anchor", func() error {
			_, err := r.w.CreateLink(LinkSpec{Name: "x"})
			return err
		}},
		{"joint child", func() error {
			_, err := r.w.CreateJoint(JointSpec{Kind: JointFixed, Parent: r.base, Child: 999, Origin: r.a})
			return err
		}},
		{"joint origin", func() error {
			_, err := r.w.CreateJoint(JointSpec{Kind: JointFixed, Parent: r.base, Child: r.fore, Origin: 999})
			return err
		}},
		{"model link", func() error {
			_, err := r.w.CreateModelInstance(ModelSpec{Asset: "a.stl", Anchor: r.a, Link: 999})
			return err
		}},
		{"move missing anchor", func() error {
			return r.w.MoveAnchor(999, geom.Identity())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := r.w.Clone()
			last := r.w.LastID()
			assertCode(t, tt.op(), ErrDanglingReference)
			if !r.w.Equal(before) {
				t.Error("failed operation changed the workcell")
			}
			if r.w.LastID() != last {
				t.Error("failed operation consumed an id")
			}
		})
	}
}

func TestSecondParentRejected(t *testing.T) {
	r := buildArm(t)
	_, err := r.w.CreateJoint(JointSpec{Kind: JointFixed, Parent: r.base, Child: r.fore, Origin: r.a})
	assertCode(t, err, ErrCyclicTopology)
	if !strings.Contains(err.Error(), "already has parent joint") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestReparentJointRejectsDescendant(t *testing.T) {
	r := buildArm(t)
	assertCode(t, r.w.ReparentJoint(r.shoulder, r.fore), ErrCyclicTopology)
	assertCode(t, r.w.ReparentJoint(r.elbw, r.fore), ErrCyclicTopology)
}

func TestUpdateJointRejectsClaimedChild(t *testing.T) {
	r := buildArm(t)
	d := mustLink(t, r.w, LinkSpec{Name: "d", Anchor: r.a})
	// shoulder has the lower id; retargeting it at fore's child slot must
	// still be caught.
	err := r.w.UpdateJoint(r.shoulder, JointSpec{Kind: JointFixed, Parent: d, Child: r.fore, Origin: r.b})
	assertCode(t, err, ErrCyclicTopology)
}

func TestAnchorCycleRejected(t *testing.T) {
	r := buildArm(t)
	assertCode(t, r.w.SetAnchorParent(r.b, r.c), ErrCyclicTopology)
	assertCode(t, r.w.SetAnchorParent(r.b, r.b), ErrCyclicTopology)
}

func TestDuplicateNames(t *testing.T) {
	r := buildArm(t)
	_, err := r.w.CreateLink(LinkSpec{Name: "base", Anchor: r.a})
	assertCode(t, err, ErrDuplicateIdentifier)

	assertCode(t, r.w.Rename(r.upper.Ref(), "fore"), ErrDuplicateIdentifier)

	// Names are scoped per kind and empty names never collide.
	if _, err := r.w.CreateAnchor(AnchorSpec{Name: "base"}); err != nil {
		t.Errorf("anchor named like a link: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := r.w.CreateAnchor(AnchorSpec{}); err != nil {
			t.Errorf("unnamed anchor %d: %v", i, err)
		}
	}
}

func TestJointKindRules(t *testing.T) {
	tests := []struct {
		name string
		spec JointSpec
		ok   bool
	}{
		{"fixed", JointSpec{Kind: JointFixed}, true},
		{"fixed with limits", JointSpec{Kind: JointFixed, Limits: &Limits{}}, false},
		{"revolute", JointSpec{Kind: JointRevolute, Axis: geom.Vec3{Z: 1}, Limits: &Limits{Lower: -1, Upper: 1}}, true},
		{"revolute no axis", JointSpec{Kind: JointRevolute, Limits: &Limits{}}, false},
		{"revolute no limits", JointSpec{Kind: JointRevolute, Axis: geom.Vec3{Z: 1}}, false},
		{"revolute inverted", JointSpec{Kind: JointRevolute, Axis: geom.Vec3{Z: 1}, Limits: &Limits{Lower: 1, Upper: -1}}, false},
		{"continuous", JointSpec{Kind: JointContinuous, Axis: geom.Vec3{X: 1}}, true},
		{"continuous with limits", JointSpec{Kind: JointContinuous, Axis: geom.Vec3{X: 1}, Limits: &Limits{Velocity: 1, Effort: 1}}, true},
		{"prismatic", JointSpec{Kind: JointPrismatic, Axis: geom.Vec3{Y: 1}, Limits: &Limits{Upper: 0.3}}, true},
		{"floating", JointSpec{Kind: JointFloating}, true},
		{"floating with limits", JointSpec{Kind: JointFloating, Limits: &Limits{}}, false},
		{"planar", JointSpec{Kind: JointPlanar, Axis: geom.Vec3{Z: 1}}, true},
		{"negative effort", JointSpec{Kind: JointPrismatic, Axis: geom.Vec3{Y: 1}, Limits: &Limits{Effort: -1}}, false},
		{"nan axis", JointSpec{Kind: JointContinuous, Axis: geom.Vec3{X: math.NaN()}}, false},
		{"nan axis on fixed", JointSpec{Kind: JointFixed, Axis: geom.Vec3{X: math.NaN()}}, false},
		{"nan lower limit", JointSpec{Kind: JointRevolute, Axis: geom.Vec3{Z: 1}, Limits: &Limits{Lower: math.NaN(), Upper: 1}}, false},
		{"infinite velocity", JointSpec{Kind: JointContinuous, Axis: geom.Vec3{Z: 1}, Limits: &Limits{Velocity: math.Inf(1)}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New()
			a := mustAnchor(t, w, AnchorSpec{})
			p := mustLink(t, w, LinkSpec{Name: "p", Anchor: a})
			c := mustLink(t, w, LinkSpec{Name: "c", Anchor: a})
			s := tt.spec
			s.Parent, s.Child, s.Origin = p, c, a
			_, err := w.CreateJoint(s)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				assertCode(t, err, ErrInvalidProperty)
			}
		})
	}
}

func TestGeometryProperties(t *testing.T) {
	w := New()
	a := mustAnchor(t, w, AnchorSpec{})
	_, err := w.CreateLink(LinkSpec{Name: "l", Anchor: a, Visuals: []Geometry{{Shape: Box{Size: geom.Vec3{X: 1, Y: -1, Z: 1}}}}})
	assertCode(t, err, ErrInvalidProperty)
	_, err = w.CreateLink(LinkSpec{Name: "l", Anchor: a, Collisions: []Geometry{{}}})
	assertCode(t, err, ErrInvalidProperty)
	_, err = w.CreateModelInstance(ModelSpec{Anchor: a})
	assertCode(t, err, ErrInvalidProperty)
}

func TestNonFiniteValuesRejected(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	shape := func(sh Shape) []Geometry { return []Geometry{{Shape: sh}} }
	tests := []struct {
		name string
		link LinkSpec
	}{
		{"box size", LinkSpec{Visuals: shape(Box{Size: geom.Vec3{X: inf, Y: 1, Z: 1}})}},
		{"cylinder radius", LinkSpec{Visuals: shape(Cylinder{Radius: nan, Length: 1})}},
		{"cylinder length", LinkSpec{Collisions: shape(Cylinder{Radius: 1, Length: inf})}},
		{"sphere radius", LinkSpec{Visuals: shape(Sphere{Radius: nan})}},
		{"mesh scale", LinkSpec{Visuals: shape(Mesh{Source: "a.stl", Scale: &geom.Vec3{X: 1, Y: nan, Z: 1}})}},
		{"material colour", LinkSpec{Visuals: []Geometry{{
			Shape:    Sphere{Radius: 1},
			Material: &Material{Name: "m", Color: &RGBA{R: nan, A: 1}},
		}}}},
		{"inertia", LinkSpec{Inertial: &Inertial{Origin: geom.Identity(), Mass: 1, Inertia: Inertia{IXX: nan, IYY: 1, IZZ: 1}}}},
		{"mass", LinkSpec{Inertial: &Inertial{Origin: geom.Identity(), Mass: inf}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New()
			a := mustAnchor(t, w, AnchorSpec{})
			s := tt.link
			s.Name, s.Anchor = "l", a
			_, err := w.CreateLink(s)
			assertCode(t, err, ErrInvalidProperty)
			if _, links, _, _ := w.Counts(); links != 0 {
				t.Error("rejected link was committed")
			}
		})
	}

	t.Run("model scale", func(t *testing.T) {
		w := New()
		a := mustAnchor(t, w, AnchorSpec{})
		_, err := w.CreateModelInstance(ModelSpec{Asset: "a.stl", Anchor: a, Scale: &geom.Vec3{X: inf, Y: 1, Z: 1}})
		assertCode(t, err, ErrInvalidProperty)
	})
}

// ---------------------------------------------------------------------------
// Cascades
// ---------------------------------------------------------------------------

func TestRemoveLinkReparent(t *testing.T) {
	r := buildArm(t)
	m, err := r.w.CreateModelInstance(ModelSpec{Name: "tool", Asset: "tool.stl", Anchor: r.c, Link: r.upper})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.w.RemoveLink(r.upper, CascadeReparent); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	if _, ok := r.w.Joint(r.shoulder); ok {
		t.Error("parent joint of removed link survived")
	}
	elbow, ok := r.w.Joint(r.elbw)
	if !ok {
		t.Fatal("child joint removed instead of re-parented")
	}
	if elbow.Parent != r.base {
		t.Errorf("elbow parent = %s, want %s", elbow.Parent, r.base)
	}
	if mi, _ := r.w.Model(m); mi.Link != r.base {
		t.Errorf("model attached to %s, want %s", mi.Link, r.base)
	}
	assertTree(t, r.w)
	assertNoDangling(t, r.w)
}

func TestRemoveLinkSubtree(t *testing.T) {
	r := buildArm(t)
	m, err := r.w.CreateModelInstance(ModelSpec{Name: "tool", Asset: "tool.stl", Anchor: r.c, Link: r.fore})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.w.RemoveLink(r.upper, CascadeSubtree); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	_, links, joints, models := r.w.Counts()
	if links != 1 || joints != 0 || models != 0 {
		t.Errorf("counts after subtree removal: links=%d joints=%d models=%d", links, joints, models)
	}
	if _, ok := r.w.Model(m); ok {
		t.Error("model attached to removed subtree survived")
	}
	// Anchors are spatial truth and outlive their links.
	if _, ok := r.w.Anchor(r.c); !ok {
		t.Error("anchor removed with link")
	}
}

func TestRemoveAnchorReassign(t *testing.T) {
	r := buildArm(t)
	target := mustAnchor(t, r.w, AnchorSpec{Name: "T", Pose: geom.At(5, 0, 0)})
	if err := r.w.MergeAnchors(target, r.b); err != nil {
		t.Fatalf("MergeAnchors: %v", err)
	}
	if _, ok := r.w.Anchor(r.b); ok {
		t.Error("merged anchor still exists")
	}
	if l, _ := r.w.Link(r.upper); l.Anchor != target {
		t.Errorf("link anchor = %s, want %s", l.Anchor, target)
	}
	if c, _ := r.w.Anchor(r.c); c.Parent != target {
		t.Errorf("child anchor parent = %s, want %s", c.Parent, target)
	}
	assertNoDangling(t, r.w)

	assertCode(t, r.w.RemoveAnchor(r.a, RemoveAnchorOptions{ReassignTo: 999}), ErrDanglingReference)
}

// ---------------------------------------------------------------------------
// Poses and queries
// ---------------------------------------------------------------------------

func TestWorldPoseFollowsParent(t *testing.T) {
	r := buildArm(t)
	got, err := r.w.LinkPose(r.fore)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Position.ApproxEqual(geom.Vec3{X: 1, Z: 0.5}, 1e-12) {
		t.Errorf("fore at %s, want (1 0 0.5)", got.Position)
	}

	if err := r.w.MoveAnchor(r.b, geom.At(2, 0, 0)); err != nil {
		t.Fatal(err)
	}
	got, _ = r.w.LinkPose(r.fore)
	if !got.Position.ApproxEqual(geom.Vec3{X: 2, Z: 0.5}, 1e-12) {
		t.Errorf("after move fore at %s, want (2 0 0.5)", got.Position)
	}
}

func TestSetAnchorParentKeepsWorldPose(t *testing.T) {
	r := buildArm(t)
	before, _ := r.w.WorldPose(r.c)
	if err := r.w.SetAnchorParent(r.c, r.a); err != nil {
		t.Fatal(err)
	}
	after, _ := r.w.WorldPose(r.c)
	if !after.ApproxEqual(before, 1e-12) {
		t.Errorf("world pose moved from %s to %s", before, after)
	}
	if err := r.w.SetAnchorParent(r.c, 0); err != nil {
		t.Fatal(err)
	}
	if c, _ := r.w.Anchor(r.c); c.Parent != 0 {
		t.Error("anchor still parented")
	}
}

func TestIDsAreNeverReused(t *testing.T) {
	w := New()
	a := mustAnchor(t, w, AnchorSpec{})
	if err := w.RemoveAnchor(a, RemoveAnchorOptions{}); err != nil {
		t.Fatal(err)
	}
	b := mustAnchor(t, w, AnchorSpec{})
	if b <= a {
		t.Errorf("new id %d not greater than removed id %d", b, a)
	}
}

func TestZeroRotationBecomesIdentity(t *testing.T) {
	w := New()
	id := mustAnchor(t, w, AnchorSpec{Pose: geom.Pose{Position: geom.Vec3{X: 1}}})
	a, _ := w.Anchor(id)
	if a.Pose.Rotation != geom.IdentityQuat() {
		t.Errorf("rotation = %+v, want identity", a.Pose.Rotation)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	r := buildArm(t)
	j, _ := r.w.Joint(r.elbw)
	j.Limits.Upper = 99
	again, _ := r.w.Joint(r.elbw)
	if again.Limits.Upper != 1 {
		t.Error("mutating a returned joint changed the workcell")
	}
}

func TestObserverSeesCommits(t *testing.T) {
	w := New()
	var labels []string
	cancel := w.Observe(ObserverFunc(func(_ *Workcell, cs ChangeSet) {
		labels = append(labels, cs.Label)
	}))
	mustAnchor(t, w, AnchorSpec{})
	_, _ = w.CreateLink(LinkSpec{}) // rejected: no notification
	cancel()
	mustAnchor(t, w, AnchorSpec{})
	if len(labels) != 1 || labels[0] != "create anchor" {
		t.Errorf("observed %v", labels)
	}
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestRandomJointsStayTree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	w := New()
	a := mustAnchor(t, w, AnchorSpec{})
	var links []LinkID
	for i := 0; i < 12; i++ {
		links = append(links, mustLink(t, w, LinkSpec{Anchor: a}))
	}
	for i := 0; i < 200; i++ {
		p := links[rng.Intn(len(links))]
		c := links[rng.Intn(len(links))]
		_, err := w.CreateJoint(JointSpec{Kind: JointFixed, Parent: p, Child: c, Origin: a})
		if err != nil && !errors.Is(err, ErrCyclicTopology) {
			t.Fatalf("unexpected error: %v", err)
		}
		assertTree(t, w)
	}
}

func TestInverseRestoresState(t *testing.T) {
	ops := []struct {
		name string
		op   func(r arm) error
	}{
		{"move", func(r arm) error { return r.w.MoveAnchor(r.a, geom.At(3, 2, 1)) }},
		{"rename", func(r arm) error { return r.w.Rename(r.fore.Ref(), "forearm") }},
		{"remove reparent", func(r arm) error { return r.w.RemoveLink(r.upper, CascadeReparent) }},
		{"remove subtree", func(r arm) error { return r.w.RemoveLink(r.base, CascadeSubtree) }},
		{"merge", func(r arm) error { return r.w.MergeAnchors(r.a, r.b) }},
		{"metadata", func(r arm) error { return r.w.SetMetadata(Metadata{Name: "cell", Unit: geom.Millimeter}) }},
	}
	for _, tt := range ops {
		t.Run(tt.name, func(t *testing.T) {
			r := buildArm(t)
			before := r.w.Clone()
			var recorded ChangeSet
			r.w.Observe(ObserverFunc(func(_ *Workcell, cs ChangeSet) { recorded = cs }))
			if err := tt.op(r); err != nil {
				t.Fatalf("op: %v", err)
			}
			after := r.w.Clone()
			fwd := recorded
			if err := r.w.Apply(fwd.Inverse()); err != nil {
				t.Fatalf("apply inverse: %v", err)
			}
			if !r.w.Equal(before) {
				t.Error("inverse did not restore the prior state")
			}
			if err := r.w.Apply(fwd); err != nil {
				t.Fatalf("reapply: %v", err)
			}
			if !r.w.Equal(after) {
				t.Error("reapplying did not reproduce the post state")
			}
		})
	}
}

func TestApplyStalePrecondition(t *testing.T) {
	r := buildArm(t)
	if err := r.w.MoveAnchor(r.a, geom.At(1, 1, 1)); err != nil {
		t.Fatal(err)
	}
	if err := r.w.MoveAnchor(r.a, geom.At(2, 2, 2)); err != nil {
		t.Fatal(err)
	}
	first := ChangeSet{Changes: []Change{{
		Before: Anchor{ID: r.a, Name: "A", Pose: geom.Identity()},
		After:  Anchor{ID: r.a, Name: "A", Pose: geom.At(1, 1, 1)},
	}}}
	assertCode(t, r.w.Apply(first.Inverse()), ErrUndoPreconditionFailed)
}

func TestApplyMalformedChange(t *testing.T) {
	w := New()
	assertCode(t, w.Apply(ChangeSet{Changes: []Change{{}}}), ErrMalformedDocument)
	assertCode(t, w.Apply(ChangeSet{Changes: []Change{{After: Anchor{}}}}), ErrMalformedDocument)
}
