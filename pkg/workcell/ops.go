package workcell

import (
	"fmt"
	"math"

	"github.com/chazu/workcell/pkg/geom"
)

// Every operation below builds a ChangeSet and commits it. On error the
// workcell is unchanged and no id is consumed.

// canonicalPose replaces a zero rotation with the identity and renormalizes
// rotations that have drifted from unit length. Unit rotations are kept
// bit-for-bit.
func canonicalPose(p geom.Pose) geom.Pose {
	q := p.Rotation
	n := q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
	if n == 0 || math.Abs(n-1) > 1e-12 {
		p.Rotation = q.Normalize()
	}
	return p
}

func canonicalOptPose(p *geom.Pose) *geom.Pose {
	if p == nil {
		return nil
	}
	c := canonicalPose(*p)
	return &c
}

func canonicalGeometry(gs []Geometry) []Geometry {
	out := cloneGeometry(gs)
	for i := range out {
		out[i].Origin = canonicalPose(out[i].Origin)
	}
	return out
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

// SetMetadata replaces the workcell metadata.
func (w *Workcell) SetMetadata(m Metadata) error {
	if m == w.meta {
		return nil
	}
	return w.commit(ChangeSet{
		Label:    "set metadata",
		Metadata: &MetadataChange{Before: w.meta, After: m},
	})
}

// ---------------------------------------------------------------------------
// Anchors
// ---------------------------------------------------------------------------

// AnchorSpec describes a new anchor.
type AnchorSpec struct {
	Name   string
	Pose   geom.Pose
	Parent AnchorID // zero for a world-level anchor
}

// CreateAnchor adds an anchor and returns its id.
func (w *Workcell) CreateAnchor(s AnchorSpec) (AnchorID, error) {
	id := AnchorID(w.ids.Peek())
	a := Anchor{ID: id, Name: s.Name, Pose: canonicalPose(s.Pose), Parent: s.Parent}
	if err := w.commit(ChangeSet{Label: "create anchor", Changes: []Change{{After: a}}}); err != nil {
		return 0, err
	}
	return id, nil
}

// MoveAnchor sets an anchor's pose relative to its parent.
func (w *Workcell) MoveAnchor(id AnchorID, pose geom.Pose) error {
	a, ok := w.anchors[id]
	if !ok {
		return notFound(id.Ref())
	}
	next := a
	next.Pose = canonicalPose(pose)
	return w.commit(ChangeSet{Label: "move anchor", Changes: []Change{{Before: a, After: next}}})
}

// SetAnchorParent re-parents an anchor while preserving its world pose.
// A zero parent makes the anchor world-level.
func (w *Workcell) SetAnchorParent(id, parent AnchorID) error {
	a, ok := w.anchors[id]
	if !ok {
		return notFound(id.Ref())
	}
	world, err := w.WorldPose(id)
	if err != nil {
		return err
	}
	next := a
	next.Parent = parent
	next.Pose = world
	if parent != 0 {
		pw, err := w.WorldPose(parent)
		if err != nil {
			return newError(ErrDanglingReference, id.Ref(), "parent %s does not exist", parent)
		}
		next.Pose = pw.Inverse().Compose(world)
	}
	next.Pose = canonicalPose(next.Pose)
	return w.commit(ChangeSet{Label: "reparent anchor", Changes: []Change{{Before: a, After: next}}})
}

// RemoveAnchorOptions controls anchor removal.
type RemoveAnchorOptions struct {
	// ReassignTo, when set, receives every reference to the removed anchor.
	// Otherwise removal of a referenced anchor fails.
	ReassignTo AnchorID
}

// RemoveAnchor removes an anchor. Referents are either reassigned or the
// removal is rejected with ErrReferencedEntityInUse.
func (w *Workcell) RemoveAnchor(id AnchorID, opts RemoveAnchorOptions) error {
	a, ok := w.anchors[id]
	if !ok {
		return notFound(id.Ref())
	}
	cs := ChangeSet{Label: "remove anchor"}
	if to := opts.ReassignTo; to != 0 {
		if to == id {
			return newError(ErrCyclicTopology, id.Ref(), "cannot reassign references to the anchor being removed")
		}
		if _, ok := w.anchors[to]; !ok {
			return newError(ErrDanglingReference, id.Ref(), "replacement %s does not exist", to)
		}
		for _, r := range w.Referents(id.Ref()) {
			before := w.Entity(r)
			var after Entity
			switch x := cloneEntity(before).(type) {
			case Anchor:
				x.Parent = to
				after = x
			case Link:
				x.Anchor = to
				after = x
			case Joint:
				x.Origin = to
				after = x
			case ModelInstance:
				x.Anchor = to
				after = x
			}
			cs.Changes = append(cs.Changes, Change{Before: before, After: after})
		}
	}
	cs.Changes = append(cs.Changes, Change{Before: a})
	return w.commit(cs)
}

// MergeAnchors folds drop into keep: every reference to drop is moved to
// keep and drop is removed. Anchors at identical poses are never merged
// implicitly.
func (w *Workcell) MergeAnchors(keep, drop AnchorID) error {
	return w.RemoveAnchor(drop, RemoveAnchorOptions{ReassignTo: keep})
}

// ---------------------------------------------------------------------------
// Links
// ---------------------------------------------------------------------------

// LinkSpec describes a link.
type LinkSpec struct {
	Name       string
	Anchor     AnchorID
	Offset     *geom.Pose
	Visuals    []Geometry
	Collisions []Geometry
	Inertial   *Inertial
}

func (s LinkSpec) link(id LinkID) Link {
	l := Link{
		ID:         id,
		Name:       s.Name,
		Anchor:     s.Anchor,
		Offset:     canonicalOptPose(s.Offset),
		Visuals:    canonicalGeometry(s.Visuals),
		Collisions: canonicalGeometry(s.Collisions),
	}
	if s.Inertial != nil {
		in := *s.Inertial
		in.Origin = canonicalPose(in.Origin)
		l.Inertial = &in
	}
	return l
}

// CreateLink adds a link and returns its id.
func (w *Workcell) CreateLink(s LinkSpec) (LinkID, error) {
	id := LinkID(w.ids.Peek())
	if err := w.commit(ChangeSet{Label: "create link", Changes: []Change{{After: s.link(id)}}}); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateLink replaces a link's placement, geometry and mass properties.
func (w *Workcell) UpdateLink(id LinkID, s LinkSpec) error {
	l, ok := w.links[id]
	if !ok {
		return notFound(id.Ref())
	}
	return w.commit(ChangeSet{Label: "update link", Changes: []Change{{Before: l, After: s.link(id)}}})
}

// CascadePolicy selects how RemoveLink treats the removed link's
// descendants.
type CascadePolicy int

const (
	// CascadeReparent splices the link out: child joints are re-parented to
	// the link's own parent. Removing a root link removes its child joints,
	// leaving the children as new roots.
	CascadeReparent CascadePolicy = iota
	// CascadeSubtree removes the link together with every descendant link,
	// the joints among them and the models attached to them.
	CascadeSubtree
)

func (p CascadePolicy) String() string {
	switch p {
	case CascadeReparent:
		return "reparent"
	case CascadeSubtree:
		return "subtree"
	default:
		return fmt.Sprintf("CascadePolicy(%d)", int(p))
	}
}

// RemoveLink removes a link and the joints connecting it, as one atomic
// change set.
func (w *Workcell) RemoveLink(id LinkID, policy CascadePolicy) error {
	l, ok := w.links[id]
	if !ok {
		return notFound(id.Ref())
	}
	cs := ChangeSet{Label: "remove link"}
	switch policy {
	case CascadeReparent:
		pj, hasParent := w.ParentJoint(id)
		for _, cj := range w.ChildJoints(id) {
			if hasParent {
				next := cj.clone()
				next.Parent = pj.Parent
				cs.Changes = append(cs.Changes, Change{Before: cj, After: next})
			} else {
				cs.Changes = append(cs.Changes, Change{Before: cj})
			}
		}
		for _, m := range w.Models() {
			if m.Link != id {
				continue
			}
			next := m.clone()
			next.Link = 0
			if hasParent {
				next.Link = pj.Parent
			}
			cs.Changes = append(cs.Changes, Change{Before: m, After: next})
		}
		if hasParent {
			cs.Changes = append(cs.Changes, Change{Before: pj})
		}
		cs.Changes = append(cs.Changes, Change{Before: l})
	case CascadeSubtree:
		subtree := w.Subtree(id)
		in := make(map[LinkID]bool, len(subtree))
		for _, s := range subtree {
			in[s] = true
		}
		for _, j := range w.Joints() {
			if in[j.Child] {
				cs.Changes = append(cs.Changes, Change{Before: j})
			}
		}
		for _, m := range w.Models() {
			if in[m.Link] {
				cs.Changes = append(cs.Changes, Change{Before: m})
			}
		}
		for _, s := range subtree {
			cs.Changes = append(cs.Changes, Change{Before: w.links[s]})
		}
	default:
		return fmt.Errorf("workcell: unknown cascade policy %d", int(policy))
	}
	return w.commit(cs)
}

// ---------------------------------------------------------------------------
// Joints
// ---------------------------------------------------------------------------

// JointSpec describes a joint.
type JointSpec struct {
	Name   string
	Kind   JointKind
	Parent LinkID
	Child  LinkID
	Origin AnchorID
	Offset *geom.Pose
	Axis   geom.Vec3
	Limits *Limits
}

func (s JointSpec) joint(id JointID) Joint {
	j := Joint{
		ID:     id,
		Name:   s.Name,
		Kind:   s.Kind,
		Parent: s.Parent,
		Child:  s.Child,
		Origin: s.Origin,
		Offset: canonicalOptPose(s.Offset),
		Axis:   s.Axis,
	}
	if s.Limits != nil {
		lim := *s.Limits
		j.Limits = &lim
	}
	return j
}

// CreateJoint adds a joint and returns its id.
func (w *Workcell) CreateJoint(s JointSpec) (JointID, error) {
	id := JointID(w.ids.Peek())
	if err := w.commit(ChangeSet{Label: "create joint", Changes: []Change{{After: s.joint(id)}}}); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateJoint replaces every property of a joint.
func (w *Workcell) UpdateJoint(id JointID, s JointSpec) error {
	j, ok := w.joints[id]
	if !ok {
		return notFound(id.Ref())
	}
	return w.commit(ChangeSet{Label: "update joint", Changes: []Change{{Before: j, After: s.joint(id)}}})
}

// ReparentJoint moves a joint to a new parent link.
func (w *Workcell) ReparentJoint(id JointID, parent LinkID) error {
	j, ok := w.joints[id]
	if !ok {
		return notFound(id.Ref())
	}
	next := j.clone()
	next.Parent = parent
	return w.commit(ChangeSet{Label: "reparent joint", Changes: []Change{{Before: j, After: next}}})
}

// RemoveJoint removes a joint. Its child link becomes a root.
func (w *Workcell) RemoveJoint(id JointID) error {
	j, ok := w.joints[id]
	if !ok {
		return notFound(id.Ref())
	}
	return w.commit(ChangeSet{Label: "remove joint", Changes: []Change{{Before: j}}})
}

// ---------------------------------------------------------------------------
// Model instances
// ---------------------------------------------------------------------------

// ModelSpec describes a model instance.
type ModelSpec struct {
	Name   string
	Asset  string
	Anchor AnchorID
	Offset *geom.Pose
	Scale  *geom.Vec3
	Link   LinkID
}

// CreateModelInstance adds a model instance and returns its id.
func (w *Workcell) CreateModelInstance(s ModelSpec) (ModelID, error) {
	id := ModelID(w.ids.Peek())
	m := ModelInstance{
		ID:     id,
		Name:   s.Name,
		Asset:  s.Asset,
		Anchor: s.Anchor,
		Offset: canonicalOptPose(s.Offset),
		Link:   s.Link,
	}
	if s.Scale != nil {
		sc := *s.Scale
		m.Scale = &sc
	}
	if err := w.commit(ChangeSet{Label: "create model", Changes: []Change{{After: m}}}); err != nil {
		return 0, err
	}
	return id, nil
}

// AttachModel rigidly attaches a model to a link. A zero link detaches it.
func (w *Workcell) AttachModel(id ModelID, link LinkID) error {
	m, ok := w.models[id]
	if !ok {
		return notFound(id.Ref())
	}
	next := m.clone()
	next.Link = link
	return w.commit(ChangeSet{Label: "attach model", Changes: []Change{{Before: m, After: next}}})
}

// RemoveModelInstance removes a model instance.
func (w *Workcell) RemoveModelInstance(id ModelID) error {
	m, ok := w.models[id]
	if !ok {
		return notFound(id.Ref())
	}
	return w.commit(ChangeSet{Label: "remove model", Changes: []Change{{Before: m}}})
}

// ---------------------------------------------------------------------------
// Shared
// ---------------------------------------------------------------------------

// Rename sets the display name of any entity. Names must be unique among
// entities of the same kind; the empty name is always allowed.
func (w *Workcell) Rename(ref Ref, name string) error {
	before := w.Entity(ref)
	if before == nil {
		return notFound(ref)
	}
	var after Entity
	switch x := cloneEntity(before).(type) {
	case Anchor:
		x.Name = name
		after = x
	case Link:
		x.Name = name
		after = x
	case Joint:
		x.Name = name
		after = x
	case ModelInstance:
		x.Name = name
		after = x
	}
	return w.commit(ChangeSet{Label: "rename " + ref.Kind.String(), Changes: []Change{{Before: before, After: after}}})
}

func notFound(ref Ref) error {
	return &ValidationError{
		Code:     ErrDanglingReference,
		Entity:   ref,
		Message:  "no such entity",
		Severity: SeverityError,
		Cause:    ErrNotFound,
	}
}
