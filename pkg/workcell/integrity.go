package workcell

import (
	"fmt"
	"math"
	"slices"

	"github.com/chazu/workcell/pkg/geom"
)

// ---------------------------------------------------------------------------
// Overlay
// ---------------------------------------------------------------------------

// layer is an entity table with an optional set of pending edits on top.
// A nil entry in diff marks a removal.
type layer[K ~uint64, V any] struct {
	base map[K]V
	diff map[K]*V
}

func (l *layer[K, V]) get(id K) (V, bool) {
	if p, ok := l.diff[id]; ok {
		if p == nil {
			var zero V
			return zero, false
		}
		return *p, true
	}
	v, ok := l.base[id]
	return v, ok
}

func (l *layer[K, V]) has(id K) bool {
	_, ok := l.get(id)
	return ok
}

func (l *layer[K, V]) set(id K, v V) { l.diff[id] = &v }
func (l *layer[K, V]) del(id K)      { l.diff[id] = nil }

// keys returns the live ids in ascending order.
func (l *layer[K, V]) keys() []K {
	out := make([]K, 0, len(l.base)+len(l.diff))
	for k := range l.base {
		if p, ok := l.diff[k]; ok && p == nil {
			continue
		}
		out = append(out, k)
	}
	for k, p := range l.diff {
		if _, inBase := l.base[k]; !inBase && p != nil {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func (l *layer[K, V]) each(fn func(V)) {
	for _, k := range l.keys() {
		v, _ := l.get(k)
		fn(v)
	}
}

func (l *layer[K, V]) flush(dst map[K]V) {
	for k, p := range l.diff {
		if p == nil {
			delete(dst, k)
		} else {
			dst[k] = *p
		}
	}
}

// view is a read-only or overlaid projection of a workcell's state.
type view struct {
	meta    Metadata
	anchors layer[AnchorID, Anchor]
	links   layer[LinkID, Link]
	joints  layer[JointID, Joint]
	models  layer[ModelID, ModelInstance]
}

// viewOf returns a read-only view of w.
func viewOf(w *Workcell) *view {
	return &view{
		meta:    w.meta,
		anchors: layer[AnchorID, Anchor]{base: w.anchors},
		links:   layer[LinkID, Link]{base: w.links},
		joints:  layer[JointID, Joint]{base: w.joints},
		models:  layer[ModelID, ModelInstance]{base: w.models},
	}
}

// newOverlay returns a writable view of w. Nothing reaches w until flush.
func newOverlay(w *Workcell) *view {
	v := viewOf(w)
	v.anchors.diff = make(map[AnchorID]*Anchor)
	v.links.diff = make(map[LinkID]*Link)
	v.joints.diff = make(map[JointID]*Joint)
	v.models.diff = make(map[ModelID]*ModelInstance)
	return v
}

func (v *view) get(ref Ref) Entity {
	switch ref.Kind {
	case KindAnchor:
		if a, ok := v.anchors.get(AnchorID(ref.ID)); ok {
			return a
		}
	case KindLink:
		if l, ok := v.links.get(LinkID(ref.ID)); ok {
			return l
		}
	case KindJoint:
		if j, ok := v.joints.get(JointID(ref.ID)); ok {
			return j
		}
	case KindModel:
		if m, ok := v.models.get(ModelID(ref.ID)); ok {
			return m
		}
	}
	return nil
}

func (v *view) put(e Entity) {
	switch x := e.(type) {
	case Anchor:
		v.anchors.set(x.ID, x)
	case Link:
		v.links.set(x.ID, x)
	case Joint:
		v.joints.set(x.ID, x)
	case ModelInstance:
		v.models.set(x.ID, x)
	}
}

func (v *view) remove(ref Ref) {
	switch ref.Kind {
	case KindAnchor:
		v.anchors.del(AnchorID(ref.ID))
	case KindLink:
		v.links.del(LinkID(ref.ID))
	case KindJoint:
		v.joints.del(JointID(ref.ID))
	case KindModel:
		v.models.del(ModelID(ref.ID))
	}
}

func (v *view) flush(w *Workcell) {
	w.meta = v.meta
	v.anchors.flush(w.anchors)
	v.links.flush(w.links)
	v.joints.flush(w.joints)
	v.models.flush(w.models)
}

// allRefs returns every live entity in kind then id order.
func (v *view) allRefs() []Ref {
	var out []Ref
	for _, id := range v.anchors.keys() {
		out = append(out, id.Ref())
	}
	for _, id := range v.links.keys() {
		out = append(out, id.Ref())
	}
	for _, id := range v.joints.keys() {
		out = append(out, id.Ref())
	}
	for _, id := range v.models.keys() {
		out = append(out, id.Ref())
	}
	return out
}

// ---------------------------------------------------------------------------
// Graph helpers
// ---------------------------------------------------------------------------

// referents returns every entity that refers to ref.
func referents(v *view, ref Ref) []Ref {
	var out []Ref
	switch ref.Kind {
	case KindAnchor:
		id := AnchorID(ref.ID)
		v.anchors.each(func(a Anchor) {
			if a.Parent == id {
				out = append(out, a.Ref())
			}
		})
		v.links.each(func(l Link) {
			if l.Anchor == id {
				out = append(out, l.Ref())
			}
		})
		v.joints.each(func(j Joint) {
			if j.Origin == id {
				out = append(out, j.Ref())
			}
		})
		v.models.each(func(m ModelInstance) {
			if m.Anchor == id {
				out = append(out, m.Ref())
			}
		})
	case KindLink:
		id := LinkID(ref.ID)
		v.joints.each(func(j Joint) {
			if j.Parent == id || j.Child == id {
				out = append(out, j.Ref())
			}
		})
		v.models.each(func(m ModelInstance) {
			if m.Link == id {
				out = append(out, m.Ref())
			}
		})
	}
	return out
}

// worldPose composes an anchor's parent chain.
func worldPose(v *view, id AnchorID) (geom.Pose, error) {
	var chain []geom.Pose
	seen := make(map[AnchorID]bool)
	for cur := id; cur != 0; {
		if seen[cur] {
			return geom.Pose{}, newError(ErrCyclicTopology, id.Ref(), "anchor parent chain loops at %s", cur)
		}
		seen[cur] = true
		a, ok := v.anchors.get(cur)
		if !ok {
			return geom.Pose{}, fmt.Errorf("%s: %w", cur, ErrNotFound)
		}
		chain = append(chain, a.Pose)
		cur = a.Parent
	}
	p := geom.Identity()
	for i := len(chain) - 1; i >= 0; i-- {
		p = p.Compose(chain[i])
	}
	return p, nil
}

// parentJoints maps each child link to the joints that claim it, in id
// order.
func (v *view) parentJoints() map[LinkID][]Joint {
	out := make(map[LinkID][]Joint)
	v.joints.each(func(j Joint) {
		out[j.Child] = append(out[j.Child], j)
	})
	return out
}

// ---------------------------------------------------------------------------
// Checks
// ---------------------------------------------------------------------------

// check runs the integrity rules over the present and removed entities, in
// rule order: existence, acyclicity, in-use, uniqueness, then per-kind
// properties. With whole set, present is every entity and duplicate names
// are reported once per pair.
func (v *view) check(present, removed []Ref, whole bool) []*ValidationError {
	var errs []*ValidationError
	for _, r := range present {
		errs = append(errs, v.checkExistence(v.get(r))...)
	}
	parents := v.parentJoints()
	for _, r := range present {
		errs = append(errs, v.checkAcyclic(v.get(r), parents)...)
	}
	for _, r := range removed {
		if refs := referents(v, r); len(refs) > 0 {
			errs = append(errs, newError(ErrReferencedEntityInUse, r,
				"still referenced by %s", refs[0]))
		}
	}
	names := v.nameIndex()
	for _, r := range present {
		errs = append(errs, checkUnique(v.get(r), names, whole)...)
	}
	for _, r := range present {
		errs = append(errs, checkProperties(v.get(r))...)
	}
	return errs
}

func (v *view) checkExistence(e Entity) []*ValidationError {
	var errs []*ValidationError
	need := func(ok bool, what string, id fmt.Stringer) {
		if !ok {
			errs = append(errs, newError(ErrDanglingReference, e.Ref(), "%s %s does not exist", what, id))
		}
	}
	switch x := e.(type) {
	case Anchor:
		if x.Parent != 0 {
			need(v.anchors.has(x.Parent), "parent", x.Parent)
		}
	case Link:
		need(x.Anchor != 0 && v.anchors.has(x.Anchor), "placement", x.Anchor)
	case Joint:
		need(x.Parent != 0 && v.links.has(x.Parent), "parent", x.Parent)
		need(x.Child != 0 && v.links.has(x.Child), "child", x.Child)
		need(x.Origin != 0 && v.anchors.has(x.Origin), "origin", x.Origin)
	case ModelInstance:
		need(x.Anchor != 0 && v.anchors.has(x.Anchor), "placement", x.Anchor)
		if x.Link != 0 {
			need(v.links.has(x.Link), "attachment", x.Link)
		}
	}
	return errs
}

func (v *view) checkAcyclic(e Entity, parents map[LinkID][]Joint) []*ValidationError {
	switch x := e.(type) {
	case Anchor:
		seen := map[AnchorID]bool{}
		for cur := x.Parent; cur != 0 && !seen[cur]; {
			if cur == x.ID {
				return []*ValidationError{newError(ErrCyclicTopology, x.Ref(), "anchor is its own ancestor")}
			}
			seen[cur] = true
			a, ok := v.anchors.get(cur)
			if !ok {
				break
			}
			cur = a.Parent
		}
	case Joint:
		if x.Parent == x.Child {
			return []*ValidationError{newError(ErrCyclicTopology, x.Ref(), "joint connects %s to itself", x.Parent)}
		}
		for _, pj := range parents[x.Child] {
			if pj.ID != x.ID {
				return []*ValidationError{newError(ErrCyclicTopology, x.Ref(),
					"%s already has parent joint %s", x.Child, jointLabel(pj))}
			}
		}
		seen := map[LinkID]bool{}
		for cur := x.Parent; !seen[cur]; {
			if cur == x.Child {
				return []*ValidationError{newError(ErrCyclicTopology, x.Ref(),
					"%s is an ancestor of %s", x.Child, x.Parent)}
			}
			seen[cur] = true
			pjs := parents[cur]
			if len(pjs) == 0 {
				break
			}
			cur = pjs[0].Parent
		}
	}
	return nil
}

func jointLabel(j Joint) string {
	if j.Name != "" {
		return fmt.Sprintf("%q", j.Name)
	}
	return j.ID.String()
}

type nameKey struct {
	kind EntityKind
	name string
}

// nameIndex lists entity ids by kind and name.
func (v *view) nameIndex() map[nameKey][]uint64 {
	idx := make(map[nameKey][]uint64)
	add := func(e Entity) {
		if n := e.EntityName(); n != "" {
			k := nameKey{e.Ref().Kind, n}
			idx[k] = append(idx[k], e.Ref().ID)
		}
	}
	v.anchors.each(func(a Anchor) { add(a) })
	v.links.each(func(l Link) { add(l) })
	v.joints.each(func(j Joint) { add(j) })
	v.models.each(func(m ModelInstance) { add(m) })
	return idx
}

func checkUnique(e Entity, names map[nameKey][]uint64, whole bool) []*ValidationError {
	name := e.EntityName()
	if name == "" {
		return nil
	}
	ref := e.Ref()
	for _, other := range names[nameKey{ref.Kind, name}] {
		if other == ref.ID || (whole && other > ref.ID) {
			continue
		}
		return []*ValidationError{newError(ErrDuplicateIdentifier, ref,
			"name %q is already used by %s %d", name, ref.Kind, other)}
	}
	return nil
}

func checkProperties(e Entity) []*ValidationError {
	var errs []*ValidationError
	bad := func(format string, args ...any) {
		errs = append(errs, newError(ErrInvalidProperty, e.Ref(), format, args...))
	}
	checkPose := func(what string, p *geom.Pose) {
		if p != nil && !finitePose(*p) {
			bad("%s pose is not finite", what)
		}
	}
	switch x := e.(type) {
	case Anchor:
		checkPose("anchor", &x.Pose)
	case Link:
		checkPose("offset", x.Offset)
		for i, g := range x.Visuals {
			if msg := geometryProblem(g); msg != "" {
				bad("visual %d: %s", i, msg)
			}
		}
		for i, g := range x.Collisions {
			if msg := geometryProblem(g); msg != "" {
				bad("collision %d: %s", i, msg)
			}
		}
		if x.Inertial != nil {
			if x.Inertial.Mass < 0 || !finite(x.Inertial.Mass) {
				bad("mass %g must be non-negative", x.Inertial.Mass)
			}
			in := x.Inertial.Inertia
			if !finite(in.IXX, in.IXY, in.IXZ, in.IYY, in.IYZ, in.IZZ) {
				bad("inertia tensor is not finite")
			}
			checkPose("inertial", &x.Inertial.Origin)
		}
	case Joint:
		checkPose("joint", x.Offset)
		if x.Kind < JointFixed || x.Kind > JointPlanar {
			bad("unknown joint kind %d", int(x.Kind))
			break
		}
		if !finiteVec(x.Axis) {
			bad("axis %s is not finite", x.Axis)
		} else if x.Kind.RequiresAxis() && x.Axis.IsZero() {
			bad("%s joint requires a non-zero axis", x.Kind)
		}
		switch {
		case x.Kind.RequiresLimits() && x.Limits == nil:
			bad("%s joint requires limits", x.Kind)
		case !x.Kind.AllowsLimits() && x.Limits != nil:
			bad("%s joint cannot have limits", x.Kind)
		case x.Limits != nil:
			l := x.Limits
			if !finite(l.Lower, l.Upper, l.Velocity, l.Effort) {
				bad("limits must be finite")
				break
			}
			if x.Kind.RequiresLimits() && x.Limits.Lower > x.Limits.Upper {
				bad("lower limit %g exceeds upper limit %g", x.Limits.Lower, x.Limits.Upper)
			}
			if x.Limits.Velocity < 0 || x.Limits.Effort < 0 {
				bad("velocity and effort limits must be non-negative")
			}
		}
	case ModelInstance:
		checkPose("offset", x.Offset)
		if x.Asset == "" {
			bad("model has no asset reference")
		}
		if x.Scale != nil && !finiteVec(*x.Scale) {
			bad("scale %s is not finite", *x.Scale)
		} else if x.Scale != nil && (x.Scale.X <= 0 || x.Scale.Y <= 0 || x.Scale.Z <= 0) {
			bad("scale %s must be positive", *x.Scale)
		}
	}
	return errs
}

func geometryProblem(g Geometry) string {
	if !finitePose(g.Origin) {
		return "origin is not finite"
	}
	switch s := g.Shape.(type) {
	case nil:
		return "missing shape"
	case Box:
		if !finiteVec(s.Size) {
			return fmt.Sprintf("box size %s is not finite", s.Size)
		}
		if s.Size.X <= 0 || s.Size.Y <= 0 || s.Size.Z <= 0 {
			return fmt.Sprintf("box size %s must be positive", s.Size)
		}
	case Cylinder:
		if !finite(s.Radius, s.Length) {
			return "cylinder dimensions are not finite"
		}
		if s.Radius <= 0 || s.Length <= 0 {
			return "cylinder radius and length must be positive"
		}
	case Sphere:
		if !finite(s.Radius) {
			return "sphere radius is not finite"
		}
		if s.Radius <= 0 {
			return "sphere radius must be positive"
		}
	case Mesh:
		if s.Source == "" {
			return "mesh has no source"
		}
		if s.Scale != nil && !finiteVec(*s.Scale) {
			return "mesh scale is not finite"
		}
		if s.Scale != nil && (s.Scale.X == 0 || s.Scale.Y == 0 || s.Scale.Z == 0) {
			return "mesh scale must be non-zero"
		}
	}
	if m := g.Material; m != nil && m.Color != nil && !finite(m.Color.R, m.Color.G, m.Color.B, m.Color.A) {
		return "material colour is not finite"
	}
	return ""
}

func finite(fs ...float64) bool {
	for _, f := range fs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func finiteVec(v geom.Vec3) bool { return finite(v.X, v.Y, v.Z) }

func finitePose(p geom.Pose) bool {
	return finiteVec(p.Position) && finite(p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Rotation.W)
}
