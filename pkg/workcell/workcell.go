package workcell

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/chazu/workcell/pkg/geom"
)

// Observer is notified after every successful commit.
type Observer interface {
	Committed(w *Workcell, cs ChangeSet)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(w *Workcell, cs ChangeSet)

// Committed calls f(w, cs).
func (f ObserverFunc) Committed(w *Workcell, cs ChangeSet) { f(w, cs) }

// Workcell is the authoritative owner of all entities. It is not safe for
// concurrent mutation; callers serialize writes (see package editor).
type Workcell struct {
	meta    Metadata
	anchors map[AnchorID]Anchor
	links   map[LinkID]Link
	joints  map[JointID]Joint
	models  map[ModelID]ModelInstance

	ids       Allocator
	observers map[int]Observer
	nextObs   int
}

// New creates an empty workcell in metres with Z up.
func New() *Workcell {
	return &Workcell{
		anchors:   make(map[AnchorID]Anchor),
		links:     make(map[LinkID]Link),
		joints:    make(map[JointID]Joint),
		models:    make(map[ModelID]ModelInstance),
		observers: make(map[int]Observer),
	}
}

// Observe registers o and returns a function that unregisters it.
func (w *Workcell) Observe(o Observer) (cancel func()) {
	id := w.nextObs
	w.nextObs++
	w.observers[id] = o
	return func() { delete(w.observers, id) }
}

func (w *Workcell) notify(cs ChangeSet) {
	keys := make([]int, 0, len(w.observers))
	for k := range w.observers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if o, ok := w.observers[k]; ok {
			o.Committed(w, cs)
		}
	}
}

// Clone returns a deep copy of w without its observers. The copy continues
// the id sequence where w left off.
func (w *Workcell) Clone() *Workcell {
	c := New()
	c.meta = w.meta
	for id, a := range w.anchors {
		c.anchors[id] = a.clone()
	}
	for id, l := range w.links {
		c.links[id] = l.clone()
	}
	for id, j := range w.joints {
		c.joints[id] = j.clone()
	}
	for id, m := range w.models {
		c.models[id] = m.clone()
	}
	c.ids.Observe(w.ids.Last())
	return c
}

// Equal reports whether w and o hold the same metadata and entities.
// Observers and the id counter are ignored.
func (w *Workcell) Equal(o *Workcell) bool {
	return w.meta == o.meta &&
		reflect.DeepEqual(w.anchors, o.anchors) &&
		reflect.DeepEqual(w.links, o.links) &&
		reflect.DeepEqual(w.joints, o.joints) &&
		reflect.DeepEqual(w.models, o.models)
}

// LastID returns the highest id ever allocated by w.
func (w *Workcell) LastID() uint64 { return w.ids.Last() }

// ReserveIDs advances the id counter past id. Decoders use it so that ids
// of removed entities recorded in a document are not reissued.
func (w *Workcell) ReserveIDs(id uint64) { w.ids.Observe(id) }

// NextID reserves a fresh id. It is used when assembling change sets that
// create several entities at once.
func (w *Workcell) NextID() uint64 { return w.ids.Next() }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Metadata returns the workcell metadata.
func (w *Workcell) Metadata() Metadata { return w.meta }

// Anchor returns the anchor with the given id.
func (w *Workcell) Anchor(id AnchorID) (Anchor, bool) {
	a, ok := w.anchors[id]
	return a.clone(), ok
}

// Link returns the link with the given id.
func (w *Workcell) Link(id LinkID) (Link, bool) {
	l, ok := w.links[id]
	return l.clone(), ok
}

// Joint returns the joint with the given id.
func (w *Workcell) Joint(id JointID) (Joint, bool) {
	j, ok := w.joints[id]
	return j.clone(), ok
}

// Model returns the model instance with the given id.
func (w *Workcell) Model(id ModelID) (ModelInstance, bool) {
	m, ok := w.models[id]
	return m.clone(), ok
}

// Entity returns the entity named by ref, or nil.
func (w *Workcell) Entity(ref Ref) Entity {
	switch ref.Kind {
	case KindAnchor:
		if a, ok := w.anchors[AnchorID(ref.ID)]; ok {
			return a.clone()
		}
	case KindLink:
		if l, ok := w.links[LinkID(ref.ID)]; ok {
			return l.clone()
		}
	case KindJoint:
		if j, ok := w.joints[JointID(ref.ID)]; ok {
			return j.clone()
		}
	case KindModel:
		if m, ok := w.models[ModelID(ref.ID)]; ok {
			return m.clone()
		}
	}
	return nil
}

func sortedValues[K cmp.Ordered, V any](m map[K]V, clone func(V) V) []V {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]V, len(keys))
	for i, k := range keys {
		out[i] = clone(m[k])
	}
	return out
}

// Anchors returns all anchors ordered by id.
func (w *Workcell) Anchors() []Anchor {
	return sortedValues(w.anchors, Anchor.clone)
}

// Links returns all links ordered by id.
func (w *Workcell) Links() []Link {
	return sortedValues(w.links, Link.clone)
}

// Joints returns all joints ordered by id.
func (w *Workcell) Joints() []Joint {
	return sortedValues(w.joints, Joint.clone)
}

// Models returns all model instances ordered by id.
func (w *Workcell) Models() []ModelInstance {
	return sortedValues(w.models, ModelInstance.clone)
}

// Counts returns the number of anchors, links, joints and models.
func (w *Workcell) Counts() (anchors, links, joints, models int) {
	return len(w.anchors), len(w.links), len(w.joints), len(w.models)
}

// IsEmpty reports whether w holds no entities.
func (w *Workcell) IsEmpty() bool {
	return len(w.anchors)+len(w.links)+len(w.joints)+len(w.models) == 0
}

// AnchorByName returns the anchor with the given name.
func (w *Workcell) AnchorByName(name string) (Anchor, bool) {
	for _, a := range w.anchors {
		if a.Name == name && name != "" {
			return a.clone(), true
		}
	}
	return Anchor{}, false
}

// LinkByName returns the link with the given name.
func (w *Workcell) LinkByName(name string) (Link, bool) {
	for _, l := range w.links {
		if l.Name == name && name != "" {
			return l.clone(), true
		}
	}
	return Link{}, false
}

// JointByName returns the joint with the given name.
func (w *Workcell) JointByName(name string) (Joint, bool) {
	for _, j := range w.joints {
		if j.Name == name && name != "" {
			return j.clone(), true
		}
	}
	return Joint{}, false
}

// ModelByName returns the model instance with the given name.
func (w *Workcell) ModelByName(name string) (ModelInstance, bool) {
	for _, m := range w.models {
		if m.Name == name && name != "" {
			return m.clone(), true
		}
	}
	return ModelInstance{}, false
}

// ---------------------------------------------------------------------------
// Topology queries
// ---------------------------------------------------------------------------

// ParentJoint returns the joint whose child is link.
func (w *Workcell) ParentJoint(link LinkID) (Joint, bool) {
	for _, j := range w.Joints() {
		if j.Child == link {
			return j, true
		}
	}
	return Joint{}, false
}

// ChildJoints returns the joints whose parent is link, ordered by id.
func (w *Workcell) ChildJoints(link LinkID) []Joint {
	var out []Joint
	for _, j := range w.Joints() {
		if j.Parent == link {
			out = append(out, j)
		}
	}
	return out
}

// Roots returns the links that are no joint's child, ordered by id.
func (w *Workcell) Roots() []LinkID {
	children := make(map[LinkID]bool, len(w.joints))
	for _, j := range w.joints {
		children[j.Child] = true
	}
	var roots []LinkID
	for _, l := range w.Links() {
		if !children[l.ID] {
			roots = append(roots, l.ID)
		}
	}
	return roots
}

// Subtree returns link and every link reachable from it through child
// joints, in breadth-first order.
func (w *Workcell) Subtree(link LinkID) []LinkID {
	if _, ok := w.links[link]; !ok {
		return nil
	}
	out := []LinkID{link}
	seen := map[LinkID]bool{link: true}
	for i := 0; i < len(out); i++ {
		for _, j := range w.ChildJoints(out[i]) {
			if !seen[j.Child] {
				seen[j.Child] = true
				out = append(out, j.Child)
			}
		}
	}
	return out
}

// Referents returns every entity that refers to ref, ordered by kind and id.
func (w *Workcell) Referents(ref Ref) []Ref {
	return referents(viewOf(w), ref)
}

// ---------------------------------------------------------------------------
// Poses
// ---------------------------------------------------------------------------

// WorldPose resolves the world pose of an anchor by composing its parent
// chain.
func (w *Workcell) WorldPose(id AnchorID) (geom.Pose, error) {
	return worldPose(viewOf(w), id)
}

// LinkPose returns the world pose of a link frame.
func (w *Workcell) LinkPose(id LinkID) (geom.Pose, error) {
	l, ok := w.links[id]
	if !ok {
		return geom.Pose{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	p, err := w.WorldPose(l.Anchor)
	if err != nil {
		return geom.Pose{}, err
	}
	return p.Compose(l.Frame()), nil
}

// JointPose returns the world pose of a joint frame.
func (w *Workcell) JointPose(id JointID) (geom.Pose, error) {
	j, ok := w.joints[id]
	if !ok {
		return geom.Pose{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	p, err := w.WorldPose(j.Origin)
	if err != nil {
		return geom.Pose{}, err
	}
	return p.Compose(j.Frame()), nil
}

// ModelPose returns the world pose of a model instance frame.
func (w *Workcell) ModelPose(id ModelID) (geom.Pose, error) {
	m, ok := w.models[id]
	if !ok {
		return geom.Pose{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	p, err := w.WorldPose(m.Anchor)
	if err != nil {
		return geom.Pose{}, err
	}
	return p.Compose(m.Frame()), nil
}
