package workcell

import (
	"fmt"
	"strings"

	"github.com/chazu/workcell/pkg/geom"
)

// Entity is implemented by the four entity records a workcell owns.
// Records are plain values; the workcell stores private copies.
type Entity interface {
	Ref() Ref
	EntityName() string
	entity() // marker method restricting implementations to this package
}

// ---------------------------------------------------------------------------
// Anchor
// ---------------------------------------------------------------------------

// Anchor is a named reference frame. Its Pose is relative to Parent, or to
// the world when Parent is zero.
type Anchor struct {
	ID     AnchorID
	Name   string
	Pose   geom.Pose
	Parent AnchorID
}

func (a Anchor) Ref() Ref           { return a.ID.Ref() }
func (a Anchor) EntityName() string { return a.Name }
func (Anchor) entity()              {}

func (a Anchor) clone() Anchor { return a }

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

// Shape is the tagged union of geometry shapes.
type Shape interface {
	ShapeKind() string
	shape()
}

// Box is an axis-aligned box centred on its origin.
type Box struct {
	Size geom.Vec3
}

// Cylinder is centred on its origin with its axis along Z.
type Cylinder struct {
	Radius float64
	Length float64
}

// Sphere is centred on its origin.
type Sphere struct {
	Radius float64
}

// Mesh references external mesh data by asset path.
type Mesh struct {
	Source string
	Scale  *geom.Vec3 // nil means unit scale
}

func (Box) ShapeKind() string      { return "box" }
func (Cylinder) ShapeKind() string { return "cylinder" }
func (Sphere) ShapeKind() string   { return "sphere" }
func (Mesh) ShapeKind() string     { return "mesh" }

func (Box) shape()      {}
func (Cylinder) shape() {}
func (Sphere) shape()   {}
func (Mesh) shape()     {}

// RGBA is a linear colour with components in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// Material is an optional visual appearance.
type Material struct {
	Name    string
	Color   *RGBA
	Texture string
}

// Geometry is a visual or collision element of a link.
type Geometry struct {
	Name     string
	Origin   geom.Pose // relative to the link frame
	Shape    Shape
	Material *Material // visuals only
	// Placeholder marks geometry that stands in for an asset that could
	// not be resolved at import time.
	Placeholder bool
}

func (g Geometry) clone() Geometry {
	if m, ok := g.Shape.(Mesh); ok && m.Scale != nil {
		s := *m.Scale
		m.Scale = &s
		g.Shape = m
	}
	if g.Material != nil {
		m := *g.Material
		if m.Color != nil {
			c := *m.Color
			m.Color = &c
		}
		g.Material = &m
	}
	return g
}

// Scaled returns g with every length multiplied by f.
func (g Geometry) Scaled(f float64) Geometry {
	g = g.clone()
	g.Origin = g.Origin.Scaled(f)
	switch s := g.Shape.(type) {
	case Box:
		g.Shape = Box{Size: s.Size.Scale(f)}
	case Cylinder:
		g.Shape = Cylinder{Radius: s.Radius * f, Length: s.Length * f}
	case Sphere:
		g.Shape = Sphere{Radius: s.Radius * f}
	case Mesh:
		sc := geom.Vec3{X: 1, Y: 1, Z: 1}
		if s.Scale != nil {
			sc = *s.Scale
		}
		sc = sc.Scale(f)
		s.Scale = &sc
		g.Shape = s
	}
	return g
}

// ---------------------------------------------------------------------------
// Inertial
// ---------------------------------------------------------------------------

// Inertia is the upper triangle of a symmetric inertia tensor.
type Inertia struct {
	IXX, IXY, IXZ, IYY, IYZ, IZZ float64
}

// Inertial holds the mass properties of a link.
type Inertial struct {
	Origin  geom.Pose // centre of mass relative to the link frame
	Mass    float64
	Inertia Inertia
}

// DefaultInertial is used when a document omits mass properties.
func DefaultInertial() Inertial {
	return Inertial{
		Origin:  geom.Identity(),
		Mass:    1,
		Inertia: Inertia{IXX: 1, IYY: 1, IZZ: 1},
	}
}

// Scaled returns in converted by the length factor f: lengths scale by f
// and inertia moments by f squared.
func (in Inertial) Scaled(f float64) Inertial {
	f2 := f * f
	in.Origin = in.Origin.Scaled(f)
	in.Inertia = Inertia{
		IXX: in.Inertia.IXX * f2, IXY: in.Inertia.IXY * f2, IXZ: in.Inertia.IXZ * f2,
		IYY: in.Inertia.IYY * f2, IYZ: in.Inertia.IYZ * f2,
		IZZ: in.Inertia.IZZ * f2,
	}
	return in
}

// ---------------------------------------------------------------------------
// Link
// ---------------------------------------------------------------------------

// Link is a rigid body positioned by an anchor. Offset, when set, is the
// link frame relative to the anchor.
type Link struct {
	ID         LinkID
	Name       string
	Anchor     AnchorID
	Offset     *geom.Pose
	Visuals    []Geometry
	Collisions []Geometry
	Inertial   *Inertial
}

func (l Link) Ref() Ref           { return l.ID.Ref() }
func (l Link) EntityName() string { return l.Name }
func (Link) entity()              {}

func (l Link) clone() Link {
	if l.Offset != nil {
		o := *l.Offset
		l.Offset = &o
	}
	if l.Inertial != nil {
		in := *l.Inertial
		l.Inertial = &in
	}
	l.Visuals = cloneGeometry(l.Visuals)
	l.Collisions = cloneGeometry(l.Collisions)
	return l
}

func cloneGeometry(gs []Geometry) []Geometry {
	if len(gs) == 0 {
		return nil
	}
	out := make([]Geometry, len(gs))
	for i, g := range gs {
		out[i] = g.clone()
	}
	return out
}

// Frame returns the link frame relative to its anchor.
func (l Link) Frame() geom.Pose {
	if l.Offset == nil {
		return geom.Identity()
	}
	return *l.Offset
}

// ---------------------------------------------------------------------------
// Joint
// ---------------------------------------------------------------------------

// JointKind enumerates the kinematic joint types.
type JointKind int

const (
	JointFixed JointKind = iota
	JointRevolute
	JointContinuous
	JointPrismatic
	JointFloating
	JointPlanar
)

func (k JointKind) String() string {
	switch k {
	case JointFixed:
		return "fixed"
	case JointRevolute:
		return "revolute"
	case JointContinuous:
		return "continuous"
	case JointPrismatic:
		return "prismatic"
	case JointFloating:
		return "floating"
	case JointPlanar:
		return "planar"
	default:
		return fmt.Sprintf("JointKind(%d)", int(k))
	}
}

// ParseJointKind parses a joint type name.
func ParseJointKind(s string) (JointKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fixed":
		return JointFixed, nil
	case "revolute":
		return JointRevolute, nil
	case "continuous":
		return JointContinuous, nil
	case "prismatic":
		return JointPrismatic, nil
	case "floating":
		return JointFloating, nil
	case "planar":
		return JointPlanar, nil
	}
	return JointFixed, fmt.Errorf("unknown joint kind %q", s)
}

// RequiresAxis reports whether joints of kind k need a motion axis.
func (k JointKind) RequiresAxis() bool {
	switch k {
	case JointRevolute, JointContinuous, JointPrismatic, JointPlanar:
		return true
	}
	return false
}

// RequiresLimits reports whether joints of kind k need motion limits.
func (k JointKind) RequiresLimits() bool {
	return k == JointRevolute || k == JointPrismatic
}

// AllowsLimits reports whether joints of kind k may carry limits.
func (k JointKind) AllowsLimits() bool {
	return k != JointFixed && k != JointFloating
}

// Limits bound a joint's motion.
type Limits struct {
	Lower    float64
	Upper    float64
	Velocity float64
	Effort   float64
}

// Joint connects a parent link to a child link. Origin is the joint frame.
type Joint struct {
	ID     JointID
	Name   string
	Kind   JointKind
	Parent LinkID
	Child  LinkID
	Origin AnchorID
	Offset *geom.Pose // joint frame relative to Origin
	Axis   geom.Vec3  // in the joint frame
	Limits *Limits
}

func (j Joint) Ref() Ref           { return j.ID.Ref() }
func (j Joint) EntityName() string { return j.Name }
func (Joint) entity()              {}

func (j Joint) clone() Joint {
	if j.Offset != nil {
		o := *j.Offset
		j.Offset = &o
	}
	if j.Limits != nil {
		l := *j.Limits
		j.Limits = &l
	}
	return j
}

// Frame returns the joint frame relative to its origin anchor.
func (j Joint) Frame() geom.Pose {
	if j.Offset == nil {
		return geom.Identity()
	}
	return *j.Offset
}

// ---------------------------------------------------------------------------
// ModelInstance
// ---------------------------------------------------------------------------

// ModelInstance places an external asset at an anchor, optionally rigidly
// attached to a link.
type ModelInstance struct {
	ID     ModelID
	Name   string
	Asset  string
	Anchor AnchorID
	Offset *geom.Pose
	Scale  *geom.Vec3 // nil means unit scale
	Link   LinkID     // zero when free-floating
}

func (m ModelInstance) Ref() Ref           { return m.ID.Ref() }
func (m ModelInstance) EntityName() string { return m.Name }
func (ModelInstance) entity()              {}

func (m ModelInstance) clone() ModelInstance {
	if m.Offset != nil {
		o := *m.Offset
		m.Offset = &o
	}
	if m.Scale != nil {
		s := *m.Scale
		m.Scale = &s
	}
	return m
}

// Frame returns the model frame relative to its anchor.
func (m ModelInstance) Frame() geom.Pose {
	if m.Offset == nil {
		return geom.Identity()
	}
	return *m.Offset
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

// Metadata is workcell-wide document information.
type Metadata struct {
	Name   string
	Unit   geom.Unit
	UpAxis geom.UpAxis
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// cloneEntity returns a deep copy of e.
func cloneEntity(e Entity) Entity {
	switch v := e.(type) {
	case Anchor:
		return v.clone()
	case Link:
		return v.clone()
	case Joint:
		return v.clone()
	case ModelInstance:
		return v.clone()
	case nil:
		return nil
	}
	panic(fmt.Sprintf("workcell: unknown entity type %T", e))
}
