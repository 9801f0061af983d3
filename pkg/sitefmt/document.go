// Package sitefmt is the editor's native save format. A site document
// holds the full workcell keyed by stable decimal id strings; every
// cross-reference is an id string, never an array position.
package sitefmt

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/workcell"
)

// FormatVersion is the document version written by this package.
const FormatVersion = 1

// Document is the serialized form of a workcell. The same structure backs
// the JSON, CBOR and compressed encodings; CBOR picks up the json tags.
type Document struct {
	FormatVersion int                  `json:"format_version"`
	NextID        uint64               `json:"next_id,omitempty"`
	Metadata      metadataDoc          `json:"metadata"`
	Anchors       map[string]anchorDoc `json:"anchors"`
	Links         map[string]linkDoc   `json:"links"`
	Joints        map[string]jointDoc  `json:"joints"`
	Models        map[string]modelDoc  `json:"model_instances"`
}

type metadataDoc struct {
	Name   string      `json:"name"`
	Unit   geom.Unit   `json:"unit"`
	UpAxis geom.UpAxis `json:"up_axis"`
}

type poseDoc struct {
	Position [3]float64 `json:"position"`
	Rotation [4]float64 `json:"rotation"` // x, y, z, w
}

type anchorDoc struct {
	Name   string  `json:"name,omitempty"`
	Pose   poseDoc `json:"pose"`
	Parent string  `json:"parent,omitempty"`
}

type shapeDoc struct {
	Kind   string      `json:"kind"`
	Size   *[3]float64 `json:"size,omitempty"`
	Radius float64     `json:"radius,omitempty"`
	Length float64     `json:"length,omitempty"`
	Source string      `json:"source,omitempty"`
	Scale  *[3]float64 `json:"scale,omitempty"`
}

type materialDoc struct {
	Name    string      `json:"name,omitempty"`
	Color   *[4]float64 `json:"color,omitempty"`
	Texture string      `json:"texture,omitempty"`
}

type geometryDoc struct {
	Name        string       `json:"name,omitempty"`
	Origin      poseDoc      `json:"origin"`
	Shape       shapeDoc     `json:"shape"`
	Material    *materialDoc `json:"material,omitempty"`
	Placeholder bool         `json:"placeholder,omitempty"`
}

type inertiaDoc struct {
	IXX float64 `json:"ixx"`
	IXY float64 `json:"ixy"`
	IXZ float64 `json:"ixz"`
	IYY float64 `json:"iyy"`
	IYZ float64 `json:"iyz"`
	IZZ float64 `json:"izz"`
}

type inertialDoc struct {
	Origin  poseDoc    `json:"origin"`
	Mass    float64    `json:"mass"`
	Inertia inertiaDoc `json:"inertia"`
}

type linkDoc struct {
	Name       string        `json:"name,omitempty"`
	Anchor     string        `json:"anchor"`
	Offset     *poseDoc      `json:"offset,omitempty"`
	Visuals    []geometryDoc `json:"visuals,omitempty"`
	Collisions []geometryDoc `json:"collisions,omitempty"`
	Inertial   *inertialDoc  `json:"inertial,omitempty"`
}

type limitsDoc struct {
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	Velocity float64 `json:"velocity"`
	Effort   float64 `json:"effort"`
}

type jointDoc struct {
	Name   string      `json:"name,omitempty"`
	Kind   string      `json:"kind"`
	Parent string      `json:"parent"`
	Child  string      `json:"child"`
	Origin string      `json:"origin"`
	Offset *poseDoc    `json:"offset,omitempty"`
	Axis   *[3]float64 `json:"axis,omitempty"`
	Limits *limitsDoc  `json:"limits,omitempty"`
}

type modelDoc struct {
	Name   string      `json:"name,omitempty"`
	Asset  string      `json:"asset"`
	Anchor string      `json:"anchor"`
	Offset *poseDoc    `json:"offset,omitempty"`
	Scale  *[3]float64 `json:"scale,omitempty"`
	Link   string      `json:"link,omitempty"`
}

// ---------------------------------------------------------------------------
// Workcell -> Document
// ---------------------------------------------------------------------------

func key(id uint64) string { return strconv.FormatUint(id, 10) }

func ref(id uint64) string {
	if id == 0 {
		return ""
	}
	return key(id)
}

func vec3(v geom.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func optVec3(v *geom.Vec3) *[3]float64 {
	if v == nil {
		return nil
	}
	a := vec3(*v)
	return &a
}

func pose(p geom.Pose) poseDoc {
	return poseDoc{
		Position: vec3(p.Position),
		Rotation: [4]float64{p.Rotation.X, p.Rotation.Y, p.Rotation.Z, p.Rotation.W},
	}
}

func optPose(p *geom.Pose) *poseDoc {
	if p == nil {
		return nil
	}
	d := pose(*p)
	return &d
}

func geometries(gs []workcell.Geometry) []geometryDoc {
	if len(gs) == 0 {
		return nil
	}
	out := make([]geometryDoc, len(gs))
	for i, g := range gs {
		gd := geometryDoc{Name: g.Name, Origin: pose(g.Origin), Placeholder: g.Placeholder}
		switch s := g.Shape.(type) {
		case workcell.Box:
			size := vec3(s.Size)
			gd.Shape = shapeDoc{Kind: s.ShapeKind(), Size: &size}
		case workcell.Cylinder:
			gd.Shape = shapeDoc{Kind: s.ShapeKind(), Radius: s.Radius, Length: s.Length}
		case workcell.Sphere:
			gd.Shape = shapeDoc{Kind: s.ShapeKind(), Radius: s.Radius}
		case workcell.Mesh:
			gd.Shape = shapeDoc{Kind: s.ShapeKind(), Source: s.Source, Scale: optVec3(s.Scale)}
		}
		if m := g.Material; m != nil {
			md := &materialDoc{Name: m.Name, Texture: m.Texture}
			if c := m.Color; c != nil {
				md.Color = &[4]float64{c.R, c.G, c.B, c.A}
			}
			gd.Material = md
		}
		out[i] = gd
	}
	return out
}

// NewDocument captures the state of w.
func NewDocument(w *workcell.Workcell) *Document {
	meta := w.Metadata()
	doc := &Document{
		FormatVersion: FormatVersion,
		NextID:        w.LastID(),
		Metadata:      metadataDoc{Name: meta.Name, Unit: meta.Unit, UpAxis: meta.UpAxis},
		Anchors:       make(map[string]anchorDoc),
		Links:         make(map[string]linkDoc),
		Joints:        make(map[string]jointDoc),
		Models:        make(map[string]modelDoc),
	}
	for _, a := range w.Anchors() {
		doc.Anchors[key(uint64(a.ID))] = anchorDoc{Name: a.Name, Pose: pose(a.Pose), Parent: ref(uint64(a.Parent))}
	}
	for _, l := range w.Links() {
		ld := linkDoc{
			Name:       l.Name,
			Anchor:     ref(uint64(l.Anchor)),
			Offset:     optPose(l.Offset),
			Visuals:    geometries(l.Visuals),
			Collisions: geometries(l.Collisions),
		}
		if in := l.Inertial; in != nil {
			ld.Inertial = &inertialDoc{
				Origin: pose(in.Origin),
				Mass:   in.Mass,
				Inertia: inertiaDoc{
					IXX: in.Inertia.IXX, IXY: in.Inertia.IXY, IXZ: in.Inertia.IXZ,
					IYY: in.Inertia.IYY, IYZ: in.Inertia.IYZ, IZZ: in.Inertia.IZZ,
				},
			}
		}
		doc.Links[key(uint64(l.ID))] = ld
	}
	for _, j := range w.Joints() {
		jd := jointDoc{
			Name:   j.Name,
			Kind:   j.Kind.String(),
			Parent: ref(uint64(j.Parent)),
			Child:  ref(uint64(j.Child)),
			Origin: ref(uint64(j.Origin)),
			Offset: optPose(j.Offset),
		}
		if !j.Axis.IsZero() {
			jd.Axis = optVec3(&j.Axis)
		}
		if lim := j.Limits; lim != nil {
			jd.Limits = &limitsDoc{Lower: lim.Lower, Upper: lim.Upper, Velocity: lim.Velocity, Effort: lim.Effort}
		}
		doc.Joints[key(uint64(j.ID))] = jd
	}
	for _, m := range w.Models() {
		doc.Models[key(uint64(m.ID))] = modelDoc{
			Name:   m.Name,
			Asset:  m.Asset,
			Anchor: ref(uint64(m.Anchor)),
			Offset: optPose(m.Offset),
			Scale:  optVec3(m.Scale),
			Link:   ref(uint64(m.Link)),
		}
	}
	return doc
}

// ---------------------------------------------------------------------------
// Document -> Workcell
// ---------------------------------------------------------------------------

func malformed(format string, args ...any) error {
	return workcell.Errorf(workcell.ErrMalformedDocument, workcell.Ref{}, format, args...)
}

// parseKey parses a section key. Keys must be canonical positive decimals.
func parseKey(section, k string) (uint64, error) {
	id, err := strconv.ParseUint(k, 10, 64)
	if err != nil || id == 0 || key(id) != k {
		return 0, malformed("%s: %q is not a valid id", section, k)
	}
	return id, nil
}

// parseRef parses a reference field. The empty string is the zero id.
func parseRef(what, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 || key(id) != s {
		return 0, malformed("%s: %q is not a valid id reference", what, s)
	}
	return id, nil
}

func toVec3(a [3]float64) geom.Vec3 { return geom.Vec3{X: a[0], Y: a[1], Z: a[2]} }

func toOptVec3(a *[3]float64) *geom.Vec3 {
	if a == nil {
		return nil
	}
	v := toVec3(*a)
	return &v
}

func toPose(d poseDoc) geom.Pose {
	return geom.Pose{
		Position: toVec3(d.Position),
		Rotation: geom.Quat{X: d.Rotation[0], Y: d.Rotation[1], Z: d.Rotation[2], W: d.Rotation[3]},
	}
}

func toOptPose(d *poseDoc) *geom.Pose {
	if d == nil {
		return nil
	}
	p := toPose(*d)
	return &p
}

func toGeometries(what string, gds []geometryDoc) ([]workcell.Geometry, error) {
	if len(gds) == 0 {
		return nil, nil
	}
	out := make([]workcell.Geometry, len(gds))
	for i, gd := range gds {
		g := workcell.Geometry{Name: gd.Name, Origin: toPose(gd.Origin), Placeholder: gd.Placeholder}
		switch s := gd.Shape; s.Kind {
		case "box":
			if s.Size == nil {
				return nil, malformed("%s %d: box has no size", what, i)
			}
			g.Shape = workcell.Box{Size: toVec3(*s.Size)}
		case "cylinder":
			g.Shape = workcell.Cylinder{Radius: s.Radius, Length: s.Length}
		case "sphere":
			g.Shape = workcell.Sphere{Radius: s.Radius}
		case "mesh":
			g.Shape = workcell.Mesh{Source: s.Source, Scale: toOptVec3(s.Scale)}
		default:
			return nil, malformed("%s %d: unknown shape kind %q", what, i, s.Kind)
		}
		if md := gd.Material; md != nil {
			m := &workcell.Material{Name: md.Name, Texture: md.Texture}
			if c := md.Color; c != nil {
				m.Color = &workcell.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
			}
			g.Material = m
		}
		out[i] = g
	}
	return out, nil
}

// changes converts doc into a change set that creates every entity on an
// empty workcell, plus the highest id the document accounts for.
func (doc *Document) changes() (workcell.ChangeSet, uint64, error) {
	cs := workcell.ChangeSet{Label: "open document"}
	maxID := doc.NextID
	owner := make(map[uint64]string)
	claim := func(section, k string) (uint64, error) {
		id, err := parseKey(section, k)
		if err != nil {
			return 0, err
		}
		if prev, ok := owner[id]; ok {
			return 0, workcell.Errorf(workcell.ErrDuplicateIdentifier, workcell.Ref{},
				"id %d is used in both %s and %s", id, prev, section)
		}
		owner[id] = section
		maxID = max(maxID, id)
		return id, nil
	}

	for _, k := range sortedKeys(doc.Anchors) {
		id, err := claim("anchors", k)
		if err != nil {
			return cs, 0, err
		}
		ad := doc.Anchors[k]
		parent, err := parseRef("anchor "+k+" parent", ad.Parent)
		if err != nil {
			return cs, 0, err
		}
		cs.Changes = append(cs.Changes, workcell.Change{After: workcell.Anchor{
			ID: workcell.AnchorID(id), Name: ad.Name, Pose: toPose(ad.Pose), Parent: workcell.AnchorID(parent),
		}})
	}

	for _, k := range sortedKeys(doc.Links) {
		id, err := claim("links", k)
		if err != nil {
			return cs, 0, err
		}
		ld := doc.Links[k]
		anchor, err := parseRef("link "+k+" anchor", ld.Anchor)
		if err != nil {
			return cs, 0, err
		}
		l := workcell.Link{ID: workcell.LinkID(id), Name: ld.Name, Anchor: workcell.AnchorID(anchor), Offset: toOptPose(ld.Offset)}
		if l.Visuals, err = toGeometries("link "+k+" visual", ld.Visuals); err != nil {
			return cs, 0, err
		}
		if l.Collisions, err = toGeometries("link "+k+" collision", ld.Collisions); err != nil {
			return cs, 0, err
		}
		if in := ld.Inertial; in != nil {
			l.Inertial = &workcell.Inertial{
				Origin: toPose(in.Origin),
				Mass:   in.Mass,
				Inertia: workcell.Inertia{
					IXX: in.Inertia.IXX, IXY: in.Inertia.IXY, IXZ: in.Inertia.IXZ,
					IYY: in.Inertia.IYY, IYZ: in.Inertia.IYZ, IZZ: in.Inertia.IZZ,
				},
			}
		}
		cs.Changes = append(cs.Changes, workcell.Change{After: l})
	}

	for _, k := range sortedKeys(doc.Joints) {
		id, err := claim("joints", k)
		if err != nil {
			return cs, 0, err
		}
		jd := doc.Joints[k]
		kind, err := workcell.ParseJointKind(jd.Kind)
		if err != nil {
			return cs, 0, malformed("joint %s: %v", k, err)
		}
		var refs [3]uint64
		for i, f := range []struct{ what, s string }{
			{"parent", jd.Parent}, {"child", jd.Child}, {"origin", jd.Origin},
		} {
			if refs[i], err = parseRef(fmt.Sprintf("joint %s %s", k, f.what), f.s); err != nil {
				return cs, 0, err
			}
		}
		j := workcell.Joint{
			ID:     workcell.JointID(id),
			Name:   jd.Name,
			Kind:   kind,
			Parent: workcell.LinkID(refs[0]),
			Child:  workcell.LinkID(refs[1]),
			Origin: workcell.AnchorID(refs[2]),
			Offset: toOptPose(jd.Offset),
		}
		if jd.Axis != nil {
			j.Axis = toVec3(*jd.Axis)
		}
		if lim := jd.Limits; lim != nil {
			j.Limits = &workcell.Limits{Lower: lim.Lower, Upper: lim.Upper, Velocity: lim.Velocity, Effort: lim.Effort}
		}
		cs.Changes = append(cs.Changes, workcell.Change{After: j})
	}

	for _, k := range sortedKeys(doc.Models) {
		id, err := claim("model_instances", k)
		if err != nil {
			return cs, 0, err
		}
		md := doc.Models[k]
		anchor, err := parseRef("model "+k+" anchor", md.Anchor)
		if err != nil {
			return cs, 0, err
		}
		link, err := parseRef("model "+k+" link", md.Link)
		if err != nil {
			return cs, 0, err
		}
		cs.Changes = append(cs.Changes, workcell.Change{After: workcell.ModelInstance{
			ID:     workcell.ModelID(id),
			Name:   md.Name,
			Asset:  md.Asset,
			Anchor: workcell.AnchorID(anchor),
			Offset: toOptPose(md.Offset),
			Scale:  toOptVec3(md.Scale),
			Link:   workcell.LinkID(link),
		}})
	}

	meta := workcell.Metadata{Name: doc.Metadata.Name, Unit: doc.Metadata.Unit, UpAxis: doc.Metadata.UpAxis}
	if meta != (workcell.Metadata{}) {
		cs.Metadata = &workcell.MetadataChange{After: meta}
	}
	return cs, maxID, nil
}

// Workcell builds a workcell from doc. Every entity is committed in one
// change set, so the full integrity check applies and a corrupt document
// leaves nothing behind.
func (doc *Document) Workcell() (*workcell.Workcell, error) {
	if doc.FormatVersion < 1 || doc.FormatVersion > FormatVersion {
		return nil, malformed("unsupported format version %d", doc.FormatVersion)
	}
	cs, maxID, err := doc.changes()
	if err != nil {
		return nil, err
	}
	w := workcell.New()
	if err := w.Apply(cs); err != nil {
		return nil, err
	}
	w.ReserveIDs(maxID)
	return w, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Numeric order so that the commit visits entities by id.
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return strings.Compare(a, b)
	})
	return keys
}
