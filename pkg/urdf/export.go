package urdf

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/workcell"
)

// ExportOptions configures Export.
type ExportOptions struct {
	// Name is the robot name. Defaults to the workcell name, then "workcell".
	Name string
	// FixedFrame, when set, adds a link of that name and a fixed joint that
	// holds the root link at its world pose.
	FixedFrame string
}

// articulated asset formats cannot be flattened into a single link.
var articulatedExt = map[string]bool{".urdf": true, ".sdf": true, ".xacro": true}

// Export writes w as a robot description in metres with Z up. The workcell
// must form a single kinematic tree; every model instance must be attached
// to a link and reference a rigid asset.
func Export(w *workcell.Workcell, opts ExportOptions) ([]byte, error) {
	ex, err := newExporter(w, opts)
	if err != nil {
		return nil, err
	}
	robot, err := ex.build()
	if err != nil {
		return nil, err
	}
	out, err := xml.MarshalIndent(robot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode robot description: %w", err)
	}
	return append(append([]byte(xml.Header), out...), '\n'), nil
}

type exporter struct {
	w     *workcell.Workcell
	opts  ExportOptions
	root  workcell.LinkID
	toZ   geom.Pose
	f     float64
	links map[workcell.LinkID]string
	joint map[workcell.JointID]string
}

func newExporter(w *workcell.Workcell, opts ExportOptions) (*exporter, error) {
	roots := w.Roots()
	if len(roots) != 1 {
		return nil, workcell.Errorf(workcell.ErrUnsupportedTopology, workcell.Ref{},
			"export needs exactly one root link, found %d", len(roots))
	}
	for _, m := range w.Models() {
		if m.Link == 0 {
			return nil, workcell.Errorf(workcell.ErrUnsupportedTopology, m.Ref(),
				"model %q is not attached to a link", m.Name)
		}
		if articulatedExt[strings.ToLower(path.Ext(m.Asset))] {
			return nil, workcell.Errorf(workcell.ErrUnsupportedTopology, m.Ref(),
				"model %q references articulated asset %q", m.Name, m.Asset)
		}
	}

	meta := w.Metadata()
	ex := &exporter{
		w:    w,
		opts: opts,
		root: roots[0],
		toZ:  geom.UpAxisConversion(meta.UpAxis, geom.UpZ),
		f:    geom.Factor(meta.Unit, geom.Meter),
	}
	if ex.opts.Name == "" {
		ex.opts.Name = meta.Name
	}
	if ex.opts.Name == "" {
		ex.opts.Name = "workcell"
	}
	ex.names()
	if ff := opts.FixedFrame; ff != "" {
		for _, n := range ex.links {
			if n == ff {
				return nil, workcell.Errorf(workcell.ErrDuplicateIdentifier, workcell.Ref{},
					"fixed frame %q collides with a link name", ff)
			}
		}
	}
	return ex, nil
}

// names assigns every link and joint a unique element name, synthesizing
// one for unnamed entities.
func (ex *exporter) names() {
	ex.links = make(map[workcell.LinkID]string)
	ex.joint = make(map[workcell.JointID]string)

	used := make(map[string]bool)
	for _, l := range ex.w.Links() {
		if l.Name != "" {
			used[l.Name] = true
		}
	}
	for _, l := range ex.w.Links() {
		if l.Name != "" {
			ex.links[l.ID] = l.Name
			continue
		}
		ex.links[l.ID] = synth(used, fmt.Sprintf("link_%d", l.ID))
	}

	used = make(map[string]bool)
	for _, j := range ex.w.Joints() {
		if j.Name != "" {
			used[j.Name] = true
		}
	}
	for _, j := range ex.w.Joints() {
		if j.Name != "" {
			ex.joint[j.ID] = j.Name
			continue
		}
		ex.joint[j.ID] = synth(used, fmt.Sprintf("joint_%d", j.ID))
	}
}

func synth(used map[string]bool, base string) string {
	name := base
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	used[name] = true
	return name
}

// world converts a workcell world pose into metres with Z up.
func (ex *exporter) world(p geom.Pose) geom.Pose {
	return ex.toZ.Compose(p).Scaled(ex.f)
}

// frame returns the exported frame of a link: the root keeps its own frame,
// every other link takes the frame of its parent joint.
func (ex *exporter) frame(id workcell.LinkID) (geom.Pose, error) {
	if j, ok := ex.w.ParentJoint(id); ok {
		p, err := ex.w.JointPose(j.ID)
		if err != nil {
			return geom.Pose{}, err
		}
		return ex.world(p), nil
	}
	p, err := ex.w.LinkPose(id)
	if err != nil {
		return geom.Pose{}, err
	}
	return ex.world(p), nil
}

func (ex *exporter) build() (*robotXML, error) {
	robot := &robotXML{Name: ex.opts.Name}

	models := make(map[workcell.LinkID][]workcell.ModelInstance)
	for _, m := range ex.w.Models() {
		models[m.Link] = append(models[m.Link], m)
	}

	if ff := ex.opts.FixedFrame; ff != "" {
		root, err := ex.frame(ex.root)
		if err != nil {
			return nil, err
		}
		robot.Links = append(robot.Links, linkXML{Name: ff})
		robot.Joints = append(robot.Joints, jointXML{
			Name:   ff + "_to_" + ex.links[ex.root],
			Type:   workcell.JointFixed.String(),
			Origin: formatOrigin(root),
			Parent: linkRefXML{Link: ff},
			Child:  linkRefXML{Link: ex.links[ex.root]},
		})
	}

	var visit func(id workcell.LinkID, frame geom.Pose) error
	visit = func(id workcell.LinkID, frame geom.Pose) error {
		lx, err := ex.link(id, frame, models[id])
		if err != nil {
			return err
		}
		robot.Links = append(robot.Links, lx)
		for _, j := range ex.w.ChildJoints(id) {
			child, err := ex.frame(j.Child)
			if err != nil {
				return err
			}
			robot.Joints = append(robot.Joints, ex.jointXML(j, frame.Inverse().Compose(child)))
			if err := visit(j.Child, child); err != nil {
				return err
			}
		}
		return nil
	}
	root, err := ex.frame(ex.root)
	if err != nil {
		return nil, err
	}
	if err := visit(ex.root, root); err != nil {
		return nil, err
	}
	return robot, nil
}

func (ex *exporter) link(id workcell.LinkID, frame geom.Pose, models []workcell.ModelInstance) (linkXML, error) {
	l, _ := ex.w.Link(id)
	lp, err := ex.w.LinkPose(id)
	if err != nil {
		return linkXML{}, err
	}
	inv := frame.Inverse()
	delta := inv.Compose(ex.world(lp))

	lx := linkXML{Name: ex.links[id]}
	if l.Inertial != nil {
		in := l.Inertial.Scaled(ex.f)
		in.Origin = delta.Compose(in.Origin)
		lx.Inertial = &inertialXML{
			Origin: formatOrigin(in.Origin),
			Mass:   valueXML{Value: in.Mass},
			Inertia: &inertiaXML{
				IXX: in.Inertia.IXX, IXY: in.Inertia.IXY, IXZ: in.Inertia.IXZ,
				IYY: in.Inertia.IYY, IYZ: in.Inertia.IYZ, IZZ: in.Inertia.IZZ,
			},
		}
	}
	for _, g := range l.Visuals {
		g = g.Scaled(ex.f)
		g.Origin = delta.Compose(g.Origin)
		lx.Visuals = append(lx.Visuals, visualXML{
			Name:     g.Name,
			Origin:   formatOrigin(g.Origin),
			Geometry: geometryOf(g.Shape),
			Material: materialOf(g.Material),
		})
	}
	for _, g := range l.Collisions {
		g = g.Scaled(ex.f)
		g.Origin = delta.Compose(g.Origin)
		lx.Collisions = append(lx.Collisions, collisionXML{
			Name:     g.Name,
			Origin:   formatOrigin(g.Origin),
			Geometry: geometryOf(g.Shape),
		})
	}
	for _, m := range models {
		mp, err := ex.w.ModelPose(m.ID)
		if err != nil {
			return linkXML{}, err
		}
		mesh := workcell.Mesh{Source: m.Asset, Scale: m.Scale}
		lx.Visuals = append(lx.Visuals, visualXML{
			Name:     m.Name,
			Origin:   formatOrigin(inv.Compose(ex.world(mp))),
			Geometry: geometryOf(mesh),
		})
	}
	return lx, nil
}

func (ex *exporter) jointXML(j workcell.Joint, origin geom.Pose) jointXML {
	jx := jointXML{
		Name:   ex.joint[j.ID],
		Type:   j.Kind.String(),
		Origin: formatOrigin(origin),
		Parent: linkRefXML{Link: ex.links[j.Parent]},
		Child:  linkRefXML{Link: ex.links[j.Child]},
	}
	if !j.Axis.IsZero() {
		jx.Axis = &axisXML{XYZ: formatVec3(j.Axis)}
	}
	if lim := j.Limits; lim != nil {
		lx := limitXML{Lower: lim.Lower, Upper: lim.Upper, Velocity: lim.Velocity, Effort: lim.Effort}
		if j.Kind == workcell.JointPrismatic {
			lx.Lower *= ex.f
			lx.Upper *= ex.f
			lx.Velocity *= ex.f
		}
		jx.Limit = &lx
	}
	return jx
}

func geometryOf(s workcell.Shape) geometryXML {
	switch s := s.(type) {
	case workcell.Box:
		return geometryXML{Box: &boxXML{Size: formatVec3(s.Size)}}
	case workcell.Cylinder:
		return geometryXML{Cylinder: &cylinderXML{Radius: s.Radius, Length: s.Length}}
	case workcell.Sphere:
		return geometryXML{Sphere: &sphereXML{Radius: s.Radius}}
	case workcell.Mesh:
		mx := &meshXML{Filename: s.Source}
		if s.Scale != nil && *s.Scale != (geom.Vec3{X: 1, Y: 1, Z: 1}) {
			mx.Scale = formatVec3(*s.Scale)
		}
		return geometryXML{Mesh: mx}
	}
	return geometryXML{}
}

func materialOf(m *workcell.Material) *materialXML {
	if m == nil {
		return nil
	}
	mx := &materialXML{Name: m.Name}
	if c := m.Color; c != nil {
		mx.Color = &colorXML{RGBA: strings.Join([]string{
			formatFloat(c.R), formatFloat(c.G), formatFloat(c.B), formatFloat(c.A),
		}, " ")}
	}
	if m.Texture != "" {
		mx.Texture = &textureXML{Filename: m.Texture}
	}
	return mx
}
