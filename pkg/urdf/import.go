package urdf

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chazu/workcell/pkg/asset"
	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/logging"
	"github.com/chazu/workcell/pkg/workcell"
)

// ImportOptions configures Import.
type ImportOptions struct {
	// Unit and UpAxis are the conventions of the resulting workcell. Robot
	// descriptions are always metres with Z up.
	Unit   geom.Unit
	UpAxis geom.UpAxis
	// Resolver checks mesh and texture references. Nil skips the checks.
	Resolver asset.Resolver
	// ValidateSchema checks the document against the embedded schema
	// before decoding.
	ValidateSchema bool
	Logger         logging.Logger
}

// Report describes a successful import.
type Report struct {
	Name     string
	Root     workcell.LinkID
	Warnings []workcell.ValidationError
}

// ImportFile imports a robot description from disk. Relative asset
// references resolve against the file's directory unless opts.Resolver is
// set.
func ImportFile(ctx context.Context, path string, opts ImportOptions) (*workcell.Workcell, *Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	if opts.Resolver == nil {
		opts.Resolver = asset.DirResolver{Base: filepath.Dir(path)}
	}
	return Import(ctx, f, opts)
}

// Import parses a robot description into a new workcell. Structural
// problems fail the import; missing assets, undefined materials and absent
// mass properties are recorded as warnings.
func Import(ctx context.Context, r io.Reader, opts ImportOptions) (*workcell.Workcell, *Report, error) {
	log := logging.OrNop(opts.Logger)
	done := logging.Timer(log, "urdf import")
	defer done()

	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read robot description: %w", err)
	}
	if opts.ValidateSchema {
		if err := ValidateSchema(doc); err != nil {
			return nil, nil, malformed(err, "robot description does not match the schema")
		}
	}

	var robot robotXML
	dec := xml.NewDecoder(bytes.NewReader(doc))
	if err := dec.Decode(&robot); err != nil {
		return nil, nil, malformed(err, "robot description is not well-formed")
	}

	im := &importer{
		ctx:       ctx,
		opts:      opts,
		f:         geom.Factor(geom.Meter, opts.Unit),
		materials: make(map[string]materialXML),
		w:         workcell.New(),
		report:    &Report{Name: robot.Name},
	}
	if err := im.run(&robot); err != nil {
		return nil, nil, err
	}
	log.Info("imported robot description",
		"name", robot.Name, "links", len(robot.Links), "joints", len(robot.Joints),
		"warnings", len(im.report.Warnings))
	return im.w, im.report, nil
}

func malformed(cause error, format string, args ...any) error {
	e := workcell.Errorf(workcell.ErrMalformedDocument, workcell.Ref{}, format, args...)
	e.Cause = cause
	return e
}

type importer struct {
	ctx       context.Context
	opts      ImportOptions
	f         float64
	materials map[string]materialXML
	w         *workcell.Workcell
	report    *Report
}

func (im *importer) warn(ref workcell.Ref, code error, format string, args ...any) {
	e := workcell.Errorf(code, ref, format, args...)
	e.Severity = workcell.SeverityWarning
	im.report.Warnings = append(im.report.Warnings, *e)
}

func (im *importer) run(robot *robotXML) error {
	if err := im.w.SetMetadata(workcell.Metadata{Name: robot.Name, Unit: im.opts.Unit, UpAxis: im.opts.UpAxis}); err != nil {
		return err
	}

	links := make(map[string]*linkXML, len(robot.Links))
	for i := range robot.Links {
		l := &robot.Links[i]
		if l.Name == "" {
			return malformed(nil, "link %d has no name", i)
		}
		if _, dup := links[l.Name]; dup {
			return workcell.Errorf(workcell.ErrDuplicateIdentifier, workcell.Ref{}, "link %q is declared twice", l.Name)
		}
		links[l.Name] = l
	}

	for _, m := range robot.Materials {
		im.materials[m.Name] = m
	}
	for _, l := range robot.Links {
		for _, v := range l.Visuals {
			if m := v.Material; m != nil && m.Name != "" && (m.Color != nil || m.Texture != nil) {
				if _, ok := im.materials[m.Name]; !ok {
					im.materials[m.Name] = *m
				}
			}
		}
	}

	order, children, err := topology(robot, links)
	if err != nil {
		return err
	}

	// Place every link frame in the world, root first.
	conv := geom.UpAxisConversion(geom.UpZ, im.opts.UpAxis)
	world := map[string]geom.Pose{order[0]: conv}
	anchors := make(map[string]workcell.AnchorID, len(order))
	ids := make(map[string]workcell.LinkID, len(order))
	for _, name := range order {
		if err := im.ctx.Err(); err != nil {
			return err
		}
		for _, j := range children[name] {
			origin, err := parseOrigin(j.Origin)
			if err != nil {
				return malformed(err, "joint %q", j.Name)
			}
			world[j.Child.Link] = world[name].Compose(origin.Scaled(im.f))
		}

		a, err := im.w.CreateAnchor(workcell.AnchorSpec{Name: name, Pose: world[name]})
		if err != nil {
			return err
		}
		anchors[name] = a
		id, err := im.link(links[name], a)
		if err != nil {
			return err
		}
		ids[name] = id
	}
	im.report.Root = ids[order[0]]

	for _, name := range order {
		for _, j := range children[name] {
			if err := im.joint(j, ids[j.Parent.Link], ids[j.Child.Link], anchors[j.Child.Link]); err != nil {
				return err
			}
		}
	}
	return nil
}

// topology resolves joint endpoints and returns the links in breadth-first
// order from the single root, plus each link's child joints.
func topology(robot *robotXML, links map[string]*linkXML) ([]string, map[string][]jointXML, error) {
	children := make(map[string][]jointXML)
	parentOf := make(map[string]string)
	jointNames := make(map[string]bool)
	for _, j := range robot.Joints {
		if j.Name == "" {
			return nil, nil, malformed(nil, "joint between %q and %q has no name", j.Parent.Link, j.Child.Link)
		}
		if jointNames[j.Name] {
			return nil, nil, workcell.Errorf(workcell.ErrDuplicateIdentifier, workcell.Ref{}, "joint %q is declared twice", j.Name)
		}
		jointNames[j.Name] = true
		for _, end := range []string{j.Parent.Link, j.Child.Link} {
			if _, ok := links[end]; !ok {
				return nil, nil, workcell.Errorf(workcell.ErrUnresolvedName, workcell.Ref{},
					"joint %q references unknown link %q", j.Name, end)
			}
		}
		if prev, ok := parentOf[j.Child.Link]; ok {
			return nil, nil, malformed(nil, "link %q has two parent joints (%q and %q)", j.Child.Link, prev, j.Name)
		}
		parentOf[j.Child.Link] = j.Name
		children[j.Parent.Link] = append(children[j.Parent.Link], j)
	}

	var roots []string
	for _, l := range robot.Links {
		if _, ok := parentOf[l.Name]; !ok {
			roots = append(roots, l.Name)
		}
	}
	switch {
	case len(robot.Links) == 0:
		return nil, nil, malformed(nil, "robot description has no links")
	case len(roots) == 0:
		return nil, nil, cyclic(robot.Links)
	case len(roots) > 1:
		return nil, nil, malformed(nil, "multiple root links: %s", quoteList(roots))
	}

	order := []string{roots[0]}
	seen := map[string]bool{roots[0]: true}
	for i := 0; i < len(order); i++ {
		for _, j := range children[order[i]] {
			if !seen[j.Child.Link] {
				seen[j.Child.Link] = true
				order = append(order, j.Child.Link)
			}
		}
	}
	if len(order) != len(robot.Links) {
		var stuck []linkXML
		for _, l := range robot.Links {
			if !seen[l.Name] {
				stuck = append(stuck, l)
			}
		}
		return nil, nil, cyclic(stuck)
	}
	return order, children, nil
}

func cyclic(links []linkXML) error {
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return malformed(workcell.ErrCyclicTopology, "joints form a cycle through links %s", quoteList(names))
}

func quoteList(names []string) string {
	q := slices.Clone(names)
	for i, n := range q {
		q[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(q, ", ")
}

func (im *importer) link(lx *linkXML, anchor workcell.AnchorID) (workcell.LinkID, error) {
	spec := workcell.LinkSpec{Name: lx.Name, Anchor: anchor}
	var warnings []func(workcell.Ref)

	for i, v := range lx.Visuals {
		g, ws, err := im.geometry(v.Name, v.Origin, v.Geometry)
		if err != nil {
			return 0, malformed(err, "link %q visual %d", lx.Name, i)
		}
		mat, mws, err := im.material(v.Material)
		if err != nil {
			return 0, malformed(err, "link %q visual %d material", lx.Name, i)
		}
		g.Material = mat
		spec.Visuals = append(spec.Visuals, g)
		warnings = append(warnings, ws...)
		warnings = append(warnings, mws...)
	}
	for i, c := range lx.Collisions {
		g, ws, err := im.geometry(c.Name, c.Origin, c.Geometry)
		if err != nil {
			return 0, malformed(err, "link %q collision %d", lx.Name, i)
		}
		spec.Collisions = append(spec.Collisions, g)
		warnings = append(warnings, ws...)
	}

	if lx.Inertial == nil {
		in := workcell.DefaultInertial()
		spec.Inertial = &in
		warnings = append(warnings, func(ref workcell.Ref) {
			im.warn(ref, workcell.ErrInvalidProperty, "no inertial block; default mass properties used")
		})
	} else {
		origin, err := parseOrigin(lx.Inertial.Origin)
		if err != nil {
			return 0, malformed(err, "link %q inertial", lx.Name)
		}
		in := workcell.Inertial{Origin: origin, Mass: lx.Inertial.Mass.Value}
		if ix := lx.Inertial.Inertia; ix != nil {
			in.Inertia = workcell.Inertia{IXX: ix.IXX, IXY: ix.IXY, IXZ: ix.IXZ, IYY: ix.IYY, IYZ: ix.IYZ, IZZ: ix.IZZ}
		}
		in = in.Scaled(im.f)
		spec.Inertial = &in
	}

	id, err := im.w.CreateLink(spec)
	if err != nil {
		return 0, err
	}
	for _, w := range warnings {
		w(id.Ref())
	}
	return id, nil
}

func (im *importer) geometry(name string, origin *originXML, gx geometryXML) (workcell.Geometry, []func(workcell.Ref), error) {
	pose, err := parseOrigin(origin)
	if err != nil {
		return workcell.Geometry{}, nil, err
	}
	g := workcell.Geometry{Name: name, Origin: pose}
	var warnings []func(workcell.Ref)

	n := 0
	if gx.Box != nil {
		n++
		size, err := parseVec3(gx.Box.Size, geom.Vec3{})
		if err != nil {
			return g, nil, fmt.Errorf("box size: %w", err)
		}
		g.Shape = workcell.Box{Size: size}
	}
	if gx.Cylinder != nil {
		n++
		g.Shape = workcell.Cylinder{Radius: gx.Cylinder.Radius, Length: gx.Cylinder.Length}
	}
	if gx.Sphere != nil {
		n++
		g.Shape = workcell.Sphere{Radius: gx.Sphere.Radius}
	}
	if gx.Mesh != nil {
		n++
		m := workcell.Mesh{Source: gx.Mesh.Filename}
		if strings.TrimSpace(gx.Mesh.Scale) != "" {
			s, err := parseVec3(gx.Mesh.Scale, geom.Vec3{})
			if err != nil {
				return g, nil, fmt.Errorf("mesh scale: %w", err)
			}
			m.Scale = &s
		}
		g.Shape = m
		if im.opts.Resolver != nil && !asset.Exists(im.ctx, im.opts.Resolver, m.Source) {
			g.Placeholder = true
			src := m.Source
			warnings = append(warnings, func(ref workcell.Ref) {
				im.warn(ref, workcell.ErrUnresolvedName, "mesh %q not found; imported as placeholder", src)
			})
		}
	}
	if n != 1 {
		return g, nil, fmt.Errorf("geometry must have exactly one shape, found %d", n)
	}
	if im.f != 1 {
		g = g.Scaled(im.f)
	}
	return g, warnings, nil
}

func (im *importer) material(mx *materialXML) (*workcell.Material, []func(workcell.Ref), error) {
	if mx == nil {
		return nil, nil, nil
	}
	var warnings []func(workcell.Ref)
	src := *mx
	if src.Color == nil && src.Texture == nil {
		def, ok := im.materials[src.Name]
		if !ok {
			name := src.Name
			warnings = append(warnings, func(ref workcell.Ref) {
				im.warn(ref, workcell.ErrUnresolvedName, "material %q is not defined; imported as placeholder", name)
			})
			return &workcell.Material{Name: src.Name}, warnings, nil
		}
		src = def
	}

	m := &workcell.Material{Name: src.Name}
	if src.Color != nil {
		c, err := parseFloats(src.Color.RGBA, 4)
		if err != nil {
			return nil, nil, fmt.Errorf("rgba: %w", err)
		}
		m.Color = &workcell.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
	}
	if src.Texture != nil {
		m.Texture = src.Texture.Filename
		if im.opts.Resolver != nil && !asset.Exists(im.ctx, im.opts.Resolver, m.Texture) {
			tex := m.Texture
			warnings = append(warnings, func(ref workcell.Ref) {
				im.warn(ref, workcell.ErrUnresolvedName, "texture %q not found", tex)
			})
		}
	}
	return m, warnings, nil
}

func (im *importer) joint(jx jointXML, parent, child workcell.LinkID, origin workcell.AnchorID) error {
	kind, err := workcell.ParseJointKind(jx.Type)
	if err != nil {
		return malformed(err, "joint %q", jx.Name)
	}
	spec := workcell.JointSpec{
		Name:   jx.Name,
		Kind:   kind,
		Parent: parent,
		Child:  child,
		Origin: origin,
	}

	switch {
	case jx.Axis != nil:
		if spec.Axis, err = parseVec3(jx.Axis.XYZ, geom.Vec3{}); err != nil {
			return malformed(err, "joint %q axis", jx.Name)
		}
	case kind.RequiresAxis():
		spec.Axis = geom.Vec3{X: 1}
	}

	var warn func(workcell.Ref)
	switch {
	case jx.Limit != nil && kind.AllowsLimits():
		lim := workcell.Limits{Lower: jx.Limit.Lower, Upper: jx.Limit.Upper, Velocity: jx.Limit.Velocity, Effort: jx.Limit.Effort}
		if kind == workcell.JointPrismatic {
			lim.Lower *= im.f
			lim.Upper *= im.f
			lim.Velocity *= im.f
		}
		spec.Limits = &lim
	case jx.Limit != nil:
		warn = func(ref workcell.Ref) {
			im.warn(ref, workcell.ErrInvalidProperty, "%s joint cannot have limits; limits dropped", kind)
		}
	case kind.RequiresLimits():
		spec.Limits = &workcell.Limits{}
		warn = func(ref workcell.Ref) {
			im.warn(ref, workcell.ErrInvalidProperty, "%s joint has no limits; zero range assumed", kind)
		}
	}

	id, err := im.w.CreateJoint(spec)
	if err != nil {
		return err
	}
	if warn != nil {
		warn(id.Ref())
	}
	return nil
}
