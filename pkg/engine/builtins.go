package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/workcell"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites script source before passing it to zygomys:
//
//  1. Keywords become marked strings: :kind -> "__kw_kind". Keywords are
//     not registered as globals, so they cannot clash with user variables.
//
//  2. Kebab-case identifiers become underscores: set-parent -> set_parent.
//     zygomys reads a hyphen as subtraction.
//
//  3. ; line comments become // comments.
//
// String literals are copied unchanged.
func preprocessSource(source string) string {
	var out strings.Builder
	out.Grow(len(source) + len(source)/4)
	b := source
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == '"' || c == '`':
			j := skipString(b, i)
			out.WriteString(b[i:j])
			i = j

		case c == ';':
			for i < len(b) && b[i] == ';' {
				i++
			}
			j := i
			for j < len(b) && b[j] != '\n' {
				j++
			}
			out.WriteString("//")
			out.WriteString(b[i:j])
			i = j

		case c == ':' && i+1 < len(b) && b[i+1] == '=':
			out.WriteString(":=")
			i += 2

		case c == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out.WriteString(`"` + kwPrefix + b[i+1:j] + `"`)
			i = j

		case c == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out.WriteByte('_')
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// skipString returns the index just past the string literal starting at i.
// Double-quoted strings honour backslash escapes; raw strings do not.
func skipString(b string, i int) int {
	q := b[i]
	j := i + 1
	for j < len(b) && b[j] != q {
		if q == '"' && b[j] == '\\' && j+1 < len(b) {
			j++
		}
		j++
	}
	if j < len(b) {
		j++
	}
	return j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 carries a vector, or roll/pitch/yaw angles from rpy.
type sexpVec3 struct {
	vec geom.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpGeometry carries a shape, optionally placed and styled by geometry.
type sexpGeometry struct {
	g workcell.Geometry
}

func (s *sexpGeometry) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s)", s.g.Shape.ShapeKind())
}
func (s *sexpGeometry) Type() *zygo.RegisteredType { return nil }

// sexpRef is returned by the entity builtins and accepted wherever a name
// is.
type sexpRef struct {
	ref  workcell.Ref
	name string
}

func (r *sexpRef) SexpString(ps *zygo.PrintState) string {
	if r.name != "" {
		return fmt.Sprintf("(%s %q)", r.ref.Kind, r.name)
	}
	return fmt.Sprintf("(%s)", r.ref)
}
func (r *sexpRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

func parseArgs(args []zygo.Sexp) kwArgs {
	res := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			res.positional = append(res.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			res.kw[name] = args[i+1]
			i++
		} else {
			res.kw[name] = zygo.SexpNull
		}
	}
	return res
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString accepts a keyword (:revolute) or a plain string.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toVec3(s zygo.Sexp) (geom.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return geom.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toGeometries accepts a single geometry or a list of them.
func toGeometries(s zygo.Sexp) ([]workcell.Geometry, error) {
	if g, ok := s.(*sexpGeometry); ok {
		return []workcell.Geometry{g.g}, nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, fmt.Errorf("expected geometry or list of geometry: %w", err)
	}
	gs := make([]workcell.Geometry, 0, len(items))
	for _, it := range items {
		g, ok := it.(*sexpGeometry)
		if !ok {
			return nil, fmt.Errorf("expected geometry, got %T (%s)", it, it.SexpString(nil))
		}
		gs = append(gs, g.g)
	}
	return gs, nil
}

// floatArg reads an optional numeric keyword into dst.
func floatArg(pa kwArgs, key string, dst *float64) (bool, error) {
	v, ok := pa.kw[key]
	if !ok {
		return false, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return true, nil
}

// poseArg reads :at and :rpy. It reports false when neither is given.
func poseArg(pa kwArgs) (geom.Pose, bool, error) {
	var at, rpy geom.Vec3
	v1, ok1 := pa.kw["at"]
	v2, ok2 := pa.kw["rpy"]
	if !ok1 && !ok2 {
		return geom.Identity(), false, nil
	}
	var err error
	if ok1 {
		if at, err = toVec3(v1); err != nil {
			return geom.Pose{}, false, fmt.Errorf("at: %w", err)
		}
	}
	if ok2 {
		if rpy, err = toVec3(v2); err != nil {
			return geom.Pose{}, false, fmt.Errorf("rpy: %w", err)
		}
	}
	return geom.PoseFromRPY(at, rpy), true, nil
}

// nameArg returns the leading positional string, if any.
func nameArg(pa kwArgs) (string, error) {
	if len(pa.positional) == 0 {
		return "", nil
	}
	return toString(pa.positional[0])
}

// ---------------------------------------------------------------------------
// Entity resolution
// ---------------------------------------------------------------------------

// builder is the per-evaluation state the builtins share.
type builder struct {
	w *workcell.Workcell
	// rejected is the first workcell error a builtin reported.
	rejected error
}

// reject records err as the evaluation's workcell failure.
func (b *builder) reject(op string, err error) (zygo.Sexp, error) {
	if b.rejected == nil {
		b.rejected = err
	}
	return zygo.SexpNull, fmt.Errorf("%s: %w", op, err)
}

func unresolved(kind workcell.EntityKind, name string) error {
	return workcell.Errorf(workcell.ErrUnresolvedName, workcell.Ref{}, "no %s named %q", kind, name)
}

// resolve turns a reference value or a name into an entity id of kind.
func (b *builder) resolve(kind workcell.EntityKind, s zygo.Sexp) (uint64, error) {
	if r, ok := s.(*sexpRef); ok {
		if r.ref.Kind != kind {
			return 0, fmt.Errorf("expected %s, got %s", kind, r.ref.Kind)
		}
		return r.ref.ID, nil
	}
	name, err := toString(s)
	if err != nil {
		return 0, fmt.Errorf("expected %s name or reference: %w", kind, err)
	}
	var id uint64
	var found bool
	switch kind {
	case workcell.KindAnchor:
		a, ok := b.w.AnchorByName(name)
		id, found = uint64(a.ID), ok
	case workcell.KindLink:
		l, ok := b.w.LinkByName(name)
		id, found = uint64(l.ID), ok
	case workcell.KindJoint:
		j, ok := b.w.JointByName(name)
		id, found = uint64(j.ID), ok
	case workcell.KindModel:
		m, ok := b.w.ModelByName(name)
		id, found = uint64(m.ID), ok
	}
	if !found {
		return 0, unresolved(kind, name)
	}
	return id, nil
}

// entityArg resolves an optional keyword naming an entity of kind.
func (b *builder) entityArg(pa kwArgs, key string, kind workcell.EntityKind) (uint64, bool, error) {
	v, ok := pa.kw[key]
	if !ok {
		return 0, false, nil
	}
	id, err := b.resolve(kind, v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return id, true, nil
}

// fail reports a builtin failure. Unresolved names are workcell failures
// too, so they are recorded as rejections.
func (b *builder) fail(op string, err error) (zygo.Sexp, error) {
	var verr *workcell.ValidationError
	if errors.As(err, &verr) {
		return b.reject(op, err)
	}
	return zygo.SexpNull, fmt.Errorf("%s: %w", op, err)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the workcell builtins into env. Every edit goes
// through b.w, so integrity rules apply exactly as they do for interactive
// edits.
//
// Source must be preprocessed with preprocessSource so that :keyword tokens
// arrive as recognizable strings.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// (vec3 1 2 3)
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		v, err := threeFloats(name, args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpVec3{vec: v}, nil
	})

	// (rpy roll pitch yaw) in radians
	env.AddFunction("rpy", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		v, err := threeFloats(name, args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpVec3{vec: v}, nil
	})

	// (deg 90) converts degrees to radians.
	env.AddFunction("deg", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("deg requires exactly 1 argument, got %d", len(args))
		}
		f, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("deg: %w", err)
		}
		return &zygo.SexpFloat{Val: f * math.Pi / 180}, nil
	})

	// (anchor "table" :at (vec3 0 0 1) :rpy (rpy 0 0 1.57) :parent "floor")
	env.AddFunction("anchor", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		n, err := nameArg(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("anchor: name: %w", err)
		}
		pose, _, err := poseArg(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("anchor: %w", err)
		}
		parent, _, err := b.entityArg(pa, "parent", workcell.KindAnchor)
		if err != nil {
			return b.fail("anchor", err)
		}
		id, err := b.w.CreateAnchor(workcell.AnchorSpec{Name: n, Pose: pose, Parent: workcell.AnchorID(parent)})
		if err != nil {
			return b.reject("anchor", err)
		}
		return &sexpRef{ref: id.Ref(), name: n}, nil
	})

	// (box 0.3 0.3 0.1)
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		v, err := threeFloats(name, args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpGeometry{g: shapeGeometry(workcell.Box{Size: v})}, nil
	})

	// (cylinder :radius 0.05 :length 0.4)
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var c workcell.Cylinder
		if _, err := floatArg(pa, "radius", &c.Radius); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		if _, err := floatArg(pa, "length", &c.Length); err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		return &sexpGeometry{g: shapeGeometry(c)}, nil
	})

	// (sphere :radius 0.05)
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var s workcell.Sphere
		if _, err := floatArg(pa, "radius", &s.Radius); err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: %w", err)
		}
		return &sexpGeometry{g: shapeGeometry(s)}, nil
	})

	// (mesh "package://cell/meshes/base.stl" :scale (vec3 0.001 0.001 0.001))
	env.AddFunction("mesh", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		src, err := nameArg(pa)
		if err != nil || src == "" {
			return zygo.SexpNull, fmt.Errorf("mesh requires a source reference")
		}
		m := workcell.Mesh{Source: src}
		if v, ok := pa.kw["scale"]; ok {
			s, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("mesh: scale: %w", err)
			}
			m.Scale = &s
		}
		return &sexpGeometry{g: shapeGeometry(m)}, nil
	})

	// (geometry (box 1 1 1) :name "plate" :at (vec3 0 0 0.05) :material "steel" :color (vec3 0.6 0.6 0.6))
	env.AddFunction("geometry", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("geometry requires a shape as first argument")
		}
		base, ok := pa.positional[0].(*sexpGeometry)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("geometry: expected shape, got %T", pa.positional[0])
		}
		g := base.g
		if v, ok := pa.kw["name"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("geometry: name: %w", err)
			}
			g.Name = s
		}
		pose, ok, err := poseArg(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("geometry: %w", err)
		}
		if ok {
			g.Origin = pose
		}
		mat, err := materialArg(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("geometry: %w", err)
		}
		g.Material = mat
		return &sexpGeometry{g: g}, nil
	})

	// (link "base" :anchor "table" :visual g :collision g :mass 4.5)
	env.AddFunction("link", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		n, err := nameArg(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("link: name: %w", err)
		}
		a, ok, err := b.entityArg(pa, "anchor", workcell.KindAnchor)
		if err != nil {
			return b.fail("link", err)
		}
		if !ok {
			return zygo.SexpNull, fmt.Errorf("link %q requires :anchor", n)
		}
		spec := workcell.LinkSpec{Name: n, Anchor: workcell.AnchorID(a)}
		if off, ok, err := poseArg(pa); err != nil {
			return zygo.SexpNull, fmt.Errorf("link: %w", err)
		} else if ok {
			spec.Offset = &off
		}
		if v, ok := pa.kw["visual"]; ok {
			if spec.Visuals, err = toGeometries(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("link: visual: %w", err)
			}
		}
		if v, ok := pa.kw["collision"]; ok {
			if spec.Collisions, err = toGeometries(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("link: collision: %w", err)
			}
			for i := range spec.Collisions {
				spec.Collisions[i].Material = nil
			}
		}
		var mass float64
		if ok, err := floatArg(pa, "mass", &mass); err != nil {
			return zygo.SexpNull, fmt.Errorf("link: %w", err)
		} else if ok {
			in := workcell.DefaultInertial()
			in.Mass = mass
			spec.Inertial = &in
		}
		id, err := b.w.CreateLink(spec)
		if err != nil {
			return b.reject("link", err)
		}
		return &sexpRef{ref: id.Ref(), name: n}, nil
	})

	// (joint "shoulder" :kind :revolute :parent "base" :child "arm" :origin "shoulder"
	//        :axis (vec3 0 0 1) :lower -1.57 :upper 1.57 :velocity 1 :effort 50)
	env.AddFunction("joint", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		n, err := nameArg(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("joint: name: %w", err)
		}
		spec := workcell.JointSpec{Name: n}
		if v, ok := pa.kw["kind"]; ok {
			k, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("joint: kind: %w", err)
			}
			if spec.Kind, err = workcell.ParseJointKind(k); err != nil {
				return zygo.SexpNull, fmt.Errorf("joint: %w", err)
			}
		}
		parent, _, err := b.entityArg(pa, "parent", workcell.KindLink)
		if err != nil {
			return b.fail("joint", err)
		}
		child, _, err := b.entityArg(pa, "child", workcell.KindLink)
		if err != nil {
			return b.fail("joint", err)
		}
		origin, _, err := b.entityArg(pa, "origin", workcell.KindAnchor)
		if err != nil {
			return b.fail("joint", err)
		}
		spec.Parent, spec.Child, spec.Origin = workcell.LinkID(parent), workcell.LinkID(child), workcell.AnchorID(origin)
		if off, ok, err := poseArg(pa); err != nil {
			return zygo.SexpNull, fmt.Errorf("joint: %w", err)
		} else if ok {
			spec.Offset = &off
		}
		if v, ok := pa.kw["axis"]; ok {
			if spec.Axis, err = toVec3(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("joint: axis: %w", err)
			}
		}
		var lim workcell.Limits
		var hasLimits bool
		for _, f := range []struct {
			key string
			dst *float64
		}{{"lower", &lim.Lower}, {"upper", &lim.Upper}, {"velocity", &lim.Velocity}, {"effort", &lim.Effort}} {
			ok, err := floatArg(pa, f.key, f.dst)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("joint: %w", err)
			}
			hasLimits = hasLimits || ok
		}
		if hasLimits {
			spec.Limits = &lim
		}
		id, err := b.w.CreateJoint(spec)
		if err != nil {
			return b.reject("joint", err)
		}
		return &sexpRef{ref: id.Ref(), name: n}, nil
	})

	// (model "gripper" :asset "gripper.stl" :anchor "flange" :attach "tool" :scale (vec3 1 1 1))
	env.AddFunction("model", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		n, err := nameArg(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("model: name: %w", err)
		}
		spec := workcell.ModelSpec{Name: n}
		if v, ok := pa.kw["asset"]; ok {
			if spec.Asset, err = toString(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("model: asset: %w", err)
			}
		}
		a, _, err := b.entityArg(pa, "anchor", workcell.KindAnchor)
		if err != nil {
			return b.fail("model", err)
		}
		l, _, err := b.entityArg(pa, "attach", workcell.KindLink)
		if err != nil {
			return b.fail("model", err)
		}
		spec.Anchor, spec.Link = workcell.AnchorID(a), workcell.LinkID(l)
		if off, ok, err := poseArg(pa); err != nil {
			return zygo.SexpNull, fmt.Errorf("model: %w", err)
		} else if ok {
			spec.Offset = &off
		}
		if v, ok := pa.kw["scale"]; ok {
			s, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("model: scale: %w", err)
			}
			spec.Scale = &s
		}
		id, err := b.w.CreateModelInstance(spec)
		if err != nil {
			return b.reject("model", err)
		}
		return &sexpRef{ref: id.Ref(), name: n}, nil
	})
}

func threeFloats(op string, args []zygo.Sexp) (geom.Vec3, error) {
	if len(args) != 3 {
		return geom.Vec3{}, fmt.Errorf("%s requires exactly 3 arguments, got %d", op, len(args))
	}
	var f [3]float64
	for i, a := range args {
		v, err := toFloat64(a)
		if err != nil {
			return geom.Vec3{}, fmt.Errorf("%s: %c: %w", op, "xyz"[i], err)
		}
		f[i] = v
	}
	return geom.Vec3{X: f[0], Y: f[1], Z: f[2]}, nil
}

func shapeGeometry(s workcell.Shape) workcell.Geometry {
	return workcell.Geometry{Origin: geom.Identity(), Shape: s}
}

// materialArg reads :material and :color. Color is (vec3 r g b), opaque.
func materialArg(pa kwArgs) (*workcell.Material, error) {
	var m workcell.Material
	v1, ok1 := pa.kw["material"]
	v2, ok2 := pa.kw["color"]
	if !ok1 && !ok2 {
		return nil, nil
	}
	if ok1 {
		s, err := toString(v1)
		if err != nil {
			return nil, fmt.Errorf("material: %w", err)
		}
		m.Name = s
	}
	if ok2 {
		c, err := toVec3(v2)
		if err != nil {
			return nil, fmt.Errorf("color: %w", err)
		}
		m.Color = &workcell.RGBA{R: c.X, G: c.Y, B: c.Z, A: 1}
	}
	return &m, nil
}
