package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/workcell"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"simple keyword", `(sphere :radius 1)`, `(sphere "__kw_radius" 1)`},
		{"multiple keywords", `(cylinder :radius 1 :length 2)`, `(cylinder "__kw_radius" 1 "__kw_length" 2)`},
		{"keyword in string preserved", `"thing with :keyword inside"`, `"thing with :keyword inside"`},
		{"escaped quote in string", `"a \" :b"`, `"a \" :b"`},
		{"raw string preserved", "`:raw-text`", "`:raw-text`"},
		{"assignment operator preserved", `(def x := 10)`, `(def x := 10)`},
		{"kebab-case identifier", `(set-parent :child-link ref)`, `(set_parent "__kw_child-link" ref)`},
		{"minus operator preserved", `(- 10 5)`, `(- 10 5)`},
		{"negative literal preserved", `:lower -1.5`, `"__kw_lower" -1.5`},
		{"comment converted to // style", `;; comment with :keyword`, `// comment with :keyword`},
		{"single semicolon comment", `; simple comment`, `// simple comment`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.input); got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func evaluate(t *testing.T, source string) *workcell.Workcell {
	t.Helper()
	w, evalErrs, err := NewEngine(Config{}).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return w
}

func evalError(t *testing.T, source string) EvalError {
	t.Helper()
	w, evalErrs, err := NewEngine(Config{}).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if w != nil {
		t.Fatal("expected nil workcell on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected an eval error")
	}
	return evalErrs[0]
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

const armScript = `
;; a two-link arm on a table
(def h 0.75)
(anchor "table" :at (vec3 1 0 h))
(anchor "shoulder" :parent "table" :at (vec3 0 0 0.2) :rpy (rpy 0 0 (deg 90)))

(link "base" :anchor "table"
      :visual (list (geometry (box 0.3 0.3 0.2) :name "plinth" :at (vec3 0 0 0.1) :material "steel" :color (vec3 0.6 0.6 0.65))
                    (mesh "package://cell/meshes/base.stl" :scale (vec3 0.001 0.001 0.001)))
      :collision (box 0.3 0.3 0.2)
      :mass 12)
(def arm (link "arm" :anchor "shoulder" :visual (cylinder :radius 0.05 :length 0.5)))
(joint "shoulder-yaw" :kind :revolute :parent "base" :child arm :origin "shoulder"
       :axis (vec3 0 0 1) :lower -1.5 :upper 1.5 :velocity 2 :effort 40)
(model "gripper" :asset "gripper.stl" :anchor "shoulder" :attach "arm" :at (vec3 0 0 0.5))
`

func TestArmScript(t *testing.T) {
	w := evaluate(t, armScript)

	anchors, links, joints, models := w.Counts()
	if anchors != 2 || links != 2 || joints != 1 || models != 1 {
		t.Fatalf("counts = %d/%d/%d/%d, want 2/2/1/1", anchors, links, joints, models)
	}

	table, ok := w.AnchorByName("table")
	if !ok {
		t.Fatal("missing anchor table")
	}
	if !table.Pose.Position.ApproxEqual(geom.Vec3{X: 1, Z: 0.75}, 1e-12) {
		t.Errorf("table position = %v", table.Pose.Position)
	}
	shoulder, _ := w.AnchorByName("shoulder")
	if shoulder.Parent != table.ID {
		t.Errorf("shoulder parent = %v, want %v", shoulder.Parent, table.ID)
	}
	if _, _, yaw := shoulder.Pose.Rotation.RPY(); math.Abs(yaw-math.Pi/2) > 1e-9 {
		t.Errorf("shoulder yaw = %v, want pi/2", yaw)
	}

	base, _ := w.LinkByName("base")
	if len(base.Visuals) != 2 || len(base.Collisions) != 1 {
		t.Fatalf("base geometry = %d visuals, %d collisions", len(base.Visuals), len(base.Collisions))
	}
	plinth := base.Visuals[0]
	if plinth.Name != "plinth" || plinth.Material == nil || plinth.Material.Name != "steel" || plinth.Material.Color == nil {
		t.Errorf("plinth = %+v", plinth)
	}
	if m, ok := base.Visuals[1].Shape.(workcell.Mesh); !ok || m.Scale == nil || m.Scale.X != 0.001 {
		t.Errorf("mesh visual = %+v", base.Visuals[1].Shape)
	}
	if base.Inertial == nil || base.Inertial.Mass != 12 {
		t.Errorf("base inertial = %+v", base.Inertial)
	}

	j, ok := w.JointByName("shoulder-yaw")
	if !ok {
		t.Fatal("missing joint shoulder-yaw")
	}
	arm, _ := w.LinkByName("arm")
	if j.Kind != workcell.JointRevolute || j.Parent != base.ID || j.Child != arm.ID || j.Origin != shoulder.ID {
		t.Errorf("joint = %+v", j)
	}
	if j.Limits == nil || j.Limits.Lower != -1.5 || j.Limits.Effort != 40 {
		t.Errorf("limits = %+v", j.Limits)
	}

	g, _ := w.ModelByName("gripper")
	if g.Link != arm.ID || g.Offset == nil || g.Offset.Position.Z != 0.5 {
		t.Errorf("model = %+v", g)
	}
	if roots := w.Roots(); len(roots) != 1 || roots[0] != base.ID {
		t.Errorf("roots = %v", roots)
	}
}

func TestScriptUsesMetadata(t *testing.T) {
	eng := NewEngine(Config{Metadata: workcell.Metadata{Name: "bench", Unit: geom.Millimeter}})
	w, evalErrs, err := eng.Evaluate(`(anchor "a")`)
	if err != nil || len(evalErrs) > 0 {
		t.Fatalf("evaluate: %v %v", err, evalErrs)
	}
	if w.Metadata().Unit != geom.Millimeter || w.Metadata().Name != "bench" {
		t.Errorf("metadata = %+v", w.Metadata())
	}
}

func TestVec3(t *testing.T) {
	for _, src := range []string{`(vec3 1 2)`, `(vec3 1 2 "x")`, `(rpy 1)`, `(deg "x")`} {
		e := evalError(t, src)
		if e.Message == "" {
			t.Errorf("%s: empty message", src)
		}
		if e.Cause != nil {
			t.Errorf("%s: argument errors carry no workcell cause, got %v", src, e.Cause)
		}
	}
}

func TestIntegrityErrorsSurface(t *testing.T) {
	tests := []struct {
		name   string
		source string
		code   error
	}{
		{
			"duplicate anchor",
			`(anchor "a") (anchor "a")`,
			workcell.ErrDuplicateIdentifier,
		},
		{
			"unknown anchor",
			`(link "l" :anchor "nowhere")`,
			workcell.ErrUnresolvedName,
		},
		{
			"missing axis",
			`(anchor "a") (link "p" :anchor "a") (link "c" :anchor "a")
			 (joint "j" :kind :revolute :parent "p" :child "c" :origin "a" :lower 0 :upper 1)`,
			workcell.ErrInvalidProperty,
		},
		{
			"cycle",
			`(anchor "a") (link "p" :anchor "a") (link "c" :anchor "a")
			 (joint "j1" :kind :fixed :parent "p" :child "c" :origin "a")
			 (joint "j2" :kind :fixed :parent "c" :child "p" :origin "a")`,
			workcell.ErrCyclicTopology,
		},
		{
			"wrong reference kind",
			`(def a (anchor "a")) (link "l" :anchor a) (model "m" :asset "x.stl" :anchor a :attach a)`,
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := evalError(t, tt.source)
			if tt.code == nil {
				return
			}
			if !errors.Is(e, tt.code) {
				t.Errorf("error %v (cause %v) does not match %v", e, e.Cause, tt.code)
			}
			var verr *workcell.ValidationError
			if !errors.As(e, &verr) {
				t.Errorf("expected a ValidationError cause, got %T", e.Cause)
			}
		})
	}
}

func TestUnknownJointKind(t *testing.T) {
	e := evalError(t, `(anchor "a") (link "p" :anchor "a") (link "c" :anchor "a")
		(joint "j" :kind :hinge :parent "p" :child "c" :origin "a")`)
	if e.Cause != nil {
		t.Errorf("unexpected cause %v", e.Cause)
	}
}

func TestLinkRequiresAnchor(t *testing.T) {
	evalError(t, `(link "floating")`)
}

func TestParseZygomysErrorKeepsCause(t *testing.T) {
	cause := workcell.Errorf(workcell.ErrDuplicateIdentifier, workcell.Ref{}, "dup")
	errs := parseZygomysError(errString("Error on line 3: anchor: dup"), cause)
	if len(errs) != 1 || errs[0].Line != 3 {
		t.Fatalf("errs = %+v", errs)
	}
	if !errors.Is(errs[0], workcell.ErrDuplicateIdentifier) {
		t.Error("cause lost")
	}
}

func TestEmptySourceStillWorks(t *testing.T) {
	w := evaluate(t, "")
	if !w.IsEmpty() {
		t.Error("expected empty workcell")
	}
}

func TestArithmeticStillWorks(t *testing.T) {
	w := evaluate(t, `(def x (+ 1 2)) (anchor "a" :at (vec3 x 0 0))`)
	a, ok := w.AnchorByName("a")
	if !ok || a.Pose.Position.X != 3 {
		t.Errorf("anchor = %+v", a)
	}
}
