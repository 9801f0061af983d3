package sdfx

import (
	"math"
	"testing"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/kernel"
)

func newTestKernel() *SdfxKernel { return NewWithCells(48) }

func mustMesh(t *testing.T, k *SdfxKernel, s kernel.Solid) *kernel.Mesh {
	t.Helper()
	mesh, err := k.ToMesh(s)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if len(mesh.Vertices) != len(mesh.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(mesh.Vertices), len(mesh.Normals))
	}
	if len(mesh.Indices) != mesh.TriangleCount()*3 {
		t.Fatalf("indices length %d != triCount*3 %d", len(mesh.Indices), mesh.TriangleCount()*3)
	}
	return mesh
}

func checkBounds(t *testing.T, s kernel.Solid, wantMin, wantMax [3]float64, tol float64) {
	t.Helper()
	min, max := s.BoundingBox()
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected ~%f", i, min[i], wantMin[i])
		}
		if math.Abs(max[i]-wantMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected ~%f", i, max[i], wantMax[i])
		}
	}
}

func TestPrimitives(t *testing.T) {
	k := newTestKernel()

	box, err := k.Box(1, 0.5, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	checkBounds(t, box, [3]float64{-0.5, -0.25, -0.125}, [3]float64{0.5, 0.25, 0.125}, 1e-9)
	mustMesh(t, k, box)

	cyl, err := k.Cylinder(0.5, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	checkBounds(t, cyl, [3]float64{-0.1, -0.1, -0.25}, [3]float64{0.1, 0.1, 0.25}, 1e-9)
	mustMesh(t, k, cyl)

	sph, err := k.Sphere(0.2)
	if err != nil {
		t.Fatal(err)
	}
	checkBounds(t, sph, [3]float64{-0.2, -0.2, -0.2}, [3]float64{0.2, 0.2, 0.2}, 1e-9)
	mustMesh(t, k, sph)
}

func TestInvalidPrimitives(t *testing.T) {
	k := newTestKernel()
	if _, err := k.Box(-1, 1, 1); err == nil {
		t.Error("negative box size accepted")
	}
	if _, err := k.Cylinder(1, -0.1); err == nil {
		t.Error("negative cylinder radius accepted")
	}
	if _, err := k.Sphere(0); err == nil {
		t.Error("zero sphere radius accepted")
	}
}

func TestUnion(t *testing.T) {
	k := newTestKernel()
	a, _ := k.Box(0.5, 0.5, 0.5)
	b, _ := k.Box(0.5, 0.5, 0.5)
	u := k.Union(a, k.Transform(b, geom.At(0.3, 0, 0)))
	checkBounds(t, u, [3]float64{-0.25, -0.25, -0.25}, [3]float64{0.55, 0.25, 0.25}, 1e-6)
	mustMesh(t, k, u)
}

func TestTransformTranslates(t *testing.T) {
	k := newTestKernel()
	box, _ := k.Box(0.1, 0.1, 0.1)
	moved := k.Transform(box, geom.At(1, 2, 3))
	checkBounds(t, moved, [3]float64{0.95, 1.95, 2.95}, [3]float64{1.05, 2.05, 3.05}, 1e-6)

	c := mustMesh(t, k, moved).Centroid()
	for i, want := range []float64{1, 2, 3} {
		if math.Abs(c[i]-want) > 0.01 {
			t.Errorf("centroid[%d] = %f, expected ~%f", i, c[i], want)
		}
	}
}

func TestTransformRotates(t *testing.T) {
	k := newTestKernel()
	box, _ := k.Box(1, 0.1, 0.1)

	// A long box along X yawed 90 degrees extends along Y instead.
	rotated := k.Transform(box, geom.PoseFromRPY(geom.Vec3{}, geom.Vec3{Z: math.Pi / 2}))
	min, max := rotated.BoundingBox()
	if x := max[0] - min[0]; math.Abs(x-0.1) > 0.01 {
		t.Errorf("rotated X extent = %f, expected ~0.1", x)
	}
	if y := max[1] - min[1]; math.Abs(y-1) > 0.01 {
		t.Errorf("rotated Y extent = %f, expected ~1", y)
	}
}

func TestIdentityTransformIsNoop(t *testing.T) {
	k := newTestKernel()
	box, _ := k.Box(1, 1, 1)
	if k.Transform(box, geom.Identity()) != box {
		t.Error("identity transform wrapped the solid")
	}
}
