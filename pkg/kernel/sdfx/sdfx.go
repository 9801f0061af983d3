// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// DefaultMeshCells is the marching cubes resolution along the longest axis
// of a solid.
const DefaultMeshCells = 200

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid.
type sdfxSolid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// New returns a kernel meshing at DefaultMeshCells.
func New() *SdfxKernel {
	return &SdfxKernel{cells: DefaultMeshCells}
}

// NewWithCells returns a kernel meshing at the given resolution. Values
// below 8 are raised to 8.
func NewWithCells(cells int) *SdfxKernel {
	return &SdfxKernel{cells: max(cells, 8)}
}

func unwrap(s kernel.Solid) sdf.SDF3 {
	return s.(*sdfxSolid).s
}

func wrap(s sdf.SDF3) kernel.Solid {
	return &sdfxSolid{s: s}
}

// Box creates a box of the given size centred on the origin.
func (k *SdfxKernel) Box(x, y, z float64) (kernel.Solid, error) {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx box %gx%gx%g: %w", x, y, z, err)
	}
	return wrap(s), nil
}

// Cylinder creates a cylinder along Z centred on the origin.
func (k *SdfxKernel) Cylinder(length, radius float64) (kernel.Solid, error) {
	s, err := sdf.Cylinder3D(length, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("sdfx cylinder r=%g l=%g: %w", radius, length, err)
	}
	return wrap(s), nil
}

// Sphere creates a sphere centred on the origin.
func (k *SdfxKernel) Sphere(radius float64) (kernel.Solid, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("sdfx sphere r=%g: %w", radius, err)
	}
	return wrap(s), nil
}

// Union returns the union of two solids.
func (k *SdfxKernel) Union(a, b kernel.Solid) kernel.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Transform places s at pose p.
func (k *SdfxKernel) Transform(s kernel.Solid, p geom.Pose) kernel.Solid {
	if p.IsIdentity(1e-12) {
		return s
	}
	return wrap(sdf.Transform3D(unwrap(s), p.Matrix()))
}

// ToMesh converts a solid to a triangle mesh using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	cells := k.cells
	if cells == 0 {
		cells = DefaultMeshCells
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(unwrap(s), renderer)
	if len(triangles) == 0 {
		return nil, fmt.Errorf("sdfx mesh: no triangles at %d cells", cells)
	}

	numVerts := len(triangles) * 3
	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx, ny, nz := float32(n.X), float32(n.Y), float32(n.Z)
		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}
