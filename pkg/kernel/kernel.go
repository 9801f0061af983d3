// Package kernel defines the geometry kernel used to turn workcell
// primitive shapes into triangle meshes for display. Shapes follow URDF
// conventions: boxes and spheres are centred on their frame origin and
// cylinders run along the local Z axis.
package kernel

import "github.com/chazu/workcell/pkg/geom"

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel builds solids from workcell primitives and meshes them.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) (Solid, error)
	Cylinder(length, radius float64) (Solid, error)
	Sphere(radius float64) (Solid, error)

	Union(a, b Solid) Solid

	// Transform places a solid at pose p, rotation first.
	Transform(s Solid, p geom.Pose) Solid

	ToMesh(s Solid) (*Mesh, error)
}
