package kernel

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // link and geometry the mesh came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Bounds returns the axis-aligned bounds of the vertices. ok is false for
// an empty mesh.
func (m *Mesh) Bounds() (min, max [3]float32, ok bool) {
	if m.IsEmpty() {
		return min, max, false
	}
	copy(min[:], m.Vertices[:3])
	copy(max[:], m.Vertices[:3])
	for i := 3; i+2 < len(m.Vertices); i += 3 {
		for a := 0; a < 3; a++ {
			v := m.Vertices[i+a]
			if v < min[a] {
				min[a] = v
			}
			if v > max[a] {
				max[a] = v
			}
		}
	}
	return min, max, true
}

// Centroid returns the mean vertex position.
func (m *Mesh) Centroid() [3]float64 {
	var c [3]float64
	n := m.VertexCount()
	if n == 0 {
		return c
	}
	for i := 0; i < n; i++ {
		c[0] += float64(m.Vertices[i*3])
		c[1] += float64(m.Vertices[i*3+1])
		c[2] += float64(m.Vertices[i*3+2])
	}
	for a := range c {
		c[a] /= float64(n)
	}
	return c
}
