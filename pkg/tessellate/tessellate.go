// Package tessellate meshes the primitive geometry of a workcell's links
// using a geometry kernel. One mesh is produced per box, cylinder or sphere
// geometry, placed at its world pose, or per link when PerLink is set.
// Mesh-file geometry is listed as skipped; loading mesh assets is the
// renderer's job.
package tessellate

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/workcell/pkg/kernel"
	"github.com/chazu/workcell/pkg/logging"
	"github.com/chazu/workcell/pkg/workcell"
)

// Options controls a tessellation pass.
type Options struct {
	// Collision meshes collision geometry instead of visuals.
	Collision bool
	// PerLink unions each link's primitives into a single part named
	// after the link.
	PerLink bool
	// Concurrency bounds parallel meshing. Zero means GOMAXPROCS.
	Concurrency int
	Logger      logging.Logger
}

// Part is one meshed geometry, or one link with PerLink. The mesh vertices
// are in world coordinates.
type Part struct {
	Link     workcell.LinkID
	Geometry string
	Mesh     *kernel.Mesh
	Color    *workcell.RGBA
}

// Skipped names a geometry that was not meshed.
type Skipped struct {
	Link     workcell.LinkID
	Geometry string
	Source   string
}

// Result holds the parts in link order, then geometry order.
type Result struct {
	Parts   []Part
	Skipped []Skipped
}

type task struct {
	link workcell.Link
	name string
	geos []workcell.Geometry
	slot int
}

// partName is the mesh name of a task: the link, plus the geometry
// unless the task covers the whole link.
func (t task) partName() string {
	if t.name == "" {
		return t.link.Name
	}
	return t.link.Name + "/" + t.name
}

// color is the first material colour among the task's geometry.
func (t task) color() *workcell.RGBA {
	for _, g := range t.geos {
		if g.Material != nil && g.Material.Color != nil {
			return g.Material.Color
		}
	}
	return nil
}

// Tessellate meshes w with k. The tessellator is read-only and never
// mutates the workcell.
func Tessellate(ctx context.Context, w *workcell.Workcell, k kernel.Kernel, opts Options) (*Result, error) {
	res := &Result{}
	if w == nil {
		return res, nil
	}
	log := logging.OrNop(opts.Logger)
	done := logging.Timer(log, "tessellate")
	defer done()

	var tasks []task
	for _, l := range w.Links() {
		geos := l.Visuals
		kind := "visual"
		if opts.Collision {
			geos, kind = l.Collisions, "collision"
		}
		var whole []workcell.Geometry
		for i, g := range geos {
			name := g.Name
			if name == "" {
				name = kind + strconv.Itoa(i)
			}
			if m, ok := g.Shape.(workcell.Mesh); ok {
				res.Skipped = append(res.Skipped, Skipped{Link: l.ID, Geometry: name, Source: m.Source})
				continue
			}
			if opts.PerLink {
				whole = append(whole, g)
				continue
			}
			tasks = append(tasks, task{link: l, name: name, geos: []workcell.Geometry{g}, slot: len(tasks)})
		}
		if len(whole) > 0 {
			tasks = append(tasks, task{link: l, geos: whole, slot: len(tasks)})
		}
	}

	res.Parts = make([]Part, len(tasks))
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for _, t := range tasks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mesh, err := meshTask(w, k, t)
			if err != nil {
				return fmt.Errorf("tessellate %s: %w", t.partName(), err)
			}
			res.Parts[t.slot] = Part{Link: t.link.ID, Geometry: t.name, Mesh: mesh, Color: t.color()}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	log.Debug("tessellated workcell", "parts", len(res.Parts), "skipped", len(res.Skipped))
	return res, nil
}

func meshTask(w *workcell.Workcell, k kernel.Kernel, t task) (*kernel.Mesh, error) {
	frame, err := w.LinkPose(t.link.ID)
	if err != nil {
		return nil, err
	}
	var solid kernel.Solid
	for _, g := range t.geos {
		s, err := primitive(k, g.Shape)
		if err != nil {
			return nil, err
		}
		s = k.Transform(s, frame.Compose(g.Origin))
		if solid == nil {
			solid = s
		} else {
			solid = k.Union(solid, s)
		}
	}

	mesh, err := k.ToMesh(solid)
	if err != nil {
		return nil, err
	}
	mesh.PartName = t.partName()
	return mesh, nil
}

func primitive(k kernel.Kernel, shape workcell.Shape) (kernel.Solid, error) {
	switch s := shape.(type) {
	case workcell.Box:
		return k.Box(s.Size.X, s.Size.Y, s.Size.Z)
	case workcell.Cylinder:
		return k.Cylinder(s.Length, s.Radius)
	case workcell.Sphere:
		return k.Sphere(s.Radius)
	}
	return nil, fmt.Errorf("unsupported shape %T", shape)
}
