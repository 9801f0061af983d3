package editor

import (
	"fmt"

	"github.com/chazu/workcell/pkg/geom"
	"github.com/chazu/workcell/pkg/workcell"
)

// MergeOptions controls MergeImport.
type MergeOptions struct {
	// Label names the journal entry.
	Label string
	// Prefix is prepended to every non-empty imported name.
	Prefix string
	// Placement, when set, is applied to every top-level imported anchor.
	Placement *geom.Pose
}

// Remap maps ids in the merged workcell to the ids they received in the
// session's document.
type Remap struct {
	Anchors map[workcell.AnchorID]workcell.AnchorID
	Links   map[workcell.LinkID]workcell.LinkID
	Joints  map[workcell.JointID]workcell.JointID
	Models  map[workcell.ModelID]workcell.ModelID
}

// MergeImport adds every entity of src to the document as one validated
// change set. Entities receive fresh ids and references are rewritten to
// match. Either everything is merged or nothing is; a name that collides
// with an existing entity fails the merge with ErrDuplicateIdentifier.
func (s *Session) MergeImport(src *workcell.Workcell, opts MergeOptions) (Remap, error) {
	if opts.Label == "" {
		opts.Label = "merge"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sm, dm := src.Metadata(), s.w.Metadata()
	if sm.Unit != dm.Unit || sm.UpAxis != dm.UpAxis {
		return Remap{}, workcell.Errorf(workcell.ErrMalformedDocument, workcell.Ref{},
			"cannot merge a %s/%s-up document into a %s/%s-up one", sm.Unit, sm.UpAxis, dm.Unit, dm.UpAxis)
	}

	m := Remap{
		Anchors: make(map[workcell.AnchorID]workcell.AnchorID),
		Links:   make(map[workcell.LinkID]workcell.LinkID),
		Joints:  make(map[workcell.JointID]workcell.JointID),
		Models:  make(map[workcell.ModelID]workcell.ModelID),
	}
	anchors, links, joints, models := src.Anchors(), src.Links(), src.Joints(), src.Models()
	for _, a := range anchors {
		m.Anchors[a.ID] = workcell.AnchorID(s.w.NextID())
	}
	for _, l := range links {
		m.Links[l.ID] = workcell.LinkID(s.w.NextID())
	}
	for _, j := range joints {
		m.Joints[j.ID] = workcell.JointID(s.w.NextID())
	}
	for _, mi := range models {
		m.Models[mi.ID] = workcell.ModelID(s.w.NextID())
	}

	name := func(n string) string {
		if n == "" {
			return ""
		}
		return opts.Prefix + n
	}
	cs := workcell.ChangeSet{Label: opts.Label}
	add := func(e workcell.Entity) { cs.Changes = append(cs.Changes, workcell.Change{After: e}) }

	for _, a := range anchors {
		a.ID = m.Anchors[a.ID]
		a.Name = name(a.Name)
		if a.Parent != 0 {
			a.Parent = m.Anchors[a.Parent]
		} else if opts.Placement != nil {
			a.Pose = opts.Placement.Compose(a.Pose)
		}
		add(a)
	}
	for _, l := range links {
		l.ID = m.Links[l.ID]
		l.Name = name(l.Name)
		l.Anchor = m.Anchors[l.Anchor]
		add(l)
	}
	for _, j := range joints {
		j.ID = m.Joints[j.ID]
		j.Name = name(j.Name)
		j.Parent = m.Links[j.Parent]
		j.Child = m.Links[j.Child]
		j.Origin = m.Anchors[j.Origin]
		add(j)
	}
	for _, mi := range models {
		mi.ID = m.Models[mi.ID]
		mi.Name = name(mi.Name)
		mi.Anchor = m.Anchors[mi.Anchor]
		if mi.Link != 0 {
			mi.Link = m.Links[mi.Link]
		}
		add(mi)
	}

	if err := s.w.Apply(cs); err != nil {
		s.log.Warn("merge rejected", "label", opts.Label, "error", err)
		return Remap{}, fmt.Errorf("%s: %w", opts.Label, err)
	}
	s.log.Info("merged workcell", "label", opts.Label,
		"anchors", len(anchors), "links", len(links), "joints", len(joints), "models", len(models))
	return m, nil
}
