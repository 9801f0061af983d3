package workcell

import (
	"reflect"
)

// Change records one entity's state before and after an edit. Before is
// nil for a creation and After is nil for a removal.
type Change struct {
	Before Entity
	After  Entity
}

// Ref returns the entity the change applies to.
func (c Change) Ref() Ref {
	if c.After != nil {
		return c.After.Ref()
	}
	if c.Before != nil {
		return c.Before.Ref()
	}
	return Ref{}
}

// Inverse returns the change that undoes c.
func (c Change) Inverse() Change {
	return Change{Before: c.After, After: c.Before}
}

func (c Change) clone() Change {
	return Change{Before: cloneEntity(c.Before), After: cloneEntity(c.After)}
}

// wellFormed checks that c names a single entity with a real id.
func (c Change) wellFormed() error {
	switch {
	case c.Before == nil && c.After == nil:
		return newError(ErrMalformedDocument, Ref{}, "change has neither a before nor an after state")
	case c.Before != nil && c.After != nil && c.Before.Ref() != c.After.Ref():
		return newError(ErrMalformedDocument, c.After.Ref(), "change switches identity from %s", c.Before.Ref())
	}
	if r := c.Ref(); r.ID == 0 {
		return newError(ErrMalformedDocument, Ref{}, "%s record has no id", r.Kind)
	}
	return nil
}

// MetadataChange records a metadata edit.
type MetadataChange struct {
	Before Metadata
	After  Metadata
}

// ChangeSet is the unit of commit, undo and redo. Changes are applied in
// order; the integrity checks run once against the combined result.
type ChangeSet struct {
	Label    string
	Changes  []Change
	Metadata *MetadataChange
}

// IsEmpty reports whether cs changes nothing.
func (cs ChangeSet) IsEmpty() bool {
	return len(cs.Changes) == 0 && cs.Metadata == nil
}

// Inverse returns the change set that undoes cs.
func (cs ChangeSet) Inverse() ChangeSet {
	inv := ChangeSet{Label: cs.Label}
	for i := len(cs.Changes) - 1; i >= 0; i-- {
		inv.Changes = append(inv.Changes, cs.Changes[i].Inverse())
	}
	if cs.Metadata != nil {
		inv.Metadata = &MetadataChange{Before: cs.Metadata.After, After: cs.Metadata.Before}
	}
	return inv
}

// Clone returns a deep copy of cs.
func (cs ChangeSet) Clone() ChangeSet {
	out := ChangeSet{Label: cs.Label}
	if len(cs.Changes) > 0 {
		out.Changes = make([]Change, len(cs.Changes))
		for i, c := range cs.Changes {
			out.Changes[i] = c.clone()
		}
	}
	if cs.Metadata != nil {
		m := *cs.Metadata
		out.Metadata = &m
	}
	return out
}

// Merge appends the changes of o after those of cs.
func (cs ChangeSet) Merge(o ChangeSet) ChangeSet {
	out := cs.Clone()
	for _, c := range o.Changes {
		out.Changes = append(out.Changes, c.clone())
	}
	switch {
	case out.Metadata == nil && o.Metadata != nil:
		m := *o.Metadata
		out.Metadata = &m
	case out.Metadata != nil && o.Metadata != nil:
		out.Metadata.After = o.Metadata.After
	}
	return out
}

// Refs returns the distinct entities touched by cs in first-touch order.
func (cs ChangeSet) Refs() []Ref {
	seen := make(map[Ref]bool, len(cs.Changes))
	var out []Ref
	for _, c := range cs.Changes {
		r := c.Ref()
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Apply commits cs through the integrity engine. Each change's Before must
// match the current state of its entity; otherwise ErrUndoPreconditionFailed
// is returned and nothing changes.
func (w *Workcell) Apply(cs ChangeSet) error {
	return w.commit(cs)
}

func (w *Workcell) commit(cs ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}
	ov := newOverlay(w)
	var maxID uint64
	for _, c := range cs.Changes {
		if err := c.wellFormed(); err != nil {
			return err
		}
		ref := c.Ref()
		if !equalEntity(ov.get(ref), c.Before) {
			return newError(ErrUndoPreconditionFailed, ref, "current state does not match the recorded state")
		}
		if c.After == nil {
			ov.remove(ref)
		} else {
			ov.put(normalizeEntity(cloneEntity(c.After)))
		}
		maxID = max(maxID, ref.ID)
	}
	if cs.Metadata != nil {
		if ov.meta != cs.Metadata.Before {
			return newError(ErrUndoPreconditionFailed, Ref{}, "metadata does not match the recorded state")
		}
		ov.meta = cs.Metadata.After
	}

	var present, removed []Ref
	for _, r := range cs.Refs() {
		if ov.get(r) != nil {
			present = append(present, r)
		} else {
			removed = append(removed, r)
		}
	}
	if err := firstError(ov.check(present, removed, false)); err != nil {
		return err
	}

	ov.flush(w)
	w.ids.Observe(maxID)
	w.notify(cs.Clone())
	return nil
}

func equalEntity(a, b Entity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(normalizeEntity(a), normalizeEntity(b))
}

// normalizeEntity maps empty slices to nil so that equality does not
// depend on how a record was built.
func normalizeEntity(e Entity) Entity {
	if l, ok := e.(Link); ok {
		if len(l.Visuals) == 0 {
			l.Visuals = nil
		}
		if len(l.Collisions) == 0 {
			l.Collisions = nil
		}
		return l
	}
	return e
}
