package workcell

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// Identifiers are allocated from a single monotonically increasing counter
// per workcell, so an id is never reused even after its entity is removed.
// The zero value of every id type means "none".
type (
	AnchorID uint64
	LinkID   uint64
	JointID  uint64
	ModelID  uint64
)

func (id AnchorID) String() string { return "anchor " + strconv.FormatUint(uint64(id), 10) }
func (id LinkID) String() string   { return "link " + strconv.FormatUint(uint64(id), 10) }
func (id JointID) String() string  { return "joint " + strconv.FormatUint(uint64(id), 10) }
func (id ModelID) String() string  { return "model " + strconv.FormatUint(uint64(id), 10) }

// Ref returns the typed reference for id.
func (id AnchorID) Ref() Ref { return Ref{Kind: KindAnchor, ID: uint64(id)} }
func (id LinkID) Ref() Ref   { return Ref{Kind: KindLink, ID: uint64(id)} }
func (id JointID) Ref() Ref  { return Ref{Kind: KindJoint, ID: uint64(id)} }
func (id ModelID) Ref() Ref  { return Ref{Kind: KindModel, ID: uint64(id)} }

// EntityKind enumerates the entity kinds a workcell owns.
type EntityKind int

const (
	KindAnchor EntityKind = iota + 1 // reference frame
	KindLink                         // rigid body
	KindJoint                        // kinematic connection
	KindModel                        // placed asset
)

func (k EntityKind) String() string {
	switch k {
	case KindAnchor:
		return "anchor"
	case KindLink:
		return "link"
	case KindJoint:
		return "joint"
	case KindModel:
		return "model"
	default:
		return "unknown"
	}
}

// Ref is a kind-tagged entity identifier.
type Ref struct {
	Kind EntityKind
	ID   uint64
}

// IsZero reports whether r refers to nothing.
func (r Ref) IsZero() bool { return r.Kind == 0 && r.ID == 0 }

func (r Ref) String() string {
	if r.IsZero() {
		return "workcell"
	}
	return fmt.Sprintf("%s %d", r.Kind, r.ID)
}

// Allocator hands out identifiers. It is safe for concurrent use, though a
// workcell only allocates from its single writer.
type Allocator struct {
	last atomic.Uint64
}

// Next reserves and returns a fresh id.
func (a *Allocator) Next() uint64 {
	return a.last.Add(1)
}

// Peek returns the id Next would return without reserving it.
func (a *Allocator) Peek() uint64 {
	return a.last.Load() + 1
}

// Last returns the most recently reserved id, or zero.
func (a *Allocator) Last() uint64 {
	return a.last.Load()
}

// Observe raises the counter so that id is never handed out again.
func (a *Allocator) Observe(id uint64) {
	for {
		cur := a.last.Load()
		if id <= cur || a.last.CompareAndSwap(cur, id) {
			return
		}
	}
}
