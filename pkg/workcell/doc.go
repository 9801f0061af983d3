// Package workcell defines the workcell scene graph: anchors (reference
// frames), links, joints and model instances, all owned by a Workcell and
// cross-referenced by stable identifiers.
//
// Every mutation is expressed as a ChangeSet and routed through the
// integrity engine before it is committed. Checks run against an overlay of
// the proposed state, so a rejected operation never leaves the workcell
// partially updated.
package workcell
