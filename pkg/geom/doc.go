// Package geom holds the spatial primitives shared by the workcell model,
// the URDF codec and the geometry kernel: vectors, quaternions, poses,
// length units and up-axis conventions.
package geom
