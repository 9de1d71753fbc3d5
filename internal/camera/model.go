// Package camera implements the camera-model contract that spec.md treats
// as an external collaborator (§1): given a flat parameter vector and a
// world point, project to a pixel and supply the jacobian with respect to
// both the camera's parameters and the point. Two implementations share
// the interface: Pinhole (mutable shared intrinsics) and Generic (opaque
// extrinsics-only adjustable model), per the §9 "unified design" note.
package camera

import "gonum.org/v1/gonum/mat"

// Layout gives the position/rotation sub-ranges within a Model's flat
// Extrinsics vector. Pinhole and Generic order these differently, so
// the assembler asks rather than assumes when splitting a prior's
// weight between rotation and translation components.
type Layout struct {
	Pos [2]int
	Rot [2]int
}

// Model is the capability surface the assembler depends on.
type Model interface {
	// ID is the camera's stable index, 0..N-1.
	ID() int

	// Extrinsics returns the camera's flat parameter block (length C,
	// conventionally 6: position + axis-angle rotation).
	Extrinsics() []float64
	SetExtrinsics([]float64)

	// Project maps an ECEF world point to a pixel using the camera's
	// current extrinsics (and intrinsics, for models that have them).
	// ok is false when the point is behind the camera or distortion
	// diverges (spec §7: projection failures are skipped, not errors).
	Project(xyz mat.Vector) (pixel [2]float64, ok bool)

	// Jacobian returns d(pixel)/d(extrinsics) as a 2xC matrix and
	// d(pixel)/d(xyz) as a 2x3 matrix, evaluated at the camera's current
	// parameters and the given point.
	Jacobian(xyz mat.Vector) (dExtrinsics, dPoint *mat.Dense, ok bool)

	// HasMutableIntrinsics reports whether this model exposes an
	// intrinsics block the assembler can add residuals/constraints for.
	HasMutableIntrinsics() bool

	// Fixed reports whether the camera's parameter block should be held
	// constant by the solver (fixed-camera-indices).
	Fixed() bool
	SetFixed(bool)

	// ExtrinsicsLayout reports where this model's position and rotation
	// components fall within Extrinsics().
	ExtrinsicsLayout() Layout
}

// ExtrinsicsDim is the conventional dimension of a camera's extrinsics
// block: 3 for position plus 3 for axis-angle rotation.
const ExtrinsicsDim = 6
