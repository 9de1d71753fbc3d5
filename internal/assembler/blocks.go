// Package assembler materializes the residual-block graph of spec §4.1:
// a tagged-variant list of blocks in the exact canonical order the
// outlier driver and residual analyzer must also walk.
package assembler

import "math"

// BlockKind tags a residual block's variant, per spec §9's preference
// for tagged-variant dispatch over virtual-style inheritance.
type BlockKind int

const (
	BlockReprojection BlockKind = iota
	BlockReferenceTerrain
	BlockGCP
	BlockCameraPrior
	BlockRotationTranslationPrior
)

// LossKind names the configurable robust loss of spec §4.1.
type LossKind int

const (
	LossL2 LossKind = iota
	LossHuber
	LossCauchy
	LossSoftL1
)

// Loss pairs a loss kind with its configured threshold tau.
type Loss struct {
	Kind LossKind
	Tau  float64
}

// TrivialLoss is the always-L2 loss used by GCP and camera-prior blocks
// (spec §4.1: "GCP and camera-prior blocks always use trivial (L2) loss
// so outliers are not discounted against anchor data").
var TrivialLoss = Loss{Kind: LossL2}

// Weight evaluates the configured loss's IRLS weight rho'(s) at the
// squared residual norm s = r^2 (1 for L2 and inside the Huber
// threshold); the solver scales the residual by it.
func (l Loss) Weight(residualSqNorm float64) float64 {
	switch l.Kind {
	case LossL2:
		return 1.0
	case LossHuber:
		if residualSqNorm <= l.Tau*l.Tau {
			return 1.0
		}
		return l.Tau / math.Sqrt(residualSqNorm)
	case LossCauchy:
		return 1.0 / (1.0 + residualSqNorm/(l.Tau*l.Tau))
	case LossSoftL1:
		return 1.0 / math.Sqrt(1.0+residualSqNorm/(l.Tau*l.Tau))
	default:
		return 1.0
	}
}

// Block is one entry in the residual-block graph: its kind, the
// parameter-block indices it touches, its dimensionality, and its loss.
//
// Target and Sigma are captured at assembly time and stay fixed for the
// life of the schedule: Target is the pixel measurement (reprojection,
// reference-terrain), the surveyed position (GCP) or the initial
// parameter snapshot (camera/rotation-translation prior) that the
// block's live residual is measured against; Sigma divides the raw
// residual component-wise before any loss is applied.
type Block struct {
	Kind BlockKind

	// Camera/Point index this block reads; a field the block kind does
	// not use is left at 0. For
	// BlockReferenceTerrain, Point indexes cnet.Network.ReferenceTerrainPoints
	// rather than a point ID.
	Camera, Camera2, Point int

	Dim    int
	Loss   Loss
	Target []float64
	Sigma  []float64
}

// Schedule is the ordered list of blocks exactly as they will appear in
// the solver's flat residual vector; both the residual analyzer and the
// outlier filter must decode against the same Schedule.
type Schedule struct {
	Blocks []Block
}

// TotalResidualDim sums every block's dimension, i.e. the length of the
// flat residual vector this schedule describes.
func (s Schedule) TotalResidualDim() int {
	n := 0
	for _, b := range s.Blocks {
		n += b.Dim
	}
	return n
}
