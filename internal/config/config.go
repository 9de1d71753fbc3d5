// Package config holds the single configuration value threaded through
// every stage of a bundle-adjust run. Per spec §9's redesign note, the
// source's process-wide mutable settings object becomes an explicit
// value passed to constructors instead.
package config

import (
	"fmt"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// LossKind names the configurable robust loss of spec §4.1 independent
// of the assembler package, so config can validate the flag without an
// import cycle.
type LossKind string

const (
	LossL2     LossKind = "l2"
	LossHuber  LossKind = "huber"
	LossCauchy LossKind = "cauchy"
	LossSoftL1 LossKind = "soft_l1"
)

// OutlierParams bundles the four-number Tukey-style bracket of spec §4.2.
type OutlierParams struct {
	Pct    float64
	Factor float64
	Err1   float64
	Err2   float64
}

// DisparityOutlierParams bundles the match-disparity band parameters
// (percentile, widening factor) of remove-outliers-by-disparity.
type DisparityOutlierParams struct {
	Pct    float64
	Factor float64
}

// Config mirrors spec §6's option table.
type Config struct {
	CostFunction     LossKind
	RobustThreshold  float64
	CameraWeight     float64
	RotationWeight   float64
	TranslationWeight float64
	OverlapExponent  float64

	NumPasses            int
	RemoveOutliers       OutlierParams
	RemoveOutliersByDisp DisparityOutlierParams
	MinMatches           int

	MinTriangulationAngleDeg float64

	MaxIterations      int
	ParameterTolerance float64

	SolveIntrinsics   bool
	IntrinsicsToFloat []string

	FixGCPXYZ            bool
	FixedCameraIndices   []int
	HeightsFromDEM       string
	UseLonLatHeightGCPErr bool

	InitialTransform      string
	InputAdjustmentsPrefix string

	MapprojectedData string
	GCPData          string

	ReferenceTerrain string
	DisparityList    string
	MaxDispError     float64

	Datum           string
	SemiMajorAxis   float64
	SemiMinorAxis   float64

	CameraPositions    string
	PositionFilterDist float64

	OverlapLimit int
	OverlapList  string

	SaveCnetAsCSV string

	NumThreads  int
	SessionType string
}

// Default returns the option defaults named throughout spec §6/§8.
func Default() Config {
	return Config{
		CostFunction:             LossCauchy,
		RobustThreshold:          0.5,
		OverlapExponent:          0,
		NumPasses:                2,
		RemoveOutliers:           OutlierParams{Pct: 75, Factor: 3, Err1: 2, Err2: 3},
		RemoveOutliersByDisp:     DisparityOutlierParams{Pct: 90, Factor: 3},
		MinMatches:               30,
		MinTriangulationAngleDeg: 0.1,
		MaxIterations:            500,
		ParameterTolerance:       1e-8,
		Datum:                    "WGS84",
		NumThreads:               1,
	}
}

// Validate performs the contradictory-flag and missing-dependency checks
// of spec §7, failing immediately with a single descriptive message. It
// also applies spec §5's isis pin: an isis session drives the camera
// model through a single-threaded ISIS library binding, so NumThreads
// is forced to 1 regardless of what was requested.
func (c *Config) Validate() error {
	if c.NumThreads <= 0 {
		c.NumThreads = 1
	}
	if c.SessionType == "isis" {
		c.NumThreads = 1
	}
	switch c.CostFunction {
	case LossL2, LossHuber, LossCauchy, LossSoftL1:
	default:
		return baerrors.Config(nil, fmt.Sprintf("unknown cost function %q", c.CostFunction))
	}
	if c.NumPasses < 1 {
		return baerrors.Config(nil, "num-passes must be >= 1")
	}
	if c.ReferenceTerrain != "" && c.DisparityList == "" {
		return baerrors.Config(nil, "reference-terrain requires disparity-list")
	}
	if c.HeightsFromDEM != "" && c.Datum == "" {
		return baerrors.Config(nil, "heights-from-dem requires a datum")
	}
	if c.OverlapLimit > 0 && c.OverlapList != "" {
		return baerrors.Config(nil, "overlap-limit and overlap-list are mutually exclusive")
	}
	if c.UseLonLatHeightGCPErr && c.Datum == "" {
		return baerrors.Config(nil, "use-lon-lat-height-gcp-error requires a datum")
	}
	if (c.SemiMajorAxis != 0) != (c.SemiMinorAxis != 0) {
		return baerrors.Config(nil, "semi-major-axis and semi-minor-axis must be set together")
	}
	return nil
}

// IsCameraFixed reports whether cam is listed in FixedCameraIndices.
func (c Config) IsCameraFixed(cam int) bool {
	for _, i := range c.FixedCameraIndices {
		if i == cam {
			return true
		}
	}
	return false
}
