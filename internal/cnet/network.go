// Package cnet implements the control network model of spec §3/§4.6: the
// bipartite graph of cameras and world points linked by pixel
// observations, the outlier set, and the canonical iteration order that
// the assembler, outlier driver and residual analyzer must all share.
package cnet

import (
	"math"
	"sort"
)

// Kind distinguishes tie points (triangulated from matches only) from
// ground control points (anchored to a surveyed position).
type Kind int

const (
	Tie Kind = iota
	GCP
)

// Point is one world point in the network.
type Point struct {
	ID   int
	Kind Kind
	XYZ  [3]float64

	// Sigma holds per-axis standard deviations for GCPs. LatLonHeight
	// reinterprets the three axes as (lat, lon, height) sigmas rather
	// than ECEF (x, y, z) when use-lon-lat-height-gcp-error is set.
	Sigma          [3]float64
	LatLonHeight   bool

	// Anchor is the GCP's fixed surveyed position; XYZ is the
	// optimization variable pulled toward Anchor by the GCP residual.
	// Unused for tie points.
	Anchor [3]float64

	// FixedXYZ marks a GCP as fixed (fix-gcp-xyz). solver.NewProblem does
	// not read it; it holds GCP blocks constant from config.Config.FixGCPXYZ.
	FixedXYZ bool

	// FixedByDEM is set by the heights-from-DEM assembler step: once
	// true, the point's parameter block is held constant.
	FixedByDEM bool
}

// Observation links a camera to a point with a pixel measurement.
type Observation struct {
	Cam, Point int
	Pixel      [2]float64
	Sigma      [2]float64
}

// defaultSigma substitutes 1 for each per-observation sigma that is NaN or
// not positive (including the zero value of an unset Sigma) at
// construction time (spec §3: "(defaulted to (1,1) if NaN)").
func defaultSigma(s [2]float64) [2]float64 {
	out := s
	if math.IsNaN(out[0]) || out[0] <= 0 {
		out[0] = 1
	}
	if math.IsNaN(out[1]) || out[1] <= 0 {
		out[1] = 1
	}
	return out
}

// Network is the control network: points plus per-camera observation
// lists. Points and each camera's observations keep insertion order;
// cameras are kept in ascending index order.
type Network struct {
	points         map[int]*Point
	pointOrder     []int
	observationsBy map[int][]Observation // keyed by camera index
	cameraOrder    []int
	outliers       OutlierSet
	refTerrain     []ReferenceTerrainPoint
}

// New builds an empty network. Overlap restriction (OverlapFilter) is
// applied upstream, before matches ever become observations — see
// OverlapFilter.AllowsPair and its caller in cmd/bundle_adjust.
func New() *Network {
	return &Network{
		points:         map[int]*Point{},
		observationsBy: map[int][]Observation{},
		outliers:       NewOutlierSet(),
	}
}

// AddPoint inserts a point if it isn't already present. GCPs may be added
// with zero observations; tie points require later AddObservation calls
// satisfying the >=2-camera construction policy to be checked by the
// caller via Validate.
func (n *Network) AddPoint(p Point) {
	if _, exists := n.points[p.ID]; exists {
		return
	}
	n.points[p.ID] = &p
	n.pointOrder = append(n.pointOrder, p.ID)
}

// AddObservation records an observation, respecting the "(cam, point)
// appears at most once" invariant.
func (n *Network) AddObservation(o Observation) bool {
	for _, existing := range n.observationsBy[o.Cam] {
		if existing.Point == o.Point {
			return false
		}
	}
	o.Sigma = defaultSigma(o.Sigma)
	if _, seen := observationCameraIndex(n.cameraOrder, o.Cam); !seen {
		i := sort.SearchInts(n.cameraOrder, o.Cam)
		n.cameraOrder = append(n.cameraOrder, 0)
		copy(n.cameraOrder[i+1:], n.cameraOrder[i:])
		n.cameraOrder[i] = o.Cam
	}
	n.observationsBy[o.Cam] = append(n.observationsBy[o.Cam], o)
	return true
}

func observationCameraIndex(order []int, cam int) (int, bool) {
	for i, c := range order {
		if c == cam {
			return i, true
		}
	}
	return -1, false
}

// NumCameras returns the count of distinct cameras with at least one
// observation inserted.
func (n *Network) NumCameras() int { return len(n.cameraOrder) }

// NumPoints returns the total point count (tie + GCP).
func (n *Network) NumPoints() int { return len(n.pointOrder) }

// Point looks up a point by ID.
func (n *Network) Point(id int) (Point, bool) {
	p, ok := n.points[id]
	if !ok {
		return Point{}, false
	}
	return *p, true
}

// SetPoint overwrites a point's stored value (used by the aligner and the
// heights-from-DEM step to mutate XYZ in place).
func (n *Network) SetPoint(p Point) {
	if _, ok := n.points[p.ID]; ok {
		n.points[p.ID] = &p
	}
}

// Points returns every point in insertion order.
func (n *Network) Points() []Point {
	out := make([]Point, 0, len(n.pointOrder))
	for _, id := range n.pointOrder {
		out = append(out, *n.points[id])
	}
	return out
}

// Cameras returns the camera indices that own at least one observation,
// in ascending index order.
func (n *Network) Cameras() []int {
	out := make([]int, len(n.cameraOrder))
	copy(out, n.cameraOrder)
	return out
}

// ObservationsOf returns a camera's observation list, in insertion order
// (spec §4.6: "observations_of(camera) -> ordered list").
func (n *Network) ObservationsOf(cam int) []Observation {
	return n.observationsBy[cam]
}

// Walk iterates the canonical order of spec §3: "for cam in 0..N: for obs
// in observations_of(cam)". This defines the residual ordering every
// other component must reproduce.
func (n *Network) Walk(fn func(cam int, obs Observation)) {
	for _, cam := range n.cameraOrder {
		for _, obs := range n.observationsBy[cam] {
			fn(cam, obs)
		}
	}
}

// ObserverCount returns the number of distinct, non-outlier cameras
// observing point p (used by overlap weighting and outlier classification).
func (n *Network) ObserverCount(pointID int) int {
	count := 0
	for _, cam := range n.cameraOrder {
		for _, obs := range n.observationsBy[cam] {
			if obs.Point == pointID {
				count++
				break
			}
		}
	}
	return count
}

// Outliers exposes the outlier set.
func (n *Network) Outliers() *OutlierSet { return &n.outliers }

// Validate reports every tie point observed by fewer than 2 cameras. GCPs
// are skipped, since they may legitimately have zero observations per
// spec §3.
func (n *Network) Validate() []error {
	var errs []error
	for _, id := range n.pointOrder {
		p := n.points[id]
		if p.Kind == GCP {
			continue
		}
		if n.ObserverCount(id) < 2 {
			errs = append(errs, pointTooFewObserversError(id))
		}
	}
	return errs
}

// ReferenceTerrainPoint is one soft-ground-truth anchor (spec §3): a
// point, the left/right camera pair that observes it, and the disparity
// sampled from the precomputed raster between them.
type ReferenceTerrainPoint struct {
	XYZ               [3]float64
	LeftCam, RightCam int
	// Disparity is the precomputed right-minus-left pixel offset sampled
	// at the left projection, per spec §3's reference-terrain anchor.
	Disparity [2]float64
}

// AddReferenceTerrainPoint registers a reference-terrain anchor.
func (n *Network) AddReferenceTerrainPoint(p ReferenceTerrainPoint) {
	n.refTerrain = append(n.refTerrain, p)
}

// ReferenceTerrainPoints returns all registered anchors in insertion order.
func (n *Network) ReferenceTerrainPoints() []ReferenceTerrainPoint {
	return n.refTerrain
}
