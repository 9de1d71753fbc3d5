package align

import "math"

// CameraCenterLookup resolves an image name to the current camera's
// optical center in ECEF.
type CameraCenterLookup func(imageName string) (center [3]float64, ok bool)

// CameraPositionHint is one row of the camera-position CSV (spec §6).
type CameraPositionHint struct {
	ImageName string
	ECEF      [3]float64
}

// FromCameraPositions pairs each hint whose image matches a loaded
// camera with that camera's current optical center, implementing spec
// §4.4's first alignment mode.
func FromCameraPositions(hints []CameraPositionHint, lookup CameraCenterLookup) (from, to [][3]float64) {
	for _, h := range hints {
		center, ok := lookup(h.ImageName)
		if !ok {
			continue
		}
		from = append(from, center)
		to = append(to, h.ECEF)
	}
	return from, to
}

// FromGCPs pairs each already-triangulated GCP position with the GCP's
// surveyed position (spec §4.4's second alignment mode); IDs without a
// surveyed entry are skipped. It does no triangulation itself: the
// caller passes only GCPs that triangulated, and checks the >=3
// threshold.
func FromGCPs(triangulated map[int][3]float64, surveyed map[int][3]float64) (from, to [][3]float64) {
	for id, predicted := range triangulated {
		surveyedPos, ok := surveyed[id]
		if !ok {
			continue
		}
		from = append(from, predicted)
		to = append(to, surveyedPos)
	}
	return from, to
}

// FilterByPositionDistance implements the position-filter-dist option
// (SPEC_FULL.md §10): drop camera-position pairs whose residual after
// applying the fitted transform exceeds maxDist, returning the pruned
// pairs and whether pruning left fewer than MinPairs remaining.
func FilterByPositionDistance(from, to [][3]float64, transformed [][3]float64, maxDist float64) (filteredFrom, filteredTo [][3]float64, insufficient bool) {
	for i := range from {
		dx := transformed[i][0] - to[i][0]
		dy := transformed[i][1] - to[i][1]
		dz := transformed[i][2] - to[i][2]
		d := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if d <= maxDist {
			filteredFrom = append(filteredFrom, from[i])
			filteredTo = append(filteredTo, to[i])
		}
	}
	return filteredFrom, filteredTo, len(filteredFrom) < MinPairs
}
