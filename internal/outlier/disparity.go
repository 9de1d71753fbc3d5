package outlier

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DisparityBand is the accept window for one axis of a match pair's
// (x, y) pixel disparity, per spec §4.2 step 4's disparity-based
// filter.
type DisparityBand struct {
	Lo, Hi float64
}

// axisBand resolves spec §4.2's "central (100-pct_d)% band ... expanded
// by factor_d" as: the band bounded by the pct_d/2 and 100-pct_d/2
// percentiles (e.g. pct_d=90 keeps the central 45th-55th percentile
// range), then widened around its midpoint by factor_d — the
// same widen-a-central-band-by-a-multiplier idiom as ComputeBracket's
// quantile*factor rule, generalized to two sides.
func axisBand(vals []float64, pctD, factorD float64) DisparityBand {
	if len(vals) == 0 {
		return DisparityBand{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	tail := pctD / 200
	lo := stat.Quantile(tail, stat.Empirical, sorted, nil)
	hi := stat.Quantile(1-tail, stat.Empirical, sorted, nil)

	mid := (lo + hi) / 2
	halfWidth := (hi - lo) / 2 * factorD
	return DisparityBand{Lo: mid - halfWidth, Hi: mid + halfWidth}
}

// FilterByDisparity reports, for every pair's (dx, dy) pixel disparity,
// whether it falls inside both axes' accept bands.
func FilterByDisparity(disparities [][2]float64, pctD, factorD float64) []bool {
	xs := make([]float64, len(disparities))
	ys := make([]float64, len(disparities))
	for i, d := range disparities {
		xs[i], ys[i] = d[0], d[1]
	}
	bx := axisBand(xs, pctD, factorD)
	by := axisBand(ys, pctD, factorD)

	keep := make([]bool, len(disparities))
	for i, d := range disparities {
		keep[i] = d[0] >= bx.Lo && d[0] <= bx.Hi && d[1] >= by.Lo && d[1] <= by.Hi
	}
	return keep
}
