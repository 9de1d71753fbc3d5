// Package outlier implements the P-pass outlier-filtering driver of
// spec §4.2: pristine-parameter snapshot/restore between passes, a
// Tukey-style bracket over per-point mean residuals, and the
// disparity-band filter applied to match-file pairs.
package outlier

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Bracket is the empirical outlier bracket of spec §4.2: points with a
// mean residual greater than E are flagged outliers. B is carried for
// symmetry with the spec's "[b, e]" naming but the classification rule
// only consults E.
type Bracket struct {
	B, E float64
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ComputeBracket implements spec §4.2 steps 1-2: q is the pct-quantile
// of residuals, e = clip(q*factor, err1, err2). residuals is copied and
// sorted internally; the caller's slice is left untouched.
func ComputeBracket(residuals []float64, pct, factor, err1, err2 float64) Bracket {
	if len(residuals) == 0 {
		return Bracket{B: err1, E: err1}
	}
	sorted := append([]float64(nil), residuals...)
	sort.Float64s(sorted)
	q := stat.Quantile(pct/100, stat.Empirical, sorted, nil)
	e := clip(q*factor, err1, err2)
	return Bracket{B: err1, E: e}
}
