// Package align implements the pre-solve aligner of spec §4.4: a
// closed-form similarity transform fit from paired "from"/"to" ECEF
// point sets, applied to cameras and tie points before the first
// optimization pass.
package align

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

// MinPairs is the minimum number of paired points required by both
// alignment modes in spec §4.4.
const MinPairs = 3

// FitSimilarity computes (scale, rotation, translation) mapping `from`
// points onto `to` points in the least-squares sense, via the
// closed-form Umeyama method. Grounded on the teacher's SphereFit SVD
// idiom (ypollet-Sphaeroptica-Desktop/photogrammetry/photogrammetry/reconstruction.go),
// generalized from a 4-parameter sphere fit to a 7-parameter similarity
// fit.
func FitSimilarity(from, to [][3]float64) (geodesy.RigidTransform, error) {
	if len(from) < MinPairs || len(from) != len(to) {
		return geodesy.RigidTransform{}, baerrors.Config(nil, "need at least 3 matched point pairs to fit a similarity transform")
	}
	n := len(from)

	meanFrom := centroid(from)
	meanTo := centroid(to)

	fromC := mat.NewDense(n, 3, nil)
	toC := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			fromC.Set(i, c, from[i][c]-meanFrom[c])
			toC.Set(i, c, to[i][c]-meanTo[c])
		}
	}

	var cov mat.Dense
	cov.Mul(toC.T(), fromC)
	cov.Scale(1/float64(n), &cov)

	var svd mat.SVD
	if !svd.Factorize(&cov, mat.SVDFull) {
		return geodesy.RigidTransform{}, baerrors.Config(nil, "similarity transform SVD failed to factorize")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	d := mat.NewDense(3, 3, nil)
	d.Set(0, 0, 1)
	d.Set(1, 1, 1)
	det := mat.Det(&u) * mat.Det(&v)
	if det < 0 {
		d.Set(2, 2, -1)
	} else {
		d.Set(2, 2, 1)
	}

	var ud mat.Dense
	ud.Mul(&u, d)
	var r mat.Dense
	r.Mul(&ud, v.T())

	varFrom := variance(fromC)
	trace := s[0]*d.At(0, 0) + s[1]*d.At(1, 1) + s[2]*d.At(2, 2)
	scale := trace / varFrom

	meanFromVec := mat.NewVecDense(3, []float64{meanFrom[0], meanFrom[1], meanFrom[2]})
	var rotMeanFrom mat.VecDense
	rotMeanFrom.MulVec(&r, meanFromVec)

	t := mat.NewVecDense(3, []float64{
		meanTo[0] - scale*rotMeanFrom.AtVec(0),
		meanTo[1] - scale*rotMeanFrom.AtVec(1),
		meanTo[2] - scale*rotMeanFrom.AtVec(2),
	})

	return geodesy.RigidTransform{Scale: scale, Rotation: &r, Translation: t}, nil
}

func centroid(pts [][3]float64) [3]float64 {
	var c [3]float64
	for _, p := range pts {
		c[0] += p[0]
		c[1] += p[1]
		c[2] += p[2]
	}
	n := float64(len(pts))
	return [3]float64{c[0] / n, c[1] / n, c[2] / n}
}

func variance(centered *mat.Dense) float64 {
	r, c := centered.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := centered.At(i, j)
			sum += v * v
		}
	}
	return sum / float64(r)
}

// CheckGCPDistance implements spec §4.4's last sentence: after applying
// the fitted transform, warn if the mean GCP position is farther than
// 100km from the mean triangulated tie-point position (a classic
// lat/lon-swap diagnostic).
func CheckGCPDistance(gcpMean, tiePointMean [3]float64) (distanceMeters float64, warn bool) {
	dx := gcpMean[0] - tiePointMean[0]
	dy := gcpMean[1] - tiePointMean[1]
	dz := gcpMean[2] - tiePointMean[2]
	d := math.Sqrt(dx*dx + dy*dy + dz*dz)
	return d, d > 100000
}
