package cnet

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ProjectionMatrixSource supplies the 3x4 camera projection matrix and
// camera center needed for triangulation without depending on the
// camera package (kept decoupled so cnet has no import cycle back to
// camera).
type ProjectionMatrixSource interface {
	ProjectionMatrix() *mat.Dense // 3x4
	Center() [3]float64
}

// Triangulate generalizes the teacher's two-view TriangulatePoint
// (ypollet-Sphaeroptica-Desktop/photogrammetry/photogrammetry/reconstruction.go)
// to N views via a stacked direct-linear-transform SVD, gated by the
// minimum triangulation angle of spec §4.6: the point is accepted only
// if some pair of observing cameras subtends an angle, at the
// triangulated point, of at least minAngleDeg.
func Triangulate(obsPixels map[int][2]float64, models map[int]ProjectionMatrixSource, minAngleDeg float64) ([3]float64, bool) {
	if len(obsPixels) < 2 {
		return [3]float64{}, false
	}

	rows := make([]float64, 0, len(obsPixels)*2*4)
	centers := make([][3]float64, 0, len(obsPixels))
	n := 0
	for cam, pix := range obsPixels {
		model, ok := models[cam]
		if !ok {
			continue
		}
		p := model.ProjectionMatrix()
		row1 := make([]float64, 4)
		row2 := make([]float64, 4)
		for c := 0; c < 4; c++ {
			row1[c] = pix[1]*p.At(2, c) - p.At(1, c)
			row2[c] = p.At(0, c) - pix[0]*p.At(2, c)
		}
		rows = append(rows, row1...)
		rows = append(rows, row2...)
		centers = append(centers, model.Center())
		n += 2
	}
	if n < 4 {
		return [3]float64{}, false
	}

	A := mat.NewDense(n, 4, rows)
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDThin) {
		return [3]float64{}, false
	}
	var v mat.Dense
	svd.VTo(&v)
	last := v.ColView(v.RawMatrix().Cols - 1)

	w := last.AtVec(3)
	if w == 0 {
		return [3]float64{}, false
	}
	xyz := [3]float64{last.AtVec(0) / w, last.AtVec(1) / w, last.AtVec(2) / w}

	if minAngleDeg > 0 && !anyPairAtLeast(xyz, centers, minAngleDeg) {
		return [3]float64{}, false
	}
	return xyz, true
}

func anyPairAtLeast(xyz [3]float64, centers [][3]float64, minAngleDeg float64) bool {
	for i := 0; i < len(centers); i++ {
		for j := i + 1; j < len(centers); j++ {
			if rayAngleAtPointDeg(xyz, centers[i], centers[j]) >= minAngleDeg {
				return true
			}
		}
	}
	return false
}

// rayAngleAtPointDeg computes the angle, in degrees, between the two
// rays from centers a and b to point xyz.
func rayAngleAtPointDeg(xyz, a, b [3]float64) float64 {
	va := sub(xyz, a)
	vb := sub(xyz, b)
	na, nb := norm(va), norm(vb)
	if na == 0 || nb == 0 {
		return 0
	}
	cosT := dot(va, vb) / (na * nb)
	if cosT > 1 {
		cosT = 1
	}
	if cosT < -1 {
		cosT = -1
	}
	return math.Acos(cosT) * 180 / math.Pi
}

func sub(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func dot(a, b [3]float64) float64    { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func norm(a [3]float64) float64      { return math.Sqrt(dot(a, a)) }
