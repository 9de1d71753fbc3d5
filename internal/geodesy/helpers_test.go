package geodesy

import "gonum.org/v1/gonum/mat"

func mustVec(x, y, z float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{x, y, z})
}
