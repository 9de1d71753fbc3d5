package cnet

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type fakeCam struct {
	p      *mat.Dense
	center [3]float64
}

func (f fakeCam) ProjectionMatrix() *mat.Dense { return f.p }
func (f fakeCam) Center() [3]float64           { return f.center }

func identityProjection(center [3]float64) *mat.Dense {
	// P = K [R | -R*C], with K = I and R = I for this synthetic case.
	return mat.NewDense(3, 4, []float64{
		1, 0, 0, -center[0],
		0, 1, 0, -center[1],
		0, 0, 1, -center[2],
	})
}

func TestTriangulateTwoViewExact(t *testing.T) {
	trueXYZ := [3]float64{0.5, 0.5, 10}
	camA := fakeCam{p: identityProjection([3]float64{0, 0, 0}), center: [3]float64{0, 0, 0}}
	camB := fakeCam{p: identityProjection([3]float64{1, 0, 0}), center: [3]float64{1, 0, 0}}

	pixA := [2]float64{trueXYZ[0] / trueXYZ[2], trueXYZ[1] / trueXYZ[2]}
	pixB := [2]float64{(trueXYZ[0] - 1) / trueXYZ[2], trueXYZ[1] / trueXYZ[2]}

	models := map[int]ProjectionMatrixSource{0: camA, 1: camB}
	obs := map[int][2]float64{0: pixA, 1: pixB}

	xyz, ok := Triangulate(obs, models, 0)
	require.True(t, ok)
	require.InDelta(t, trueXYZ[0], xyz[0], 1e-6)
	require.InDelta(t, trueXYZ[1], xyz[1], 1e-6)
	require.InDelta(t, trueXYZ[2], xyz[2], 1e-6)
}

func TestTriangulateRejectsSingleView(t *testing.T) {
	camA := fakeCam{p: identityProjection([3]float64{0, 0, 0}), center: [3]float64{0, 0, 0}}
	models := map[int]ProjectionMatrixSource{0: camA}
	obs := map[int][2]float64{0: {0, 0}}
	_, ok := Triangulate(obs, models, 0)
	require.False(t, ok)
}

func TestTriangulateRejectsNarrowAngle(t *testing.T) {
	trueXYZ := [3]float64{0.5, 0.5, 10000}
	camA := fakeCam{p: identityProjection([3]float64{0, 0, 0}), center: [3]float64{0, 0, 0}}
	camB := fakeCam{p: identityProjection([3]float64{0.001, 0, 0}), center: [3]float64{0.001, 0, 0}}

	pixA := [2]float64{trueXYZ[0] / trueXYZ[2], trueXYZ[1] / trueXYZ[2]}
	pixB := [2]float64{(trueXYZ[0] - 0.001) / trueXYZ[2], trueXYZ[1] / trueXYZ[2]}

	models := map[int]ProjectionMatrixSource{0: camA, 1: camB}
	obs := map[int][2]float64{0: pixA, 1: pixB}

	_, ok := Triangulate(obs, models, 5)
	require.False(t, ok)
}
