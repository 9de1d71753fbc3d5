package align

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitSimilarityRecoversKnownTransform(t *testing.T) {
	rot := mat.NewDense(3, 3, []float64{
		0, -1, 0,
		1, 0, 0,
		0, 0, 1,
	}) // 90 degree rotation about Z
	scale := 2.5
	trans := [3]float64{10, -5, 3}

	from := [][3]float64{{1, 0, 0}, {0, 1, 0}, {1, 1, 1}, {-1, 2, 0.5}}
	to := make([][3]float64, len(from))
	for i, p := range from {
		v := mat.NewVecDense(3, []float64{p[0], p[1], p[2]})
		var rv mat.VecDense
		rv.MulVec(rot, v)
		to[i] = [3]float64{
			scale*rv.AtVec(0) + trans[0],
			scale*rv.AtVec(1) + trans[1],
			scale*rv.AtVec(2) + trans[2],
		}
	}

	got, err := FitSimilarity(from, to)
	require.NoError(t, err)
	require.InDelta(t, scale, got.Scale, 1e-6)

	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			require.InDelta(t, rot.At(r, c), got.Rotation.At(r, c), 1e-6)
		}
	}
	for i := 0; i < 3; i++ {
		require.InDelta(t, trans[i], got.Translation.AtVec(i), 1e-6)
	}
}

func TestFitSimilarityRequiresThreePairs(t *testing.T) {
	_, err := FitSimilarity([][3]float64{{0, 0, 0}, {1, 1, 1}}, [][3]float64{{0, 0, 0}, {1, 1, 1}})
	require.Error(t, err)
}

func TestCheckGCPDistanceWarnsBeyond100km(t *testing.T) {
	_, warn := CheckGCPDistance([3]float64{200000, 0, 0}, [3]float64{0, 0, 0})
	require.True(t, warn)

	d, warn2 := CheckGCPDistance([3]float64{50, 0, 0}, [3]float64{0, 0, 0})
	require.False(t, warn2)
	require.InDelta(t, 50, d, 1e-9)
}

func TestFilterByPositionDistanceDropsFarPairs(t *testing.T) {
	from := [][3]float64{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}}
	to := [][3]float64{{0, 0, 0}, {1, 1, 1}, {100, 100, 100}}
	transformed := [][3]float64{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}}

	fFrom, fTo, insufficient := FilterByPositionDistance(from, to, transformed, 10)
	require.Len(t, fFrom, 2)
	require.Len(t, fTo, 2)
	require.True(t, insufficient) // 2 < MinPairs(3)
}

func TestFromCameraPositionsSkipsUnknownImages(t *testing.T) {
	hints := []CameraPositionHint{
		{ImageName: "a.jpg", ECEF: [3]float64{1, 2, 3}},
		{ImageName: "missing.jpg", ECEF: [3]float64{4, 5, 6}},
	}
	lookup := func(name string) ([3]float64, bool) {
		if name == "a.jpg" {
			return [3]float64{1, 2, 3}, true
		}
		return [3]float64{}, false
	}
	from, to := FromCameraPositions(hints, lookup)
	require.Len(t, from, 1)
	require.Len(t, to, 1)
}
