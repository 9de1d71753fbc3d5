package outlier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeBracketClampsToErr1Err2(t *testing.T) {
	residuals := []float64{0.1, 0.1, 0.1, 0.1, 0.1}
	b := ComputeBracket(residuals, 75, 3, 2, 3)
	require.InDelta(t, 2.0, b.E, 1e-9) // quantile*factor << err1, clamps up

	residuals2 := []float64{100, 100, 100, 100, 100}
	b2 := ComputeBracket(residuals2, 75, 3, 2, 3)
	require.InDelta(t, 3.0, b2.E, 1e-9) // clamps down to err2
}

func TestComputeBracketEmptyReturnsErr1(t *testing.T) {
	b := ComputeBracket(nil, 75, 3, 2, 3)
	require.InDelta(t, 2.0, b.E, 1e-9)
}

func TestFilterByDisparityKeepsCentralBand(t *testing.T) {
	disp := [][2]float64{
		{0, 0}, {0.1, 0.1}, {-0.1, -0.1}, {50, 50}, // last is a gross outlier
	}
	keep := FilterByDisparity(disp, 90, 3)
	require.True(t, keep[0])
	require.True(t, keep[1])
	require.True(t, keep[2])
	require.False(t, keep[3])
}
