package kml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubsampleStrideKeepsEverythingBelowTarget(t *testing.T) {
	require.Equal(t, 1, SubsampleStride(10))
	require.Equal(t, 1, SubsampleStride(20))
}

func TestSubsampleStrideThinsLargeSets(t *testing.T) {
	// target = 3000/30 = 100, stride = 3000/100 = 30.
	require.Equal(t, 30, SubsampleStride(3000))
}

func TestWriteProducesOnePlacemarkPerKeptPoint(t *testing.T) {
	pts := make([]Point, 25)
	for i := range pts {
		pts[i] = Point{ID: i, LonDeg: float64(i), LatDeg: float64(i) / 2, Height: 10}
	}
	path := filepath.Join(t.TempDir(), "out.kml")
	require.NoError(t, Write(path, "initial points", pts))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 25, strings.Count(string(data), "<Placemark>"))
	require.Contains(t, string(data), "<name>initial points</name>")
}
