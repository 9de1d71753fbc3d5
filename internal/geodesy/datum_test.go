package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestECEFGeodeticRoundTrip(t *testing.T) {
	cases := []struct {
		lonDeg, latDeg, height float64
	}{
		{0, 0, 0},
		{45, 45, 1000},
		{-122.4, 37.8, 52},
		{179.9, -89.9, 8000},
	}

	for _, c := range cases {
		lon := Degrees2Rad(c.lonDeg)
		lat := Degrees2Rad(c.latDeg)
		x, y, z := WGS84.ToECEF(lon, lat, c.height)
		gotLon, gotLat, gotH := WGS84.ToGeodetic(x, y, z)

		require.InDelta(t, lon, gotLon, 1e-9)
		require.InDelta(t, lat, gotLat, 1e-9)
		require.InDelta(t, c.height, gotH, 1e-6)
	}
}

func TestRigidTransformIdentity(t *testing.T) {
	id := Identity()
	p := mustVec(1, 2, 3)
	got := id.Apply(p)
	require.InDelta(t, 1.0, got.AtVec(0), 1e-12)
	require.InDelta(t, 2.0, got.AtVec(1), 1e-12)
	require.InDelta(t, 3.0, got.AtVec(2), 1e-12)
}

func TestFlatteningSanity(t *testing.T) {
	require.Greater(t, WGS84.flattening(), 0.0)
	require.Less(t, math.Abs(WGS84.eccentricitySquared()), 1.0)
}
