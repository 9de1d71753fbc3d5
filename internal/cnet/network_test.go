package cnet

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalIterationOrder(t *testing.T) {
	n := New()
	n.AddPoint(Point{ID: 0, Kind: Tie})
	n.AddObservation(Observation{Cam: 1, Point: 0, Pixel: [2]float64{1, 1}})
	n.AddObservation(Observation{Cam: 0, Point: 0, Pixel: [2]float64{2, 2}})

	var seenCams []int
	n.Walk(func(cam int, obs Observation) {
		seenCams = append(seenCams, cam)
	})
	// Cameras walk in ascending index order (0..N) even though 1 was
	// observed before 0.
	require.Equal(t, []int{0, 1}, seenCams)
}

func TestObservationUniquePerCameraPoint(t *testing.T) {
	n := New()
	n.AddPoint(Point{ID: 0})
	ok1 := n.AddObservation(Observation{Cam: 0, Point: 0, Pixel: [2]float64{1, 1}})
	ok2 := n.AddObservation(Observation{Cam: 0, Point: 0, Pixel: [2]float64{9, 9}})
	require.True(t, ok1)
	require.False(t, ok2)
	require.Len(t, n.ObservationsOf(0), 1)
}

func TestNaNSigmaDefaultedToOne(t *testing.T) {
	n := New()
	n.AddPoint(Point{ID: 0})
	n.AddObservation(Observation{Cam: 0, Point: 0, Pixel: [2]float64{1, 1}, Sigma: [2]float64{math.NaN(), math.NaN()}})
	obs := n.ObservationsOf(0)[0]
	require.Equal(t, [2]float64{1, 1}, obs.Sigma)
}

func TestPointRequiresTwoObservers(t *testing.T) {
	n := New()
	n.AddPoint(Point{ID: 0, Kind: Tie})
	n.AddObservation(Observation{Cam: 0, Point: 0})
	errs := n.Validate()
	require.Len(t, errs, 1)
}

func TestGCPNeverRequiresObservers(t *testing.T) {
	n := New()
	n.AddPoint(Point{ID: 0, Kind: GCP})
	require.Empty(t, n.Validate())
}

func TestOutlierSetGCPPanics(t *testing.T) {
	var o OutlierSet = NewOutlierSet()
	require.Panics(t, func() { o.Insert(5, true) })
}

func TestOutlierSetMonotone(t *testing.T) {
	o := NewOutlierSet()
	o.Insert(1, false)
	require.True(t, o.Contains(1))
	require.False(t, o.Contains(2))
	require.Equal(t, 1, o.Len())
}

func TestOverlapFilterRestrictsPairs(t *testing.T) {
	f := NewOverlapFilter([][2]int{{0, 1}})
	require.True(t, f.AllowsPair(0, 1))
	require.True(t, f.AllowsPair(1, 0))
	require.False(t, f.AllowsPair(0, 2))
}

func TestOverlapFilterNilAllowsEverything(t *testing.T) {
	var f *OverlapFilter
	require.True(t, f.AllowsPair(3, 4))
}

func TestWriteCSV(t *testing.T) {
	n := New()
	n.AddPoint(Point{ID: 0, Kind: Tie, XYZ: [3]float64{1, 2, 3}})
	n.AddObservation(Observation{Cam: 0, Point: 0})
	n.AddObservation(Observation{Cam: 1, Point: 0})

	path := t.TempDir() + "/cnet.csv"
	require.NoError(t, n.WriteCSV(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "0,TIE,1,2,3,2")
}
