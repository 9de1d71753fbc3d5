package matchfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePair() Pair {
	return Pair{
		Left: []InterestPoint{
			{X: 1, Y: 2, Ix: 1, Iy: 2, Orientation: 0.1, Scale: 1.5, Interest: 0.9, Polarity: true, Octave: 2, Descriptor: []float64{0.1, 0.2, 0.3}},
			{X: 3, Y: 4, Ix: 3, Iy: 4, Orientation: 0.2, Scale: 1.2, Interest: 0.5, Polarity: false, Octave: 1, Descriptor: []float64{}},
		},
		Right: []InterestPoint{
			{X: 10, Y: 20, Ix: 10, Iy: 20, Orientation: 0.3, Scale: 1.1, Interest: 0.8, Polarity: false, Octave: 3, Descriptor: []float64{0.7}},
			{X: 30, Y: 40, Ix: 30, Iy: 40, Orientation: 0.4, Scale: 0.9, Interest: 0.4, Polarity: true, Octave: 0, Descriptor: []float64{}},
		},
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	pair := samplePair()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pair))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, pair, got)
}

func TestWriteFileThenReadFile(t *testing.T) {
	pair := samplePair()
	path := filepath.Join(t.TempDir(), "pair.match")

	require.NoError(t, WriteFile(path, pair))
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, pair, got)
}

func TestReadRejectsMismatchedListLengths(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeList(&buf, []InterestPoint{{Descriptor: []float64{}}}))
	require.NoError(t, writeList(&buf, []InterestPoint{}))

	_, err := Read(&buf)
	require.Error(t, err)
}

func TestFilterByIndexPreservesPairing(t *testing.T) {
	pair := samplePair()
	out := FilterByIndex(pair, []int{1})

	require.Len(t, out.Left, 1)
	require.Equal(t, pair.Left[1], out.Left[0])
	require.Equal(t, pair.Right[1], out.Right[0])
}
