package adjustment

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAxisAngleQuaternionRoundTrip(t *testing.T) {
	cases := [][3]float64{
		{0, 0, 0},
		{0.1, 0.2, 0.3},
		{math.Pi / 2, 0, 0},
		{0, 0, math.Pi - 0.01},
	}
	for _, aa := range cases {
		q := AxisAngleToQuaternion(aa)
		norm := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		require.InDelta(t, 1.0, norm, 1e-9)

		got := QuaternionToAxisAngle(q)
		require.InDelta(t, aa[0], got[0], 1e-6)
		require.InDelta(t, aa[1], got[1], 1e-6)
		require.InDelta(t, aa[2], got[2], 1e-6)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	a := FromExtrinsics([3]float64{1, 2, 3}, [3]float64{0.1, 0.2, 0.3})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, a))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.InDelta(t, a.Translation[0], got.Translation[0], 1e-9)
	require.InDelta(t, a.Quat[0], got.Quat[0], 1e-9)
}

func TestWriteFileThenReadFile(t *testing.T) {
	a := FromExtrinsics([3]float64{4, 5, 6}, [3]float64{0, 0, 0})
	path := filepath.Join(t.TempDir(), "cam0.adjust")

	require.NoError(t, WriteFile(path, a))
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, [4]float64{1, 0, 0, 0}, got.Quat)
	require.Equal(t, a.Translation, got.Translation)
}

func TestReadRejectsWrongFieldCounts(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("1 2 3\n4 5 6\n")))
	require.Error(t, err)
}
