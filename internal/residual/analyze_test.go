package residual

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/assembler"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

func testSchedule() (assembler.Schedule, []float64) {
	sched := assembler.Schedule{Blocks: []assembler.Block{
		{Kind: assembler.BlockReprojection, Camera: 0, Point: 1, Dim: 2},
		{Kind: assembler.BlockReprojection, Camera: 1, Point: 1, Dim: 2},
		{Kind: assembler.BlockGCP, Point: 5, Dim: 3},
		{Kind: assembler.BlockCameraPrior, Camera: 0, Dim: 6},
		{Kind: assembler.BlockReferenceTerrain, Camera: 0, Camera2: 1, Point: 0, Dim: 2},
	}}
	raw := []float64{
		1, -1, // cam0 obs point1: mean |1|+|1| / 2 = 1
		2, 0, // cam1 obs point1: mean = 1
		0.1, 0.2, 0.3, // gcp
		0.01, 0.02, 0.03, 0.04, 0.05, 0.06, // camera prior, pos then rot
		3, 4, // reference terrain: norm = 5
	}
	return sched, raw
}

func TestAnalyzeDecodesAllBlockKinds(t *testing.T) {
	sched, raw := testSchedule()
	r := Analyze(sched, raw, nil)

	require.InDelta(t, 1.0, r.PerPointMean[1], 1e-9)
	require.Equal(t, 2, r.PerPointObservations[1])

	require.InDelta(t, 1.0, r.PerCameraMean[0], 1e-9)
	require.InDelta(t, 1.0, r.PerCameraMean[1], 1e-9)

	require.Equal(t, [3]float64{0.1, 0.2, 0.3}, r.PerGCPError[5])

	h := r.CameraPrior[0]
	require.Equal(t, [3]float64{0.01, 0.02, 0.03}, h.Translation)
	require.Equal(t, [3]float64{0.04, 0.05, 0.06}, h.Rotation)

	require.Len(t, r.ReferenceTerrainNorm, 1)
	require.InDelta(t, 5.0, r.ReferenceTerrainNorm[0], 1e-9)
}

func TestWriteFilesProducesFiveFamilies(t *testing.T) {
	sched, raw := testSchedule()
	r := Analyze(sched, raw, nil)

	dir := t.TempDir()
	prefix := filepath.Join(dir, "run")
	require.NoError(t, r.WriteFiles(prefix, "initial_loss_function"))

	for _, suffix := range []string{
		"_averages.txt", "_raw_pixels.txt", "_raw_gcp.txt", "_raw_cameras.txt", "_reference_terrain.txt",
	} {
		_, err := os.Stat(prefix + "_initial_loss_function" + suffix)
		require.NoError(t, err)
	}
}

func TestWritePointmapCSVSkipsGCPsOutliersAndEmptyDatum(t *testing.T) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie, XYZ: [3]float64{6378137, 0, 0}})
	net.AddPoint(cnet.Point{ID: 2, Kind: cnet.Tie, XYZ: [3]float64{6378137, 0, 0}})
	net.Outliers().Insert(2, false)

	sched := assembler.Schedule{Blocks: []assembler.Block{
		{Kind: assembler.BlockReprojection, Camera: 0, Point: 1, Dim: 2},
		{Kind: assembler.BlockReprojection, Camera: 0, Point: 2, Dim: 2},
	}}
	raw := []float64{0.5, 0.5, 9, 9}
	r := Analyze(sched, raw, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "pointmap.csv")
	require.NoError(t, r.WritePointmapCSV(path, net, geodesy.WGS84))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "0.50000")
	require.NotContains(t, string(data), "9.00000")

	path2 := filepath.Join(dir, "pointmap_nodatum.csv")
	require.NoError(t, r.WritePointmapCSV(path2, net, geodesy.Datum{}))
	data2, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.Empty(t, data2)
}
