package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/align"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/config"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

func writeTranslationOnlyTransform(t *testing.T, translation [3]float64) string {
	transform := geodesy.Identity()
	transform.Translation = mat.NewVecDense(3, []float64{translation[0], translation[1], translation[2]})

	path := filepath.Join(t.TempDir(), "initial.xform")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, geodesy.WriteInitialTransform(f, transform))
	return path
}

func vec3(xyz [3]float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{xyz[0], xyz[1], xyz[2]})
}

func buildTwoCameraScene() (*cnet.Network, map[int]camera.Model) {
	intr := camera.NewSharedIntrinsics(1000, 1000, 500, 500, [8]float64{})
	cam0 := camera.NewPinhole(0, [3]float64{0, 0, 0}, [3]float64{}, intr)
	cam0.SetFixed(true)
	cam1 := camera.NewPinhole(1, [3]float64{10, 0, 0}, [3]float64{}, intr)
	cam1.SetFixed(true)
	cams := map[int]camera.Model{0: cam0, 1: cam1}

	net := cnet.New()
	truth := [3]float64{1, 0.5, 40}
	px0, _ := cam0.Project(vec3(truth))
	px1, _ := cam1.Project(vec3(truth))
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie, XYZ: [3]float64{1.2, 0.4, 41}})
	net.AddObservation(cnet.Observation{Cam: 0, Point: 1, Pixel: px0})
	net.AddObservation(cnet.Observation{Cam: 1, Point: 1, Pixel: px1})

	return net, cams
}

func TestExecuteWritesAllOutputFiles(t *testing.T) {
	net, cams := buildTwoCameraScene()
	cfg := config.Default()
	cfg.NumPasses = 1
	cfg.MaxIterations = 50

	dir := t.TempDir()
	run := &Run{
		Net: net, Cams: cams, Datum: geodesy.WGS84, Cfg: cfg,
		OutputPrefix: filepath.Join(dir, "run"),
	}

	result, err := run.Execute(nil)
	require.NoError(t, err)
	require.Len(t, result.Passes, 1)

	for _, name := range []string{
		"run-initial_points.kml", "run-final_points.kml", "run-pointmap.csv",
		"run-0.adjust", "run-1.adjust",
		"run_initial_no_loss_function_averages.txt", "run_final_loss_function_raw_cameras.txt",
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}
}

func TestExecuteAbsorbsIntrinsicsAfterFinalPass(t *testing.T) {
	intr := camera.NewSharedIntrinsics(1000, 1000, 500, 500, [8]float64{})
	cam0 := camera.NewPinhole(0, [3]float64{0, 0, 0}, [3]float64{}, intr)
	cam0.SetFixed(true)
	cam1 := camera.NewPinhole(1, [3]float64{10, 0, 0}, [3]float64{}, intr)
	cam1.SetFixed(true)
	cams := map[int]camera.Model{0: cam0, 1: cam1}

	net := cnet.New()
	truth := [3]float64{1, 0.5, 40}
	px0, _ := cam0.Project(vec3(truth))
	px1, _ := cam1.Project(vec3(truth))
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie, XYZ: truth})
	net.AddObservation(cnet.Observation{Cam: 0, Point: 1, Pixel: px0})
	net.AddObservation(cnet.Observation{Cam: 1, Point: 1, Pixel: px1})

	cfg := config.Default()
	cfg.NumPasses = 1
	cfg.MaxIterations = 50
	cfg.SolveIntrinsics = true

	dir := t.TempDir()
	run := &Run{
		Net: net, Cams: cams, Intrinsics: intr, Datum: geodesy.WGS84, Cfg: cfg,
		OutputPrefix: filepath.Join(dir, "run"),
	}

	_, err := run.Execute(nil)
	require.NoError(t, err)

	for i, m := range intr.Multipliers {
		require.InDelta(t, 1.0, m, 1e-9, "multiplier %d not absorbed back to 1", i)
	}
}

func TestApplyInitialTransformTranslatesCamerasAndPoints(t *testing.T) {
	net, cams := buildTwoCameraScene()
	path := writeTranslationOnlyTransform(t, [3]float64{5, 0, 0})

	ptBefore, _ := net.Point(1)
	require.NoError(t, applyInitialTransform(net, cams, path))

	ext0 := cams[0].Extrinsics()
	require.InDelta(t, 5, ext0[0], 1e-9)
	require.InDelta(t, 0, ext0[1], 1e-9)
	require.InDelta(t, 0, ext0[2], 1e-9)

	ptAfter, _ := net.Point(1)
	require.InDelta(t, ptBefore.XYZ[0]+5, ptAfter.XYZ[0], 1e-9)
	require.InDelta(t, ptBefore.XYZ[1], ptAfter.XYZ[1], 1e-9)
	require.InDelta(t, ptBefore.XYZ[2], ptAfter.XYZ[2], 1e-9)
}

func TestApplyInitialTransformNoOpWhenPathEmpty(t *testing.T) {
	net, cams := buildTwoCameraScene()
	require.NoError(t, applyInitialTransform(net, cams, ""))
	require.Equal(t, [3]float64{0, 0, 0}, cams[0].(*camera.Pinhole).Center())
}

func threePinholeCameras() map[int]camera.Model {
	intr := camera.NewSharedIntrinsics(1000, 1000, 500, 500, [8]float64{})
	return map[int]camera.Model{
		0: camera.NewPinhole(0, [3]float64{0, 0, 0}, [3]float64{}, intr),
		1: camera.NewPinhole(1, [3]float64{10, 0, 0}, [3]float64{}, intr),
		2: camera.NewPinhole(2, [3]float64{0, 10, 0}, [3]float64{}, intr),
	}
}

func TestRunPreSolveAlignerFitsFromCameraPositionHints(t *testing.T) {
	cams := threePinholeCameras()
	net := cnet.New()

	shift := [3]float64{5, 0, 0}
	hints := make([]align.CameraPositionHint, 0, 3)
	names := map[int]string{}
	for id, m := range cams {
		c := m.(*camera.Pinhole).Center()
		names[id] = "img" + string(rune('0'+id))
		hints = append(hints, align.CameraPositionHint{
			ImageName: names[id],
			ECEF:      [3]float64{c[0] + shift[0], c[1] + shift[1], c[2] + shift[2]},
		})
	}

	origins := map[int][3]float64{}
	for id, m := range cams {
		origins[id] = m.(*camera.Pinhole).Center()
	}

	run := &Run{Net: net, Cams: cams, CameraPositionHints: hints, CameraImageNames: names}
	require.NoError(t, run.runPreSolveAligner())

	for id, m := range cams {
		c := m.(*camera.Pinhole).Center()
		want := origins[id]
		require.InDelta(t, want[0]+shift[0], c[0], 1e-6)
		require.InDelta(t, want[1]+shift[1], c[1], 1e-6)
		require.InDelta(t, want[2]+shift[2], c[2], 1e-6)
	}
}

func TestRunPreSolveAlignerNoOpWithoutPinholeOrHints(t *testing.T) {
	net, cams := buildTwoCameraScene()
	run := &Run{Net: net, Cams: cams}
	require.NoError(t, run.runPreSolveAligner())
	require.Equal(t, [3]float64{0, 0, 0}, cams[0].(*camera.Pinhole).Center())
}

func TestRunPreSolveAlignerFitsFromGCPs(t *testing.T) {
	intr := camera.NewSharedIntrinsics(1000, 1000, 500, 500, [8]float64{})
	cam0 := camera.NewPinhole(0, [3]float64{0, 0, 0}, [3]float64{}, intr)
	cam1 := camera.NewPinhole(1, [3]float64{10, 0, 0}, [3]float64{}, intr)
	cams := map[int]camera.Model{0: cam0, 1: cam1}

	net := cnet.New()
	shift := [3]float64{8, 0, 0}
	for i, truth := range [][3]float64{{1, 0.5, 40}, {-1, 1, 60}, {2, -1, 80}} {
		id := i + 1
		px0, _ := cam0.Project(vec3(truth))
		px1, _ := cam1.Project(vec3(truth))
		net.AddPoint(cnet.Point{
			ID: id, Kind: cnet.GCP,
			Anchor: [3]float64{truth[0] + shift[0], truth[1] + shift[1], truth[2] + shift[2]},
		})
		net.AddObservation(cnet.Observation{Cam: 0, Point: id, Pixel: px0})
		net.AddObservation(cnet.Observation{Cam: 1, Point: id, Pixel: px1})
	}

	run := &Run{Net: net, Cams: cams}
	require.NoError(t, run.runPreSolveAligner())

	c0 := cam0.Center()
	require.InDelta(t, shift[0], c0[0], 1e-3)
	require.InDelta(t, shift[1], c0[1], 1e-3)
	require.InDelta(t, shift[2], c0[2], 1e-3)
}

func TestMeanGCPAndTiePointPositionsFalseWithoutGCPs(t *testing.T) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie, XYZ: [3]float64{1, 2, 3}})

	_, _, ok := meanGCPAndTiePointPositions(net)
	require.False(t, ok)
}

func TestMeanGCPAndTiePointPositionsUsesNetworkStateNotAlignmentInputs(t *testing.T) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.GCP, Anchor: [3]float64{10, 0, 0}})
	net.AddPoint(cnet.Point{ID: 2, Kind: cnet.GCP, Anchor: [3]float64{20, 0, 0}})
	net.AddPoint(cnet.Point{ID: 3, Kind: cnet.Tie, XYZ: [3]float64{0, 4, 0}})
	net.AddPoint(cnet.Point{ID: 4, Kind: cnet.Tie, XYZ: [3]float64{0, 6, 0}})

	gcpMean, tieMean, ok := meanGCPAndTiePointPositions(net)
	require.True(t, ok)
	require.Equal(t, [3]float64{15, 0, 0}, gcpMean)
	require.Equal(t, [3]float64{0, 5, 0}, tieMean)
}

func TestDatumFromConfigDefaultsToWGS84(t *testing.T) {
	cfg := config.Default()
	d := DatumFromConfig(cfg)
	require.Equal(t, "WGS84", d.Name)
}

func TestDatumFromConfigHonorsSemiAxesOverride(t *testing.T) {
	cfg := config.Default()
	cfg.SemiMajorAxis = 1
	cfg.SemiMinorAxis = 1
	d := DatumFromConfig(cfg)
	require.Equal(t, 1.0, d.SemiMajorAxis)
}
