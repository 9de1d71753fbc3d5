package assembler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/config"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

func twoCameraNetwork() (*cnet.Network, map[int]camera.Model) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie, XYZ: [3]float64{0, 0, 0}})
	net.AddObservation(cnet.Observation{Cam: 0, Point: 1, Pixel: [2]float64{10, 10}})
	net.AddObservation(cnet.Observation{Cam: 1, Point: 1, Pixel: [2]float64{20, 20}})

	intr := camera.NewSharedIntrinsics(1000, 1000, 500, 500, [8]float64{})
	cams := map[int]camera.Model{
		0: camera.NewPinhole(0, [3]float64{0, 0, 100}, [3]float64{}, intr),
		1: camera.NewPinhole(1, [3]float64{10, 0, 100}, [3]float64{}, intr),
	}
	return net, cams
}

func TestAssembleProducesOneReprojectionBlockPerObservation(t *testing.T) {
	net, cams := twoCameraNetwork()
	cfg := config.Default()
	cfg.CameraWeight = 0

	sched := Assemble(net, cams, geodesy.WGS84, cfg)
	require.Len(t, sched.Blocks, 2)
	for _, b := range sched.Blocks {
		require.Equal(t, BlockReprojection, b.Kind)
		require.Equal(t, 2, b.Dim)
	}
}

func TestAssembleSkipsOutlierPoints(t *testing.T) {
	net, cams := twoCameraNetwork()
	net.Outliers().Insert(1, false)

	sched := Assemble(net, cams, geodesy.WGS84, config.Default())
	require.Empty(t, sched.Blocks)
}

func TestAssembleOverlapWeightingDividesSigma(t *testing.T) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie})
	net.AddObservation(cnet.Observation{Cam: 0, Point: 1, Pixel: [2]float64{1, 1}, Sigma: [2]float64{2, 2}})
	net.AddObservation(cnet.Observation{Cam: 1, Point: 1, Pixel: [2]float64{1, 1}, Sigma: [2]float64{2, 2}})
	net.AddObservation(cnet.Observation{Cam: 2, Point: 1, Pixel: [2]float64{1, 1}, Sigma: [2]float64{2, 2}})

	cfg := config.Default()
	cfg.OverlapExponent = 1
	sched := Assemble(net, map[int]camera.Model{}, geodesy.WGS84, cfg)
	require.Len(t, sched.Blocks, 3)
	for _, b := range sched.Blocks {
		// n=3 observers, (n-1)^1 = 2
		require.InDelta(t, 1.0, b.Sigma[0], 1e-9)
	}
}

func TestAssembleZeroOverlapExponentIsNoOp(t *testing.T) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie})
	net.AddObservation(cnet.Observation{Cam: 0, Point: 1, Pixel: [2]float64{1, 1}, Sigma: [2]float64{2, 2}})
	net.AddObservation(cnet.Observation{Cam: 1, Point: 1, Pixel: [2]float64{1, 1}, Sigma: [2]float64{2, 2}})

	cfg := config.Default()
	cfg.OverlapExponent = 0
	sched := Assemble(net, map[int]camera.Model{}, geodesy.WGS84, cfg)
	for _, b := range sched.Blocks {
		require.InDelta(t, 2.0, b.Sigma[0], 1e-9)
	}
}

func TestAssembleAddsGCPBlockWithTrivialLoss(t *testing.T) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 5, Kind: cnet.GCP, XYZ: [3]float64{1, 2, 3}, Anchor: [3]float64{1, 2, 3}, Sigma: [3]float64{1, 1, 1}})

	cfg := config.Default()
	sched := Assemble(net, map[int]camera.Model{}, geodesy.WGS84, cfg)
	require.Len(t, sched.Blocks, 1)
	require.Equal(t, BlockGCP, sched.Blocks[0].Kind)
	require.Equal(t, TrivialLoss, sched.Blocks[0].Loss)
	require.Equal(t, []float64{1, 2, 3}, sched.Blocks[0].Target)
}

func TestAssembleCameraPriorOnlyWhenWeighted(t *testing.T) {
	net, cams := twoCameraNetwork()

	cfg := config.Default()
	cfg.CameraWeight = 0
	sched := Assemble(net, cams, geodesy.WGS84, cfg)
	for _, b := range sched.Blocks {
		require.NotEqual(t, BlockCameraPrior, b.Kind)
	}

	cfg.CameraWeight = 0.1
	sched = Assemble(net, cams, geodesy.WGS84, cfg)
	var priors int
	for _, b := range sched.Blocks {
		if b.Kind == BlockCameraPrior {
			priors++
			for _, s := range b.Sigma {
				require.InDelta(t, 10.0, s, 1e-9)
			}
		}
	}
	require.Equal(t, 2, priors)
}

func TestAssembleRotationTranslationPriorDuplicatesCameraPrior(t *testing.T) {
	net, cams := twoCameraNetwork()

	cfg := config.Default()
	cfg.CameraWeight = 1
	cfg.RotationWeight = 2
	cfg.TranslationWeight = 4

	sched := Assemble(net, cams, geodesy.WGS84, cfg)
	var cameraPriors, rtPriors int
	for _, b := range sched.Blocks {
		switch b.Kind {
		case BlockCameraPrior:
			cameraPriors++
		case BlockRotationTranslationPrior:
			rtPriors++
			layout := cams[b.Camera].ExtrinsicsLayout()
			for i := layout.Pos[0]; i < layout.Pos[1]; i++ {
				require.InDelta(t, 0.25, b.Sigma[i], 1e-9)
			}
			for i := layout.Rot[0]; i < layout.Rot[1]; i++ {
				require.InDelta(t, 0.5, b.Sigma[i], 1e-9)
			}
		}
	}
	// Both blocks present for both cameras: the deliberately preserved
	// duplication of spec §9.
	require.Equal(t, 2, cameraPriors)
	require.Equal(t, 2, rtPriors)
}

func TestAssembleRotationTranslationPriorNullsUnwantedComponent(t *testing.T) {
	net, cams := twoCameraNetwork()
	cfg := config.Default()
	cfg.RotationWeight = 2
	cfg.TranslationWeight = 0

	sched := Assemble(net, cams, geodesy.WGS84, cfg)
	for _, b := range sched.Blocks {
		if b.Kind != BlockRotationTranslationPrior {
			continue
		}
		layout := cams[b.Camera].ExtrinsicsLayout()
		for i := layout.Pos[0]; i < layout.Pos[1]; i++ {
			require.True(t, math.IsInf(b.Sigma[i], 1))
		}
	}
}

func TestApplyHeightsFromDEMMarksPointsFixed(t *testing.T) {
	net := cnet.New()
	x, y, z := geodesy.WGS84.ToECEF(0, 0, 0)
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.Tie, XYZ: [3]float64{x, y, z}})

	sampler := fakeHeightSampler{height: 123}
	ApplyHeightsFromDEM(net, geodesy.WGS84, sampler)

	p, _ := net.Point(1)
	require.True(t, p.FixedByDEM)
	_, _, h := geodesy.WGS84.ToGeodetic(p.XYZ[0], p.XYZ[1], p.XYZ[2])
	require.InDelta(t, 123, h, 1e-6)
}

func TestApplyHeightsFromDEMSkipsGCPs(t *testing.T) {
	net := cnet.New()
	net.AddPoint(cnet.Point{ID: 1, Kind: cnet.GCP, XYZ: [3]float64{1, 2, 3}})

	ApplyHeightsFromDEM(net, geodesy.WGS84, fakeHeightSampler{height: 999})

	p, _ := net.Point(1)
	require.False(t, p.FixedByDEM)
}

type fakeHeightSampler struct{ height float64 }

func (f fakeHeightSampler) SampleHeight(lonRad, latRad float64) (float64, bool) {
	return f.height, true
}
