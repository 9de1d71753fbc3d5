package assembler

import (
	"math"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/config"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

// HeightSampler resolves a ground height at a longitude/latitude,
// implemented by internal/dem. Assemble accepts the interface rather
// than a DEM path so it never needs to know the raster's file format.
type HeightSampler interface {
	SampleHeight(lonRad, latRad float64) (height float64, ok bool)
}

func lossFromConfig(cfg config.Config) Loss {
	tau := cfg.RobustThreshold
	switch cfg.CostFunction {
	case config.LossHuber:
		return Loss{Kind: LossHuber, Tau: tau}
	case config.LossCauchy:
		return Loss{Kind: LossCauchy, Tau: tau}
	case config.LossSoftL1:
		return Loss{Kind: LossSoftL1, Tau: tau}
	default:
		return TrivialLoss
	}
}

// ApplyHeightsFromDEM implements spec §6's heights-from-dem option: for
// every non-GCP, non-outlier point, samples the DEM at the point's
// longitude/latitude and overwrites its height, then marks the point's
// parameter block constant so the solver never moves it. Runs before
// Assemble so the injected heights are visible to the reprojection
// blocks it builds.
func ApplyHeightsFromDEM(net *cnet.Network, datum geodesy.Datum, heights HeightSampler) {
	if heights == nil {
		return
	}
	for _, p := range net.Points() {
		if p.Kind == cnet.GCP || net.Outliers().Contains(p.ID) {
			continue
		}
		lon, lat, _ := datum.ToGeodetic(p.XYZ[0], p.XYZ[1], p.XYZ[2])
		h, ok := heights.SampleHeight(lon, lat)
		if !ok {
			continue
		}
		x, y, z := datum.ToECEF(lon, lat, h)
		p.XYZ = [3]float64{x, y, z}
		p.FixedByDEM = true
		net.SetPoint(p)
	}
}

// gcpSigmaECEF converts a GCP's configured sigma into ECEF meters. When
// UseLonLatHeightGCPErr is set the three axes are lat/lon/height sigmas
// re-expressed in the local east/north/up frame at the GCP's position;
// otherwise they are already ECEF meters.
func gcpSigmaECEF(p cnet.Point, datum geodesy.Datum, useLLH bool) [3]float64 {
	if !useLLH {
		return p.Sigma
	}
	lon, lat, _ := datum.ToGeodetic(p.Anchor[0], p.Anchor[1], p.Anchor[2])
	enu := geodesy.ENUBasis(lon, lat)
	// ENUBasis columns are east, north, up: east takes the lon sigma,
	// north the lat sigma, up the height sigma.
	enuSigma := [3]float64{p.Sigma[1], p.Sigma[0], p.Sigma[2]}
	var out [3]float64
	for r := 0; r < 3; r++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			v := enu.At(r, c) * enuSigma[c]
			sum += v * v
		}
		out[r] = math.Sqrt(sum)
	}
	return out
}

// overlapWeightedSigma divides a pixel sigma by (n-1)^p when the point
// is shared by more than one surviving camera, per spec §4.1.
func overlapWeightedSigma(sigma [2]float64, n int, p float64) [2]float64 {
	if p <= 0 || n <= 1 {
		return sigma
	}
	factor := math.Pow(float64(n-1), p)
	return [2]float64{sigma[0] / factor, sigma[1] / factor}
}

// Assemble walks net in its canonical order and builds the residual
// block schedule per spec §4.1: reprojection blocks for every surviving
// observation, reference-terrain blocks when configured, GCP blocks,
// and the (deliberately duplicatable) camera-prior / rotation-
// translation-prior blocks.
//
// ApplyHeightsFromDEM, if used, must run before Assemble so injected
// heights and FixedByDEM markers are visible to the reprojection pass.
func Assemble(net *cnet.Network, cams map[int]camera.Model, datum geodesy.Datum, cfg config.Config) Schedule {
	loss := lossFromConfig(cfg)
	var sched Schedule

	net.Walk(func(cam int, obs cnet.Observation) {
		if net.Outliers().Contains(obs.Point) {
			return
		}
		n := net.ObserverCount(obs.Point)
		sigma := overlapWeightedSigma(obs.Sigma, n, cfg.OverlapExponent)
		sched.Blocks = append(sched.Blocks, Block{
			Kind:   BlockReprojection,
			Camera: cam,
			Point:  obs.Point,
			Dim:    2,
			Loss:   loss,
			Target: []float64{obs.Pixel[0], obs.Pixel[1]},
			Sigma:  []float64{sigma[0], sigma[1]},
		})
	})

	if cfg.ReferenceTerrain != "" {
		for i, rtp := range net.ReferenceTerrainPoints() {
			sched.Blocks = append(sched.Blocks, Block{
				Kind:    BlockReferenceTerrain,
				Camera:  rtp.LeftCam,
				Camera2: rtp.RightCam,
				Point:   i,
				Dim:     2,
				Loss:    loss,
				Target:  []float64{rtp.Disparity[0], rtp.Disparity[1]},
				Sigma:   []float64{1, 1},
			})
		}
	}

	for _, p := range net.Points() {
		if p.Kind != cnet.GCP {
			continue
		}
		sigma := gcpSigmaECEF(p, datum, cfg.UseLonLatHeightGCPErr)
		sched.Blocks = append(sched.Blocks, Block{
			Kind:   BlockGCP,
			Point:  p.ID,
			Dim:    3,
			Loss:   TrivialLoss,
			Target: []float64{p.Anchor[0], p.Anchor[1], p.Anchor[2]},
			Sigma:  []float64{sigma[0], sigma[1], sigma[2]},
		})
	}

	if cfg.CameraWeight > 0 {
		for _, cam := range net.Cameras() {
			m, ok := cams[cam]
			if !ok {
				continue
			}
			sched.Blocks = append(sched.Blocks, Block{
				Kind:   BlockCameraPrior,
				Camera: cam,
				Dim:    camera.ExtrinsicsDim,
				Loss:   TrivialLoss,
				Target: append([]float64{}, m.Extrinsics()...),
				Sigma:  uniformSigma(camera.ExtrinsicsDim, 1/cfg.CameraWeight),
			})
		}
	}

	if cfg.RotationWeight > 0 || cfg.TranslationWeight > 0 {
		for _, cam := range net.Cameras() {
			m, ok := cams[cam]
			if !ok {
				continue
			}
			sigma := make([]float64, camera.ExtrinsicsDim)
			for i := range sigma {
				sigma[i] = math.Inf(1)
			}
			layout := m.ExtrinsicsLayout()
			if cfg.TranslationWeight > 0 {
				for i := layout.Pos[0]; i < layout.Pos[1]; i++ {
					sigma[i] = 1 / cfg.TranslationWeight
				}
			}
			if cfg.RotationWeight > 0 {
				for i := layout.Rot[0]; i < layout.Rot[1]; i++ {
					sigma[i] = 1 / cfg.RotationWeight
				}
			}
			sched.Blocks = append(sched.Blocks, Block{
				Kind:   BlockRotationTranslationPrior,
				Camera: cam,
				Dim:    camera.ExtrinsicsDim,
				Loss:   TrivialLoss,
				Target: append([]float64{}, m.Extrinsics()...),
				Sigma:  sigma,
			})
		}
	}

	return sched
}

func uniformSigma(dim int, v float64) []float64 {
	out := make([]float64, dim)
	for i := range out {
		out[i] = v
	}
	return out
}
