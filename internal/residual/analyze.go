// Package residual implements the analyzer of spec §4.3: it walks the
// same schedule the solver optimized against and decodes its flat
// residual vector into per-camera, per-point, per-GCP, per-prior and
// per-reference-terrain aggregates, then writes the five text-file
// families and the pointmap CSV.
package residual

import (
	"math"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/assembler"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
)

// CameraPriorHalves splits a camera-prior-style block's residual into
// its translation and rotation halves, ordered by the camera's own
// ExtrinsicsLayout rather than assumed positions.
type CameraPriorHalves struct {
	Translation [3]float64
	Rotation    [3]float64
}

// Report is the decoded form of one raw residual vector.
type Report struct {
	PerCameraMean        map[int]float64
	PerCameraCount       map[int]int
	PerPointMean         map[int]float64
	PerPointObservations map[int]int
	PerGCPError          map[int][3]float64
	CameraPrior          map[int]CameraPriorHalves
	ReferenceTerrainNorm []float64
}

func newReport() Report {
	return Report{
		PerCameraMean:        map[int]float64{},
		PerCameraCount:       map[int]int{},
		PerPointMean:         map[int]float64{},
		PerPointObservations: map[int]int{},
		PerGCPError:          map[int][3]float64{},
		CameraPrior:          map[int]CameraPriorHalves{},
	}
}

// Analyze decodes raw (the solver's flat residual vector, in exactly
// the order sched.Blocks describes) into a Report. cameraLayout
// resolves a camera's position/rotation split within its extrinsics
// block for BlockCameraPrior/BlockRotationTranslationPrior blocks;
// pass nil to assume the Pinhole convention [pos(3), rot(3)].
func Analyze(sched assembler.Schedule, raw []float64, cameraLayout func(cam int) camera.Layout) Report {
	r := newReport()
	offset := 0

	pointSums := map[int]float64{}
	pointCounts := map[int]int{}
	cameraSums := map[int]float64{}
	cameraCounts := map[int]int{}

	for _, b := range sched.Blocks {
		vals := raw[offset : offset+b.Dim]
		offset += b.Dim

		switch b.Kind {
		case assembler.BlockReprojection:
			absMean := (math.Abs(vals[0]) + math.Abs(vals[1])) / 2
			pointSums[b.Point] += absMean
			pointCounts[b.Point]++
			cameraSums[b.Camera] += absMean
			cameraCounts[b.Camera]++

		case assembler.BlockReferenceTerrain:
			norm := math.Hypot(vals[0], vals[1])
			r.ReferenceTerrainNorm = append(r.ReferenceTerrainNorm, norm)

		case assembler.BlockGCP:
			r.PerGCPError[b.Point] = [3]float64{vals[0], vals[1], vals[2]}

		case assembler.BlockCameraPrior, assembler.BlockRotationTranslationPrior:
			layout := camera.Layout{Pos: [2]int{0, 3}, Rot: [2]int{3, 6}}
			if cameraLayout != nil {
				layout = cameraLayout(b.Camera)
			}
			posR, rotR := layout.Pos, layout.Rot
			h := r.CameraPrior[b.Camera]
			for i := posR[0]; i < posR[1] && i < len(vals); i++ {
				h.Translation[i-posR[0]] = vals[i]
			}
			for i := rotR[0]; i < rotR[1] && i < len(vals); i++ {
				h.Rotation[i-rotR[0]] = vals[i]
			}
			r.CameraPrior[b.Camera] = h
		}
	}

	for id, sum := range pointSums {
		r.PerPointMean[id] = sum / float64(pointCounts[id])
		r.PerPointObservations[id] = pointCounts[id]
	}
	for id, sum := range cameraSums {
		r.PerCameraMean[id] = sum / float64(cameraCounts[id])
		r.PerCameraCount[id] = cameraCounts[id]
	}
	return r
}

// pointKind is used by pointmap.go to skip GCPs, which have no
// reprojection-derived mean residual.
func pointKind(net *cnet.Network, id int) (cnet.Kind, bool) {
	p, ok := net.Point(id)
	if !ok {
		return 0, false
	}
	return p.Kind, true
}
