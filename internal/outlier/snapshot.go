package outlier

import (
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
)

// Snapshot captures every camera's extrinsics, every point's XYZ, and
// the shared intrinsics' base values and multipliers, so a pass can be
// restarted from scratch per spec §4.2 ("restores all parameters from
// the snapshot ... each pass optimizes from scratch, but with a growing
// outlier set").
type Snapshot struct {
	cameraExt  map[int][]float64
	points     map[int]cnet.Point
	intrinsics *intrinsicsSnapshot
}

type intrinsicsSnapshot struct {
	focalX, focalY   float64
	centerX, centerY float64
	distortion       [8]float64
	multipliers      []float64
}

// Take captures the current state of cams, net's points, and intr (nil
// if the problem has no shared pinhole intrinsics).
func Take(net *cnet.Network, cams map[int]camera.Model, intr *camera.SharedIntrinsics) Snapshot {
	s := Snapshot{
		cameraExt: map[int][]float64{},
		points:    map[int]cnet.Point{},
	}
	for id, m := range cams {
		s.cameraExt[id] = append([]float64(nil), m.Extrinsics()...)
	}
	for _, p := range net.Points() {
		s.points[p.ID] = p
	}
	if intr != nil {
		s.intrinsics = &intrinsicsSnapshot{
			focalX: intr.FocalX, focalY: intr.FocalY,
			centerX: intr.CenterX, centerY: intr.CenterY,
			distortion:  intr.Distortion,
			multipliers: append([]float64(nil), intr.Multipliers...),
		}
	}
	return s
}

// Restore writes the captured state back into cams, net and intr.
// Outlier membership is untouched: the growing outlier set survives
// across restores, only the parameter values are rewound.
func (s Snapshot) Restore(net *cnet.Network, cams map[int]camera.Model, intr *camera.SharedIntrinsics) {
	for id, ext := range s.cameraExt {
		if m, ok := cams[id]; ok {
			m.SetExtrinsics(append([]float64(nil), ext...))
		}
	}
	for _, p := range s.points {
		net.SetPoint(p)
	}
	if intr != nil && s.intrinsics != nil {
		intr.FocalX, intr.FocalY = s.intrinsics.focalX, s.intrinsics.focalY
		intr.CenterX, intr.CenterY = s.intrinsics.centerX, s.intrinsics.centerY
		intr.Distortion = s.intrinsics.distortion
		copy(intr.Multipliers, s.intrinsics.multipliers)
	}
}
