// Package solver provides the default dense Levenberg-Marquardt
// implementation of the external-solver contract spec §1 leaves
// abstract ("any solver ... with analytical or numerical Jacobians
// satisfies this contract"): given an assembled residual-block schedule,
// iteratively adjust the free camera, point and intrinsics parameters
// to minimize the weighted sum of squared residuals.
package solver

import (
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/assembler"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/config"
)

// layout records where each free parameter block lives in the flat
// vector the solver optimizes over.
type layout struct {
	cameraOffset map[int]int
	cameraDim    map[int]int
	pointOffset  map[int]int

	intrinsicsOffset  int
	intrinsicsIndices []int

	total int
}

// Problem couples an assembled Schedule with the live camera/point state
// it reads and mutates. Unlike ceres-style problems, parameter blocks
// are owned by the caller's cnet.Network and camera.Model values; the
// solver only owns them transiently during Solve, per spec §5's
// concurrency note.
type Problem struct {
	Net        *cnet.Network
	Cameras    map[int]camera.Model
	Intrinsics *camera.SharedIntrinsics
	Schedule   assembler.Schedule
	Cfg        config.Config

	layout layout
}

// groupsFromNames converts the cfg.IntrinsicsToFloat string list into
// the camera package's typed group names, passing unrecognized names
// through unchanged (SharedIntrinsics.ActiveIndices later ignores them).
// An empty list means
// "no restriction": per spec §8, solve_intrinsics=true with an empty
// intrinsics_to_float floats all three groups.
func groupsFromNames(names []string) []camera.IntrinsicsGroup {
	if len(names) == 0 {
		return []camera.IntrinsicsGroup{
			camera.GroupFocalLength, camera.GroupOpticalCenter, camera.GroupDistortionParam,
		}
	}
	out := make([]camera.IntrinsicsGroup, len(names))
	for i, n := range names {
		out[i] = camera.IntrinsicsGroup(n)
	}
	return out
}

// NewProblem builds the flat-parameter layout: every non-fixed camera's
// extrinsics, every non-fixed point's xyz, and (if solve-intrinsics is
// set) the intrinsics multipliers belonging to the floated groups.
func NewProblem(net *cnet.Network, cams map[int]camera.Model, intr *camera.SharedIntrinsics, sched assembler.Schedule, cfg config.Config) *Problem {
	p := &Problem{Net: net, Cameras: cams, Intrinsics: intr, Schedule: sched, Cfg: cfg}

	l := layout{
		cameraOffset: map[int]int{},
		cameraDim:    map[int]int{},
		pointOffset:  map[int]int{},
	}
	total := 0
	for _, id := range net.Cameras() {
		m, ok := cams[id]
		if !ok || m.Fixed() || cfg.IsCameraFixed(id) {
			continue
		}
		dim := len(m.Extrinsics())
		l.cameraOffset[id] = total
		l.cameraDim[id] = dim
		total += dim
	}
	for _, pt := range net.Points() {
		if pt.FixedByDEM {
			continue
		}
		if pt.Kind == cnet.GCP && cfg.FixGCPXYZ {
			continue
		}
		l.pointOffset[pt.ID] = total
		total += 3
	}
	if intr != nil && cfg.SolveIntrinsics {
		l.intrinsicsIndices = intr.ActiveIndices(groupsFromNames(cfg.IntrinsicsToFloat))
		l.intrinsicsOffset = total
		total += len(l.intrinsicsIndices)
	}
	l.total = total
	p.layout = l
	return p
}

// Dim is the free-parameter count.
func (p *Problem) Dim() int { return p.layout.total }

// Pack reads the current state of every free parameter block into a
// flat vector.
func (p *Problem) Pack() []float64 {
	v := make([]float64, p.layout.total)
	for id, off := range p.layout.cameraOffset {
		copy(v[off:off+p.layout.cameraDim[id]], p.Cameras[id].Extrinsics())
	}
	for id, off := range p.layout.pointOffset {
		pt, _ := p.Net.Point(id)
		v[off], v[off+1], v[off+2] = pt.XYZ[0], pt.XYZ[1], pt.XYZ[2]
	}
	for k, idx := range p.layout.intrinsicsIndices {
		v[p.layout.intrinsicsOffset+k] = p.Intrinsics.Multipliers[idx]
	}
	return v
}

// Unpack writes a flat vector back into the camera, point and
// intrinsics state it describes.
func (p *Problem) Unpack(v []float64) {
	for id, off := range p.layout.cameraOffset {
		dim := p.layout.cameraDim[id]
		ext := make([]float64, dim)
		copy(ext, v[off:off+dim])
		p.Cameras[id].SetExtrinsics(ext)
	}
	for id, off := range p.layout.pointOffset {
		pt, ok := p.Net.Point(id)
		if !ok {
			continue
		}
		pt.XYZ = [3]float64{v[off], v[off+1], v[off+2]}
		p.Net.SetPoint(pt)
	}
	for k, idx := range p.layout.intrinsicsIndices {
		p.Intrinsics.Multipliers[idx] = v[p.layout.intrinsicsOffset+k]
	}
}

// RawResiduals evaluates every block in schedule order, dividing by
// Sigma but without any robust-loss reweighting; a block whose
// projection fails (spec: behind camera, distortion divergence)
// contributes zeros rather than aborting the whole evaluation. Blocks
// only read camera and point state, never mutate it, so per spec §5's
// resource model this fans out across cfg.NumThreads workers, each
// writing into its own slice slot.
func (p *Problem) RawResiduals() []float64 {
	blocks := p.Schedule.Blocks
	offsets := make([]int, len(blocks))
	off := 0
	for i, b := range blocks {
		offsets[i] = off
		off += b.Dim
	}
	out := make([]float64, off)

	threads := p.Cfg.NumThreads
	if threads <= 1 || len(blocks) < 2 {
		for i, b := range blocks {
			copy(out[offsets[i]:offsets[i]+b.Dim], p.evalBlock(b))
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(threads)
	for i, b := range blocks {
		i, b := i, b
		g.Go(func() error {
			copy(out[offsets[i]:offsets[i]+b.Dim], p.evalBlock(b))
			return nil
		})
	}
	g.Wait()
	return out
}

func (p *Problem) evalBlock(b assembler.Block) []float64 {
	zero := make([]float64, b.Dim)
	switch b.Kind {
	case assembler.BlockReprojection:
		pt, ok := p.Net.Point(b.Point)
		if !ok {
			return zero
		}
		cam, ok := p.Cameras[b.Camera]
		if !ok {
			return zero
		}
		proj, ok := cam.Project(vec3(pt.XYZ))
		if !ok {
			return zero
		}
		return []float64{
			(b.Target[0] - proj[0]) / b.Sigma[0],
			(b.Target[1] - proj[1]) / b.Sigma[1],
		}

	case assembler.BlockReferenceTerrain:
		rtps := p.Net.ReferenceTerrainPoints()
		if b.Point < 0 || b.Point >= len(rtps) {
			return zero
		}
		rtp := rtps[b.Point]
		left, ok1 := p.Cameras[b.Camera]
		right, ok2 := p.Cameras[b.Camera2]
		if !ok1 || !ok2 {
			return zero
		}
		leftProj, ok1 := left.Project(vec3(rtp.XYZ))
		rightProj, ok2 := right.Project(vec3(rtp.XYZ))
		if !ok1 || !ok2 {
			return zero
		}
		return []float64{
			(rightProj[0] - (leftProj[0] + b.Target[0])) / b.Sigma[0],
			(rightProj[1] - (leftProj[1] + b.Target[1])) / b.Sigma[1],
		}

	case assembler.BlockGCP:
		pt, ok := p.Net.Point(b.Point)
		if !ok {
			return zero
		}
		return []float64{
			(pt.XYZ[0] - b.Target[0]) / b.Sigma[0],
			(pt.XYZ[1] - b.Target[1]) / b.Sigma[1],
			(pt.XYZ[2] - b.Target[2]) / b.Sigma[2],
		}

	case assembler.BlockCameraPrior, assembler.BlockRotationTranslationPrior:
		cam, ok := p.Cameras[b.Camera]
		if !ok {
			return zero
		}
		ext := cam.Extrinsics()
		out := make([]float64, b.Dim)
		for i := 0; i < b.Dim; i++ {
			out[i] = (ext[i] - b.Target[i]) / b.Sigma[i]
		}
		return out

	default:
		return zero
	}
}

func vec3(xyz [3]float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{xyz[0], xyz[1], xyz[2]})
}

// IRLSWeights returns a per-residual weight (one entry per raw residual
// component, block weights broadcast across their dimension) computed
// from each block's configured loss evaluated at that block's current
// squared residual norm, per spec §4.1's robust-loss reweighting.
func (p *Problem) IRLSWeights(raw []float64) []float64 {
	w := make([]float64, len(raw))
	offset := 0
	for _, b := range p.Schedule.Blocks {
		sq := 0.0
		for i := 0; i < b.Dim; i++ {
			sq += raw[offset+i] * raw[offset+i]
		}
		bw := b.Loss.Weight(sq)
		for i := 0; i < b.Dim; i++ {
			w[offset+i] = bw
		}
		offset += b.Dim
	}
	return w
}

// WeightedCost returns sum(w_i * r_i^2), the quantity the solver
// minimizes.
func WeightedCost(r, w []float64) float64 {
	sum := 0.0
	for i := range r {
		sum += w[i] * r[i] * r[i]
	}
	return sum
}

const jacobianStep = 1e-6

// NumericJacobian computes d(RawResiduals)/d(params) by central
// differences around the current packed state.
func (p *Problem) NumericJacobian() *mat.Dense {
	x0 := p.Pack()
	n := len(x0)
	r0 := p.RawResiduals()
	m := len(r0)
	jac := mat.NewDense(m, n, nil)

	xp := make([]float64, n)
	xm := make([]float64, n)
	for j := 0; j < n; j++ {
		copy(xp, x0)
		copy(xm, x0)
		h := jacobianStep
		xp[j] += h
		xm[j] -= h

		p.Unpack(xp)
		rp := p.RawResiduals()
		p.Unpack(xm)
		rm := p.RawResiduals()

		for i := 0; i < m; i++ {
			jac.Set(i, j, (rp[i]-rm[i])/(2*h))
		}
	}
	p.Unpack(x0)
	return jac
}

// residualNorm mirrors the scale-invariant normalization of
// other_examples/EZHOWWW-Multilateration__solver.go: ||r|| / sqrt(len(r)).
func residualNorm(r []float64) float64 {
	sum := 0.0
	for _, v := range r {
		sum += v * v
	}
	if len(r) == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(r)))
}
