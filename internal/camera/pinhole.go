package camera

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const distortionValues = 8 // k1 k2 p1 p2 k3 k4 k5 k6, OpenCV rational model
const maxUndistortIter = 100

// IntrinsicsGroup names the three groups that can be independently frozen
// or floated (spec §4.1's "intrinsics parameterization").
type IntrinsicsGroup string

const (
	GroupFocalLength     IntrinsicsGroup = "focal_length"
	GroupOpticalCenter   IntrinsicsGroup = "optical_center"
	GroupDistortionParam IntrinsicsGroup = "distortion_params"
)

// SharedIntrinsics holds the focal length, optical center and distortion
// coefficients for all pinhole cameras in a problem (spec §9: "the source
// writes the first camera's intrinsics as 'the' intrinsics for pinhole
// models"), plus the per-parameter multiplier vector s used during
// optimization (spec §4.1's intrinsics scaling layer).
type SharedIntrinsics struct {
	FocalX, FocalY   float64
	CenterX, CenterY float64
	Distortion       [distortionValues]float64

	// Multipliers, one per logical intrinsic: [focal_x, focal_y, center_x,
	// center_y, distortion...]. Projection uses intrinsic_i * s_i.
	Multipliers []float64

	frozen map[IntrinsicsGroup]bool
}

func intrinsicsLen() int { return 4 + distortionValues }

// NewSharedIntrinsics builds an all-ones multiplier vector.
func NewSharedIntrinsics(fx, fy, cx, cy float64, dist [distortionValues]float64) *SharedIntrinsics {
	s := make([]float64, intrinsicsLen())
	for i := range s {
		s[i] = 1.0
	}
	return &SharedIntrinsics{
		FocalX: fx, FocalY: fy, CenterX: cx, CenterY: cy,
		Distortion:  dist,
		Multipliers: s,
		frozen:      map[IntrinsicsGroup]bool{},
	}
}

// Freeze marks a group's multiplier slice constant for the solver.
func (s *SharedIntrinsics) Freeze(group IntrinsicsGroup) { s.frozen[group] = true }

// Frozen reports whether group is held constant.
func (s *SharedIntrinsics) Frozen(group IntrinsicsGroup) bool { return s.frozen[group] }

func groupIndices(group IntrinsicsGroup) []int {
	switch group {
	case GroupFocalLength:
		return []int{0, 1}
	case GroupOpticalCenter:
		return []int{2, 3}
	case GroupDistortionParam:
		idx := make([]int, distortionValues)
		for i := range idx {
			idx[i] = 4 + i
		}
		return idx
	default:
		return nil
	}
}

// effective returns intrinsic_i * s_i for all logical intrinsics.
func (s *SharedIntrinsics) effective() (fx, fy, cx, cy float64, dist [distortionValues]float64) {
	m := s.Multipliers
	fx = s.FocalX * m[0]
	fy = s.FocalY * m[1]
	cx = s.CenterX * m[2]
	cy = s.CenterY * m[3]
	for i := 0; i < distortionValues; i++ {
		dist[i] = s.Distortion[i] * m[4+i]
	}
	return
}

// Absorb folds the current multipliers into the base intrinsics and
// resets the multiplier vector to all-ones (spec §4.1: "intrinsic_i <-
// intrinsic_i * s_i; s_i <- 1"), preserving identical projections.
func (s *SharedIntrinsics) Absorb() {
	fx, fy, cx, cy, dist := s.effective()
	s.FocalX, s.FocalY, s.CenterX, s.CenterY = fx, fy, cx, cy
	s.Distortion = dist
	for i := range s.Multipliers {
		s.Multipliers[i] = 1.0
	}
}

// ActiveIndices returns the Multipliers indices belonging to one of the
// named groups, excluding any group that has been Frozen. Unknown group
// names are ignored rather than rejected (groupIndices returns nil for
// them).
func (s *SharedIntrinsics) ActiveIndices(groups []IntrinsicsGroup) []int {
	var out []int
	for _, g := range groups {
		if s.Frozen(g) {
			continue
		}
		out = append(out, groupIndices(g)...)
	}
	return out
}

func (s *SharedIntrinsics) matrix() *mat.Dense {
	fx, fy, cx, cy, _ := s.effective()
	return mat.NewDense(3, 3, []float64{
		fx, 0, cx,
		0, fy, cy,
		0, 0, 1,
	})
}

func (s *SharedIntrinsics) distCoeffs() *mat.Dense {
	_, _, _, _, dist := s.effective()
	return mat.NewDense(1, distortionValues, dist[:])
}

// Pinhole is a camera whose extrinsics are position + axis-angle
// rotation and whose intrinsics are shared (by pointer) across every
// pinhole camera in a problem.
type Pinhole struct {
	id          int
	position    [3]float64
	axisAngle   [3]float64
	intrinsics  *SharedIntrinsics
	fixed       bool
}

// NewPinhole builds a camera at id sharing intrinsics.
func NewPinhole(id int, position, axisAngle [3]float64, intrinsics *SharedIntrinsics) *Pinhole {
	return &Pinhole{id: id, position: position, axisAngle: axisAngle, intrinsics: intrinsics}
}

func (p *Pinhole) ID() int { return p.id }

func (p *Pinhole) Extrinsics() []float64 {
	return []float64{p.position[0], p.position[1], p.position[2], p.axisAngle[0], p.axisAngle[1], p.axisAngle[2]}
}

func (p *Pinhole) SetExtrinsics(v []float64) {
	p.position = [3]float64{v[0], v[1], v[2]}
	p.axisAngle = [3]float64{v[3], v[4], v[5]}
}

func (p *Pinhole) HasMutableIntrinsics() bool { return true }
func (p *Pinhole) Fixed() bool                { return p.fixed }
func (p *Pinhole) SetFixed(f bool)            { p.fixed = f }

// ExtrinsicsLayout: Extrinsics() is [position(3), axis-angle(3)].
func (p *Pinhole) ExtrinsicsLayout() Layout {
	return Layout{Pos: [2]int{0, 3}, Rot: [2]int{3, 6}}
}
func (p *Pinhole) Intrinsics() *SharedIntrinsics { return p.intrinsics }

// rotationMatrix returns R for this camera's axis-angle rotation via the
// Rodrigues formula.
func (p *Pinhole) rotationMatrix() *mat.Dense {
	return axisAngleToMatrix(p.axisAngle)
}

// AxisAngleToRotationMatrix exposes the Rodrigues axis-angle -> rotation
// matrix conversion for callers outside this package, such as the
// initial-transform composition in pipeline.
func AxisAngleToRotationMatrix(aa [3]float64) *mat.Dense { return axisAngleToMatrix(aa) }

// RotationMatrixToAxisAngle inverts AxisAngleToRotationMatrix for an
// orthonormal rotation matrix.
func RotationMatrixToAxisAngle(r *mat.Dense) [3]float64 {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := (trace - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-9 {
		return [3]float64{0, 0, 0}
	}
	sinTheta := math.Sin(theta)
	kx := (r.At(2, 1) - r.At(1, 2)) / (2 * sinTheta)
	ky := (r.At(0, 2) - r.At(2, 0)) / (2 * sinTheta)
	kz := (r.At(1, 0) - r.At(0, 1)) / (2 * sinTheta)
	return [3]float64{kx * theta, ky * theta, kz * theta}
}

func axisAngleToMatrix(aa [3]float64) *mat.Dense {
	theta := math.Sqrt(aa[0]*aa[0] + aa[1]*aa[1] + aa[2]*aa[2])
	r := mat.NewDense(3, 3, nil)
	if theta < 1e-12 {
		r.Set(0, 0, 1)
		r.Set(1, 1, 1)
		r.Set(2, 2, 1)
		return r
	}
	kx, ky, kz := aa[0]/theta, aa[1]/theta, aa[2]/theta
	K := mat.NewDense(3, 3, []float64{
		0, -kz, ky,
		kz, 0, -kx,
		-ky, kx, 0,
	})
	var K2 mat.Dense
	K2.Mul(K, K)

	var term1, term2 mat.Dense
	term1.Scale(math.Sin(theta), K)
	term2.Scale(1-math.Cos(theta), &K2)

	r.Set(0, 0, 1)
	r.Set(1, 1, 1)
	r.Set(2, 2, 1)
	r.Add(r, &term1)
	r.Add(r, &term2)
	return r
}

// extrinsicsMatrix returns the 3x4 [R|t] world-to-camera matrix, where t
// = -R*C and C is the camera position (matching the teacher's
// GetCameraWorldsCoordinates convention inverted for projection).
func (p *Pinhole) extrinsicsMatrix() *mat.Dense {
	r := p.rotationMatrix()
	c := mat.NewVecDense(3, []float64{p.position[0], p.position[1], p.position[2]})
	var t mat.VecDense
	t.MulVec(r, c)
	t.ScaleVec(-1, &t)

	m := mat.NewDense(3, 4, nil)
	m.Slice(0, 3, 0, 3).(*mat.Dense).Copy(r)
	for row := 0; row < 3; row++ {
		m.Set(row, 3, t.AtVec(row))
	}
	return m
}

// ProjectionMatrix returns the 3x4 camera matrix K[R|t], satisfying
// cnet.ProjectionMatrixSource so this camera can be used directly as a
// triangulation input.
func (p *Pinhole) ProjectionMatrix() *mat.Dense {
	var m mat.Dense
	m.Mul(p.intrinsics.matrix(), p.extrinsicsMatrix())
	return &m
}

// Center returns the camera's position in world coordinates.
func (p *Pinhole) Center() [3]float64 { return p.position }

// Project implements pinhole projection with rational lens distortion,
// following ypollet-Sphaeroptica-Desktop's ProjectPoints/distort.
func (p *Pinhole) Project(xyz mat.Vector) (pixel [2]float64, ok bool) {
	intrinsics := p.intrinsics.matrix()
	ext := p.extrinsicsMatrix()

	var projMat mat.Dense
	projMat.Mul(intrinsics, ext)

	homog := mat.NewVecDense(4, []float64{xyz.AtVec(0), xyz.AtVec(1), xyz.AtVec(2), 1})
	var cam mat.VecDense
	cam.MulVec(&projMat, homog)

	if cam.AtVec(2) <= 0 {
		return pixel, false // behind the camera
	}

	x := cam.AtVec(0) / cam.AtVec(2)
	y := cam.AtVec(1) / cam.AtVec(2)

	distorted := distort(mat.NewVecDense(2, []float64{x, y}), intrinsics, p.intrinsics.distCoeffs())
	if math.IsNaN(distorted.AtVec(0)) || math.IsNaN(distorted.AtVec(1)) {
		return pixel, false
	}
	return [2]float64{distorted.AtVec(0), distorted.AtVec(1)}, true
}

func normalizePixel(point mat.Vector, intrinsics mat.Matrix) (float64, float64) {
	x, y := point.AtVec(0), point.AtVec(1)
	fx, fy := intrinsics.At(0, 0), intrinsics.At(1, 1)
	cx, cy := intrinsics.At(0, 2), intrinsics.At(1, 2)
	return (x - cx) / fx, (y - cy) / fy
}

func denormalizePixel(x, y float64, intrinsics mat.Matrix) mat.Vector {
	fx, fy := intrinsics.At(0, 0), intrinsics.At(1, 1)
	cx, cy := intrinsics.At(0, 2), intrinsics.At(1, 2)
	return mat.NewVecDense(2, []float64{x*fx + cx, y*fy + cy})
}

// distort applies the non-linear rational distortion model (Amy Tabb's
// formulation, as in the teacher's distort()).
func distort(point mat.Vector, intrinsics mat.Matrix, distCoeffs mat.Matrix) mat.Vector {
	var c [distortionValues]float64
	for i := 0; i < distortionValues; i++ {
		c[i] = distCoeffs.At(0, i)
	}
	k1, k2, p1, p2, k3, k4, k5, k6 := c[0], c[1], c[2], c[3], c[4], c[5], c[6], c[7]

	xu, yu := normalizePixel(point, intrinsics)
	r2 := xu*xu + yu*yu

	num := 1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2
	den := 1 + k4*r2 + k5*r2*r2 + k6*r2*r2*r2

	x := xu*num/den + 2*p1*xu*yu + p2*(r2+2*xu*xu)
	y := yu*num/den + 2*p2*xu*yu + p1*(r2+2*yu*yu)

	return denormalizePixel(x, y, intrinsics)
}

// UndistortIter inverts distort() by fixed-point iteration, following the
// teacher's UndistortIter.
func UndistortIter(point mat.Vector, intrinsics mat.Matrix, distCoeffs mat.Matrix) mat.Vector {
	var c [distortionValues]float64
	for i := 0; i < distortionValues; i++ {
		c[i] = distCoeffs.At(0, i)
	}
	k1, k2, p1, p2, k3, k4, k5, k6 := c[0], c[1], c[2], c[3], c[4], c[5], c[6], c[7]

	x, y := normalizePixel(point, intrinsics)
	x0, y0 := x, y

	for i := 0; i < maxUndistortIter; i++ {
		r2 := x*x + y*y
		kInv := (1 + k4*r2 + k5*r2*r2 + k6*r2*r2*r2) / (1 + k1*r2 + k2*r2*r2 + k3*r2*r2*r2)
		dx := 2*p1*x*y + p2*(r2+2*x*x)
		dy := p1*(r2+2*y*y) + 2*p2*x*y
		xPrev, yPrev := x, y
		x = (x0 - dx) * kInv
		y = (y0 - dy) * kInv
		if (xPrev-x)*(xPrev-x)+(yPrev-y)*(yPrev-y) == 0 {
			break
		}
	}
	return denormalizePixel(x, y, intrinsics)
}

// Jacobian computes d(pixel)/d(extrinsics) and d(pixel)/d(xyz) by forward
// differences. Distortion makes the analytic form unwieldy; the core's
// contract (spec §1) only requires consuming project()/jacobians, not a
// particular differentiation strategy.
func (p *Pinhole) Jacobian(xyz mat.Vector) (*mat.Dense, *mat.Dense, bool) {
	base, ok := p.Project(xyz)
	if !ok {
		return nil, nil, false
	}

	const h = 1e-6

	dExt := mat.NewDense(2, ExtrinsicsDim, nil)
	extrinsics := p.Extrinsics()
	for i := 0; i < ExtrinsicsDim; i++ {
		perturbed := append([]float64{}, extrinsics...)
		perturbed[i] += h
		saved := p.Extrinsics()
		p.SetExtrinsics(perturbed)
		px, pok := p.Project(xyz)
		p.SetExtrinsics(saved)
		if !pok {
			return nil, nil, false
		}
		dExt.Set(0, i, (px[0]-base[0])/h)
		dExt.Set(1, i, (px[1]-base[1])/h)
	}

	dPt := mat.NewDense(2, 3, nil)
	for i := 0; i < 3; i++ {
		v := mat.NewVecDense(3, []float64{xyz.AtVec(0), xyz.AtVec(1), xyz.AtVec(2)})
		v.SetVec(i, v.AtVec(i)+h)
		px, pok := p.Project(v)
		if !pok {
			return nil, nil, false
		}
		dPt.Set(0, i, (px[0]-base[0])/h)
		dPt.Set(1, i, (px[1]-base[1])/h)
	}

	return dExt, dPt, true
}
