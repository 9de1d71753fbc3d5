package camera

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Generic is the "adjustable" camera model: collinearity-equation
// projection from omega/phi/kappa rotation angles and a camera position,
// no exposed intrinsics (HasMutableIntrinsics reports false, so the
// assembler's intrinsics block is empty-length for this model, per spec
// §9's unified-design note). Analytic jacobian grounded directly on
// hhyanyanGitHub-uf-oritention-go/bba/bba_engine/solver.go's CalcPartials.
type Generic struct {
	id                int
	omega, phi, kappa float64
	xl, yl, zl        float64
	focal             float64
	fixed             bool
}

// NewGeneric builds a generic adjustable camera with a fixed focal length
// (not part of the solved parameter vector for this model).
func NewGeneric(id int, omega, phi, kappa, xl, yl, zl, focal float64) *Generic {
	return &Generic{id: id, omega: omega, phi: phi, kappa: kappa, xl: xl, yl: yl, zl: zl, focal: focal}
}

func (g *Generic) ID() int { return g.id }

func (g *Generic) Extrinsics() []float64 {
	return []float64{g.omega, g.phi, g.kappa, g.xl, g.yl, g.zl}
}

func (g *Generic) SetExtrinsics(v []float64) {
	g.omega, g.phi, g.kappa = v[0], v[1], v[2]
	g.xl, g.yl, g.zl = v[3], v[4], v[5]
}

func (g *Generic) HasMutableIntrinsics() bool { return false }
func (g *Generic) Fixed() bool                { return g.fixed }
func (g *Generic) SetFixed(f bool)            { g.fixed = f }

// ExtrinsicsLayout: Extrinsics() is [omega/phi/kappa(3), xl/yl/zl(3)],
// rotation first.
func (g *Generic) ExtrinsicsLayout() Layout {
	return Layout{Pos: [2]int{3, 6}, Rot: [2]int{0, 3}}
}

// rotationMatrix follows UpdateRotation's omega/phi/kappa convention.
func (g *Generic) rotationMatrix() (m [3][3]float64) {
	so, co := math.Sin(g.omega), math.Cos(g.omega)
	sp, cp := math.Sin(g.phi), math.Cos(g.phi)
	sk, ck := math.Sin(g.kappa), math.Cos(g.kappa)

	m[0][0], m[0][1], m[0][2] = cp*ck, so*sp*ck+co*sk, -co*sp*ck+so*sk
	m[1][0], m[1][1], m[1][2] = -cp*sk, -so*sp*sk+co*ck, co*sp*sk+so*ck
	m[2][0], m[2][1], m[2][2] = sp, -so*cp, co*cp
	return m
}

// ProjectionMatrix returns the 3x4 camera matrix for the collinearity
// equations' homogeneous form, satisfying cnet.ProjectionMatrixSource.
func (g *Generic) ProjectionMatrix() *mat.Dense {
	m := g.rotationMatrix()
	f := g.focal
	kr := mat.NewDense(3, 3, []float64{
		-f * m[0][0], -f * m[0][1], -f * m[0][2],
		-f * m[1][0], -f * m[1][1], -f * m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
	c := mat.NewVecDense(3, []float64{g.xl, g.yl, g.zl})
	var t mat.VecDense
	t.MulVec(kr, c)
	t.ScaleVec(-1, &t)

	p := mat.NewDense(3, 4, nil)
	p.Slice(0, 3, 0, 3).(*mat.Dense).Copy(kr)
	for row := 0; row < 3; row++ {
		p.Set(row, 3, t.AtVec(row))
	}
	return p
}

// Center returns the camera's position in world coordinates.
func (g *Generic) Center() [3]float64 { return [3]float64{g.xl, g.yl, g.zl} }

// Project implements the collinearity equations of CalcPartials (the
// forward-projection half, error terms omitted).
func (g *Generic) Project(xyz mat.Vector) (pixel [2]float64, ok bool) {
	dx, dy, dz := xyz.AtVec(0)-g.xl, xyz.AtVec(1)-g.yl, xyz.AtVec(2)-g.zl
	m := g.rotationMatrix()

	r := m[0][0]*dx + m[0][1]*dy + m[0][2]*dz
	s := m[1][0]*dx + m[1][1]*dy + m[1][2]*dz
	q := m[2][0]*dx + m[2][1]*dy + m[2][2]*dz

	if q == 0 {
		return pixel, false
	}
	return [2]float64{-g.focal * r / q, -g.focal * s / q}, true
}

// Jacobian reuses CalcPartials' analytic derivatives directly, returning
// the camera-parameter and point halves without touching the residual
// (epsX/epsY) terms it also computes.
func (g *Generic) Jacobian(xyz mat.Vector) (*mat.Dense, *mat.Dense, bool) {
	dx, dy, dz := xyz.AtVec(0)-g.xl, xyz.AtVec(1)-g.yl, xyz.AtVec(2)-g.zl
	m := g.rotationMatrix()

	r := m[0][0]*dx + m[0][1]*dy + m[0][2]*dz
	s := m[1][0]*dx + m[1][1]*dy + m[1][2]*dz
	q := m[2][0]*dx + m[2][1]*dy + m[2][2]*dz
	if q == 0 {
		return nil, nil, false
	}

	f := g.focal
	fq2 := f / (q * q)
	so, co := math.Sin(g.omega), math.Cos(g.omega)
	sp, cp := math.Sin(g.phi), math.Cos(g.phi)
	sk, ck := math.Sin(g.kappa), math.Cos(g.kappa)

	var ac [2][6]float64
	ac[0][0] = fq2 * (r*(-m[2][2]*dy+m[2][1]*dz) - q*(-m[0][2]*dy+m[0][1]*dz))
	ac[0][1] = fq2 * (r*(cp*dx+so*sp*dy-co*sp*dz) - q*(-sp*ck*dx+so*cp*ck*dy-co*cp*ck*dz))
	ac[0][2] = -f * s / q
	ac[0][3] = -f * (r*m[2][0] - q*m[0][0]) / (q * q)
	ac[0][4] = -f * (r*m[2][1] - q*m[0][1]) / (q * q)
	ac[0][5] = -f * (r*m[2][2] - q*m[0][2]) / (q * q)

	ac[1][0] = fq2 * (s*(-m[2][2]*dy+m[2][1]*dz) - q*(-m[1][2]*dy+m[1][1]*dz))
	ac[1][1] = fq2 * (s*(cp*dx+so*sp*dy-co*sp*dz) - q*(sp*sk*dx-so*cp*sk*dy+co*cp*sk*dz))
	ac[1][2] = f * r / q
	ac[1][3] = -f * (s*m[2][0] - q*m[1][0]) / (q * q)
	ac[1][4] = -f * (s*m[2][1] - q*m[1][1]) / (q * q)
	ac[1][5] = -f * (s*m[2][2] - q*m[1][2]) / (q * q)

	dExt := mat.NewDense(2, 6, nil)
	for c := 0; c < 6; c++ {
		dExt.Set(0, c, ac[0][c])
		dExt.Set(1, c, ac[1][c])
	}

	// d(pixel)/d(point) is the negative of the last 3 columns of dExt,
	// because xl/yl/zl enter as -(xyz - camera).
	dPt := mat.NewDense(2, 3, nil)
	for c := 0; c < 3; c++ {
		dPt.Set(0, c, -ac[0][3+c])
		dPt.Set(1, c, -ac[1][3+c])
	}

	return dExt, dPt, true
}
