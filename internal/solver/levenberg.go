package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// Result summarizes one Solve() call, mirroring the s0/iteration
// reporting of hhyanyanGitHub-uf-oritention-go's RunBundleAdjustment.
type Result struct {
	Iterations   int
	Converged    bool
	InitialCost  float64
	FinalCost    float64
	ResidualNorm float64
}

// Solve runs damped Gauss-Newton (Levenberg-Marquardt) over p until the
// relative cost change drops below cfg.ParameterTolerance, the
// iteration cap is hit, or the normal equations become singular at
// every damping level tried. The best parameter vector seen is always
// written back before returning, so a caller that hits the iteration
// cap still gets its "best available" estimate rather than whatever the
// last, possibly-rejected, step produced. MaxIterations <= 0 runs zero
// iterations: every parameter is left exactly at its packed starting
// value, so the final residuals equal the initial ones.
func (p *Problem) Solve() (Result, error) {
	x := p.Pack()
	n := len(x)
	if n == 0 {
		return Result{}, baerrors.Config(nil, "no free parameters to solve for")
	}

	raw := p.RawResiduals()
	w := p.IRLSWeights(raw)
	cost := WeightedCost(raw, w)
	initialCost := cost

	best := append([]float64{}, x...)
	bestCost := cost

	lambda := 1e-3
	maxIter := p.Cfg.MaxIterations

	converged := false
	iter := 0
	for ; iter < maxIter; iter++ {
		jac := p.NumericJacobian()

		var jtw mat.Dense
		jtw.Mul(jac.T(), diag(w))
		var jtwj mat.Dense
		jtwj.Mul(&jtw, jac)

		rVec := mat.NewVecDense(len(raw), raw)
		var jtwr mat.VecDense
		jtwr.MulVec(&jtw, rVec)

		dx, ok := dampedSolve(&jtwj, &jtwr, lambda)
		if !ok {
			lambda *= 10
			continue
		}

		candidate := make([]float64, n)
		for i := range candidate {
			candidate[i] = x[i] - dx.AtVec(i)
		}

		p.Unpack(candidate)
		newRaw := p.RawResiduals()
		newW := p.IRLSWeights(newRaw)
		newCost := WeightedCost(newRaw, newW)

		if newCost < cost {
			x = candidate
			raw, w = newRaw, newW
			lambda = math.Max(lambda/10, 1e-12)

			rel := (cost - newCost) / math.Max(cost, 1e-30)
			cost = newCost
			if newCost < bestCost {
				bestCost = newCost
				copy(best, x)
			}
			if rel < p.Cfg.ParameterTolerance {
				converged = true
				iter++
				break
			}
		} else {
			lambda *= 10
		}
	}

	p.Unpack(best)
	finalRaw := p.RawResiduals()

	return Result{
		Iterations:   iter,
		Converged:    converged,
		InitialCost:  initialCost,
		FinalCost:    bestCost,
		ResidualNorm: residualNorm(finalRaw),
	}, nil
}

// diag builds a diagonal matrix from a weight vector.
func diag(w []float64) *mat.Dense {
	n := len(w)
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, w[i])
	}
	return d
}

// dampedSolve solves (A + lambda*diag(A))dx = b, falling back to a
// plain diagonal damping term when A's own diagonal entry is zero,
// and reports false if the damped system is still singular.
func dampedSolve(a *mat.Dense, b *mat.VecDense, lambda float64) (*mat.VecDense, bool) {
	n, _ := a.Dims()
	damped := mat.NewDense(n, n, nil)
	damped.Copy(a)
	for i := 0; i < n; i++ {
		d := damped.At(i, i)
		if d == 0 {
			d = 1
		}
		damped.Set(i, i, d+lambda*d)
	}

	var x mat.VecDense
	if err := x.SolveVec(damped, b); err != nil {
		return nil, false
	}
	return &x, true
}
