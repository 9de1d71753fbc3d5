package outlier

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/assembler"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/config"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/solver"
)

// MatchRewriter rewrites every match file on disk to keep only the
// surviving point IDs, per spec §4.2 step 4. Left nil when a run has no
// match files to rewrite (e.g. synthetic/test networks).
type MatchRewriter interface {
	Rewrite(survivors map[int]bool) error
}

// PassReport summarizes one outer pass of the driver.
type PassReport struct {
	Pass          int
	SolveResult   solver.Result
	NewOutliers   int
	SurvivingPts  int
	TerminatedEarly bool
}

// Driver runs spec §4.2's P-pass outlier loop around a single-pass
// solve.
type Driver struct {
	Net        *cnet.Network
	Cams       map[int]camera.Model
	Intrinsics *camera.SharedIntrinsics
	Datum      geodesy.Datum
	Cfg        config.Config
	Rewriter   MatchRewriter
}

// perPointMeanResiduals computes r̄_p = mean(|Δu| + |Δv|) / 2 across a
// point's observing cameras, for every non-GCP, non-outlier point, using
// raw (no robust loss) reprojection error.
func perPointMeanResiduals(net *cnet.Network, cams map[int]camera.Model) map[int]float64 {
	sums := map[int]float64{}
	counts := map[int]int{}

	net.Walk(func(cam int, obs cnet.Observation) {
		pt, ok := net.Point(obs.Point)
		if !ok || pt.Kind == cnet.GCP || net.Outliers().Contains(obs.Point) {
			return
		}
		m, ok := cams[cam]
		if !ok {
			return
		}
		proj, ok := m.Project(vec3(pt.XYZ))
		if !ok {
			return
		}
		du := math.Abs(obs.Pixel[0] - proj[0])
		dv := math.Abs(obs.Pixel[1] - proj[1])
		sums[obs.Point] += (du + dv) / 2
		counts[obs.Point]++
	})

	out := make(map[int]float64, len(sums))
	for id, sum := range sums {
		out[id] = sum / float64(counts[id])
	}
	return out
}

func vec3(xyz [3]float64) *mat.VecDense {
	return mat.NewVecDense(3, []float64{xyz[0], xyz[1], xyz[2]})
}

// Run executes cfg.NumPasses passes, restoring the pristine snapshot
// before every pass after the first, marking new outliers and rewriting
// match files between passes (never after the final one), and
// terminating early if a pass flags zero new outliers.
func (d *Driver) Run() ([]PassReport, error) {
	snap := Take(d.Net, d.Cams, d.Intrinsics)
	var reports []PassReport

	numPasses := d.Cfg.NumPasses
	if numPasses < 1 {
		numPasses = 1
	}

	for pass := 0; pass < numPasses; pass++ {
		if pass > 0 {
			snap.Restore(d.Net, d.Cams, d.Intrinsics)
		}

		sched := assembler.Assemble(d.Net, d.Cams, d.Datum, d.Cfg)
		prob := solver.NewProblem(d.Net, d.Cams, d.Intrinsics, sched, d.Cfg)
		result, err := prob.Solve()
		if err != nil {
			return reports, err
		}

		report := PassReport{Pass: pass, SolveResult: result}

		if pass < numPasses-1 {
			means := perPointMeanResiduals(d.Net, d.Cams)
			vals := make([]float64, 0, len(means))
			for _, v := range means {
				vals = append(vals, v)
			}
			b := ComputeBracket(vals, d.Cfg.RemoveOutliers.Pct, d.Cfg.RemoveOutliers.Factor,
				d.Cfg.RemoveOutliers.Err1, d.Cfg.RemoveOutliers.Err2)

			newOutliers := 0
			for id, r := range means {
				if r > b.E && !d.Net.Outliers().Contains(id) {
					d.Net.Outliers().Insert(id, false)
					newOutliers++
				}
			}
			report.NewOutliers = newOutliers

			if d.Rewriter != nil {
				survivors := map[int]bool{}
				for _, p := range d.Net.Points() {
					if !d.Net.Outliers().Contains(p.ID) {
						survivors[p.ID] = true
					}
				}
				if err := d.Rewriter.Rewrite(survivors); err != nil {
					return reports, baerrors.IO(err, "rewriting match files")
				}
			}

			if newOutliers == 0 {
				report.TerminatedEarly = true
				reports = append(reports, report)
				break
			}
		}

		surviving := d.Net.NumPoints() - d.Net.Outliers().Len()
		report.SurvivingPts = surviving
		reports = append(reports, report)

		if numPasses > 1 && surviving < d.Cfg.MinMatches {
			return reports, baerrors.InsufficientMatches("surviving points dropped below min-matches")
		}
	}

	return reports, nil
}
