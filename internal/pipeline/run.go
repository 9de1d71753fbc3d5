// Package pipeline wires the core components into the end-to-end run
// spec §2's overview describes: assemble an initial schedule and log its
// residuals, run the outlier-loop driver across every configured pass,
// then assemble a final schedule from the solved state and log its
// residuals, KML, and per-camera adjustment files. It does not load
// images or camera files from disk (spec §1 leaves those formats
// unspecified); callers hand it an already-built control network and
// camera models.
package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/adjustment"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/align"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/assembler"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/config"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/kml"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/logging"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/outlier"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/residual"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/solver"
)

// Run is everything pipeline.Run needs beyond cfg: the already-built
// control network, camera models, and shared intrinsics (nil if no
// pinhole camera in the set uses them).
type Run struct {
	Net        *cnet.Network
	Cams       map[int]camera.Model
	Intrinsics *camera.SharedIntrinsics
	Datum      geodesy.Datum
	Cfg        config.Config
	Rewriter   outlier.MatchRewriter

	// CameraPositionHints, when non-empty, drives the pre-solve aligner's
	// first mode (spec §4.4): fit a similarity transform from each
	// hint's surveyed ECEF position to the matching camera's current
	// optical center. CameraImageNames maps a camera ID to the image
	// filename a hint is matched against; cameras absent from it are
	// skipped by the aligner.
	CameraPositionHints []align.CameraPositionHint
	CameraImageNames    map[int]string

	// OutputPrefix names every log/KML/adjustment file this run writes,
	// matching the CLI's -o/--output-prefix.
	OutputPrefix string

	// Logger receives the aligner's lat/lon-swap diagnostic warning and
	// any other pipeline-level warnings. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Result summarizes one completed run for the CLI's exit-code mapping.
type Result struct {
	Passes []outlier.PassReport
}

// DatumFromConfig resolves cfg's datum name and optional semi-axes
// override into a geodesy.Datum. Unrecognized names fall back to WGS84,
// since spec §6 only names "datum" as a recognized option without
// enumerating a closed set.
func DatumFromConfig(cfg config.Config) geodesy.Datum {
	d := geodesy.WGS84
	if cfg.Datum != "" {
		d.Name = cfg.Datum
	}
	if cfg.SemiMajorAxis != 0 && cfg.SemiMinorAxis != 0 {
		d.SemiMajorAxis = cfg.SemiMajorAxis
		d.SemiMinorAxis = cfg.SemiMinorAxis
	}
	return d
}

// applyRigidTransformToScene applies transform in place to every
// camera's pose and, when a pinhole model is active, to every non-GCP
// point's XYZ, returning whether a pinhole camera was found. A camera
// center transforms exactly as a world point; its rotation becomes
// R_cam * R^T since the scale and translation terms cancel in the ray
// direction a pinhole camera actually projects.
func applyRigidTransformToScene(net *cnet.Network, cams map[int]camera.Model, transform geodesy.RigidTransform) bool {
	hasPinhole := false
	for _, m := range cams {
		if _, ok := m.(*camera.Pinhole); ok {
			hasPinhole = true
		}
		layout := m.ExtrinsicsLayout()
		ext := m.Extrinsics()

		pos := mat.NewVecDense(3, []float64{ext[layout.Pos[0]], ext[layout.Pos[0]+1], ext[layout.Pos[0]+2]})
		newPos := transform.Apply(pos)

		rotMat := camera.AxisAngleToRotationMatrix([3]float64{ext[layout.Rot[0]], ext[layout.Rot[0]+1], ext[layout.Rot[0]+2]})
		var newRot mat.Dense
		newRot.Mul(rotMat, transform.Rotation.T())
		newAA := camera.RotationMatrixToAxisAngle(&newRot)

		next := append([]float64{}, ext...)
		for i := 0; i < 3; i++ {
			next[layout.Pos[0]+i] = newPos.AtVec(i)
			next[layout.Rot[0]+i] = newAA[i]
		}
		m.SetExtrinsics(next)
	}

	if !hasPinhole {
		return false
	}
	for _, p := range net.Points() {
		if p.Kind == cnet.GCP {
			continue
		}
		newXYZ := transform.Apply(mat.NewVecDense(3, []float64{p.XYZ[0], p.XYZ[1], p.XYZ[2]}))
		p.XYZ = [3]float64{newXYZ.AtVec(0), newXYZ.AtVec(1), newXYZ.AtVec(2)}
		net.SetPoint(p)
	}
	return true
}

// applyInitialTransform reads the 4x4 rigid+scale transform file of
// spec §6 and applies it to every camera and non-GCP point, before any
// other scene adjustment runs.
func applyInitialTransform(net *cnet.Network, cams map[int]camera.Model, path string) error {
	if path == "" {
		return nil
	}
	transform, err := geodesy.ReadInitialTransform(path)
	if err != nil {
		return err
	}
	applyRigidTransformToScene(net, cams, transform)
	return nil
}

// projectionModels narrows cams to the subset usable as triangulation
// inputs, the same narrowing cnetbuild.Build performs when it first
// constructs the network.
func projectionModels(cams map[int]camera.Model) map[int]cnet.ProjectionMatrixSource {
	models := make(map[int]cnet.ProjectionMatrixSource, len(cams))
	for id, m := range cams {
		if src, ok := m.(cnet.ProjectionMatrixSource); ok {
			models[id] = src
		}
	}
	return models
}

// runPreSolveAligner implements spec §4.4: when a pinhole camera is
// active, fit a closed-form similarity transform from either surveyed
// camera positions or surveyed GCPs and apply it to the whole scene
// before the first optimization pass. It is a no-op when no pinhole
// camera is present or fewer than align.MinPairs pairs are available.
func (r *Run) runPreSolveAligner() error {
	hasPinhole := false
	for _, m := range r.Cams {
		if _, ok := m.(*camera.Pinhole); ok {
			hasPinhole = true
			break
		}
	}
	if !hasPinhole {
		return nil
	}

	var from, to [][3]float64
	if len(r.CameraPositionHints) > 0 {
		lookup := func(imageName string) ([3]float64, bool) {
			for id, name := range r.CameraImageNames {
				if name != imageName {
					continue
				}
				if p, ok := r.Cams[id].(*camera.Pinhole); ok {
					return p.Center(), true
				}
			}
			return [3]float64{}, false
		}
		from, to = align.FromCameraPositions(r.CameraPositionHints, lookup)
	} else {
		triangulated, surveyed := r.triangulateGCPs()
		from, to = align.FromGCPs(triangulated, surveyed)
	}

	if len(from) < align.MinPairs {
		return nil
	}

	transform, err := align.FitSimilarity(from, to)
	if err != nil {
		return err
	}
	applyRigidTransformToScene(r.Net, r.Cams, transform)

	logger := r.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if gcpMean, tieMean, ok := meanGCPAndTiePointPositions(r.Net); ok {
		if dist, warn := align.CheckGCPDistance(gcpMean, tieMean); warn {
			logger.Warn("pre-solve aligner: mean GCP position is over 100km from the mean tie-point position; check for a lat/lon swap",
				zap.Float64("distance_m", dist))
		}
	}
	return nil
}

// meanGCPAndTiePointPositions returns the network-wide mean GCP anchor
// position and mean triangulated tie-point position, independent of
// whichever alignment mode actually ran (camera-position hints or
// GCPs), matching bundle_adjust.cc's check_gcp_dists. ok is false when
// the network holds no GCPs, since the check is meaningless without
// them.
func meanGCPAndTiePointPositions(net *cnet.Network) (gcpMean, tieMean [3]float64, ok bool) {
	var gcps, ties [][3]float64
	for _, p := range net.Points() {
		switch p.Kind {
		case cnet.GCP:
			gcps = append(gcps, p.Anchor)
		case cnet.Tie:
			ties = append(ties, p.XYZ)
		}
	}
	if len(gcps) == 0 {
		return [3]float64{}, [3]float64{}, false
	}
	return centroid3(gcps), centroid3(ties), true
}

// triangulateGCPs triangulates every GCP's current predicted position
// from the observations and camera models on hand, pairing successes
// with the GCP's surveyed Anchor.
func (r *Run) triangulateGCPs() (triangulated, surveyed map[int][3]float64) {
	triangulated = map[int][3]float64{}
	surveyed = map[int][3]float64{}
	models := projectionModels(r.Cams)

	obsByPoint := map[int]map[int][2]float64{}
	for _, cam := range r.Net.Cameras() {
		for _, obs := range r.Net.ObservationsOf(cam) {
			pixels, ok := obsByPoint[obs.Point]
			if !ok {
				pixels = map[int][2]float64{}
				obsByPoint[obs.Point] = pixels
			}
			pixels[cam] = obs.Pixel
		}
	}

	for _, p := range r.Net.Points() {
		if p.Kind != cnet.GCP {
			continue
		}
		xyz, ok := cnet.Triangulate(obsByPoint[p.ID], models, 0)
		if !ok {
			continue
		}
		triangulated[p.ID] = xyz
		surveyed[p.ID] = p.Anchor
	}
	return triangulated, surveyed
}

// centroid3 returns the mean of pts, or the zero point if pts is empty.
func centroid3(pts [][3]float64) [3]float64 {
	var c [3]float64
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c[0] += p[0]
		c[1] += p[1]
		c[2] += p[2]
	}
	n := float64(len(pts))
	return [3]float64{c[0] / n, c[1] / n, c[2] / n}
}

// applyInputAdjustments reads "{prefix}-{camID}.adjust" for every camera
// that has one and warm-starts its extrinsics from it, per spec §6
// ("input-adjustments-prefix: warm-start").
func applyInputAdjustments(cams map[int]camera.Model, prefix string) error {
	if prefix == "" {
		return nil
	}
	for id, m := range cams {
		path := prefix + "-" + strconv.Itoa(id) + ".adjust"
		a, err := adjustment.ReadFile(path)
		if os.IsNotExist(errors.Cause(err)) {
			continue // no adjustment file for this camera; keep its constructed pose.
		}
		if err != nil {
			return err
		}
		pos, aa := a.ToExtrinsics()
		layout := m.ExtrinsicsLayout()
		ext := make([]float64, len(m.Extrinsics()))
		for i := 0; i < 3; i++ {
			ext[layout.Pos[0]+i] = pos[i]
			ext[layout.Rot[0]+i] = aa[i]
		}
		m.SetExtrinsics(ext)
	}
	return nil
}

// writeOutputAdjustments writes "{prefix}-{camID}.adjust" for every
// camera at its current (final) pose.
func writeOutputAdjustments(cams map[int]camera.Model, prefix string) error {
	for id, m := range cams {
		layout := m.ExtrinsicsLayout()
		ext := m.Extrinsics()
		var pos, aa [3]float64
		for i := 0; i < 3; i++ {
			pos[i] = ext[layout.Pos[0]+i]
			aa[i] = ext[layout.Rot[0]+i]
		}
		path := prefix + "-" + strconv.Itoa(id) + ".adjust"
		if err := adjustment.WriteFile(path, adjustment.FromExtrinsics(pos, aa)); err != nil {
			return err
		}
	}
	return nil
}

// snapshotPoints returns a KML Point per non-outlier, non-GCP point in
// net, in its current geodetic position.
func snapshotPoints(net *cnet.Network, datum geodesy.Datum) []kml.Point {
	var pts []kml.Point
	for _, p := range net.Points() {
		if p.Kind == cnet.GCP || net.Outliers().Contains(p.ID) {
			continue
		}
		lon, lat, h := datum.ToGeodetic(p.XYZ[0], p.XYZ[1], p.XYZ[2])
		pts = append(pts, kml.Point{
			ID: p.ID, LonDeg: geodesy.Rad2Degrees(lon), LatDeg: geodesy.Rad2Degrees(lat), Height: h,
		})
	}
	return pts
}

// writeResidualLogs assembles sched's residuals both with and without
// robust-loss reweighting and writes the five log families for stage
// (e.g. "initial" or "final"). The with-loss variant scales each raw
// residual by sqrt(IRLS weight), so its squared sum reproduces the
// solver's weighted cost.
func writeResidualLogs(prob *solver.Problem, sched assembler.Schedule, cameraLayout func(int) camera.Layout, prefix, stage string) (residual.Report, error) {
	raw := prob.RawResiduals()
	withLoss := make([]float64, len(raw))
	weights := prob.IRLSWeights(raw)
	for i, r := range raw {
		withLoss[i] = r * math.Sqrt(weights[i])
	}

	noLoss := residual.Analyze(sched, raw, cameraLayout)
	if err := noLoss.WriteFiles(prefix, stage+"_no_loss_function"); err != nil {
		return residual.Report{}, err
	}
	if err := residual.Analyze(sched, withLoss, cameraLayout).WriteFiles(prefix, stage+"_loss_function"); err != nil {
		return residual.Report{}, err
	}
	return noLoss, nil
}

func cameraLayoutFunc(cams map[int]camera.Model) func(int) camera.Layout {
	return func(id int) camera.Layout {
		if m, ok := cams[id]; ok {
			return m.ExtrinsicsLayout()
		}
		return camera.Layout{Pos: [2]int{0, 3}, Rot: [2]int{3, 6}}
	}
}

// Execute runs the full pipeline: optional DEM height injection, initial
// residual logging, the outlier-loop driver, final residual logging,
// KML writes, and output adjustment files.
func (r *Run) Execute(heights assembler.HeightSampler) (Result, error) {
	if err := r.Cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := applyInitialTransform(r.Net, r.Cams, r.Cfg.InitialTransform); err != nil {
		return Result{}, err
	}
	if err := applyInputAdjustments(r.Cams, r.Cfg.InputAdjustmentsPrefix); err != nil {
		return Result{}, err
	}
	if err := r.runPreSolveAligner(); err != nil {
		return Result{}, err
	}

	assembler.ApplyHeightsFromDEM(r.Net, r.Datum, heights)

	layoutFn := cameraLayoutFunc(r.Cams)

	initialSched := assembler.Assemble(r.Net, r.Cams, r.Datum, r.Cfg)
	initialProb := solver.NewProblem(r.Net, r.Cams, r.Intrinsics, initialSched, r.Cfg)
	if _, err := writeResidualLogs(initialProb, initialSched, layoutFn, r.OutputPrefix, "initial"); err != nil {
		return Result{}, err
	}
	if err := kml.Write(r.OutputPrefix+"-initial_points.kml", "initial points", snapshotPoints(r.Net, r.Datum)); err != nil {
		return Result{}, err
	}

	driver := &outlier.Driver{
		Net: r.Net, Cams: r.Cams, Intrinsics: r.Intrinsics, Datum: r.Datum, Cfg: r.Cfg, Rewriter: r.Rewriter,
	}
	passes, err := driver.Run()
	if err != nil {
		return Result{Passes: passes}, err
	}

	if r.Intrinsics != nil {
		r.Intrinsics.Absorb()
	}

	finalSched := assembler.Assemble(r.Net, r.Cams, r.Datum, r.Cfg)
	finalProb := solver.NewProblem(r.Net, r.Cams, r.Intrinsics, finalSched, r.Cfg)
	finalReport, err := writeResidualLogs(finalProb, finalSched, layoutFn, r.OutputPrefix, "final")
	if err != nil {
		return Result{Passes: passes}, err
	}
	if err := finalReport.WritePointmapCSV(pointmapPath(r.OutputPrefix), r.Net, r.Datum); err != nil {
		return Result{Passes: passes}, err
	}
	if err := kml.Write(r.OutputPrefix+"-final_points.kml", "final points", snapshotPoints(r.Net, r.Datum)); err != nil {
		return Result{Passes: passes}, err
	}

	if err := writeOutputAdjustments(r.Cams, r.OutputPrefix); err != nil {
		return Result{Passes: passes}, err
	}

	return Result{Passes: passes}, nil
}

// pointmapPath names the pointmap CSV alongside the text log families.
func pointmapPath(prefix string) string {
	return filepath.Join(filepath.Dir(prefix), filepath.Base(prefix)+"-pointmap.csv")
}
