// Command bundle_adjust wires the bundle-adjustment core into a runnable
// CLI: load cameras and tie-point matches from disk, optionally load GCPs
// and camera-position hints, build the control network, then hand
// everything to internal/pipeline.Run.
//
// Camera and image file formats are left unspecified by the core (only
// data layouts the core itself produces/consumes are specified), so this
// command also defines the on-disk camera-list and match-list formats it
// reads; see internal/cameralist's doc comment and parseMatchList below.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/align"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/assembler"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cameralist"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camerapos"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnetbuild"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/config"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/dem"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/gcp"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/logging"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/mapproject"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/matchfile"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/pipeline"
)

func main() {
	app := &cli.App{
		Name:  "bundle_adjust",
		Usage: "jointly refine camera poses and tie/ground-control points from pairwise matches",
		Flags: flags(),
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Print(err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a run's error to the process exit code spec §7 expects:
// distinct nonzero codes per error taxonomy, so scripted callers can
// branch on failure kind without parsing messages.
func exitCode(err error) int {
	switch {
	case baerrors.Is(err, baerrors.ErrConfiguration):
		return 2
	case baerrors.Is(err, baerrors.ErrIO):
		return 3
	case baerrors.Is(err, baerrors.ErrInsufficientMatches):
		return 4
	default:
		return 1
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "camera-list", Required: true, Usage: "camera-list CSV (see internal/cameralist)"},
		&cli.StringFlag{Name: "match-list", Usage: "match-list text file: 'camA camB path-to-match-file' per line"},
		&cli.StringFlag{Name: "gcp-file", Usage: "ground-control-point text file (spec's whitespace-separated GCP format)"},
		&cli.StringFlag{Name: "camera-positions", Usage: "camera-position CSV for the pre-solve aligner's first mode"},
		&cli.StringFlag{Name: "camera-positions-format", Value: "file,lon,lat,height", Usage: "column roles for --camera-positions, comma-separated"},
		&cli.StringFlag{Name: "output-prefix", Aliases: []string{"o"}, Required: true, Usage: "prefix for every log/KML/adjustment file written"},
		&cli.BoolFlag{Name: "verbose", Usage: "human-friendly console logging instead of structured JSON"},

		&cli.StringFlag{Name: "cost-function", Value: "cauchy", Usage: "l2|huber|cauchy|soft_l1"},
		&cli.Float64Flag{Name: "robust-threshold", Value: 0.5},
		&cli.Float64Flag{Name: "camera-weight"},
		&cli.Float64Flag{Name: "rotation-weight"},
		&cli.Float64Flag{Name: "translation-weight"},
		&cli.Float64Flag{Name: "overlap-exponent"},

		&cli.IntFlag{Name: "num-passes", Value: 2},
		&cli.StringFlag{Name: "remove-outliers-params", Value: "75,3,2,3", Usage: "pct,factor,err1,err2"},
		&cli.StringFlag{Name: "remove-outliers-by-disparity-params", Value: "90,3", Usage: "pct,factor"},
		&cli.IntFlag{Name: "min-matches", Value: 30},

		&cli.Float64Flag{Name: "min-triangulation-angle", Value: 0.1},

		&cli.IntFlag{Name: "max-iterations", Value: 500},
		&cli.Float64Flag{Name: "parameter-tolerance", Value: 1e-8},

		&cli.BoolFlag{Name: "solve-intrinsics"},
		&cli.StringSliceFlag{Name: "intrinsics-to-float"},

		&cli.BoolFlag{Name: "fix-gcp-xyz"},
		&cli.IntSliceFlag{Name: "fixed-camera-indices"},
		&cli.StringFlag{Name: "heights-from-dem"},
		&cli.BoolFlag{Name: "use-lon-lat-height-gcp-error"},

		&cli.StringFlag{Name: "initial-transform"},
		&cli.StringFlag{Name: "input-adjustments-prefix"},

		&cli.StringFlag{Name: "mapprojected-data"},
		&cli.StringFlag{Name: "gcp-data"},

		&cli.StringFlag{Name: "reference-terrain"},
		&cli.StringFlag{Name: "disparity-list"},
		&cli.Float64Flag{Name: "max-disp-error"},

		&cli.StringFlag{Name: "datum", Value: "WGS84"},
		&cli.Float64Flag{Name: "semi-major-axis"},
		&cli.Float64Flag{Name: "semi-minor-axis"},

		&cli.Float64Flag{Name: "position-filter-dist"},

		&cli.IntFlag{Name: "overlap-limit"},
		&cli.StringFlag{Name: "overlap-list"},

		&cli.StringFlag{Name: "save-cnet-as-csv"},

		&cli.IntFlag{Name: "threads", Value: 1, Usage: "worker count for residual evaluation; pinned to 1 under --session-type=isis"},
		&cli.StringFlag{Name: "session-type", Usage: "camera-model session driving the ISIS single-threaded pin, e.g. isis|pinhole"},
	}
}

func configFromFlags(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	cfg.CostFunction = config.LossKind(c.String("cost-function"))
	cfg.RobustThreshold = c.Float64("robust-threshold")
	cfg.CameraWeight = c.Float64("camera-weight")
	cfg.RotationWeight = c.Float64("rotation-weight")
	cfg.TranslationWeight = c.Float64("translation-weight")
	cfg.OverlapExponent = c.Float64("overlap-exponent")

	cfg.NumPasses = c.Int("num-passes")
	outlierParams, err := parseFloatTuple(c.String("remove-outliers-params"), 4)
	if err != nil {
		return config.Config{}, baerrors.Config(err, "remove-outliers-params")
	}
	cfg.RemoveOutliers = config.OutlierParams{Pct: outlierParams[0], Factor: outlierParams[1], Err1: outlierParams[2], Err2: outlierParams[3]}

	dispParams, err := parseFloatTuple(c.String("remove-outliers-by-disparity-params"), 2)
	if err != nil {
		return config.Config{}, baerrors.Config(err, "remove-outliers-by-disparity-params")
	}
	cfg.RemoveOutliersByDisp = config.DisparityOutlierParams{Pct: dispParams[0], Factor: dispParams[1]}

	cfg.MinMatches = c.Int("min-matches")
	cfg.MinTriangulationAngleDeg = c.Float64("min-triangulation-angle")
	cfg.MaxIterations = c.Int("max-iterations")
	cfg.ParameterTolerance = c.Float64("parameter-tolerance")

	cfg.SolveIntrinsics = c.Bool("solve-intrinsics")
	cfg.IntrinsicsToFloat = c.StringSlice("intrinsics-to-float")

	cfg.FixGCPXYZ = c.Bool("fix-gcp-xyz")
	cfg.FixedCameraIndices = c.IntSlice("fixed-camera-indices")
	cfg.HeightsFromDEM = c.String("heights-from-dem")
	cfg.UseLonLatHeightGCPErr = c.Bool("use-lon-lat-height-gcp-error")

	cfg.InitialTransform = c.String("initial-transform")
	cfg.InputAdjustmentsPrefix = c.String("input-adjustments-prefix")

	cfg.MapprojectedData = c.String("mapprojected-data")
	cfg.GCPData = c.String("gcp-data")

	cfg.ReferenceTerrain = c.String("reference-terrain")
	cfg.DisparityList = c.String("disparity-list")
	cfg.MaxDispError = c.Float64("max-disp-error")

	cfg.Datum = c.String("datum")
	cfg.SemiMajorAxis = c.Float64("semi-major-axis")
	cfg.SemiMinorAxis = c.Float64("semi-minor-axis")

	cfg.PositionFilterDist = c.Float64("position-filter-dist")

	cfg.OverlapLimit = c.Int("overlap-limit")
	cfg.OverlapList = c.String("overlap-list")

	cfg.SaveCnetAsCSV = c.String("save-cnet-as-csv")

	cfg.NumThreads = c.Int("threads")
	cfg.SessionType = c.String("session-type")

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func parseFloatTuple(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma-separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// matchListEntry is one row of the match-list file this command invents
// (spec §1 leaves the image-pair match-finding step's own bookkeeping
// format unspecified): "<camA> <camB> <path>", whitespace-separated.
type matchListEntry struct {
	CamA, CamB int
	Path       string
}

func parseMatchList(path string) ([]matchListEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, baerrors.IO(err, "opening match-list "+path)
	}
	var entries []matchListEntry
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, baerrors.Config(nil, fmt.Sprintf("match-list line %d: expected 3 fields, got %d", lineNo+1, len(fields)))
		}
		camA, err1 := strconv.Atoi(fields[0])
		camB, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, baerrors.Config(nil, fmt.Sprintf("match-list line %d: invalid camera index", lineNo+1))
		}
		entries = append(entries, matchListEntry{CamA: camA, CamB: camB, Path: fields[2]})
	}
	return entries, nil
}

// loadPairMatches reads every match-list entry's match file. Pairs whose
// cameras are excluded by overlap restriction are skipped without a
// message; a pair whose file fails to parse is skipped with a warning,
// per spec §8's "log a warning, skip the pair, continue" policy.
func loadPairMatches(entries []matchListEntry, overlapLimit int, overlapPairs *cnet.OverlapFilter, logger func(format string, args ...interface{})) []cnetbuild.PairMatches {
	pairs := make([]cnetbuild.PairMatches, 0, len(entries))
	for _, e := range entries {
		if overlapLimit > 0 {
			d := e.CamA - e.CamB
			if d < 0 {
				d = -d
			}
			if d > overlapLimit {
				continue
			}
		}
		if !overlapPairs.AllowsPair(e.CamA, e.CamB) {
			continue
		}
		pair, err := matchfile.ReadFile(e.Path)
		if err != nil {
			logger("skipping match pair %d-%d (%s): %v", e.CamA, e.CamB, e.Path, err)
			continue
		}
		pairs = append(pairs, cnetbuild.PairMatches{CamA: e.CamA, CamB: e.CamB, Matches: pair, Path: e.Path})
	}
	return pairs
}

// parseGeoreferenceList reads the map-projected-image georeference file
// this command invents for --mapprojected-data: spec §4.5 assumes the
// bridge's affine (lon_start, lat_start, lon_step, lat_step) per image
// is available but leaves its on-disk format unspecified. One line per
// map-projected image: "<image> <lonStart> <latStart> <lonStep> <latStep>".
func parseGeoreferenceList(path string) (map[string]mapproject.Georeference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, baerrors.IO(err, "opening mapprojected-data "+path)
	}
	out := map[string]mapproject.Georeference{}
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 5 {
			return nil, baerrors.Config(nil, fmt.Sprintf("mapprojected-data line %d: expected 5 fields, got %d", lineNo+1, len(fields)))
		}
		values, err := parseFloatTuple(strings.Join(fields[1:], ","), 4)
		if err != nil {
			return nil, baerrors.Config(err, fmt.Sprintf("mapprojected-data line %d", lineNo+1))
		}
		out[fields[0]] = mapproject.Georeference{LonStart: values[0], LatStart: values[1], LonStep: values[2], LatStep: values[3]}
	}
	return out, nil
}

// rewriteMapProjectedPairs re-derives native-camera pixels (spec §4.5
// steps 1-4) for every pair whose two images both have a recorded
// georeference; pairs naming an image with no georeference pass through
// untouched, since they were already taken in native camera space.
func rewriteMapProjectedPairs(pairs []cnetbuild.PairMatches, images map[int]string, georefs map[string]mapproject.Georeference, cams map[int]camera.Model, bridge mapproject.Bridge) []cnetbuild.PairMatches {
	if len(georefs) == 0 {
		return pairs
	}
	out := make([]cnetbuild.PairMatches, len(pairs))
	for i, pm := range pairs {
		geoLeft, okLeft := georefs[images[pm.CamA]]
		geoRight, okRight := georefs[images[pm.CamB]]
		if !okLeft || !okRight {
			out[i] = pm
			continue
		}
		rewritten, _ := bridge.Rewrite(pm.Matches, geoLeft, geoRight, cams[pm.CamA], cams[pm.CamB])
		pm.Matches = rewritten
		out[i] = pm
	}
	return out
}

// referenceTerrainStride keeps the reference-terrain point count
// proportional to a disparity raster's resolution without exploding the
// problem size for a full-resolution raster: one anchor per 25x25 cell.
const referenceTerrainStride = 25

// loadReferenceTerrainPoints reads disparityListPath's entries with
// parseMatchList (the same "camA camB path" shape as --match-list; spec
// §6 names --disparity-list's pairing but not its on-disk layout) and
// samples each named disparity raster on a coarse grid, pairing every
// sampled cell's disparity with the reference-terrain DEM's height at
// the same geographic position.
func loadReferenceTerrainPoints(refDEMPath, disparityListPath string, datum geodesy.Datum) ([]cnet.ReferenceTerrainPoint, error) {
	refGrid, err := dem.ReadFile(refDEMPath)
	if err != nil {
		return nil, err
	}
	entries, err := parseMatchList(disparityListPath)
	if err != nil {
		return nil, err
	}

	var points []cnet.ReferenceTerrainPoint
	for _, e := range entries {
		dispGrid, err := dem.ReadFile(e.Path)
		if err != nil {
			return nil, err
		}
		for row := 0; row < dispGrid.Height; row += referenceTerrainStride {
			for col := 0; col < dispGrid.Width; col += referenceTerrainStride {
				lon, lat := dispGrid.LonLatAt(col, row)
				dx, dy, ok := dispGrid.SampleDisparity(lon, lat)
				if !ok {
					continue
				}
				height, ok := refGrid.SampleHeight(lon, lat)
				if !ok {
					continue
				}
				x, y, z := datum.ToECEF(lon, lat, height)
				points = append(points, cnet.ReferenceTerrainPoint{
					XYZ:       [3]float64{x, y, z},
					LeftCam:   e.CamA,
					RightCam:  e.CamB,
					Disparity: [2]float64{dx, dy},
				})
			}
		}
	}
	return points, nil
}

func parseOverlapList(path string) (*cnet.OverlapFilter, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, baerrors.IO(err, "opening overlap-list "+path)
	}
	var pairs [][2]int
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, baerrors.Config(nil, "overlap-list: expected 2 fields per line, got "+line)
		}
		a, err1 := strconv.Atoi(fields[0])
		b, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			return nil, baerrors.Config(nil, "overlap-list: invalid camera index in "+line)
		}
		pairs = append(pairs, [2]int{a, b})
	}
	return cnet.NewOverlapFilter(pairs), nil
}

func run(c *cli.Context) error {
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(c.Bool("verbose"))
	if err != nil {
		return baerrors.IO(err, "constructing logger")
	}
	defer logger.Sync()

	datum := pipeline.DatumFromConfig(cfg)

	cams, images, intrinsics, err := cameralist.ParseFile(c.String("camera-list"))
	if err != nil {
		return err
	}

	overlapFilter, err := parseOverlapList(c.String("overlap-list"))
	if err != nil {
		return err
	}
	net := cnet.New()

	if cfg.ReferenceTerrain != "" {
		points, err := loadReferenceTerrainPoints(cfg.ReferenceTerrain, cfg.DisparityList, datum)
		if err != nil {
			return err
		}
		for _, p := range points {
			net.AddReferenceTerrainPoint(p)
		}
		logger.Sugar().Infow("reference-terrain points loaded", "count", len(points))
	}

	nextTieID := 1
	if gcpPath := c.String("gcp-file"); gcpPath != "" {
		records, err := gcp.ParseFile(gcpPath)
		if err != nil {
			return err
		}
		nameToCam := make(map[string]int, len(images))
		for id, name := range images {
			nameToCam[name] = id
		}
		for _, rec := range records {
			net.AddPoint(gcp.ToPoint(rec, datum))
			for _, obs := range rec.Observations {
				camID, ok := nameToCam[obs.ImagePath]
				if !ok {
					logger.Sugar().Warnw("gcp observation references unknown image", "image", obs.ImagePath)
					continue
				}
				net.AddObservation(cnet.Observation{
					Cam: camID, Point: rec.ID,
					Pixel: [2]float64{obs.U, obs.V},
					Sigma: [2]float64{obs.SigmaU, obs.SigmaV},
				})
			}
			if rec.ID >= nextTieID {
				nextTieID = rec.ID + 1
			}
		}
	}

	if matchListPath := c.String("match-list"); matchListPath != "" {
		entries, err := parseMatchList(matchListPath)
		if err != nil {
			return err
		}
		pairMatches := loadPairMatches(entries, cfg.OverlapLimit, overlapFilter, func(format string, args ...interface{}) {
			logger.Sugar().Warnf(format, args...)
		})
		if len(pairMatches) == 0 && c.String("gcp-file") == "" {
			return baerrors.InsufficientMatches("no match pairs loaded and no GCP file provided")
		}

		if mapPath := cfg.MapprojectedData; mapPath != "" {
			if cfg.HeightsFromDEM == "" {
				return baerrors.Config(nil, "mapprojected-data requires heights-from-dem")
			}
			georefs, err := parseGeoreferenceList(mapPath)
			if err != nil {
				return err
			}
			grid, err := dem.ReadFile(cfg.HeightsFromDEM)
			if err != nil {
				return err
			}
			pairMatches = rewriteMapProjectedPairs(pairMatches, images, georefs, cams, mapproject.Bridge{DEM: grid, Datum: datum})
		}

		nextID := nextTieID
		stats, resolution := cnetbuild.Build(net, pairMatches, cams, cfg.MinTriangulationAngleDeg, func() int {
			id := nextID
			nextID++
			return id
		})
		logger.Sugar().Infow("control network built", "chains", stats.Chains, "added", stats.Added,
			"too_few_cameras", stats.TooFewCams, "failed_angle", stats.FailedAngle)

		var hints []align.CameraPositionHint
		if posPath := c.String("camera-positions"); posPath != "" {
			format := camerapos.ParseFormat(c.String("camera-positions-format"))
			hints, err = camerapos.ParseFile(posPath, format, "", datum)
			if err != nil {
				return err
			}
		}

		run := &pipeline.Run{
			Net: net, Cams: cams, Intrinsics: intrinsics, Datum: datum, Cfg: cfg,
			Rewriter:            resolution.Rewriter(cfg.RemoveOutliersByDisp.Pct, cfg.RemoveOutliersByDisp.Factor),
			CameraPositionHints: hints,
			CameraImageNames:    images,
			OutputPrefix:        c.String("output-prefix"),
			Logger:              logger,
		}
		return execute(run, cfg)
	}

	// No match-list: GCPs alone must be enough to run (spec §8: "if no
	// pair matches, allow the run to proceed on GCPs alone").
	if c.String("gcp-file") == "" {
		return baerrors.InsufficientMatches("neither --match-list nor --gcp-file was provided")
	}
	var hints []align.CameraPositionHint
	if posPath := c.String("camera-positions"); posPath != "" {
		format := camerapos.ParseFormat(c.String("camera-positions-format"))
		hints, err = camerapos.ParseFile(posPath, format, "", datum)
		if err != nil {
			return err
		}
	}
	run := &pipeline.Run{
		Net: net, Cams: cams, Intrinsics: intrinsics, Datum: datum, Cfg: cfg,
		CameraPositionHints: hints,
		CameraImageNames:    images,
		OutputPrefix:        c.String("output-prefix"),
		Logger:              logger,
	}
	return execute(run, cfg)
}

func execute(run *pipeline.Run, cfg config.Config) error {
	var heights assembler.HeightSampler
	if cfg.HeightsFromDEM != "" {
		grid, err := dem.ReadFile(cfg.HeightsFromDEM)
		if err != nil {
			return err
		}
		heights = grid
	}

	result, err := run.Execute(heights)
	if err != nil {
		return err
	}

	if cfg.SaveCnetAsCSV != "" {
		if err := run.Net.WriteCSV(cfg.SaveCnetAsCSV); err != nil {
			return err
		}
	}

	for _, pass := range result.Passes {
		run.Logger.Sugar().Infow("pass complete", "pass", pass.Pass, "new_outliers", pass.NewOutliers,
			"surviving_points", pass.SurvivingPts, "terminated_early", pass.TerminatedEarly)
	}
	return nil
}
