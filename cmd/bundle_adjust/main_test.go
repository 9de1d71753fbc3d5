package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnetbuild"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/dem"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/mapproject"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/matchfile"
)

func TestParseFloatTupleParsesCommaSeparatedValues(t *testing.T) {
	got, err := parseFloatTuple("75,3,2,3", 4)
	require.NoError(t, err)
	require.Equal(t, []float64{75, 3, 2, 3}, got)
}

func TestParseFloatTupleRejectsWrongArity(t *testing.T) {
	_, err := parseFloatTuple("75,3", 4)
	require.Error(t, err)
}

func TestParseFloatTupleRejectsNonNumeric(t *testing.T) {
	_, err := parseFloatTuple("75,x,2,3", 4)
	require.Error(t, err)
}

func TestParseMatchListSkipsBlankAndCommentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.txt")
	content := "# camA camB path\n0 1 /tmp/a.match\n\n2 3 /tmp/b.match\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := parseMatchList(path)
	require.NoError(t, err)
	require.Equal(t, []matchListEntry{
		{CamA: 0, CamB: 1, Path: "/tmp/a.match"},
		{CamA: 2, CamB: 3, Path: "/tmp/b.match"},
	}, entries)
}

func TestParseMatchListRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 1\n"), 0o644))

	_, err := parseMatchList(path)
	require.Error(t, err)
}

func TestParseMatchListRejectsNonIntegerCameraIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.txt")
	require.NoError(t, os.WriteFile(path, []byte("a 1 /tmp/a.match\n"), 0o644))

	_, err := parseMatchList(path)
	require.Error(t, err)
}

func TestParseOverlapListEmptyPathReturnsNilFilter(t *testing.T) {
	filter, err := parseOverlapList("")
	require.NoError(t, err)
	require.Nil(t, filter)
}

func TestParseOverlapListBuildsFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlap.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 1\n1 2\n"), 0o644))

	filter, err := parseOverlapList(path)
	require.NoError(t, err)
	require.True(t, filter.AllowsPair(0, 1))
	require.False(t, filter.AllowsPair(0, 2))
}

func TestParseOverlapListRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlap.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 1 2\n"), 0o644))

	_, err := parseOverlapList(path)
	require.Error(t, err)
}

func TestLoadPairMatchesSkipsUnreadableFileAndOutOfRangePair(t *testing.T) {
	entries := []matchListEntry{
		{CamA: 0, CamB: 1, Path: filepath.Join(t.TempDir(), "missing.match")},
		{CamA: 0, CamB: 5, Path: filepath.Join(t.TempDir(), "also-missing.match")},
	}
	var warnings []string
	pairs := loadPairMatches(entries, 2, nil, func(format string, args ...interface{}) {
		warnings = append(warnings, format)
	})
	require.Empty(t, pairs)
	require.Len(t, warnings, 1) // only the overlap-limit-excluded pair is filtered silently
}

func TestParseGeoreferenceListParsesOneLinePerImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "georef.txt")
	content := "# image lonStart latStart lonStep latStep\nleft.tif -1 -1 0.1 0.1\nright.tif -1 -1 0.1 0.1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	georefs, err := parseGeoreferenceList(path)
	require.NoError(t, err)
	require.Equal(t, mapproject.Georeference{LonStart: -1, LatStart: -1, LonStep: 0.1, LatStep: 0.1}, georefs["left.tif"])
	require.Equal(t, mapproject.Georeference{LonStart: -1, LatStart: -1, LonStep: 0.1, LatStep: 0.1}, georefs["right.tif"])
}

func TestParseGeoreferenceListRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "georef.txt")
	require.NoError(t, os.WriteFile(path, []byte("left.tif -1 -1\n"), 0o644))

	_, err := parseGeoreferenceList(path)
	require.Error(t, err)
}

func TestRewriteMapProjectedPairsProjectsIntoNativePixels(t *testing.T) {
	grid := &dem.Grid{
		Width: 21, Height: 21, Bands: 1,
		LonStart: -1, LatStart: -1, LonStep: 0.1, LatStep: 0.1,
		NoData: -9999,
		Data:   [][]float64{make([]float64, 21*21)},
	}
	x, y, z := geodesy.WGS84.ToECEF(0, 0, 0)
	camLeft := camera.NewGeneric(0, 0, 0, 0, x, y, z+100, 50)
	camRight := camera.NewGeneric(1, 0, 0, 0, x, y, z+150, 50)
	cams := map[int]camera.Model{0: camLeft, 1: camRight}
	images := map[int]string{0: "left.tif", 1: "right.tif"}
	georefs := map[string]mapproject.Georeference{
		"left.tif":  {LonStart: -1, LatStart: -1, LonStep: 0.1, LatStep: 0.1},
		"right.tif": {LonStart: -1, LatStart: -1, LonStep: 0.1, LatStep: 0.1},
	}
	pairs := []cnetbuild.PairMatches{{
		CamA: 0, CamB: 1,
		Matches: matchfile.Pair{
			Left:  []matchfile.InterestPoint{{X: 10, Y: 10}},
			Right: []matchfile.InterestPoint{{X: 10, Y: 10}},
		},
	}}

	rewritten := rewriteMapProjectedPairs(pairs, images, georefs, cams, mapproject.Bridge{DEM: grid, Datum: geodesy.WGS84})
	require.Len(t, rewritten, 1)
	require.Len(t, rewritten[0].Matches.Left, 1)
	require.InDelta(t, 0, rewritten[0].Matches.Left[0].X, 1e-6)
	require.InDelta(t, 0, rewritten[0].Matches.Left[0].Y, 1e-6)
}

func TestRewriteMapProjectedPairsPassesThroughWhenNoGeoreferences(t *testing.T) {
	pairs := []cnetbuild.PairMatches{{CamA: 0, CamB: 1, Matches: matchfile.Pair{
		Left:  []matchfile.InterestPoint{{X: 1, Y: 2}},
		Right: []matchfile.InterestPoint{{X: 3, Y: 4}},
	}}}
	out := rewriteMapProjectedPairs(pairs, nil, nil, nil, mapproject.Bridge{})
	require.Equal(t, pairs, out)
}

func TestLoadReferenceTerrainPointsSamplesDisparityAgainstDEM(t *testing.T) {
	dir := t.TempDir()

	refPath := filepath.Join(dir, "ref.dem")
	refGrid := &dem.Grid{
		Width: 52, Height: 52, Bands: 1,
		LonStart: -1, LatStart: -1, LonStep: 0.04, LatStep: 0.04,
		NoData: -9999,
		Data:   [][]float64{make([]float64, 52*52)},
	}
	require.NoError(t, dem.WriteFile(refPath, refGrid))

	dispPath := filepath.Join(dir, "pair01.disp")
	dispGrid := &dem.Grid{
		Width: 52, Height: 52, Bands: 2,
		LonStart: -1, LatStart: -1, LonStep: 0.04, LatStep: 0.04,
		NoData: -9999,
		Data:   [][]float64{make([]float64, 52*52), make([]float64, 52*52)},
	}
	for i := range dispGrid.Data[0] {
		dispGrid.Data[0][i] = 1.5
		dispGrid.Data[1][i] = -0.5
	}
	require.NoError(t, dem.WriteFile(dispPath, dispGrid))

	listPath := filepath.Join(dir, "disparity-list.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("0 1 "+dispPath+"\n"), 0o644))

	points, err := loadReferenceTerrainPoints(refPath, listPath, geodesy.WGS84)
	require.NoError(t, err)
	require.NotEmpty(t, points)
	for _, p := range points {
		require.Equal(t, 0, p.LeftCam)
		require.Equal(t, 1, p.RightCam)
		require.InDelta(t, 1.5, p.Disparity[0], 1e-9)
		require.InDelta(t, -0.5, p.Disparity[1], 1e-9)
	}
	// 52x52 grid, stride 25 -> rows/cols {0, 25, 50}: 9 sampled cells.
	require.Len(t, points, 9)
}

func TestLoadPairMatchesHonorsOverlapFilter(t *testing.T) {
	filter := cnet.NewOverlapFilter([][2]int{{0, 1}})
	entries := []matchListEntry{
		{CamA: 0, CamB: 2, Path: filepath.Join(t.TempDir(), "missing.match")},
	}
	pairs := loadPairMatches(entries, 0, filter, func(string, ...interface{}) {})
	require.Empty(t, pairs)
}
