// Package dem implements a minimal self-describing binary raster format
// for elevation and disparity grids (spec §4.5/§6), with bilinear
// sampling at arbitrary longitude/latitude or pixel coordinates. No
// raster or GDAL binding exists anywhere in the retrieval pack, so this
// format is deliberately simple: a fixed header followed by row-major
// float64 bands, everything little-endian.
package dem

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

const magic uint32 = 0x44454d31 // "DEM1"

// Grid is a georeferenced raster with one or more bands (one band for a
// DEM, two for a disparity raster's (dx, dy) pair).
type Grid struct {
	Width, Height int
	Bands         int

	// LonStart/LatStart is the geographic coordinate of pixel (0, 0);
	// LonStep/LatStep is the per-pixel increment (LatStep is typically
	// negative, north-up).
	LonStart, LatStart float64
	LonStep, LatStep   float64

	// NoData marks invalid samples.
	NoData float64

	// Data is band-sequential, one slice per band: Data[band][row*Width+col].
	Data [][]float64
}

var order = binary.LittleEndian

// Read parses a Grid from r.
func Read(r io.Reader) (*Grid, error) {
	var got uint32
	if err := binary.Read(r, order, &got); err != nil {
		return nil, baerrors.IO(err, "dem: reading magic")
	}
	if got != magic {
		return nil, baerrors.IO(nil, "dem: bad magic, not a dem grid file")
	}

	var g Grid
	var w, h, bands int32
	fields := []interface{}{
		&w, &h, &bands, &g.LonStart, &g.LatStart, &g.LonStep, &g.LatStep, &g.NoData,
	}
	for _, f := range fields {
		if err := binary.Read(r, order, f); err != nil {
			return nil, baerrors.IO(err, "dem: reading header")
		}
	}
	if w <= 0 || h <= 0 || bands <= 0 {
		return nil, baerrors.IO(nil, "dem: non-positive dimensions in header")
	}
	g.Width, g.Height, g.Bands = int(w), int(h), int(bands)

	g.Data = make([][]float64, g.Bands)
	for b := 0; b < g.Bands; b++ {
		band := make([]float64, g.Width*g.Height)
		for i := range band {
			if err := binary.Read(r, order, &band[i]); err != nil {
				return nil, baerrors.IO(err, "dem: reading band data")
			}
		}
		g.Data[b] = band
	}
	return &g, nil
}

// ReadFile opens path and parses it as a Grid.
func ReadFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, baerrors.IO(err, "dem: opening "+path)
	}
	defer f.Close()
	return Read(f)
}

// Write serializes g to w.
func Write(w io.Writer, g *Grid) error {
	if err := binary.Write(w, order, magic); err != nil {
		return err
	}
	fields := []interface{}{
		int32(g.Width), int32(g.Height), int32(g.Bands),
		g.LonStart, g.LatStart, g.LonStep, g.LatStep, g.NoData,
	}
	for _, f := range fields {
		if err := binary.Write(w, order, f); err != nil {
			return err
		}
	}
	for _, band := range g.Data {
		for _, v := range band {
			if err := binary.Write(w, order, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteFile serializes g to a new file at path.
func WriteFile(path string, g *Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return baerrors.IO(err, "dem: creating "+path)
	}
	defer f.Close()
	return Write(f, g)
}

// pixelCoord converts a geographic coordinate to fractional pixel space.
func (g *Grid) pixelCoord(lonRad, latRad float64) (col, row float64) {
	lonDeg := lonRad * 180 / math.Pi
	latDeg := latRad * 180 / math.Pi
	col = (lonDeg - g.LonStart) / g.LonStep
	row = (latDeg - g.LatStart) / g.LatStep
	return col, row
}

// bilinear samples band at fractional pixel coordinates (col, row),
// returning ok=false if any of the four surrounding pixels is out of
// bounds or equal to NoData.
func (g *Grid) bilinear(band []float64, col, row float64) (float64, bool) {
	c0 := math.Floor(col)
	r0 := math.Floor(row)
	c1, r1 := c0+1, r0+1
	if c0 < 0 || r0 < 0 || int(c1) >= g.Width || int(r1) >= g.Height {
		return 0, false
	}
	fc, fr := col-c0, row-r0

	at := func(c, r float64) (float64, bool) {
		v := band[int(r)*g.Width+int(c)]
		if v == g.NoData {
			return 0, false
		}
		return v, true
	}
	v00, ok00 := at(c0, r0)
	v10, ok10 := at(c1, r0)
	v01, ok01 := at(c0, r1)
	v11, ok11 := at(c1, r1)
	if !ok00 || !ok10 || !ok01 || !ok11 {
		return 0, false
	}

	top := v00*(1-fc) + v10*fc
	bottom := v01*(1-fc) + v11*fc
	return top*(1-fr) + bottom*fr, true
}

// LonLatAt returns the geographic coordinate of pixel (col, row)'s
// center, the inverse of pixelCoord.
func (g *Grid) LonLatAt(col, row int) (lonRad, latRad float64) {
	lonDeg := g.LonStart + float64(col)*g.LonStep
	latDeg := g.LatStart + float64(row)*g.LatStep
	return lonDeg * math.Pi / 180, latDeg * math.Pi / 180
}

// SampleHeight implements assembler.HeightSampler: bilinear elevation at
// (lonRad, latRad) from band 0.
func (g *Grid) SampleHeight(lonRad, latRad float64) (float64, bool) {
	if g.Bands < 1 {
		return 0, false
	}
	col, row := g.pixelCoord(lonRad, latRad)
	return g.bilinear(g.Data[0], col, row)
}

// SampleDisparity bilinearly samples a two-band disparity grid at
// (lonRad, latRad), returning the (dx, dy) pair.
func (g *Grid) SampleDisparity(lonRad, latRad float64) (dx, dy float64, ok bool) {
	if g.Bands < 2 {
		return 0, 0, false
	}
	col, row := g.pixelCoord(lonRad, latRad)
	dx, okX := g.bilinear(g.Data[0], col, row)
	dy, okY := g.bilinear(g.Data[1], col, row)
	return dx, dy, okX && okY
}
