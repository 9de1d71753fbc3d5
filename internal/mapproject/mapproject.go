// Package mapproject implements the map-projection bridge of spec §4.5:
// rewriting matches taken in map-projected image space back into native
// camera pixels via a DEM lookup, plus the sibling GCP-synthesis
// variant that back-projects map-projected-image-to-DEM matches.
package mapproject

import (
	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/dem"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/gcp"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/matchfile"
)

// Georeference is the affine pixel<->geographic transform of one
// map-projected image, in the same (lon_start, lat_start, lon_step,
// lat_step) convention as internal/dem's grid header.
type Georeference struct {
	LonStart, LatStart float64
	LonStep, LatStep   float64
}

// PixelToLonLat converts a fractional map-projected pixel coordinate to
// geographic radians.
func (g Georeference) PixelToLonLat(px, py float64) (lonRad, latRad float64) {
	lonDeg := g.LonStart + px*g.LonStep
	latDeg := g.LatStart + py*g.LatStep
	return geodesy.Degrees2Rad(lonDeg), geodesy.Degrees2Rad(latDeg)
}

// Bridge holds the DEM and datum shared by every rewrite in a run.
type Bridge struct {
	DEM   *dem.Grid
	Datum geodesy.Datum
}

// rewriteOnePixel implements spec §4.5 steps 1-4 for a single
// map-projected pixel.
func (b Bridge) rewriteOnePixel(geo Georeference, px, py float64, cam camera.Model) (pixel [2]float64, ok bool) {
	lon, lat := geo.PixelToLonLat(px, py)
	height, ok := b.DEM.SampleHeight(lon, lat)
	if !ok {
		return [2]float64{}, false
	}
	x, y, z := b.Datum.ToECEF(lon, lat, height)
	return cam.Project(mat.NewVecDense(3, []float64{x, y, z}))
}

// Rewrite re-derives native-camera pixel coordinates for every match in
// pair, dropping rows whose DEM sample or camera projection fails on
// either side (spec §4.5 step 2/4). It returns the rewritten pair and
// the original indices that survived.
func (b Bridge) Rewrite(pair matchfile.Pair, geoLeft, geoRight Georeference, camLeft, camRight camera.Model) (matchfile.Pair, []int) {
	out := matchfile.Pair{}
	var kept []int
	for i := range pair.Left {
		leftPixel, ok := b.rewriteOnePixel(geoLeft, pair.Left[i].X, pair.Left[i].Y, camLeft)
		if !ok {
			continue
		}
		rightPixel, ok := b.rewriteOnePixel(geoRight, pair.Right[i].X, pair.Right[i].Y, camRight)
		if !ok {
			continue
		}

		left := pair.Left[i]
		left.X, left.Y = leftPixel[0], leftPixel[1]
		right := pair.Right[i]
		right.X, right.Y = rightPixel[0], rightPixel[1]

		out.Left = append(out.Left, left)
		out.Right = append(out.Right, right)
		kept = append(kept, i)
	}
	return out, kept
}

// DEMMatch is one map-projected-image-to-DEM correspondence: a pixel in
// the map-projected image paired with the DEM grid cell it landed on.
type DEMMatch struct {
	ImagePixel   [2]float64
	DEMCol, DEMRow int
}

// SynthesizeGCPs implements spec §4.5's GCP-synthesis variant: for each
// DEM match, look up the DEM cell's geographic position and height, then
// back-project that ECEF point into cam to get the image observation
// that anchors the new GCP. sigma is applied uniformly to every
// synthesized record; nextID supplies ascending IDs.
func (b Bridge) SynthesizeGCPs(matches []DEMMatch, imagePath string, cam camera.Model, sigma [3]float64, nextID func() int) []gcp.Record {
	var out []gcp.Record
	for _, m := range matches {
		lon, lat := b.DEM.LonLatAt(m.DEMCol, m.DEMRow)
		height, ok := b.DEM.SampleHeight(lon, lat)
		if !ok {
			continue
		}
		x, y, z := b.Datum.ToECEF(lon, lat, height)
		pixel, ok := cam.Project(mat.NewVecDense(3, []float64{x, y, z}))
		if !ok {
			continue
		}

		out = append(out, gcp.Record{
			ID:          nextID(),
			LatDeg:      geodesy.Rad2Degrees(lat),
			LonDeg:      geodesy.Rad2Degrees(lon),
			Height:      height,
			SigmaLat:    sigma[0],
			SigmaLon:    sigma[1],
			SigmaHeight: sigma[2],
			Observations: []gcp.ImageObservation{{
				ImagePath: imagePath,
				U:         pixel[0],
				V:         pixel[1],
				SigmaU:    1,
				SigmaV:    1,
			}},
		})
	}
	return out
}
