// Package geodesy converts between earth-centered earth-fixed (ECEF)
// Cartesian coordinates and geodetic (longitude, latitude, height)
// coordinates on a configurable reference ellipsoid, and applies rigid
// similarity transforms to ECEF points and camera poses.
//
// No library in the retrieved example corpus wraps PROJ.4 or provides
// ellipsoidal ECEF<->geodetic conversion (golang/geo is S2 spherical-cap
// indexing, the wrong tool for this), so the iterative conversion below
// is hand-rolled the way other_examples/mfkiwl-GPS-JAMMING's ecef2lla
// does it.
package geodesy

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Datum is a reference ellipsoid.
type Datum struct {
	Name          string
	SemiMajorAxis float64 // meters
	SemiMinorAxis float64 // meters
}

// WGS84 is the default datum used when no --datum override is given.
var WGS84 = Datum{Name: "WGS84", SemiMajorAxis: 6378137.0, SemiMinorAxis: 6356752.314245}

func (d Datum) flattening() float64 {
	return (d.SemiMajorAxis - d.SemiMinorAxis) / d.SemiMajorAxis
}

func (d Datum) eccentricitySquared() float64 {
	f := d.flattening()
	return f * (2 - f)
}

// ToGeodetic converts an ECEF point (meters) to longitude/latitude
// (radians) and height above the ellipsoid (meters), using Bowring's
// iterative method.
func (d Datum) ToGeodetic(x, y, z float64) (lonRad, latRad, height float64) {
	a := d.SemiMajorAxis
	e2 := d.eccentricitySquared()

	lonRad = math.Atan2(y, x)

	p := math.Hypot(x, y)
	lat := math.Atan2(z, p*(1-e2))
	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n := a / math.Sqrt(1-e2*sinLat*sinLat)
		newLat := math.Atan2(z+e2*n*sinLat, p)
		if math.Abs(newLat-lat) < 1e-14 {
			lat = newLat
			break
		}
		lat = newLat
	}

	sinLat := math.Sin(lat)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	if math.Abs(math.Cos(lat)) > 1e-12 {
		height = p/math.Cos(lat) - n
	} else {
		height = math.Abs(z) - n*(1-e2)
	}

	return lonRad, lat, height
}

// ToECEF converts longitude/latitude (radians) and height (meters) to
// ECEF meters.
func (d Datum) ToECEF(lonRad, latRad, height float64) (x, y, z float64) {
	a := d.SemiMajorAxis
	e2 := d.eccentricitySquared()

	sinLat, cosLat := math.Sin(latRad), math.Cos(latRad)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)

	x = (n + height) * cosLat * math.Cos(lonRad)
	y = (n + height) * cosLat * math.Sin(lonRad)
	z = (n*(1-e2) + height) * sinLat
	return x, y, z
}

// Degrees2Rad and Rad2Degrees mirror the teacher's rounding convention
// for angle conversions.
func Degrees2Rad(deg float64) float64 { return deg * math.Pi / 180 }
func Rad2Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// ENUBasis returns the 3x3 matrix whose columns are the east, north and
// up unit vectors in ECEF at the given geodetic longitude/latitude
// (radians). Used to re-express a diagonal lat/lon/height covariance as
// an (approximate) ECEF one for use-lon-lat-height-gcp-error.
func ENUBasis(lonRad, latRad float64) *mat.Dense {
	sinLon, cosLon := math.Sin(lonRad), math.Cos(lonRad)
	sinLat, cosLat := math.Sin(latRad), math.Cos(latRad)

	east := []float64{-sinLon, cosLon, 0}
	north := []float64{-sinLat * cosLon, -sinLat * sinLon, cosLat}
	up := []float64{cosLat * cosLon, cosLat * sinLon, sinLat}

	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		m.Set(i, 0, east[i])
		m.Set(i, 1, north[i])
		m.Set(i, 2, up[i])
	}
	return m
}
