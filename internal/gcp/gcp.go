// Package gcp parses the whitespace-separated ground-control-point text
// file of spec §6: one point per line, `id lat lon height σ_lat σ_lon
// σ_h [<image_path> u v σ_u σ_v]+`.
package gcp

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

// ImageObservation is one `<image_path> u v σ_u σ_v` group on a GCP line.
// The image path is resolved to a camera index by the caller, which owns
// the image-path-to-camera-index mapping.
type ImageObservation struct {
	ImagePath      string
	U, V           float64
	SigmaU, SigmaV float64
}

// Record is one parsed GCP line, in geodetic coordinates as written.
type Record struct {
	ID                              int
	LatDeg, LonDeg, Height          float64
	SigmaLat, SigmaLon, SigmaHeight float64
	Observations                    []ImageObservation
}

// Parse reads every GCP record from r. Blank lines and lines beginning
// with '#' are skipped.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, baerrors.IO(err, "gcp: line "+strconv.Itoa(lineNo))
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, baerrors.IO(err, "gcp: scanning")
	}
	return records, nil
}

// ParseFile opens path and parses it as a GCP file.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, baerrors.IO(err, "gcp: opening "+path)
	}
	defer f.Close()
	return Parse(f)
}

func parseLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return Record{}, baerrors.Config(nil, "gcp line has fewer than 7 fields: "+line)
	}
	if (len(fields)-7)%5 != 0 {
		return Record{}, baerrors.Config(nil, "gcp line's trailing image observations are not a multiple of 5 fields: "+line)
	}

	var rec Record
	var err error
	if rec.ID, err = strconv.Atoi(fields[0]); err != nil {
		return Record{}, err
	}
	nums := make([]float64, 6)
	for i := range nums {
		if nums[i], err = strconv.ParseFloat(fields[1+i], 64); err != nil {
			return Record{}, err
		}
	}
	rec.LatDeg, rec.LonDeg, rec.Height = nums[0], nums[1], nums[2]
	rec.SigmaLat, rec.SigmaLon, rec.SigmaHeight = nums[3], nums[4], nums[5]

	for i := 7; i < len(fields); i += 5 {
		obs := ImageObservation{ImagePath: fields[i]}
		vals := make([]float64, 4)
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(fields[i+1+j], 64); err != nil {
				return Record{}, err
			}
		}
		obs.U, obs.V, obs.SigmaU, obs.SigmaV = vals[0], vals[1], vals[2], vals[3]
		rec.Observations = append(rec.Observations, obs)
	}
	return rec, nil
}

// ToPoint converts a geodetic Record into a GCP cnet.Point anchored at
// its surveyed ECEF position, with Sigma holding the (lat, lon, height)
// standard deviations as given in the file.
func ToPoint(rec Record, datum geodesy.Datum) cnet.Point {
	lon := geodesy.Degrees2Rad(rec.LonDeg)
	lat := geodesy.Degrees2Rad(rec.LatDeg)
	x, y, z := datum.ToECEF(lon, lat, rec.Height)

	anchor := [3]float64{x, y, z}
	return cnet.Point{
		ID:           rec.ID,
		Kind:         cnet.GCP,
		XYZ:          anchor,
		Anchor:       anchor,
		Sigma:        [3]float64{rec.SigmaLat, rec.SigmaLon, rec.SigmaHeight},
		LatLonHeight: true,
	}
}
