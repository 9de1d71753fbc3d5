// Package camerapos parses the camera-position CSV of spec §6: one row
// per image, with a caller-supplied format string naming which role
// each column plays.
package camerapos

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/align"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

// Column names a camera-position CSV column's role. Geographic columns
// (Lon, Lat, Height) are supported directly; Easting/Northing require a
// local projection this package does not implement (no PROJ.4 binding
// exists anywhere in the retrieval pack) and are rejected at Parse time.
type Column string

const (
	ColFile    Column = "file"
	ColLon     Column = "lon"
	ColLat     Column = "lat"
	ColHeight  Column = "height"
	ColEasting Column = "easting"
	ColNorth   Column = "northing"
	ColSkip    Column = "-"
)

// Parse reads camera-position hints from r, whose columns are described
// by format (one Column per CSV column, left to right). projString is
// accepted for interface symmetry with the configuration surface but is
// not read; only geographic coordinates are supported, and a format
// containing an easting or northing column is rejected.
func Parse(r io.Reader, format []Column, projString string, datum geodesy.Datum) ([]align.CameraPositionHint, error) {
	for _, c := range format {
		if c == ColEasting || c == ColNorth {
			return nil, baerrors.Config(nil, "camerapos: easting/northing columns require a local projection, which is unsupported")
		}
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	var hints []align.CameraPositionHint
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, baerrors.IO(err, "camerapos: reading row")
		}
		if len(row) < len(format) {
			return nil, baerrors.IO(nil, "camerapos: row has fewer columns than the format string")
		}

		var file string
		var lonDeg, latDeg, height float64
		for i, c := range format {
			field := strings.TrimSpace(row[i])
			switch c {
			case ColFile:
				file = field
			case ColLon:
				if lonDeg, err = strconv.ParseFloat(field, 64); err != nil {
					return nil, err
				}
			case ColLat:
				if latDeg, err = strconv.ParseFloat(field, 64); err != nil {
					return nil, err
				}
			case ColHeight:
				if height, err = strconv.ParseFloat(field, 64); err != nil {
					return nil, err
				}
			case ColSkip:
			}
		}
		if file == "" {
			return nil, baerrors.IO(nil, "camerapos: row has no file column")
		}

		x, y, z := datum.ToECEF(geodesy.Degrees2Rad(lonDeg), geodesy.Degrees2Rad(latDeg), height)
		hints = append(hints, align.CameraPositionHint{ImageName: file, ECEF: [3]float64{x, y, z}})
	}
	return hints, nil
}

// ParseFile opens path and parses it as a camera-position file.
func ParseFile(path string, format []Column, projString string, datum geodesy.Datum) ([]align.CameraPositionHint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, baerrors.IO(err, "camerapos: opening "+path)
	}
	defer f.Close()
	return Parse(f, format, projString, datum)
}

// ParseFormat splits a comma-separated format string (e.g.
// "file,lon,lat,height") into Columns.
func ParseFormat(s string) []Column {
	parts := strings.Split(s, ",")
	out := make([]Column, len(parts))
	for i, p := range parts {
		out[i] = Column(strings.TrimSpace(p))
	}
	return out
}
