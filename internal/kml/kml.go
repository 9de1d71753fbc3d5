// Package kml writes the subsampled point-cloud KML files of spec §6:
// one Placemark per surviving point, subsampled to roughly
// max(num_points/30, 20) entries.
package kml

import (
	"encoding/xml"
	"os"
	"strconv"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// Point is one point to place, in geodetic coordinates.
type Point struct {
	ID                     int
	LonDeg, LatDeg, Height float64
}

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Coordinates string `xml:"Point>coordinates"`
}

type kmlDocument struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	XMLNS    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

// SubsampleStride returns the stride that keeps roughly
// max(n/30, 20) of n points, per spec §6. A stride of 1 means "keep
// everything" (n is already at or below the target count).
func SubsampleStride(n int) int {
	target := n / 30
	if target < 20 {
		target = 20
	}
	if target >= n || n == 0 {
		return 1
	}
	stride := n / target
	if stride < 1 {
		stride = 1
	}
	return stride
}

// Write emits one Placemark per point in pts after striding by
// SubsampleStride(len(pts)), to path.
func Write(path, documentName string, pts []Point) error {
	stride := SubsampleStride(len(pts))

	doc := kmlDocument{Name: documentName}
	for i, p := range pts {
		if i%stride != 0 {
			continue
		}
		doc.Placemarks = append(doc.Placemarks, kmlPlacemark{
			Name:        strconv.Itoa(p.ID),
			Coordinates: coordString(p),
		})
	}
	root := kmlRoot{XMLNS: "http://www.opengis.net/kml/2.2", Document: doc}

	out, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return baerrors.IO(err, "kml: marshaling")
	}
	out = append([]byte(xml.Header), out...)

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return baerrors.IO(err, "kml: writing "+path)
	}
	return nil
}

func coordString(p Point) string {
	return formatFloat(p.LonDeg) + "," + formatFloat(p.LatDeg) + "," + formatFloat(p.Height)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
