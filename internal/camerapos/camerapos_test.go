package camerapos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

func TestParseGeographicRows(t *testing.T) {
	csv := "left.tif,37.5,-122.3,10.0\nright.tif,37.6,-122.4,12.0\n"
	format := ParseFormat("file,lat,lon,height")

	hints, err := Parse(strings.NewReader(csv), format, "", geodesy.WGS84)
	require.NoError(t, err)
	require.Len(t, hints, 2)
	require.Equal(t, "left.tif", hints[0].ImageName)

	lon, lat, h := geodesy.WGS84.ToGeodetic(hints[0].ECEF[0], hints[0].ECEF[1], hints[0].ECEF[2])
	require.InDelta(t, -122.3, geodesy.Rad2Degrees(lon), 1e-6)
	require.InDelta(t, 37.5, geodesy.Rad2Degrees(lat), 1e-6)
	require.InDelta(t, 10.0, h, 1e-3)
}

func TestParseRejectsLocalProjectionColumns(t *testing.T) {
	format := ParseFormat("file,easting,northing")
	_, err := Parse(strings.NewReader("left.tif,1,2\n"), format, "+proj=utm", geodesy.WGS84)
	require.Error(t, err)
}

func TestParseRejectsShortRow(t *testing.T) {
	format := ParseFormat("file,lat,lon,height")
	_, err := Parse(strings.NewReader("left.tif,37.5,-122.3\n"), format, "", geodesy.WGS84)
	require.Error(t, err)
}
