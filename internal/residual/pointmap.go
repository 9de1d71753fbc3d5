package residual

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/geodesy"
)

// WritePointmapCSV writes "lon, lat, height, mean_residual, n_obs" rows
// for every non-outlier, non-GCP point this report has a mean residual
// for. Per spec §4.3, points falling in no configured datum are
// skipped; since this module threads a single datum through a whole
// run, that degenerates to: skip everything if datum is the unset zero
// value.
func (r Report) WritePointmapCSV(path string, net *cnet.Network, datum geodesy.Datum) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if datum.Name == "" {
		return nil
	}

	for _, id := range sortedKeys(r.PerPointMean) {
		kind, ok := pointKind(net, id)
		if !ok || kind == cnet.GCP || net.Outliers().Contains(id) {
			continue
		}
		pt, _ := net.Point(id)
		lon, lat, h := datum.ToGeodetic(pt.XYZ[0], pt.XYZ[1], pt.XYZ[2])

		row := []string{
			strconv.FormatFloat(geodesy.Rad2Degrees(lon), 'f', 8, 64),
			strconv.FormatFloat(geodesy.Rad2Degrees(lat), 'f', 8, 64),
			strconv.FormatFloat(h, 'f', 4, 64),
			strconv.FormatFloat(r.PerPointMean[id], 'f', 6, 64),
			strconv.Itoa(r.PerPointObservations[id]),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
