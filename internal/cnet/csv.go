package cnet

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// WriteCSV dumps the control network as save-cnet-as-csv does in the
// original source: one row per point, "id,kind,x,y,z,num_observations".
func (n *Network) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return baerrors.IO(err, "creating cnet csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"id", "kind", "x", "y", "z", "num_observations"}); err != nil {
		return baerrors.IO(err, "writing cnet csv header")
	}

	for _, id := range n.pointOrder {
		p := n.points[id]
		kind := "TIE"
		if p.Kind == GCP {
			kind = "GCP"
		}
		row := []string{
			strconv.Itoa(p.ID),
			kind,
			strconv.FormatFloat(p.XYZ[0], 'g', -1, 64),
			strconv.FormatFloat(p.XYZ[1], 'g', -1, 64),
			strconv.FormatFloat(p.XYZ[2], 'g', -1, 64),
			strconv.Itoa(n.ObserverCount(p.ID)),
		}
		if err := w.Write(row); err != nil {
			return baerrors.IO(err, "writing cnet csv row")
		}
	}
	return w.Error()
}
