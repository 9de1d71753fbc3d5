// Package matchfile reads and writes the binary interest-point match
// files of spec §6: a left-image list followed by a right-image list of
// identical length, each entry a fixed-field InterestPoint record with a
// variable-length descriptor tail.
package matchfile

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// InterestPoint is one matched feature, in the field order spec §6 names:
// (x, y, ix, iy, orientation, scale, interest, polarity, octave,
// descriptor[]).
type InterestPoint struct {
	X, Y               float64
	Ix, Iy             int32
	Orientation, Scale float64
	Interest           float64
	Polarity           bool
	Octave             int32
	Descriptor         []float64
}

// Pair is one image pair's match file content: equal-length left and
// right interest-point lists, paired by index.
type Pair struct {
	Left, Right []InterestPoint
}

var order = binary.LittleEndian

// Read parses a match file from r.
func Read(r io.Reader) (Pair, error) {
	left, err := readList(r)
	if err != nil {
		return Pair{}, errors.Wrap(err, "matchfile: reading left list")
	}
	right, err := readList(r)
	if err != nil {
		return Pair{}, errors.Wrap(err, "matchfile: reading right list")
	}
	if len(left) != len(right) {
		return Pair{}, baerrors.IO(nil, "matchfile: left/right list length mismatch")
	}
	return Pair{Left: left, Right: right}, nil
}

// ReadFile opens path and parses it as a match file.
func ReadFile(path string) (Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pair{}, baerrors.IO(err, "matchfile: opening "+path)
	}
	defer f.Close()
	return Read(f)
}

func readList(r io.Reader) ([]InterestPoint, error) {
	var n int32
	if err := binary.Read(r, order, &n); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, baerrors.IO(nil, "matchfile: negative record count")
	}
	out := make([]InterestPoint, n)
	for i := range out {
		p, err := readPoint(r)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func readPoint(r io.Reader) (InterestPoint, error) {
	var p InterestPoint
	var polarity int32
	var ndesc int32

	fields := []interface{}{
		&p.X, &p.Y, &p.Ix, &p.Iy, &p.Orientation, &p.Scale, &p.Interest,
		&polarity, &p.Octave, &ndesc,
	}
	for _, f := range fields {
		if err := binary.Read(r, order, f); err != nil {
			return InterestPoint{}, err
		}
	}
	p.Polarity = polarity != 0
	if ndesc < 0 {
		return InterestPoint{}, baerrors.IO(nil, "matchfile: negative descriptor length")
	}
	p.Descriptor = make([]float64, ndesc)
	for i := range p.Descriptor {
		if err := binary.Read(r, order, &p.Descriptor[i]); err != nil {
			return InterestPoint{}, err
		}
	}
	return p, nil
}

// Write serializes pair to w.
func Write(w io.Writer, pair Pair) error {
	if len(pair.Left) != len(pair.Right) {
		return baerrors.IO(nil, "matchfile: left/right list length mismatch")
	}
	if err := writeList(w, pair.Left); err != nil {
		return errors.Wrap(err, "matchfile: writing left list")
	}
	if err := writeList(w, pair.Right); err != nil {
		return errors.Wrap(err, "matchfile: writing right list")
	}
	return nil
}

// WriteFile serializes pair to a new file at path.
func WriteFile(path string, pair Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return baerrors.IO(err, "matchfile: creating "+path)
	}
	defer f.Close()
	return Write(f, pair)
}

func writeList(w io.Writer, pts []InterestPoint) error {
	if err := binary.Write(w, order, int32(len(pts))); err != nil {
		return err
	}
	for _, p := range pts {
		polarity := int32(0)
		if p.Polarity {
			polarity = 1
		}
		fields := []interface{}{
			p.X, p.Y, p.Ix, p.Iy, p.Orientation, p.Scale, p.Interest,
			polarity, p.Octave, int32(len(p.Descriptor)),
		}
		for _, f := range fields {
			if err := binary.Write(w, order, f); err != nil {
				return err
			}
		}
		for _, d := range p.Descriptor {
			if err := binary.Write(w, order, d); err != nil {
				return err
			}
		}
	}
	return nil
}

// FilterByIndex returns the sub-pair keeping only the indices in keep
// (ascending, as produced by the outlier driver's disparity/residual
// filters), preserving left/right pairing.
func FilterByIndex(pair Pair, keep []int) Pair {
	out := Pair{
		Left:  make([]InterestPoint, len(keep)),
		Right: make([]InterestPoint, len(keep)),
	}
	for i, idx := range keep {
		out.Left[i] = pair.Left[idx]
		out.Right[i] = pair.Right[idx]
	}
	return out
}
