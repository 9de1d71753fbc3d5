package camera

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// Adjustment is the per-camera warm-start/output record of spec §6:
// a translation and a quaternion.
type Adjustment struct {
	Translation [3]float64
	Quaternion  [4]float64 // w, x, y, z
}

// ReadAdjustment parses "{prefix}{index}.adjust" style files: two lines,
// "tx ty tz" then "qw qx qy qz".
func ReadAdjustment(path string) (Adjustment, error) {
	f, err := os.Open(path)
	if err != nil {
		return Adjustment{}, baerrors.IO(err, "opening adjustment file")
	}
	defer f.Close()

	var a Adjustment
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return Adjustment{}, baerrors.Config(nil, "adjustment file missing translation line")
	}
	if _, err := fmt.Sscan(sc.Text(), &a.Translation[0], &a.Translation[1], &a.Translation[2]); err != nil {
		return Adjustment{}, baerrors.IO(err, "parsing adjustment translation")
	}
	if !sc.Scan() {
		return Adjustment{}, baerrors.Config(nil, "adjustment file missing quaternion line")
	}
	if _, err := fmt.Sscan(sc.Text(), &a.Quaternion[0], &a.Quaternion[1], &a.Quaternion[2], &a.Quaternion[3]); err != nil {
		return Adjustment{}, baerrors.IO(err, "parsing adjustment quaternion")
	}
	return a, sc.Err()
}

// WriteAdjustment writes a in the same two-line format.
func WriteAdjustment(w io.Writer, a Adjustment) error {
	_, err := fmt.Fprintf(w, "%g %g %g\n%g %g %g %g\n",
		a.Translation[0], a.Translation[1], a.Translation[2],
		a.Quaternion[0], a.Quaternion[1], a.Quaternion[2], a.Quaternion[3])
	return err
}

// QuaternionToAxisAngle converts a (w,x,y,z) quaternion to the axis-angle
// vector used by Pinhole's extrinsics block.
func QuaternionToAxisAngle(q [4]float64) [3]float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	n := mat.Norm(mat.NewVecDense(4, []float64{w, x, y, z}), 2)
	if n == 0 {
		return [3]float64{}
	}
	w, x, y, z = w/n, x/n, y/n, z/n

	angle := 2 * acosClamped(w)
	s := mat.Norm(mat.NewVecDense(3, []float64{x, y, z}), 2)
	if s < 1e-12 {
		return [3]float64{}
	}
	return [3]float64{x / s * angle, y / s * angle, z / s * angle}
}

func acosClamped(v float64) float64 {
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return math.Acos(v)
}
