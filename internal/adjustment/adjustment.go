// Package adjustment reads and writes the per-camera adjustment file of
// spec §6: two lines of whitespace-separated doubles, translation then a
// w-first quaternion. Camera extrinsics are stored as axis-angle
// rotations internally (camera.Pinhole/Generic), so this package also
// carries the axis-angle <-> quaternion conversion the file format
// needs at its boundary.
package adjustment

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// Adjustment is one camera's warm-start or final pose.
type Adjustment struct {
	Translation [3]float64
	Quat        [4]float64 // w, x, y, z
}

// AxisAngleToQuaternion converts a Rodrigues axis-angle rotation vector
// to a w-first unit quaternion.
func AxisAngleToQuaternion(aa [3]float64) [4]float64 {
	theta := math.Sqrt(aa[0]*aa[0] + aa[1]*aa[1] + aa[2]*aa[2])
	if theta < 1e-12 {
		return [4]float64{1, 0, 0, 0}
	}
	half := theta / 2
	s := math.Sin(half) / theta
	return [4]float64{math.Cos(half), aa[0] * s, aa[1] * s, aa[2] * s}
}

// QuaternionToAxisAngle converts a w-first unit quaternion back to a
// Rodrigues axis-angle vector.
func QuaternionToAxisAngle(q [4]float64) [3]float64 {
	w := q[0]
	if w > 1 {
		w = 1
	} else if w < -1 {
		w = -1
	}
	theta := 2 * math.Acos(w)
	s := math.Sqrt(1 - w*w)
	if s < 1e-12 {
		return [3]float64{0, 0, 0}
	}
	return [3]float64{q[1] / s * theta, q[2] / s * theta, q[3] / s * theta}
}

// FromExtrinsics builds an Adjustment from a Pinhole/Generic-style
// position + axis-angle pair.
func FromExtrinsics(position, axisAngle [3]float64) Adjustment {
	return Adjustment{Translation: position, Quat: AxisAngleToQuaternion(axisAngle)}
}

// ToExtrinsics recovers the position + axis-angle pair.
func (a Adjustment) ToExtrinsics() (position, axisAngle [3]float64) {
	return a.Translation, QuaternionToAxisAngle(a.Quat)
}

// Read parses a two-line adjustment file from r.
func Read(r io.Reader) (Adjustment, error) {
	scanner := bufio.NewScanner(r)
	lines := make([]string, 0, 2)
	for scanner.Scan() && len(lines) < 2 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return Adjustment{}, baerrors.IO(err, "adjustment: scanning")
	}
	if len(lines) != 2 {
		return Adjustment{}, baerrors.IO(nil, "adjustment: expected 2 non-blank lines")
	}

	var a Adjustment
	t, err := parseFloats(lines[0], 3)
	if err != nil {
		return Adjustment{}, err
	}
	copy(a.Translation[:], t)

	q, err := parseFloats(lines[1], 4)
	if err != nil {
		return Adjustment{}, err
	}
	copy(a.Quat[:], q)
	return a, nil
}

// ReadFile opens path and parses it as an adjustment file.
func ReadFile(path string) (Adjustment, error) {
	f, err := os.Open(path)
	if err != nil {
		return Adjustment{}, baerrors.IO(err, "adjustment: opening "+path)
	}
	defer f.Close()
	return Read(f)
}

// Write serializes a to w.
func Write(w io.Writer, a Adjustment) error {
	if _, err := fmt.Fprintf(w, "%.17g %.17g %.17g\n", a.Translation[0], a.Translation[1], a.Translation[2]); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%.17g %.17g %.17g %.17g\n", a.Quat[0], a.Quat[1], a.Quat[2], a.Quat[3])
	return err
}

// WriteFile serializes a to a new file at path.
func WriteFile(path string, a Adjustment) error {
	f, err := os.Create(path)
	if err != nil {
		return baerrors.IO(err, "adjustment: creating "+path)
	}
	defer f.Close()
	return Write(f, a)
}

func parseFloats(line string, n int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) != n {
		return nil, baerrors.IO(nil, "adjustment: expected "+strconv.Itoa(n)+" fields, got "+strconv.Itoa(len(fields)))
	}
	out := make([]float64, n)
	var err error
	for i, f := range fields {
		if out[i], err = strconv.ParseFloat(f, 64); err != nil {
			return nil, err
		}
	}
	return out, nil
}
