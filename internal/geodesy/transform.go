package geodesy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
)

// RigidTransform is a scale + rotation + translation similarity, applied
// to ECEF points as p' = s*R*p + t.
type RigidTransform struct {
	Scale       float64
	Rotation    *mat.Dense // 3x3
	Translation *mat.VecDense
}

// Identity returns the no-op transform.
func Identity() RigidTransform {
	return RigidTransform{Scale: 1, Rotation: eye3(), Translation: mat.NewVecDense(3, nil)}
}

func eye3() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	m.Set(0, 0, 1)
	m.Set(1, 1, 1)
	m.Set(2, 2, 1)
	return m
}

// Apply maps p to s*R*p + t.
func (t RigidTransform) Apply(p mat.Vector) *mat.VecDense {
	var rp mat.VecDense
	rp.MulVec(t.Rotation, p)
	rp.ScaleVec(t.Scale, &rp)
	rp.AddVec(&rp, t.Translation)
	return &rp
}

// AsMatrix4x4 returns the homogeneous 4x4 row-major matrix form used by
// the initial-transform file format.
func (t RigidTransform) AsMatrix4x4() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.Set(r, c, t.Scale*t.Rotation.At(r, c))
		}
		m.Set(r, 3, t.Translation.AtVec(r))
	}
	m.Set(3, 3, 1)
	return m
}

// ReadInitialTransform parses the whitespace-separated 4x4 row-major
// matrix file described in spec §6 and decomposes it into a
// RigidTransform (scale extracted as the cube root of the rotation
// block's determinant, matching the convention that pure rotation blocks
// have determinant 1).
func ReadInitialTransform(path string) (RigidTransform, error) {
	f, err := os.Open(path)
	if err != nil {
		return RigidTransform{}, baerrors.IO(err, "opening initial transform file")
	}
	defer f.Close()

	vals := make([]float64, 0, 16)
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		v, perr := strconv.ParseFloat(sc.Text(), 64)
		if perr != nil {
			return RigidTransform{}, baerrors.IO(perr, "parsing initial transform value")
		}
		vals = append(vals, v)
	}
	if err := sc.Err(); err != nil {
		return RigidTransform{}, baerrors.IO(err, "reading initial transform file")
	}
	if len(vals) != 16 {
		return RigidTransform{}, baerrors.Config(nil, fmt.Sprintf("initial transform file must contain 16 values, got %d", len(vals)))
	}

	m := mat.NewDense(4, 4, vals)
	block := mat.DenseCopyOf(m.Slice(0, 3, 0, 3))

	scale := cubeRootDet3(block)
	rot := mat.NewDense(3, 3, nil)
	rot.Scale(1/scale, block)

	trans := mat.NewVecDense(3, []float64{m.At(0, 3), m.At(1, 3), m.At(2, 3)})

	return RigidTransform{Scale: scale, Rotation: rot, Translation: trans}, nil
}

func cubeRootDet3(m *mat.Dense) float64 {
	det := mat.Det(m)
	if det <= 0 {
		return 1
	}
	// scale^3 * det(R) = det(block), det(R) == 1 for a rotation.
	return cbrt(det)
}

func cbrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	sign := 1.0
	if x < 0 {
		sign = -1
		x = -x
	}
	// Newton's method, a handful of iterations is plenty for this use.
	y := x
	for i := 0; i < 30; i++ {
		y = y - (y*y*y-x)/(3*y*y)
	}
	return sign * y
}

// WriteInitialTransform writes t in the same row-major whitespace format.
func WriteInitialTransform(w io.Writer, t RigidTransform) error {
	m := t.AsMatrix4x4()
	var sb strings.Builder
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if c > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.FormatFloat(m.At(r, c), 'g', -1, 64))
		}
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
