// Package cameralist reads the CLI's camera-list CSV: one row per
// camera naming its model kind and parameters. Spec §1 leaves camera
// and image file formats unspecified ("only the data layouts are
// specified"), so this format is this CLI's own invention, following
// the same encoding/csv + strconv idiom internal/gcp and
// internal/camerapos already use for the spec's own text formats.
//
// Header: id,model,image,fixed,x,y,z,ax,ay,az,fx,fy,cx,cy,k1,k2,p1,p2,k3,k4,k5,k6,omega,phi,kappa,focal
//
// A "pinhole" row uses x/y/z (position), ax/ay/az (axis-angle) and the
// intrinsics columns; a "generic" row uses omega/phi/kappa, x/y/z (as
// the camera center) and focal. Pinhole intrinsics are shared across
// every pinhole camera in the problem (camera.SharedIntrinsics), so only
// the first pinhole row's intrinsics columns are read. The optional
// "image" column names the image file this camera belongs to, letting
// the CLI resolve a GCP file's or camera-position file's image paths
// back to a camera ID.
package cameralist

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/baerrors"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
)

// Parse reads a camera-list CSV from r, returning every camera, the
// image name recorded for each camera ID that has one, and, if any
// pinhole row was present, the shared intrinsics they all point to
// (nil otherwise).
func Parse(r io.Reader) (map[int]camera.Model, map[int]string, *camera.SharedIntrinsics, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1 // trailing optional columns may be omitted per row

	header, err := cr.Read()
	if err != nil {
		return nil, nil, nil, baerrors.IO(err, "cameralist: reading header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{"id", "model"} {
		if _, ok := idx[want]; !ok {
			return nil, nil, nil, baerrors.Config(nil, "cameralist: header missing column "+want)
		}
	}

	cams := map[int]camera.Model{}
	images := map[int]string{}
	var intrinsics *camera.SharedIntrinsics

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, baerrors.IO(err, "cameralist: reading row")
		}
		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		num := func(name string) (float64, error) {
			s := field(name)
			if s == "" {
				return 0, nil
			}
			return strconv.ParseFloat(s, 64)
		}

		id, err := strconv.Atoi(field("id"))
		if err != nil {
			return nil, nil, nil, baerrors.Config(err, "cameralist: invalid id")
		}
		model := field("model")
		fixed := field("fixed") == "true" || field("fixed") == "1"
		if image := field("image"); image != "" {
			images[id] = image
		}

		switch model {
		case "pinhole":
			x, err1 := num("x")
			y, err2 := num("y")
			z, err3 := num("z")
			ax, err4 := num("ax")
			ay, err5 := num("ay")
			az, err6 := num("az")
			if err := firstErr(err1, err2, err3, err4, err5, err6); err != nil {
				return nil, nil, nil, baerrors.Config(err, "cameralist: invalid pinhole extrinsics")
			}
			if intrinsics == nil {
				fx, e1 := num("fx")
				fy, e2 := num("fy")
				cx, e3 := num("cx")
				cy, e4 := num("cy")
				var dist [8]float64
				distErrs := make([]error, 8)
				for i, name := range []string{"k1", "k2", "p1", "p2", "k3", "k4", "k5", "k6"} {
					dist[i], distErrs[i] = num(name)
				}
				if err := firstErr(append([]error{e1, e2, e3, e4}, distErrs...)...); err != nil {
					return nil, nil, nil, baerrors.Config(err, "cameralist: invalid shared intrinsics")
				}
				intrinsics = camera.NewSharedIntrinsics(fx, fy, cx, cy, dist)
			}
			cam := camera.NewPinhole(id, [3]float64{x, y, z}, [3]float64{ax, ay, az}, intrinsics)
			cam.SetFixed(fixed)
			cams[id] = cam

		case "generic":
			omega, err1 := num("omega")
			phi, err2 := num("phi")
			kappa, err3 := num("kappa")
			x, err4 := num("x")
			y, err5 := num("y")
			z, err6 := num("z")
			focal, err7 := num("focal")
			if err := firstErr(err1, err2, err3, err4, err5, err6, err7); err != nil {
				return nil, nil, nil, baerrors.Config(err, "cameralist: invalid generic camera")
			}
			cam := camera.NewGeneric(id, omega, phi, kappa, x, y, z, focal)
			cam.SetFixed(fixed)
			cams[id] = cam

		default:
			return nil, nil, nil, baerrors.Config(nil, "cameralist: unknown model kind "+model)
		}
	}
	return cams, images, intrinsics, nil
}

// ParseFile opens path and parses it as a camera-list CSV.
func ParseFile(path string) (map[int]camera.Model, map[int]string, *camera.SharedIntrinsics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, baerrors.IO(err, "cameralist: opening "+path)
	}
	defer f.Close()
	return Parse(f)
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
