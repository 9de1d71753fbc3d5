package residual

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// WriteFiles writes the five text-file families of spec §4.3, each
// named {prefix}_{suffix}_{family}.txt, where family is averages,
// raw_pixels, raw_gcp, raw_cameras or reference_terrain, and suffix is
// chosen by the caller per invocation (e.g. "initial_no_loss_function").
func (r Report) WriteFiles(prefix, suffix string) error {
	writers := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{"_averages.txt", r.writeAverages},
		{"_raw_pixels.txt", r.writeRawPixels},
		{"_raw_gcp.txt", r.writeRawGCP},
		{"_raw_cameras.txt", r.writeRawCameras},
		{"_reference_terrain.txt", r.writeReferenceTerrain},
	}
	for _, w := range writers {
		path := prefix + "_" + suffix + w.name
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = w.fn(f)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (r Report) writeAverages(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "camera mean_pixel_error num_observations"); err != nil {
		return err
	}
	for _, cam := range sortedKeys(r.PerCameraMean) {
		if _, err := fmt.Fprintf(w, "%d %.6f %d\n", cam, r.PerCameraMean[cam], r.PerCameraCount[cam]); err != nil {
			return err
		}
	}
	return nil
}

func (r Report) writeRawPixels(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "point mean_pixel_error num_observations"); err != nil {
		return err
	}
	for _, pt := range sortedKeys(r.PerPointMean) {
		if _, err := fmt.Fprintf(w, "%d %.6f %d\n", pt, r.PerPointMean[pt], r.PerPointObservations[pt]); err != nil {
			return err
		}
	}
	return nil
}

func (r Report) writeRawGCP(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "gcp dx dy dz"); err != nil {
		return err
	}
	ids := make([]int, 0, len(r.PerGCPError))
	for id := range r.PerGCPError {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		e := r.PerGCPError[id]
		if _, err := fmt.Fprintf(w, "%d %.6f %.6f %.6f\n", id, e[0], e[1], e[2]); err != nil {
			return err
		}
	}
	return nil
}

func (r Report) writeRawCameras(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "camera tx ty tz rx ry rz"); err != nil {
		return err
	}
	ids := make([]int, 0, len(r.CameraPrior))
	for id := range r.CameraPrior {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		h := r.CameraPrior[id]
		if _, err := fmt.Fprintf(w, "%d %.6f %.6f %.6f %.6f %.6f %.6f\n", id,
			h.Translation[0], h.Translation[1], h.Translation[2],
			h.Rotation[0], h.Rotation[1], h.Rotation[2]); err != nil {
			return err
		}
	}
	return nil
}

func (r Report) writeReferenceTerrain(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "reference_terrain_point error_norm"); err != nil {
		return err
	}
	for i, n := range r.ReferenceTerrainNorm {
		if _, err := fmt.Fprintf(w, "%d %.6f\n", i, n); err != nil {
			return err
		}
	}
	return nil
}
