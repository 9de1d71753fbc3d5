// Package baerrors defines the error taxonomy of the bundle adjustment
// core: configuration errors, I/O errors, and the insufficient-matches
// condition all have distinct sentinel causes so that cmd/bundle_adjust
// can map a failure to the right exit code without string matching.
package baerrors

import "github.com/pkg/errors"

// Sentinel causes. Wrap a lower-level error with errors.Wrap(Err..., "...")
// and recover it later with errors.Cause.
var (
	// ErrConfiguration marks unrecoverable configuration mistakes: unknown
	// cost function, contradictory flags, missing datum when required.
	ErrConfiguration = errors.New("configuration error")

	// ErrIO marks unreadable/unwritable required files: match files, DEM,
	// disparity rasters, malformed initial transforms.
	ErrIO = errors.New("i/o error")

	// ErrInsufficientMatches marks the hard error raised when the number
	// of surviving non-outlier points drops below min_matches between
	// passes. (With fewer than 3 valid pairs the pre-solve aligner is
	// skipped; align.FitSimilarity itself reports ErrConfiguration.)
	ErrInsufficientMatches = errors.New("insufficient surviving matches")

	// ErrTriangulation names a triangulation failure. No package returns
	// it: cnet.Triangulate reports failure as a false flag, and callers
	// drop such points silently.
	ErrTriangulation = errors.New("triangulation failed")
)

// Is reports whether err's cause chain bottoms out at sentinel.
func Is(err error, sentinel error) bool {
	return errors.Cause(err) == sentinel
}

// Config wraps err as a configuration error with additional context. The
// sentinel stays at the bottom of the cause chain regardless of whether
// err is nil, so Is(result, ErrConfiguration) holds either way.
func Config(err error, msg string) error {
	wrapped := errors.Wrap(ErrConfiguration, msg)
	if err == nil {
		return wrapped
	}
	return errors.Wrap(wrapped, err.Error())
}

// IO wraps err as an I/O error with additional context, preserving
// ErrIO at the bottom of the cause chain the same way Config does.
func IO(err error, msg string) error {
	wrapped := errors.Wrap(ErrIO, msg)
	if err == nil {
		return wrapped
	}
	return errors.Wrap(wrapped, err.Error())
}

// InsufficientMatches wraps ErrInsufficientMatches with additional
// context.
func InsufficientMatches(msg string) error {
	return errors.Wrap(ErrInsufficientMatches, msg)
}
