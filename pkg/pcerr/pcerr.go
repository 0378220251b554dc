// Package pcerr collects the sentinel errors the registration pipeline
// returns, so callers can classify a failure with errors.Is instead of
// string-matching a termination reason.
package pcerr

import "errors"

var (
	// ErrEmptyCloud is returned when an operation is given a point cloud
	// with zero points.
	ErrEmptyCloud = errors.New("pcreg: empty point cloud")

	// ErrInsufficientNeighbors is returned when a neighborhood has fewer
	// points than an operation needs (e.g. fewer than 3 for a normal).
	ErrInsufficientNeighbors = errors.New("pcreg: insufficient neighbors")

	// ErrInsufficientCorrespondences is returned when a coarse
	// registrator has fewer correspondences than its minimal sample size.
	ErrInsufficientCorrespondences = errors.New("pcreg: insufficient correspondences")

	// ErrMissingNormals is returned when a plane-based operation is given
	// a target cloud without normals.
	ErrMissingNormals = errors.New("pcreg: target cloud has no normals")

	// ErrUnknownAlgorithm is returned when a pipeline stage is asked to
	// dispatch to an algorithm name it does not recognize.
	ErrUnknownAlgorithm = errors.New("pcreg: unknown algorithm")

	// ErrInvalidConfig is returned when Config.Validate finds a
	// parameter outside its valid range.
	ErrInvalidConfig = errors.New("pcreg: invalid configuration")
)
