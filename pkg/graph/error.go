package graph

import "errors"

var (
	// ErrExtraction is returned when entity or relationship extraction fails.
	ErrExtraction = errors.New("graph extraction failed")

	// ErrConnection is returned when the graph backend cannot be reached.
	ErrConnection = errors.New("graph store connection failed")
)
