package nasgraph

import (
	"errors"

	"github.com/brunobiangulo/nasgraph/graph"
)

var (
	// ErrNoCorpus is returned when a build finds no stored chunk records.
	ErrNoCorpus = errors.New("nasgraph: no chunk records to build from")

	// ErrCorpusUnreadable is returned when a record file cannot be read or
	// decoded at all.
	ErrCorpusUnreadable = errors.New("nasgraph: corpus unreadable")

	// ErrNoGraph is returned by queries before the first successful build.
	ErrNoGraph = errors.New("nasgraph: no graph built yet")

	// ErrBuildInProgress is returned when a build is requested while
	// another one is running.
	ErrBuildInProgress = errors.New("nasgraph: build already in progress")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("nasgraph: invalid configuration")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("nasgraph: store is closed")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("nasgraph: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("nasgraph: parsing failed")

	// ErrUnknownState is matched by query errors for states the graph
	// does not hold.
	ErrUnknownState = graph.ErrUnknownState
)
