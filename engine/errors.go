package worldline

import (
	"errors"
	"fmt"
)

// ErrSceneUnavailable is surfaced only when every body curve failed in a pass
var ErrSceneUnavailable = errors.New("scene unavailable")

// TemporalInputError is a malformed or non-finite date, hour, or height
type TemporalInputError struct {
	Field  string // which input was rejected
	Value  string // the rejected value, formatted
	Reason string
}

func (e *TemporalInputError) Error() string {
	return fmt.Sprintf("temporal input %s=%s: %s", e.Field, e.Value, e.Reason)
}

// CurveGenerationError is raised when sampling cannot produce finite geometry.
// Index is the offending sample index, or -1 when the inputs were rejected up front.
type CurveGenerationError struct {
	Body   string
	Index  int
	Reason string
}

func (e *CurveGenerationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("curve %q: %s", e.Body, e.Reason)
	}
	return fmt.Sprintf("curve %q at sample %d: %s", e.Body, e.Index, e.Reason)
}

// UnknownZoomLevelError is any level outside the configured table
type UnknownZoomLevelError struct {
	Level int
}

func (e *UnknownZoomLevelError) Error() string {
	return fmt.Sprintf("unknown zoom level %d", e.Level)
}

// Layout conflict reasons
const (
	ConflictUnknownStream = "unknown stream"
	ConflictDuplicateID   = "duplicate event id"
	ConflictLaneOverflow  = "lane overflow"
	ConflictBandOverlap   = "band overlaps a pinned stream"
)

// LayoutConflictError marks an event the layout engine could not place
type LayoutConflictError struct {
	EventID  string
	StreamID string
	Reason   string
}

func (e *LayoutConflictError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("layout conflict in stream %q: %s", e.StreamID, e.Reason)
	}
	return fmt.Sprintf("layout conflict for event %q in stream %q: %s", e.EventID, e.StreamID, e.Reason)
}
