package types

/*

	These are the "immutable" core types of Worldline,
	provided for cross-package use (e.g. Plugins, renderers) and testing.

	There are no functions defined here beyond trivial accessors.
	Constructors and validation live in the engine package.

*/

import "time"

// OrbitalBody is loaded once from the scene and never changes.
// DistanceFromReference and OrbitalPeriodYears must be > 0.
type OrbitalBody struct {
	Name                  string  `json:"name"`
	DistanceFromReference float64 `json:"distance"`   // orbit radius around the star
	OrbitalPeriodYears    float64 `json:"period"`     // one revolution, in years
	StartAngleRadians     float64 `json:"startAngle"` // angle at the reference instant
	Color                 string  `json:"color"`      // hex color hint for the renderer
}

// Focus is the camera's focal reference for a zoom level
type Focus int

const (
	FocusStar          Focus = iota // camera follows the star axis
	FocusReferenceBody              // camera follows the reference body
)

func (f Focus) String() string {
	switch f {
	case FocusStar:
		return "star"
	case FocusReferenceBody:
		return "reference"
	default:
		return "unknown"
	}
}

// ZoomLevelConfig describes one of the nine discrete time scales.
// TimeSpanYears strictly decreases as Level increases.
type ZoomLevelConfig struct {
	Level           int     `json:"level"`
	Name            string  `json:"name"`
	TimeSpanYears   float64 `json:"timeSpanYears"`
	SampleSegments  int     `json:"sampleSegments"`
	Focus           Focus   `json:"focus"`
	SpanPolicy      string  `json:"spanPolicy"`
	ExtensionFactor float64 `json:"extensionFactor"` // only read by the extended-window policy
}

// TemporalPosition is the projection of one instant for one body.
// AngleRadians is always within [0, 2π).
type TemporalPosition struct {
	Height       float64 `json:"height"`
	AngleRadians float64 `json:"angle"`
}

// NormalizedEvent is supplied by the calendar/data layer and is read-only here.
// EndTime is nil for point events; otherwise EndTime >= StartTime.
type NormalizedEvent struct {
	ID        string     `json:"id"`
	StreamID  string     `json:"streamId"`
	Title     string     `json:"title,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	ColorHint string     `json:"colorHint,omitempty"`
}

// IsPoint reports whether the event has no duration
func (e NormalizedEvent) IsPoint() bool {
	return e.EndTime == nil || e.EndTime.Equal(e.StartTime)
}

// Stream is a layering lane, e.g. one calendar.
// BaseRadiusOffset of 0 lets the layout engine assign the band.
type Stream struct {
	ID               string  `json:"id"`
	Color            string  `json:"color"`
	BaseRadiusOffset float64 `json:"baseRadiusOffset"`
	Visible          bool    `json:"visible"`
}

// EventPlacement is the collision-free position of one event
type EventPlacement struct {
	Event       NormalizedEvent `json:"event"`
	StreamIndex int             `json:"streamIndex"`
	Lane        int             `json:"lane"` // stacking lane inside the stream band
	Radius      float64         `json:"radius"`
	StartHeight float64         `json:"startHeight"`
	EndHeight   float64         `json:"endHeight"`
}

// PrimitiveKind tags a RenderPrimitive for the rendering backend
type PrimitiveKind int

const (
	Curve PrimitiveKind = iota
	Marker
)

func (k PrimitiveKind) String() string {
	switch k {
	case Curve:
		return "curve"
	case Marker:
		return "marker"
	default:
		return "unknown"
	}
}

// RenderPrimitive is the only artifact handed to a renderer.
// Points is flat world-space xyz, len(Points) == 3*n.
// Created fresh on every recompute pass, never mutated in place.
type RenderPrimitive struct {
	Kind     PrimitiveKind `json:"kind"`
	SourceID string        `json:"source"` // body name or event id
	Points   []float64     `json:"points"`
	Color    string        `json:"color"`
	Opacity  float64       `json:"opacity"`
}

// Vec3 is a world-space point
type Vec3 struct {
	X, Y, Z float64
}
