package worldline

import (
	"math"

	Wt "github.com/maroda/worldline/types"
)

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Sample traces a body's helix between two heights.
// The angle is measured relative to centerHeight so large heights
// never feed the trig functions directly.
// Returns 3*(segments+1) floats, or a CurveGenerationError and no points.
func Sample(body Wt.OrbitalBody, startHeight, endHeight, centerHeight float64, segments int) ([]float64, error) {
	if segments <= 0 {
		return nil, &CurveGenerationError{Body: body.Name, Index: -1, Reason: "segments must be > 0"}
	}
	r := body.DistanceFromReference
	if !finite(r) || r <= 0 {
		return nil, &CurveGenerationError{Body: body.Name, Index: -1, Reason: "distance must be finite and > 0"}
	}
	period := body.OrbitalPeriodYears
	if !finite(period) || period <= 0 {
		return nil, &CurveGenerationError{Body: body.Name, Index: -1, Reason: "orbital period must be finite and > 0"}
	}
	if !finite(body.StartAngleRadians) {
		return nil, &CurveGenerationError{Body: body.Name, Index: -1, Reason: "start angle is not finite"}
	}
	if !finite(startHeight) || !finite(endHeight) || !finite(centerHeight) {
		return nil, &CurveGenerationError{Body: body.Name, Index: -1, Reason: "heights must be finite"}
	}
	if endHeight <= startHeight {
		return nil, &CurveGenerationError{Body: body.Name, Index: -1, Reason: "empty span"}
	}

	points := make([]float64, 0, 3*(segments+1))
	span := endHeight - startHeight
	for i := 0; i <= segments; i++ {
		t := float64(i) / float64(segments)
		h := startHeight + span*t
		angle := body.StartAngleRadians - ((h-centerHeight)/HeightPerYear/period)*2*math.Pi

		x := math.Cos(angle) * r
		z := math.Sin(angle) * r
		if !finite(x) || !finite(h) || !finite(z) {
			return nil, &CurveGenerationError{Body: body.Name, Index: i, Reason: "non-finite coordinate"}
		}
		points = append(points, x, h, z)
	}

	return points, nil
}

// SampleForZoom resolves the zoom level's span policy and samples the body
func SampleForZoom(body Wt.OrbitalBody, cfg Wt.ZoomLevelConfig, centerHeight float64) ([]float64, error) {
	policy, err := SpanPolicyLookup(cfg.SpanPolicy)
	if err != nil {
		return nil, &CurveGenerationError{Body: body.Name, Index: -1, Reason: err.Error()}
	}
	start, end := policy.Span(cfg, centerHeight)
	return Sample(body, start, end, centerHeight, cfg.SampleSegments)
}

// PointAt is the world position of a body at one height
func PointAt(body Wt.OrbitalBody, height, centerHeight float64) (Wt.Vec3, error) {
	// a one-segment sample over a tiny span shares all the validation
	pts, err := Sample(body, height, math.Nextafter(height, math.Inf(1)), centerHeight, 1)
	if err != nil {
		return Wt.Vec3{}, err
	}
	return Wt.Vec3{X: pts[0], Y: pts[1], Z: pts[2]}, nil
}
