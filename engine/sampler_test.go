package worldline_test

import (
	"errors"
	"math"
	"testing"

	We "github.com/maroda/worldline/engine"
	Wt "github.com/maroda/worldline/types"
)

func TestSample(t *testing.T) {
	t.Run("Returns segments+1 points", func(t *testing.T) {
		pts, err := We.Sample(earth(), 2500, 2600, 2550, 360)
		assertError(t, err, nil)
		assertInt(t, len(pts), 3*361)
		assertFinite(t, pts)
	})

	t.Run("Runs from start to end height", func(t *testing.T) {
		pts, _ := We.Sample(earth(), 2500, 2600, 2550, 10)
		assertFloat(t, pts[1], 2500, 1e-9)
		assertFloat(t, pts[len(pts)-2], 2600, 1e-9)
	})

	t.Run("Keeps every point on the orbit radius", func(t *testing.T) {
		pts, _ := We.Sample(mars(), -300, 300, 0, 500)
		for i := 0; i < len(pts); i += 3 {
			r := math.Hypot(pts[i], pts[i+2])
			assertFloat(t, r, 76, 1e-9)
		}
	})

	t.Run("Uses the start angle at the centre height", func(t *testing.T) {
		body := earth()
		body.StartAngleRadians = math.Pi / 2
		pts, _ := We.Sample(body, 1000, 1100, 1000, 4)
		assertFloat(t, pts[0], 0, 1e-9)
		assertFloat(t, pts[2], 50, 1e-9)
	})

	t.Run("Completes one turn per period", func(t *testing.T) {
		pts, _ := We.Sample(earth(), 0, 100, 0, 4)
		assertFloat(t, pts[0], pts[len(pts)-3], 1e-9)
		assertFloat(t, pts[2], pts[len(pts)-1], 1e-9)
	})

	t.Run("Stays finite at large heights", func(t *testing.T) {
		pts, err := We.Sample(earth(), 799_000, 799_100, 799_050, 64)
		assertError(t, err, nil)
		assertFinite(t, pts)
	})

	tests := []struct {
		name     string
		body     Wt.OrbitalBody
		start    float64
		end      float64
		segments int
	}{
		{"zero period", Wt.OrbitalBody{Name: "p0", DistanceFromReference: 50, OrbitalPeriodYears: 0}, 0, 100, 10},
		{"negative period", Wt.OrbitalBody{Name: "pn", DistanceFromReference: 50, OrbitalPeriodYears: -1}, 0, 100, 10},
		{"NaN distance", Wt.OrbitalBody{Name: "dn", DistanceFromReference: math.NaN(), OrbitalPeriodYears: 1}, 0, 100, 10},
		{"zero distance", Wt.OrbitalBody{Name: "d0", DistanceFromReference: 0, OrbitalPeriodYears: 1}, 0, 100, 10},
		{"infinite start angle", Wt.OrbitalBody{Name: "ai", DistanceFromReference: 50, OrbitalPeriodYears: 1, StartAngleRadians: math.Inf(1)}, 0, 100, 10},
		{"zero segments", earth(), 0, 100, 0},
		{"empty span", earth(), 100, 100, 10},
		{"reversed span", earth(), 100, 0, 10},
		{"NaN height", earth(), math.NaN(), 100, 10},
	}
	for _, tt := range tests {
		t.Run("Rejects "+tt.name, func(t *testing.T) {
			pts, err := We.Sample(tt.body, tt.start, tt.end, 0, tt.segments)
			var cge *We.CurveGenerationError
			if !errors.As(err, &cge) {
				t.Fatalf("expected CurveGenerationError, got %v", err)
			}
			if pts != nil {
				t.Errorf("expected no points with an error, got %d", len(pts))
			}
			assertInt(t, cge.Index, -1)
		})
	}
}

func TestSampleForZoom(t *testing.T) {
	table := We.DefaultZoomLevelTable()
	for _, cfg := range table.Levels() {
		pts, err := We.SampleForZoom(earth(), cfg, 2545)
		assertError(t, err, nil)
		assertInt(t, len(pts), 3*(cfg.SampleSegments+1))
		assertFinite(t, pts)
	}

	t.Run("Unknown policy is a curve error", func(t *testing.T) {
		_, err := We.SampleForZoom(earth(), Wt.ZoomLevelConfig{Level: 1, TimeSpanYears: 1, SampleSegments: 4, SpanPolicy: "nope"}, 0)
		var cge *We.CurveGenerationError
		if !errors.As(err, &cge) {
			t.Errorf("expected CurveGenerationError, got %v", err)
		}
	})
}

func TestPointAt(t *testing.T) {
	p, err := We.PointAt(earth(), 2500, 2500)
	assertError(t, err, nil)
	assertFloat(t, p.X, 50, 1e-9)
	assertFloat(t, p.Y, 2500, 1e-9)
	assertFloat(t, p.Z, 0, 1e-9)

	_, err = We.PointAt(Wt.OrbitalBody{Name: "bad", DistanceFromReference: 1}, 0, 0)
	assertGotError(t, err)
}
