package worldline_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	Wt "github.com/maroda/worldline/types"
)

/// Helpers

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q want %q", got, want)
	}
}

func assertGotError(t testing.TB, got error) {
	t.Helper()
	if got == nil {
		t.Errorf("Expected an error but got %q", got)
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertFloat(t testing.TB, got, want, tolerance float64) {
	t.Helper()
	if math.Abs(got-want) > tolerance {
		t.Errorf("did not get correct value, got %v, want %v (±%v)", got, want, tolerance)
	}
}

func assertString(t testing.TB, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct string, got %q, want %q", got, want)
	}
}

func assertStringContains(t testing.TB, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q, expected string contains %q", want, full)
	}
}

func assertFinite(t testing.TB, points []float64) {
	t.Helper()
	for i, p := range points {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("point component %d is not finite: %v", i, p)
		}
	}
}

func earth() Wt.OrbitalBody {
	return Wt.OrbitalBody{Name: "earth", DistanceFromReference: 50, OrbitalPeriodYears: 1.0, StartAngleRadians: 0, Color: "#4f9dde"}
}

func mars() Wt.OrbitalBody {
	return Wt.OrbitalBody{Name: "mars", DistanceFromReference: 76, OrbitalPeriodYears: 1.8808, StartAngleRadians: 6.2, Color: "#d1603d"}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

// sceneEvents is one good event followed by one of each rejection
func sceneEvents() []Wt.NormalizedEvent {
	ts := at(2025, time.June, 15, 9, 0)
	return []Wt.NormalizedEvent{
		{ID: "ok", StreamID: "work", StartTime: ts},
		{ID: "", StreamID: "work", StartTime: ts},
		{ID: "nostream", StartTime: ts},
		{ID: "ancient", StreamID: "work", StartTime: time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "backwards", StreamID: "work", StartTime: ts, EndTime: ptr(ts.Add(-time.Minute))},
	}
}
