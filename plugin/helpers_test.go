package plugin_test

import (
	"errors"
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

func assertStringContains(t testing.TB, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q, expected string contains %q", want, full)
	}
}

func assertIDs(t testing.TB, events []*Wt.NormalizedEvent, want ...string) {
	t.Helper()
	got := make([]string, 0, len(events))
	for _, ev := range events {
		got = append(got, ev.ID)
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got events %v, want %v", got, want)
	}
}

var base = time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

// testEvents are three events in start order, one of them ranged
func testEvents() []*Wt.NormalizedEvent {
	return []*Wt.NormalizedEvent{
		{ID: "standup", StreamID: "work", StartTime: base, EndTime: ptr(base.Add(15 * time.Minute))},
		{ID: "lunch", StreamID: "home", StartTime: base.Add(3 * time.Hour), ColorHint: "#00ff00"},
		{ID: "review", StreamID: "work", StartTime: base.Add(5 * time.Hour), EndTime: ptr(base.Add(7 * time.Hour))},
	}
}
