package worldline_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	Wd "github.com/maroda/worldline/display"
	We "github.com/maroda/worldline/engine"
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

func assertStatus(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct status, got %d, want %d", got, want)
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

var cursor = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

// makeTestScene is the default solar system plus one stream with one event
func makeTestScene() *We.Scene {
	scene := We.DefaultScene()
	end := cursor.Add(2 * time.Hour)
	scene.Streams = []Wt.Stream{{ID: "work", Color: "#ff0000", Visible: true}}
	scene.Events = []Wt.NormalizedEvent{
		{ID: "standup", StreamID: "work", StartTime: cursor.Add(-time.Hour), EndTime: &end},
	}
	return scene
}

func makeTestView(t *testing.T) *Wd.View {
	t.Helper()
	view, err := Wd.NewView(makeTestScene(), nil)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	view.Coord.Now = func() time.Time { return cursor }
	assertError(t, view.Coord.SetTimeCursor(cursor), nil)
	return view
}

func mkTestScreen(t *testing.T, charset string) tcell.SimulationScreen {
	s := tcell.NewSimulationScreen(charset)
	if s == nil {
		t.Fatalf("Failed to get SimulationScreen")
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	return s
}

// screenRow reads one row of the simulation screen back as text
func screenRow(s tcell.SimulationScreen, row int) string {
	cells, width, _ := s.GetContents()
	var sb strings.Builder
	for col := 0; col < width; col++ {
		c := cells[row*width+col]
		if len(c.Runes) == 0 {
			sb.WriteRune(' ')
			continue
		}
		sb.WriteRune(c.Runes[0])
	}
	return sb.String()
}

// eventually polls cond until it holds or the deadline passes
func eventually(t *testing.T, within time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
