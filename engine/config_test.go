package worldline_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	We "github.com/maroda/worldline/engine"
)

const sceneYAML = `
epoch: 2000
reference: earth
bodies:
  - name: earth
    distance: 50
    period: 1.0
    color: "#4f9dde"
  - name: mars
    distance: 76
    period: 1.8808
    start_angle: 6.2
streams:
  - id: work
    color: "#ff0000"
  - id: home
    visible: false
events:
  - id: standup
    stream: work
    start: "2025-06-15T10:00:00Z"
    end: "2025-06-15T10:15:00Z"
  - stream: home
    title: dinner
    start: "2025-06-15 19:00"
  - id: broken
    stream: work
    start: "yesterday"
zoom:
  - level: 9
    name: hourly
    span_years: 0.0001
layout:
  stack_increment: 0.5
  point_epsilon: 5m
`

const sceneTOML = `
epoch = 2000
reference = "earth"

[[bodies]]
name = "earth"
distance = 50.0
period = 1.0

[[streams]]
id = "work"

[[events]]
id = "standup"
stream = "work"
start = "2025-06-15T10:00:00Z"
`

const sceneJSON = `{
  "reference": "earth",
  "bodies": [{"name": "earth", "distance": 50, "period": 1}],
  "streams": [{"id": "work", "offset": 20}],
  "events": [{"id": "standup", "stream": "work", "start": "2025-06-15"}]
}`

func writeScene(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSceneFile(t *testing.T) {
	t.Run("Loads YAML", func(t *testing.T) {
		scene, err := We.LoadSceneFile(writeScene(t, "scene.yaml", sceneYAML))
		assertError(t, err, nil)

		assertInt(t, scene.EpochYear, 2000)
		assertString(t, scene.Reference, "earth")
		assertInt(t, len(scene.Bodies), 2)
		assertFloat(t, scene.Bodies[1].StartAngleRadians, 6.2, 0)

		assertInt(t, len(scene.Streams), 2)
		if !scene.Streams[0].Visible {
			t.Error("stream visibility should default to true")
		}
		if scene.Streams[1].Visible {
			t.Error("explicit visible: false was ignored")
		}

		// broken start is skipped
		assertInt(t, len(scene.Events), 2)
		assertString(t, scene.Events[1].ID, We.EventID("home", "dinner", "2025-06-15 19:00"))
		if !scene.Events[1].IsPoint() {
			t.Error("event without end should be a point")
		}

		cfg, err := scene.Zoom.Get(9)
		assertError(t, err, nil)
		assertString(t, cfg.Name, "hourly")
		assertFloat(t, cfg.TimeSpanYears, 0.0001, 0)

		assertFloat(t, scene.Layout.StackIncrement, 0.5, 0)
		if scene.Layout.PointEpsilon != 5*time.Minute {
			t.Errorf("point epsilon = %v", scene.Layout.PointEpsilon)
		}
	})

	t.Run("Loads TOML", func(t *testing.T) {
		scene, err := We.LoadSceneFile(writeScene(t, "scene.toml", sceneTOML))
		assertError(t, err, nil)
		assertInt(t, len(scene.Events), 1)
		assertString(t, scene.Events[0].StreamID, "work")
	})

	t.Run("Loads JSON with defaults", func(t *testing.T) {
		scene, err := We.LoadSceneFile(writeScene(t, "scene.json", sceneJSON))
		assertError(t, err, nil)
		assertInt(t, scene.EpochYear, We.DefaultEpochYear)
		assertFloat(t, scene.Streams[0].BaseRadiusOffset, 20, 0)
		if !scene.Events[0].StartTime.Equal(day(2025, time.June, 15)) {
			t.Errorf("start = %v", scene.Events[0].StartTime)
		}
	})

	t.Run("Rejects empty files", func(t *testing.T) {
		_, err := We.LoadSceneFile(writeScene(t, "empty.yaml", ""))
		assertGotError(t, err)
		assertStringContains(t, err.Error(), "empty")
	})

	t.Run("Rejects missing files", func(t *testing.T) {
		_, err := We.LoadSceneFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("got %v, want not-exist", err)
		}
	})

	t.Run("Rejects directories", func(t *testing.T) {
		_, err := We.LoadSceneFile(t.TempDir())
		assertGotError(t, err)
	})

	t.Run("Rejects unknown formats", func(t *testing.T) {
		_, err := We.LoadSceneFile(writeScene(t, "scene.ini", "epoch=2000"))
		assertGotError(t, err)
		assertStringContains(t, err.Error(), "unsupported")
	})

	t.Run("Rejects unknown fields", func(t *testing.T) {
		for name, content := range map[string]string{
			"scene.yaml": "bodies: []\nplanets: 3\n",
			"scene.toml": "planets = 3\n",
			"scene.json": `{"planets": 3}`,
		} {
			if _, err := We.LoadSceneFile(writeScene(t, name, content)); err == nil {
				t.Errorf("%s: expected an error", name)
			}
		}
	})
}

func TestSceneFile_Validate(t *testing.T) {
	cases := []struct {
		name string
		edit func(sf *We.SceneFile)
		want string
	}{
		{"no bodies", func(sf *We.SceneFile) { sf.Bodies = nil }, "bodies"},
		{"empty body name", func(sf *We.SceneFile) { sf.Bodies[0].Name = "" }, "empty name"},
		{"duplicate body", func(sf *We.SceneFile) { sf.Bodies[1].Name = sf.Bodies[0].Name }, "twice"},
		{"zero period", func(sf *We.SceneFile) { sf.Bodies[0].Period = 0 }, "period"},
		{"zero distance", func(sf *We.SceneFile) { sf.Bodies[0].Distance = 0 }, "distance"},
		{"missing reference", func(sf *We.SceneFile) { sf.Reference = "pluto" }, "pluto"},
		{"bad epoch", func(sf *We.SceneFile) { sf.Epoch = 12000 }, "epoch"},
		{"duplicate stream", func(sf *We.SceneFile) {
			sf.Streams = []We.StreamEntry{{ID: "work"}, {ID: "work"}}
		}, "twice"},
		{"negative offset", func(sf *We.SceneFile) { sf.Streams = []We.StreamEntry{{ID: "work", Offset: -1}} }, "offset"},
		{"overlapping offsets", func(sf *We.SceneFile) {
			sf.Streams = []We.StreamEntry{{ID: "work", Offset: 20}, {ID: "home"}, {ID: "gym", Offset: 25}}
		}, "overlaps the band of stream work"},
		{"offsets inside a wider band", func(sf *We.SceneFile) {
			sf.Layout.RadiusIncrement = 30
			sf.Streams = []We.StreamEntry{{ID: "work", Offset: 20}, {ID: "gym", Offset: 45}}
		}, "overlaps"},
		{"zoom level", func(sf *We.SceneFile) { sf.Zoom = []We.ZoomEntry{{Level: 12}} }, "12"},
		{"zoom focus", func(sf *We.SceneFile) { sf.Zoom = []We.ZoomEntry{{Level: 2, Focus: "moon"}} }, "focus"},
		{"point epsilon", func(sf *We.SceneFile) { sf.Layout.PointEpsilon = "soon" }, "point_epsilon"},
		{"negative layout", func(sf *We.SceneFile) { sf.Layout.StackIncrement = -1 }, "layout"},
	}

	for _, tc := range cases {
		t.Run("Rejects "+tc.name, func(t *testing.T) {
			sf := We.DefaultSceneFile()
			tc.edit(sf)
			err := sf.Validate()
			assertGotError(t, err)
			if err != nil {
				assertStringContains(t, err.Error(), tc.want)
			}
		})
	}

	t.Run("Default scene is valid", func(t *testing.T) {
		assertError(t, We.DefaultSceneFile().Validate(), nil)
		scene := We.DefaultScene()
		ref, ok := scene.ReferenceBody()
		if !ok {
			t.Fatal("default scene has no reference body")
		}
		assertString(t, ref.Name, "earth")
	})

	t.Run("Accepts pinned offsets a band apart", func(t *testing.T) {
		sf := We.DefaultSceneFile()
		sf.Streams = []We.StreamEntry{{ID: "work", Offset: 20}, {ID: "home"}, {ID: "gym", Offset: 30}}
		assertError(t, sf.Validate(), nil)
	})

	t.Run("Zoom overrides must keep spans decreasing", func(t *testing.T) {
		sf := We.DefaultSceneFile()
		sf.Zoom = []We.ZoomEntry{{Level: 5, SpanYears: 50}}
		_, err := sf.Scene()
		assertGotError(t, err)
	})

	t.Run("Reference defaults to the first body", func(t *testing.T) {
		sf := We.DefaultSceneFile()
		sf.Reference = ""
		scene, err := sf.Scene()
		assertError(t, err, nil)
		assertString(t, scene.Reference, "mercury")
	})
}

func TestParseTime(t *testing.T) {
	want := at(2025, time.June, 15, 19, 0)
	for _, in := range []string{
		"2025-06-15T19:00:00Z",
		"2025-06-15T21:00:00+02:00",
		"2025-06-15T19:00",
		"2025-06-15 19:00",
		" 2025-06-15 19:00:00 ",
	} {
		got, err := We.ParseTime(in)
		assertError(t, err, nil)
		if !got.Equal(want) {
			t.Errorf("%q parsed to %v, want %v", in, got, want)
		}
		if got.Location() != time.UTC {
			t.Errorf("%q not in UTC", in)
		}
	}

	_, err := We.ParseTime("next tuesday")
	var tie *We.TemporalInputError
	if !errors.As(err, &tie) {
		t.Errorf("got %v, want TemporalInputError", err)
	}
}

func TestEventID(t *testing.T) {
	a := We.EventID("work", "standup", "2025-06-15")
	assertString(t, We.EventID("work", "standup", "2025-06-15"), a)
	if We.EventID("home", "standup", "2025-06-15") == a {
		t.Error("different streams produced the same id")
	}
	// stream/title boundaries must not blur
	if We.EventID("wo", "rkstandup", "2025-06-15") == a {
		t.Error("field boundary collision")
	}
}

func TestValidateEvents(t *testing.T) {
	events := sceneEvents()
	valid, err := We.ValidateEvents(events)
	assertInt(t, len(valid), 1)
	assertString(t, valid[0].ID, "ok")
	assertGotError(t, err)
	for _, want := range []string{"empty id", "empty stream", "year out of range", "ends before"} {
		assertStringContains(t, err.Error(), want)
	}

	valid, err = We.ValidateEvents(events[:1])
	assertError(t, err, nil)
	assertInt(t, len(valid), 1)
}
