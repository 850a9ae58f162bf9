package worldline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	Wt "github.com/maroda/worldline/types"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const DefaultEpochYear = 2000

// eventNamespace seeds deterministic ids for events that arrive without one
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/maroda/worldline/events"))

// accepted event time layouts, most specific first
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// SceneFile models a scene on disk (YAML, TOML, or JSON)
type SceneFile struct {
	Epoch     int           `yaml:"epoch" toml:"epoch" json:"epoch"`
	Reference string        `yaml:"reference" toml:"reference" json:"reference"`
	Bodies    []BodyEntry   `yaml:"bodies" toml:"bodies" json:"bodies"`
	Streams   []StreamEntry `yaml:"streams" toml:"streams" json:"streams"`
	Events    []EventEntry  `yaml:"events" toml:"events" json:"events"`
	Zoom      []ZoomEntry   `yaml:"zoom" toml:"zoom" json:"zoom"`
	Layout    LayoutEntry   `yaml:"layout" toml:"layout" json:"layout"`
}

type BodyEntry struct {
	Name       string  `yaml:"name" toml:"name" json:"name"`
	Distance   float64 `yaml:"distance" toml:"distance" json:"distance"`
	Period     float64 `yaml:"period" toml:"period" json:"period"`
	StartAngle float64 `yaml:"start_angle" toml:"start_angle" json:"start_angle"`
	Color      string  `yaml:"color" toml:"color" json:"color"`
}

type StreamEntry struct {
	ID      string  `yaml:"id" toml:"id" json:"id"`
	Color   string  `yaml:"color" toml:"color" json:"color"`
	Offset  float64 `yaml:"offset" toml:"offset" json:"offset"`
	Visible *bool   `yaml:"visible" toml:"visible" json:"visible"`
}

type EventEntry struct {
	ID     string `yaml:"id" toml:"id" json:"id"`
	Stream string `yaml:"stream" toml:"stream" json:"stream"`
	Title  string `yaml:"title" toml:"title" json:"title"`
	Start  string `yaml:"start" toml:"start" json:"start"`
	End    string `yaml:"end" toml:"end" json:"end"`
	Color  string `yaml:"color" toml:"color" json:"color"`
}

// ZoomEntry overrides one level of the default table
type ZoomEntry struct {
	Level     int     `yaml:"level" toml:"level" json:"level"`
	Name      string  `yaml:"name" toml:"name" json:"name"`
	SpanYears float64 `yaml:"span_years" toml:"span_years" json:"span_years"`
	Segments  int     `yaml:"segments" toml:"segments" json:"segments"`
	Focus     string  `yaml:"focus" toml:"focus" json:"focus"`
	Policy    string  `yaml:"policy" toml:"policy" json:"policy"`
	Extension float64 `yaml:"extension" toml:"extension" json:"extension"`
}

type LayoutEntry struct {
	MinOffset       float64 `yaml:"min_offset" toml:"min_offset" json:"min_offset"`
	RadiusIncrement float64 `yaml:"radius_increment" toml:"radius_increment" json:"radius_increment"`
	StackIncrement  float64 `yaml:"stack_increment" toml:"stack_increment" json:"stack_increment"`
	PointEpsilon    string  `yaml:"point_epsilon" toml:"point_epsilon" json:"point_epsilon"`
}

// Scene is a validated SceneFile, ready for the coordinator
type Scene struct {
	EpochYear int
	Reference string
	Bodies    []Wt.OrbitalBody
	Streams   []Wt.Stream
	Events    []Wt.NormalizedEvent
	Zoom      *ZoomLevelTable
	Layout    LayoutParams
}

// LayoutParams are optional layer engine overrides, zero keeps the default
type LayoutParams struct {
	MinOffset       float64
	RadiusIncrement float64
	StackIncrement  float64
	PointEpsilon    time.Duration
}

func (lp LayoutParams) apply(le *LayerEngine) {
	le.MU.Lock()
	defer le.MU.Unlock()
	if lp.MinOffset > 0 {
		le.MinOffset = lp.MinOffset
	}
	if lp.RadiusIncrement > 0 {
		le.RadiusIncrement = lp.RadiusIncrement
	}
	if lp.StackIncrement > 0 {
		le.StackIncrement = lp.StackIncrement
	}
	if lp.PointEpsilon > 0 {
		le.PointEpsilon = lp.PointEpsilon
	}
}

// DefaultSceneFile is the inner solar system with Earth as reference
func DefaultSceneFile() *SceneFile {
	return &SceneFile{
		Epoch:     DefaultEpochYear,
		Reference: "earth",
		Bodies: []BodyEntry{
			{Name: "mercury", Distance: 19, Period: 0.2408, StartAngle: 4.40, Color: "#b1adad"},
			{Name: "venus", Distance: 36, Period: 0.6152, StartAngle: 3.18, Color: "#e6c27a"},
			{Name: "earth", Distance: 50, Period: 1.0, StartAngle: 0, Color: "#4f9dde"},
			{Name: "mars", Distance: 76, Period: 1.8808, StartAngle: 6.20, Color: "#d1603d"},
		},
	}
}

// DefaultScene never fails on the built-in scene
func DefaultScene() *Scene {
	scene, err := DefaultSceneFile().Scene()
	if err != nil {
		panic(err)
	}
	return scene
}

// LoadSceneFile pulls a scene off local disk, choosing the decoder by extension.
// Validation is performed on the file before decoding.
func LoadSceneFile(filename string) (*Scene, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err = validateLoad(file); err != nil {
		slog.Error("Validation failed", slog.String("file", filename), slog.Any("Error", err))
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var sf *SceneFile
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		sf, err = FromYAML(data)
	case ".toml":
		sf, err = FromTOML(data)
	case ".json":
		sf, err = FromJSON(data)
	default:
		return nil, fmt.Errorf("unsupported scene format %q", ext)
	}
	if err != nil {
		slog.Error("could not decode scene", slog.String("file", filename), slog.Any("Error", err))
		return nil, err
	}

	return sf.Scene()
}

func validateLoad(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		slog.Error("could not stat file")
		return err
	}
	if info.IsDir() {
		return errors.New("scene path is a directory")
	}
	if info.Size() == 0 {
		slog.Error("file is empty")
		return errors.New("file is empty")
	}
	return nil
}

func FromYAML(data []byte) (*SceneFile, error) {
	var sf SceneFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("parse scene yaml: %w", err)
	}
	return &sf, nil
}

func FromTOML(data []byte) (*SceneFile, error) {
	var sf SceneFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("parse scene toml: %w", err)
	}
	return &sf, nil
}

func FromJSON(data []byte) (*SceneFile, error) {
	var sf SceneFile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("parse scene json: %w", err)
	}
	return &sf, nil
}

// Validate checks structure: bodies, reference, streams, and zoom overrides.
// Individual events are checked in Scene, where a bad one is skipped.
func (sf *SceneFile) Validate() error {
	if sf.Epoch != 0 {
		if err := checkEpoch(sf.Epoch); err != nil {
			return err
		}
	}
	if len(sf.Bodies) == 0 {
		return fmt.Errorf("scene.bodies is required")
	}

	names := make(map[string]bool, len(sf.Bodies))
	for i, b := range sf.Bodies {
		if b.Name == "" {
			return fmt.Errorf("body %d has empty name", i)
		}
		if names[b.Name] {
			return fmt.Errorf("body %s defined twice", b.Name)
		}
		names[b.Name] = true
		if err := checkBody(b.body()); err != nil {
			return err
		}
		if !finite(b.Distance) || b.Distance <= 0 {
			return fmt.Errorf("body %s: distance must be finite and > 0", b.Name)
		}
	}
	if sf.Reference != "" && !names[sf.Reference] {
		return fmt.Errorf("reference body %s not among bodies", sf.Reference)
	}

	streams := make(map[string]bool, len(sf.Streams))
	for i, s := range sf.Streams {
		if s.ID == "" {
			return fmt.Errorf("stream %d has empty id", i)
		}
		if streams[s.ID] {
			return fmt.Errorf("stream %s defined twice", s.ID)
		}
		if s.Offset < 0 {
			return fmt.Errorf("stream %s: offset must be >= 0", s.ID)
		}
		streams[s.ID] = true
	}

	for _, z := range sf.Zoom {
		if z.Level < MinZoomLevel || z.Level > MaxZoomLevel {
			return &UnknownZoomLevelError{Level: z.Level}
		}
		if _, err := parseFocus(z.Focus); err != nil {
			return fmt.Errorf("zoom level %d: %w", z.Level, err)
		}
	}

	if sf.Layout.PointEpsilon != "" {
		if _, err := time.ParseDuration(sf.Layout.PointEpsilon); err != nil {
			return fmt.Errorf("layout.point_epsilon: %w", err)
		}
	}
	if sf.Layout.MinOffset < 0 || sf.Layout.RadiusIncrement < 0 || sf.Layout.StackIncrement < 0 {
		return fmt.Errorf("layout offsets must be >= 0")
	}

	// pinned bands may not overlap
	width := sf.Layout.RadiusIncrement
	if width == 0 {
		width = DefaultRadiusIncrement
	}
	for i, a := range sf.Streams {
		if a.Offset == 0 {
			continue
		}
		for _, b := range sf.Streams[:i] {
			if b.Offset > 0 && math.Abs(a.Offset-b.Offset) < width {
				return fmt.Errorf("stream %s: offset %g overlaps the band of stream %s", a.ID, a.Offset, b.ID)
			}
		}
	}

	return nil
}

// Scene validates and converts the file. Events that fail are logged and left out.
func (sf *SceneFile) Scene() (*Scene, error) {
	if err := sf.Validate(); err != nil {
		return nil, err
	}

	scene := &Scene{
		EpochYear: sf.Epoch,
		Reference: sf.Reference,
	}
	if scene.EpochYear == 0 {
		scene.EpochYear = DefaultEpochYear
	}
	if scene.Reference == "" {
		scene.Reference = sf.Bodies[0].Name
	}

	for _, b := range sf.Bodies {
		scene.Bodies = append(scene.Bodies, b.body())
	}
	for _, s := range sf.Streams {
		visible := true
		if s.Visible != nil {
			visible = *s.Visible
		}
		scene.Streams = append(scene.Streams, Wt.Stream{
			ID:               s.ID,
			Color:            s.Color,
			BaseRadiusOffset: s.Offset,
			Visible:          visible,
		})
	}

	table, err := sf.zoomTable()
	if err != nil {
		return nil, err
	}
	scene.Zoom = table

	scene.Layout = LayoutParams{
		MinOffset:       sf.Layout.MinOffset,
		RadiusIncrement: sf.Layout.RadiusIncrement,
		StackIncrement:  sf.Layout.StackIncrement,
	}
	if sf.Layout.PointEpsilon != "" {
		scene.Layout.PointEpsilon, _ = time.ParseDuration(sf.Layout.PointEpsilon)
	}

	var events []Wt.NormalizedEvent
	for _, e := range sf.Events {
		ev, err := e.normalize()
		if err != nil {
			slog.Warn("Skipping scene event", slog.String("event", e.ID), slog.String("stream", e.Stream), slog.Any("Error", err))
			continue
		}
		events = append(events, ev)
	}
	scene.Events, err = ValidateEvents(events)
	if err != nil {
		slog.Warn("Scene events rejected", slog.Any("Error", err))
	}

	return scene, nil
}

// ReferenceBody is the body events are laid out around
func (s *Scene) ReferenceBody() (Wt.OrbitalBody, bool) {
	for _, b := range s.Bodies {
		if b.Name == s.Reference {
			return b, true
		}
	}
	return Wt.OrbitalBody{}, false
}

func (b BodyEntry) body() Wt.OrbitalBody {
	return Wt.OrbitalBody{
		Name:                  b.Name,
		DistanceFromReference: b.Distance,
		OrbitalPeriodYears:    b.Period,
		StartAngleRadians:     b.StartAngle,
		Color:                 b.Color,
	}
}

func (sf *SceneFile) zoomTable() (*ZoomLevelTable, error) {
	if len(sf.Zoom) == 0 {
		return DefaultZoomLevelTable(), nil
	}

	levels := DefaultZoomLevels()
	for _, z := range sf.Zoom {
		cfg := &levels[z.Level-1]
		if z.Name != "" {
			cfg.Name = z.Name
		}
		if z.SpanYears != 0 {
			cfg.TimeSpanYears = z.SpanYears
		}
		if z.Segments != 0 {
			cfg.SampleSegments = z.Segments
		}
		if z.Focus != "" {
			cfg.Focus, _ = parseFocus(z.Focus)
		}
		if z.Policy != "" {
			cfg.SpanPolicy = z.Policy
		}
		if z.Extension != 0 {
			cfg.ExtensionFactor = z.Extension
		}
	}

	return NewZoomLevelTable(levels)
}

func parseFocus(s string) (Wt.Focus, error) {
	switch strings.ToLower(s) {
	case "", "star":
		return Wt.FocusStar, nil
	case "reference", "body":
		return Wt.FocusReferenceBody, nil
	default:
		return Wt.FocusStar, fmt.Errorf("unknown focus %q", s)
	}
}

// ParseTime accepts RFC 3339 and a few shorter layouts, read as UTC
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &TemporalInputError{Field: "time", Value: s, Reason: "unrecognized format"}
}

// EventID is the deterministic id for an event record without one
func EventID(stream, title, start string) string {
	return uuid.NewSHA1(eventNamespace, []byte(stream+"\x00"+title+"\x00"+start)).String()
}

func (e EventEntry) normalize() (Wt.NormalizedEvent, error) {
	start, err := ParseTime(e.Start)
	if err != nil {
		return Wt.NormalizedEvent{}, fmt.Errorf("start: %w", err)
	}
	ev := Wt.NormalizedEvent{
		ID:        e.ID,
		StreamID:  e.Stream,
		Title:     e.Title,
		StartTime: start,
		ColorHint: e.Color,
	}
	if ev.ID == "" {
		ev.ID = EventID(e.Stream, e.Title, e.Start)
	}
	if e.End != "" {
		end, err := ParseTime(e.End)
		if err != nil {
			return Wt.NormalizedEvent{}, fmt.Errorf("end: %w", err)
		}
		ev.EndTime = &end
	}
	return ev, nil
}

// ValidateEvents keeps the structurally sound records and reports the rest.
// Duplicate ids and unknown streams are left for layout to reject.
func ValidateEvents(events []Wt.NormalizedEvent) ([]Wt.NormalizedEvent, error) {
	var valid []Wt.NormalizedEvent
	var errs []error
	for _, e := range events {
		switch {
		case e.ID == "":
			errs = append(errs, fmt.Errorf("event in stream %q: empty id", e.StreamID))
		case e.StreamID == "":
			errs = append(errs, fmt.Errorf("event %q: empty stream id", e.ID))
		case checkDate(e.StartTime) != nil:
			errs = append(errs, fmt.Errorf("event %q start: %w", e.ID, checkDate(e.StartTime)))
		case e.EndTime != nil && checkDate(*e.EndTime) != nil:
			errs = append(errs, fmt.Errorf("event %q end: %w", e.ID, checkDate(*e.EndTime)))
		case e.EndTime != nil && e.EndTime.Before(e.StartTime):
			errs = append(errs, &TemporalInputError{Field: "end", Value: e.EndTime.Format(time.RFC3339), Reason: fmt.Sprintf("event %q ends before it starts", e.ID)})
		default:
			valid = append(valid, e)
		}
	}
	return valid, errors.Join(errs...)
}
