package worldline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	Wt "github.com/maroda/worldline/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultZoomLevel = 3
	starSourceID     = "star"
	nowSuffix        = "@now"
)

var tracer = otel.Tracer("github.com/maroda/worldline/engine")

// Renderer receives each finished batch. A batch fully supersedes the last one.
type Renderer interface {
	Present(batch Batch)
	SceneUnavailable(err error)
}

// Recorder is the stats sink for recompute passes, nil means no stats
type Recorder interface {
	RecRecompute(seconds float64, primitives int)
	RecDropped(kind string)
}

// State of the coordinator's recompute cycle
type State int

const (
	Idle State = iota
	Dirty
	Recomputing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dirty:
		return "dirty"
	case Recomputing:
		return "recomputing"
	default:
		return "unknown"
	}
}

// Session is everything a recompute pass reads
type Session struct {
	ZoomLevel  int
	TimeCursor time.Time
	EpochYear  int
	Reference  string
	Bodies     []Wt.OrbitalBody
	Events     []Wt.NormalizedEvent
	Streams    []Wt.Stream
}

// Batch is one frame's complete output
type Batch struct {
	Frame        uint64               `json:"frame"`
	ZoomLevel    int                  `json:"zoom"`
	ZoomName     string               `json:"zoomName"`
	Cursor       time.Time            `json:"cursor"`
	CursorHeight float64              `json:"cursorHeight"`
	WindowStart  float64              `json:"windowStart"`
	WindowEnd    float64              `json:"windowEnd"`
	Focus        Wt.Focus             `json:"focus"`
	FocusPoint   Wt.Vec3              `json:"focusPoint"`
	Primitives   []Wt.RenderPrimitive `json:"primitives"`
	Dropped      int                  `json:"dropped"`
}

// Coordinator owns the session and is the only thing that triggers a recompute.
// Setters may be called from any goroutine; Tick runs at most one pass per call
// and a change landing mid-pass is deferred to the next Tick.
type Coordinator struct {
	MU       sync.Mutex
	Table    *ZoomLevelTable
	Layers   *LayerEngine
	Renderer Renderer
	Stats    Recorder
	Now      func() time.Time
	session  Session
	state    State
	pending  bool
	frame    uint64
	last     *Batch
}

// NewCoordinator starts Dirty so the first Tick draws the scene
func NewCoordinator(scene *Scene, r Renderer) (*Coordinator, error) {
	if scene == nil {
		return nil, errors.New("scene not loaded")
	}
	if r == nil {
		return nil, errors.New("renderer is required")
	}

	table := scene.Zoom
	if table == nil {
		table = DefaultZoomLevelTable()
	}

	layers := NewLayerEngine(scene.EpochYear)
	scene.Layout.apply(layers)

	c := &Coordinator{
		Table:    table,
		Layers:   layers,
		Renderer: r,
		Now:      time.Now,
		state:    Dirty,
	}
	c.session = Session{
		ZoomLevel:  DefaultZoomLevel,
		TimeCursor: c.now(),
		EpochYear:  scene.EpochYear,
		Reference:  scene.Reference,
		Bodies:     append([]Wt.OrbitalBody(nil), scene.Bodies...),
		Events:     append([]Wt.NormalizedEvent(nil), scene.Events...),
		Streams:    append([]Wt.Stream(nil), scene.Streams...),
	}
	// register stream bands in scene order
	for _, s := range scene.Streams {
		layers.StreamIndex(s.ID)
	}

	return c, nil
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// markDirtyLocked defers to the next tick while a pass is running
func (c *Coordinator) markDirtyLocked() {
	if c.state == Recomputing {
		c.pending = true
		return
	}
	c.state = Dirty
}

// SetZoomLevel accepts only levels in the zoom table
func (c *Coordinator) SetZoomLevel(level int) error {
	c.MU.Lock()
	defer c.MU.Unlock()
	if _, err := c.Table.Get(level); err != nil {
		slog.Warn("Rejected zoom level", slog.Int("zoom", level), slog.Any("Error", err))
		return err
	}
	c.session.ZoomLevel = level
	c.markDirtyLocked()
	return nil
}

// SetTimeCursor accepts any instant the projector can place
func (c *Coordinator) SetTimeCursor(t time.Time) error {
	c.MU.Lock()
	defer c.MU.Unlock()
	if _, err := ProjectInstant(t, c.session.EpochYear); err != nil {
		slog.Warn("Rejected time cursor", slog.Time("cursor", t), slog.Any("Error", err))
		return err
	}
	c.session.TimeCursor = t.UTC()
	c.markDirtyLocked()
	return nil
}

// Step moves the cursor by n time steps of the current zoom level
func (c *Coordinator) Step(n int) error {
	c.MU.Lock()
	defer c.MU.Unlock()

	step, err := c.Table.TimeStep(c.session.ZoomLevel)
	if err != nil {
		return err
	}
	h, err := ProjectInstant(c.session.TimeCursor, c.session.EpochYear)
	if err != nil {
		return err
	}
	t, err := HeightToTime(h+float64(n)*step*HeightPerYear, c.session.EpochYear)
	if err != nil {
		return err
	}
	c.session.TimeCursor = t
	c.markDirtyLocked()
	return nil
}

// SetEvents validates records at the boundary, keeps the valid ones,
// and returns the rejected ones as a joined error.
func (c *Coordinator) SetEvents(events []Wt.NormalizedEvent, streams []Wt.Stream) error {
	valid, err := ValidateEvents(events)

	c.MU.Lock()
	defer c.MU.Unlock()
	c.session.Events = valid
	c.session.Streams = append([]Wt.Stream(nil), streams...)
	for _, s := range streams {
		c.Layers.StreamIndex(s.ID)
	}
	c.markDirtyLocked()
	return err
}

// SetStreamVisible toggles one stream's events in the output
func (c *Coordinator) SetStreamVisible(id string, visible bool) error {
	c.MU.Lock()
	defer c.MU.Unlock()
	for i := range c.session.Streams {
		if c.session.Streams[i].ID == id {
			c.session.Streams[i].Visible = visible
			c.markDirtyLocked()
			return nil
		}
	}
	return fmt.Errorf("unknown stream: %q", id)
}

// SetBodies replaces the bodies; geometry problems surface per body at recompute
func (c *Coordinator) SetBodies(bodies []Wt.OrbitalBody, reference string) error {
	found := false
	for _, b := range bodies {
		if b.Name == reference {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("reference body %q not among bodies", reference)
	}

	c.MU.Lock()
	defer c.MU.Unlock()
	c.session.Bodies = append([]Wt.OrbitalBody(nil), bodies...)
	c.session.Reference = reference
	c.markDirtyLocked()
	return nil
}

// Reload swaps in a freshly loaded scene, keeping zoom level and cursor
func (c *Coordinator) Reload(scene *Scene) error {
	if scene == nil {
		return errors.New("scene not loaded")
	}

	c.MU.Lock()
	defer c.MU.Unlock()

	if scene.Zoom != nil {
		if _, err := scene.Zoom.Get(c.session.ZoomLevel); err != nil {
			return err
		}
		c.Table = scene.Zoom
	}
	c.Layers.MU.Lock()
	c.Layers.EpochYear = scene.EpochYear
	c.Layers.MU.Unlock()
	scene.Layout.apply(c.Layers)
	for _, s := range scene.Streams {
		c.Layers.StreamIndex(s.ID)
	}

	c.session.EpochYear = scene.EpochYear
	c.session.Reference = scene.Reference
	c.session.Bodies = append([]Wt.OrbitalBody(nil), scene.Bodies...)
	c.session.Events = append([]Wt.NormalizedEvent(nil), scene.Events...)
	c.session.Streams = append([]Wt.Stream(nil), scene.Streams...)
	c.markDirtyLocked()

	slog.Info("Scene reloaded",
		slog.Int("bodies", len(scene.Bodies)),
		slog.Int("streams", len(scene.Streams)),
		slog.Int("events", len(scene.Events)))
	return nil
}

// Levels lists the zoom table in use
func (c *Coordinator) Levels() []Wt.ZoomLevelConfig {
	c.MU.Lock()
	defer c.MU.Unlock()
	if c.Table == nil {
		return nil
	}
	return c.Table.Levels()
}

// State reports where the coordinator is in its cycle
func (c *Coordinator) State() State {
	c.MU.Lock()
	defer c.MU.Unlock()
	return c.state
}

// Session returns a copy of the current session
func (c *Coordinator) Session() Session {
	c.MU.Lock()
	defer c.MU.Unlock()
	return c.snapshotLocked()
}

// LastBatch is the most recent successful emission, nil before the first
func (c *Coordinator) LastBatch() *Batch {
	c.MU.Lock()
	defer c.MU.Unlock()
	return c.last
}

func (c *Coordinator) snapshotLocked() Session {
	s := c.session
	s.Bodies = append([]Wt.OrbitalBody(nil), c.session.Bodies...)
	s.Events = append([]Wt.NormalizedEvent(nil), c.session.Events...)
	s.Streams = append([]Wt.Stream(nil), c.session.Streams...)
	return s
}

// Tick is called once per frame. It returns true when a batch was emitted.
func (c *Coordinator) Tick(ctx context.Context) (bool, error) {
	c.MU.Lock()
	if c.state != Dirty {
		c.MU.Unlock()
		return false, nil
	}
	c.state = Recomputing
	c.frame++
	frame := c.frame
	snap := c.snapshotLocked()
	table := c.Table
	c.MU.Unlock()

	batch, err := c.recompute(ctx, snap, table, frame)

	c.MU.Lock()
	if c.pending {
		c.pending = false
		c.state = Dirty
	} else {
		c.state = Idle
	}
	if err == nil {
		c.last = &batch
	}
	r := c.Renderer
	c.MU.Unlock()

	if err != nil {
		slog.Error("Scene unavailable", slog.Int("zoom", snap.ZoomLevel), slog.Any("Error", err))
		r.SceneUnavailable(err)
		return false, err
	}
	r.Present(batch)
	return true, nil
}

func (c *Coordinator) dropped(kind string) {
	if c.Stats != nil {
		c.Stats.RecDropped(kind)
	}
}

func (c *Coordinator) recompute(ctx context.Context, s Session, table *ZoomLevelTable, frame uint64) (Batch, error) {
	_, span := tracer.Start(ctx, "worldline.recompute", trace.WithAttributes(
		attribute.Int("zoom", s.ZoomLevel),
		attribute.Int("bodies", len(s.Bodies)),
		attribute.Int("events", len(s.Events)),
	))
	defer span.End()
	start := time.Now()

	fail := func(err error) (Batch, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Batch{}, err
	}

	cfg, err := table.Get(s.ZoomLevel)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSceneUnavailable, err))
	}
	policy, err := SpanPolicyLookup(cfg.SpanPolicy)
	if err != nil {
		return fail(fmt.Errorf("%w: zoom %d: %w", ErrSceneUnavailable, cfg.Level, err))
	}
	center, err := ProjectInstant(s.TimeCursor, s.EpochYear)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSceneUnavailable, err))
	}
	ws, we := policy.Span(cfg, center)

	batch := Batch{
		Frame:        frame,
		ZoomLevel:    cfg.Level,
		ZoomName:     cfg.Name,
		Cursor:       s.TimeCursor,
		CursorHeight: center,
		WindowStart:  ws,
		WindowEnd:    we,
		Focus:        cfg.Focus,
		FocusPoint:   Wt.Vec3{Y: center},
	}

	// star axis
	batch.Primitives = append(batch.Primitives, Wt.RenderPrimitive{
		Kind:     Wt.Curve,
		SourceID: starSourceID,
		Points:   []float64{0, ws, 0, 0, we, 0},
		Color:    "#ffd27f",
		Opacity:  0.6,
	})

	var ref *Wt.OrbitalBody
	curves := 0
	for i := range s.Bodies {
		body := s.Bodies[i]
		pts, err := Sample(body, ws, we, center, cfg.SampleSegments)
		if err != nil {
			index := -1
			var cge *CurveGenerationError
			if errors.As(err, &cge) {
				index = cge.Index
			}
			slog.Error("Dropping body curve",
				slog.String("body", body.Name),
				slog.Int("zoom", cfg.Level),
				slog.Int("index", index),
				slog.Any("Error", err))
			batch.Dropped++
			c.dropped("curve")
			continue
		}
		curves++
		batch.Primitives = append(batch.Primitives, Wt.RenderPrimitive{
			Kind:     Wt.Curve,
			SourceID: body.Name,
			Points:   pts,
			Color:    body.Color,
			Opacity:  1.0,
		})

		if now, err := PointAt(body, center, center); err == nil {
			batch.Primitives = append(batch.Primitives, Wt.RenderPrimitive{
				Kind:     Wt.Marker,
				SourceID: body.Name + nowSuffix,
				Points:   []float64{now.X, now.Y, now.Z},
				Color:    body.Color,
				Opacity:  1.0,
			})
			if body.Name == s.Reference {
				ref = &s.Bodies[i]
				if cfg.Focus == Wt.FocusReferenceBody {
					batch.FocusPoint = now
				}
			}
		}
	}

	if curves == 0 {
		return fail(fmt.Errorf("%w: all %d body curves failed at zoom %d", ErrSceneUnavailable, len(s.Bodies), cfg.Level))
	}

	batch.Primitives = append(batch.Primitives, c.eventPrimitives(s, cfg, ref, center, ws, we, &batch)...)

	if c.Stats != nil {
		c.Stats.RecRecompute(time.Since(start).Seconds(), len(batch.Primitives))
	}
	span.SetAttributes(attribute.Int("primitives", len(batch.Primitives)), attribute.Int("dropped", batch.Dropped))

	return batch, nil
}

// eventPrimitives lays out the session's events around the reference body
// and clips their arcs to the sampled window
func (c *Coordinator) eventPrimitives(s Session, cfg Wt.ZoomLevelConfig, ref *Wt.OrbitalBody, center, ws, we float64, batch *Batch) []Wt.RenderPrimitive {
	if len(s.Events) == 0 {
		return nil
	}
	if ref == nil {
		slog.Error("Reference body unavailable, dropping events",
			slog.String("reference", s.Reference),
			slog.Int("zoom", cfg.Level),
			slog.Int("events", len(s.Events)))
		batch.Dropped += len(s.Events)
		for range s.Events {
			c.dropped("event")
		}
		return nil
	}

	colors := make(map[string]string, len(s.Streams))
	for _, st := range s.Streams {
		colors[st.ID] = st.Color
	}

	placements, err := c.Layers.Layout(s.Events, s.Streams, *ref)
	overflow := make(map[string]int)
	for _, e := range unjoin(err) {
		batch.Dropped++
		c.dropped("event")
		var lce *LayoutConflictError
		if errors.As(e, &lce) && lce.Reason == ConflictLaneOverflow {
			overflow[lce.StreamID]++
			continue
		}
		logEventError(e, cfg.Level)
	}
	for stream, n := range overflow {
		slog.Warn("Stream band full, dropping overlapping events",
			slog.String("stream", stream),
			slog.Int("zoom", cfg.Level),
			slog.Int("lanes", c.Layers.Lanes()),
			slog.Int("events", n))
	}

	var out []Wt.RenderPrimitive
	for _, p := range placements {
		if p.EndHeight < ws || p.StartHeight > we {
			continue
		}
		p.StartHeight = math.Max(p.StartHeight, ws)
		p.EndHeight = math.Min(p.EndHeight, we)

		segs := ArcSegments(p.StartHeight, p.EndHeight, ws, we, cfg.SampleSegments)
		prim, err := Geometry(p, *ref, center, segs)
		if err != nil {
			logEventError(fmt.Errorf("event %q: %w", p.Event.ID, err), cfg.Level)
			batch.Dropped++
			c.dropped("event")
			continue
		}
		if prim.Color == "" {
			prim.Color = colors[p.Event.StreamID]
		}
		out = append(out, prim)
	}
	return out
}

func logEventError(err error, zoom int) {
	attrs := []any{slog.Int("zoom", zoom), slog.Any("Error", err)}
	var lce *LayoutConflictError
	if errors.As(err, &lce) {
		attrs = append(attrs, slog.String("event", lce.EventID), slog.String("stream", lce.StreamID))
	}
	var cge *CurveGenerationError
	if errors.As(err, &cge) {
		attrs = append(attrs, slog.String("event", cge.Body), slog.Int("index", cge.Index))
	}
	slog.Error("Dropping event", attrs...)
}

// unjoin flattens an errors.Join result
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
