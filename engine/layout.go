package worldline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	Wt "github.com/maroda/worldline/types"
)

const (
	DefaultMinOffset       = 10.0
	DefaultRadiusIncrement = 10.0
	DefaultStackIncrement  = 1.0
	DefaultPointEpsilon    = time.Minute
)

// LayerEngine places events on concentric paths around the reference body.
// Stream indices are handed out once, in first-seen order, and never renumbered,
// so a stream keeps its radius band for the engine's lifetime.
type LayerEngine struct {
	MU              sync.Mutex
	EpochYear       int
	MinOffset       float64       // gap between the reference orbit and the first band
	RadiusIncrement float64       // width of one stream band
	StackIncrement  float64       // radial step between stacked lanes in a band
	PointEpsilon    time.Duration // window given to point events for overlap checks
	streamIndex     map[string]int
	nextIndex       int
}

// NewLayerEngine returns an engine with the default offsets
func NewLayerEngine(epochYear int) *LayerEngine {
	return &LayerEngine{
		EpochYear:       epochYear,
		MinOffset:       DefaultMinOffset,
		RadiusIncrement: DefaultRadiusIncrement,
		StackIncrement:  DefaultStackIncrement,
		PointEpsilon:    DefaultPointEpsilon,
		streamIndex:     make(map[string]int),
	}
}

// StreamIndex assigns (once) and returns the stream's band index
func (le *LayerEngine) StreamIndex(id string) int {
	le.MU.Lock()
	defer le.MU.Unlock()
	return le.indexLocked(id)
}

func (le *LayerEngine) indexLocked(id string) int {
	if le.streamIndex == nil {
		le.streamIndex = make(map[string]int)
	}
	if idx, ok := le.streamIndex[id]; ok {
		return idx
	}
	idx := le.nextIndex
	le.streamIndex[id] = idx
	le.nextIndex++
	return idx
}

// band is one stream's slot in a layout pass
type band struct {
	stream   Wt.Stream
	index    int
	base     float64
	conflict string // pinned stream whose band this one overlaps
	items    []interval
}

// BandBases returns the inner edge of every stream's band around ref.
// Streams pinned with an explicit offset keep it; the rest take their indexed
// slot, pushed outward past any pinned band they would touch. A pinned stream
// overlapping an earlier pinned one gets no band and is reported.
func (le *LayerEngine) BandBases(ref Wt.OrbitalBody, streams []Wt.Stream) (map[string]float64, error) {
	le.MU.Lock()
	defer le.MU.Unlock()

	bands := le.bandsLocked(streams)
	le.allocateLocked(ref, bands)

	bases := make(map[string]float64, len(bands))
	var errs []error
	for _, b := range bands {
		if b.conflict != "" {
			errs = append(errs, &LayoutConflictError{StreamID: b.stream.ID, Reason: ConflictBandOverlap + " " + b.conflict})
			continue
		}
		bases[b.stream.ID] = b.base
	}
	return bases, errors.Join(errs...)
}

// bandsLocked returns one band per distinct stream, ordered by index
func (le *LayerEngine) bandsLocked(streams []Wt.Stream) []*band {
	seen := make(map[string]bool, len(streams))
	bands := make([]*band, 0, len(streams))
	for _, s := range streams {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		bands = append(bands, &band{stream: s, index: le.indexLocked(s.ID)})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].index < bands[j].index })
	return bands
}

// allocateLocked sets every band's base. Hidden streams take part so that
// toggling visibility never moves another stream.
func (le *LayerEngine) allocateLocked(ref Wt.OrbitalBody, bands []*band) {
	const eps = 1e-9
	width := le.RadiusIncrement
	overlaps := func(a, b float64) bool { return a < b+width-eps && b < a+width-eps }

	var pinned []*band
	for _, b := range bands {
		if b.stream.BaseRadiusOffset <= 0 {
			continue
		}
		b.base = ref.DistanceFromReference + b.stream.BaseRadiusOffset
		for _, p := range pinned {
			if overlaps(b.base, p.base) {
				b.conflict = p.stream.ID
				break
			}
		}
		if b.conflict == "" {
			pinned = append(pinned, b)
		}
	}

	cursor := ref.DistanceFromReference + le.MinOffset
	for _, b := range bands {
		if b.stream.BaseRadiusOffset > 0 {
			continue
		}
		base := math.Max(ref.DistanceFromReference+le.MinOffset+float64(b.index)*width, cursor)
		for moved := true; moved; {
			moved = false
			for _, p := range pinned {
				if overlaps(base, p.base) {
					base = p.base + width
					moved = true
				}
			}
		}
		b.base = base
		cursor = base + width
	}
}

// Lanes is how many stacked lanes fit in one band
func (le *LayerEngine) Lanes() int {
	le.MU.Lock()
	defer le.MU.Unlock()
	return le.maxLanes()
}

// maxLanes is how many stacked lanes fit before spilling into the next band
func (le *LayerEngine) maxLanes() int {
	if le.StackIncrement <= 0 {
		return 1
	}
	n := int(math.Ceil(le.RadiusIncrement/le.StackIncrement - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

type interval struct {
	event      Wt.NormalizedEvent
	start, end time.Time
	hStart     float64
	hEnd       float64
}

// Layout computes a collision-free radius for every event of every visible stream.
// Events that cannot be placed are left out and their errors are returned joined;
// the placements that succeeded are always returned.
// Output is ordered by stream index, then start time, then id.
func (le *LayerEngine) Layout(events []Wt.NormalizedEvent, streams []Wt.Stream, ref Wt.OrbitalBody) ([]Wt.EventPlacement, error) {
	if !finite(ref.DistanceFromReference) || ref.DistanceFromReference <= 0 {
		return nil, fmt.Errorf("reference body %q: distance must be finite and > 0", ref.Name)
	}
	if le.RadiusIncrement <= 0 || le.StackIncrement <= 0 {
		return nil, fmt.Errorf("radius and stack increments must be > 0")
	}

	le.MU.Lock()
	defer le.MU.Unlock()

	bands := le.bandsLocked(streams)
	le.allocateLocked(ref, bands)
	byID := make(map[string]*band, len(bands))
	for _, b := range bands {
		byID[b.stream.ID] = b
	}

	idCount := make(map[string]int, len(events))
	for _, e := range events {
		idCount[e.ID]++
	}

	var errs []error
	for _, e := range events {
		b, ok := byID[e.StreamID]
		if !ok {
			errs = append(errs, &LayoutConflictError{EventID: e.ID, StreamID: e.StreamID, Reason: ConflictUnknownStream})
			continue
		}
		if !b.stream.Visible {
			continue
		}
		if b.conflict != "" {
			errs = append(errs, &LayoutConflictError{EventID: e.ID, StreamID: e.StreamID, Reason: ConflictBandOverlap + " " + b.conflict})
			continue
		}
		if idCount[e.ID] > 1 {
			// the (start, id) order is no longer total
			errs = append(errs, &LayoutConflictError{EventID: e.ID, StreamID: e.StreamID, Reason: ConflictDuplicateID})
			continue
		}

		iv := interval{event: e, start: e.StartTime, end: e.StartTime}
		if !e.IsPoint() {
			iv.end = *e.EndTime
		}

		var err error
		if iv.hStart, err = ProjectInstant(iv.start, le.EpochYear); err != nil {
			errs = append(errs, fmt.Errorf("event %q start: %w", e.ID, err))
			continue
		}
		if iv.hEnd, err = ProjectInstant(iv.end, le.EpochYear); err != nil {
			errs = append(errs, fmt.Errorf("event %q end: %w", e.ID, err))
			continue
		}

		// point events occupy a small window so identical instants still collide
		if e.IsPoint() {
			iv.end = iv.start.Add(le.PointEpsilon)
		}
		b.items = append(b.items, iv)
	}

	limit := le.maxLanes()
	var placements []Wt.EventPlacement
	for _, b := range bands {
		sort.Slice(b.items, func(i, j int) bool {
			a, c := b.items[i], b.items[j]
			if !a.start.Equal(c.start) {
				return a.start.Before(c.start)
			}
			return a.event.ID < c.event.ID
		})

		var laneEnds []time.Time
		for _, iv := range b.items {
			lane := -1
			for l, end := range laneEnds {
				if !end.After(iv.start) {
					lane = l
					break
				}
			}
			if lane < 0 {
				if len(laneEnds) >= limit {
					errs = append(errs, &LayoutConflictError{
						EventID:  iv.event.ID,
						StreamID: b.stream.ID,
						Reason:   ConflictLaneOverflow,
					})
					continue
				}
				laneEnds = append(laneEnds, time.Time{})
				lane = len(laneEnds) - 1
			}
			laneEnds[lane] = iv.end

			placements = append(placements, Wt.EventPlacement{
				Event:       iv.event,
				StreamIndex: b.index,
				Lane:        lane,
				Radius:      b.base + float64(lane)*le.StackIncrement,
				StartHeight: iv.hStart,
				EndHeight:   iv.hEnd,
			})
		}
	}

	return placements, errors.Join(errs...)
}

// Geometry is the render request for one placement: an arc following the
// reference body's helix at the placement radius, or a marker for point events.
func Geometry(p Wt.EventPlacement, ref Wt.OrbitalBody, centerHeight float64, segments int) (Wt.RenderPrimitive, error) {
	body := ref
	body.Name = p.Event.ID
	body.DistanceFromReference = p.Radius

	prim := Wt.RenderPrimitive{
		SourceID: p.Event.ID,
		Color:    p.Event.ColorHint,
		Opacity:  1.0,
	}

	if p.EndHeight <= p.StartHeight {
		pt, err := PointAt(body, p.StartHeight, centerHeight)
		if err != nil {
			return Wt.RenderPrimitive{}, err
		}
		prim.Kind = Wt.Marker
		prim.Points = []float64{pt.X, pt.Y, pt.Z}
		return prim, nil
	}

	if segments < 1 {
		segments = 1
	}
	pts, err := Sample(body, p.StartHeight, p.EndHeight, centerHeight, segments)
	if err != nil {
		return Wt.RenderPrimitive{}, err
	}
	prim.Kind = Wt.Curve
	prim.Points = pts
	return prim, nil
}

// ArcSegments scales the zoom level's sampling density to the arc's share of the window
func ArcSegments(startHeight, endHeight, windowStart, windowEnd float64, levelSegments int) int {
	window := windowEnd - windowStart
	if window <= 0 || levelSegments <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(levelSegments) * (endHeight - startHeight) / window))
	if n < 2 {
		n = 2
	}
	if n > levelSegments {
		n = levelSegments
	}
	return n
}
