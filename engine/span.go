package worldline

import (
	"fmt"
	"math"

	Wt "github.com/maroda/worldline/types"
)

const (
	PolicyFixedWindow         = "fixed-window"
	PolicyCurrentYearFraction = "current-year-fraction"
	PolicyExtendedWindow      = "extended-window"

	// minimumYearFraction keeps the year view from collapsing on Jan 1
	minimumYearFraction = 1 / daysPerYear
)

// SpanPolicy decides which stretch of the time axis gets sampled
// for a zoom level, given the cursor's height.
type SpanPolicy interface {
	Span(cfg Wt.ZoomLevelConfig, centerHeight float64) (start, end float64)
	Type() string
}

// SpanPolicies is the registry of named span strategies
var SpanPolicies = map[string]func() SpanPolicy{
	PolicyFixedWindow:         func() SpanPolicy { return FixedWindow{} },
	PolicyCurrentYearFraction: func() SpanPolicy { return CurrentYearFraction{} },
	PolicyExtendedWindow:      func() SpanPolicy { return ExtendedWindow{} },
}

func SpanPolicyLookup(name string) (SpanPolicy, error) {
	factory, ok := SpanPolicies[name]
	if !ok {
		return nil, fmt.Errorf("unknown span policy: %q", name)
	}
	return factory(), nil
}

// FixedWindow uses the configured span directly, centred on the cursor
type FixedWindow struct{}

func (FixedWindow) Span(cfg Wt.ZoomLevelConfig, c float64) (float64, float64) {
	half := cfg.TimeSpanYears * HeightPerYear / 2
	return c - half, c + half
}

func (FixedWindow) Type() string { return PolicyFixedWindow }

// CurrentYearFraction runs from the start of the cursor's year up to the cursor,
// so the visible curve always ends at "now".
type CurrentYearFraction struct{}

func (CurrentYearFraction) Span(cfg Wt.ZoomLevelConfig, c float64) (float64, float64) {
	yearStart := math.Floor(c/HeightPerYear) * HeightPerYear
	end := c
	if end-yearStart < minimumYearFraction*HeightPerYear {
		end = yearStart + minimumYearFraction*HeightPerYear
	}
	return yearStart, end
}

func (CurrentYearFraction) Type() string { return PolicyCurrentYearFraction }

// ExtendedWindow stretches the configured span by the level's extension factor
// so the curve runs visibly past both edges of the view.
type ExtendedWindow struct{}

func (ExtendedWindow) Span(cfg Wt.ZoomLevelConfig, c float64) (float64, float64) {
	factor := cfg.ExtensionFactor
	if factor < 1 {
		factor = DefaultExtensionFactor
	}
	half := cfg.TimeSpanYears * factor * HeightPerYear / 2
	return c - half, c + half
}

func (ExtendedWindow) Type() string { return PolicyExtendedWindow }
