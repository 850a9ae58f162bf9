package worldline

import (
	"fmt"
	"math"

	Wt "github.com/maroda/worldline/types"
)

const (
	MinZoomLevel = 1
	MaxZoomLevel = 9

	// DefaultExtensionFactor keeps finer curves running past both frame edges
	DefaultExtensionFactor = 2.5

	daysPerYear = 365.25
)

// DefaultZoomLevels is century down to intraday
func DefaultZoomLevels() []Wt.ZoomLevelConfig {
	return []Wt.ZoomLevelConfig{
		{Level: 1, Name: "century", TimeSpanYears: 100, SampleSegments: 4000, Focus: Wt.FocusStar, SpanPolicy: PolicyFixedWindow},
		{Level: 2, Name: "decade", TimeSpanYears: 10, SampleSegments: 1200, Focus: Wt.FocusStar, SpanPolicy: PolicyFixedWindow},
		{Level: 3, Name: "year", TimeSpanYears: 1, SampleSegments: 360, Focus: Wt.FocusReferenceBody, SpanPolicy: PolicyCurrentYearFraction},
		{Level: 4, Name: "quarter", TimeSpanYears: 0.25, SampleSegments: 180, Focus: Wt.FocusReferenceBody, SpanPolicy: PolicyExtendedWindow, ExtensionFactor: DefaultExtensionFactor},
		{Level: 5, Name: "month", TimeSpanYears: 1.0 / 12, SampleSegments: 120, Focus: Wt.FocusReferenceBody, SpanPolicy: PolicyExtendedWindow, ExtensionFactor: DefaultExtensionFactor},
		{Level: 6, Name: "week", TimeSpanYears: 7 / daysPerYear, SampleSegments: 96, Focus: Wt.FocusReferenceBody, SpanPolicy: PolicyExtendedWindow, ExtensionFactor: DefaultExtensionFactor},
		{Level: 7, Name: "three-day", TimeSpanYears: 3 / daysPerYear, SampleSegments: 72, Focus: Wt.FocusReferenceBody, SpanPolicy: PolicyExtendedWindow, ExtensionFactor: DefaultExtensionFactor},
		{Level: 8, Name: "day", TimeSpanYears: 1 / daysPerYear, SampleSegments: 64, Focus: Wt.FocusReferenceBody, SpanPolicy: PolicyExtendedWindow, ExtensionFactor: DefaultExtensionFactor},
		{Level: 9, Name: "intraday", TimeSpanYears: 0.25 / daysPerYear, SampleSegments: 48, Focus: Wt.FocusReferenceBody, SpanPolicy: PolicyExtendedWindow, ExtensionFactor: DefaultExtensionFactor},
	}
}

// ZoomLevelTable is a validated, immutable lookup of level configs
type ZoomLevelTable struct {
	levels map[int]Wt.ZoomLevelConfig
}

// NewZoomLevelTable validates a complete set of levels 1..9
func NewZoomLevelTable(levels []Wt.ZoomLevelConfig) (*ZoomLevelTable, error) {
	table := &ZoomLevelTable{levels: make(map[int]Wt.ZoomLevelConfig, len(levels))}

	for _, l := range levels {
		if l.Level < MinZoomLevel || l.Level > MaxZoomLevel {
			return nil, &UnknownZoomLevelError{Level: l.Level}
		}
		if _, dup := table.levels[l.Level]; dup {
			return nil, fmt.Errorf("zoom level %d defined twice", l.Level)
		}
		if math.IsNaN(l.TimeSpanYears) || math.IsInf(l.TimeSpanYears, 0) || l.TimeSpanYears <= 0 {
			return nil, fmt.Errorf("zoom level %d: time span must be finite and > 0", l.Level)
		}
		if l.SampleSegments <= 0 {
			return nil, fmt.Errorf("zoom level %d: sample segments must be > 0", l.Level)
		}
		if _, err := SpanPolicyLookup(l.SpanPolicy); err != nil {
			return nil, fmt.Errorf("zoom level %d: %w", l.Level, err)
		}
		if l.SpanPolicy == PolicyExtendedWindow && l.ExtensionFactor < 1 {
			return nil, fmt.Errorf("zoom level %d: extension factor must be >= 1", l.Level)
		}
		table.levels[l.Level] = l
	}

	for lvl := MinZoomLevel; lvl <= MaxZoomLevel; lvl++ {
		cur, ok := table.levels[lvl]
		if !ok {
			return nil, fmt.Errorf("zoom level %d missing", lvl)
		}
		if lvl > MinZoomLevel && cur.TimeSpanYears >= table.levels[lvl-1].TimeSpanYears {
			return nil, fmt.Errorf("zoom level %d: time span must be smaller than level %d", lvl, lvl-1)
		}
	}

	return table, nil
}

// DefaultZoomLevelTable never fails on the built-in levels
func DefaultZoomLevelTable() *ZoomLevelTable {
	table, err := NewZoomLevelTable(DefaultZoomLevels())
	if err != nil {
		panic(err)
	}
	return table
}

// Get is a pure lookup
func (z *ZoomLevelTable) Get(level int) (Wt.ZoomLevelConfig, error) {
	cfg, ok := z.levels[level]
	if !ok {
		return Wt.ZoomLevelConfig{}, &UnknownZoomLevelError{Level: level}
	}
	return cfg, nil
}

// TimeStep is the span covered by one sample segment, in years
func (z *ZoomLevelTable) TimeStep(level int) (float64, error) {
	cfg, err := z.Get(level)
	if err != nil {
		return 0, err
	}
	return cfg.TimeSpanYears / float64(cfg.SampleSegments), nil
}

// Levels returns the configs in ascending level order
func (z *ZoomLevelTable) Levels() []Wt.ZoomLevelConfig {
	out := make([]Wt.ZoomLevelConfig, 0, len(z.levels))
	for lvl := MinZoomLevel; lvl <= MaxZoomLevel; lvl++ {
		out = append(out, z.levels[lvl])
	}
	return out
}
