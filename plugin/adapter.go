package plugin

/*

	The Adapter sits aside /worldline/
	Contains core interfaces for Plugin

*/

import (
	"time"

	Wt "github.com/maroda/worldline/types"
)

// EventStore is a place for normalized events to live between sessions,
// written one at a time or in batches if supported by the store type.
type EventStore interface {
	WriteEvent(ev *Wt.NormalizedEvent) error                        // Write singleton event
	WriteBatch(events []*Wt.NormalizedEvent) error                  // Write batches of events
	QueryRange(start, end time.Time) ([]*Wt.NormalizedEvent, error) // Events overlapping [start, end)
	Flush() error                                                   // Flush any buffered data
	Close() error                                                   // Close the store and release resources
	Type() string                                                   // ID for store
}

// StoreOptions are shared by every store factory
type StoreOptions struct {
	Path      string
	BatchSize int
}

// overlaps is the half-open window test every store uses
func overlaps(ev *Wt.NormalizedEvent, start, end time.Time) bool {
	evEnd := ev.StartTime
	if ev.EndTime != nil {
		evEnd = *ev.EndTime
	}
	if !ev.StartTime.Before(end) {
		return false
	}
	return !evEnd.Before(start)
}
