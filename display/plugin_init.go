package worldline

import (
	"log/slog"

	We "github.com/maroda/worldline/engine"
	Wp "github.com/maroda/worldline/plugin"
	Wt "github.com/maroda/worldline/types"
)

// InitEventStore opens the named store and merges its events into the session.
// Scene events win over stored events with the same id.
// Streams referenced only by stored events are added as visible.
func InitEventStore(view *View, name, path string) (Wp.EventStore, error) {
	opts := Wp.StoreOptions{
		Path:      path,
		BatchSize: We.FillEnvVarInt("WORLDLINE_STORE_BATCH", 64),
	}
	store, err := Wp.StoreLookup(name, opts)
	if err != nil {
		slog.Error("Failed to open event store",
			slog.String("store", name),
			slog.Any("error", err))
		return nil, err
	}

	stored, err := Wp.All(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	session := view.Coord.Session()
	events, streams := MergeEvents(session.Events, session.Streams, stored)
	if err := view.Coord.SetEvents(events, streams); err != nil {
		slog.Warn("Stored events rejected", slog.Any("Error", err))
	}

	slog.Info("Event store enabled",
		slog.String("store", store.Type()),
		slog.Int("stored", len(stored)),
		slog.Int("events", len(events)))
	return store, nil
}

// MergeEvents appends stored events not already present by id
func MergeEvents(events []Wt.NormalizedEvent, streams []Wt.Stream, stored []*Wt.NormalizedEvent) ([]Wt.NormalizedEvent, []Wt.Stream) {
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		seen[e.ID] = true
	}
	known := make(map[string]bool, len(streams))
	for _, s := range streams {
		known[s.ID] = true
	}

	out := append([]Wt.NormalizedEvent(nil), events...)
	outStreams := append([]Wt.Stream(nil), streams...)
	for _, e := range stored {
		if e == nil || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, *e)
		if !known[e.StreamID] {
			known[e.StreamID] = true
			outStreams = append(outStreams, Wt.Stream{ID: e.StreamID, Visible: true})
		}
	}
	return out, outStreams
}
