package plugin_test

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	Wp "github.com/maroda/worldline/plugin"
	Wt "github.com/maroda/worldline/types"
)

func TestNewBadgerStore(t *testing.T) {
	t.Run("Opens a store on disk", func(t *testing.T) {
		got, err := Wp.NewBadgerStore(filepath.Join(t.TempDir(), "events.db"), 10)
		assertError(t, err, nil)
		defer got.Close()
		assertInt(t, got.BatchSize, 10)
	})

	t.Run("Clamps batch size", func(t *testing.T) {
		got, err := Wp.NewBadgerStore(filepath.Join(t.TempDir(), "events.db"), 0)
		assertError(t, err, nil)
		defer got.Close()
		assertInt(t, got.BatchSize, 1)
	})

	t.Run("Returns Type", func(t *testing.T) {
		store, closedb := makeTestBadgerStore(t)
		defer closedb()
		assertStringContains(t, store.Type(), "BadgerDB")
	})
}

func TestBadgerStore_WriteEvent(t *testing.T) {
	t.Run("Buffers until the batch size", func(t *testing.T) {
		store, closedb := makeTestBadgerStore(t)
		defer closedb()

		events := testEvents()
		for _, ev := range events {
			assertError(t, store.WriteEvent(ev), nil)
		}
		// batch size is 5, nothing written yet
		assertInt(t, store.Pending(), 3)
		got, err := store.QueryRange(base.Add(-time.Hour), base.Add(24*time.Hour))
		assertError(t, err, nil)
		assertInt(t, len(got), 0)

		assertError(t, store.Flush(), nil)
		assertInt(t, store.Pending(), 0)
		got, err = store.QueryRange(base.Add(-time.Hour), base.Add(24*time.Hour))
		assertError(t, err, nil)
		assertIDs(t, got, "standup", "lunch", "review")
	})

	t.Run("Flushes when the buffer fills", func(t *testing.T) {
		store, closedb := makeTestBadgerStore(t)
		defer closedb()

		for i := 0; i < 5; i++ {
			ev := &Wt.NormalizedEvent{ID: string(rune('a' + i)), StreamID: "work", StartTime: base.Add(time.Duration(i) * time.Minute)}
			assertError(t, store.WriteEvent(ev), nil)
		}
		assertInt(t, store.Pending(), 0)

		got, err := Wp.All(store)
		assertError(t, err, nil)
		assertIDs(t, got, "a", "b", "c", "d", "e")
	})

	t.Run("Round trips every field", func(t *testing.T) {
		store, closedb := makeTestBadgerStore(t)
		defer closedb()

		want := testEvents()[0]
		want.Title = "Daily standup"
		assertError(t, store.WriteBatch([]*Wt.NormalizedEvent{want}), nil)

		got, err := Wp.All(store)
		assertError(t, err, nil)
		assertInt(t, len(got), 1)
		ev := got[0]
		if ev.ID != want.ID || ev.StreamID != want.StreamID || ev.Title != want.Title {
			t.Errorf("got %+v, want %+v", ev, want)
		}
		if !ev.StartTime.Equal(want.StartTime) || ev.EndTime == nil || !ev.EndTime.Equal(*want.EndTime) {
			t.Errorf("times did not survive: %v %v", ev.StartTime, ev.EndTime)
		}
	})

	t.Run("Rewriting an event replaces it", func(t *testing.T) {
		store, closedb := makeTestBadgerStore(t)
		defer closedb()

		ev := testEvents()[1]
		assertError(t, store.WriteBatch([]*Wt.NormalizedEvent{ev}), nil)
		ev2 := *ev
		ev2.Title = "late lunch"
		assertError(t, store.WriteBatch([]*Wt.NormalizedEvent{&ev2}), nil)

		got, _ := Wp.All(store)
		assertInt(t, len(got), 1)
		assertStringContains(t, got[0].Title, "late")
	})
}

func TestBadgerStore_Rewrite(t *testing.T) {
	t.Run("Moving an event's start leaves one copy", func(t *testing.T) {
		store, closedb := makeTestBadgerStore(t)
		defer closedb()

		ev := testEvents()[1]
		assertError(t, store.WriteBatch([]*Wt.NormalizedEvent{ev}), nil)
		moved := *ev
		moved.StartTime = ev.StartTime.Add(-2 * time.Hour)
		moved.EndTime = ptr(moved.StartTime.Add(time.Hour))
		assertError(t, store.WriteBatch([]*Wt.NormalizedEvent{&moved}), nil)

		got, err := Wp.All(store)
		assertError(t, err, nil)
		assertInt(t, len(got), 1)
		if !got[0].StartTime.Equal(moved.StartTime) {
			t.Errorf("start = %v, want %v", got[0].StartTime, moved.StartTime)
		}
	})

	t.Run("Moves inside one queued batch collapse", func(t *testing.T) {
		store, closedb := makeTestBadgerStore(t)
		defer closedb()

		for i := 0; i < 3; i++ {
			ev := &Wt.NormalizedEvent{ID: "drift", StreamID: "work", StartTime: base.Add(time.Duration(i) * time.Hour)}
			assertError(t, store.WriteEvent(ev), nil)
		}
		assertError(t, store.Flush(), nil)

		got, err := Wp.All(store)
		assertError(t, err, nil)
		assertIDs(t, got, "drift")
		if !got[0].StartTime.Equal(base.Add(2 * time.Hour)) {
			t.Errorf("start = %v, want the last write", got[0].StartTime)
		}
	})

	t.Run("Large batches span transactions", func(t *testing.T) {
		// a small memtable caps a transaction near 1.2MB
		opts := badger.DefaultOptions("").WithInMemory(true).WithMemTableSize(8 << 20).WithLogger(nil)
		db, err := badger.Open(opts)
		assertError(t, err, nil)
		store := Wp.WrapBadgerDB(db, 5)
		defer store.Close()

		var events []*Wt.NormalizedEvent
		for i := 0; i < 20000; i++ {
			events = append(events, &Wt.NormalizedEvent{
				ID:        fmt.Sprintf("bulk-%05d", i),
				StreamID:  "work",
				StartTime: base.Add(time.Duration(i) * time.Minute),
			})
		}
		assertError(t, store.WriteBatch(events), nil)

		got, err := Wp.All(store)
		assertError(t, err, nil)
		assertInt(t, len(got), len(events))
		assertStringContains(t, got[0].ID, "bulk-00000")
	})
}

func TestBadgerStore_QueryRange(t *testing.T) {
	store, closedb := makeTestBadgerStore(t)
	defer closedb()
	assertError(t, store.WriteBatch(testEvents()), nil)

	t.Run("Includes events that started before the window", func(t *testing.T) {
		got, err := store.QueryRange(base.Add(6*time.Hour), base.Add(8*time.Hour))
		assertError(t, err, nil)
		assertIDs(t, got, "review")
	})

	t.Run("Excludes events starting at the window end", func(t *testing.T) {
		got, err := store.QueryRange(base.Add(time.Hour), base.Add(3*time.Hour))
		assertError(t, err, nil)
		assertIDs(t, got)
	})

	t.Run("Excludes events that ended before the window", func(t *testing.T) {
		got, err := store.QueryRange(base.Add(time.Hour), base.Add(4*time.Hour))
		assertError(t, err, nil)
		assertIDs(t, got, "lunch")
	})
}

func TestTimeKey(t *testing.T) {
	times := []time.Time{
		time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1066, time.October, 14, 9, 0, 0, 0, time.UTC),
		time.Date(1969, time.December, 31, 23, 59, 59, 500, time.UTC),
		time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1970, time.January, 1, 0, 0, 0, 1, time.UTC),
		time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC),
		time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC),
	}

	t.Run("Keys sort like the instants", func(t *testing.T) {
		for i := 1; i < len(times); i++ {
			a, b := Wp.TimeKey(times[i-1]), Wp.TimeKey(times[i])
			if bytes.Compare(a, b) >= 0 {
				t.Errorf("key for %v does not sort before %v", times[i-1], times[i])
			}
		}
	})

	t.Run("Keys are fixed width", func(t *testing.T) {
		for _, tm := range times {
			assertInt(t, len(Wp.TimeKey(tm)), 12)
		}
	})

	t.Run("Event keys start with the time key", func(t *testing.T) {
		ev := testEvents()[0]
		key := Wp.EventKey(ev)
		if !bytes.HasPrefix(key, Wp.TimeKey(ev.StartTime)) {
			t.Error("event key is missing its time prefix")
		}
		if !bytes.HasSuffix(key, []byte(ev.ID)) {
			t.Error("event key is missing its id")
		}
	})
}

func TestEventEncode(t *testing.T) {
	ev := testEvents()[1]
	data, err := Wp.EventEncode(ev)
	assertError(t, err, nil)

	got, err := Wp.EventDecode(data)
	assertError(t, err, nil)
	if got.ID != ev.ID || got.ColorHint != ev.ColorHint || got.EndTime != nil {
		t.Errorf("got %+v, want %+v", got, ev)
	}

	_, err = Wp.EventDecode([]byte("not gob"))
	assertGotError(t, err)
}

func makeTestBadgerStore(t *testing.T) (*Wp.BadgerStore, func()) {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	assertError(t, err, nil)

	store := Wp.WrapBadgerDB(db, 5)

	cleanup := func() {
		store.Close()
	}

	return store, cleanup
}
