package plugin

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	Wt "github.com/maroda/worldline/types"
)

const keyTimeLen = 8 + 4

// Key space:
//
//	ev/<time key><id>  gob-encoded event, scanned in start order
//	id/<id>            the event's current ev/ key
var (
	eventPrefix = []byte("ev/")
	indexPrefix = []byte("id/")
)

// BadgerStore persists events on disk. Writes queue in memory
// and are committed together once BatchSize events are waiting.
type BadgerStore struct {
	MU        sync.Mutex
	DB        *badger.DB
	BatchSize int
	queue     []*Wt.NormalizedEvent
}

func NewBadgerStore(path string, batchSize int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		slog.Error("Could not open event database", slog.String("path", path), slog.Any("Error", err))
		return nil, fmt.Errorf("database error: %w", err)
	}

	bs := WrapBadgerDB(db, batchSize)
	slog.Info("Event database open", slog.String("path", path), slog.Int("batch", bs.BatchSize))
	return bs, nil
}

// WrapBadgerDB builds a store around an already open database
func WrapBadgerDB(db *badger.DB, batchSize int) *BadgerStore {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BadgerStore{
		DB:        db,
		BatchSize: batchSize,
		queue:     make([]*Wt.NormalizedEvent, 0, batchSize),
	}
}

// Pending is the number of queued, uncommitted events
func (bs *BadgerStore) Pending() int {
	bs.MU.Lock()
	defer bs.MU.Unlock()
	return len(bs.queue)
}

// WriteEvent queues ev and commits the queue once it is full
func (bs *BadgerStore) WriteEvent(ev *Wt.NormalizedEvent) error {
	bs.MU.Lock()
	defer bs.MU.Unlock()

	bs.queue = append(bs.queue, ev)
	if len(bs.queue) < bs.BatchSize {
		return nil
	}
	return bs.drainLocked()
}

// WriteBatch commits events immediately, bypassing the queue
func (bs *BadgerStore) WriteBatch(events []*Wt.NormalizedEvent) error {
	return bs.commit(events)
}

// Flush commits whatever is queued
func (bs *BadgerStore) Flush() error {
	bs.MU.Lock()
	defer bs.MU.Unlock()
	return bs.drainLocked()
}

// drainLocked empties the queue even when the commit fails,
// so one bad event cannot wedge every later write
func (bs *BadgerStore) drainLocked() error {
	if len(bs.queue) == 0 {
		return nil
	}
	err := bs.commit(bs.queue)
	clear(bs.queue)
	bs.queue = bs.queue[:0]
	return err
}

// commit writes events in as few transactions as badger allows,
// starting a fresh one whenever the current one fills up
func (bs *BadgerStore) commit(events []*Wt.NormalizedEvent) error {
	txn := bs.DB.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, ev := range events {
		err := putEvent(txn, ev)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("commit error: %w", err)
			}
			txn = bs.DB.NewTransaction(true)
			err = putEvent(txn, ev)
		}
		if err != nil {
			slog.Error("Could not store event",
				slog.String("event", ev.ID),
				slog.Time("start", ev.StartTime),
				slog.Any("Error", err))
			return fmt.Errorf("event %q: %w", ev.ID, err)
		}
	}

	if err := txn.Commit(); err != nil {
		slog.Error("Could not commit events", slog.Int("events", len(events)), slog.Any("Error", err))
		return fmt.Errorf("commit error: %w", err)
	}
	return nil
}

// putEvent stores ev under its start-ordered key and repoints the id index.
// A copy left under an older start time is removed.
func putEvent(txn *badger.Txn, ev *Wt.NormalizedEvent) error {
	val, err := EventEncode(ev)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	key := dataKey(ev)
	idx := indexKey(ev.ID)

	item, err := txn.Get(idx)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		old, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !bytes.Equal(old, key) {
			if err := txn.Delete(old); err != nil {
				return err
			}
		}
	}

	if err := txn.Set(key, val); err != nil {
		return err
	}
	return txn.Set(idx, key)
}

// Close commits the queue, then closes the database whatever the outcome
func (bs *BadgerStore) Close() error {
	slog.Info("Closing event database", slog.Int("pending", bs.Pending()))
	err := errors.Join(bs.Flush(), bs.DB.Close())
	if err != nil {
		slog.Error("Event database did not close cleanly", slog.Any("Error", err))
		return fmt.Errorf("close error: %w", err)
	}
	return nil
}

func (bs *BadgerStore) Type() string { return "BadgerDB" }

// TimeKey is a sortable 12-byte prefix for an instant:
// sign-flipped big-endian unix seconds, then big-endian nanoseconds.
// UnixNano alone would overflow outside 1678..2262.
func TimeKey(t time.Time) []byte {
	key := make([]byte, keyTimeLen)
	binary.BigEndian.PutUint64(key[0:8], uint64(t.Unix())^(1<<63))
	binary.BigEndian.PutUint32(key[8:12], uint32(t.Nanosecond()))
	return key
}

// EventKey orders events by start time, then id
func EventKey(ev *Wt.NormalizedEvent) []byte {
	return append(TimeKey(ev.StartTime), ev.ID...)
}

func dataKey(ev *Wt.NormalizedEvent) []byte {
	return append(append([]byte{}, eventPrefix...), EventKey(ev)...)
}

func indexKey(id string) []byte {
	return append(append([]byte{}, indexPrefix...), id...)
}

// EventEncode serializes the event struct for data storage
func EventEncode(ev *Wt.NormalizedEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EventDecode deserializes the event data
func EventDecode(data []byte) (*Wt.NormalizedEvent, error) {
	var ev Wt.NormalizedEvent
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ev)
	return &ev, err
}

// QueryRange retrieves events overlapping [start, end).
// Event keys are ordered by start, so the scan stops at the first one at or after end.
func (bs *BadgerStore) QueryRange(start, end time.Time) ([]*Wt.NormalizedEvent, error) {
	var events []*Wt.NormalizedEvent
	stop := append(append([]byte{}, eventPrefix...), TimeKey(end)...)

	err := bs.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = eventPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(eventPrefix); it.ValidForPrefix(eventPrefix); it.Next() {
			item := it.Item()
			if bytes.Compare(item.Key(), stop) >= 0 {
				break
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("item data error: %w", err)
			}
			ev, err := EventDecode(val)
			if err != nil {
				slog.Error("Could not decode stored event", slog.String("key", string(item.Key())), slog.Any("Error", err))
				return fmt.Errorf("event decode error: %w", err)
			}
			if overlaps(ev, start, end) {
				events = append(events, ev)
			}
		}
		return nil
	})

	slog.Debug("Event range read", slog.Time("start", start), slog.Time("end", end), slog.Int("count", len(events)))
	return events, err
}

// All is every stored event in start order
func All(store EventStore) ([]*Wt.NormalizedEvent, error) {
	first := time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC)
	return store.QueryRange(first, last)
}
