package plugin

import (
	"bytes"
	"sort"
	"sync"
	"time"

	Wt "github.com/maroda/worldline/types"
)

// MemoryStore keeps events for the life of the process, one per id
type MemoryStore struct {
	MU     sync.RWMutex
	events map[string]*Wt.NormalizedEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Wt.NormalizedEvent)}
}

func (ms *MemoryStore) WriteEvent(ev *Wt.NormalizedEvent) error {
	ms.MU.Lock()
	defer ms.MU.Unlock()
	ms.events[ev.ID] = ev
	return nil
}

func (ms *MemoryStore) WriteBatch(events []*Wt.NormalizedEvent) error {
	ms.MU.Lock()
	defer ms.MU.Unlock()
	for _, ev := range events {
		ms.events[ev.ID] = ev
	}
	return nil
}

// QueryRange returns events overlapping [start, end) in start order
func (ms *MemoryStore) QueryRange(start, end time.Time) ([]*Wt.NormalizedEvent, error) {
	ms.MU.RLock()
	defer ms.MU.RUnlock()

	out := make([]*Wt.NormalizedEvent, 0, len(ms.events))
	for _, ev := range ms.events {
		if overlaps(ev, start, end) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(EventKey(out[i]), EventKey(out[j])) < 0
	})
	return out, nil
}

func (ms *MemoryStore) Flush() error { return nil }
func (ms *MemoryStore) Close() error { return nil }
func (ms *MemoryStore) Type() string { return "memory" }
