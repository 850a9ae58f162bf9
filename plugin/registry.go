package plugin

import "fmt"

// Stores is a global map of EventStore plugins.
var Stores = map[string]func(opts StoreOptions) (EventStore, error){
	"memory": func(StoreOptions) (EventStore, error) {
		return NewMemoryStore(), nil
	},
	"badger": func(opts StoreOptions) (EventStore, error) {
		return NewBadgerStore(opts.Path, opts.BatchSize)
	},
}

func StoreLookup(name string, opts StoreOptions) (EventStore, error) {
	factory, ok := Stores[name]
	if !ok {
		return nil, fmt.Errorf("unknown store: %s", name)
	}
	return factory(opts)
}
