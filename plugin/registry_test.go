package plugin_test

import (
	"path/filepath"
	"testing"

	Wp "github.com/maroda/worldline/plugin"
)

func TestStoreLookup(t *testing.T) {
	t.Run("Finds the memory store", func(t *testing.T) {
		store, err := Wp.StoreLookup("memory", Wp.StoreOptions{})
		assertError(t, err, nil)
		assertStringContains(t, store.Type(), "memory")
	})

	t.Run("Finds the badger store", func(t *testing.T) {
		store, err := Wp.StoreLookup("badger", Wp.StoreOptions{Path: filepath.Join(t.TempDir(), "db"), BatchSize: 8})
		assertError(t, err, nil)
		defer store.Close()
		assertStringContains(t, store.Type(), "BadgerDB")
	})

	t.Run("Rejects unknown stores", func(t *testing.T) {
		_, err := Wp.StoreLookup("floppy", Wp.StoreOptions{})
		assertGotError(t, err)
		assertStringContains(t, err.Error(), "floppy")
	})
}
