package cmd

import (
	"fmt"

	We "github.com/maroda/worldline/engine"
	Wp "github.com/maroda/worldline/plugin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Write the scene's events to an event store",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().String("store", "badger", "event store plugin (memory, badger)")
	importCmd.Flags().String("store-path", "worldline.db", "event store location")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	closeLog, err := setupLogging("")
	if err != nil {
		return err
	}
	defer closeLog()

	scene, err := loadScene(viper.GetString("scene"))
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("store")
	path, _ := cmd.Flags().GetString("store-path")
	store, err := Wp.StoreLookup(name, Wp.StoreOptions{
		Path:      path,
		BatchSize: We.FillEnvVarInt("WORLDLINE_STORE_BATCH", 64),
	})
	if err != nil {
		return err
	}

	n, err := importEvents(store, scene)
	if cerr := store.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "imported %d events into %s\n", n, store.Type())
	return nil
}

func importEvents(store Wp.EventStore, scene *We.Scene) (int, error) {
	for i := range scene.Events {
		if err := store.WriteEvent(&scene.Events[i]); err != nil {
			return i, fmt.Errorf("event %q: %w", scene.Events[i].ID, err)
		}
	}
	return len(scene.Events), store.Flush()
}
