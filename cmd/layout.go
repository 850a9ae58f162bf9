package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	We "github.com/maroda/worldline/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print event placements around the reference body",
	RunE:  runLayout,
}

func init() {
	layoutCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(layoutCmd)
}

func runLayout(cmd *cobra.Command, _ []string) error {
	closeLog, err := setupLogging("")
	if err != nil {
		return err
	}
	defer closeLog()

	scene, err := loadScene(viper.GetString("scene"))
	if err != nil {
		return err
	}

	refBody, ok := scene.ReferenceBody()
	if !ok {
		return fmt.Errorf("reference body %q not found", scene.Reference)
	}

	le := We.NewLayerEngine(scene.EpochYear)
	for _, s := range scene.Streams {
		le.StreamIndex(s.ID)
	}
	placements, layoutErr := le.Layout(scene.Events, scene.Streams, refBody)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(placements); err != nil {
			return err
		}
	} else {
		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.AppendHeader(table.Row{"Event", "Stream", "Lane", "Radius", "Start", "End"})
		for _, p := range placements {
			tw.AppendRow(table.Row{
				p.Event.ID,
				p.Event.StreamID,
				p.Lane,
				We.FloatPrecise(p.Radius, 2),
				We.FloatPrecise(p.StartHeight, 4),
				We.FloatPrecise(p.EndHeight, 4),
			})
		}
		tw.Render()
	}

	for _, e := range unwrapJoined(layoutErr) {
		fmt.Fprintln(cmd.ErrOrStderr(), "skipped:", e)
	}
	return nil
}

func unwrapJoined(err error) []error {
	if err == nil {
		return nil
	}
	var j interface{ Unwrap() []error }
	if errors.As(err, &j) {
		return j.Unwrap()
	}
	return []error{err}
}
