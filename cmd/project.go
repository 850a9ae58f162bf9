package cmd

import (
	"encoding/json"
	"math"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	We "github.com/maroda/worldline/engine"
	Wt "github.com/maroda/worldline/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Print each body's height and angle at an instant",
	RunE:  runProject,
}

func init() {
	projectCmd.Flags().String("date", "", "date or RFC 3339 instant (default now)")
	projectCmd.Flags().Float64("hour", 0, "hour of day in [0, 24), overrides the time of --date")
	projectCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(projectCmd)
}

type projection struct {
	Body    string  `json:"body"`
	Height  float64 `json:"height"`
	Angle   float64 `json:"angle"`
	Degrees float64 `json:"degrees"`
}

func runProject(cmd *cobra.Command, _ []string) error {
	closeLog, err := setupLogging("")
	if err != nil {
		return err
	}
	defer closeLog()

	scene, err := loadScene(viper.GetString("scene"))
	if err != nil {
		return err
	}

	at := time.Now().UTC()
	if d, _ := cmd.Flags().GetString("date"); d != "" {
		if at, err = We.ParseTime(d); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("hour") {
		hour, _ := cmd.Flags().GetFloat64("hour")
		h, err := We.Project(at, hour, scene.EpochYear)
		if err != nil {
			return err
		}
		if at, err = We.HeightToTime(h, scene.EpochYear); err != nil {
			return err
		}
	}

	rows, err := projectBodies(at, scene.Bodies, scene.EpochYear)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetTitle(at.Format(time.RFC3339))
	tw.AppendHeader(table.Row{"Body", "Height", "Angle (rad)", "Angle (deg)"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.Body, r.Height, r.Angle, r.Degrees})
	}
	tw.Render()
	return nil
}

func projectBodies(at time.Time, bodies []Wt.OrbitalBody, epoch int) ([]projection, error) {
	rows := make([]projection, 0, len(bodies))
	for _, b := range bodies {
		pos, err := We.Position(at, b, epoch)
		if err != nil {
			return nil, err
		}
		rows = append(rows, projection{
			Body:    b.Name,
			Height:  We.FloatPrecise(pos.Height, 4),
			Angle:   We.FloatPrecise(pos.AngleRadians, 4),
			Degrees: We.FloatPrecise(pos.AngleRadians*180/math.Pi, 2),
		})
	}
	return rows, nil
}
