package cmd

import (
	"os"
	"os/signal"
	"syscall"

	Wd "github.com/maroda/worldline/display"
	We "github.com/maroda/worldline/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Run the terminal view with the HTTP API",
	RunE:  runView,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and websocket feed without a terminal view",
	RunE:  runServe,
}

func init() {
	for _, c := range []*cobra.Command{viewCmd, serveCmd} {
		c.Flags().String("addr", ":8090", "HTTP listen address")
		c.Flags().Int("fps", 30, "frames per second")
		c.Flags().Int("zoom", We.DefaultZoomLevel, "initial zoom level (1-9)")
		c.Flags().Bool("watch", false, "reload the scene file when it changes")
		c.Flags().String("store", "", "event store plugin (memory, badger)")
		c.Flags().String("store-path", "worldline.db", "event store location")
		c.Flags().String("telemetry", "none", "trace exporter (none, honeycomb, otlp)")
		rootCmd.AddCommand(c)
	}
	viewCmd.Flags().String("log-file", "worldline.log", "log file while the terminal is in use")
}

// bindRunFlags binds the running command's flags, since view and serve share keys
func bindRunFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("fps", cmd.Flags().Lookup("fps"))
	_ = viper.BindPFlag("zoom", cmd.Flags().Lookup("zoom"))
	_ = viper.BindPFlag("watch", cmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("store", cmd.Flags().Lookup("store"))
	_ = viper.BindPFlag("store_path", cmd.Flags().Lookup("store-path"))
	_ = viper.BindPFlag("telemetry", cmd.Flags().Lookup("telemetry"))
	if f := cmd.Flags().Lookup("log-file"); f != nil {
		_ = viper.BindPFlag("log_file", f)
	}
}

func options(s We.Settings) Wd.Options {
	opts := Wd.Options{
		Addr:      s.Addr,
		FPS:       s.FPS,
		Zoom:      s.Zoom,
		Store:     s.Store,
		StorePath: s.StorePath,
	}
	if s.Watch && s.Scene != "" {
		opts.Watch = s.Scene
	}
	return opts
}

func runView(cmd *cobra.Command, _ []string) error {
	bindRunFlags(cmd)
	s, err := We.LoadSettings()
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(s.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer startTelemetry(ctx, s.Telemetry)()

	scene, err := loadScene(s.Scene)
	if err != nil {
		return err
	}
	return Wd.StartWorldlineView(ctx, scene, options(s))
}

func runServe(cmd *cobra.Command, _ []string) error {
	bindRunFlags(cmd)
	s, err := We.LoadSettings()
	if err != nil {
		return err
	}

	closeLog, err := setupLogging("")
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer startTelemetry(ctx, s.Telemetry)()

	scene, err := loadScene(s.Scene)
	if err != nil {
		return err
	}
	return Wd.StartWebNoTUI(ctx, scene, options(s))
}
