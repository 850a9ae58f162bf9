package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	We "github.com/maroda/worldline/engine"
	Wo "github.com/maroda/worldline/obvy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "worldline",
	Short: "Temporal projection of orbital bodies and events",
	Long: `Worldline turns time into height: each orbiting body traces a helix
around its star, and calendar events are laid out as arcs around a reference body.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .worldline.yaml)")
	rootCmd.PersistentFlags().String("scene", "", "scene file (yaml, toml, or json; default built-in solar system)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("scene", rootCmd.PersistentFlags().Lookup("scene"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".worldline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("WORLDLINE")
	viper.AutomaticEnv()

	// no config file is fine, defaults apply
	_ = viper.ReadInConfig()
}

// setupLogging sends text to stderr, or JSON to the log file when the terminal is in use
func setupLogging(logFile string) (func(), error) {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return func() {}, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	var w io.Writer = f
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	return func() { f.Close() }, nil
}

func loadScene(path string) (*We.Scene, error) {
	if path == "" {
		return We.DefaultScene(), nil
	}
	scene, err := We.LoadSceneFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return scene, nil
}

// startTelemetry never returns a nil shutdown
func startTelemetry(ctx context.Context, kind string) func() {
	shutdown, err := Wo.InitTelemetry(ctx, kind)
	if err != nil {
		slog.Error("Telemetry disabled", slog.String("exporter", kind), slog.Any("Error", err))
	}
	return shutdown
}
