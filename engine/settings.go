package worldline

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	TelemetryNone      = "none"
	TelemetryHoneycomb = "honeycomb"
	TelemetryOTLP      = "otlp"
)

// Settings holds runtime configuration.
// Values are populated from .worldline.yaml, WORLDLINE_* env vars, and CLI flags.
type Settings struct {
	Addr      string `mapstructure:"addr"`
	FPS       int    `mapstructure:"fps"`
	Scene     string `mapstructure:"scene"`
	Watch     bool   `mapstructure:"watch"`
	Zoom      int    `mapstructure:"zoom"`
	Store     string `mapstructure:"store"`
	StorePath string `mapstructure:"store_path"`
	LogFile   string `mapstructure:"log_file"`
	Telemetry string `mapstructure:"telemetry"`
}

// LoadSettings reads from viper, applying defaults for anything unset
func LoadSettings() (Settings, error) {
	viper.SetDefault("addr", ":8090")
	viper.SetDefault("fps", 30)
	viper.SetDefault("scene", "")
	viper.SetDefault("watch", false)
	viper.SetDefault("zoom", DefaultZoomLevel)
	viper.SetDefault("store", "memory")
	viper.SetDefault("store_path", "worldline.db")
	viper.SetDefault("log_file", "worldline.log")
	viper.SetDefault("telemetry", TelemetryNone)

	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return s, s.Validate()
}

func (s Settings) Validate() error {
	if s.FPS < 1 || s.FPS > 240 {
		return fmt.Errorf("settings.fps must be within 1..240, got %d", s.FPS)
	}
	if s.Zoom < MinZoomLevel || s.Zoom > MaxZoomLevel {
		return &UnknownZoomLevelError{Level: s.Zoom}
	}
	switch s.Telemetry {
	case TelemetryNone, TelemetryHoneycomb, TelemetryOTLP:
	default:
		return fmt.Errorf("settings.telemetry must be one of none, honeycomb, otlp, got %q", s.Telemetry)
	}
	return nil
}
