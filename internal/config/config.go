// Package config loads the fodcircle service configuration.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/michaelquigley/pfxlog"
	"github.com/phinze/fodcircle/internal/geometry"
	"github.com/phinze/fodcircle/internal/surface"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the file is read.
const (
	EnvNATSURL       = "FOD_NATS_URL"
	EnvDaemonSubject = "FOD_DAEMON_SUBJECT"
	EnvSettingsDB    = "FOD_SETTINGS_DB"
)

// Surface backends.
const (
	SurfaceWindow = "window"
	SurfaceDeck   = "deck"
)

// Config is the service configuration.
type Config struct {
	Daemon    DaemonConfig    `yaml:"daemon"`
	Display   DisplayConfig   `yaml:"display"`
	Animation AnimationConfig `yaml:"animation"`
	Settings  SettingsConfig  `yaml:"settings"`
	Surface   SurfaceConfig   `yaml:"surface"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DaemonConfig locates the sensor daemon.
type DaemonConfig struct {
	NATSURL        string        `yaml:"nats_url"`
	Subject        string        `yaml:"subject"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	ConnectMaxWait time.Duration `yaml:"connect_max_wait"`
}

// DisplayConfig describes the panel.
type DisplayConfig struct {
	Width       int     `yaml:"width"`
	Height      int     `yaml:"height"`
	Rotation    int     `yaml:"rotation"`
	NavBarSize  int     `yaml:"nav_bar_size"`
	CircleColor string  `yaml:"circle_color"`
	WindowScale float64 `yaml:"window_scale"`
}

// AnimationConfig sizes the recognition animation.
type AnimationConfig struct {
	Size int `yaml:"size"`
}

// SettingsConfig points at the settings database.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// SurfaceConfig picks where the overlay is drawn.
type SurfaceConfig struct {
	Kind string `yaml:"kind"`
}

// MetricsConfig controls the Prometheus endpoint. An empty listen address
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			NATSURL:        "nats://127.0.0.1:4222",
			Subject:        "fod.inscreen",
			CallTimeout:    2 * time.Second,
			ConnectMaxWait: 30 * time.Second,
		},
		Display: DisplayConfig{
			Width:       1080,
			Height:      2400,
			NavBarSize:  126,
			CircleColor: surface.DefaultCircleColor,
			WindowScale: 0.35,
		},
		Animation: AnimationConfig{Size: 300},
		Settings:  SettingsConfig{Path: "fodcircle.db"},
		Surface:   SurfaceConfig{Kind: SurfaceWindow},
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides. An empty path loads defaults only.
func Load(path string) (Config, error) {
	log := pfxlog.ContextLogger("config")

	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Daemon.NATSURL = v
	}
	if v := os.Getenv(EnvDaemonSubject); v != "" {
		c.Daemon.Subject = v
	}
	if v := os.Getenv(EnvSettingsDB); v != "" {
		c.Settings.Path = v
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	if c.Daemon.NATSURL == "" {
		return errors.New("daemon.nats_url is required")
	}
	if c.Daemon.Subject == "" {
		return errors.New("daemon.subject is required")
	}
	if c.Daemon.CallTimeout <= 0 {
		return errors.New("daemon.call_timeout must be positive")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return errors.Errorf("display size %dx%d is invalid", c.Display.Width, c.Display.Height)
	}
	if _, err := geometry.ParseRotation(c.Display.Rotation); err != nil {
		return errors.Wrap(err, "display.rotation")
	}
	if c.Display.NavBarSize < 0 {
		return errors.New("display.nav_bar_size must not be negative")
	}
	if _, err := surface.ParseColor(c.Display.CircleColor); err != nil {
		return errors.Wrap(err, "display.circle_color")
	}
	if c.Animation.Size < 0 {
		return errors.New("animation.size must not be negative")
	}
	switch c.Surface.Kind {
	case SurfaceWindow, SurfaceDeck:
	default:
		return errors.Errorf("surface.kind %q is not one of window, deck", c.Surface.Kind)
	}
	return nil
}

// ScreenSize returns the configured panel size.
func (c Config) ScreenSize() geometry.Size {
	return geometry.Size{Width: c.Display.Width, Height: c.Display.Height}
}
