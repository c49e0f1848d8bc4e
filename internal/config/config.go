// Package config reads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ModeDebug   = "debug"
	ModeRelease = "release"
	ModeTest    = "test"
)

type Config struct {
	Port          string        `env:"PORT" envDefault:"8080"`
	Mode          string        `env:"GIN_MODE" envDefault:"debug"`
	ContentPath   string        `env:"CONTENT_PATH"`
	TemplatesGlob string        `env:"TEMPLATES_GLOB" envDefault:"templates/*"`
	StaticDir     string        `env:"STATIC_DIR" envDefault:"./static"`
	ImagesDir     string        `env:"IMAGES_DIR" envDefault:"./images"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"5s"`

	Analytics Analytics `envPrefix:"ANALYTICS_"`
	Admin     Admin     `envPrefix:"ADMIN_"`
}

type Analytics struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`
	DatabasePath string        `env:"DATABASE_PATH" envDefault:"data/skycode.db"`
	Retention    time.Duration `env:"RETENTION" envDefault:"8760h"`
}

type Admin struct {
	Username string `env:"USERNAME" envDefault:"admin"`
	Password string `env:"PASSWORD"`
}

func Read() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeDebug, ModeRelease, ModeTest:
	default:
		errs = append(errs, fmt.Errorf("invalid GIN_MODE %q: must be one of debug, release, test", c.Mode))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive, got %s", c.SweepInterval))
	}
	if c.Analytics.Enabled && c.Analytics.DatabasePath == "" {
		errs = append(errs, errors.New("ANALYTICS_DATABASE_PATH is required when analytics are enabled"))
	}
	if c.Analytics.Retention < 0 {
		errs = append(errs, fmt.Errorf("ANALYTICS_RETENTION must not be negative, got %s", c.Analytics.Retention))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string {
	return ":" + c.Port
}
