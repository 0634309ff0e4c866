package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Moderation/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "MOD"

type Signal struct {
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	EventsPerSecond float64       `mapstructure:"events_per_second"`
	EventBurst      int           `mapstructure:"event_burst"`
	// Backpressure is "drop" or "disconnect".
	Backpressure string `mapstructure:"backpressure"`
}

// PongWait is how long a connection may stay silent before it is dropped.
func (s Signal) PongWait() time.Duration { return s.PingPeriod * 10 / 9 }

type Storage struct {
	// Driver is "memory" or "postgres".
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type Config struct {
	Mode        string           `mapstructure:"mode"`
	Port        int              `mapstructure:"port"`
	Secret      string           `mapstructure:"secret"`
	LogLevel    string           `mapstructure:"log_level"`
	Features    map[string]bool  `mapstructure:"features"`
	PowerLevels core.PowerLevels `mapstructure:"power_levels"`
	Signal      Signal           `mapstructure:"signal"`
	Storage     Storage          `mapstructure:"storage"`
}

func setDefaults(v *viper.Viper) {
	levels := core.DefaultPowerLevels()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("features.room_moderation", true)
	v.SetDefault("power_levels.kick", levels.Kick)
	v.SetDefault("power_levels.ban", levels.Ban)
	v.SetDefault("power_levels.change_roles", levels.ChangeRoles)
	v.SetDefault("power_levels.users_default", levels.UsersDefault)
	v.SetDefault("signal.read_limit", 32768)
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.write_wait", "10s")
	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.events_per_second", 10)
	v.SetDefault("signal.event_burst", 20)
	v.SetDefault("signal.backpressure", "drop")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 4)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) and applies
// MOD_* environment overrides, e.g. MOD_SIGNAL_BACKPRESSURE=disconnect.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit file. A missing file means defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Err(err).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("storage", cfg.Storage.Driver).
		Str("backpressure", cfg.Signal.Backpressure).
		Msg("config ready")
	return &cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	switch c.Signal.Backpressure {
	case "drop", "disconnect":
	default:
		return fmt.Errorf("%w: signal.backpressure %q", ErrInvalid, c.Signal.Backpressure)
	}
	if c.Signal.PingPeriod <= 0 || c.Signal.WriteWait <= 0 {
		return fmt.Errorf("%w: signal timings must be positive", ErrInvalid)
	}
	if c.Signal.SendBuffer <= 0 {
		return fmt.Errorf("%w: signal.send_buffer %d", ErrInvalid, c.Signal.SendBuffer)
	}
	if c.Signal.EventsPerSecond <= 0 || c.Signal.EventBurst <= 0 {
		return fmt.Errorf("%w: signal rate limit must be positive", ErrInvalid)
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn required for postgres", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: storage.driver %q", ErrInvalid, c.Storage.Driver)
	}
	p := c.PowerLevels
	if p.Kick < 0 || p.Ban < 0 || p.ChangeRoles < 0 || p.UsersDefault < 0 {
		return fmt.Errorf("%w: power levels must not be negative", ErrInvalid)
	}
	return nil
}
