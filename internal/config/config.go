package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// relay reports whether the server has a TURN URL, the only kind that takes credentials.
func (s ICEServer) relay() bool {
	for _, u := range s.URLs {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	LogLevel   string        `mapstructure:"log_level"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Signaling SignalingConfig `mapstructure:"signaling"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Recording RecordingConfig `mapstructure:"recording"`
	Session   SessionConfig   `mapstructure:"session"`
	ICE       []ICEServer     `mapstructure:"ice_servers"`
	Store     StoreConfig     `mapstructure:"store"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Capture   CaptureConfig   `mapstructure:"capture"`
}

type SignalingConfig struct {
	URL               string        `mapstructure:"url"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	OutboxSize        int           `mapstructure:"outbox_size"`
}

type QualityConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	RecoverAfter int           `mapstructure:"recover_after"`
}

type RecordingConfig struct {
	FrameRate int `mapstructure:"frame_rate"`
}

type SessionConfig struct {
	MaxParticipants int `mapstructure:"max_participants"`
	RetainClosed    int `mapstructure:"retain_closed"`
}

type StoreConfig struct {
	// Driver is postgres, sqlite or none.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type StorageConfig struct {
	// Kind is http or file.
	Kind    string `mapstructure:"kind"`
	BaseURL string `mapstructure:"base_url"`
	Dir     string `mapstructure:"dir"`
	Token   string `mapstructure:"-"`
}

type CaptureConfig struct {
	Dir string `mapstructure:"dir"`
}

// secrets never live in the yaml files.
type secrets struct {
	DatabaseURL    string `env:"CONSULT_DATABASE_URL"`
	TURNUsername   string `env:"CONSULT_TURN_USERNAME"`
	TURNCredential string `env:"CONSULT_TURN_CREDENTIAL"`
	StorageToken   string `env:"CONSULT_STORAGE_TOKEN"`
	SessionSecret  string `env:"CONSULT_SESSION_SECRET"`
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applySecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("signaling.url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("signaling.reconnect_interval", "3s")
	v.SetDefault("signaling.outbox_size", 256)
	v.SetDefault("quality.interval", "5s")
	v.SetDefault("quality.recover_after", 3)
	v.SetDefault("recording.frame_rate", 30)
	v.SetDefault("session.max_participants", 0)
	v.SetDefault("session.retain_closed", 256)
	v.SetDefault("ice_servers", []map[string]any{{"urls": []string{"stun:stun.l.google.com:19302"}}})
	v.SetDefault("store.driver", "none")
	v.SetDefault("storage.kind", "file")
	v.SetDefault("storage.dir", "./artifacts")
	v.SetDefault("capture.dir", "./media")
}

func (c *Config) applySecrets() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("environment variables are invalid: %w", err)
	}
	if s.DatabaseURL != "" {
		c.Store.DSN = s.DatabaseURL
	}
	if s.SessionSecret != "" {
		c.Secret = s.SessionSecret
	}
	c.Storage.Token = s.StorageToken
	if s.TURNUsername != "" || s.TURNCredential != "" {
		for i := range c.ICE {
			if !c.ICE[i].relay() {
				continue
			}
			c.ICE[i].Username = s.TURNUsername
			c.ICE[i].Credential = s.TURNCredential
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be 1-65535, got %d", c.Port))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret is required (CONSULT_SESSION_SECRET)"))
	}
	if c.Signaling.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("signaling.reconnect_interval must be positive"))
	}
	if c.Quality.Interval <= 0 {
		errs = append(errs, errors.New("quality.interval must be positive"))
	}
	if c.Quality.RecoverAfter < 0 {
		errs = append(errs, errors.New("quality.recover_after must not be negative"))
	}
	if c.Recording.FrameRate <= 0 || c.Recording.FrameRate > 60 {
		errs = append(errs, fmt.Errorf("recording.frame_rate must be 1-60, got %d", c.Recording.FrameRate))
	}
	if c.Session.MaxParticipants < 0 {
		errs = append(errs, errors.New("session.max_participants must not be negative"))
	}
	switch c.Store.Driver {
	case "none":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be postgres, sqlite or none, got %q", c.Store.Driver))
	}
	switch c.Storage.Kind {
	case "http":
		if c.Storage.BaseURL == "" {
			errs = append(errs, errors.New("storage.base_url is required for http storage"))
		}
	case "file":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for file storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.kind must be http or file, got %q", c.Storage.Kind))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Mode == "debug"
}
