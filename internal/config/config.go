package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	// Backpressure is "kick" or "drop".
	Backpressure string `mapstructure:"backpressure"`

	Secret    string `mapstructure:"secret"`
	JWTSecret string `mapstructure:"jwt_secret"`

	Store         string `mapstructure:"store"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	ContactsTTL   time.Duration `mapstructure:"contacts_ttl"`

	NatsURL       string `mapstructure:"nats_url"`
	NotifySubject string `mapstructure:"notify_subject"`

	RingTimeout    time.Duration `mapstructure:"ring_timeout"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout"`
	ICEServers     []ICEServer   `mapstructure:"ice_servers"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

var ErrNoJWTSecret = errors.New("jwt_secret is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "25s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("backpressure", "kick")
	v.SetDefault("secret", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("store", StoreMemory)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "realm")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("contacts_ttl", "1m")
	v.SetDefault("nats_url", "")
	v.SetDefault("notify_subject", "realm.notify")
	v.SetDefault("ring_timeout", "30s")
	v.SetDefault("cleanup_timeout", "5s")
	v.SetDefault("ice_servers", []map[string]any{})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev when unset) with
// REALM_ environment overrides.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load for an explicit path. A missing file is not an error.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("REALM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrNoJWTSecret
	}
	switch c.Store {
	case StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.Backpressure {
	case "", "kick", "drop":
	default:
		return fmt.Errorf("unknown backpressure policy %q", c.Backpressure)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}
