// Package config loads server settings from defaults, an optional YAML file and the environment,
// in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs for the gateway and the historian.
type Config struct {
	Port string    `yaml:"port"`
	Log  LogConfig `yaml:"log"`

	// AllowedOrigins is the CORS allow-list for the HTTP query endpoints.
	AllowedOrigins []string `yaml:"allowedOrigins"`

	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Mines     MinesConfig     `yaml:"mines"`
	Historian HistorianConfig `yaml:"historian"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

type PostgresConfig struct {
	// URL wins over the discrete fields when set.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	DB          int    `yaml:"db"`
	BeamChannel string `yaml:"beamChannel"`
	ActionQueue string `yaml:"actionQueue"`
}

type AuthConfig struct {
	PublicKeyPath  string `yaml:"publicKeyPath"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
	// TokenExpiry of 0 issues tokens without an exp claim.
	TokenExpiry time.Duration `yaml:"tokenExpiry"`
}

type GatewayConfig struct {
	PingInterval     time.Duration `yaml:"pingInterval"`
	MaxMissedPings   int           `yaml:"maxMissedPings"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
	SendBuffer       int           `yaml:"sendBuffer"`
}

type MinesConfig struct {
	TurnTimeout  time.Duration `yaml:"turnTimeout"`
	EndGameDelay time.Duration `yaml:"endGameDelay"`
	MaxRoomUsers int           `yaml:"maxRoomUsers"`
}

type HistorianConfig struct {
	BatchSize  int           `yaml:"batchSize"`
	FlushDelay time.Duration `yaml:"flushDelay"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Port:           "8080",
		Log:            LogConfig{Level: "info", Format: "text"},
		AllowedOrigins: []string{"https://*", "http://*"},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Database: "entertaining",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			BeamChannel: "entertaining:beam",
			ActionQueue: "entertaining:actions",
		},
		Gateway: GatewayConfig{
			PingInterval:     10 * time.Second,
			MaxMissedPings:   4,
			HandshakeTimeout: 30 * time.Second,
			SendBuffer:       256,
		},
		Mines: MinesConfig{
			TurnTimeout:  30 * time.Second,
			EndGameDelay: 5 * time.Second,
			MaxRoomUsers: 10,
		},
		Historian: HistorianConfig{
			BatchSize:  20,
			FlushDelay: 500 * time.Millisecond,
		},
	}
}

// Load layers the YAML file at path (if it exists) and then the environment over Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// optional
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	c.Postgres.URL = getEnv("DATABASE_URL", c.Postgres.URL)
	c.Postgres.Host = getEnv("PG_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnv("PG_PORT", c.Postgres.Port)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.Database = getEnv("PG_DATABASE", c.Postgres.Database)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.BeamChannel = getEnv("BEAM_CHANNEL", c.Redis.BeamChannel)
	c.Redis.ActionQueue = getEnv("HISTORIAN_QUEUE_NAME", c.Redis.ActionQueue)

	c.Auth.PublicKeyPath = getEnv("JWT_PUBLIC_KEY_PATH", c.Auth.PublicKeyPath)
	c.Auth.PrivateKeyPath = getEnv("JWT_PRIVATE_KEY_PATH", c.Auth.PrivateKeyPath)

	var err error
	if exp := os.Getenv("TOKEN_EXPIRE_TIME"); exp == "never" || exp == "0" {
		c.Auth.TokenExpiry = 0
	} else if c.Auth.TokenExpiry, err = getEnvDuration("TOKEN_EXPIRE_TIME", c.Auth.TokenExpiry); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Gateway.PingInterval, err = getEnvDuration("PING_INTERVAL", c.Gateway.PingInterval); err != nil {
		return err
	}
	if c.Gateway.MaxMissedPings, err = getEnvInt("MAX_MISSED_PINGS", c.Gateway.MaxMissedPings); err != nil {
		return err
	}
	if c.Gateway.HandshakeTimeout, err = getEnvDuration("HANDSHAKE_TIMEOUT", c.Gateway.HandshakeTimeout); err != nil {
		return err
	}
	if c.Mines.TurnTimeout, err = getEnvDuration("TURN_TIMEOUT", c.Mines.TurnTimeout); err != nil {
		return err
	}
	if c.Mines.EndGameDelay, err = getEnvDuration("END_GAME_DELAY", c.Mines.EndGameDelay); err != nil {
		return err
	}
	if c.Mines.MaxRoomUsers, err = getEnvInt("MAX_ROOM_USERS", c.Mines.MaxRoomUsers); err != nil {
		return err
	}
	if c.Historian.BatchSize, err = getEnvInt("HISTORIAN_BATCH_SIZE", c.Historian.BatchSize); err != nil {
		return err
	}
	flushMs, err := getEnvInt("HISTORIAN_FLUSH_MS", int(c.Historian.FlushDelay/time.Millisecond))
	if err != nil {
		return err
	}
	c.Historian.FlushDelay = time.Duration(flushMs) * time.Millisecond
	return nil
}

// PostgresURL builds the connection string for pgx.
func (c *Config) PostgresURL() string {
	if c.Postgres.URL != "" {
		return c.Postgres.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Database,
	)
}

// getEnv reads an environment variable or returns def.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, s, err)
	}
	return v, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, s, err)
	}
	return d, nil
}
