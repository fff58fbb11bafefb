package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Spotify    SpotifyConfig
	Replicate  ReplicateConfig
	Storage    StorageConfig
	AuthLimit  AuthLimitConfig
	CORS       CORSConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type EncryptionConfig struct {
	Key string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type ReplicateConfig struct {
	APIToken     string
	ModelVersion string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type StorageConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// AuthLimitConfig tunes the coarse per-IP limiter in front of the auth
// routes. The per-subject usage accountant is configured in code via the
// rule table, not here.
type AuthLimitConfig struct {
	MaxRequests int
	WindowSec   int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),
		},
		JWT: JWTConfig{
			AccessSecret:  k.String("jwt.access.secret"),
			RefreshSecret: k.String("jwt.refresh.secret"),
		},
		Encryption: EncryptionConfig{
			Key: k.String("encryption.key"),
		},
		Spotify: SpotifyConfig{
			ClientID:     k.String("spotify.client.id"),
			ClientSecret: k.String("spotify.client.secret"),
			RedirectURL:  k.String("spotify.redirect.url"),
		},
		Replicate: ReplicateConfig{
			APIToken:     k.String("replicate.api.token"),
			ModelVersion: k.String("replicate.model.version"),
		},
		Storage: StorageConfig{
			Endpoint:     k.String("storage.endpoint"),
			Region:       k.String("storage.region"),
			Bucket:       k.String("storage.bucket"),
			AccessKey:    k.String("storage.access.key"),
			SecretKey:    k.String("storage.secret.key"),
			UsePathStyle: k.Bool("storage.use.path.style"),
		},
		AuthLimit: AuthLimitConfig{
			MaxRequests: k.Int("authlimit.max.requests"),
			WindowSec:   k.Int("authlimit.window.sec"),
		},
		CORS: CORSConfig{
			AllowedOrigins: k.Strings("cors.allowed.origins"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "tunecard"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "tunecard"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Spotify.RedirectURL == "" {
		cfg.Spotify.RedirectURL = "http://localhost:8080/api/v1/auth/callback"
	}
	if cfg.Replicate.ModelVersion == "" {
		cfg.Replicate.ModelVersion = "black-forest-labs/flux-schnell"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "tunecard-cards"
	}
	if cfg.AuthLimit.MaxRequests == 0 {
		cfg.AuthLimit.MaxRequests = 20
	}
	if cfg.AuthLimit.WindowSec == 0 {
		cfg.AuthLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	accessExpStr := k.String("jwt.access.expiry")
	if accessExpStr == "" {
		accessExpStr = "15m"
	}
	cfg.JWT.AccessExpiry, err = time.ParseDuration(accessExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}

	refreshExpStr := k.String("jwt.refresh.expiry")
	if refreshExpStr == "" {
		refreshExpStr = "168h"
	}
	cfg.JWT.RefreshExpiry, err = time.ParseDuration(refreshExpStr)
	if err != nil {
		return nil, fmt.Errorf("parsing jwt refresh expiry: %w", err)
	}

	pollIntervalStr := k.String("replicate.poll.interval")
	if pollIntervalStr == "" {
		pollIntervalStr = "2s"
	}
	cfg.Replicate.PollInterval, err = time.ParseDuration(pollIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("parsing replicate poll interval: %w", err)
	}

	pollTimeoutStr := k.String("replicate.poll.timeout")
	if pollTimeoutStr == "" {
		pollTimeoutStr = "120s"
	}
	cfg.Replicate.PollTimeout, err = time.ParseDuration(pollTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing replicate poll timeout: %w", err)
	}

	return cfg, nil
}
