// Package config gathers the process configuration from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-hostlink-go/pkg/utilities"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	HTTPAddr     string
	StoreBackend string
	JWTSecret    string
	JWTIssuer    string
	TokenTTL     time.Duration
	AdminAPIKey  string
	// PreserveEmails seeds the maintenance preserve policy.
	PreserveEmails []string

	Log      utilities.Config
	Postgres database.Config
	Redis    database.RedisConfig
	Mongo    database.MongoConfig
}

// Load reads .env (best effort) and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:     getenv("HTTP_ADDR", "0.0.0.0:8431"),
		StoreBackend: strings.ToLower(getenv("STORE_BACKEND", BackendPostgres)),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTIssuer:    getenv("JWT_ISSUER", "hostlink"),
		TokenTTL:     time.Hour,
		AdminAPIKey:  os.Getenv("ADMIN_API_KEY"),
		Log:          utilities.ConfigFromEnv(),
		Postgres:     database.ConfigFromEnv(),
		Redis:        database.RedisConfigFromEnv(),
		Mongo:        database.MongoConfigFromEnv(),
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("%w: TOKEN_TTL %q", ErrInvalid, v)
		}
		cfg.TokenTTL = d
	}
	for _, e := range strings.Split(os.Getenv("PRESERVE_EMAILS"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			cfg.PreserveEmails = append(cfg.PreserveEmails, e)
		}
	}

	switch cfg.StoreBackend {
	case BackendPostgres, BackendRedis, BackendMongo:
	default:
		return cfg, fmt.Errorf("%w: STORE_BACKEND %q", ErrInvalid, cfg.StoreBackend)
	}
	if len(cfg.JWTSecret) < 16 {
		return cfg, fmt.Errorf("%w: JWT_SECRET must be at least 16 bytes", ErrInvalid)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
