package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// DBSource is the Postgres connection string. Empty selects the
	// in-memory store, which only makes sense for local development.
	DBSource string
	Port     string
	Env      string

	// Supabase hosts both the identity (users) table and the
	// notifications table.
	SupabaseURL     string
	SupabaseAnonKey string

	AuthTimeout   time.Duration
	NotifyTimeout time.Duration

	// RoleCacheTTL > 0 caches role lookups in-process for that long,
	// taking the identity store out of the mutation hot path.
	RoleCacheTTL time.Duration
}

func Load() (*Config, error) {
	supabaseURL := os.Getenv("SUPABASE_URL")
	if supabaseURL == "" {
		return nil, fmt.Errorf("SUPABASE_URL environment variable is required")
	}

	supabaseKey := os.Getenv("SUPABASE_ANON_KEY")
	if supabaseKey == "" {
		return nil, fmt.Errorf("SUPABASE_ANON_KEY environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	authTimeout, err := durationEnv("AUTH_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	notifyTimeout, err := durationEnv("NOTIFY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	roleCacheTTL, err := durationEnv("ROLE_CACHE_TTL", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:        os.Getenv("DB_SOURCE"),
		Port:            port,
		Env:             env,
		SupabaseURL:     supabaseURL,
		SupabaseAnonKey: supabaseKey,
		AuthTimeout:     authTimeout,
		NotifyTimeout:   notifyTimeout,
		RoleCacheTTL:    roleCacheTTL,
	}, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
