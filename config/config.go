// server/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const defaultBodyLimit = 4 * 1024 * 1024

type Config struct {
	Host      string
	Port      string
	SeedFile  string
	Strict    bool
	Token     string
	Peers     []string
	ServerID  string
	BodyLimit int
	LogLevel  zerolog.Level
	LogPretty bool
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Host:     os.Getenv("MINDMAP_HOST"),
		Port:     getenv("MINDMAP_PORT", "5000"),
		SeedFile: os.Getenv("MINDMAP_SEED_FILE"),
		Token:    os.Getenv("MINDMAP_TOKEN"),
		ServerID: os.Getenv("MINDMAP_SERVER_ID"),
	}

	if cfg.ServerID == "" {
		cfg.ServerID = uuid.NewString()
	}

	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return Config{}, fmt.Errorf("invalid MINDMAP_PORT %q: %w", cfg.Port, err)
	}

	var err error
	if cfg.Strict, err = parseBool("MINDMAP_STRICT"); err != nil {
		return Config{}, err
	}
	if cfg.LogPretty, err = parseBool("MINDMAP_LOG_PRETTY"); err != nil {
		return Config{}, err
	}

	cfg.BodyLimit = defaultBodyLimit
	if v := os.Getenv("MINDMAP_BODY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid MINDMAP_BODY_LIMIT %q", v)
		}
		cfg.BodyLimit = n
	}

	cfg.LogLevel = zerolog.InfoLevel
	if v := os.Getenv("MINDMAP_LOG_LEVEL"); v != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil {
			return Config{}, fmt.Errorf("invalid MINDMAP_LOG_LEVEL %q: %w", v, err)
		}
		cfg.LogLevel = lvl
	}

	for _, p := range strings.Split(os.Getenv("MINDMAP_PEERS"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Peers = append(cfg.Peers, p)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
