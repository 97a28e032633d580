// Package config resolves runtime configuration from .env files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the complete runtime configuration.
type Config struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ECFRBaseURL    string
	DataDir        string
	InterestTitles []int
	LockTTL        time.Duration
}

// Load reads a .env file when present, then the environment. The database
// settings are required; everything else has a default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, relying on environment variables")
	}

	var missing []string
	need := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DBHost:      need("DB_HOST"),
		DBPort:      need("DB_PORT"),
		DBName:      need("DB_NAME"),
		DBUser:      need("DB_USER"),
		DBPassword:  need("DB_PASSWORD"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		ECFRBaseURL: getEnv("ECFR_BASE_URL", "https://www.ecfr.gov/api"),
		DataDir:     getEnv("DATA_DIR", "./data"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	titles, err := parseTitles(getEnv("INTEREST_TITLES", "7,50"))
	if err != nil {
		return nil, fmt.Errorf("INTEREST_TITLES: %w", err)
	}
	cfg.InterestTitles = titles

	ttl, err := time.ParseDuration(getEnv("LOCK_TTL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("LOCK_TTL: %w", err)
	}
	cfg.LockTTL = ttl

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return cfg, nil
}

// DSN renders the Postgres connection string for the pgx stdlib driver.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode)
}

func (c *Config) LogDir() string { return filepath.Join(c.DataDir, "logs") }

func (c *Config) PathMapPath() string { return filepath.Join(c.DataDir, "title_path_map.json") }

func (c *Config) AgencyMapPath() string { return filepath.Join(c.DataDir, "title_agency_map.json") }

func (c *Config) TransformMapPath() string {
	return filepath.Join(c.DataDir, "word_transformation_map.json")
}

func (c *Config) ArtifactsDir() string { return filepath.Join(c.DataDir, "artifacts") }

func parseTitles(s string) ([]int, error) {
	var titles []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("bad title number %q", field)
		}
		titles = append(titles, n)
	}
	return titles, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
