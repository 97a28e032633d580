package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_NAME", "ecfr")
	t.Setenv("DB_USER", "ecfr")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DATA_DIR", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://www.ecfr.gov/api", cfg.ECFRBaseURL)
	require.Equal(t, []int{7, 50}, cfg.InterestTitles)
	require.Equal(t, time.Hour, cfg.LockTTL)
	require.Equal(t,
		"host=localhost port=5432 dbname=ecfr user=ecfr password=secret sslmode=disable",
		cfg.DSN())
	require.Equal(t, filepath.Join(cfg.DataDir, "title_path_map.json"), cfg.PathMapPath())
}

func TestLoadMissingDatabaseSettings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("DB_HOST", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DB_HOST")
	require.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestLoadInterestTitlesOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INTEREST_TITLES", " 7, 14 ,50 ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []int{7, 14, 50}, cfg.InterestTitles)
}

func TestLoadBadInterestTitles(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INTEREST_TITLES", "7,fifty")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "fifty")
}

func TestLoadLockTTLOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOCK_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, cfg.LockTTL)
}
