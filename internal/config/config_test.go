package config

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_AppliesDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("ADMIN_ID", "6935090105")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(6935090105), cfg.AdminID)
	assert.Equal(t, BackendFile, cfg.StoreBackend)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(2500), cfg.ReferralBonus)
	assert.Equal(t, int64(1000), cfg.SignupBonus)
	assert.Equal(t, 10*time.Minute, cfg.SignupBonusDelay)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ReadsOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("STORE_BACKEND", "Bolt")
	t.Setenv("REFERRAL_BONUS", "100")
	t.Setenv("SIGNUP_BONUS_DELAY", "5s")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendBolt, cfg.StoreBackend)
	assert.Equal(t, int64(100), cfg.ReferralBonus)
	assert.Equal(t, 5*time.Second, cfg.SignupBonusDelay)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_FailsWithoutAdmin(t *testing.T) {
	resetViper(t)
	t.Setenv("ADMIN_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_ID")
}

func TestLoad_PostgresRequiresDBSource(t *testing.T) {
	resetViper(t)
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DB_SOURCE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_SOURCE")
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	resetViper(t)
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("STORE_BACKEND", "redis")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
}

func TestNewLogger(t *testing.T) {
	log := (&Config{Env: "production", LogLevel: "debug"}).NewLogger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log = (&Config{Env: "development", LogLevel: "loud"}).NewLogger()
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	log = (&Config{Env: "staging"}).NewLogger()
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}
