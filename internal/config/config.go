package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendFile     = "file"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

type Config struct {
	BotToken    string `mapstructure:"BOT_TOKEN"`
	BotUsername string `mapstructure:"BOT_USERNAME"`
	AdminID     int64  `mapstructure:"ADMIN_ID"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DataDir      string `mapstructure:"DATA_DIR"`
	DBSource     string `mapstructure:"DB_SOURCE"`

	Port          string `mapstructure:"SERVER_PORT"`
	Env           string `mapstructure:"ENVIRONMENT"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	AdminAPIToken string `mapstructure:"ADMIN_API_TOKEN"`

	ReferralBonus    int64         `mapstructure:"REFERRAL_BONUS"`
	SignupBonus      int64         `mapstructure:"SIGNUP_BONUS"`
	SignupBonusDelay time.Duration `mapstructure:"SIGNUP_BONUS_DELAY"`
	WithdrawURL      string        `mapstructure:"WITHDRAW_URL"`

	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	SweepSchedule string        `mapstructure:"SWEEP_SCHEDULE"`
}

var keys = []string{
	"BOT_TOKEN", "BOT_USERNAME", "ADMIN_ID",
	"STORE_BACKEND", "DATA_DIR", "DB_SOURCE",
	"SERVER_PORT", "ENVIRONMENT", "LOG_LEVEL", "ADMIN_API_TOKEN",
	"REFERRAL_BONUS", "SIGNUP_BONUS", "SIGNUP_BONUS_DELAY", "WITHDRAW_URL",
	"SESSION_TTL", "SWEEP_SCHEDULE",
}

// Load reads configuration from the environment, optionally seeded from a .env file
// in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetDefault("STORE_BACKEND", BackendFile)
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REFERRAL_BONUS", 2500)
	viper.SetDefault("SIGNUP_BONUS", 1000)
	viper.SetDefault("SIGNUP_BONUS_DELAY", "10m")
	viper.SetDefault("WITHDRAW_URL", "https://t.me")
	viper.SetDefault("SESSION_TTL", "30m")
	viper.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	viper.AutomaticEnv()

	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every entry point depends on. BOT_TOKEN is
// checked by the bot command itself so that the seeder can run without one.
func (c *Config) Validate() error {
	if c.AdminID <= 0 {
		return fmt.Errorf("ADMIN_ID environment variable is required")
	}
	switch c.StoreBackend {
	case BackendFile, BackendBolt:
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR must not be empty for the %s backend", c.StoreBackend)
		}
	case BackendPostgres:
		if c.DBSource == "" {
			return fmt.Errorf("DB_SOURCE environment variable is required for the postgres backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND %q is not one of file, bolt, postgres", c.StoreBackend)
	}
	if c.ReferralBonus < 0 {
		return fmt.Errorf("REFERRAL_BONUS must not be negative")
	}
	if c.SignupBonus < 0 {
		return fmt.Errorf("SIGNUP_BONUS must not be negative")
	}
	if c.SignupBonusDelay < 0 {
		return fmt.Errorf("SIGNUP_BONUS_DELAY must not be negative")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must not be negative")
	}
	return nil
}

// IsProduction selects JSON logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
