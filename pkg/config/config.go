package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/korjavin/warbot/pkg/logger"
)

// Config holds all configuration for the application
type Config struct {
	// Telegram Bot configuration
	BotToken string

	// Access control
	AdminUserID    int64
	AllowedUserIDs []int64

	// Storage and assets
	DataDir   string
	AssetsDir string

	// Wars are scheduled in a fixed UTC offset
	WarTZOffsetHours int

	// OpenAI configuration, optional
	OpenAIAPIBase string
	OpenAIAPIKey  string
	OpenAIModel   string

	// Application configuration
	CatalogFile      string
	LogLevel         string
	StoreGCSchedule  string
	RobloxRatePerSec int
}

// LoadFromEnv loads configuration from environment variables.
// envFile is loaded first when it exists.
func LoadFromEnv(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		logger.Global.Warn("Could not load %s: %v", envFile, err)
	}

	cfg := &Config{}

	// Required configurations
	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}
	cfg.BotToken = botToken

	var err error
	if cfg.AdminUserID, err = parseInt64(getEnvWithDefault("ADMIN_USER_ID", "0")); err != nil {
		return nil, fmt.Errorf("invalid ADMIN_USER_ID: %w", err)
	}
	if cfg.AllowedUserIDs, err = parseIDList(os.Getenv("ALLOWED_USER_IDS")); err != nil {
		return nil, fmt.Errorf("invalid ALLOWED_USER_IDS: %w", err)
	}
	if cfg.WarTZOffsetHours, err = strconv.Atoi(getEnvWithDefault("WAR_TZ_OFFSET_HOURS", "7")); err != nil {
		return nil, fmt.Errorf("invalid WAR_TZ_OFFSET_HOURS: %w", err)
	}
	if cfg.WarTZOffsetHours < -12 || cfg.WarTZOffsetHours > 14 {
		return nil, fmt.Errorf("WAR_TZ_OFFSET_HOURS out of range: %d", cfg.WarTZOffsetHours)
	}
	if cfg.RobloxRatePerSec, err = strconv.Atoi(getEnvWithDefault("ROBLOX_REQUESTS_PER_SECOND", "2")); err != nil {
		return nil, fmt.Errorf("invalid ROBLOX_REQUESTS_PER_SECOND: %w", err)
	}

	// Optional configurations with defaults
	cfg.DataDir = getEnvWithDefault("DATA_DIR", "./data")
	cfg.AssetsDir = getEnvWithDefault("ASSETS_DIR", "./assets")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIAPIBase = getEnvWithDefault("OPENAI_API_BASE", "https://api.openai.com/v1")
	cfg.OpenAIModel = getEnvWithDefault("OPENAI_MODEL", "gpt-3.5-turbo")
	cfg.CatalogFile = os.Getenv("CATALOG_FILE")
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.StoreGCSchedule = getEnvWithDefault("STORE_GC_SCHEDULE", "@every 10m")

	// Log configuration with sensitive data redacted
	logCfg := *cfg
	logCfg.BotToken = redact(logCfg.BotToken)
	logCfg.OpenAIAPIKey = redact(logCfg.OpenAIAPIKey)
	logger.Global.Info("Configuration loaded: %+v", logCfg)
	return cfg, nil
}

// IsAllowed reports whether userID is the bot admin or in the allow list
func (c *Config) IsAllowed(userID int64) bool {
	if c.AdminUserID != 0 && userID == c.AdminUserID {
		return true
	}
	for _, id := range c.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// getEnvWithDefault returns the value of the environment variable or the default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parseInt64(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func redact(secret string) string {
	if len(secret) > 8 {
		return secret[:8] + "...REDACTED..."
	}
	return secret
}
