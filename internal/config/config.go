// Package config provides environment-based configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/divvy/internal/utils"
)

// Config holds application configuration. Values loaded from the
// environment can later be overridden from the settings database via
// UpdateFromSettings; the settings database wins so credentials can be
// changed through the UI without a restart.
type Config struct {
	DataDir        string // Base directory for all databases
	Port           int
	LogLevel       string
	DevMode        bool
	T212APIKey     string // Fallback API key when none is stored in settings
	T212Mode       string // Fallback mode: "demo" or "live"
	StockInfoBin   string // Python interpreter for the stock-info helper
	StockInfoPath  string // Path to the stock-info helper script
	AllowedOrigins []string
}

// SettingsSource is the subset of the settings repository the config needs.
type SettingsSource interface {
	Get(key string) (*string, error)
}

// Load reads configuration from environment variables (.env supported).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DIVVY_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".divvy")
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		Port:          getEnvAsInt("DIVVY_PORT", 8080),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		T212APIKey:    getEnv("T212_API_KEY", ""),
		T212Mode:      getEnv("T212_MODE", "demo"),
		StockInfoBin:  getEnv("STOCK_INFO_BIN", "python3"),
		StockInfoPath: getEnv("STOCK_INFO_SCRIPT", "scripts/stock_info.py"),
		AllowedOrigins: utils.ParseCSV(getEnv("DIVVY_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	return cfg, nil
}

// UpdateFromSettings overlays stored settings onto the environment-derived
// configuration. Missing settings leave the env values in place.
func (c *Config) UpdateFromSettings(repo SettingsSource) error {
	if repo == nil {
		return nil
	}

	if v, err := repo.Get("api_key"); err != nil {
		return fmt.Errorf("failed to read api_key setting: %w", err)
	} else if v != nil && *v != "" {
		c.T212APIKey = *v
	}

	if v, err := repo.Get("mode"); err != nil {
		return fmt.Errorf("failed to read mode setting: %w", err)
	} else if v != nil && *v != "" {
		c.T212Mode = *v
	}

	return nil
}

// DatabasePath returns the path of a named database under the data dir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
