// Package config loads the application configuration from a JSON file and
// the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/logger"
	"github.com/franckalain/nutritionbot/internal/ml"
	"github.com/franckalain/nutritionbot/internal/storage"
	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	Env string `json:"env"`

	Server struct {
		Port  string `json:"port" validate:"required"`
		Debug bool   `json:"debug"`
	} `json:"server"`

	Database struct {
		Driver string `json:"driver" validate:"oneof=sqlite postgres memory"`
		Path   string `json:"path"`
		URL    string `json:"url"`
	} `json:"database"`

	Ledger struct {
		DayStartHour int    `json:"day_start_hour" validate:"gte=0,lte=23"`
		Timezone     string `json:"timezone"`
	} `json:"ledger"`

	Providers struct {
		OFFBaseURL              string `json:"off_base_url"`
		USDAEndpoint            string `json:"usda_endpoint"`
		USDAAPIKey              string `json:"usda_api_key"`
		TimeoutSeconds          int    `json:"timeout_seconds" validate:"gt=0"`
		EstimatorTimeoutSeconds int    `json:"estimator_timeout_seconds" validate:"gt=0"`
	} `json:"providers"`

	ML ml.Config `json:"ml"`

	Storage storage.S3Config `json:"storage"`
}

// Default returns the configuration used for anything the file and the
// environment leave unset.
func Default() *Config {
	cfg := &Config{Env: "development"}
	cfg.Server.Port = "8080"
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "nutritionbot.db"
	cfg.Ledger.DayStartHour = 3
	cfg.Providers.TimeoutSeconds = 8
	cfg.Providers.EstimatorTimeoutSeconds = 45
	cfg.ML.Type = ml.TypeGemini
	return cfg
}

// LoadConfig reads configPath over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration %v: %w", apperror.ValidationMessages(err), err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnv("ENV", c.Env)
	c.Server.Port = getEnv("PORT", c.Server.Port)

	c.Database.Driver = strings.ToLower(getEnv("DB_DRIVER", c.Database.Driver))
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)

	c.Ledger.Timezone = getEnv("TIMEZONE", c.Ledger.Timezone)

	c.Providers.OFFBaseURL = getEnv("OFF_BASE_URL", c.Providers.OFFBaseURL)
	c.Providers.USDAEndpoint = getEnv("USDA_API_ENDPOINT", c.Providers.USDAEndpoint)
	c.Providers.USDAAPIKey = getEnv("USDA_API_KEY", c.Providers.USDAAPIKey)

	c.ML.Type = getEnv("ML_TYPE", c.ML.Type)
	c.ML.ProjectID = getEnv("GOOGLE_PROJECT_ID", c.ML.ProjectID)
	c.ML.Location = getEnv("GOOGLE_LOCATION", c.ML.Location)
	c.ML.CredentialsFile = getEnv("GOOGLE_CREDENTIALS_FILE", c.ML.CredentialsFile)
	c.ML.APIKey = getEnv("GEMINI_API_KEY", c.ML.APIKey)
	c.ML.Model = getEnv("GEMINI_MODEL", c.ML.Model)

	c.Storage.Bucket = getEnv("S3_BUCKET", c.Storage.Bucket)
	c.Storage.Endpoint = getEnv("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.Region = getEnv("S3_REGION", c.Storage.Region)
	c.Storage.AccessKey = getEnv("S3_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("S3_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.PublicBaseURL = getEnv("S3_PUBLIC_BASE_URL", c.Storage.PublicBaseURL)

	var err error
	if c.Ledger.DayStartHour, err = getEnvInt("LOGICAL_DAY_START_HOUR", c.Ledger.DayStartHour); err != nil {
		return err
	}
	if c.Providers.TimeoutSeconds, err = getEnvSeconds("PROVIDER_TIMEOUT", c.Providers.TimeoutSeconds); err != nil {
		return err
	}
	if c.Providers.EstimatorTimeoutSeconds, err = getEnvSeconds("ESTIMATOR_TIMEOUT", c.Providers.EstimatorTimeoutSeconds); err != nil {
		return err
	}
	return nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return logger.IsProduction(c.Env)
}

// ProviderTimeout bounds each nutrition database call
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Providers.TimeoutSeconds) * time.Second
}

// EstimatorTimeout bounds each AI estimation call
func (c *Config) EstimatorTimeout() time.Duration {
	return time.Duration(c.Providers.EstimatorTimeoutSeconds) * time.Second
}

// Location returns the timezone logical days are computed in
func (c *Config) Location() (*time.Location, error) {
	if c.Ledger.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Ledger.Timezone, err)
	}
	return loc, nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("NUTRITIONBOT_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	return "config.json"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getEnvSeconds accepts "8" or a duration such as "8s" or "1m"
func getEnvSeconds(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int(d / time.Second), nil
}
