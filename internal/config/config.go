package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the CareOClock server
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Security SecurityConfig `mapstructure:"security"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Predict  PredictConfig  `mapstructure:"predict"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AlertsConfig holds settings for the alert pipeline
type AlertsConfig struct {
	// SweepSchedule is a cron expression for the periodic adherence sweep
	SweepSchedule string `mapstructure:"sweep_schedule"`
	// SweepRatePerSec caps per-user evaluations during a sweep
	SweepRatePerSec float64 `mapstructure:"sweep_rate_per_sec"`
	DispatchWorkers int     `mapstructure:"dispatch_workers"`
}

// PredictConfig holds settings for the external risk service
type PredictConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "careoclock.db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "careoclock.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (CAREOCLOCK_SERVER_PORT, CAREOCLOCK_SECURITY_JWT_SECRET, etc.)
	v.SetEnvPrefix("CAREOCLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and invokes onChange with the
// fresh Config. Reload failures keep the previous configuration.
func Watch(configPath string, onChange func(*Config)) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		if err := validate(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()

	return v, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Alerts defaults: daily sweep at 06:00, gentle pacing
	v.SetDefault("alerts.sweep_schedule", "0 6 * * *")
	v.SetDefault("alerts.sweep_rate_per_sec", 20.0)
	v.SetDefault("alerts.dispatch_workers", 2)

	// Predict defaults
	v.SetDefault("predict.base_url", "")
	v.SetDefault("predict.timeout", 10)

	// Security defaults
	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "careoclock")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "careoclock")
}

// loadEnvOverrides loads specific env vars that Viper doesn't handle well
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Server.Address = getEnv("CAREOCLOCK_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("CAREOCLOCK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.Storage.DataDir = getEnv("CAREOCLOCK_STORAGE_DATA_DIR", cfg.Storage.DataDir)
	cfg.Security.JWTSecret = getEnv("CAREOCLOCK_SECURITY_JWT_SECRET", cfg.Security.JWTSecret)
	cfg.Alerts.SweepSchedule = getEnv("CAREOCLOCK_ALERTS_SWEEP_SCHEDULE", cfg.Alerts.SweepSchedule)
	cfg.Predict.BaseURL = getEnv("CAREOCLOCK_PREDICT_BASE_URL", cfg.Predict.BaseURL)
}

func validate(cfg *Config) error {
	if cfg.Alerts.SweepRatePerSec <= 0 {
		cfg.Alerts.SweepRatePerSec = 20.0
	}
	if cfg.Alerts.DispatchWorkers <= 0 {
		cfg.Alerts.DispatchWorkers = 2
	}
	if len(strings.Fields(cfg.Alerts.SweepSchedule)) != 5 {
		return fmt.Errorf("alerts.sweep_schedule must be a 5-field cron expression, got %q", cfg.Alerts.SweepSchedule)
	}

	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateRandomString(32)
	}

	return nil
}

func generateRandomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[i%len(letters)]
	}
	return string(b)
}
