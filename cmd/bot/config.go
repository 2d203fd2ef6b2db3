package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// AppName is the name of the application.
	AppName = "hound"

	// EnvBotToken is the environment variable for the bot token.
	EnvBotToken = `BOT_TOKEN`

	// EnvApplicationId is the environment variable for the application ID.
	EnvApplicationId = `APPLICATION_ID`

	// EnvMongoUri is the environment variable for the MongoDB URI.
	EnvMongoUri = `MONGO_URI`

	// EnvMonitoringPort is the environment variable for the monitoring port.
	EnvMonitoringPort = `MONITORING_PORT`

	// EnvDashboardPort is the environment variable for the dashboard API port.
	EnvDashboardPort = `DASHBOARD_PORT`

	// EnvJWTSecret is the environment variable for the dashboard token secret.
	EnvJWTSecret = `JWT_SECRET`

	// EnvDashboardPassword is the environment variable for the dashboard login password.
	EnvDashboardPassword = `DASHBOARD_PASSWORD`

	// EnvDataDir is the environment variable for the data directory.
	EnvDataDir = `DATA_DIR`

	// EnvStorageBackend is the environment variable selecting the document store.
	EnvStorageBackend = `STORAGE_BACKEND`

	// EnvPrefix is the environment variable for the prefix command trigger.
	EnvPrefix = `PREFIX`

	// EnvDashboardRateLimit is the environment variable for the per client request rate.
	EnvDashboardRateLimit = `DASHBOARD_RATE_LIMIT`
)

// Storage backends.
const (
	StorageFile  = "file"
	StorageMongo = "mongo"
)

// Config is the application configuration. Values are read from the optional yaml file
// first and then overridden by the environment.
type Config struct {
	BotToken       string `yaml:"botToken"`
	ApplicationId  string `yaml:"applicationId"`
	MongoUri       string `yaml:"mongoUri"`
	MonitoringPort string `yaml:"monitoringPort"`
	DashboardPort  string `yaml:"dashboardPort"`
	DataDir        string `yaml:"dataDir"`
	StorageBackend string `yaml:"storageBackend"`
	Prefix         string `yaml:"prefix"`

	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DashboardConfig configures the dashboard API.
type DashboardConfig struct {
	JWTSecret string        `yaml:"jwtSecret"`
	Password  string        `yaml:"password"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
	RateLimit float64       `yaml:"rateLimit"`
	Burst     int           `yaml:"burst"`
}

// defaultConfig returns the configuration used for anything not set.
func defaultConfig() *Config {
	return &Config{
		MonitoringPort: "8080",
		DashboardPort:  "3001",
		DataDir:        "data",
		StorageBackend: StorageFile,
		Prefix:         "!",
		Dashboard: DashboardConfig{
			TokenTTL:  24 * time.Hour,
			RateLimit: 10,
			Burst:     20,
		},
	}
}

// loadConfig parses the command line, reads the config file if one was given and applies
// the environment on top.
func loadConfig(l *slog.Logger) (*Config, error) {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	path := flags.String("config", "", "path to a yaml configuration file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("error parsing flags: %w", err)
	}
	return readConfig(l, *path, os.Getenv)
}

func readConfig(l *slog.Logger, path string, getenv func(string) string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error decoding config file: %w", err)
		}
		l.Debug("Loaded config file", slog.String("path", path))
	}

	strs := []struct {
		key string
		dst *string
	}{
		{EnvBotToken, &cfg.BotToken},
		{EnvApplicationId, &cfg.ApplicationId},
		{EnvMongoUri, &cfg.MongoUri},
		{EnvMonitoringPort, &cfg.MonitoringPort},
		{EnvDashboardPort, &cfg.DashboardPort},
		{EnvDataDir, &cfg.DataDir},
		{EnvStorageBackend, &cfg.StorageBackend},
		{EnvPrefix, &cfg.Prefix},
		{EnvJWTSecret, &cfg.Dashboard.JWTSecret},
		{EnvDashboardPassword, &cfg.Dashboard.Password},
	}
	for _, s := range strs {
		if v := getenv(s.key); v != "" {
			l.Debug("Found config in environment", slog.String("key", s.key))
			*s.dst = v
		}
	}

	if v := getenv(EnvDashboardRateLimit); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing %s: %w", EnvDashboardRateLimit, err)
		}
		cfg.Dashboard.RateLimit = limit
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvBotToken))
	}
	if c.ApplicationId == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvApplicationId))
	}
	switch c.StorageBackend {
	case StorageFile:
	case StorageMongo:
		if c.MongoUri == "" {
			errs = append(errs, fmt.Errorf("%s is required for the mongo backend", EnvMongoUri))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	if c.Dashboard.Password != "" && c.Dashboard.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%s is required when the dashboard is enabled", EnvJWTSecret))
	}
	if c.Prefix == "" {
		errs = append(errs, errors.New("the command prefix cannot be empty"))
	}
	return errors.Join(errs...)
}
