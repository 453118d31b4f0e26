// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName               string   `mapstructure:"appname"`
	AppPort               string   `mapstructure:"appport"`
	Environment           string   `mapstructure:"environment"`
	LogLevel              LogLevel `mapstructure:"loglevel"`
	PrivateKey            string   `mapstructure:"privatekey"`
	SessionTimeoutSeconds int      `mapstructure:"sessiontimeoutseconds"`
	APIKey                string   `mapstructure:"apikey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	GeoLiteLicenseKey     string `mapstructure:"geolitelicensekey"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Tracking settings
	ActiveWindowSeconds    int  `mapstructure:"activewindowseconds"`
	HeartbeatRetentionDays int  `mapstructure:"heartbeatretentiondays"`
	RateLimitPerMinute     int  `mapstructure:"ratelimitperminute"`
	MetricsEnabled         bool `mapstructure:"metricsenabled"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "sitetrack")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("activewindowseconds", 45)
		v.SetDefault("heartbeatretentiondays", 7)
		v.SetDefault("ratelimitperminute", 120)
		v.SetDefault("metricsenabled", true)
		v.SetDefault("jobintervalseconds", 3600)

		v.BindEnv("appname", "SITETRACK_APP_NAME")
		v.BindEnv("appport", "SITETRACK_APP_PORT")
		v.BindEnv("environment", "SITETRACK_ENV")
		v.BindEnv("loglevel", "SITETRACK_LOG_LEVEL")
		v.BindEnv("privatekey", "SITETRACK_PRIVATE_KEY")
		v.BindEnv("sessiontimeoutseconds", "SITETRACK_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("apikey", "SITETRACK_API_KEY")
		v.BindEnv("storagepath", "SITETRACK_STORAGE_PATH")
		v.BindEnv("geodbpath", "SITETRACK_GEO_DB_PATH")
		v.BindEnv("geolitelicensekey", "SITETRACK_GEOLITE_LICENSE_KEY")
		v.BindEnv("publicdir", "SITETRACK_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "SITETRACK_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "SITETRACK_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "SITETRACK_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "SITETRACK_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "SITETRACK_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "SITETRACK_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "SITETRACK_DB_MAX_IDLE_CONNS")
		v.BindEnv("activewindowseconds", "SITETRACK_ACTIVE_WINDOW_SECONDS")
		v.BindEnv("heartbeatretentiondays", "SITETRACK_HEARTBEAT_RETENTION_DAYS")
		v.BindEnv("ratelimitperminute", "SITETRACK_RATE_LIMIT_PER_MINUTE")
		v.BindEnv("metricsenabled", "SITETRACK_METRICS_ENABLED")
		v.BindEnv("jobintervalseconds", "SITETRACK_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if c.IsProduction() && c.PrivateKey == defaultPrivateKey {
		return fmt.Errorf("production requires a unique SITETRACK_PRIVATE_KEY (cannot use default)")
	}

	if c.ActiveWindowSeconds <= 0 {
		return fmt.Errorf("active window must be positive, got %d", c.ActiveWindowSeconds)
	}
	if c.HeartbeatRetentionDays <= 0 {
		return fmt.Errorf("heartbeat retention must be positive, got %d", c.HeartbeatRetentionDays)
	}
	if c.JobIntervalSeconds <= 0 {
		return fmt.Errorf("job interval must be positive, got %d", c.JobIntervalSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// ActiveWindow is the trailing interval in which a heartbeat marks a session as active.
func (c *Config) ActiveWindow() time.Duration {
	return time.Duration(c.ActiveWindowSeconds) * time.Second
}

// HeartbeatRetention is how long heartbeat events are kept before the cleanup job removes them.
func (c *Config) HeartbeatRetention() time.Duration {
	return time.Duration(c.HeartbeatRetentionDays) * 24 * time.Hour
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTimeout returns the session timeout in seconds.
func (c *Config) GetSessionTimeout() int {
	return c.SessionTimeoutSeconds
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (analytics queries run concurrently)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
