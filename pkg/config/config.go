package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the downloader.
type Config struct {
	// TikTok session and browser settings
	TikTok TikTokConfig `yaml:"tiktok" json:"tiktok"`

	// Redis connection for the job store
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Delivery batching settings
	Delivery DeliveryConfig `yaml:"delivery" json:"delivery"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TikTokConfig holds TikTok-specific configuration.
type TikTokConfig struct {
	// Cookie is either a full Cookie header or a bare sessionid value.
	Cookie      string        `yaml:"cookie" json:"cookie"`
	Proxy       string        `yaml:"proxy" json:"proxy"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	Locale      string        `yaml:"locale" json:"locale"`
	Timezone    string        `yaml:"timezone" json:"timezone"`
	Headless    bool          `yaml:"headless" json:"headless"`
	InitTimeout time.Duration `yaml:"init_timeout" json:"init_timeout"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DownloadConfig holds download-specific configuration.
type DownloadConfig struct {
	BaseDirectory       string        `yaml:"base_directory" json:"base_directory"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts       int           `yaml:"retry_attempts" json:"retry_attempts"`
}

// DeliveryConfig holds delivery batching configuration.
type DeliveryConfig struct {
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	Destination string `yaml:"destination" json:"destination"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TikTok: TikTokConfig{
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Locale:      "en-US",
			Timezone:    "America/New_York",
			Headless:    true,
			InitTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Download: DownloadConfig{
			BaseDirectory:       "./downloads",
			ConcurrentDownloads: 3,
			DownloadTimeout:     60 * time.Second,
			RetryAttempts:       3,
		},
		Delivery: DeliveryConfig{
			BatchSize: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if cookie := os.Getenv("TIKTOK_COOKIE"); cookie != "" {
		c.TikTok.Cookie = cookie
	}
	if proxy := os.Getenv("TIKTOK_PROXY"); proxy != "" {
		c.TikTok.Proxy = proxy
	}
	if userAgent := os.Getenv("TIKTOK_USER_AGENT"); userAgent != "" {
		c.TikTok.UserAgent = userAgent
	}
	if headless := os.Getenv("TIKTOK_HEADLESS"); headless != "" {
		c.TikTok.Headless = strings.ToLower(headless) != "false"
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		val, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB value %q: %w", db, err)
		}
		c.Redis.DB = val
	}

	if dir := os.Getenv("DOWNLOAD_DIR"); dir != "" {
		c.Download.BaseDirectory = dir
	}
	if concurrent := os.Getenv("CONCURRENT_DOWNLOADS"); concurrent != "" {
		val, err := strconv.Atoi(concurrent)
		if err != nil {
			return fmt.Errorf("invalid CONCURRENT_DOWNLOADS value %q: %w", concurrent, err)
		}
		c.Download.ConcurrentDownloads = val
	}

	if batch := os.Getenv("DELIVERY_BATCH_SIZE"); batch != "" {
		val, err := strconv.Atoi(batch)
		if err != nil {
			return fmt.Errorf("invalid DELIVERY_BATCH_SIZE value %q: %w", batch, err)
		}
		c.Delivery.BatchSize = val
	}
	if dest := os.Getenv("DELIVERY_DESTINATION"); dest != "" {
		c.Delivery.Destination = dest
	}

	if rpm := os.Getenv("REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil {
			return fmt.Errorf("invalid REQUESTS_PER_MINUTE value %q: %w", rpm, err)
		}
		c.RateLimit.RequestsPerMinute = val
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".tiktok-downloader.yaml",
		".tiktok-downloader.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "tiktok-downloader", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "tiktok-downloader", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.TikTok.InitTimeout <= 0 {
		errs = append(errs, errors.New("browser init timeout must be positive"))
	}

	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis address is required"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Download.BaseDirectory == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry attempts cannot be negative"))
	}

	if c.Delivery.BatchSize <= 0 {
		errs = append(errs, errors.New("delivery batch size must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if cookie, ok := flags["cookie"].(string); ok && cookie != "" {
		c.TikTok.Cookie = cookie
	}
	if proxy, ok := flags["proxy"].(string); ok && proxy != "" {
		c.TikTok.Proxy = proxy
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Download.BaseDirectory = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if redisAddr, ok := flags["redis"].(string); ok && redisAddr != "" {
		c.Redis.Addr = redisAddr
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".tiktok-downloader.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
