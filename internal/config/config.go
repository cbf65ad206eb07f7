package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"logLevel"`
	DatabaseURL    string   `yaml:"databaseURL"`
	RedisAddr      string   `yaml:"redisAddr"`
	RedisPassword  string   `yaml:"redisPassword"`
	JWTSecret      string   `yaml:"jwtSecret"`
	SessionTTL     string   `yaml:"sessionTTL"`
	ReturnPolicy   string   `yaml:"returnPolicy"`
	MinioEndpoint  string   `yaml:"minioEndpoint"`
	MinioAccessKey string   `yaml:"minioAccessKey"`
	MinioSecretKey string   `yaml:"minioSecretKey"`
	MinioBucket    string   `yaml:"minioBucket"`
	MinioUseSSL    bool     `yaml:"minioUseSSL"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes"`
	RateLimit      int      `yaml:"rateLimit"`
	RateWindow     string   `yaml:"rateWindow"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SHELFSHARE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SHELFSHARE_RETURN_POLICY"); v != "" {
		cfg.ReturnPolicy = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("SHELFSHARE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or SHELFSHARE_JWT_SECRET)")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ReturnPolicy)) {
	case "", "borrower", "owner":
	default:
		return fmt.Errorf("config: returnPolicy must be borrower or owner, got %q", cfg.ReturnPolicy)
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required when minioEndpoint is set")
		}
	}
	return nil
}

// ParseSessionTTL parses the session TTL, defaulting to 24h.
func ParseSessionTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse session TTL: %w", err)
	}
	if ttl <= 0 {
		return 0, errors.New("session TTL must be positive")
	}
	return ttl, nil
}

// ParseRateWindow parses the rate limit window, defaulting to one minute.
func ParseRateWindow(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Minute, nil
	}
	window, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse rate window: %w", err)
	}
	if window <= 0 {
		return 0, errors.New("rate window must be positive")
	}
	return window, nil
}
