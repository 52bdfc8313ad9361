package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	DefaultWebhookTimeout    = 5 * time.Second
	DefaultAutosaveDelay     = 2 * time.Second
	DefaultReturnURLCacheTTL = 30 * 24 * time.Hour
)

// FileConfig represents configuration loaded from YAML, then overridden by
// environment variables.
type FileConfig struct {
	Port                     string   `yaml:"port" env:"FUNNEL_PORT"`
	LogLevel                 string   `yaml:"logLevel" env:"FUNNEL_LOG_LEVEL"`
	LogFile                  string   `yaml:"logFile" env:"FUNNEL_LOG_FILE"`
	LogFileMaxSizeMB         int      `yaml:"logFileMaxSizeMB" env:"FUNNEL_LOG_FILE_MAX_SIZE_MB"`
	LogFileMaxBackups        int      `yaml:"logFileMaxBackups" env:"FUNNEL_LOG_FILE_MAX_BACKUPS"`
	DatabaseURL              string   `yaml:"databaseURL" env:"DATABASE_URL"`
	RedisAddr                string   `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword            string   `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	PublicOrigin             string   `yaml:"publicOrigin" env:"FUNNEL_PUBLIC_ORIGIN"`
	AllowedOrigins           []string `yaml:"allowedOrigins" env:"FUNNEL_ALLOWED_ORIGINS" envSeparator:","`
	WebhookURL               string   `yaml:"webhookURL" env:"FUNNEL_WEBHOOK_URL"`
	WebhookMethod            string   `yaml:"webhookMethod" env:"FUNNEL_WEBHOOK_METHOD"`
	WebhookTimeout           string   `yaml:"webhookTimeout" env:"FUNNEL_WEBHOOK_TIMEOUT"`
	WebhookDisableBeacon     bool     `yaml:"webhookDisableBeacon" env:"FUNNEL_WEBHOOK_DISABLE_BEACON"`
	AutosaveDelay            string   `yaml:"autosaveDelay" env:"FUNNEL_AUTOSAVE_DELAY"`
	ReturnURLCacheTTL        string   `yaml:"returnURLCacheTTL" env:"FUNNEL_RETURN_URL_CACHE_TTL"`
	SubmitRateLimitPerMinute int      `yaml:"submitRateLimitPerMinute" env:"FUNNEL_SUBMIT_RATE_LIMIT_PER_MINUTE"`
	RateLimitFailOpen        bool     `yaml:"rateLimitFailOpen" env:"FUNNEL_RATE_LIMIT_FAIL_OPEN"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs" env:"FUNNEL_TRUSTED_PROXY_CIDRS" envSeparator:","`
	MinioEndpoint            string   `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey           string   `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey           string   `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket              string   `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioRegion              string   `yaml:"minioRegion" env:"MINIO_REGION"`
	MinioUseSSL              bool     `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
}

// Load reads config from path (defaults to config.yaml) and applies env overrides.
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
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *FileConfig) normalize() {
	c.Port = strings.TrimSpace(c.Port)
	c.PublicOrigin = strings.TrimRight(strings.TrimSpace(c.PublicOrigin), "/")
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.WebhookMethod = strings.ToUpper(strings.TrimSpace(c.WebhookMethod))
	if c.WebhookMethod == "" {
		c.WebhookMethod = "GET"
	}
	c.AllowedOrigins = trimAll(c.AllowedOrigins)
	c.TrustedProxyCIDRs = trimAll(c.TrustedProxyCIDRs)
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or FUNNEL_PORT)")
	}
	if cfg.PublicOrigin == "" {
		return errors.New("config: publicOrigin is required (set in config.yaml or FUNNEL_PUBLIC_ORIGIN)")
	}
	if err := validateAbsoluteURL("publicOrigin", cfg.PublicOrigin); err != nil {
		return err
	}
	if cfg.WebhookURL != "" {
		if err := validateAbsoluteURL("webhookURL", cfg.WebhookURL); err != nil {
			return err
		}
	}
	if cfg.WebhookMethod != "GET" && cfg.WebhookMethod != "POST" {
		return fmt.Errorf("config: webhookMethod must be GET or POST, got %q", cfg.WebhookMethod)
	}
	for _, d := range []struct{ name, value string }{
		{"webhookTimeout", cfg.WebhookTimeout},
		{"autosaveDelay", cfg.AutosaveDelay},
		{"returnURLCacheTTL", cfg.ReturnURLCacheTTL},
	} {
		if _, err := ParseDuration(d.name, d.value, 0); err != nil {
			return err
		}
	}
	if cfg.SubmitRateLimitPerMinute < 0 {
		return errors.New("config: submitRateLimitPerMinute must be >= 0")
	}
	if cfg.SubmitRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when submitRateLimitPerMinute is set")
	}
	if cfg.MinioEnabled() && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required when minioEndpoint is set")
	}
	return nil
}

// MinioEnabled reports whether submission archiving is configured.
func (c FileConfig) MinioEnabled() bool {
	return strings.TrimSpace(c.MinioEndpoint) != ""
}

func (c FileConfig) WebhookTimeoutDuration() time.Duration {
	d, _ := ParseDuration("webhookTimeout", c.WebhookTimeout, DefaultWebhookTimeout)
	return d
}

func (c FileConfig) AutosaveDelayDuration() time.Duration {
	d, _ := ParseDuration("autosaveDelay", c.AutosaveDelay, DefaultAutosaveDelay)
	return d
}

func (c FileConfig) ReturnURLCacheTTLDuration() time.Duration {
	d, _ := ParseDuration("returnURLCacheTTL", c.ReturnURLCacheTTL, DefaultReturnURLCacheTTL)
	return d
}

// ParseDuration parses an optional positive duration string. Empty yields def.
func ParseDuration(name, value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("config: %s must be positive", name)
	}
	return d, nil
}

func validateAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: %s must be an absolute http(s) URL", name)
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
