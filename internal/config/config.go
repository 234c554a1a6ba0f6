package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kitbuilder587/yxml/internal/domain"
)

var (
	ErrMissingUser   = errors.New("YXML_USER is required")
	ErrMissingAPIKey = errors.New("YXML_API_KEY is required")
	ErrInvalidMode   = errors.New("YXML_MODE must be world or ru")
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Captcha CaptchaConfig `yaml:"captcha"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type APIConfig struct {
	User   string `yaml:"user"`
	APIKey string `yaml:"api_key"`
	Mode   string `yaml:"mode"`
	// IP пустой - определяется при старте сессии
	IP         string `yaml:"ip"`
	Proxy      string `yaml:"proxy"`
	Endpoint   string `yaml:"endpoint"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type CaptchaConfig struct {
	// Solver - путь к исполняемому файлу или *.py; пусто - спросить в терминале
	Solver  string `yaml:"solver"`
	Python  string `yaml:"python"`
	Retries int    `yaml:"retries"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			Mode:       string(domain.ModeWorld),
			TimeoutSec: 5,
		},
		Captcha: CaptchaConfig{
			Python:  "python3",
			Retries: -1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the optional YAML file at path, then lets environment
// variables override it.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.API.User = getEnvOrDefault("YXML_USER", cfg.API.User)
	cfg.API.APIKey = getEnvOrDefault("YXML_API_KEY", cfg.API.APIKey)
	cfg.API.Mode = getEnvOrDefault("YXML_MODE", cfg.API.Mode)
	cfg.API.IP = getEnvOrDefault("YXML_IP", cfg.API.IP)
	cfg.API.Proxy = getEnvOrDefault("YXML_PROXY", cfg.API.Proxy)
	cfg.API.Endpoint = getEnvOrDefault("YXML_ENDPOINT", cfg.API.Endpoint)
	cfg.API.TimeoutSec = getEnvIntOrDefault("YXML_TIMEOUT_SEC", cfg.API.TimeoutSec)
	cfg.Captcha.Solver = getEnvOrDefault("YXML_CAPTCHA_SOLVER", cfg.Captcha.Solver)
	cfg.Captcha.Python = getEnvOrDefault("YXML_CAPTCHA_PYTHON", cfg.Captcha.Python)
	cfg.Captcha.Retries = getEnvIntOrDefault("YXML_CAPTCHA_RETRIES", cfg.Captcha.Retries)
	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvOrDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", cfg.Metrics.Addr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.API.User == "" {
		return ErrMissingUser
	}
	if c.API.APIKey == "" {
		return ErrMissingAPIKey
	}
	if !domain.Mode(c.API.Mode).IsValid() {
		return ErrInvalidMode
	}
	if ip := strings.TrimSpace(c.API.IP); ip != "" {
		if _, err := netip.ParseAddr(ip); err != nil {
			return fmt.Errorf("%w: %q", domain.ErrInvalidIP, ip)
		}
	}
	if c.API.TimeoutSec <= 0 {
		return fmt.Errorf("YXML_TIMEOUT_SEC must be positive, got %d", c.API.TimeoutSec)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
