package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	API     APIConfig     `yaml:"api"`
	Health  HealthConfig  `yaml:"health"`
	Traffic TrafficConfig `yaml:"traffic"`
	Camera  CameraConfig  `yaml:"camera"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	// RequestTimeout is optional; empty means requests run until the caller
	// abandons them.
	RequestTimeout string `yaml:"request_timeout,omitempty"`

	RequestTimeoutDur time.Duration `yaml:"-"`
}

type HealthConfig struct {
	Interval string  `yaml:"interval"` // e.g. "30s"
	Jitter   float64 `yaml:"jitter,omitempty"`

	IntervalDur time.Duration `yaml:"-"`
}

type TrafficConfig struct {
	Location        string `yaml:"location,omitempty"`
	Status          string `yaml:"status,omitempty"`
	FollowHeartbeat bool   `yaml:"follow_heartbeat"`
	ApplyPolicy     string `yaml:"apply_policy"` // last-resolved-wins | last-issued-wins
}

type CameraConfig struct {
	MaxImageBytes int `yaml:"max_image_bytes"`
}

type AlertsConfig struct {
	Target   string         `yaml:"target"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Token  string `yaml:"token,omitempty"`
	ChatID int64  `yaml:"chat_id,omitempty"`
}

// Load reads path, then applies .env and environment overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b, os.Getenv)
}

// LoadEnv loads a .env file into the process environment if one exists.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func parse(b []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateAndNormalize(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("SERVER_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(getenv("TRAFFIC_API_BASE_URL")); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		cfg.Alerts.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		cfg.Alerts.Telegram.ChatID = id
	}
	return nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}

	// API defaults
	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		cfg.API.BaseURL = "http://localhost:5000"
	}
	if strings.TrimSpace(cfg.API.UserAgent) == "" {
		cfg.API.UserAgent = "AutoEyeDashboard/0.1"
	}

	if strings.TrimSpace(cfg.Health.Interval) == "" {
		cfg.Health.Interval = "30s"
	}

	if strings.TrimSpace(cfg.Traffic.ApplyPolicy) == "" {
		cfg.Traffic.ApplyPolicy = "last-resolved-wins"
	}

	if cfg.Camera.MaxImageBytes == 0 {
		cfg.Camera.MaxImageBytes = 8 << 20 // 8MB
	}

	if strings.TrimSpace(cfg.Alerts.Target) == "" {
		cfg.Alerts.Target = "traffic-api"
	}
}

func validateAndNormalize(cfg *Config) error {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api base_url %q must be an absolute http:// or https:// url", cfg.API.BaseURL)
	}

	if raw := strings.TrimSpace(cfg.API.RequestTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: invalid api request_timeout %q: %w", raw, err)
		}
		if d < 0 {
			return errors.New("config: api request_timeout cannot be negative")
		}
		cfg.API.RequestTimeoutDur = d
	}

	intervalDur, err := time.ParseDuration(cfg.Health.Interval)
	if err != nil {
		return fmt.Errorf("config: invalid health interval %q: %w", cfg.Health.Interval, err)
	}
	if intervalDur <= 0 {
		return errors.New("config: health interval must be > 0")
	}
	cfg.Health.IntervalDur = intervalDur

	if cfg.Health.Jitter < 0 || cfg.Health.Jitter > 0.2 {
		return fmt.Errorf("config: health jitter %v must be within 0..0.2", cfg.Health.Jitter)
	}

	cfg.Traffic.Location = strings.TrimSpace(cfg.Traffic.Location)
	cfg.Traffic.Status = strings.ToLower(strings.TrimSpace(cfg.Traffic.Status))
	switch cfg.Traffic.Status {
	case "", "light", "moderate", "heavy", "unknown":
	default:
		return fmt.Errorf("config: invalid traffic status %q (use light, moderate, heavy or unknown)", cfg.Traffic.Status)
	}

	cfg.Traffic.ApplyPolicy = strings.ToLower(strings.TrimSpace(cfg.Traffic.ApplyPolicy))
	switch cfg.Traffic.ApplyPolicy {
	case "last-resolved-wins", "last-issued-wins":
	default:
		return fmt.Errorf("config: invalid traffic apply_policy %q", cfg.Traffic.ApplyPolicy)
	}

	if cfg.Camera.MaxImageBytes < 0 {
		return errors.New("config: camera max_image_bytes cannot be negative")
	}

	if cfg.Alerts.Telegram.Token != "" && cfg.Alerts.Telegram.ChatID == 0 {
		return errors.New("config: alerts telegram token set but chat_id missing")
	}

	return nil
}
