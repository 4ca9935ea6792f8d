package config

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultConfigRefreshInterval = 20 * time.Second
	defaultHistoryRetention      = 7 * 24 * time.Hour
	defaultNotifyCooldown        = 5 * time.Minute
)

// Config stores runtime settings loaded from environment variables and an
// optional YAML/JSON file.
type Config struct {
	HTTPAddr              string        `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8099"`
	DBPath                string        `yaml:"db_path" env:"DB_PATH" env-default:"/data/mwan3_status.db"`
	AddonOptionsPath      string        `yaml:"addon_options_path" env:"ADDON_OPTIONS_PATH" env-default:"/data/options.json"`
	LogLevel              string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat             string        `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	HABaseURL             string        `yaml:"ha_base_url" env:"HA_BASE_URL" env-default:"http://supervisor/core"`
	SupervisorToken       string        `yaml:"supervisor_token" env:"SUPERVISOR_TOKEN"`
	ConfigRefreshInterval time.Duration `yaml:"config_refresh_interval" env:"CONFIG_REFRESH_INTERVAL" env-default:"20s"`
	HistoryRetention      time.Duration `yaml:"history_retention" env:"HISTORY_RETENTION" env-default:"168h"`
	RetentionSchedule     string        `yaml:"retention_schedule" env:"RETENTION_SCHEDULE" env-default:"@hourly"`
	NotifyURLs            []string      `yaml:"notify_urls" env:"NOTIFY_URLS" env-separator:","`
	NotifyCooldown        time.Duration `yaml:"notify_cooldown" env:"NOTIFY_COOLDOWN" env-default:"5m"`
}

// Load reads path when given, otherwise the environment only. Environment
// variables override file values.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, err
	}
	return cfg.normalize(), nil
}

func (c Config) normalize() Config {
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.HABaseURL = strings.TrimSuffix(strings.TrimSpace(c.HABaseURL), "/")
	c.SupervisorToken = strings.TrimSpace(c.SupervisorToken)
	if c.ConfigRefreshInterval <= 0 {
		c.ConfigRefreshInterval = defaultConfigRefreshInterval
	}
	if c.HistoryRetention < 0 {
		c.HistoryRetention = defaultHistoryRetention
	}
	if c.NotifyCooldown < 0 {
		c.NotifyCooldown = defaultNotifyCooldown
	}

	urls := c.NotifyURLs[:0:0]
	for _, u := range c.NotifyURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	c.NotifyURLs = urls
	return c
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func (c Config) Level() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
