package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		TTL        string `yaml:"ttl"`
		AttemptTTL string `yaml:"attempt_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		ID          string `yaml:"id"`
		TTL         string `yaml:"ttl"`
		DurationSec int    `yaml:"duration_sec"`
	} `yaml:"quiz"`
	Client struct {
		BaseURL        string `yaml:"base_url"`
		StatePath      string `yaml:"state_path"`
		PeriodicSync   string `yaml:"periodic_sync"`
		Debounce       string `yaml:"debounce"`
		ProbeInterval  string `yaml:"probe_interval"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"client"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Redis.TTL = "10m"
	cfg.Redis.AttemptTTL = "24h"
	cfg.Quiz.ID = "default"
	cfg.Quiz.TTL = "10m"
	cfg.Client.BaseURL = "http://localhost:8080"
	cfg.Client.StatePath = "quiz-state.db"
	cfg.Client.PeriodicSync = "5s"
	cfg.Client.Debounce = "500ms"
	cfg.Client.ProbeInterval = "3s"
	cfg.Client.RequestTimeout = "5s"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads YAML config from path on top of the defaults. A missing file is
// not an error. Environment overrides apply last.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Port, "PORT")
	set(&cfg.Redis.Addr, "REDIS_ADDR")
	set(&cfg.Postgres.URL, "DATABASE_URL")
	set(&cfg.Client.BaseURL, "QUIZ_SERVER_URL")
	set(&cfg.Client.StatePath, "QUIZ_STATE_PATH")
	set(&cfg.Log.Level, "LOG_LEVEL")
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
