package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all flowdeck server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr       string  `json:"listen_addr"`
	BaseURL          string  `json:"base_url"` // dashboard root for plugin endpoints
	DBPath           string  `json:"db_path"`
	CatalogPath      string  `json:"catalog_path"` // empty = embedded catalog
	LogLevel         string  `json:"log_level"`
	TransformTimeout float64 `json:"transform_timeout"` // seconds
}

func defaultConfig() Config {
	return Config{
		ListenAddr:       ":4200",
		DBPath:           filepath.Join(flowdeckDir(), "flowdeck.db"),
		LogLevel:         "info",
		TransformTimeout: 5,
	}
}

func flowdeckDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowdeck"
	}
	return filepath.Join(home, ".flowdeck")
}

func settingsPath() string {
	return filepath.Join(flowdeckDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FLOWDECK_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FLOWDECK_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FLOWDECK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FLOWDECK_CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("FLOWDECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWDECK_TRANSFORM_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TransformTimeout = f
		}
	}

	// Derive base_url from listen_addr if empty.
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}

	return cfg
}

func (c Config) transformTimeout() time.Duration {
	return time.Duration(c.TransformTimeout * float64(time.Second))
}
