package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all chainrun server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath       string `json:"db_path"`
	LogLevel     string `json:"log_level"`
	PoolSize     int    `json:"pool_size"`
	AuditSink    string `json:"audit_sink"`    // memory | slog | libsql
	TickInterval string `json:"tick_interval"` // scheduler tick (e.g. "60s")
}

func defaultConfig() Config {
	return Config{
		DBPath:       filepath.Join(chainrunDir(), "chainrun.db"),
		LogLevel:     "info",
		PoolSize:     10,
		AuditSink:    "slog",
		TickInterval: "60s",
	}
}

func chainrunDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainrun"
	}
	return filepath.Join(home, ".chainrun")
}

func settingsPath() string {
	return filepath.Join(chainrunDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CHAINRUN_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CHAINRUN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHAINRUN_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("CHAINRUN_AUDIT_SINK"); v != "" {
		cfg.AuditSink = v
	}
	if v := os.Getenv("CHAINRUN_TICK_INTERVAL"); v != "" {
		cfg.TickInterval = v
	}

	return cfg
}
