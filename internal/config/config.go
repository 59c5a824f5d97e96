// Package config reads application configuration from environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Config holds all application configuration
type Config struct {
	Port          int
	DBPath        string
	AllowedPaths  []string // Scan roots are restricted to these prefixes (empty = any)
	Workers       int      // 0 = one per CPU
	ChunkSize     int      // 0 = engine default
	QueueDepth    int      // 0 = engine default
	ScanTimeout   time.Duration
	RetentionDays int
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:          getEnvInt("DEDUPD_PORT", 8080),
		DBPath:        getEnv("DEDUPD_DB_PATH", "./data/dedupd.db"),
		Workers:       getEnvInt("DEDUPD_WORKERS", 0),
		ChunkSize:     getEnvBytes("DEDUPD_CHUNK_SIZE", 0),
		QueueDepth:    getEnvInt("DEDUPD_QUEUE_DEPTH", 0),
		ScanTimeout:   getEnvDuration("DEDUPD_SCAN_TIMEOUT", 6*time.Hour),
		RetentionDays: getEnvInt("DEDUPD_RETENTION_DAYS", 30),
	}

	cfg.AllowedPaths = getEnvPaths("DEDUPD_ALLOWED_PATHS")

	return cfg
}

// IsPathAllowed reports whether path falls under one of the configured
// allowed prefixes. An empty allowlist permits everything.
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	path = filepath.Clean(ExpandPath(path))
	for _, allowed := range c.AllowedPaths {
		allowed = filepath.Clean(allowed)
		if path == allowed || strings.HasPrefix(path, allowed+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// ExpandPath expands a leading ~ to the user's home directory and cleans
// the result
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBytes parses a human-readable size ("64 MiB", "1048576").
func getEnvBytes(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := humanize.ParseBytes(val); err == nil {
			return int(n)
		}
	}
	return defaultVal
}

// getEnvPaths parses a comma-separated path list, expanding each entry.
func getEnvPaths(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(val, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, ExpandPath(p))
		}
	}
	return paths
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
