package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Document storage
	DocsDir      string
	ManifestPath string

	// Typesetting
	FontURL      string
	BasePackages []string
	Locale       string

	// Pipeline
	DynamicContent   bool
	DebounceInterval time.Duration

	// Document fetching
	FetchTimeout  time.Duration
	MaxFetchBytes int64

	// Render surface cache
	MaxSurfaces int
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8080"),

		DocsDir:      envOr("DOCS_DIR", "./assets/docs"),
		ManifestPath: envOr("MANIFEST_PATH", "./assets/docs/manifest.json"),

		FontURL:      envOr("FONT_URL", "https://cdn.jsdelivr.net/npm/latin-modern-math/latinmodern-math.woff2"),
		BasePackages: envList("BASE_PACKAGES", []string{"base", "ams"}),
		Locale:       envOr("LOCALE", "en"),

		DynamicContent:   envBool("DYNAMIC_CONTENT", true),
		DebounceInterval: envDuration("DEBOUNCE_INTERVAL", 300*time.Millisecond),

		FetchTimeout:  envDuration("FETCH_TIMEOUT", 15*time.Second),
		MaxFetchBytes: envInt64("MAX_FETCH_BYTES", 10485760), // 10MB

		MaxSurfaces: envInt("MAX_SURFACES", 64),
	}

	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 300 * time.Millisecond
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.MaxFetchBytes <= 0 {
		cfg.MaxFetchBytes = 10485760
	}
	if cfg.MaxSurfaces <= 0 {
		cfg.MaxSurfaces = 64
	}

	return cfg
}

func (c Config) Validate() error {
	if c.DocsDir == "" {
		return fmt.Errorf("DOCS_DIR is required")
	}
	if c.ManifestPath == "" {
		return fmt.Errorf("MANIFEST_PATH is required")
	}
	if c.FontURL == "" {
		return fmt.Errorf("FONT_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
