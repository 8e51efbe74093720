package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"llmgate/internal/common/fsutil"
)

// FromEnv overlays environment variables onto base. A .env file at envFile
// is loaded first when it exists; variables already set in the process win
// over the file. Call it once at startup.
func FromEnv(base Config, envFile string) (Config, error) {
	if envFile != "" && fsutil.FileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return base, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := base
	if v := env("LLMGATE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := env("OLLAMA_HOST"); v != "" {
		cfg.Upstream = NormalizeUpstream(v)
	}
	if v := env("LLMGATE_OLLAMA_BIN"); v != "" {
		cfg.OllamaBin = v
	}
	if v := env("LLMGATE_MAX_CONTEXT_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return base, fmt.Errorf("LLMGATE_MAX_CONTEXT_BYTES: invalid value %q", v)
		}
		cfg.MaxContextBytes = n
	}
	if v := env("LLMGATE_CATALOG_TTL"); v != "" {
		sec, err := parseSeconds(v)
		if err != nil {
			return base, fmt.Errorf("LLMGATE_CATALOG_TTL: %w", err)
		}
		cfg.CatalogTTLSeconds = sec
	}
	if v := env("LLMGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

// parseSeconds accepts a bare integer (seconds) or a Go duration ("90s", "2m").
func parseSeconds(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return int(d / time.Second), nil
}
