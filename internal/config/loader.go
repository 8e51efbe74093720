package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the gateway.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr      string   `json:"addr" yaml:"addr" toml:"addr"`
	Upstream  string   `json:"upstream" yaml:"upstream" toml:"upstream"`
	OllamaBin string   `json:"ollama_bin" yaml:"ollama_bin" toml:"ollama_bin"`
	Args      []string `json:"args" yaml:"args" toml:"args"`
	// NoSpawn never launches the model server; it must already be running.
	NoSpawn bool `json:"no_spawn" yaml:"no_spawn" toml:"no_spawn"`

	ReadyTimeoutSeconds int `json:"ready_timeout_seconds" yaml:"ready_timeout_seconds" toml:"ready_timeout_seconds"`
	GracePeriodSeconds  int `json:"grace_period_seconds" yaml:"grace_period_seconds" toml:"grace_period_seconds"`
	CatalogTTLSeconds   int `json:"catalog_ttl_seconds" yaml:"catalog_ttl_seconds" toml:"catalog_ttl_seconds"`

	MaxContextBytes  int   `json:"max_context_bytes" yaml:"max_context_bytes" toml:"max_context_bytes"`
	StreamBuffer     int   `json:"stream_buffer" yaml:"stream_buffer" toml:"stream_buffer"`
	MaxStreams       int   `json:"max_streams" yaml:"max_streams" toml:"max_streams"`
	QueueWaitSeconds int   `json:"queue_wait_seconds" yaml:"queue_wait_seconds" toml:"queue_wait_seconds"`
	MaxBodyBytes     int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	// MaxUploadBytes bounds a multipart /chat body on the wire.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	// ChatTimeoutSeconds caps one chat stream; 0 disables.
	ChatTimeoutSeconds int64 `json:"chat_timeout_seconds" yaml:"chat_timeout_seconds" toml:"chat_timeout_seconds"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`

	EnableSwagger bool   `json:"enable_swagger" yaml:"enable_swagger" toml:"enable_swagger"`
	LogLevel      string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// Cron specs for background jobs; "off" disables a job.
	HeartbeatSchedule      string `json:"heartbeat_schedule" yaml:"heartbeat_schedule" toml:"heartbeat_schedule"`
	CatalogRefreshSchedule string `json:"catalog_refresh_schedule" yaml:"catalog_refresh_schedule" toml:"catalog_refresh_schedule"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Defaults fills every unspecified field.
func Defaults(c Config) Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Upstream == "" {
		c.Upstream = "http://127.0.0.1:11434"
	}
	c.Upstream = NormalizeUpstream(c.Upstream)
	if c.OllamaBin == "" {
		c.OllamaBin = "ollama"
	}
	if len(c.Args) == 0 {
		c.Args = []string{"serve"}
	}
	if c.ReadyTimeoutSeconds <= 0 {
		c.ReadyTimeoutSeconds = 20
	}
	if c.GracePeriodSeconds <= 0 {
		c.GracePeriodSeconds = 5
	}
	if c.CatalogTTLSeconds <= 0 {
		c.CatalogTTLSeconds = 10
	}
	if c.MaxContextBytes <= 0 {
		c.MaxContextBytes = 64 * 1024
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = 16
	}
	if c.MaxStreams <= 0 {
		c.MaxStreams = 64
	}
	if c.QueueWaitSeconds <= 0 {
		c.QueueWaitSeconds = 30
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 32 << 20
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 1 << 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HeartbeatSchedule == "" {
		c.HeartbeatSchedule = "@every 15s"
	}
	if c.CatalogRefreshSchedule == "" {
		c.CatalogRefreshSchedule = "@every 1m"
	}
	return c
}

// NormalizeUpstream accepts OLLAMA_HOST style values ("127.0.0.1:11434",
// "0.0.0.0") and returns a base URL without a trailing slash.
func NormalizeUpstream(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = strings.TrimRight(s, "/")
	if strings.Contains(s, "://") {
		return s
	}
	// A bare host gets the model server's default port.
	if !strings.Contains(s, ":") {
		s += ":11434"
	}
	return "http://" + s
}

// Schedule maps the "off" sentinel to an empty (disabled) cron spec.
func Schedule(spec string) string {
	if strings.EqualFold(strings.TrimSpace(spec), "off") {
		return ""
	}
	return spec
}

func (c Config) ReadyTimeout() time.Duration { return time.Duration(c.ReadyTimeoutSeconds) * time.Second }
func (c Config) GracePeriod() time.Duration  { return time.Duration(c.GracePeriodSeconds) * time.Second }
func (c Config) CatalogTTL() time.Duration   { return time.Duration(c.CatalogTTLSeconds) * time.Second }
func (c Config) QueueWait() time.Duration    { return time.Duration(c.QueueWaitSeconds) * time.Second }
