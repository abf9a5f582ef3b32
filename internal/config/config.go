// Package config loads the runtime configuration for the execution
// engine: sane defaults, optionally overridden by a YAML file and then by
// environment variables, in that order.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP/push-channel listener.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr renders the listener address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig configures the durable order store.
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// QueueConfig sizes the execution queue's worker pool.
type QueueConfig struct {
	SubstrateURL       string `yaml:"substrateUrl"`
	SubstrateTLS       bool   `yaml:"substrateTls"`
	MaxConcurrency     int    `yaml:"maxConcurrency"`
	RateLimitPerMinute int    `yaml:"rateLimitPerMinute"`
}

// WSWorkerConfig sizes each per-status delivery worker pool.
type WSWorkerConfig struct {
	Concurrency        int `yaml:"concurrency"`
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
}

// ResourceConfig controls per-order resource lifecycle timing. Idle
// timeout is configurable rather than hardcoded: like the store and queue
// settings, it can be overridden from the environment
// (IDLE_TIMEOUT_MINUTES).
type ResourceConfig struct {
	IdleTimeout time.Duration `yaml:"idleTimeout"`
}

// RuntimeConfig is the fully resolved configuration for one process.
type RuntimeConfig struct {
	Server    ServerConfig   `yaml:"server"`
	Store     StoreConfig    `yaml:"store"`
	Queue     QueueConfig    `yaml:"queue"`
	WSWorker  WSWorkerConfig `yaml:"wsWorker"`
	Resources ResourceConfig `yaml:"resources"`
}

// DefaultRuntimeConfig returns the configuration used when no file and no
// environment overrides are present, matching §6's documented defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	cfg := RuntimeConfig{
		Server: ServerConfig{Port: 3000, Host: "0.0.0.0"},
		Store:  StoreConfig{DSN: "postgres://localhost:5432/swapexec"},
		Queue: QueueConfig{
			SubstrateURL:       "memory://local",
			MaxConcurrency:     10,
			RateLimitPerMinute: 100,
		},
		WSWorker: WSWorkerConfig{
			Concurrency:        50,
			RateLimitPerMinute: 1000,
		},
		Resources: ResourceConfig{IdleTimeout: 15 * time.Minute},
	}
	cfg.Normalise()
	return cfg
}

// Normalise trims whitespace and fills in zero-valued fields with their
// documented defaults.
func (c *RuntimeConfig) Normalise() {
	if c == nil {
		return
	}
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 3000
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	c.Queue.SubstrateURL = strings.TrimSpace(c.Queue.SubstrateURL)
	if c.Queue.MaxConcurrency <= 0 {
		c.Queue.MaxConcurrency = 10
	}
	if c.Queue.RateLimitPerMinute <= 0 {
		c.Queue.RateLimitPerMinute = 100
	}
	if c.WSWorker.Concurrency <= 0 {
		c.WSWorker.Concurrency = 50
	}
	if c.WSWorker.RateLimitPerMinute <= 0 {
		c.WSWorker.RateLimitPerMinute = 1000
	}
	if c.Resources.IdleTimeout <= 0 {
		c.Resources.IdleTimeout = 15 * time.Minute
	}
}

// Validate performs semantic validation beyond what Normalise can repair
// by substitution.
func (c RuntimeConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("store.dsn required")
	}
	if c.Queue.MaxConcurrency <= 0 {
		return fmt.Errorf("queue.maxConcurrency must be > 0")
	}
	if c.Queue.RateLimitPerMinute <= 0 {
		return fmt.Errorf("queue.rateLimitPerMinute must be > 0")
	}
	if c.WSWorker.Concurrency <= 0 {
		return fmt.Errorf("wsWorker.concurrency must be > 0")
	}
	if c.WSWorker.RateLimitPerMinute <= 0 {
		return fmt.Errorf("wsWorker.rateLimitPerMinute must be > 0")
	}
	if c.Resources.IdleTimeout <= 0 {
		return fmt.Errorf("resources.idleTimeout must be > 0")
	}
	return nil
}

// LoadOrDefault reads configPath if present, layers environment variable
// overrides on top, normalises, and validates. A missing file is not an
// error: the second return value reports whether a file was actually
// loaded, matching the pattern surfaced to operators at startup.
func LoadOrDefault(ctx context.Context, configPath string) (RuntimeConfig, bool, error) {
	_ = ctx

	cfg := DefaultRuntimeConfig()
	loadedFromFile := false

	if strings.TrimSpace(configPath) != "" {
		if data, err := readFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return RuntimeConfig{}, false, fmt.Errorf("config: unmarshal %s: %w", configPath, err)
			}
			loadedFromFile = true
		} else if !os.IsNotExist(err) {
			return RuntimeConfig{}, false, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, loadedFromFile, fmt.Errorf("config: %w", err)
	}
	return cfg, loadedFromFile, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// applyEnvOverrides layers the environment variables documented in §6 on
// top of whatever file-or-default configuration precedes it. Unset or
// unparsable variables leave the existing value untouched.
func applyEnvOverrides(c *RuntimeConfig) {
	if v, ok := envInt("PORT"); ok {
		c.Server.Port = v
	}
	if v, ok := os.LookupEnv("HOST"); ok && strings.TrimSpace(v) != "" {
		c.Server.Host = v
	}
	if v, ok := os.LookupEnv("STORE_DSN"); ok && strings.TrimSpace(v) != "" {
		c.Store.DSN = v
	}
	if v, ok := os.LookupEnv("QUEUE_SUBSTRATE_URL"); ok && strings.TrimSpace(v) != "" {
		c.Queue.SubstrateURL = v
	}
	if v, ok := envBool("QUEUE_SUBSTRATE_TLS"); ok {
		c.Queue.SubstrateTLS = v
	}
	if v, ok := envInt("QUEUE_MAX_CONCURRENCY"); ok {
		c.Queue.MaxConcurrency = v
	}
	if v, ok := envInt("QUEUE_RATE_LIMIT_PER_MINUTE"); ok {
		c.Queue.RateLimitPerMinute = v
	}
	if v, ok := envInt("WS_WORKER_CONCURRENCY"); ok {
		c.WSWorker.Concurrency = v
	}
	if v, ok := envInt("WS_WORKER_RATE_LIMIT"); ok {
		c.WSWorker.RateLimitPerMinute = v
	}
	if v, ok := envInt("IDLE_TIMEOUT_MINUTES"); ok {
		c.Resources.IdleTimeout = time.Duration(v) * time.Minute
	}
}

func envInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}
