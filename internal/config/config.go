package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	KindMemory     = "memory"
	KindSQLite     = "sqlite"
	KindRediSearch = "redisearch"
	KindRemote     = "remote"
	KindS3         = "s3"
)

// Merge policies for unsorted queries.
const (
	MergeArrival   = "arrival"
	MergeRelevance = "relevance"
	MergeFusion    = "rrf"
)

// Config holds the fedcat server configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Federation FederationConfig `yaml:"federation"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Sources    []SourceConfig   `yaml:"sources"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Keys in api_keys authenticate
// without an identity; callers bind a key to a subject and its groups.
type AuthConfig struct {
	APIKeys []string       `yaml:"api_keys"`
	Callers []CallerConfig `yaml:"callers"`
}

// CallerConfig is one identified API client.
type CallerConfig struct {
	Subject string   `yaml:"subject"`
	APIKey  string   `yaml:"api_key"`
	Groups  []string `yaml:"groups"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// FederationConfig holds scatter-gather settings.
type FederationConfig struct {
	MaxStartIndex    int    `yaml:"max_start_index"`
	PoolSize         int    `yaml:"pool_size"`
	DefaultTimeoutMs int    `yaml:"default_timeout_ms"`
	MergePolicy      string `yaml:"merge_policy"` // arrival (default), relevance, rrf
	DefaultPageSize  int    `yaml:"default_page_size"`
	MaxPageSize      int    `yaml:"max_page_size"`
}

// DefaultTimeout returns the default request timeout.
func (f FederationConfig) DefaultTimeout() time.Duration {
	return time.Duration(f.DefaultTimeoutMs) * time.Millisecond
}

// PluginsConfig holds settings of the shipped plugins. A plugin is enabled by
// configuring it.
type PluginsConfig struct {
	Access  AccessConfig  `yaml:"access"`
	Timeout TimeoutConfig `yaml:"timeout"`
	Redact  RedactConfig  `yaml:"redact"`
	Audit   AuditConfig   `yaml:"audit"`
}

// AccessConfig maps source IDs to the groups allowed to query them.
type AccessConfig struct {
	Required map[string][]string `yaml:"required"`
}

// TimeoutConfig caps per-source timeouts.
type TimeoutConfig struct {
	MaxMs       int            `yaml:"max_ms"`
	PerSourceMs map[string]int `yaml:"per_source_ms"`
}

// Max returns the default per-source cap.
func (t TimeoutConfig) Max() time.Duration {
	return time.Duration(t.MaxMs) * time.Millisecond
}

// PerSource returns per-source caps.
func (t TimeoutConfig) PerSource() map[string]time.Duration {
	out := make(map[string]time.Duration, len(t.PerSourceMs))
	for id, ms := range t.PerSourceMs {
		out[id] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// Enabled reports whether any cap is configured.
func (t TimeoutConfig) Enabled() bool {
	return t.MaxMs > 0 || len(t.PerSourceMs) > 0
}

// RedactConfig lists attributes stripped from every record.
type RedactConfig struct {
	Attributes   []string `yaml:"attributes"`
	ExemptGroups []string `yaml:"exempt_groups"`
}

// AuditConfig toggles the audit log.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SourceConfig describes one catalog source. Only the block matching Kind is read.
type SourceConfig struct {
	ID         string            `yaml:"id"`
	Kind       string            `yaml:"kind"`
	RateLimit  RateLimitConfig   `yaml:"rate_limit"`
	Memory     MemoryConfig      `yaml:"memory"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	RediSearch RediSearchConfig  `yaml:"redisearch"`
	Remote     RemoteConfig      `yaml:"remote"`
	S3         S3Config          `yaml:"s3"`
}

// RateLimitConfig throttles queries to one source. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// MemoryConfig holds static records.
type MemoryConfig struct {
	Records []RecordConfig `yaml:"records"`
}

// RecordConfig is one static record.
type RecordConfig struct {
	ID         string            `yaml:"id"`
	Title      string            `yaml:"title"`
	Attributes map[string]string `yaml:"attributes"`
	Modified   time.Time         `yaml:"modified"`
}

// SQLiteConfig points at a database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RediSearchConfig holds the search index connection.
type RediSearchConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	Index            string   `yaml:"index"`
	KeyPrefix        string   `yaml:"key_prefix"`
	TitleField       string   `yaml:"title_field"`
	ModifiedField    string   `yaml:"modified_field"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RemoteConfig points at a peer fedcat node.
type RemoteConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	MaxPageSize int    `yaml:"max_page_size"` // the peer's federation.max_page_size
}

// S3Config describes a bucket listed as a catalog.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	MaxObjects      int    `yaml:"max_objects"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates configuration bytes.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values. Negative values are
// left for Validate to reject.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Federation.MaxStartIndex == 0 {
		c.Federation.MaxStartIndex = 50000
	}
	if c.Federation.PoolSize == 0 {
		c.Federation.PoolSize = 64
	}
	if c.Federation.DefaultTimeoutMs == 0 {
		c.Federation.DefaultTimeoutMs = 30000
	}
	if c.Federation.MergePolicy == "" {
		c.Federation.MergePolicy = MergeArrival
	}
	if c.Federation.DefaultPageSize == 0 {
		c.Federation.DefaultPageSize = 20
	}
	if c.Federation.MaxPageSize == 0 {
		c.Federation.MaxPageSize = 1000
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		switch s.Kind {
		case KindRediSearch:
			if s.RediSearch.ReadinessTimeout <= 0 {
				s.RediSearch.ReadinessTimeout = 10
			}
		case KindS3:
			if s.S3.MaxObjects == 0 {
				s.S3.MaxObjects = 10000
			}
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if err := c.Auth.validate(); err != nil {
		return err
	}

	f := c.Federation
	if f.MaxStartIndex < 0 {
		return fmt.Errorf("federation.max_start_index must be positive, got %d", f.MaxStartIndex)
	}
	if f.PoolSize < 0 {
		return fmt.Errorf("federation.pool_size must be positive, got %d", f.PoolSize)
	}
	if f.DefaultTimeoutMs < 0 {
		return fmt.Errorf("federation.default_timeout_ms must be positive, got %d", f.DefaultTimeoutMs)
	}
	switch f.MergePolicy {
	case MergeArrival, MergeRelevance, MergeFusion:
	default:
		return fmt.Errorf("federation.merge_policy must be one of %q, %q, %q, got %q",
			MergeArrival, MergeRelevance, MergeFusion, f.MergePolicy)
	}
	if f.DefaultPageSize < 0 || f.MaxPageSize < 0 || f.DefaultPageSize > f.MaxPageSize {
		return fmt.Errorf("federation page sizes must satisfy 0 < default_page_size <= max_page_size, got %d/%d",
			f.DefaultPageSize, f.MaxPageSize)
	}

	if c.Plugins.Timeout.MaxMs < 0 {
		return fmt.Errorf("plugins.timeout.max_ms must not be negative, got %d", c.Plugins.Timeout.MaxMs)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
		if strings.Contains(s.ID, "/") {
			return fmt.Errorf("sources[%d].id must not contain '/', got %q", i, s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		if err := s.validate(); err != nil {
			return fmt.Errorf("sources.%s: %w", s.ID, err)
		}
	}

	for id := range c.Plugins.Access.Required {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("plugins.access.required references unknown source %q", id)
		}
	}
	for id := range c.Plugins.Timeout.PerSourceMs {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("plugins.timeout.per_source_ms references unknown source %q", id)
		}
	}
	return nil
}

func (a AuthConfig) validate() error {
	keys := make(map[string]struct{}, len(a.APIKeys)+len(a.Callers))
	for _, k := range a.APIKeys {
		if k == "" {
			continue
		}
		if _, dup := keys[k]; dup {
			return fmt.Errorf("auth.api_keys contains a duplicated key")
		}
		keys[k] = struct{}{}
	}
	for i, c := range a.Callers {
		if c.Subject == "" {
			return fmt.Errorf("auth.callers[%d].subject is required", i)
		}
		if c.APIKey == "" {
			return fmt.Errorf("auth.callers[%d].api_key is required", i)
		}
		if _, dup := keys[c.APIKey]; dup {
			return fmt.Errorf("auth.callers[%d].api_key is already in use", i)
		}
		keys[c.APIKey] = struct{}{}
	}
	return nil
}

func (s SourceConfig) validate() error {
	if s.RateLimit.RequestsPerSecond < 0 || s.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	switch s.Kind {
	case KindMemory:
		for i, r := range s.Memory.Records {
			if r.ID == "" {
				return fmt.Errorf("memory.records[%d].id is required", i)
			}
		}
	case KindSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case KindRediSearch:
		if len(s.RediSearch.Addrs) == 0 {
			return fmt.Errorf("redisearch.addrs is required")
		}
		if s.RediSearch.Index == "" {
			return fmt.Errorf("redisearch.index is required")
		}
	case KindRemote:
		if s.Remote.URL == "" {
			return fmt.Errorf("remote.url is required")
		}
		if s.Remote.MaxPageSize < 0 {
			return fmt.Errorf("remote.max_page_size must not be negative, got %d", s.Remote.MaxPageSize)
		}
	case KindS3:
		if s.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required")
		}
		if s.S3.MaxObjects < 0 {
			return fmt.Errorf("s3.max_objects must not be negative, got %d", s.S3.MaxObjects)
		}
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
