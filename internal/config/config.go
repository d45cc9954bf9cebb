// Package config loads stackmap run configuration from TOML files.
//
// A configuration file looks like:
//
//	base_url      = "http://localhost:8080/index.html"
//	agent_marker  = "bleak_agent"
//	concurrency   = 8
//	fetch_timeout = "30s"
//
//	[content]
//	kind       = "redis"
//	redis_addr = "localhost:6379"
//
//	[output]
//	sqlite = "stackmap.db"
//
// Keys left out keep their [Default] values. Unknown keys are an error.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackmap/pkg/content"
	"github.com/matzehuels/stackmap/pkg/errors"
	"github.com/matzehuels/stackmap/pkg/pipeline"
)

// Content store kinds.
const (
	KindMemory = "memory"
	KindDir    = "dir"
	KindHTTP   = "http"
	KindRedis  = "redis"
)

// DefaultCacheTTL is how long fetched HTTP responses stay on disk.
const DefaultCacheTTL = 24 * time.Hour

// Duration is a time.Duration decoded from a string such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is a complete run configuration.
type Config struct {
	BaseURL      string   `toml:"base_url"`
	AgentMarker  string   `toml:"agent_marker"`
	Concurrency  int      `toml:"concurrency"`
	FetchTimeout Duration `toml:"fetch_timeout"`
	Content      Content  `toml:"content"`
	Output       Output   `toml:"output"`
}

// Content selects where resource bodies are read from.
type Content struct {
	Kind string `toml:"kind"`

	// Dir is the served root for the dir kind.
	Dir string `toml:"dir"`

	// Stash is a JSON dump loaded by the memory kind.
	Stash string `toml:"stash"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`

	// CacheTTL bounds the HTTP kind's disk cache. Zero disables caching.
	CacheTTL Duration          `toml:"cache_ttl"`
	Headers  map[string]string `toml:"headers"`
}

// Output selects where results are written. With neither set, JSON goes
// to stdout.
type Output struct {
	JSON   string `toml:"json"`
	SQLite string `toml:"sqlite"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		AgentMarker:  pipeline.DefaultAgentMarker,
		Concurrency:  pipeline.DefaultConcurrency,
		FetchTimeout: Duration{pipeline.DefaultFetchTimeout},
		Content: Content{
			Kind:        KindHTTP,
			RedisPrefix: content.DefaultRedisPrefix,
			CacheTTL:    Duration{DefaultCacheTTL},
		},
	}
}

// Load reads path on top of [Default] and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field consistency. The base URL is not required here
// because the command line may supply it.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "concurrency must not be negative: %d", c.Concurrency)
	}
	if c.FetchTimeout.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "fetch_timeout must not be negative: %s", c.FetchTimeout)
	}
	if c.BaseURL != "" {
		if err := errors.ValidateBaseURL(c.BaseURL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "base_url")
		}
	}
	if c.Output.JSON != "" && c.Output.SQLite != "" {
		return errors.New(errors.ErrCodeInvalidConfig, "output.json and output.sqlite are mutually exclusive")
	}
	return c.Content.validate()
}

func (c Content) validate() error {
	switch c.Kind {
	case KindHTTP:
	case KindMemory:
		if c.Stash == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "content kind %q needs stash", c.Kind)
		}
	case KindDir:
		if c.Dir == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "content kind %q needs dir", c.Kind)
		}
	case KindRedis:
		if c.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "content kind %q needs redis_addr", c.Kind)
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig,
			"invalid content kind: %q (must be one of: %s)", c.Kind, strings.Join(Kinds(), ", "))
	}
	if c.CacheTTL.Duration < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache_ttl must not be negative: %s", c.CacheTTL)
	}
	return nil
}

// Kinds lists the supported content store kinds.
func Kinds() []string {
	return []string{KindDir, KindHTTP, KindMemory, KindRedis}
}

// PipelineOptions converts the configuration to run options.
func (c Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		BaseURL:      c.BaseURL,
		AgentMarker:  c.AgentMarker,
		Concurrency:  c.Concurrency,
		FetchTimeout: c.FetchTimeout.Duration,
	}
}

// String summarizes the configuration for debug logs.
func (c Config) String() string {
	return fmt.Sprintf("base=%s content=%s concurrency=%d timeout=%s", c.BaseURL, c.Content.Kind, c.Concurrency, c.FetchTimeout)
}
