package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig          `toml:"credentials"`
	Database    DatabaseConfig             `toml:"database"`
	Server      ServerConfig               `toml:"server"`
	RateLimit   map[string]RateLimitConfig `toml:"ratelimit"`
	Cache       CacheConfig                `toml:"cache"`
	Transfer    TransferConfig             `toml:"transfer"`
	HTTP        HTTPConfig                 `toml:"http"`
	Tokens      TokensConfig               `toml:"tokens"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify    ClientConfig `toml:"spotify"`
	SoundCloud ClientConfig `toml:"soundcloud"`
}

// ClientConfig contains the OAuth2 client registration for one platform.
type ClientConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Configured reports whether both the client id and secret are set.
func (c ClientConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RateLimitConfig holds the request ceilings for one platform.
type RateLimitConfig struct {
	PerMinute int `toml:"per_minute"`
	PerHour   int `toml:"per_hour"`
	Burst     int `toml:"burst"`
}

// CacheConfig sizes the search cache.
type CacheConfig struct {
	TTLSeconds int `toml:"ttl_seconds"`
	MaxEntries int `toml:"max_entries"`
}

// TTL returns the entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// TransferConfig tunes the batch transfer engine.
type TransferConfig struct {
	Concurrency      int  `toml:"concurrency"`
	SearchLimit      int  `toml:"search_limit"`
	ProgressStart    int  `toml:"progress_start"`
	ProgressEnd      int  `toml:"progress_end"`
	ReserveRetries   int  `toml:"reserve_retries"`
	WeightedMatching bool `toml:"weighted_matching"`
}

// HTTPConfig bounds outbound API calls.
type HTTPConfig struct {
	TimeoutSeconds   int `toml:"timeout_seconds"`
	RetryAttempts    int `toml:"retry_attempts"`
	RetryBaseDelayMS int `toml:"retry_base_delay_ms"`
}

// Timeout returns the per-request timeout.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// RetryPolicy builds the [RetryPolicy] described by the config.
func (h HTTPConfig) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  h.RetryAttempts,
		BaseDelay: time.Duration(h.RetryBaseDelayMS) * time.Millisecond,
	}
}

// TokensConfig controls token staleness checks.
type TokensConfig struct {
	SkewSeconds int `toml:"skew_seconds"`
}

// Skew returns how long before expiry a token is treated as stale.
func (t TokensConfig) Skew() time.Duration {
	return time.Duration(t.SkewSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file fall back to the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the numeric settings the transfer pipeline depends on.
func (c *Config) Validate() error {
	switch {
	case c.Transfer.Concurrency < 1:
		return fmt.Errorf("%w: transfer.concurrency must be at least 1", ErrInvalidConfig)
	case c.Transfer.ProgressStart < 0 || c.Transfer.ProgressEnd > 100 || c.Transfer.ProgressStart >= c.Transfer.ProgressEnd:
		return fmt.Errorf("%w: transfer progress band must satisfy 0 <= start < end <= 100", ErrInvalidConfig)
	case c.Cache.MaxEntries < 1:
		return fmt.Errorf("%w: cache.max_entries must be at least 1", ErrInvalidConfig)
	case c.HTTP.TimeoutSeconds < 1:
		return fmt.Errorf("%w: http.timeout_seconds must be at least 1", ErrInvalidConfig)
	}

	for platform, limits := range c.RateLimit {
		if limits.PerMinute < 0 || limits.PerHour < 0 || limits.Burst < 0 {
			return fmt.Errorf("%w: negative rate limit for %s", ErrInvalidConfig, platform)
		}
	}
	return nil
}

// LoadEnv loads a dotenv file into the process environment when it exists.
// A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides platform credentials with SPCLIENT_* and SCCLIENT_* variables when set.
func (c *Config) ApplyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	override(&c.Credentials.Spotify.ClientID, "SPCLIENT_ID")
	override(&c.Credentials.Spotify.ClientSecret, "SPCLIENT_SECRET")
	override(&c.Credentials.Spotify.RedirectURI, "SPREDIRECT_URI")
	override(&c.Credentials.SoundCloud.ClientID, "SCCLIENT_ID")
	override(&c.Credentials.SoundCloud.ClientSecret, "SCCLIENT_SECRET")
	override(&c.Credentials.SoundCloud.RedirectURI, "SCREDIRECT_URI")
}
