// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Auth      AuthConfig       `mapstructure:"auth"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Analytics AnalyticsConfig  `mapstructure:"analytics"`
	OAuth     OAuthConfig      `mapstructure:"oauth"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Storage   StorageConfig    `mapstructure:"storage"`
	DB        DBConfig         `mapstructure:"db"`
	Aggregate AggregateConfig  `mapstructure:"aggregate"`
	Locales   []counter.Locale `mapstructure:"locales"`
	Aliases   []AliasConfig    `mapstructure:"aliases"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Schedule  ScheduleConfig   `mapstructure:"schedule"`
	Archive   ArchiveConfig    `mapstructure:"archive"`
	Tracing   TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AnalyticsConfig describes the report source and how fast to query it.
type AnalyticsConfig struct {
	ProfileID         string  `mapstructure:"profile_id"`
	BaseURL           string  `mapstructure:"base_url"`
	ChunkSize         int     `mapstructure:"chunk_size"`
	StartDate         string  `mapstructure:"start_date"`
	Timezone          string  `mapstructure:"timezone"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	// FixturePath replaces the live provider with recorded rows.
	FixturePath string `mapstructure:"fixture_path"`
}

// OAuthConfig holds the provider's OAuth2 client and stored tokens.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`
	// ExpiresAt is the RFC 3339 expiry of AccessToken. Empty means the
	// access token is treated as expired and must be refreshed.
	ExpiresAt string `mapstructure:"expires_at"`
}

// CacheConfig selects the chunk cache backend.
type CacheConfig struct {
	Driver     string `mapstructure:"driver"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// RedisConfig points at the redis chunk cache.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// StorageConfig selects the pageview and totals backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// AggregateConfig controls resource aggregation.
type AggregateConfig struct {
	ResourceType       string `mapstructure:"resource_type"`
	MirrorLegacyTotals bool   `mapstructure:"mirror_legacy_totals"`
}

// AliasConfig registers one localized alias for a canonical path.
type AliasConfig struct {
	Path   string `mapstructure:"path"`
	Locale string `mapstructure:"locale"`
	Alias  string `mapstructure:"alias"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ScheduleConfig controls the in-process import scheduler.
type ScheduleConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ImportCron string `mapstructure:"import_cron"`
	PurgeCron  string `mapstructure:"purge_cron"`
}

// ArchiveConfig selects where raw chunk rows are kept. Driver "none" disables it.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// TracingConfig toggles the OpenTelemetry trace provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEVIEWS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("analytics.base_url", "https://analytics.googleapis.com/analytics/v3/")
	v.SetDefault("analytics.chunk_size", 1000)
	v.SetDefault("analytics.start_date", "2005-01-01")
	v.SetDefault("analytics.timezone", "Local")
	v.SetDefault("analytics.requests_per_second", 1.0)
	v.SetDefault("analytics.burst", 1)
	v.SetDefault("analytics.timeout_seconds", 30)
	v.SetDefault("oauth.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl_seconds", 86400)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("aggregate.resource_type", "node")
	v.SetDefault("aggregate.mirror_legacy_totals", false)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.import_cron", "@every 15m")
	v.SetDefault("schedule.purge_cron", "@hourly")
	v.SetDefault("archive.driver", "none")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "pageview-counter")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return invalid("server.port", "must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return invalid("auth.api_key", "must be set when auth is enabled")
	}
	if c.Analytics.ChunkSize <= 0 {
		return invalid("analytics.chunk_size", "must be > 0")
	}
	if _, err := c.StartDate(); err != nil {
		return invalid("analytics.start_date", "must be YYYY-MM-DD")
	}
	if _, err := c.Location(); err != nil {
		return invalid("analytics.timezone", err.Error())
	}
	if c.Cache.TTLSeconds <= 0 {
		return invalid("cache.ttl_seconds", "must be > 0")
	}
	switch c.Cache.Driver {
	case "memory", "postgres":
	case "redis":
		if c.Redis.URL == "" {
			return invalid("redis.url", "must be set when cache.driver is redis")
		}
	default:
		return invalid("cache.driver", fmt.Sprintf("unknown driver %q", c.Cache.Driver))
	}
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		return invalid("storage.driver", fmt.Sprintf("unknown driver %q", c.Storage.Driver))
	}
	if (c.Storage.Driver == "postgres" || c.Cache.Driver == "postgres") && c.DB.DSN == "" {
		return invalid("db.dsn", "must be set for the postgres driver")
	}
	for i, l := range c.Locales {
		if l.ID == "" {
			return invalid(fmt.Sprintf("locales[%d].id", i), "is required")
		}
		if strings.Contains(l.Prefix, "/") {
			return invalid(fmt.Sprintf("locales[%d].prefix", i), "must not contain '/'")
		}
	}
	for i, a := range c.Aliases {
		if !strings.HasPrefix(a.Path, "/") || !strings.HasPrefix(a.Alias, "/") || a.Locale == "" {
			return invalid(fmt.Sprintf("aliases[%d]", i), "needs absolute path, absolute alias and locale")
		}
	}
	switch c.Archive.Driver {
	case "", "none":
	case "local":
		if c.Archive.BaseDir == "" {
			return invalid("archive.base_dir", "must be set when archive.driver is local")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return invalid("archive.bucket", "must be set when archive.driver is gcs")
		}
	default:
		return invalid("archive.driver", fmt.Sprintf("unknown driver %q", c.Archive.Driver))
	}
	if _, err := c.TokenExpiry(); err != nil {
		return invalid("oauth.expires_at", "must be RFC 3339")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return invalid("pubsub.project_id", "must be set when pubsub.topic_name is set")
	}
	return nil
}

func invalid(field, reason string) error {
	return &counter.ConfigurationError{Field: field, Reason: reason}
}

// StartDate parses analytics.start_date.
func (c Config) StartDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Analytics.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start date: %w", err)
	}
	return t, nil
}

// Location resolves analytics.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Analytics.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return loc, nil
}

// TokenExpiry parses oauth.expires_at. An empty value yields the zero time.
func (c Config) TokenExpiry() (time.Time, error) {
	if c.OAuth.ExpiresAt == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.OAuth.ExpiresAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token expiry: %w", err)
	}
	return t, nil
}

// CacheTTL converts cache.ttl_seconds into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// AnalyticsTimeout converts analytics.timeout_seconds into a duration.
func (c Config) AnalyticsTimeout() time.Duration {
	return time.Duration(c.Analytics.TimeoutSeconds) * time.Second
}

// AliasMap indexes aliases by canonical path, then locale id.
func (c Config) AliasMap() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, a := range c.Aliases {
		if out[a.Path] == nil {
			out[a.Path] = make(map[string]string)
		}
		out[a.Path][a.Locale] = a.Alias
	}
	return out
}
