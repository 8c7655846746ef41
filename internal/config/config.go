package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/inboxsorter/internal/cache"
	"github.com/teemow/inboxsorter/internal/session"
)

// EnvPrefix is prepended to every configuration key when read from the
// environment, e.g. INBOXSORTER_CACHE_BACKEND.
const EnvPrefix = "INBOXSORTER"

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/auth/callback"

// Config is the complete serve configuration.
type Config struct {
	Addr    string `mapstructure:"addr"`
	BaseURL string `mapstructure:"base_url"`

	Google  GoogleConfig  `mapstructure:"google"`
	OpenAI  OpenAIConfig  `mapstructure:"openai"`
	Session SessionConfig `mapstructure:"session"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`

	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// GoogleConfig holds the OAuth client credentials.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// OpenAIConfig configures the LLM classifier.
type OpenAIConfig struct {
	// APIKey is the server-wide default; users may supply their own.
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	// Secret signs session cookies. At least 32 bytes.
	Secret string `mapstructure:"secret"`

	// EncryptionKey is a base64 AES-256 key for the tokens inside the
	// cookie. Empty disables encryption.
	EncryptionKey string `mapstructure:"encryption_key"`
}

// CacheConfig selects the inbox list cache backend.
type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	TTL        time.Duration `mapstructure:"ttl"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	Valkey     ValkeyConfig  `mapstructure:"valkey"`
}

// ValkeyConfig mirrors cache.ValkeyConfig.
type ValkeyConfig struct {
	URL        string `mapstructure:"url"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	DB         int    `mapstructure:"db"`
}

// MetricsConfig configures the separate Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// RateLimitConfig throttles POST /api/classify per client IP. A zero rate
// disables the limit.
type RateLimitConfig struct {
	ClassifyRate  float64 `mapstructure:"classify_rate"`
	ClassifyBurst int     `mapstructure:"classify_burst"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Format string `mapstructure:"format"`
	Debug  bool   `mapstructure:"debug"`
}

var defaults = map[string]any{
	"addr":                     ":8080",
	"base_url":                 "http://localhost:8080",
	"google.client_id":         "",
	"google.client_secret":     "",
	"openai.api_key":           "",
	"openai.base_url":          "",
	"openai.model":             "gpt-4o-mini",
	"session.secret":           "",
	"session.encryption_key":   "",
	"cache.backend":            cache.BackendMemory,
	"cache.ttl":                cache.DefaultTTL,
	"cache.sqlite_path":        "inboxsorter.db",
	"cache.valkey.url":         "",
	"cache.valkey.password":    "",
	"cache.valkey.tls":         false,
	"cache.valkey.key_prefix":  cache.DefaultValkeyKeyPrefix,
	"cache.valkey.db":          0,
	"metrics.enabled":          true,
	"metrics.addr":             ":9090",
	"log.format":               "text",
	"log.debug":                false,
	"ratelimit.classify_rate":  2.0,
	"ratelimit.classify_burst": 10,
}

// legacyEnv maps keys to the unprefixed variables used by earlier
// deployments.
var legacyEnv = map[string]string{
	"base_url":               "BASE_URL",
	"google.client_id":       "GOOGLE_CLIENT_ID",
	"google.client_secret":   "GOOGLE_CLIENT_SECRET",
	"openai.api_key":         "OPENAI_API_KEY",
	"session.secret":         "SESSION_SECRET",
	"session.encryption_key": "TOKEN_ENCRYPTION_KEY",
	"cache.backend":          "CACHE_BACKEND",
	"cache.sqlite_path":      "SQLITE_PATH",
	"cache.valkey.url":       "VALKEY_URL",
	"cache.valkey.password":  "VALKEY_PASSWORD",
}

// FlagKeys maps serve flag names to configuration keys.
var FlagKeys = map[string]string{
	"addr":                 "addr",
	"base-url":             "base_url",
	"google-client-id":     "google.client_id",
	"google-client-secret": "google.client_secret",
	"openai-api-key":       "openai.api_key",
	"openai-base-url":      "openai.base_url",
	"openai-model":         "openai.model",
	"cache-backend":        "cache.backend",
	"cache-ttl":            "cache.ttl",
	"sqlite-path":          "cache.sqlite_path",
	"valkey-url":           "cache.valkey.url",
	"valkey-tls":           "cache.valkey.tls",
	"valkey-key-prefix":    "cache.valkey.key_prefix",
	"valkey-db":            "cache.valkey.db",
	"metrics-enabled":      "metrics.enabled",
	"metrics-addr":         "metrics.addr",
	"log-format":           "log.format",
	"debug":                "log.debug",
	"classify-rate":        "ratelimit.classify_rate",
	"classify-burst":       "ratelimit.classify_burst",
}

// Load resolves the configuration. path may be empty; a named file that
// does not exist is an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

// Validate checks the configuration needed to serve.
func (c *Config) Validate() error {
	var errs []error

	if c.Google.ClientID == "" {
		errs = append(errs, errors.New("google client ID is required (GOOGLE_CLIENT_ID)"))
	}
	if c.Google.ClientSecret == "" {
		errs = append(errs, errors.New("google client secret is required (GOOGLE_CLIENT_SECRET)"))
	}
	if len(c.Session.Secret) < 32 {
		errs = append(errs, fmt.Errorf("session secret must be at least 32 bytes, got %d (SESSION_SECRET)", len(c.Session.Secret)))
	}
	if _, err := session.KeyFromBase64(c.Session.EncryptionKey); err != nil {
		errs = append(errs, fmt.Errorf("token encryption key: %w", err))
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL must be an absolute http(s) URL, got %q", c.BaseURL))
	}

	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendMemory:
	case cache.BackendValkey:
		if c.Cache.Valkey.URL == "" {
			errs = append(errs, errors.New("valkey URL is required when cache backend is valkey (VALKEY_URL)"))
		}
	case cache.BackendSQLite:
		if c.Cache.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite path is required when cache backend is sqlite (SQLITE_PATH)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q (valid: memory, valkey, sqlite)", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache TTL must not be negative, got %s", c.Cache.TTL))
	}

	if c.RateLimit.ClassifyRate < 0 {
		errs = append(errs, fmt.Errorf("classify rate must not be negative, got %v", c.RateLimit.ClassifyRate))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// RedirectURL is the OAuth callback registered with Google.
func (c *Config) RedirectURL() string {
	return c.BaseURL + CallbackPath
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

// CacheBackendConfig converts the cache settings for cache.New.
func (c *Config) CacheBackendConfig() cache.Config {
	return cache.Config{
		Backend:    strings.ToLower(c.Cache.Backend),
		SQLitePath: c.Cache.SQLitePath,
		Valkey: cache.ValkeyConfig{
			URL:        c.Cache.Valkey.URL,
			Password:   c.Cache.Valkey.Password,
			TLSEnabled: c.Cache.Valkey.TLSEnabled,
			KeyPrefix:  c.Cache.Valkey.KeyPrefix,
			DB:         c.Cache.Valkey.DB,
		},
	}
}
