package app

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/careportal/pkg/fieldcrypt"
	"github.com/aussiebroadwan/careportal/pkg/httpx"
	"github.com/aussiebroadwan/careportal/pkg/jwtx"
	"github.com/aussiebroadwan/careportal/pkg/ratelimit"
)

// ErrConfigurationInvalid is returned when the loaded configuration cannot
// run the service.
var ErrConfigurationInvalid = errors.New("config: configuration invalid")

// EnvProduction is the ENV value that enables fail-closed validation.
const EnvProduction = "prod"

// MinIssuerTokenBytes is the shortest SESSION_ISSUER_TOKEN accepted in
// production.
const MinIssuerTokenBytes = 32

type Config struct {
	Env                  string        `mapstructure:"ENV"`                   // Environment (dev, staging, prod) (default: dev)
	Port                 int           `mapstructure:"PORT"`                  // HTTP server port (default: 8080)
	LogLevel             string        `mapstructure:"LOG_LEVEL"`             // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        `mapstructure:"LOG_FORMAT"`            // Log format (json, text) (default: json)
	DatabaseFile         string        `mapstructure:"DATABASE_FILE"`         // Path to SQLite database file (default: ./careportal.db)
	JWTSecret            string        `mapstructure:"JWT_SECRET"`            // Required in prod, at least 32 bytes
	JWTIssuer            string        `mapstructure:"JWT_ISSUER"`            // Issuer claim (default: careportal)
	JWTAudience          string        `mapstructure:"JWT_AUDIENCE"`          // Optional, comma separated
	AccessTokenTTL       time.Duration `mapstructure:"JWT_ACCESS_TTL"`        // (default: 24h)
	RefreshTokenTTL      time.Duration `mapstructure:"JWT_REFRESH_TTL"`       // (default: 168h)
	CSRFTokenTTL         time.Duration `mapstructure:"CSRF_TTL"`              // (default: 1h)
	KeyAlgorithm         string        `mapstructure:"KEY_ALGORITHM"`         // AES-256-GCM or CHACHA20-POLY1305
	KeyRotationInterval  time.Duration `mapstructure:"KEY_ROTATION_INTERVAL"` // (default: 2160h)
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"` // (default: 5m)
	ShutdownGracePeriod  time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"` // (default: 10s)
	RedisAddr            string        `mapstructure:"REDIS_ADDR"`            // Optional: shared rate limiter backend
	SecureCookies        bool          `mapstructure:"SECURE_COOKIES"`        // Mark CSRF cookies Secure (default: true in prod)
	SessionIssuerToken   string        `mapstructure:"SESSION_ISSUER_TOKEN"`  // Login controller credential for POST /v1/sessions, required in prod
	TrustedProxies       string        `mapstructure:"TRUSTED_PROXIES"`       // Comma separated IPs/CIDRs allowed to set X-Forwarded-For

	// RateLimits is built from the defaults plus RATELIMIT_{CATEGORY}_*.
	RateLimits ratelimit.Policy `mapstructure:"-"`
}

var rateLimitCategories = []ratelimit.Category{
	ratelimit.CategoryLogin,
	ratelimit.CategoryToken,
	ratelimit.CategoryAPI,
	ratelimit.CategoryPublic,
}

// LoadConfig reads .env (if present), then the environment. Environment
// variables override .env.
func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_FILE", "careportal.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "careportal")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_ACCESS_TTL", jwtx.DefaultAccessTokenTTL)
	v.SetDefault("JWT_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL)
	v.SetDefault("CSRF_TTL", time.Hour)
	v.SetDefault("KEY_ALGORITHM", fieldcrypt.DefaultAlgorithm)
	v.SetDefault("KEY_ROTATION_INTERVAL", fieldcrypt.DefaultRotationInterval)
	v.SetDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute)
	v.SetDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("SESSION_ISSUER_TOKEN", "")
	v.SetDefault("TRUSTED_PROXIES", "")

	for _, c := range rateLimitCategories {
		v.SetDefault(rateLimitKey(c, "REQUESTS"), 0)
		v.SetDefault(rateLimitKey(c, "WINDOW_SEC"), 0)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigurationInvalid, err)
	}
	// No default for SECURE_COOKIES: unset means "on in production".
	if v.IsSet("SECURE_COOKIES") {
		cfg.SecureCookies = v.GetBool("SECURE_COOKIES")
	} else {
		cfg.SecureCookies = cfg.IsProduction()
	}

	cfg.RateLimits = ratelimit.DefaultPolicy()
	for _, c := range rateLimitCategories {
		requests := v.GetInt(rateLimitKey(c, "REQUESTS"))
		window := time.Duration(v.GetInt(rateLimitKey(c, "WINDOW_SEC"))) * time.Second
		cfg.RateLimits.Override(c, requests, window)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func rateLimitKey(c ratelimit.Category, suffix string) string {
	return "RATELIMIT_" + strings.ToUpper(string(c)) + "_" + suffix
}

// IsProduction reports whether ENV selects production.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Audience splits JWTAudience on commas.
func (c Config) Audience() []string {
	var out []string
	for _, a := range strings.Split(c.JWTAudience, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Proxies parses TrustedProxies.
func (c Config) Proxies() ([]netip.Prefix, error) {
	return httpx.ParseTrustedProxies(c.TrustedProxies)
}

// Validate fails closed in production.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: PORT must be between 1 and 65535", ErrConfigurationInvalid)
	}
	if c.JWTIssuer == "" {
		return fmt.Errorf("%w: JWT_ISSUER must be set", ErrConfigurationInvalid)
	}
	if c.IsProduction() && len(c.JWTSecret) < jwtx.MinSecretBytes {
		return fmt.Errorf("%w: JWT_SECRET must be at least %d bytes when ENV=prod", ErrConfigurationInvalid, jwtx.MinSecretBytes)
	}
	if c.IsProduction() && len(c.SessionIssuerToken) < MinIssuerTokenBytes {
		return fmt.Errorf("%w: SESSION_ISSUER_TOKEN must be at least %d bytes when ENV=prod", ErrConfigurationInvalid, MinIssuerTokenBytes)
	}
	if _, err := c.Proxies(); err != nil {
		return fmt.Errorf("%w: TRUSTED_PROXIES: %v", ErrConfigurationInvalid, err)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.CSRFTokenTTL <= 0 {
		return fmt.Errorf("%w: token lifetimes must be positive", ErrConfigurationInvalid)
	}
	if c.AccessTokenTTL > c.RefreshTokenTTL {
		return fmt.Errorf("%w: JWT_ACCESS_TTL must not exceed JWT_REFRESH_TTL", ErrConfigurationInvalid)
	}
	return nil
}
