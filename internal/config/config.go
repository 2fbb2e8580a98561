package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/islandmassage/booking/internal/platform/geo"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	AuthMode           string        `mapstructure:"AUTH_MODE"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DBStatementTimeout time.Duration `mapstructure:"DB_STATEMENT_TIMEOUT"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience       string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWTSecret      string        `mapstructure:"AUTH_JWT_SECRET"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	BookingRateLimit   int           `mapstructure:"BOOKING_RATE_LIMIT"`
	BookingRateWindow  time.Duration `mapstructure:"BOOKING_RATE_WINDOW"`
	AuthRateLimit      int           `mapstructure:"AUTH_RATE_LIMIT"`
	AuthRateWindow     time.Duration `mapstructure:"AUTH_RATE_WINDOW"`
	RequestTimeout     time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	StripeWebhookKey   string        `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	KafkaBrokers       []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string        `mapstructure:"KAFKA_NOTIFICATIONS_TOPIC"`
	KafkaGroupID       string        `mapstructure:"KAFKA_GROUP_ID"`
	OpsEmail           string        `mapstructure:"OPS_EMAIL"`
	TimeZone           string        `mapstructure:"TIME_ZONE"`
	AreaSWLat          float64       `mapstructure:"SERVICE_AREA_SW_LAT"`
	AreaSWLng          float64       `mapstructure:"SERVICE_AREA_SW_LNG"`
	AreaNELat          float64       `mapstructure:"SERVICE_AREA_NE_LAT"`
	AreaNELng          float64       `mapstructure:"SERVICE_AREA_NE_LNG"`
	LockTTL            time.Duration `mapstructure:"LOCK_TTL"`
	NotifyTimeout      time.Duration `mapstructure:"NOTIFY_TIMEOUT"`
	TLSEnabled         bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile        string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile         string        `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_STATEMENT_TIMEOUT",
	"REDIS_URL",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_JWT_SECRET",
	"CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"BOOKING_RATE_LIMIT", "BOOKING_RATE_WINDOW", "AUTH_RATE_LIMIT", "AUTH_RATE_WINDOW",
	"REQUEST_TIMEOUT",
	"STRIPE_WEBHOOK_SECRET",
	"KAFKA_BROKERS", "KAFKA_NOTIFICATIONS_TOPIC", "KAFKA_GROUP_ID",
	"OPS_EMAIL", "TIME_ZONE",
	"SERVICE_AREA_SW_LAT", "SERVICE_AREA_SW_LNG", "SERVICE_AREA_NE_LAT", "SERVICE_AREA_NE_LNG",
	"LOCK_TTL", "NOTIFY_TIMEOUT",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred, see ResolvedAuthMode
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_STATEMENT_TIMEOUT", "15s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100.0/60.0)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("BOOKING_RATE_LIMIT", 10)
	v.SetDefault("BOOKING_RATE_WINDOW", "1m")
	v.SetDefault("AUTH_RATE_LIMIT", 5)
	v.SetDefault("AUTH_RATE_WINDOW", "15m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("KAFKA_NOTIFICATIONS_TOPIC", "booking-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "islandmassage-notifier")
	v.SetDefault("OPS_EMAIL", "ops@islandmassage.example")
	v.SetDefault("TIME_ZONE", "Asia/Bangkok")
	v.SetDefault("SERVICE_AREA_SW_LAT", geo.DefaultServiceArea.SouthWest.Lat)
	v.SetDefault("SERVICE_AREA_SW_LNG", geo.DefaultServiceArea.SouthWest.Lng)
	v.SetDefault("SERVICE_AREA_NE_LAT", geo.DefaultServiceArea.NorthEast.Lat)
	v.SetDefault("SERVICE_AREA_NE_LNG", geo.DefaultServiceArea.NorthEast.Lng)
	v.SetDefault("LOCK_TTL", "45s")
	v.SetDefault("NOTIFY_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise:
//   - ENV=development without AUTH_JWT_SECRET or AUTH_ISSUER → "development"
//     (X-Dev-User-ID / X-Dev-Role headers are trusted)
//   - otherwise → "jwt"
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() && c.AuthJWTSecret == "" && c.AuthIssuer == "" {
		return "development"
	}
	return "jwt"
}

// ServiceArea is the bounding box bookings must fall inside.
func (c *Config) ServiceArea() geo.BoundingBox {
	return geo.BoundingBox{
		SouthWest: geo.Point{Lat: c.AreaSWLat, Lng: c.AreaSWLng},
		NorthEast: geo.Point{Lat: c.AreaNELat, Lng: c.AreaNELng},
	}
}

// Location loads the configured service time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed in production")
		}
	case "jwt":
		if c.AuthJWTSecret == "" && c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf(
				"AUTH_JWT_SECRET, AUTH_ISSUER or AUTH_JWKS_URL must be set (current ENV=%q). "+
					"Refusing to start without authentication configuration", c.Env)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if c.IsProduction() && c.StripeWebhookKey == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if !c.ServiceArea().Valid() {
		return fmt.Errorf("service area south-west corner must be below and left of the north-east corner")
	}
	if c.BookingRateLimit <= 0 || c.BookingRateWindow <= 0 {
		return fmt.Errorf("BOOKING_RATE_LIMIT and BOOKING_RATE_WINDOW must be positive")
	}
	if c.LockTTL > 0 && c.LockTTL < c.RequestTimeout {
		// The therapist lock is not renewed; it must outlive a request.
		return fmt.Errorf("LOCK_TTL (%s) must be at least REQUEST_TIMEOUT (%s)", c.LockTTL, c.RequestTimeout)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
