package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/islandmassage/booking/internal/config"
	"github.com/islandmassage/booking/internal/domain/account"
	"github.com/islandmassage/booking/internal/domain/availability"
	"github.com/islandmassage/booking/internal/domain/booking"
	"github.com/islandmassage/booking/internal/domain/catalog"
	"github.com/islandmassage/booking/internal/domain/matching"
	"github.com/islandmassage/booking/internal/domain/therapist"
	"github.com/islandmassage/booking/internal/platform/auth"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/lock"
	"github.com/islandmassage/booking/internal/platform/middleware"
	"github.com/islandmassage/booking/internal/platform/notification"
	"github.com/islandmassage/booking/internal/platform/payment"
	"github.com/islandmassage/booking/internal/platform/ratelimit"
	"github.com/islandmassage/booking/migrations"
)

const version = "0.1.0"

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

// infra holds the shared backends the services are built on.
type infra struct {
	pool           *pgxpool.Pool
	redis          *redis.Client
	locker         lock.Locker
	bookingLimiter ratelimit.Limiter
	authLimiter    ratelimit.Limiter
	checks         []db.Check
}

func newInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	in := &infra{pool: pool, checks: []db.Check{db.PoolCheck(pool)}}

	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; using in-process locks and rate limits")
		in.locker = lock.NewLocal()
		in.bookingLimiter = ratelimit.NewMemory(cfg.BookingRateLimit, cfg.BookingRateWindow)
		in.authLimiter = ratelimit.NewMemory(cfg.AuthRateLimit, cfg.AuthRateWindow)
		return in, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	in.redis = redis.NewClient(opt)
	in.locker = lock.NewRedis(in.redis, logger, lock.WithTTL(cfg.LockTTL))
	in.bookingLimiter = ratelimit.NewRedis(in.redis, "rl:booking:", cfg.BookingRateLimit, cfg.BookingRateWindow)
	in.authLimiter = ratelimit.NewRedis(in.redis, "rl:auth:", cfg.AuthRateLimit, cfg.AuthRateWindow)
	in.checks = append(in.checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
		return in.redis.Ping(ctx).Err()
	}})
	return in, nil
}

func (in *infra) Close() {
	if in.redis != nil {
		_ = in.redis.Close()
	}
	in.pool.Close()
}

// services is the wired domain layer.
type services struct {
	catalog      *catalog.Service
	account      *account.Service
	therapist    *therapist.Service
	availability *availability.Service
	booking      *booking.Service
}

func newServices(cfg *config.Config, in *infra, notifier booking.Notifier, logger zerolog.Logger) (*services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	tx := db.NewTransactor(in.pool)

	bookingRepo := booking.NewRepoPG(in.pool)
	catalogSvc := catalog.NewService(catalog.NewRepoPG(in.pool))
	accountSvc := account.NewService(account.NewRepoPG(in.pool), logger)
	therapistSvc := therapist.NewService(therapist.NewRepoPG(in.pool), accountSvc, tx, logger)
	availabilitySvc := availability.NewService(
		availability.NewSlotRepoPG(in.pool),
		availability.NewPatternRepoPG(in.pool),
		booking.NewCalendar(bookingRepo),
		tx, in.locker, loc, logger,
	)
	matcher := matching.NewMatcher(matching.NewRepoPG(in.pool), logger)

	bookingSvc := booking.NewService(booking.Deps{
		Repo:      bookingRepo,
		Slots:     availabilitySvc,
		Quotes:    catalogSvc,
		Matcher:   matcher,
		Contacts:  accountSvc,
		Notifier:  notifier,
		Templates: notification.NewTemplateEngine(),
		Tx:        tx,
		Locker:    in.locker,
	}, booking.Config{
		ServiceArea: cfg.ServiceArea(),
		OpsEmail:    cfg.OpsEmail,
		Location:    loc,
	}, logger)

	return &services{
		catalog:      catalogSvc,
		account:      accountSvc,
		therapist:    therapistSvc,
		availability: availabilitySvc,
		booking:      bookingSvc,
	}, nil
}

// newSender publishes to Kafka when brokers are configured; otherwise
// messages are delivered in-process through the log.
// The Kafka sender is also registered as a health check.
func newSender(cfg *config.Config, in *infra, logger zerolog.Logger) (notification.Sender, func() error) {
	if len(cfg.KafkaBrokers) > 0 {
		k := notification.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
		in.checks = append(in.checks, db.Check{Name: "kafka", Ping: k.Ping})
		return k, k.Close
	}
	return localRouter(logger), func() error { return nil }
}

func localRouter(logger zerolog.Logger) *notification.Router {
	ls := notification.NewLogSender(logger)
	return notification.NewRouter(map[notification.Channel]notification.Sender{
		notification.ChannelEmail:    ls,
		notification.ChannelWhatsApp: ls,
	})
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware()
	}
	var key []byte
	if cfg.AuthJWTSecret != "" {
		key = []byte(cfg.AuthJWTSecret)
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
		Optional:   true,
	})
}

func newRouter(cfg *config.Config, in *infra, svc *services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, "/health"))
	e.Use(middleware.SecurityHeaders(middleware.DefaultSecurityConfig(cfg.TLSEnabled)))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/health"))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(in.checks...))

	// Stripe calls the webhook without a bearer token.
	payment.NewHandler(payment.NewVerifier(cfg.StripeWebhookKey), svc.booking, logger).RegisterRoutes(e)

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(authMiddleware(cfg))
	apiV1.Use(auth.ResolveRoles(svc.account, logger))

	bookingLimit := middleware.FixedWindow(in.bookingLimiter, middleware.ClientKey, logger)
	authLimit := middleware.FixedWindow(in.authLimiter, middleware.ClientKey, logger)

	catalog.NewHandler(svc.catalog).RegisterRoutes(apiV1)
	account.NewHandler(svc.account).RegisterRoutes(apiV1, authLimit)
	therapist.NewHandler(svc.therapist).RegisterRoutes(apiV1)
	availability.NewHandler(svc.availability).RegisterRoutes(apiV1)
	booking.NewHandler(svc.booking).RegisterRoutes(apiV1, bookingLimit)

	return e
}

func runServer(migrate bool) error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	in, err := newInfra(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to backends")
	}
	defer in.Close()
	logger.Info().Bool("redis", in.redis != nil).Msg("connected to database")

	if migrate {
		count, err := db.NewMigrator(in.pool, migrations.FS, "").Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", count).Msg("migrations applied")
	}

	sender, closeSender := newSender(cfg, in, logger)
	dispatcher := notification.NewDispatcher(sender, logger, notification.WithSendTimeout(cfg.NotifyTimeout))

	svc, err := newServices(cfg, in, dispatcher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	e := newRouter(cfg, in, svc, logger)

	if cfg.StripeWebhookKey == "" {
		logger.Warn().Msg("STRIPE_WEBHOOK_SECRET not set; webhook calls will be rejected")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	dispatcher.Wait()
	if err := closeSender(); err != nil {
		logger.Warn().Err(err).Msg("close notification sender")
	}
	logger.Info().Interface("notifications", dispatcher.Stats()).Msg("server stopped")
	return nil
}
