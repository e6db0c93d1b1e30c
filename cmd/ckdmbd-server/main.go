package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ckdmbd/internal/config"
	"github.com/ehr/ckdmbd/internal/domain/medication"
	"github.com/ehr/ckdmbd/internal/domain/recommend"
	"github.com/ehr/ckdmbd/internal/domain/revision"
	"github.com/ehr/ckdmbd/internal/domain/situation"
	"github.com/ehr/ckdmbd/internal/domain/visit"
	"github.com/ehr/ckdmbd/internal/platform/auth"
	"github.com/ehr/ckdmbd/internal/platform/db"
	"github.com/ehr/ckdmbd/internal/platform/lock"
	"github.com/ehr/ckdmbd/internal/platform/metrics"
	"github.com/ehr/ckdmbd/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "ckdmbd-server",
		Short:        "CKD-MBD classification and treatment-consistency server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(classifyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// connect loads configuration and opens the database pool.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// newLocker returns the revision lock backend: Redis when REDIS_URL is set,
// an in-process locker otherwise. The cleanup func closes the Redis client.
func newLocker(cfg *config.Config, logger zerolog.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; revision locks are local to this process")
		return lock.NewMemoryLocker(), func() {}, nil
	}
	client, err := lock.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client), func() { client.Close() }, nil
}

func runServer() error {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, pool, err := connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer pool.Close()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = logger.Level(cfg.Level())
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	locker, closeLocker, err := newLocker(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeLocker()

	m := metrics.New()
	tx := db.NewTransactor(pool)

	// Repositories
	situationRepo := situation.NewRepoPG(pool)
	visitRepo := visit.NewVisitRepoPG(pool)
	resultRepo := visit.NewTestResultRepoPG(pool)
	typeRepo := medication.NewMedicationTypeRepoPG(pool)
	rxRepo := medication.NewPrescriptionRepoPG(pool)

	// Services
	situationSvc := situation.NewService(situationRepo, tx)
	visitSvc := visit.NewService(visitRepo, resultRepo, situationSvc, tx, m, logger)
	medicationSvc := medication.NewService(typeRepo, rxRepo, visitRepo, tx, logger)
	recommendSvc := recommend.NewService(recommend.NewHistoryRepoPG(pool), typeRepo, rxRepo, visitRepo, resultRepo, m, logger)
	revisionSvc := revision.NewService(visitRepo, resultRepo, rxRepo, situationSvc, tx, m, logger)

	if drift, err := situationSvc.Verify(ctx); err != nil {
		logger.Error().Err(err).Msg("situation catalog check failed")
	} else if len(drift) > 0 {
		logger.Warn().Int("differences", len(drift)).Msg("situation catalog differs from the classification tables; run `ckdmbd-server catalog seed`")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.APIErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	if cfg.MetricsEnabled {
		e.Use(m.Middleware())
		e.GET("/metrics", m.Handler())
	}

	e.GET("/health", db.HealthHandler(pool, db.Check{Name: "lock", Ping: locker.Ping}))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.BodyLimit(cfg.BodyLimit))
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	situation.NewHandler(situationSvc).RegisterRoutes(apiV1)
	visit.NewHandler(visitSvc).RegisterRoutes(apiV1)
	medication.NewHandler(medicationSvc).RegisterRoutes(apiV1)
	recommend.NewHandler(recommendSvc).RegisterRoutes(apiV1)
	revision.NewHandler(revisionSvc, locker, cfg.RevisionLockTTL, m).RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
