package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/bookline/task-service/config"
	_ "github.com/bookline/task-service/docs"
	"github.com/bookline/task-service/internal/classifier"
	"github.com/bookline/task-service/internal/deadletter"
	"github.com/bookline/task-service/internal/envelope"
	"github.com/bookline/task-service/internal/handlers"
	"github.com/bookline/task-service/internal/health"
	"github.com/bookline/task-service/internal/metrics"
	"github.com/bookline/task-service/internal/middleware"
	"github.com/bookline/task-service/internal/recovery"
	"github.com/bookline/task-service/internal/scheduler"
	"github.com/bookline/task-service/internal/store"
	"github.com/bookline/task-service/internal/telemetry"
	"github.com/bookline/task-service/internal/transport"
)

// @title Task Delivery Service API
// @version 1.0
// @description Internal API for asynchronous task delivery, dead letter review, and manual recovery.
// @BasePath /internal
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting task service")

	ctx := context.Background()

	telemetryCleanup := telemetry.MustInit(ctx, telemetry.GetConfigFromEnv())
	defer func() {
		if err := telemetryCleanup(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	if err := store.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	logger.Info().Msg("Database connected")

	if err := store.Migrate(ctx, dbURL); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	st := store.New(store.Pool())

	broker, err := buildTransport(cfg.Broker)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build broker transport")
	}
	logger.Info().Str("kind", cfg.Broker.Kind).Msg("Broker transport ready")

	routeRules, err := transport.ParseRoutes(cfg.Broker.Routes)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid broker routes")
	}
	routes := transport.NewRouteTable(routeRules)

	recorder := metrics.NewRecorder()

	cl := classifier.New(classifier.Config{
		VocabularyVersion: cfg.Classifier.VocabularyVersion,
		BaseRetryDelay:    time.Duration(cfg.Classifier.BaseRetryDelaySeconds) * time.Second,
		MaxRetryDelay:     time.Duration(cfg.Classifier.MaxRetryDelaySeconds) * time.Second,
		MaxTaskAge:        cfg.Classifier.MaxTaskAge,
		Permanent:         classifier.Vocabulary(cfg.Classifier.PermanentErrorKeywords),
		Transient:         classifier.Vocabulary(cfg.Classifier.TransientErrorKeywords),
	})

	archive := deadletter.New(st, deadletter.Config{
		RetentionDays: cfg.DeadLetter.RetentionDays,
		BatchSize:     cfg.DeadLetter.BatchSize,
		Policy:        buildPolicy(cfg.DeadLetter),
	}, logger, recorder)

	gateway := recovery.New(archive, st, logger, recorder)

	reporter := health.NewReporter(st, logger, recorder, cfg.Health.CollectInterval)
	go reporter.Start(ctx)

	sched := scheduler.New(st, cl, broker, routes, archive, scheduler.Config{
		TickInterval:              cfg.Scheduler.TickInterval,
		RetryBatchSize:            cfg.Scheduler.RetryBatchSize,
		DispatchConcurrency:       cfg.Scheduler.DispatchConcurrency,
		RedeliveryTimeout:         cfg.Scheduler.RedeliveryTimeout,
		StaleClaimAge:             cfg.Scheduler.StaleClaimAge,
		UnavailableAlertThreshold: cfg.Scheduler.UnavailableAlertThreshold,
	}, logger, recorder)
	go sched.Start(ctx)

	retentionSweeper := deadletter.NewSweeper(archive, logger, cfg.DeadLetter.ArchiveInterval)
	go retentionSweeper.Start(ctx)

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handlers.New(st, st, sched, gateway, reporter, broker, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	router.GET("/health", middleware.RateLimit(), h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth())
	internal.Use(middleware.ServiceRateLimit(50, 100))
	{
		internal.GET("/health", h.HealthCheck)
		internal.GET("/stats", h.GetStats)

		envelopes := internal.Group("/envelopes")
		{
			envelopes.POST("", h.EnqueueEnvelope)
			envelopes.GET("", h.ListEnvelopes)
			envelopes.GET("/:id", h.GetEnvelope)
			envelopes.POST("/:id/report", h.ReportOutcome)
			envelopes.POST("/:id/cancel", h.CancelEnvelope)
		}

		deadLetters := internal.Group("/deadletters")
		{
			deadLetters.GET("", h.ListDeadLetters)
			deadLetters.GET("/:id", h.GetDeadLetter)
			deadLetters.POST("/:id/retry", h.RetryDeadLetter)
			deadLetters.POST("/:id/discard", h.DiscardDeadLetter)
			deadLetters.PATCH("/:id/notes", h.AnnotateDeadLetter)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	retentionSweeper.Stop()
	sched.Stop()
	reporter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

// buildTransport selects the broker implementation from configuration.
func buildTransport(cfg config.BrokerConfig) (transport.Transport, error) {
	switch cfg.Kind {
	case "redis", "":
		return transport.NewRedisTransport(cfg.RedisURL, cfg.KeyPrefix)
	case "http":
		if cfg.ExecutorURL == "" {
			return nil, fmt.Errorf("broker kind %q requires executor_url", cfg.Kind)
		}
		return transport.NewHTTPTransport(cfg.ExecutorURL, cfg.HTTPTimeout, cfg.RequestsPerSecond)
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

func buildPolicy(cfg config.DeadLetterConfig) deadletter.Policy {
	policy := deadletter.Policy{
		ManualReviewAttempts: cfg.ManualReviewAttempts,
		UnsafeTaskKeywords:   cfg.UnsafeTaskKeywords,
	}
	for _, q := range cfg.FinancialQueueTypes {
		policy.FinancialQueueTypes = append(policy.FinancialQueueTypes, envelope.QueueType(q))
	}
	return policy
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "task-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
