package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"price-comparator-api/internal/alerts"
	"price-comparator-api/internal/cache"
	"price-comparator-api/internal/config"
	"price-comparator-api/internal/database"
	"price-comparator-api/internal/events"
	"price-comparator-api/internal/features"
	"price-comparator-api/internal/handler"
	"price-comparator-api/internal/ingest"
	"price-comparator-api/internal/logging"
	"price-comparator-api/internal/middleware"
	"price-comparator-api/internal/service"
	"price-comparator-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	port := flag.String("port", "", "Server port (overrides config)")
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	dataDir := flag.String("data", "", "CSV feed directory (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:    cfg.Logging.Level,
		Console:  true,
		FilePath: cfg.Logging.File,
	})

	shutdownTracing, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	eventBus := events.NewManager(true)
	defer eventBus.Shutdown()
	subscribeEventLogging(eventBus, logging.WithComponent(logger, "events"))

	svc := service.NewService(db, logging.WithComponent(logger, "service"))
	svc.UseEvents(eventBus)

	if cfg.Cache.Enabled {
		responseCache, err := buildCache(cfg.Cache, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cache unavailable, continuing without it")
		} else {
			svc.UseCache(responseCache, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		}
	}

	registry := alerts.NewRegistry(svc, svc)
	loader := ingest.NewLoader(db, logging.WithComponent(logger, "ingest"))

	flags := features.NewManager()
	flags.Register(features.FlagAlerts, true, "price alert creation and checking")
	flags.Register(features.FlagRecommendations, true, "cheaper-alternative recommendations")
	flags.Register(features.FlagIngest, true, "CSV feed ingestion endpoint")
	flags.Register(features.FlagResponseCache, cfg.Cache.Enabled, "basket/history response cache")

	if cfg.Data.Dir != "" && cfg.Data.LoadOnStart {
		report, err := loader.LoadDir(cfg.Data.Dir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.Data.Dir).Msg("failed to load seed data")
		}
		eventBus.PublishPricesIngested(context.Background(), report.Files, report.Prices, report.Discounts, len(report.Failures))
	}

	h := handler.NewHandler(svc, registry, loader, flags, handler.Options{
		DataDir:     cfg.Data.Dir,
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})
	h.UseEvents(eventBus)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(rateLimiter))
	}
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h.Routes(r)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	logger.Info().
		Str("addr", addr).
		Str("database", cfg.Database.Path).
		Str("data_dir", cfg.Data.Dir).
		Msg("starting server")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error shutting down server")
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error shutting down tracing")
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

// buildCache picks Redis when an address is configured, otherwise the
// in-process cache.
func buildCache(cfg config.CacheConfig, logger zerolog.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("using in-memory response cache")
		return cache.NewInMemoryCache(), nil
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("using Redis response cache")
	return cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func subscribeEventLogging(bus *events.Manager, logger zerolog.Logger) {
	bus.Subscribe(events.EventPricesIngested, func(_ context.Context, e events.Event) error {
		if data, ok := e.Data.(events.PricesIngestedData); ok {
			logger.Info().
				Int("files", data.Files).
				Int("prices", data.Prices).
				Int("discounts", data.Discounts).
				Int("failures", data.Failures).
				Msg("prices ingested")
		}
		return nil
	})
	bus.Subscribe(events.EventBasketOptimized, func(_ context.Context, e events.Event) error {
		if data, ok := e.Data.(events.BasketOptimizedData); ok {
			logger.Debug().
				Int("products", len(data.ProductIDs)).
				Int("baskets", len(data.Baskets)).
				Str("date", data.Date.String()).
				Msg("basket optimized")
		}
		return nil
	})
	bus.Subscribe(events.EventAlertsTriggered, func(_ context.Context, e events.Event) error {
		if data, ok := e.Data.(events.AlertsTriggeredData); ok && len(data.Alerts) > 0 {
			logger.Info().Int("alerts", len(data.Alerts)).Msg("alerts triggered")
		}
		return nil
	})
}
