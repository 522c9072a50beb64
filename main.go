package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aitector/aitector/config"
	"github.com/aitector/aitector/handlers"
	"github.com/aitector/aitector/middleware"
	"github.com/aitector/aitector/models"
	"github.com/aitector/aitector/services"
	"github.com/aitector/aitector/web"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// 1. Load Config
	cfg := config.LoadConfig()

	// 2. Logger
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Misconfigured() {
		logger.Warn("Supabase URL or service key missing; API routes will answer 500")
	}

	// 3. Backend
	supabase := services.NewSupabaseService(cfg)

	var resolver services.TokenResolver = supabase
	if cfg.SupabaseJWTSecret != "" {
		resolver = &services.PrecheckedResolver{
			Precheck: services.NewTokenPrecheck(cfg.SupabaseJWTSecret),
			Next:     supabase,
		}
	}

	var store services.Store = supabase
	if cfg.DatabaseURL != "" {
		db, err := models.OpenDB(cfg.DatabaseURL)
		if err != nil {
			logger.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		store = services.NewGormStore(db)
		logger.Info("Using direct database connection for table operations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := middleware.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn("Rate limiting disabled", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 4. Handlers
	h := handlers.NewHandler(store, cfg, logger)
	pages := handlers.NewPages(cfg)

	renderer, err := web.NewRenderer()
	if err != nil {
		logger.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	// 5. Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer

	e.Use(echoMiddleware.RequestIDWithConfig(echoMiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				logger.Error("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := middleware.NewMetrics(reg)
		e.Use(metrics.Middleware)
		e.GET("/metrics", metrics.Handler())
	}

	// Panics surface as errors so both metrics and the request logger see them.
	e.Use(echoMiddleware.RecoverWithConfig(echoMiddleware.RecoverConfig{DisableErrorHandler: true}))

	// 6. Routes
	e.GET("/healthz", handlers.Health)
	e.StaticFS("/static", web.Static())
	pages.Register(e)

	if cfg.DetectorURL != "" {
		target, err := url.Parse(cfg.DetectorURL)
		if err != nil || target.Host == "" {
			logger.Error("Invalid detector URL", "url", cfg.DetectorURL, "error", err)
			os.Exit(1)
		}
		proxy := echoMiddleware.ProxyWithConfig(echoMiddleware.ProxyConfig{
			Balancer: echoMiddleware.NewRoundRobinBalancer([]*echoMiddleware.ProxyTarget{{URL: target}}),
		})
		// Unauthenticated, so callers are limited per IP.
		e.POST("/detect", echo.NotFoundHandler, middleware.NewRateLimiter(cfg.RateLimit, rdb, logger), proxy)
	}

	authMiddleware := middleware.NewAuthMiddleware(resolver, logger)

	api := e.Group(strings.TrimSuffix(cfg.Prefix, "/"))
	api.Use(middleware.RequireConfigured(cfg))
	api.Use(authMiddleware.Middleware)
	api.Use(middleware.NewRateLimiter(cfg.RateLimit, rdb, logger))
	h.RegisterAPI(api)

	// 7. Start Server
	go func() {
		logger.Info("Starting server", "addr", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
