package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockroom/internal/app"
	"github.com/odyssey-erp/stockroom/internal/listview"
	"github.com/odyssey-erp/stockroom/internal/liveview"
	"github.com/odyssey-erp/stockroom/internal/observability"
	"github.com/odyssey-erp/stockroom/internal/platform/cache"
	"github.com/odyssey-erp/stockroom/internal/platform/db"
	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/internal/stock"
	"github.com/odyssey-erp/stockroom/internal/stockclient"
	"github.com/odyssey-erp/stockroom/internal/view"
	"github.com/odyssey-erp/stockroom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, SlowThreshold: 200 * time.Millisecond, Logger: logger})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := stock.Migrate(ctx, dbpool); err != nil {
		logger.Error("migrate stock schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "stockroom_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	statsCache := stock.NewStatsCache(redisClient, cfg.StatsCacheTTL, logger)
	stockService := stock.NewService(stock.NewRepository(dbpool), statsCache, logger).WithWarmup(jobsClient)
	stockHandler := stock.NewHandler(logger, stockService, cfg.ImportMaxBytes)

	remote := stockclient.NewClient(cfg.StockAPIURL, cfg.RemoteTimeout)
	renderer := listview.NewHTMLRenderer(templates, cfg.Location())
	hub := liveview.NewHub(liveview.HubConfig{
		IdleTimeout:    cfg.LiveIdleTimeout,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Logger:         logger,
		Registerer:     metrics.Registerer(),
	}, renderer, liveview.NewControllerFactory(listview.Config{
		PageSize:        cfg.ListPageSize,
		DebounceDelay:   cfg.SearchDebounce,
		RefreshInterval: cfg.AutoRefreshInterval,
		RequestTimeout:  cfg.RemoteTimeout,
		NotificationTTL: cfg.NotificationTTL,
	}, listview.Dependencies{
		Collection: remote,
		Renderer:   renderer,
		Logger:     logger,
		Metrics:    listview.NewMetrics(metrics.Registerer()),
	}))
	liveHandler := liveview.NewHandler(logger, hub, templates, csrfManager, stockService, cfg.ImportMaxBytes)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		StockHandler:   stockHandler,
		LiveHandler:    liveHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go hub.Run(ctx)

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Event streams only end when their controllers close.
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
