package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slelog/crm-dashboard-go/internal/config"
	"github.com/slelog/crm-dashboard-go/internal/domain"
	"github.com/slelog/crm-dashboard-go/internal/handler"
	"github.com/slelog/crm-dashboard-go/internal/infra/cache"
	"github.com/slelog/crm-dashboard-go/internal/infra/client"
	"github.com/slelog/crm-dashboard-go/internal/infra/observability"
	"github.com/slelog/crm-dashboard-go/internal/infra/overlay"
	"github.com/slelog/crm-dashboard-go/internal/infra/resilience"
	"github.com/slelog/crm-dashboard-go/internal/port"
	"github.com/slelog/crm-dashboard-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("ledger_file", cfg.LedgerFile),
		zap.Bool("sheet_configured", cfg.SheetCSVURL != ""),
		zap.Bool("insights_configured", cfg.InsightsAPIURL != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "crm-dashboard")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Caches ---
	viewCache := cache.New[*service.View](cfg.CacheTTL)
	insightsCache := cache.New[[]domain.Insight](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("external-apis")
	bulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var fetcher port.LedgerFetcher
	switch {
	case cfg.LedgerFile != "":
		logger.Info("using local file as ledger source", zap.String("path", cfg.LedgerFile))
		fetcher = client.NewFileClient(cfg.LedgerFile)
	case cfg.SheetCSVURL != "":
		logger.Info("using remote sheet export as ledger source")
		fetcher = client.NewSheetClient(httpClient, cfg.SheetCSVURL, cb, resilienceCfg)
	default:
		logger.Warn("no ledger source configured, starting empty (use POST /v1/ledger)")
		fetcher = client.NewFileClient("")
	}

	var generator port.InsightGenerator
	if cfg.InsightsAPIURL != "" {
		generator = client.NewInsightsClient(httpClient, cfg.InsightsAPIURL, cb, resilienceCfg)
	} else {
		logger.Warn("insights API not configured, narrative insights disabled")
	}

	// --- Overlay store ---
	overlays := overlay.NewStore(cfg.OverlayPath)

	// --- Services ---
	dashSvc := service.NewDashboard(fetcher, overlays, viewCache, metrics, logger)
	insightsSvc := service.NewInsights(generator, insightsCache, bulkhead, metrics, logger)

	// --- Initial dataset ---
	loadCtx, loadCancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	count := dashSvc.LoadLedger(loadCtx)
	loadCancel()
	logger.Info("initial dataset loaded", zap.Int("clients", count))

	// --- Router ---
	router := handler.NewRouter(dashSvc, insightsSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
