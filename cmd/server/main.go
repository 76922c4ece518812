package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesmart/internal/ai"
	"tradesmart/internal/alert"
	"tradesmart/internal/client/funding"
	"tradesmart/internal/client/marketdata"
	"tradesmart/internal/client/oddsfeed"
	"tradesmart/internal/config"
	cronrunner "tradesmart/internal/cron"
	"tradesmart/internal/db"
	"tradesmart/internal/handler"
	"tradesmart/internal/logger"
	"tradesmart/internal/models"
	"tradesmart/internal/notify"
	"tradesmart/internal/platform"
	gormrepository "tradesmart/internal/repository/gorm"
	"tradesmart/internal/scan"
	"tradesmart/internal/scanner"
	"tradesmart/internal/service"
)

func main() {
	cfgPath := os.Getenv("TS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	oddsHTTP := &http.Client{Timeout: cfg.OddsFeed.Timeout}
	oddsClient := oddsfeed.NewClient(cfg.OddsFeed, oddsHTTP)
	marketHTTP := &http.Client{Timeout: cfg.MarketData.Timeout}
	marketClient := marketdata.NewClient(cfg.MarketData, marketHTTP)
	fundingHTTP := &http.Client{Timeout: cfg.CryptoData.Timeout}
	fundingClient := funding.NewClient(cfg.CryptoData.BaseURL, fundingHTTP)

	scanners := []scanner.Scanner{
		scanner.NewArbitrageScanner(cfg.OddsFeed, oddsClient, logger),
		scanner.NewValueBetsScanner(cfg.OddsFeed, oddsClient, logger),
		scanner.NewMatchedBettingScanner(cfg.OddsFeed, oddsClient, logger),
		scanner.NewStocksScanner(cfg.MarketData, marketClient, logger),
		scanner.NewCryptoScanner(cfg.CryptoData, fundingClient, logger),
	}

	aiClient := ai.NewClient(cfg.AI, &http.Client{Timeout: cfg.AI.Timeout})
	alertHTTP := &http.Client{Timeout: 10 * time.Second}
	dispatcher := alert.NewDispatcher(store, []notify.Sender{
		notify.NewEmailSender(cfg.Alerts.Email, alertHTTP),
		notify.NewWhatsAppSender(cfg.Alerts.WhatsApp, alertHTTP),
	}, cfg.Alerts.MinConfidence, logger)

	orchestrator := scan.NewOrchestrator(store, scanners, aiClient, dispatcher, cfg.Scan.ScannerTimeout, logger)

	platformHTTP := &http.Client{Timeout: 20 * time.Second}
	factory := platform.NewFactory(cfg.Platforms, platformHTTP, logger)
	accountService := service.NewAccountService(store, factory, cfg.Platforms.Betfair, platformHTTP, logger)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	scannerHandler := &handler.ScannerHandler{Orchestrator: orchestrator, Logger: logger}
	scannerHandler.Register(engine)
	oppsHandler := &handler.OpportunitiesHandler{Repo: store, Logger: logger}
	oppsHandler.Register(engine)
	accountsHandler := &handler.AccountsHandler{Service: accountService, Repo: store, Logger: logger}
	accountsHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.GlobalScan, func(ctx context.Context) {
			result, err := orchestrator.Run(ctx, scan.Request{ScanType: scan.TypeAll})
			if err != nil {
				logger.Warn("cron global scan failed", zap.Error(err))
				return
			}
			logger.Info("cron global scan ok",
				zap.Int("opportunities", len(result.Opportunities)),
				zap.Int("ai_analyses", result.AIAnalysisCount),
				zap.Int("alerts_sent", result.AlertsSent),
				zap.Strings("errors", result.Errors),
			)
		})
		if err != nil {
			logger.Warn("cron register global scan failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.AccountSync, func(ctx context.Context) {
			accountService.SyncAll(ctx)
		})
		if err != nil {
			logger.Warn("cron register account sync failed", zap.Error(err))
		}

		// Usage rows older than a week are dead weight; quota only ever
		// reads today's row. Long-expired opportunities go with them.
		_, err = cronRunner.Add(cfg.Cron.UsageSweep, func(ctx context.Context) {
			cutoff := models.UsageDay(time.Now().AddDate(0, 0, -7))
			n, err := store.DeleteScanUsageBefore(ctx, cutoff)
			if err != nil {
				logger.Warn("usage sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("swept old scan usage rows", zap.Int64("count", n))
			}
			expiredCutoff := time.Now().UTC().AddDate(0, 0, -30)
			n, err = store.DeleteOpportunitiesExpiredBefore(ctx, expiredCutoff)
			if err != nil {
				logger.Warn("opportunity sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("swept long-expired opportunities", zap.Int64("count", n))
			}
		})
		if err != nil {
			logger.Warn("cron register usage sweep failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-User-Id")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
