package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finhub/internal/aggregator"
	"github.com/aristath/finhub/internal/alerts"
	"github.com/aristath/finhub/internal/anomaly"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/backup"
	"github.com/aristath/finhub/internal/categorize"
	"github.com/aristath/finhub/internal/config"
	"github.com/aristath/finhub/internal/crypto"
	"github.com/aristath/finhub/internal/database"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/events"
	"github.com/aristath/finhub/internal/forecast"
	"github.com/aristath/finhub/internal/insights"
	"github.com/aristath/finhub/internal/ledger"
	"github.com/aristath/finhub/internal/networth"
	"github.com/aristath/finhub/internal/ofxsync"
	"github.com/aristath/finhub/internal/scheduler"
	"github.com/aristath/finhub/internal/server"
	"github.com/aristath/finhub/internal/subscriptions"
	"github.com/aristath/finhub/internal/valuation"
	"github.com/aristath/finhub/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting finhub")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	conn := db.Conn()

	vault, err := crypto.NewVault(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build credential vault")
	}

	// Repositories
	users := repositories.NewUserRepository(conn, log)
	refreshTokens := repositories.NewRefreshTokenRepository(conn, log)
	links := repositories.NewInstitutionLinkRepository(conn, log)
	sourceAccounts := repositories.NewSourceAccountRepository(conn, log)
	syncLogs := repositories.NewSyncLogRepository(conn, log)
	ledgerMapping := repositories.NewLedgerMappingRepository(conn, log)
	importedKeys := repositories.NewImportedTxnKeyRepository(conn, log)
	merchants := repositories.NewMerchantRepository(conn, log)
	manualAssets := repositories.NewManualAssetRepository(conn, log)
	assetHistory := repositories.NewAssetHistoryRepository(conn, log)
	netWorth := repositories.NewNetWorthRepository(conn, log)
	forecastSnapshots := repositories.NewForecastSnapshotRepository(conn, log)
	alertRules := repositories.NewAlertRepository(conn, log)
	aggTxns := repositories.NewAggregatorTransactionRepository(conn, log)

	// Auth
	tokens := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authMiddleware := auth.NewMiddleware(tokens, log)

	// Ledger bridge
	ledgerClient := ledger.NewClient(cfg.LedgerURL, cfg.LedgerToken, log)
	ledgerAdapter := ledger.NewAdapter(ledgerClient, ledgerMapping, importedKeys, log)

	// Events and alerts
	eventManager := events.NewManager(log)
	pushClient := alerts.NewPushClient(cfg.PushURL, cfg.PushTopic, log)
	alertEngine := alerts.NewEngine(alertRules, pushClient, eventManager, log)
	balanceWatcher := alerts.NewBalanceWatcher(ledgerClient, alertEngine, log)

	// Categorization
	var llmClassifier *categorize.LLMClassifier
	if cfg.LLMAPIKey != "" {
		llmClassifier = categorize.NewLLMClassifier(cfg.LLMAPIKey, log)
	}
	categorizer := categorize.New(merchants, llmClassifier, log)

	// Anomaly detection
	anomalyDetector := anomaly.New(merchants, log)

	// OFX statement sync
	ofxDownloader := ofxsync.NewDirDownloader(cfg.DownloadDir)
	ofxDriver := ofxsync.New(links, sourceAccounts, syncLogs, ledgerAdapter, anomalyDetector, alertEngine, categorizer, ofxDownloader, log)

	// Aggregator (hosted bank sync)
	aggregatorClient := aggregator.NewClient("", cfg.AggregatorClientID, cfg.AggregatorClientSecret, cfg.AggregatorEnv, cfg.AggregatorWebhookURL, log)
	aggregatorService := aggregator.NewService(conn, aggregatorClient, vault, links, sourceAccounts, ledgerAdapter, log)
	webhookHandler := aggregator.NewWebhookHandler(links, aggregatorService)

	// Net worth, forecasting, insights, subscriptions, valuation
	snapshotter := networth.New(ledgerClient, manualAssets, assetHistory, netWorth, alertEngine, log)
	forecaster := forecast.New(netWorth, manualAssets, forecastSnapshots, log)
	insightsGenerator := insights.New(netWorth, log)
	subscriptionDetector := subscriptions.New(merchants, alertEngine, log)

	var valuationSource valuation.PriceSource
	if cfg.PropertyValuationKey != "" {
		valuationSource = valuation.NewHTTPSource("", cfg.PropertyValuationKey, log)
	}
	valuationRefresher := valuation.New(manualAssets, valuationSource, log)

	// Backup
	var backupService *backup.Service
	if cfg.BackupBucket != "" {
		ctx := context.Background()
		backupClient, err := backup.NewClient(ctx, cfg.BackupRegion, cfg.BackupAccessKey, cfg.BackupSecretKey, cfg.BackupBucket, cfg.BackupEndpoint, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to build backup client, nightly backups disabled")
		} else {
			stagingDir := filepath.Join(filepath.Dir(cfg.DatabasePath), "backup-staging")
			backupService = backup.NewService(backupClient, vault, cfg.DatabasePath, stagingDir, 30, log)
		}
	}

	// Scheduler and jobs (§4.9)
	sched := scheduler.New(log)
	mustAddJob(sched, log, "*/15 * * * *", scheduler.NewRefreshBalancesJob(users, balanceWatcher, log))
	mustAddJob(sched, log, "0 6,12,18 * * *", scheduler.NewSyncOFXJob(users, ofxDriver, snapshotter, log))
	mustAddJob(sched, log, "0 7 * * *", scheduler.NewAggregatorScrapeJob(users, links, aggregatorService, snapshotter, log))
	mustAddJob(sched, log, "0 */4 * * *", scheduler.NewAggregatorDeltaSyncJob(links, aggregatorService, log))
	mustAddJob(sched, log, "*/30 * * * *", scheduler.NewAggregatorBalanceRefreshJob(links, aggregatorService, log))
	mustAddJob(sched, log, "0 0 * * *", scheduler.NewSnapshotJob(users, snapshotter, log))
	mustAddJob(sched, log, "0 1 1 * *", scheduler.NewMonthlyInsightsJob(users, insightsGenerator, log))
	mustAddJob(sched, log, "0 3 * * 0", scheduler.NewForecastJob(users, forecaster, log))
	mustAddJob(sched, log, "0 4 * * 0", scheduler.NewPropertyValuationsJob(users, valuationRefresher, log))
	mustAddJob(sched, log, "0 8 * * 1", scheduler.NewSubscriptionDetectionJob(users, subscriptionDetector, log))
	mustAddJob(sched, log, "0 9 * * *", scheduler.NewAnomalyCheckJob(users, aggTxns, anomalyDetector, alertEngine, log))
	if backupService != nil {
		mustAddJob(sched, log, "0 2 * * *", scheduler.NewBackupJob(backupService, log))
	}
	sched.Start()
	defer sched.Stop()

	// HTTP handlers
	streamHub := server.NewStreamHub(log)
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		DevMode: cfg.DevMode,
		DB:      conn,

		AuthMiddleware: authMiddleware,

		Auth:        server.NewAuthHandler(users, refreshTokens, tokens, cfg.DevMode),
		Assets:      server.NewAssetsHandler(manualAssets, assetHistory),
		NetWorth:    server.NewNetWorthHandler(netWorth, snapshotter),
		Forecasting: server.NewForecastingHandler(forecastSnapshots, forecaster),
		Insights:    server.NewInsightsHandler(insightsGenerator),
		Alerts:      server.NewAlertsHandler(alertRules, alertEngine),
		Upload:      server.NewUploadHandler(cfg.UploadDir, ledgerAdapter),
		Sync:        server.NewSyncHandler(syncLogs, ofxDriver, snapshotter),
		Aggregator:  server.NewAggregatorHandler(aggregatorClient, aggregatorService, webhookHandler, vault, links, sourceAccounts),
		Stream:      streamHub,
	})
	srv.MarkSchedulerStarted()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("finhub server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("finhub stopped")
}

func mustAddJob(sched *scheduler.Scheduler, log zerolog.Logger, schedule string, job scheduler.Job) {
	if err := sched.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("failed to register job")
	}
}
