package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/joho/godotenv"
	"github.com/nearacct/acctsync/internal/config"
	"github.com/nearacct/acctsync/internal/logger"
	"github.com/nearacct/acctsync/pkg/attributor"
	"github.com/nearacct/acctsync/pkg/balance"
	"github.com/nearacct/acctsync/pkg/cache"
	"github.com/nearacct/acctsync/pkg/events"
	"github.com/nearacct/acctsync/pkg/eventbus"
	"github.com/nearacct/acctsync/pkg/ledger"
	"github.com/nearacct/acctsync/pkg/locator"
	"github.com/nearacct/acctsync/pkg/nearrpc"
	"github.com/nearacct/acctsync/pkg/notifications"
	"github.com/nearacct/acctsync/pkg/registry"
	"github.com/nearacct/acctsync/pkg/rpcgateway"
	"github.com/nearacct/acctsync/pkg/scheduler"
	"github.com/nearacct/acctsync/pkg/tokenset"
	"go.uber.org/zap"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile     = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion    = flag.Bool("version", false, "Show version information and exit")
		gatewayURL     = flag.String("gateway", "", "NEAR archival JSON-RPC endpoint URL")
		ledgerDir      = flag.String("ledger-dir", "", "Per-account ledger directory")
		metadataPath   = flag.String("metadata-path", "", "PebbleDB metadata store path")
		maxConcurrency = flag.Int("max-concurrent-accounts", 0, "Maximum accounts synced concurrently")
		logLevel       = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat      = flag.String("log-format", "", "Log format (json, console)")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("acctsync version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlags(cfg, *gatewayURL, *ledgerDir, *metadataPath, *maxConcurrency, *logLevel, *logFormat)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting acctsync",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("gateway_endpoint", cfg.Gateway.Endpoint),
		zap.String("ledger_dir", cfg.Data.LedgerDir),
		zap.String("metadata_path", cfg.Data.MetadataPath),
		zap.Int("max_concurrent_accounts", cfg.Scheduler.MaxConcurrentAccounts),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info("initializing components...")

	rpcClient, err := nearrpc.NewClient(&nearrpc.Config{
		Endpoint: cfg.Gateway.Endpoint,
		Timeout:  cfg.Gateway.Timeout,
		Logger:   log,
	})
	if err != nil {
		log.Fatal("failed to create nearrpc client", zap.Error(err))
	}
	defer rpcClient.Close()

	var archiveClient *nearrpc.ArchiveClient
	if cfg.Gateway.ArchiveEndpoint != "" {
		archiveClient = nearrpc.NewArchiveClient(cfg.Gateway.ArchiveEndpoint, cfg.Gateway.ArchiveTimeout, log)
	}

	gatewayCfg := &rpcgateway.Config{
		PacingDelay:            cfg.Gateway.PacingDelay,
		MaxMissingBlockRetries: cfg.Gateway.MaxMissingBlockRetries,
		RequestTimeout:         cfg.Gateway.Timeout,
	}
	gateway := rpcgateway.New(rpcClient, archiveClient, gatewayCfg, log)

	log.Info("rpc gateway configured", zap.String("endpoint", cfg.Gateway.Endpoint))

	oracle := balance.New(gateway, &cache.Config{MaxSize: 10000, DefaultTTL: 5 * time.Minute}, log)
	locate := locator.New(oracle, log)
	attribute := attributor.New(gateway, cfg.Scheduler.AttributionLookbackBlocks, log)

	var activityHint tokenset.ActivityHintClient
	if cfg.Hints.ActivityEndpoint != "" {
		activityHint = tokenset.NewHTTPActivityHintClient(cfg.Hints.ActivityEndpoint, cfg.Hints.ActivityTimeout, log)
	}
	var intentsHint tokenset.IntentsHintClient
	if cfg.Hints.IntentsEndpoint != "" {
		intentsHint = tokenset.NewHTTPIntentsHintClient(cfg.Hints.IntentsEndpoint, cfg.Hints.IntentsToken, cfg.Hints.IntentsTimeout, log)
	}
	discoverer := tokenset.New(activityHint, intentsHint, log)

	store, err := ledger.New(cfg.Data.LedgerDir, log)
	if err != nil {
		log.Fatal("failed to open ledger store", zap.Error(err))
	}

	metaCfg := &ledger.MetadataConfig{
		Path:         cfg.Data.MetadataPath,
		CacheMB:      cfg.Data.MetadataCacheMB,
		MaxOpenFiles: cfg.Data.MetadataMaxOpenFiles,
		ReadOnly:     cfg.Data.ReadOnly,
	}
	meta, err := ledger.NewMetadataStore(metaCfg, log)
	if err != nil {
		log.Fatal("failed to open metadata store", zap.Error(err))
	}
	defer func() {
		if err := meta.Close(); err != nil {
			log.Error("failed to close metadata store", zap.Error(err))
		}
	}()

	log.Info("ledger and metadata stores initialized",
		zap.String("ledger_dir", cfg.Data.LedgerDir),
		zap.String("metadata_path", cfg.Data.MetadataPath),
	)

	reg, err := registry.New(meta, log)
	if err != nil {
		log.Fatal("failed to load account registry", zap.Error(err))
	}

	eventBus, err := eventbus.NewFactory(cfg).Create()
	if err != nil {
		log.Fatal("failed to create event bus", zap.Error(err))
	}
	go eventBus.Run()
	defer eventBus.Stop()

	if distributed, ok := eventBus.(eventbus.DistributedEventBus); ok {
		if err := distributed.Connect(ctx); err != nil {
			log.Warn("event bus connect failed, continuing with local delivery only", zap.Error(err))
		}
		defer distributed.Disconnect(context.Background())
	}

	log.Info("event bus initialized", zap.String("type", string(eventBus.Type())))

	gateway.SetEventBus(eventBus)
	store.SetEventBus(eventBus)
	reg.SetEventBus(eventBus)

	var notifySvc *notifications.NotificationService
	if cfg.Notifications.Enabled {
		if local, ok := eventBus.(*eventbus.LocalEventBus); ok {
			notifySvc = startNotifications(ctx, cfg, meta.DB(), local.UnderlyingBus(), log)
		} else {
			log.Warn("notifications require the local event bus, skipping",
				zap.String("event_bus_type", string(eventBus.Type())))
		}
	}

	schedCfg := &scheduler.Config{
		CycleDelay:            cfg.Scheduler.CycleDelay,
		AccountTimeout:        cfg.Scheduler.AccountTimeout,
		MaxConcurrentAccounts: cfg.Scheduler.MaxConcurrentAccounts,
		ReEnrichBatchSize:     cfg.Scheduler.ReEnrichBatchSize,
		CacheClearEvery:       cfg.Scheduler.CacheClearEvery,
	}
	pipeline := scheduler.NewPipeline(gateway, oracle, locate, attribute, discoverer, store, meta, schedCfg, log)
	pipeline.SetEventBus(eventBus)
	manager, err := scheduler.NewManager(schedCfg, reg, pipeline, log)
	if err != nil {
		log.Fatal("failed to create sync scheduler", zap.Error(err))
	}

	if err := manager.Start(ctx); err != nil {
		log.Fatal("failed to start sync scheduler", zap.Error(err))
	}

	log.Info("sync scheduler running",
		zap.Duration("cycle_delay", schedCfg.CycleDelay),
		zap.Int("max_concurrent_accounts", schedCfg.MaxConcurrentAccounts),
	)

	sig := <-sigChan
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		log.Error("scheduler did not stop cleanly", zap.Error(err))
	}

	if notifySvc != nil {
		if err := notifySvc.Stop(shutdownCtx); err != nil {
			log.Error("notification service did not stop cleanly", zap.Error(err))
		}
	}

	log.Info("acctsync stopped")
}

// startNotifications wires the operator-alerting subsystem to the
// scheduler's event bus and starts it. Delivery history and settings
// share the scheduler's PebbleDB metadata store under their own key
// prefixes.
func startNotifications(ctx context.Context, cfg *config.Config, db *pebble.DB, bus *events.EventBus, log *zap.Logger) *notifications.NotificationService {
	notifyCfg := notificationConfigFromAppConfig(cfg)
	store := notifications.NewPebbleStorage(notifications.NewPebbleKVStore(db))
	svc := notifications.NewService(notifyCfg, store, bus, log)

	if notifyCfg.Webhook.Enabled {
		svc.RegisterHandler(notifications.NewWebhookHandler(&notifyCfg.Webhook, log))
	}
	if notifyCfg.Slack.Enabled {
		svc.RegisterHandler(notifications.NewSlackHandler(&notifyCfg.Slack, log))
	}
	if notifyCfg.Email.Enabled {
		svc.RegisterHandler(notifications.NewEmailHandler(&notifyCfg.Email, log))
	}

	if err := svc.Start(ctx); err != nil {
		log.Error("failed to start notification service", zap.Error(err))
		return nil
	}

	log.Info("notification service started")
	return svc
}

// notificationConfigFromAppConfig maps the YAML/env-layered app config
// onto the notifications package's own Config shape.
func notificationConfigFromAppConfig(cfg *config.Config) *notifications.Config {
	out := notifications.DefaultConfig()
	out.Enabled = cfg.Notifications.Enabled

	out.Webhook.Enabled = cfg.Notifications.Webhook.Enabled
	out.Webhook.Timeout = cfg.Notifications.Webhook.Timeout
	out.Webhook.MaxRetries = cfg.Notifications.Webhook.MaxRetries
	out.Webhook.MaxConcurrent = cfg.Notifications.Webhook.MaxConcurrent
	out.Webhook.AllowedHosts = cfg.Notifications.Webhook.AllowedHosts
	out.Webhook.SignatureHeader = cfg.Notifications.Webhook.SignatureHeader

	out.Slack.Enabled = cfg.Notifications.Slack.Enabled
	out.Slack.Timeout = cfg.Notifications.Slack.Timeout
	out.Slack.MaxRetries = cfg.Notifications.Slack.MaxRetries
	out.Slack.DefaultUsername = cfg.Notifications.Slack.DefaultUsername
	out.Slack.DefaultIconEmoji = cfg.Notifications.Slack.DefaultIconEmoji
	out.Slack.RateLimitPerMinute = cfg.Notifications.Slack.RateLimitPerMinute

	out.Retry.InitialDelay = cfg.Notifications.Retry.InitialDelay
	out.Retry.MaxDelay = cfg.Notifications.Retry.MaxDelay
	out.Retry.Multiplier = cfg.Notifications.Retry.Multiplier
	out.Retry.MaxAttempts = cfg.Notifications.Retry.MaxAttempts

	out.Queue.BufferSize = cfg.Notifications.Queue.BufferSize
	out.Queue.Workers = cfg.Notifications.Queue.Workers
	out.Queue.BatchSize = cfg.Notifications.Queue.BatchSize
	out.Queue.FlushInterval = cfg.Notifications.Queue.FlushInterval

	return out
}

// loadConfig loads configuration from file and environment variables.
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return config.Load(configFile)
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration.
func applyFlags(cfg *config.Config, gatewayURL, ledgerDir, metadataPath string, maxConcurrency int, logLevel, logFormat string) {
	if gatewayURL != "" {
		cfg.Gateway.Endpoint = gatewayURL
	}
	if ledgerDir != "" {
		cfg.Data.LedgerDir = ledgerDir
	}
	if metadataPath != "" {
		cfg.Data.MetadataPath = metadataPath
	}
	if maxConcurrency > 0 {
		cfg.Scheduler.MaxConcurrentAccounts = maxConcurrency
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
}

// initLogger initializes the logger based on configuration.
func initLogger(level, format string) (*zap.Logger, error) {
	if format == "json" || format == "production" {
		return logger.NewProduction()
	}

	cfg := logger.Config{
		Level:       level,
		Encoding:    "console",
		Development: true,
	}
	return logger.NewWithConfig(&cfg)
}
