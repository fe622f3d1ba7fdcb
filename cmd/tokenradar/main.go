package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liamashdown/tokenradar/internal/aggregator"
	"github.com/liamashdown/tokenradar/internal/alerts"
	"github.com/liamashdown/tokenradar/internal/config"
	"github.com/liamashdown/tokenradar/internal/handler"
	"github.com/liamashdown/tokenradar/internal/ingest"
	"github.com/liamashdown/tokenradar/internal/marketdata"
	"github.com/liamashdown/tokenradar/internal/monitor"
	"github.com/liamashdown/tokenradar/internal/registry"
	"github.com/liamashdown/tokenradar/internal/storage"
	"github.com/liamashdown/tokenradar/internal/telegram"
	"github.com/liamashdown/tokenradar/internal/temporal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting tokenradar service...")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, keeping info")
	}

	log.WithFields(logrus.Fields{
		"environment":         cfg.Environment,
		"quorum":              cfg.QuorumThreshold,
		"secondary_threshold": cfg.SecondaryThreshold,
		"window_minutes":      cfg.TemporalWindowMinutes,
		"max_age_minutes":     cfg.MaxAgeMinutes,
		"store_backend":       cfg.StoreBackend,
		"alert_mode":          cfg.AlertMode,
	}).Info("Configuration loaded")

	reg, err := registry.Load(cfg.ChannelsFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load channel registry")
	}
	log.WithField("channels", reg.Len()).Info("Channel registry loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open store backend")
	}
	defer backend.Close()

	// a corrupt store is fatal: starting empty would re-fire every alert
	sightings, err := backend.LoadSightings(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to load sighting store")
	}
	tracked, err := backend.LoadTracked(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed to load tracked-token store")
	}
	log.WithFields(logrus.Fields{
		"sightings": len(sightings),
		"tracked":   len(tracked),
	}).Info("Stores loaded")

	var tg *telegram.Client
	if cfg.TelegramBotToken != "" {
		tg = telegram.NewClient(cfg.TelegramBotToken, "")
	}

	alertSender, closeSenders := createAlertSender(cfg, tg, log)
	defer closeSenders()
	log.WithField("alert_mode", cfg.AlertMode).Info("Alert sender initialized")

	market := marketdata.NewClient(cfg.DexScreenerBaseURL, cfg.DexScreenerRPS)

	mon := monitor.New(cfg, storage.NewMemoryTracked(tracked), backend, market, alertSender, log)
	agg := aggregator.New(cfg, storage.NewMemorySightings(sightings), backend, reg, alertSender, mon, log)

	queue := ingest.NewQueue(cfg.IngestQueueSize)
	readiness := &handler.Readiness{}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: handler.NewRouter(handler.Deps{
			Readiness:  readiness,
			Components: []handler.Degrader{agg, mon},
			Sightings: handler.ExportSightings(agg, reg,
				temporal.New(cfg.TemporalWindowMinutes, cfg.SecondaryThreshold, cfg.MaxAgeMinutes), log),
			Tracked: handler.ExportTracked(mon, log),
			Log:     log,
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// the queue closes at shutdown, only after every source has stopped pushing
	sources, sctx := errgroup.WithContext(gctx)
	if cfg.TelegramIngest {
		src := ingest.NewTelegramSource(tg, queue, log)
		sources.Go(func() error { return src.Run(sctx) })
	}
	if cfg.BridgeWSURL != "" {
		src := ingest.NewWebSocketSource(cfg.BridgeWSURL, queue, log)
		sources.Go(func() error { return src.Run(sctx) })
	}
	if !cfg.TelegramIngest && cfg.BridgeWSURL == "" {
		log.Warn("No ingest source configured, only maintenance and growth monitoring will run")
	}
	g.Go(func() error {
		err := sources.Wait()
		if err == nil {
			<-gctx.Done()
		}
		queue.Close()
		return err
	})

	// the monitor outlives the aggregator drain so late primaries still get tracked
	monCtx, stopMonitor := context.WithCancel(context.WithoutCancel(gctx))
	defer stopMonitor()
	g.Go(func() error {
		defer stopMonitor()
		return agg.Run(gctx, queue.Events())
	})
	g.Go(func() error { return mon.Run(monCtx) })

	g.Go(func() error {
		log.WithField("port", cfg.HealthPort).Info("Starting HTTP server (health + metrics + export)")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	readiness.MarkStarted()
	log.Info("Service running")

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Service stopped with error")
		os.Exit(1)
	}
	log.Info("Graceful shutdown complete")
}

func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (storage.Backend, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMySQL:
		db, err := storage.New(cfg, log)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("Database migrations complete")
		return db, nil

	case config.StoreBackendRedis:
		return storage.NewRedis(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisKeyPrefix)

	default:
		log.WithField("data_dir", cfg.DataDir).Info("Using file store")
		return storage.NewFileBackend(cfg.DataDir)
	}
}

// createAlertSender builds the sender for ALERT_MODE. Telegram is the
// delivery channel and decides success; every other mode mirrors.
func createAlertSender(cfg *config.Config, tg *telegram.Client, log *logrus.Logger) (alerts.Sender, func()) {
	var required, mirrors []alerts.NamedSender
	var closers []func() error

	for _, mode := range cfg.AlertModes() {
		switch mode {
		case "telegram":
			required = append(required, alerts.NewTelegramSender(tg))
		case "discord":
			mirrors = append(mirrors, alerts.NewDiscordSender(cfg.DiscordWebhookURL))
		case "smtp":
			mirrors = append(mirrors, alerts.NewSMTPSender(
				cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, cfg.SMTPTo,
			))
		case "kafka":
			k := alerts.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic)
			closers = append(closers, k.Close)
			mirrors = append(mirrors, k)
		case "log":
			mirrors = append(mirrors, alerts.NewLogSender(log))
		default:
			log.WithField("mode", mode).Warn("Unknown alert mode, ignoring")
		}
	}

	if len(required) == 0 && len(mirrors) == 0 {
		log.Warn("No alert sender configured, falling back to log")
		mirrors = append(mirrors, alerts.NewLogSender(log))
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.WithError(err).Warn("Failed to close alert sender")
			}
		}
	}
	return alerts.NewMultiSender(log, required, mirrors...), closeAll
}
