package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calder-health/biosense/internal/analytics"
	"github.com/calder-health/biosense/internal/api"
	"github.com/calder-health/biosense/internal/cache"
	"github.com/calder-health/biosense/internal/config"
	"github.com/calder-health/biosense/internal/correlation"
	"github.com/calder-health/biosense/internal/detector"
	"github.com/calder-health/biosense/internal/logger"
	"github.com/calder-health/biosense/internal/models"
	"github.com/calder-health/biosense/internal/notify"
	"github.com/calder-health/biosense/internal/storage"
	"github.com/calder-health/biosense/internal/trend"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reports *cache.ReportCache
	if cfg.Cache.Enabled {
		reports, err = cache.New(ctx, cfg.Cache.Addr, cfg.Cache.TTL)
		if err != nil {
			logger.Fatal("Failed to initialize report cache: %v", err)
		}
		defer reports.Close() //nolint:errcheck
		logger.Info("Report cache connected at %s", cfg.Cache.Addr)
	} else {
		logger.Debug("Report cache disabled")
	}

	var telegramClient *notify.Telegram
	if cfg.Telegram.Enabled {
		telegramClient, err = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	factory := newServiceFactory(store, cfg)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(store, reports, factory).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.Info("HTTP server listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed: %v", err)
		}
		cancel()
	}()

	logger.Info("Starting analysis service (interval: %v, tracked: %v)",
		cfg.Analytics.RunInterval, cfg.Analytics.TrackedBiomarkers)

	ticker := time.NewTicker(cfg.Analytics.RunInterval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleRunResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Analysis run failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial analysis cycle")
	handleRunResult(runAnalysisCycle(ctx, store, reports, telegramClient, factory))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled analysis cycle")
			handleRunResult(runAnalysisCycle(ctx, store, reports, telegramClient, factory))
		}
	}
}

// newServiceFactory builds per-user analysis services from the static
// configuration. Construction only fails on nonsensical parameters, which
// Validate has already rejected, but the errors still propagate.
func newServiceFactory(store *storage.Storage, cfg *config.Config) api.ServiceFactory {
	return func(userID string) (*analytics.Service, error) {
		det, err := detector.New(detector.Config{
			WindowSize:      cfg.Detector.WindowSize,
			ZThreshold:      cfg.Detector.ZThreshold,
			IQRMultiplier:   cfg.Detector.IQRMultiplier,
			MinShiftPercent: cfg.Detector.MinShiftPercent,
			ShiftPValue:     cfg.Detector.ShiftPValue,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build detector: %w", err)
		}

		tr, err := trend.NewAnalyzer(cfg.Trend.SignificanceLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to build trend analyzer: %w", err)
		}

		corr, err := correlation.NewEngine(userID, store, correlation.Config{
			SignificanceLevel: cfg.Correlation.SignificanceLevel,
			MinSamples:        cfg.Correlation.MinSamples,
			MaxLagDays:        cfg.Correlation.MaxLagDays,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build correlation engine: %w", err)
		}

		return analytics.NewService(userID, store, det, tr, corr, analytics.Config{
			TrackedBiomarkers:       cfg.Analytics.TrackedBiomarkers,
			AnalysisBiomarkers:      cfg.Analytics.AnalysisBiomarkers,
			TopCorrelations:         cfg.Analytics.TopCorrelations,
			ChangePointMinSegment:   cfg.Trend.MinSegmentSize,
			ChangePointThresholdStd: cfg.Trend.ThresholdStd,
		}), nil
	}
}

// runAnalysisCycle runs the daily analysis for every known user, persists
// the resulting alerts, refreshes the report cache, and notifies urgent
// alerts. Per-user failures are logged and counted but do not stop the
// cycle; the returned error reflects whether any user failed.
func runAnalysisCycle(
	ctx context.Context,
	store *storage.Storage,
	reports *cache.ReportCache,
	telegramClient *notify.Telegram,
	factory api.ServiceFactory,
) error {
	startTime := time.Now()
	logger.Info("Starting analysis cycle")

	users, err := store.Users(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		logger.Info("No users with stored samples, skipping cycle")
		return nil
	}

	date := analysisDate(time.Now())
	failed := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := analyzeUser(ctx, userID, date, store, reports, telegramClient, factory); err != nil {
			failed++
			logger.Error("Analysis failed for user %s: %v", userID, err)
		}
	}

	logger.Info("Analysis cycle completed in %v (%d users, %d failed)",
		time.Since(startTime), len(users), failed)
	if failed > 0 {
		return fmt.Errorf("analysis failed for %d of %d users", failed, len(users))
	}
	return nil
}

// analysisDate returns the most recent complete UTC day. Scheduled cycles
// never analyze the still-accumulating current day.
func analysisDate(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -1)
}

func analyzeUser(
	ctx context.Context,
	userID string,
	date time.Time,
	store *storage.Storage,
	reports *cache.ReportCache,
	telegramClient *notify.Telegram,
	factory api.ServiceFactory,
) error {
	svc, err := factory(userID)
	if err != nil {
		return err
	}

	report := svc.RunDailyAnalysis(ctx, date)

	var urgent []models.Alert
	for i := range report.Alerts {
		alert := &report.Alerts[i]
		if err := store.SaveAlert(ctx, alert); err != nil {
			logger.Error("Failed to persist alert %s: %v", alert.ID, err)
			continue
		}
		switch alert.Anomaly.Priority {
		case models.PriorityCritical, models.PriorityHigh:
			urgent = append(urgent, *alert)
		}
	}

	if reports != nil {
		if err := reports.SetReport(ctx, report); err != nil {
			logger.Warn("Failed to cache report for user %s: %v", userID, err)
		}
	}

	if len(urgent) > 0 && telegramClient != nil {
		if err := telegramClient.SendAlerts(urgent); err != nil {
			logger.Error("Failed to send Telegram notification: %v", err)
		} else {
			logger.Info("Sent Telegram notification with %d urgent alerts for user %s", len(urgent), userID)
		}
	}
	return nil
}
