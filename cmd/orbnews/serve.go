package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"orbnews/internal/api"
	"orbnews/internal/audio"
	"orbnews/internal/config"
	"orbnews/internal/metrics"
	"orbnews/internal/newsroom"
	"orbnews/internal/queue"
	"orbnews/internal/storage"
	"orbnews/internal/telegram"
	"orbnews/internal/tts"
	"orbnews/internal/worker"
)

const narrationPendingTTL = 15 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, narration workers, retention janitor and admin bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().
		Str("version", version).
		Str("db_driver", cfg.DB.Driver).
		Bool("worker", cfg.Worker.Enabled).
		Bool("telegram", cfg.Telegram.BotToken != "").
		Msg("starting orbnews")

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	m := metrics.Global()
	reg := newRegistry(cfg)
	audioCache := audio.NewCache(rdb, audio.Config{TTL: cfg.Redis.AudioTTL, Voice: cfg.Azure.TTSVoice})
	narration := queue.NewStreamQueue(rdb, cfg.Redis.NarrationStream, cfg.Redis.NarrationGroup, cfg.Worker.ConsumerName, cfg.Redis.QueueBlock)

	orch := newsroom.NewOrchestrator(newsroom.OrchestratorConfig{
		Store:       store,
		Registry:    reg,
		Prober:      newProber(cfg, reg),
		Audio:       audioCache,
		Timeout:     cfg.Generation.Timeout,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		Logger:      log.Logger,
		Metrics:     m,
	})
	cycler := newsroom.NewCycler(newsroom.CyclerConfig{
		Store:        store,
		Audio:        audioCache,
		Narration:    narration,
		Orchestrator: orch,
		PendingTTL:   narrationPendingTTL,
		Logger:       log.Logger,
		Metrics:      m,
	})
	service := newsroom.NewService(store, orch, cycler)

	errCh := make(chan error, 4)

	if cfg.Generation.ProbeOnStart {
		go func() {
			report := service.RefreshReliability(ctx)
			log.Info().Strs("reliable", report.Reliable).Msg("startup reliability probe finished")
		}()
	}

	go store.RunRetention(ctx, storage.RetentionConfig{
		Interval: cfg.Generation.RetentionInterval,
		Days:     cfg.Generation.RetentionDays,
		Logger:   log.Logger,
		OnSweep: func(deleted int64) {
			m.ExpiredStories.Add(float64(deleted))
		},
	})

	speech := tts.New(tts.Config{
		Endpoint:   cfg.Azure.Endpoint,
		APIKey:     cfg.Azure.APIKey,
		Deployment: cfg.Azure.TTSDeployment,
		APIVersion: cfg.Azure.TTSAPIVersion,
		Voice:      cfg.Azure.TTSVoice,
		RetryMax:   cfg.Worker.MaxRetries,
	})
	if cfg.Worker.Enabled && speech.Configured() {
		w := worker.New(worker.Config{
			Queue:         narration,
			TTS:           speech,
			Audio:         audioCache,
			MaxJobRetries: cfg.Worker.MaxRetries,
			Logger:        log.Logger,
			Metrics:       m,
		})
		go func() {
			if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("worker failed: %w", err)
			}
		}()
		log.Info().Int("concurrency", cfg.Worker.Concurrency).Str("consumer", narration.Consumer()).Msg("narration worker started")
	} else if cfg.Worker.Enabled {
		log.Warn().Msg("narration worker disabled, azure speech is not configured")
	}

	srv := api.New(api.Config{
		Newsroom:     service,
		Stories:      store,
		Audio:        audioCache,
		Narration:    narration,
		Limiter:      queue.NewRateLimiter(rdb, cfg.Rate.PerHour),
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		HealthPath:   cfg.HTTP.HealthPath,
		MetricsPath:  cfg.HTTP.MetricsPath,
		TrustProxy:   cfg.HTTP.TrustProxy,
		DefaultCount: cfg.Generation.DefaultCount,
		MaxCount:     cfg.Generation.MaxCount,
		PendingTTL:   narrationPendingTTL,
		Version:      version,
		Logger:       log.Logger,
		Metrics:      m,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var updater *ext.Updater
	if cfg.Telegram.BotToken != "" {
		updater, err = startTelegram(cfg, service, rdb, m)
		if err != nil {
			_ = httpServer.Close()
			return err
		}
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if updater != nil {
		if err := updater.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop updater")
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
	return nil
}

func startTelegram(cfg *config.Config, service *newsroom.Service, rdb *redis.Client, m *metrics.Metrics) (*ext.Updater, error) {
	token := cfg.Telegram.BotToken
	bot, err := gotgbot.NewBot(token, nil)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %s", sanitizeTelegramErr(err, token))
	}
	log.Info().Str("bot_username", bot.User.Username).Int64("bot_id", bot.User.Id).Msg("telegram bot initialized")

	logTelegramErr := func(err error) {
		log.Error().Str("component", "telegram").Msg(sanitizeTelegramErr(err, token))
	}
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		MaxRoutines:      20,
		UnhandledErrFunc: logTelegramErr,
		Processor: telegram.Processor{
			Dedupe:        queue.NewUpdateDeduplicator(rdb, cfg.Redis.UpdateTTL),
			Metrics:       m,
			Logger:        log.Logger,
			AllowedUserID: cfg.Telegram.AdminUserID,
		},
	})
	telegram.NewService(telegram.Config{
		Newsroom:    service,
		Logger:      log.Logger,
		Metrics:     m,
		AdminUserID: cfg.Telegram.AdminUserID,
	}).Register(dispatcher)

	updater := ext.NewUpdater(dispatcher, &ext.UpdaterOpts{UnhandledErrFunc: logTelegramErr})
	if err := updater.StartPolling(bot, &ext.PollingOpts{
		EnableWebhookDeletion: true,
		DropPendingUpdates:    true,
		GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
			Timeout: 50,
			RequestOpts: &gotgbot.RequestOpts{
				Timeout: 60 * time.Second,
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("start polling: %s", sanitizeTelegramErr(err, token))
	}
	log.Info().Msg("telegram polling started")
	return updater, nil
}

func sanitizeTelegramErr(err error, token string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.TrimSpace(token) == "" {
		return msg
	}

	msg = strings.ReplaceAll(msg, token, "<redacted-token>")
	if idx := strings.Index(token, ":"); idx > 0 {
		botID := token[:idx]
		msg = strings.ReplaceAll(msg, "/bot"+botID+":", "/bot<redacted>:")
		msg = strings.ReplaceAll(msg, "bot"+botID+"/", "bot<redacted>/")
	}
	return msg
}
