package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gormlogger "gorm.io/gorm/logger"

	"pillarfunnel/internal/ratelimit"
	"pillarfunnel/internal/util"
	"pillarfunnel/pkg/storage"
	"pillarfunnel/pkg/store"
	"pillarfunnel/pkg/webhook"
	"pillarfunnel/services/funnel/internal/app"
	"pillarfunnel/services/funnel/internal/config"
	"pillarfunnel/services/funnel/internal/server"
)

func main() {
	path := os.Getenv("FUNNEL_CONFIG")
	if path == "" {
		path = config.ConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, util.LogFile{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogFileMaxSizeMB,
		MaxBackups: cfg.LogFileMaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress store.Progress
	if cfg.DatabaseURL != "" {
		gormLevel := gormlogger.Warn
		if util.ParseLevel(cfg.LogLevel) == slog.LevelDebug {
			gormLevel = gormlogger.Info
		}
		db, err := store.NewGormStore(cfg.DatabaseURL, store.WithQueryLogger(logger, gormLevel))
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
		defer db.Close()
		progress = db
	} else {
		logger.Warn("databaseURL not set, quiz progress is kept in memory")
		progress = store.NewMemoryStore()
	}

	var (
		cache         store.ReturnURLCache
		submitLimiter *ratelimit.FixedWindowLimiter
		draftLimiter  *ratelimit.FixedWindowLimiter
		returnLimiter *ratelimit.FixedWindowLimiter
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword})
		defer rdb.Close()
		cache = store.NewRedisReturnURLCache(rdb, "", cfg.ReturnURLCacheTTLDuration())
		if n := cfg.SubmitRateLimitPerMinute; n > 0 {
			opts := []ratelimit.Option{ratelimit.WithFailOpen(cfg.RateLimitFailOpen)}
			submitLimiter, err = ratelimit.NewFixedWindowLimiter(rdb, n, time.Minute,
				append(opts, ratelimit.WithPrefix("funnel:ratelimit:submit"))...)
			if err != nil {
				log.Fatalf("failed to init submit limiter: %v", err)
			}
			draftLimiter, err = ratelimit.NewFixedWindowLimiter(rdb, n*10, time.Minute,
				append(opts, ratelimit.WithPrefix("funnel:ratelimit:draft"))...)
			if err != nil {
				log.Fatalf("failed to init draft limiter: %v", err)
			}
			returnLimiter, err = ratelimit.NewFixedWindowLimiter(rdb, n, time.Minute,
				append(opts, ratelimit.WithPrefix("funnel:ratelimit:return"))...)
			if err != nil {
				log.Fatalf("failed to init return-visit limiter: %v", err)
			}
		}
	} else {
		logger.Warn("redisAddr not set, return urls are cached in memory and rate limiting is off")
		cache = store.NewMemoryReturnURLCache()
	}

	var archive app.Archiver
	if cfg.MinioEnabled() {
		objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		archive = storage.NewSubmissionArchive(objects)
	}

	if cfg.WebhookURL == "" {
		logger.Warn("webhookURL not set, funnel events will not be delivered")
	}
	notifier := webhook.NewNotifier(webhook.NotifierConfig{
		Endpoint: cfg.WebhookURL,
		Method:   cfg.WebhookMethod,
		Logger:   logger,
		Dispatcher: webhook.NewDispatcher(webhook.DispatcherConfig{
			Timeout:       cfg.WebhookTimeoutDuration(),
			DisableBeacon: cfg.WebhookDisableBeacon,
			Logger:        logger,
		}),
	})

	appCore, err := app.New(app.Config{
		Progress:      progress,
		Cache:         cache,
		Notifier:      notifier,
		Archive:       archive,
		PublicOrigin:  cfg.PublicOrigin,
		AutosaveDelay: cfg.AutosaveDelayDuration(),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	httpServer, err := server.New(server.Config{
		App:            appCore,
		PublicOrigin:   cfg.PublicOrigin,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: trusted,
		SubmitLimiter:  submitLimiter,
		DraftLimiter:   draftLimiter,

		ReturnVisitLimiter: returnLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	if err := appCore.Shutdown(shutdownCtx); err != nil {
		logger.Error("app shutdown", "err", err)
	}
	notifier.Wait()
	slog.Info("server stopped")
}
