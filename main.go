package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"resistance-server/config"
	"resistance-server/handlers"
	"resistance-server/middleware"
	"resistance-server/ratelimit"
	"resistance-server/realtime"
	"resistance-server/services"
	"resistance-server/stores"
	"resistance-server/utils"
	"resistance-server/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	var set stores.Set
	var closeDB func()
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("STORE_DRIVER=memory: state is lost on restart")
		set = stores.NewMemorySet(stores.NewMemory())
		closeDB = func() {}
	default:
		db, err := stores.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		set = stores.NewGormSet(db)
		closeDB = func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	}
	defer closeDB()

	// --- Shared ledger and realtime bus ---
	var ledger ratelimit.Ledger
	var pruner workers.Pruner
	var bus realtime.Bus
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("failed to reach redis")
		}
		ledger = ratelimit.NewRedisLedger(rdb)
		bus = realtime.NewRedisBus(rdb)
		log.Info("redis ledger and realtime bus enabled")
	} else {
		mem := ratelimit.NewMemoryLedger(nil)
		ledger, pruner = mem, mem
		bus = realtime.NewMemoryBus()
		log.Info("single-instance mode: in-memory ledger and realtime bus")
	}

	// --- Services ---
	clock := services.SystemClock
	streamers := services.NewStreamerRegistry(cfg.ValidStreamers)
	sessions := services.NewSessionAuthority(cfg.SessionSecret, cfg.SessionTTL, clock)
	authService := services.NewAuthService(set.Players, sessions, clock)
	factionService := services.NewFactionService(set.Factions, streamers)
	syncService := services.NewSyncService(set.Players, factionService, streamers, services.SyncConfig{
		MinInterval:        cfg.SyncMinInterval,
		MaxDeltaXP:         cfg.SyncMaxDeltaXP,
		MissionMinDuration: cfg.MissionMinDuration,
	}, clock, nil)
	matchService := services.NewMatchService(set.Matches, set.Players, services.MatchConfig{
		ForfeitWindow:         cfg.ForfeitWindow,
		TurnTimeout:           cfg.TurnTimeout,
		TimeoutPenaltyPercent: cfg.TimeoutPenaltyPercent,
		GLRDelta:              services.DefaultMatchConfig.GLRDelta,
	}, clock, nil)
	matchService.Notifier = realtime.NewNotifier(bus)
	mintService := services.NewMintService(set.Mints)

	// --- Workers ---
	var archiver *workers.MatchArchiver
	if cfg.ArchiveEnabled {
		uploader, err := utils.NewR2Uploader(ctx, utils.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessSecret,
			Bucket:          cfg.R2Bucket,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to initialize R2 client")
		}
		archiver = workers.NewMatchArchiver(set.Matches, uploader, cfg.ArchiveAfter, nil)
	}
	scheduler, err := workers.StartScheduler(workers.SchedulerConfig{
		PruneEvery:   time.Minute,
		ArchiveEvery: cfg.ArchiveInterval,
	}, pruner, archiver)
	if err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}

	// --- HTTP API ---
	app := fiber.New(fiber.Config{
		AppName:               "resistance-server",
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Origins(), ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	guards := handlers.Guards{
		Session:      middleware.RequireSession(sessions, cfg.SessionCookie),
		RateLimit:    middleware.IPRateLimit(ledger, int64(cfg.IPRateLimitRequests), cfg.IPRateLimitWindow, nil),
		ServiceToken: middleware.ServiceToken(cfg.GameServiceToken),
	}
	handlers.SetupAuthRoutes(app, authService, guards, handlers.CookieConfig{Name: cfg.SessionCookie, Secure: cfg.CookieSecure})
	handlers.SetupPlayerRoutes(app, syncService, guards)
	handlers.SetupPvpRoutes(app, matchService, guards)
	handlers.SetupMintRoutes(app, mintService, guards)
	handlers.SetupFactionRoutes(app, factionService)
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	// --- Realtime ---
	rt := realtime.NewServer(realtime.ServerConfig{
		AllowedOrigins: cfg.Origins(),
		CookieName:     cfg.SessionCookie,
		MaxConnPerIP:   cfg.RealtimeMaxConnPerIP,
		MessagesPerSec: cfg.RealtimeMsgRate,
	}, bus, sessions, matchService)
	rtServer := &http.Server{
		Addr:              cfg.RealtimeAddr,
		Handler:           rt.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("http server stopped")
			stop()
		}
	}()
	go func() {
		if err := rtServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("realtime server stopped")
			stop()
		}
	}()
	log.WithFields(log.Fields{"port": cfg.Port, "realtime": cfg.RealtimeAddr, "store": cfg.StoreDriver}).Info("server running")

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := rtServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("realtime shutdown")
	}
	if err := scheduler.Shutdown(); err != nil {
		log.WithError(err).Warn("scheduler shutdown")
	}
}
