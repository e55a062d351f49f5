package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/code"
	"github.com/iliyamo/event-reservation/internal/config"
	"github.com/iliyamo/event-reservation/internal/database"
	"github.com/iliyamo/event-reservation/internal/handler"
	"github.com/iliyamo/event-reservation/internal/logging"
	"github.com/iliyamo/event-reservation/internal/middleware"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/router"
	"github.com/iliyamo/event-reservation/internal/scheduler"
	"github.com/iliyamo/event-reservation/internal/service"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	migrate := pflag.Bool("migrate", true, "apply the schema on startup")
	migrateOnly := pflag.Bool("migrate-only", false, "apply the schema and exit")
	addr := pflag.String("addr", "", "listen address, overrides APP_PORT")
	pflag.Parse()

	// a missing .env is fine; real deployments set the environment directly
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("env", cfg.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *addr, *migrate, *migrateOnly); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, addr string, migrate, migrateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Info("database connected", "driver", cfg.DBDriver)

	if migrate || migrateOnly {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema applied")
	}
	if migrateOnly {
		return nil
	}

	var rdb *redis.Client
	rlCfg, cacheCfg := config.LoadRateLimitConfig(), config.LoadCacheConfig()
	if rlCfg.Enabled || cacheCfg.Enabled {
		rdb, err = config.NewRedisClient(ctx, config.LoadRedisConfig())
		if err != nil {
			logger.Warn("redis unavailable; rate limiting and caching disabled", "err", err)
		} else {
			defer rdb.Close()
		}
	}

	var pub queue.Publisher = queue.NopPublisher{}
	if cfg.QueueEnabled {
		pub = queue.NewAMQPPublisher(cfg.AMQPURL, logger)
		if cfg.AuditConsumerEnabled {
			consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.AuditLogPath, logger)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("audit consumer stopped", "err", err)
				}
			}()
		}
	}

	deps := service.Deps{
		DB:           db,
		Events:       repository.NewEventRepo(db, dialect),
		Reservations: repository.NewReservationRepo(db),
		Users:        repository.NewUserRepo(db),
		Codes:        code.New(cfg.CodePrefix, cfg.CodeDigits, cfg.CodeMaxAttempts),
		Clock:        clock.Real(),
		Publisher:    pub,
		Logger:       logger,
		Rules: service.Rules{
			MaxSeatsPerReservation: cfg.MaxSeatsPerReservation,
			CancellationCutoff:     cfg.CancellationCutoff,
			MaxNoteLength:          cfg.MaxNoteLength,
		},
	}
	events := service.NewEventService(deps)
	reservations := service.NewReservationService(deps)
	stats := service.NewStatsService(deps)
	users := service.NewUserService(deps, cfg.BcryptCost)

	sched, err := scheduler.New(events, cfg.FinishSweepInterval, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", "err", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(logger))

	router.Register(e, router.Handlers{
		Health:       &handler.HealthHandler{DB: db},
		Auth:         handler.NewAuthHandler(users, cfg.JWTSecret, cfg.AccessTTLMin, logger),
		Events:       handler.NewEventHandler(events, reservations, stats, logger),
		Reservations: handler.NewReservationHandler(reservations, logger),
		Stats:        handler.NewStatsHandler(stats, logger),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(rlCfg, rdb, logger),
		Cache:     middleware.NewRedisCache(cacheCfg, rdb, logger),
	})

	if addr == "" {
		addr = cfg.Addr()
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openDB(cfg config.Config) (*sql.DB, database.Dialect, error) {
	if cfg.DBDriver == string(database.SQLite) {
		db, err := database.OpenSQLite(cfg.DBPath)
		return db, database.SQLite, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, database.MySQL, err
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Warn("request", append(attrs, "err", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	})
}
