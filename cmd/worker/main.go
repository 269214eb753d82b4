package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/config"
	"github.com/meridian-crm/mailer/internal/mail"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
	"github.com/meridian-crm/mailer/internal/queue"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}
	if !cfg.Redis.Configured() {
		logger.Error("worker requires a redis broker (REDIS_URL or REDIS_HOST)")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			logger.Error("failed to open database", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(time.Minute)

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			pingCancel()
			logger.Error("failed to ping database", "error", err.Error())
			os.Exit(1)
		}
		pingCancel()
		logger.Info("connected to database")
	} else {
		logger.Warn("no DATABASE_URL configured, campaign logging disabled")
	}

	// Email transport
	svc := mail.NewService(cfg.Email.Credentials())
	if err := svc.Configure(ctx, cfg.Email.Provider, nil); err != nil {
		logger.Error("email provider configuration failed", "provider", cfg.Email.Provider, "error", err.Error())
		os.Exit(1)
	}
	logger.Info("email provider active", "provider", cfg.Email.Provider)

	// Job queue
	opts, err := cfg.Redis.Options()
	if err != nil {
		logger.Error("invalid redis configuration", "error", err.Error())
		os.Exit(1)
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	jobQueue := queue.NewRedisQueue(ctx, redisClient)
	if !jobQueue.Available() {
		logger.Error("redis broker unreachable, worker cannot start")
		os.Exit(1)
	}

	store := campaign.NewStore(db)
	processor := campaign.NewProcessor(store, svc, svc.CurrentLimits, svc.AppURL())

	worker := queue.NewWorker(jobQueue, processor, svc)
	worker.Start(ctx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("draining worker")
	cancel()
	worker.Stop()
}
