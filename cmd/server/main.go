package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/meridian-crm/mailer/internal/api"
	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/config"
	"github.com/meridian-crm/mailer/internal/mail"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
	"github.com/meridian-crm/mailer/internal/queue"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		logger.Error("pre-flight check failed", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database (email logs, campaign status). Optional: without it single
	// sends still work and campaign submission reports the missing dependency.
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			logger.Error("failed to open database", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(3)
		db.SetConnMaxLifetime(5 * time.Minute)

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
		logger.Warn("email provider not configured at startup", "provider", cfg.Email.Provider, "error", err.Error())
	} else {
		logger.Info("email provider active", "provider", cfg.Email.Provider)
	}

	// Job queue: broker-backed when redis is configured and reachable,
	// otherwise everything runs in-process.
	var jobQueue queue.JobQueue = queue.NewInlineQueue()
	var redisClient *redis.Client
	if cfg.Redis.Configured() {
		opts, err := cfg.Redis.Options()
		if err != nil {
			logger.Error("invalid redis configuration", "error", err.Error())
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		jobQueue = queue.NewRedisQueue(ctx, redisClient)
	} else {
		logger.Info("no redis configured, sends run in-process")
	}

	store := campaign.NewStore(db)
	processor := campaign.NewProcessor(store, svc, svc.CurrentLimits, svc.AppURL())
	dispatcher := queue.NewDispatcher(svc, jobQueue, processor)

	handlers := api.NewHandlers(svc, dispatcher, jobQueue)
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	go func() {
		logger.Info("mailer API listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err.Error())
			cancel()
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err.Error())
	}
}
