package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"postdrop/backend/internal/config"
	"postdrop/backend/internal/health"
	"postdrop/backend/internal/logger"
	"postdrop/backend/internal/monitoring"
	"postdrop/backend/internal/reclaim"
	"postdrop/backend/internal/service"
	"postdrop/backend/internal/smtp"
	"postdrop/backend/internal/storage"
	"postdrop/backend/internal/storage/filesystem"
	"postdrop/backend/internal/storage/memory"
	redisbridge "postdrop/backend/internal/storage/redis"
	sqlstore "postdrop/backend/internal/storage/sql"
	httptransport "postdrop/backend/internal/transport/http"
	"postdrop/backend/internal/websocket"
)

// main runs the SMTP listener, the HTTP API and the reclamation scheduler
// in one process.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting postdrop server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			log.Fatal("failed to initialize database storage", zap.Error(err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage")
	}
	defer store.Close()

	blobs, err := filesystem.NewStore(cfg.Attachment.Root, log)
	if err != nil {
		log.Fatal("failed to initialize attachment storage",
			zap.String("root", cfg.Attachment.Root),
			zap.Error(err),
		)
	}
	log.Info("attachment storage initialized", zap.String("root", blobs.Root()))

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := health.NewChecker(store, blobs.Root())

	inboxService := service.NewInboxService(store, cfg, metrics, log)
	attachmentService := service.NewAttachmentService(store, blobs, cfg.Attachment.MaxSize, log)
	messageService := service.NewMessageService(store, attachmentService, log)

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)

	smtpBackend := smtp.NewBackend(inboxService, messageService, cfg.SMTP.MaxMessageSize, metrics, log)

	// With the Redis bridge enabled every event goes through pub/sub and
	// comes back via the subscription, including this instance's own, so
	// the hub is fed exactly once either way.
	var redisNotifier *redisbridge.Notifier
	if cfg.Redis.Address != "" {
		redisNotifier, err = redisbridge.NewNotifier(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.String("address", cfg.Redis.Address), zap.Error(err))
		}
		defer redisNotifier.Close()
		smtpBackend.AddNotifier(redisNotifier)
		log.Info("redis notification bridge enabled", zap.String("address", cfg.Redis.Address))
	} else {
		smtpBackend.AddNotifier(wsHub)
	}

	scheduler := reclaim.NewScheduler(store, attachmentService, cfg.Reclaim.Interval, metrics, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:  cfg,
		Handler: httptransport.NewHandler(inboxService, messageService, attachmentService, log),
		Hub:     wsHub,
		Metrics: metrics,
		Health:  healthChecker,
		Logger:  log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.ReadTimeout = 10 * time.Second
	smtpServer.WriteTimeout = 10 * time.Second
	smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageSize
	smtpServer.MaxRecipients = 50

	limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.MaxPerSecond)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		listener, err := net.Listen("tcp", cfg.SMTP.BindAddr)
		if err != nil {
			return fmt.Errorf("smtp listen: %w", err)
		}
		if err := smtpServer.Serve(smtp.LimitListener(listener, limiter, metrics, log)); err != nil && groupCtx.Err() == nil {
			return fmt.Errorf("smtp server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		err := scheduler.Start(groupCtx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	if redisNotifier != nil {
		group.Go(func() error {
			redisNotifier.Subscribe(groupCtx, wsHub.NotifyNewMessage)
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		wsHub.Shutdown(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown failed", zap.Error(err))
		}
		if err := smtpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("smtp shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
