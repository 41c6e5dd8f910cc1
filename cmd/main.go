package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meeting-reminders/internal/config"
	"meeting-reminders/internal/engine"
	"meeting-reminders/internal/handlers"
	"meeting-reminders/internal/lock"
	"meeting-reminders/internal/logging"
	"meeting-reminders/internal/notify"
	"meeting-reminders/internal/storage"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file (optional)")
	tlsKey := flag.String("tls-key", "", "path to TLS key file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.String("storage", cfg.Storage), zap.Error(err))
	}

	var dispatcher notify.Dispatcher
	switch cfg.Notifier {
	case "smtp":
		logger.Info("Using SMTP notifier", zap.String("host", cfg.SMTPHost), zap.Int("port", cfg.SMTPPort))
		dispatcher = notify.NewSMTPDispatcher(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.DispatchTimeout,
		}, logger)
	default:
		logger.Info("Using log notifier")
		dispatcher = notify.NewLogDispatcher(logger)
	}
	if cfg.DispatchRatePerSec > 0 {
		dispatcher = notify.RateLimited(dispatcher, rate.NewLimiter(rate.Limit(cfg.DispatchRatePerSec), 1))
	}

	opts := []engine.Option{
		engine.WithInterval(cfg.ScanInterval),
		engine.WithDispatchTimeout(cfg.DispatchTimeout),
		engine.WithConcurrency(cfg.DispatchConcurrency),
		engine.WithLogger(logger),
	}
	if cfg.RedisAddr != "" {
		client, err := lock.NewRedisClient(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer client.Close()
		logger.Info("Using Redis cycle lease", zap.String("addr", cfg.RedisAddr), zap.String("key", cfg.LockKey))
		opts = append(opts, engine.WithLocker(lock.NewRedisLocker(client, cfg.LockKey, cfg.LockTTL)))
	}

	eng := engine.New(store, dispatcher, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		logger.Fatal("Failed to start reminder engine", zap.Error(err))
	}

	r := mux.NewRouter()
	handlers.New(store, notify.WithTimeout(dispatcher, cfg.DispatchTimeout), logger).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if *tlsCert != "" && *tlsKey != "" {
			logger.Info("Starting meeting reminders with HTTPS", zap.String("addr", srv.Addr))
			err = srv.ListenAndServeTLS(*tlsCert, *tlsKey)
		} else {
			logger.Info("Starting meeting reminders with HTTP", zap.String("addr", srv.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Could not start HTTP server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Warn("Reminder engine shutdown", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Warn("Storage close", zap.Error(err))
	}
}

func openStorage(cfg config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage {
	case "memory":
		logger.Info("Using memory storage")
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.SQLitePath))
		return storage.NewSQLiteStorage(cfg.SQLitePath)
	case "mongo":
		logger.Info("Using MongoDB storage", zap.String("database", cfg.MongoDB))
		return storage.NewMongoStorage(cfg.MongoURI, cfg.MongoDB)
	default:
		logger.Info("Using file storage", zap.String("path", cfg.FilePath))
		return storage.NewFileStorage(cfg.FilePath), nil
	}
}
