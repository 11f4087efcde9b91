package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"tasklist/api"
	"tasklist/config"
	"tasklist/domain"
	"tasklist/storage"
	"tasklist/tui"
)

const (
	defaultCacheTTL = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
	saveTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	serve := len(os.Args) > 1 && os.Args[1] == "serve"

	logger, closeLog := newLogger(cfg, !serve)
	defer closeLog()

	tp := api.NewTracerProvider(logger)
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slot, closeSlot, err := openSlot(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).WithField("backend", cfg.Backend).Warn("storage unavailable; changes will only be kept in memory")
		slot, closeSlot = storage.NewMemorySlot(), func() {}
	}
	defer closeSlot()

	adapter := storage.NewAdapter(slot, cfg.SlotKey, logger)
	store := domain.NewStore(adapter, logger)
	store.Restore(ctx)

	if serve {
		err = runServer(ctx, store, cfg, logger)
	} else {
		err = tui.Run(store, tui.Options{NoticeDelay: cfg.NoticeDelay, SaveTimeout: saveTimeout, Logger: logger})
	}
	if err != nil {
		logger.WithError(err).Error("exiting")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, store *domain.Store, cfg *config.Config, logger *log.Logger) error {
	srv := api.NewServer(store, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.HTTP.ListenAddr) }()
	logger.WithField("addr", cfg.HTTP.ListenAddr).Info("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newLogger builds the application logger. The terminal UI owns stdout, so
// in that mode logs go to a file under the data directory.
func newLogger(cfg *config.Config, toFile bool) (*log.Logger, func()) {
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	if !toFile {
		return logger, func() {}
	}

	logger.SetOutput(io.Discard)
	if cfg.DataDir == "" {
		return logger, func() {}
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return logger, func() {}
	}
	f, err := os.OpenFile(filepath.Join(cfg.DataDir, "tasklist.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return logger, func() {}
	}
	logger.SetOutput(f)
	return logger, func() { _ = f.Close() }
}

// openSlot opens the configured durable slot, optionally fronted by a
// redis read cache.
func openSlot(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.Slot, func(), error) {
	var (
		slot    storage.Slot
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemorySlot(), func() {}, nil

	case config.BackendFile:
		fs, err := storage.NewFileSlot(cfg.DataDir)
		if err != nil {
			return nil, nil, &domain.StorageError{Op: "open", Err: err}
		}
		slot = fs

	case config.BackendRedis:
		rc, err := newRedisClient(ctx, cfg.Redis.ConnectionString)
		if err != nil {
			return nil, nil, &domain.StorageError{Op: "open", Err: err}
		}
		return storage.NewRedisSlot(rc), func() { _ = rc.Close() }, nil

	case config.BackendTables:
		ts, err := storage.NewTableSlot(ctx, cfg.Tables.ConnectionString, cfg.Tables.Table)
		if err != nil {
			return nil, nil, &domain.StorageError{Op: "open", Err: err}
		}
		slot = ts

	case config.BackendPostgres:
		ps, err := storage.OpenPostgresSlot(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, &domain.StorageError{Op: "open", Err: err}
		}
		slot = ps
		closers = append(closers, func() { _ = ps.Close() })

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Redis.ConnectionString == "" {
		return slot, closeAll, nil
	}
	rc, err := newRedisClient(ctx, cfg.Redis.ConnectionString)
	if err != nil {
		logger.WithError(err).Warn("redis cache disabled")
		return slot, closeAll, nil
	}
	closers = append(closers, func() { _ = rc.Close() })
	ttl := cfg.Redis.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return storage.NewCache(slot, rc, ttl), closeAll, nil
}

func newRedisClient(ctx context.Context, conn string) (*redis.Client, error) {
	opts, err := storage.ParseRedisOptions(conn)
	if err != nil {
		return nil, err
	}
	rc := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, errors.Join(errors.New("redis ping failed"), err)
	}
	return rc, nil
}
