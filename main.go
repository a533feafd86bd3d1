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

	"precursor/internal/api"
	"precursor/internal/archive"
	"precursor/internal/bridge"
	"precursor/internal/change"
	"precursor/internal/config"
	"precursor/internal/logging"
	"precursor/internal/middleware"
	"precursor/internal/snapshot"
	"precursor/internal/storage"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.Path(), "config file (.json or .toml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize BadgerDB; in memory unless an archive path is configured
	db, err := storage.Open(cfg.Archive.Path, logger.Named("badger"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	arch, err := archive.New(db, archive.Options{
		CacheSize: cfg.Archive.CacheSize,
		Compression: archive.CompressionOptions{
			MinSize: cfg.Archive.CompressMinSize,
		},
		Logger: logger.Named("archive"),
	})
	if err != nil {
		logger.Fatal("failed to initialize archive", zap.Error(err))
	}
	defer arch.Close()

	// Store and bridge
	hub := bridge.NewHub(cfg.Bridge.QueueSize, bridge.LogAuthenticator{Logger: logger.Named("auth")}, logger.Named("bridge"))
	store := snapshot.NewStore(logger.Named("store"), snapshot.WithNotifier(hub))

	// Change feed
	listener, err := change.NewListener(
		cfg.Workspace.Root,
		store,
		change.NewIgnorePolicy(cfg.Workspace.IgnoreDirs...),
		logger.Named("listener"),
		cfg.Bridge.QueueSize,
		change.WithArchive(arch),
	)
	if err != nil {
		logger.Fatal("failed to initialize listener", zap.Error(err))
	}
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("listener stopped", zap.Error(err))
		}
	}()

	if _, err := listener.Scan(ctx); err != nil {
		logger.Error("initial scan failed", zap.Error(err))
	}

	if cfg.Workspace.Watch {
		watcher, err := change.NewWatcher(listener, logger.Named("watcher"))
		if err != nil {
			logger.Fatal("failed to start watcher", zap.Error(err))
		}
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	// Set up router
	mux := http.NewServeMux()
	api.NewHandler(store, hub, listener, arch, logger.Named("api")).Register(mux)

	// Apply middleware
	handler := middleware.Chain(
		mux,
		middleware.Logger(logger),
		middleware.Recover(logger),
		middleware.RequestID,
	)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	// Start server
	logger.Info("starting server",
		zap.String("address", cfg.Addr()),
		zap.String("root", listener.Root),
		zap.Int("files", store.Len()))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownFlush(flushCtx, store, arch, cfg.Archive.Path != "", logger.Logger)
}

// shutdownFlush archives detached buffers on the way out. An archive that
// only lives in memory is about to be discarded, so nothing is flushed and
// the loss is logged instead. It returns the number of records archived.
func shutdownFlush(ctx context.Context, store *snapshot.Store, sink snapshot.Sink, persistent bool, logger *zap.Logger) int {
	if !persistent {
		if n := len(store.Detached()); n > 0 {
			logger.Warn("unsaved edits of closed buffers are not persisted; set archive.path to keep them",
				zap.Int("count", n))
		}
		return 0
	}

	n, err := store.Flush(ctx, sink)
	if err != nil {
		logger.Error("final flush incomplete", zap.Int("flushed", n), zap.Error(err))
	} else if n > 0 {
		logger.Info("archived detached buffers", zap.Int("count", n))
	}
	return n
}
