package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	app "github.com/kode4food/wireflow"
	"github.com/kode4food/wireflow/internal/config"
	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/internal/nodes"
	"github.com/kode4food/wireflow/internal/server"
	"github.com/kode4food/wireflow/internal/storage"
	"github.com/kode4food/wireflow/pkg/log"
)

type wireflow struct {
	cfg        *config.Config
	store      storage.Store
	files      *blob.Bucket
	hub        *events.Hub
	metrics    *prometheus.Registry
	engine     *engine.Engine
	apiServer  *server.Server
	httpServer *http.Server
}

var (
	ErrCreateStore    = errors.New("failed to create flow store")
	ErrOpenFileBucket = errors.New("failed to open file bucket")
	ErrRegisterNodes  = errors.New("failed to register node types")
)

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	w := &wireflow{cfg: cfg}
	w.setupLogging()

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if err := w.run(ctx); err != nil {
		slog.Error("Wireflow stopped with error", log.Error(err))
		os.Exit(1)
	}
}

func (w *wireflow) run(ctx context.Context) error {
	if err := w.initializeStores(ctx); err != nil {
		w.closeStores()
		return err
	}
	defer w.closeStores()

	if err := w.initializeEngine(ctx); err != nil {
		return err
	}
	w.initializeServer()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server starting",
			slog.String("addr", w.httpServer.Addr))
		err := w.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		return w.shutdown()
	})
	return g.Wait()
}

func (w *wireflow) setupLogging() {
	level := log.ParseLevel(w.cfg.LogLevel)
	slog.SetDefault(log.New(log.Options{
		Service: app.Name,
		Env:     os.Getenv("ENV"),
		Version: app.Version,
		Level:   level,
	}))
	slog.SetLogLoggerLevel(level)

	slog.Info("Wireflow starting",
		slog.String("log_level", w.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("storage_kind", w.cfg.Storage.Kind),
		slog.String("storage_prefix", w.cfg.Storage.Prefix),
		slog.Bool("file_bucket", w.cfg.FileBucketURL != ""),
		slog.Int("max_kept_msgs", w.cfg.MaxKeptMsgs),
		slog.Duration("link_call_timeout", w.cfg.LinkCallTimeout),
		slog.String("api_host", w.cfg.APIHost),
		slog.Int("api_port", w.cfg.APIPort))
}

func (w *wireflow) initializeStores(ctx context.Context) error {
	store, err := storage.New(ctx, &w.cfg.Storage)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateStore, err)
	}
	w.store = store

	if w.cfg.FileBucketURL == "" {
		return nil
	}
	files, err := blob.OpenBucket(ctx, w.cfg.FileBucketURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenFileBucket, err)
	}
	w.files = files
	return nil
}

func (w *wireflow) initializeEngine(ctx context.Context) error {
	reg := engine.NewRegistry()
	if err := nodes.Register(reg, nodes.Options{Files: w.files}); err != nil {
		return fmt.Errorf("%w: %w", ErrRegisterNodes, err)
	}

	w.metrics = prometheus.NewRegistry()
	w.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	w.hub = events.NewHub(time.Now)
	eng, err := engine.New(w.cfg, engine.Dependencies{
		Registry: reg,
		Store:    w.store,
		Hub:      w.hub,
		Metrics:  engine.NewMetrics(w.metrics),
	})
	if err != nil {
		return err
	}
	w.engine = eng
	return w.engine.Start(ctx)
}

func (w *wireflow) initializeServer() {
	w.apiServer = server.NewServer(w.engine, w.cfg.AdminToken, w.metrics)
	w.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", w.cfg.APIHost, w.cfg.APIPort),
		Handler: w.apiServer.SetupRoutes(),
	}
}

func (w *wireflow) shutdown() error {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), w.cfg.ShutdownTimeout,
	)
	defer cancel()

	var errs []error
	if err := w.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	w.apiServer.CloseWebSockets()

	if err := w.engine.Stop(); err != nil {
		errs = append(errs, err)
	}
	w.hub.Close()

	slog.Info("Server exited")
	return errors.Join(errs...)
}

func (w *wireflow) closeStores() {
	if w.files != nil {
		if err := w.files.Close(); err != nil {
			slog.Warn("Failed to close file bucket", log.Error(err))
		}
		w.files = nil
	}
	if w.store != nil {
		if err := w.store.Close(); err != nil {
			slog.Warn("Failed to close flow store", log.Error(err))
		}
		w.store = nil
	}
}
