package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/api"
	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/archiver"
	"github.com/JakeFAU/page-archiver/internal/asset"
	"github.com/JakeFAU/page-archiver/internal/clock/system"
	"github.com/JakeFAU/page-archiver/internal/config"
	"github.com/JakeFAU/page-archiver/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/page-archiver/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/page-archiver/internal/fetcher/headless"
	"github.com/JakeFAU/page-archiver/internal/hash/sha256"
	"github.com/JakeFAU/page-archiver/internal/headless/detector"
	"github.com/JakeFAU/page-archiver/internal/id/uuid"
	"github.com/JakeFAU/page-archiver/internal/logging"
	"github.com/JakeFAU/page-archiver/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/page-archiver/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/page-archiver/internal/queue/memory"
	"github.com/JakeFAU/page-archiver/internal/storage"
	memoryStorage "github.com/JakeFAU/page-archiver/internal/storage/memory"
	"github.com/JakeFAU/page-archiver/internal/storage/postgres"
	"github.com/JakeFAU/page-archiver/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	serve := flag.Bool("serve", false, "Run the HTTP archive service instead of a one-shot archive")
	prefix := flag.String("prefix", "", "Name prefix for one-shot archive artifacts")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [-prefix p] URL\n       %s [-config path] -serve\n",
			os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if !*serve && flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil && !errors.Is(syncErr, syscall.EINVAL) {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		err = runService(ctx, cfg, logger)
	} else {
		err = runOnce(ctx, cfg, logger, archive.Request{URL: flag.Arg(0), Prefix: *prefix})
	}
	if err != nil {
		logger.Error("archiver exited with error", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

// components holds everything shared by the one-shot and service modes.
type components struct {
	archiver *archiver.Archiver
	backend  archive.Backend
	clock    archive.Clock
	closers  []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func buildComponents(ctx context.Context, cfg config.Config, logger *zap.Logger) (*components, error) {
	c := &components{clock: system.New()}

	backend, closeBackend, err := storage.New(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	c.backend = backend
	c.closers = append(c.closers, func() {
		if err := closeBackend(); err != nil {
			logger.Warn("close storage failed", zap.Error(err))
		}
	})

	var probe archive.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Archiver.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})
	if cfg.HTTP.RatePerHost > 0 {
		probe = ratelimit.Wrap(probe, ratelimit.New(ratelimit.Config{
			RPS:   cfg.HTTP.RatePerHost,
			Burst: cfg.HTTP.BurstPerHost,
		}))
	}

	var (
		headless archive.Fetcher
		detect   archive.HeadlessDetector
	)
	if cfg.Headless.Enabled {
		detect = detector.NewHeuristic(cfg.Headless.PromotionThresh)
		chrome, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Archiver.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
			BlockedURLs:       headlessfetcher.DefaultBlockedURLs,
		}, logger.Named("headless"))
		if err != nil {
			logger.Warn("headless renderer init failed; promotions will fall back to the probe", zap.Error(err))
			headless = headlessfetcher.NewNoop(err)
		} else {
			headless = chrome
			c.closers = append(c.closers, chrome.Close)
		}
	}

	var publisher archive.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		publisher = pub
		c.closers = append(c.closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close pubsub publisher failed", zap.Error(err))
			}
		})
	}

	c.archiver = archiver.New(
		probe,
		headless,
		detect,
		backend,
		sha256.New(),
		asset.NewResolver(nil),
		publisher,
		c.clock,
		archiver.Config{
			Workers:          cfg.Archiver.Workers,
			MissingExtension: cfg.Archiver.MissingExtension,
			MaxStoreFailures: cfg.Archiver.MaxStoreFailures,
			Topic:            cfg.PubSub.TopicName,
		},
		logger.Named("archiver"),
	)
	return c, nil
}

func runOnce(ctx context.Context, cfg config.Config, logger *zap.Logger, req archive.Request) error {
	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	result, err := c.archiver.Archive(ctx, req)
	if err != nil {
		return fmt.Errorf("archive %s: %w", req.URL, err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func buildRunStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (archive.RunStore, func(), error) {
	if cfg.DSN == "" {
		logger.Info("run records kept in memory")
		return memoryStorage.NewRunStore(), func() {}, nil
	}
	store, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
		DSN:             cfg.DSN,
		Table:           cfg.Table,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: time.Duration(cfg.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres run store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure run table: %w", err)
	}
	logger.Info("run records kept in postgres", zap.String("table", cfg.Table))
	return store, store.Close, nil
}

func runService(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	runs, closeRuns, err := buildRunStore(ctx, cfg.DB, logger.Named("runs"))
	if err != nil {
		return err
	}
	defer closeRuns()

	ctx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	queue := queueMemory.NewQueue(cfg.Archiver.QueueDepth)
	workers := make([]*worker.Worker, 0, cfg.Archiver.Concurrency)
	for i := 0; i < cfg.Archiver.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			runs,
			c.archiver,
			c.clock,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers, logger.Named("dispatcher"))

	apiServer := api.NewServer(runs, dispatch, c.backend, uuid.New(), c.clock, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatch.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutdown initiated")
	dispatch.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	cancelRuns()
	<-dispatchDone
	queue.Close()
	logger.Info("shutdown complete")
	return runErr
}
