package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab/internal/app"
	"github.com/yourusername/mediagrab/internal/domain"
	"github.com/yourusername/mediagrab/internal/infrastructure"
	"github.com/yourusername/mediagrab/pkg/logger"
)

// engine holds every component built from one configuration
type engine struct {
	config    *domain.Config
	logs      *logger.LoggerAdapter
	multi     *logger.MultiLogger
	status    *app.StatusStore
	router    *app.Router
	queue     *app.QueueManager
	downloads *app.DownloadManager
	repo      *infrastructure.SQLiteQueueRepository

	closeOnce sync.Once
	closeErr  error
}

// engineOptions selects the optional parts of the engine
type engineOptions struct {
	withQueue bool // open the queue database and route through the host queue
	quiet     bool // send the general log to the log file only
}

// newEngine wires the transfer engine, the router and, optionally, the host queue
func newEngine(ctx context.Context, config *domain.Config, opts engineOptions) (*engine, error) {
	e := &engine{config: config, status: app.NewStatusStore()}

	if err := e.initLogging(opts.quiet); err != nil {
		return nil, err
	}
	log := e.logs.General()

	if err := os.MkdirAll(config.Download.TempDir, 0755); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	headers, err := infrastructure.NewCookieHeaderSource(config.Download.UserAgent)
	if err != nil {
		e.Close()
		return nil, err
	}
	if config.Download.CookieFile != "" {
		n, err := headers.LoadNetscapeCookies(config.Download.CookieFile)
		if err != nil {
			log.Warn("Failed to load cookie file", zap.String("path", config.Download.CookieFile), zap.Error(err))
		} else {
			log.Info("Loaded cookies", zap.Int("count", n))
		}
	}

	library, err := newLibrary(ctx, &config.Library)
	if err != nil {
		e.Close()
		return nil, err
	}

	var notifier domain.Notifier
	if config.Notification.Enabled {
		notifier = infrastructure.NewNotificationService(&config.Notification, log)
	}

	policy := config.Download.Policy().Normalize()
	resolverClient := infrastructure.NewHTTPClient(infrastructure.HTTPClientConfig{
		ConnectTimeout: policy.ConnectTimeout,
		ReadTimeout:    policy.ReadTimeout,
		ProxyURL:       config.Download.ProxyURL,
	})
	resolver := infrastructure.NewRedirectResolver(resolverClient, headers,
		config.Router.MaxRedirects, config.Router.ResolveTimeout, e.logs.Transfer())

	deps := app.RouterDeps{
		Runner:   app.NewOrchestrator(headers, &config.Download, e.logs),
		Resolver: resolver,
		Library:  library,
		Headers:  headers,
		Notifier: notifier,
		Status:   e.status,
		Logs:     e.logs,
	}
	if config.Transcode.Enabled {
		deps.Transcoder = infrastructure.NewFFmpegTranscoder(&config.Transcode, config.Logging.LogsDir, e.logs)
	}

	if opts.withQueue {
		repo, err := infrastructure.NewSQLiteQueueRepository(config.Queue.DatabasePath)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to initialize repository: %w", err)
		}
		e.repo = repo
		e.downloads = app.NewDownloadManager(repo, library, notifier, &config.Download, &config.Queue, e.logs)
		e.queue = app.NewQueueManager(repo, e.downloads, &config.Queue, e.logs)
		deps.Queue = e.queue
	}

	e.router = app.NewRouter(deps, &config.Router, &config.Download)
	return e, nil
}

func (e *engine) initLogging(quiet bool) error {
	cfg := e.config.Logging
	output := cfg.OutputPath
	if quiet && (output == "stdout" || output == "stderr" || output == "") {
		output = "stderr"
		cfg.Level = "warn"
	}
	general, err := logger.New(logger.Config{Level: cfg.Level, Format: cfg.Format, OutputPath: output})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.LogsDir != "" {
		multi, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: e.config.Logging.Level, LogsDir: cfg.LogsDir})
		if err != nil {
			general.Warn("Categorized logs disabled", zap.Error(err))
		} else {
			e.multi = multi
		}
	}
	e.logs = logger.NewLoggerAdapter(general, e.multi)
	return nil
}

// newLibrary builds the configured publish destination
func newLibrary(ctx context.Context, config *domain.LibraryConfig) (domain.LibrarySink, error) {
	switch config.Backend {
	case "s3":
		return infrastructure.NewS3Library(ctx, config)
	case "filesystem", "":
		return infrastructure.NewFilesystemLibrary(config.Dir), nil
	default:
		return nil, fmt.Errorf("unknown library backend: %s", config.Backend)
	}
}

// Close waits for background transfers and releases every resource.
// Calls after the first return the first result.
func (e *engine) Close() error {
	e.closeOnce.Do(func() { e.closeErr = e.close() })
	return e.closeErr
}

func (e *engine) close() error {
	if e.router != nil {
		e.router.Wait()
	}
	var err error
	if e.queue != nil && e.queue.IsRunning() {
		err = multierr.Append(err, e.queue.Stop())
	}
	if e.downloads != nil {
		e.downloads.Close()
	}
	if e.repo != nil {
		err = multierr.Append(err, e.repo.Close())
	}
	if e.logs != nil {
		e.logs.Sync()
	}
	if e.multi != nil {
		err = multierr.Append(err, e.multi.Close())
	}
	return err
}
