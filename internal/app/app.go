// Package app builds the long-lived services of a crawl process from the
// loaded configuration and runs them either once or as a service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JunJD/xiuer-spider/internal/api"
	"github.com/JunJD/xiuer-spider/internal/clock/system"
	"github.com/JunJD/xiuer-spider/internal/config"
	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/dispatcher"
	"github.com/JunJD/xiuer-spider/internal/id/uuid"
	"github.com/JunJD/xiuer-spider/internal/orchestrator"
	"github.com/JunJD/xiuer-spider/internal/pacing"
	"github.com/JunJD/xiuer-spider/internal/policy/ratelimit"
	"github.com/JunJD/xiuer-spider/internal/progress"
	"github.com/JunJD/xiuer-spider/internal/progress/sinks"
	memorypublisher "github.com/JunJD/xiuer-spider/internal/publisher/memory"
	gcppublisher "github.com/JunJD/xiuer-spider/internal/publisher/pubsub"
	queueMemory "github.com/JunJD/xiuer-spider/internal/queue/memory"
	gcsstorage "github.com/JunJD/xiuer-spider/internal/storage/gcs"
	localstorage "github.com/JunJD/xiuer-spider/internal/storage/local"
	memoryStorage "github.com/JunJD/xiuer-spider/internal/storage/memory"
	pgstore "github.com/JunJD/xiuer-spider/internal/storage/postgres"
	"github.com/JunJD/xiuer-spider/internal/telemetry"
	"github.com/JunJD/xiuer-spider/internal/upstream"
	"github.com/JunJD/xiuer-spider/internal/upstream/fixture"
	"github.com/JunJD/xiuer-spider/internal/upstream/gateway"
	"github.com/JunJD/xiuer-spider/internal/upstream/page"
	"github.com/JunJD/xiuer-spider/internal/worker"
)

// ServiceName tags traces and the process logger.
const ServiceName = "xiuer-spider"

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    *system.Clock
	ids      *uuid.Generator
	registry *prometheus.Registry
	runs     *memoryStorage.RunStore
	upstream crawler.Upstream
	orch     *orchestrator.Orchestrator

	blobStore    sinks.BlobStore
	gcsStore     *gcsstorage.BlobStore
	archive      *pgstore.NoteArchive
	publisher    sinks.Publisher
	pubsub       *gcppublisher.Publisher
	tracer       *sdktrace.TracerProvider
	orchOptions  []orchestrator.Option
	webhookHTTP  *http.Client
	upstreamHook crawler.Upstream
}

// Option customizes Build.
type Option func(*App)

// WithUpstream replaces the configured upstream provider.
func WithUpstream(up crawler.Upstream) Option {
	return func(a *App) { a.upstreamHook = up }
}

// WithOrchestratorOptions forwards options to the orchestrator.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(a *App) { a.orchOptions = append(a.orchOptions, opts...) }
}

// WithWebhookClient sets the HTTP client used for webhook delivery.
func WithWebhookClient(c *http.Client) Option {
	return func(a *App) { a.webhookHTTP = c }
}

// Build creates the application's dependencies. Close must be called on the
// returned App even when a later step of the caller fails.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		clock:    system.New(cfg.Crawl.Location()),
		ids:      uuid.NewUUIDGenerator(""),
		registry: prometheus.NewRegistry(),
		runs:     memoryStorage.NewRunStore(cfg.Server.RunHistory),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tp, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracer = tp

	a.logger.Info("building application dependencies",
		zap.String("upstream", cfg.Upstream.Provider),
		zap.String("results", cfg.Results.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
		zap.Bool("archive", cfg.Archive.DSN != ""),
	)

	if err := a.setupUpstream(); err != nil {
		return a, err
	}
	if err := a.setupResults(ctx); err != nil {
		return a, err
	}
	if err := a.setupArchive(ctx); err != nil {
		return a, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		return a, err
	}
	sink, err := a.setupSinks()
	if err != nil {
		return a, err
	}

	reporter := progress.NewReporter(sink, a.clock, logger.Named("progress"))
	orchOpts := []orchestrator.Option{orchestrator.WithImageScene(cfg.Crawl.ImageScene)}
	if cfg.Pacing.Seed != 0 {
		orchOpts = append(orchOpts, orchestrator.WithRand(pacing.NewRand(cfg.Pacing.Seed)))
	}
	orchOpts = append(orchOpts, a.orchOptions...)
	a.orch = orchestrator.New(
		a.upstream,
		reporter,
		a.clock,
		a.ids,
		orchestrator.Config{
			NotePacing:    cfg.Pacing.Note(),
			CommentPacing: cfg.Pacing.Comment(),
			FetchDetail:   cfg.Crawl.FetchDetail,
		},
		logger.Named("orchestrator"),
		orchOpts...,
	)
	return a, nil
}

func (a *App) setupUpstream() error {
	if a.upstreamHook != nil {
		a.upstream = a.upstreamHook
		return nil
	}
	var base crawler.Upstream
	switch a.cfg.Upstream.Provider {
	case "fixture":
		fx, err := fixture.Load(a.cfg.Upstream.FixturePath)
		if err != nil {
			return fmt.Errorf("fixture upstream init failed: %w", err)
		}
		a.logger.Info("using fixture upstream", zap.String("path", a.cfg.Upstream.FixturePath))
		base = fx
	default:
		gw := a.cfg.Upstream.Gateway
		client, err := gateway.New(gateway.Config{
			BaseURL:           gw.BaseURL,
			Timeout:           gw.Timeout(),
			RequestsPerSecond: gw.RequestsPerSecond,
			Burst:             gw.Burst,
			MaxRetries:        gw.MaxRetries,
		}, nil, a.logger.Named("gateway"))
		if err != nil {
			return fmt.Errorf("gateway upstream init failed: %w", err)
		}
		a.logger.Info("using gateway upstream", zap.String("base_url", gw.BaseURL))
		base = client
	}
	if a.cfg.Upstream.Page.Enabled {
		pg := a.cfg.Upstream.Page
		limiter := ratelimit.New(ratelimit.Config{DefaultRPS: pg.RequestsPerSecond, DefaultBurst: pg.Burst})
		if err := limiter.Register(a.registry); err != nil {
			return fmt.Errorf("page rate limiter init failed: %w", err)
		}
		base = upstream.Compose(base, page.New(page.Config{
			UserAgent: pg.UserAgent,
			Timeout:   time.Duration(pg.TimeoutSeconds) * time.Second,
			Limiter:   limiter,
		}, a.logger.Named("page")))
		a.logger.Info("note detail read from note pages")
	}
	a.upstream = base
	return nil
}

func (a *App) setupResults(ctx context.Context) error {
	var err error
	switch a.cfg.Results.Provider {
	case "gcs":
		a.gcsStore, err = gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket:      a.cfg.Results.Bucket,
			Prefix:      a.cfg.Results.Prefix,
			CheckBucket: true,
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blobStore = a.gcsStore
		a.logger.Info("using GCS result storage", zap.String("bucket", a.cfg.Results.Bucket))
	case "local":
		a.blobStore, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Results.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local result storage", zap.String("path", a.cfg.Results.BaseDir))
	case "memory":
		a.blobStore = memoryStorage.NewBlobStore()
		a.logger.Info("using in-memory result storage")
	default:
		a.logger.Info("result documents disabled")
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	if a.cfg.Archive.DSN == "" {
		a.logger.Debug("no archive dsn, notes archive disabled")
		return nil
	}
	archive, err := pgstore.NewNoteArchive(ctx, pgstore.ArchiveConfig{
		DSN:           a.cfg.Archive.DSN,
		NotesTable:    a.cfg.Archive.NotesTable,
		CommentsTable: a.cfg.Archive.CommentsTable,
	})
	if err != nil {
		return fmt.Errorf("notes archive init failed: %w", err)
	}
	a.archive = archive
	if err := archive.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("notes archive schema: %w", err)
	}
	a.logger.Info("notes archive initialized", zap.String("table", a.cfg.Archive.NotesTable))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	switch a.cfg.Publisher.Provider {
	case "pubsub":
		p, err := gcppublisher.Dial(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.pubsub = p
		if err := p.Verify(ctx, a.cfg.Publisher.ProjectID, a.cfg.Publisher.Topic); err != nil {
			return fmt.Errorf("pubsub topic check failed: %w", err)
		}
		a.publisher = p
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
	case "memory":
		a.publisher = memorypublisher.New()
		a.logger.Info("using in-memory publisher")
	default:
		a.logger.Debug("event publishing disabled")
	}
	return nil
}

func (a *App) setupSinks() (progress.Sink, error) {
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	fan := progress.Fanout{
		sinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
		a.runs,
	}
	if a.cfg.Webhook.URL != "" {
		hook, err := a.Webhook(a.cfg.Webhook.URL)
		if err != nil {
			return nil, err
		}
		fan = append(fan, hook)
		a.logger.Info("webhook delivery enabled")
	}
	if a.blobStore != nil {
		// the GCS store applies the prefix itself
		prefix := a.cfg.Results.Prefix
		if a.gcsStore != nil {
			prefix = ""
		}
		fan = append(fan, sinks.NewResultSink(a.blobStore, prefix, a.logger.Named("results")))
	}
	if a.archive != nil {
		fan = append(fan, sinks.NewArchiveSink(a.archive))
	}
	if a.publisher != nil {
		fan = append(fan, sinks.NewPublishSink(a.publisher, a.cfg.Publisher.Topic, a.cfg.Publisher.TerminalOnly))
	}
	return fan, nil
}

// Webhook builds a sink that POSTs events to url with the configured
// secret, timeout and retry schedule.
func (a *App) Webhook(url string) (progress.Sink, error) {
	hook, err := sinks.NewWebhookSink(sinks.WebhookConfig{
		URL:         url,
		Secret:      a.cfg.Webhook.Secret,
		Timeout:     a.cfg.Webhook.Timeout(),
		RetryDelays: a.cfg.Webhook.RetryDelays(),
	}, a.webhookHTTP, a.logger.Named("webhook"))
	if err != nil {
		return nil, fmt.Errorf("webhook sink init failed: %w", err)
	}
	return hook, nil
}

// Crawl executes one run in the calling goroutine.
func (a *App) Crawl(ctx context.Context, req orchestrator.Request) orchestrator.Result {
	return a.orch.Run(ctx, req)
}

// Handler builds the run submission API around a fresh dispatcher. The
// dispatcher must be run for queued runs to execute.
func (a *App) Handler() (*dispatcher.Dispatcher, http.Handler, error) {
	queue := queueMemory.NewQueue[orchestrator.Request](a.cfg.Server.QueueCapacity)
	w := worker.New(queue, a.orch, a.logger.Named("worker"))
	d := dispatcher.New(queue, w)
	srv, err := api.NewServer(a.cfg, api.Deps{
		Submitter: d,
		Runs:      a.runs,
		IDs:       a.ids,
		Clock:     a.clock,
		Registry:  a.registry,
		Webhooks:  a.Webhook,
		Logger:    a.logger.Named("api"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("api init failed: %w", err)
	}
	return d, srv.Handler(), nil
}

// Serve runs the HTTP API and the worker until ctx is canceled or the
// listener fails, then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	d, handler, err := a.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started")
		d.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Runs exposes the run store.
func (a *App) Runs() *memoryStorage.RunStore { return a.runs }

// BlobStore returns the result store, nil when disabled.
func (a *App) BlobStore() sinks.BlobStore { return a.blobStore }

// Publisher returns the event publisher, nil when disabled.
func (a *App) Publisher() sinks.Publisher { return a.publisher }

// Registry returns the Prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.archive != nil {
		a.archive.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
