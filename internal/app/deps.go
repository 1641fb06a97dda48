package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipqueue/client/internal/apiclient"
	"github.com/clipqueue/client/internal/auth"
	"github.com/clipqueue/client/internal/blobs"
	"github.com/clipqueue/client/internal/config"
	"github.com/clipqueue/client/internal/handlers"
	"github.com/clipqueue/client/internal/httpserver"
	"github.com/clipqueue/client/internal/input"
	"github.com/clipqueue/client/internal/logging"
	"github.com/clipqueue/client/internal/middleware"
	"github.com/clipqueue/client/internal/notify"
	"github.com/clipqueue/client/internal/pocketbase"
	"github.com/clipqueue/client/internal/queue"
	"github.com/clipqueue/client/internal/realtime"
	"github.com/clipqueue/client/internal/storage"
	"github.com/clipqueue/client/internal/upload"
	"github.com/clipqueue/client/internal/videos"
	"github.com/clipqueue/client/internal/worker"
)

const (
	limiterIdleTTL    = 5 * time.Minute
	extraDataTTL      = 10 * time.Minute
	objectStorePrefix = "downloads"
)

// dependencies holds the concrete collaborators shared by the commands.
type dependencies struct {
	cfg      config.Config
	logger   *slog.Logger
	notifier notify.Notifier

	session  *auth.Session
	api      *apiclient.Client
	pb       *pocketbase.Client
	accounts *auth.Service

	realtime *realtime.Store
	input    *input.Store
	blobs    *blobs.Registry
	uploads  *upload.Pipeline
	enqueuer *queue.Enqueuer
	videos   *videos.Lifecycle
	worker   *worker.Delegator
}

// buildDependencies wires together concrete implementations used by the commands.
func buildDependencies(ctx context.Context, cfg config.Config, errOut io.Writer) (*dependencies, error) {
	logger := logging.New(errOut, cfg.LogLevel)
	ctx = logging.WithLogger(ctx, logger)

	d := &dependencies{
		cfg:      cfg,
		logger:   logger,
		notifier: notify.NewConsole(errOut),
		input:    input.NewStore(),
		blobs:    blobs.NewRegistry(),
	}

	d.session = auth.NewSession(auth.NewFileSessionStore(cfg.SessionFile))
	if err := d.session.Restore(ctx); err != nil {
		logger.Warn("restore session failed", "error", err)
	}

	httpClient := &http.Client{Timeout: cfg.Timeout()}
	d.api = apiclient.New(cfg.APIURL, d.session,
		apiclient.WithHTTPClient(httpClient),
		apiclient.WithLimiter(apiclient.NewLimiter(cfg.RequestsPerSecond, cfg.RequestBurst, limiterIdleTTL)),
	)
	d.pb = pocketbase.New(cfg.PocketBaseURL, d.session, pocketbase.WithHTTPClient(httpClient))

	failureCtx := context.WithoutCancel(ctx)
	d.realtime = realtime.New(realtime.FromPocketBase(d.pb), realtime.WithFailureHandler(cfg.Grace(), func(err error) {
		logger.Error("realtime data unavailable, signing out", "error", err)
		d.accounts.ForceLogoutAfter(failureCtx, 0)
	}))
	d.accounts = auth.NewService(d.api, d.pb, d.session, d.realtime, d.notifier)

	d.uploads = upload.NewPipeline(d.api, d.input, d.blobs, upload.NewFFProbe(cfg.FFProbePath, cfg.Probe()), d.notifier)
	d.enqueuer = queue.NewEnqueuer(d.api, d.realtime, d.input, d.blobs, d.notifier)

	sink, err := buildSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.videos = videos.NewLifecycle(d.api, sink, d.notifier,
		videos.WithBlobs(d.blobs),
		videos.WithExtraData(videos.NewCachingExtraData(d.pb, extraDataTTL)),
	)
	d.worker = worker.NewDelegator(d.videos)

	return d, nil
}

func buildSink(ctx context.Context, cfg config.Config) (videos.Sink, error) {
	if !cfg.ObjectStore.Enabled() {
		return videos.NewFileSink(cfg.DownloadDir), nil
	}
	sink, err := storage.NewS3Sink(ctx, cfg.ObjectStore, objectStorePrefix)
	if err != nil {
		return nil, fmt.Errorf("configure object store: %w", err)
	}
	return sink, nil
}

// context attaches the process logger to ctx.
func (d *dependencies) context(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, d.logger)
}

// previewServer builds the loopback server that streams blob references.
func (d *dependencies) previewServer(port int) *httpserver.Server {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.Dependencies{Blobs: d.blobs})
	return httpserver.New(port, middleware.RequestLogger(d.logger)(mux))
}

func (d *dependencies) requireSession() (auth.SessionRecord, error) {
	record := d.session.Record()
	if record.Token == "" || record.UserID == "" {
		return auth.SessionRecord{}, fmt.Errorf("%w: run `clipqueue login` first", auth.ErrNotAuthenticated)
	}
	return record, nil
}

// Close stops background work.
func (d *dependencies) Close() {
	d.realtime.Close()
}
