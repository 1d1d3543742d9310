// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jobrunner/modisfetch/internal/adapters/archive"
	"github.com/jobrunner/modisfetch/internal/adapters/catalog"
	httpAdapter "github.com/jobrunner/modisfetch/internal/adapters/http"
	"github.com/jobrunner/modisfetch/internal/adapters/manifest"
	"github.com/jobrunner/modisfetch/internal/adapters/metrics"
	"github.com/jobrunner/modisfetch/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/modisfetch/internal/adapters/tls"
	"github.com/jobrunner/modisfetch/internal/adapters/validator"
	"github.com/jobrunner/modisfetch/internal/adapters/watcher"
	"github.com/jobrunner/modisfetch/internal/application"
	"github.com/jobrunner/modisfetch/internal/config"
	"github.com/jobrunner/modisfetch/internal/domain"
	"github.com/jobrunner/modisfetch/internal/ports/input"
	"github.com/jobrunner/modisfetch/internal/ports/output"
)

// App holds all application components. Components not needed by the
// running command stay nil.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *storage.LocalStorage
	Index      *archive.Index              // nil when the archive index is disabled
	Archive    *application.ArchiveService // nil when the archive index is disabled
	Metrics    *metrics.Collector          // nil when metrics are disabled
	Remote     output.Remote
	Downloader *application.DownloadService
	Sync       *application.SyncService
	Health     *application.HealthService
	HTTPServer *httpAdapter.Server
	TLSServer  *tlsAdapter.Server
	Watcher    *watcher.Watcher
}

// New initializes the local side of the application: destination store,
// archive index and metrics.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dest := cfg.Download.Destination
	if err := os.MkdirAll(dest, 0750); err != nil {
		return nil, &domain.ConfigError{Field: "download.destination", Message: err.Error()}
	}
	if err := storage.CheckWritable(dest); err != nil {
		return nil, &domain.ConfigError{Field: "download.destination", Message: fmt.Sprintf("not writable: %v", err)}
	}
	app.Store = storage.NewLocalStorage(dest)

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("modisfetch")
	}

	if cfg.Archive.Enabled && !cfg.Download.DryRun {
		index, err := archive.Open(ctx, cfg.ArchivePath())
		if err != nil {
			return nil, fmt.Errorf("opening archive index: %w", err)
		}
		app.Index = index
		app.Archive = application.NewArchiveService(app.Store, index, logger)
	}

	return app, nil
}

// InitDownloader connects the remote archive, validators and download service.
func (a *App) InitDownloader(ctx context.Context) error {
	remote, err := NewRemote(ctx, a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("initializing remote: %w", err)
	}
	a.Remote = remote

	v, err := NewValidator(a.Config.Validation)
	if err != nil {
		return fmt.Errorf("initializing validation: %w", err)
	}

	var index output.ArchiveIndex
	if a.Index != nil {
		index = a.Index
	}

	manifestPath := ManifestPath(a.Config)
	opener := func() (output.Manifest, error) {
		return manifest.Create(manifestPath)
	}

	a.Downloader = application.NewDownloadService(
		remote,
		a.Store,
		opener,
		v,
		index,
		a.metricsCollector(),
		RetryPolicy(a.Config.Retry),
		a.Logger,
	)
	return nil
}

// InitServer builds the scheduler, status API and watcher of serve mode.
// InitDownloader must have been called.
func (a *App) InitServer(request application.RequestFunc) error {
	cfg := a.Config

	a.Sync = application.NewSyncService(a.Downloader, request, cfg.Sync.Interval, a.Logger)
	a.Sync.SetRunOnStart(cfg.Sync.RunOnStart)
	a.Health = application.NewHealthService(a.Sync)

	var m httpAdapter.Metrics
	if a.Metrics != nil {
		m = a.Metrics
	}
	a.HTTPServer = httpAdapter.NewServer(cfg.Server, a.Health, a.Sync, a.Archive, m, cfg.Metrics.Path, a.Logger)

	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(cfg.TLS, cfg.Server, a.HTTPServer.Handler(), a.Logger)
		if err != nil {
			return fmt.Errorf("initializing TLS: %w", err)
		}
		a.TLSServer = tlsServer
	}

	if cfg.Sync.Watch {
		w, err := watcher.New(watcher.Config{Dir: cfg.Download.Destination}, a.handleFileEvent, a.Logger)
		if err != nil {
			a.Logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			a.Watcher = w
		}
	}

	return nil
}

// Start starts the serve mode components and blocks in the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
			a.Watcher = nil
		}
	}

	a.Sync.Start(ctx)

	if a.TLSServer != nil {
		return a.TLSServer.Start()
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTPS server shutdown error", "error", err)
		}
	} else if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", "error", err)
		}
	}

	if a.Sync != nil {
		a.Sync.Stop()
	}

	return a.Close()
}

// Close releases the archive index.
func (a *App) Close() error {
	if a.Index == nil {
		return nil
	}
	err := a.Index.Close()
	a.Index = nil
	return err
}

// WriteMetrics writes the node_exporter textfile if one is configured.
func (a *App) WriteMetrics() error {
	if a.Metrics == nil || a.Config.Metrics.Textfile == "" {
		return nil
	}
	return a.Metrics.WriteTextfile(a.Config.Metrics.Textfile)
}

// handleFileEvent drops deleted granules from the index and schedules a
// session that downloads them again.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	if event.Operation != watcher.OpDelete {
		return nil
	}

	if a.Archive != nil {
		if err := a.Archive.Forget(ctx, event.Name); err != nil {
			a.Logger.Warn("failed to drop deleted granule from index", "file", event.Name, "error", err)
		}
	}
	a.Sync.RequestResync()
	return nil
}

func (a *App) metricsCollector() output.MetricsCollector {
	if a.Metrics == nil {
		return &output.NoOpMetrics{}
	}
	return a.Metrics
}

// NewRemote creates the remote archive adapter for the configured source type.
func NewRemote(ctx context.Context, cfg *config.Config, logger *slog.Logger) (output.Remote, error) {
	src := cfg.Source

	switch cfg.SourceType() {
	case config.SourceFTP:
		return catalog.NewFTPRemote(catalog.FTPConfig{
			URL:      cfg.ProductURL(),
			Username: src.Username,
			Password: src.Password,
			Timeout:  src.Timeout,
		}, logger)

	case config.SourceHTTP:
		return catalog.NewHTTPRemote(catalog.HTTPConfig{
			URL:       cfg.ProductURL(),
			Username:  src.Username,
			Password:  src.Password,
			Timeout:   src.Timeout,
			UserAgent: src.UserAgent,
		}, logger)

	case config.SourceS3:
		prefix := src.S3.Prefix
		if prefix == "" {
			prefix = cfg.ProductPath()
		}
		return catalog.NewS3Remote(ctx, catalog.S3Config{
			Bucket:          src.S3.Bucket,
			Region:          src.S3.Region,
			Prefix:          prefix,
			Endpoint:        src.S3.Endpoint,
			AccessKeyID:     src.S3.AccessKeyID,
			SecretAccessKey: src.S3.SecretAccessKey,
		}, logger)

	case config.SourceAzure:
		prefix := src.Azure.Prefix
		if prefix == "" {
			prefix = cfg.ProductPath()
		}
		return catalog.NewAzureRemote(catalog.AzureConfig{
			Container:        src.Azure.Container,
			AccountName:      src.Azure.AccountName,
			AccountKey:       src.Azure.AccountKey,
			ConnectionString: src.Azure.ConnectionString,
			Prefix:           prefix,
		}, logger)

	case config.SourceLocal:
		return catalog.NewLocalRemote(filepath.Join(src.LocalPath, filepath.FromSlash(cfg.ProductPath())), logger), nil

	default:
		return nil, &domain.ConfigError{Field: "source.type", Message: fmt.Sprintf("unknown source type %q", cfg.SourceType())}
	}
}

// NewValidator builds the configured validation chain. It returns nil when
// no validation is enabled.
func NewValidator(cfg config.ValidationConfig) (output.Validator, error) {
	var chain validator.Chain
	if cfg.HDF {
		chain = append(chain, validator.NewHDF())
	}
	if cfg.GDAL {
		gdal, err := validator.NewGDAL(cfg.GDALBinary)
		if err != nil {
			return nil, err
		}
		chain = append(chain, gdal)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

// ManifestPath returns where sessions write their manifest.
func ManifestPath(cfg *config.Config) string {
	if cfg.Download.Manifest != "" {
		return cfg.Download.Manifest
	}
	return filepath.Join(cfg.Download.Destination, manifest.FileName(cfg.Source.Product))
}

// RetryPolicy converts the retry configuration.
func RetryPolicy(cfg config.RetryConfig) application.RetryPolicy {
	return application.RetryPolicy{
		MaxAttempts:     cfg.MaxAttempts,
		ConnectAttempts: cfg.ConnectAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

// BuildRequest converts the download configuration into a session request.
// Tiles of the configured points are added to the tile list.
func BuildRequest(cfg *config.Config) (input.Request, error) {
	d := cfg.Download

	tiles, err := domain.ParseTileFilter(d.Tiles)
	if err != nil {
		return input.Request{}, err
	}
	for _, p := range d.Points {
		c, err := ParsePoint(p)
		if err != nil {
			return input.Request{}, err
		}
		tile, err := domain.TileFor(c)
		if err != nil {
			return input.Request{}, err
		}
		if tiles, err = tiles.With(tile); err != nil {
			return input.Request{}, err
		}
	}

	first, end, err := d.Window()
	if err != nil {
		return input.Request{}, err
	}

	return input.Request{
		Today:    first,
		EndDate:  end,
		Delta:    d.Delta,
		AllDays:  d.AllDays,
		Tiles:    tiles,
		Previews: d.Previews,
		Clean:    d.Clean,
		XMLOnly:  d.XMLOnly,
		DryRun:   d.DryRun,
	}, nil
}

// ParsePoint parses a "lat,lon" pair.
func ParsePoint(s string) (domain.Coordinate, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	invalid := &domain.ValidationError{
		Field:      "point",
		Value:      s,
		Constraint: "lat,lon",
		Message:    "point must be a lat,lon pair",
	}
	if !ok {
		return domain.Coordinate{}, invalid
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return domain.Coordinate{}, invalid
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return domain.Coordinate{}, invalid
	}
	return domain.Coordinate{Lon: lon, Lat: lat}, nil
}
