// Package server provides the HTTP server for komandorr.
//
// The server polls the activity feed on a cron schedule, keeps the tracker
// state and peak concurrency, and exposes them over a JSON API.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Consolidated status (poll health, counts, peak, next poll)
//   - GET /api/activities - Activities currently tracked, ?present=true for feed-visible only
//   - GET /api/completed - Recently finished activities, ?limit=N
//   - GET /api/events - Recently captured warnings and errors, ?limit=N
//   - GET /api/peak - Current peak concurrency
//   - POST /api/peak - Offer a candidate peak, {"candidate": N}
//   - POST /api/peak/reset - Reset the peak to zero
//   - GET /config - Current monitor configuration as YAML, secrets redacted
//   - POST /reload - Reloads the monitor configuration from disk
//   - GET /metrics - Prometheus metrics
//
// The two peak POST routes require the X-Api-Key header when the server is
// created WithPeakAPIKey.
//
// # Architecture
//
// Config-derived dependencies (the feed client and the peak backend) are held
// in a serverDeps value that is swapped atomically on reload. The poller and
// peak recorder are created once and reach the current deps through the
// Server, so a reload takes effect on the next tick without losing tracker
// state. The state store is opened once; changing its backend needs a
// restart.
//
// # Example
//
//	srv, err := server.New("/etc/komandorr/config.yaml",
//	    server.WithListenAddr(":8080"),
//	    server.WithPollSchedule("@every 5s"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/komandorr/buildinfo"
	"github.com/nomis52/komandorr/clients/feedclient"
	"github.com/nomis52/komandorr/clients/peakclient"
	"github.com/nomis52/komandorr/config"
	"github.com/nomis52/komandorr/logging"
	"github.com/nomis52/komandorr/metrics"
	"github.com/nomis52/komandorr/peak"
	"github.com/nomis52/komandorr/poller"
	"github.com/nomis52/komandorr/server/cron"
	"github.com/nomis52/komandorr/server/handlers"
	"github.com/nomis52/komandorr/server/types"
	"github.com/nomis52/komandorr/store"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultListenAddr      = ":8080"
	defaultPollSchedule    = "@every 5s"
	defaultPeakLoadTimeout = 10 * time.Second

	// Captured log entries served by /api/events.
	eventCapacity = 200

	pollJob      = "poll"
	peakResetJob = "peak_reset"

	peakBackendLocal  = "local"
	peakBackendRemote = "remote"
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config    *config.Config
	feed      *feedclient.Client
	peakStore peak.Store
}

// Server is the komandorr HTTP server.
type Server struct {
	addr              string
	configPath        string
	tlsCert           string
	tlsKey            string
	pollSchedule      string
	peakResetSchedule string
	watchConfig       bool
	logLevel          string
	peakAPIKey        string

	logger    *logging.Logger
	baseLog   *slog.Logger
	collector *logging.LogCollector
	startedAt time.Time
	hostname  string

	deps      atomic.Pointer[serverDeps]
	kv        store.Store
	localPeak *store.PeakStore
	registry  *metrics.ScrapeRegistry
	recorder  *peak.Recorder
	poller    *poller.Poller
	triggers  *cron.CronTriggerManager

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithListenAddr configures the address the server listens on.
// Default is ":8080".
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithPollSchedule sets the cron spec used to poll the feed.
// Default is "@every 5s".
func WithPollSchedule(spec string) Option {
	return func(s *Server) error {
		if _, err := cron.ParseSchedule(spec); err != nil {
			return fmt.Errorf("poll schedule: %w", err)
		}
		s.pollSchedule = spec
		return nil
	}
}

// WithPeakResetSchedule resets the peak concurrency on a cron schedule.
func WithPeakResetSchedule(spec string) Option {
	return func(s *Server) error {
		if _, err := cron.ParseSchedule(spec); err != nil {
			return fmt.Errorf("peak reset schedule: %w", err)
		}
		s.peakResetSchedule = spec
		return nil
	}
}

// WithTLS serves HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) error {
		if (certFile == "") != (keyFile == "") {
			return errors.New("tls cert and key must be set together")
		}
		s.tlsCert = certFile
		s.tlsKey = keyFile
		return nil
	}
}

// WithWatchConfig reloads the monitor config when the file changes.
func WithWatchConfig(watch bool) Option {
	return func(s *Server) error {
		s.watchConfig = watch
		return nil
	}
}

// WithLogLevel overrides the log level from the monitor config.
func WithLogLevel(level string) Option {
	return func(s *Server) error {
		s.logLevel = level
		return nil
	}
}

// WithPeakAPIKey requires key in the X-Api-Key header of peak updates and
// resets. Reads stay open.
func WithPeakAPIKey(key string) Option {
	return func(s *Server) error {
		s.peakAPIKey = key
		return nil
	}
}

// New creates a new Server with the given monitor config path and options.
// It loads the configuration, opens the state store and restores the
// tracker state and peak.
func New(configPath string, opts ...Option) (*Server, error) {
	s := &Server{
		addr:         defaultListenAddr,
		configPath:   configPath,
		pollSchedule: defaultPollSchedule,
		startedAt:    time.Now(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logCfg := loggingConfig(cfg)
	if s.logLevel != "" {
		logCfg.Level = s.logLevel
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	s.logger = logger
	s.collector = logging.NewLogCollector(eventCapacity, slog.LevelWarn)
	s.baseLog = s.collector.Logger(logger.Logger, "server")

	if s.hostname, err = os.Hostname(); err != nil {
		s.baseLog.Warn("failed to read hostname", "error", err)
	}

	kv, err := store.Open(cfg.State.Backend, cfg.State.Path, s.baseLog)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}
	s.kv = kv
	s.localPeak = store.NewPeakStore(kv)

	if err := s.applyConfig(&cfg); err != nil {
		kv.Close()
		return nil, err
	}

	registry, err := metrics.NewScrapeRegistry(metrics.WithNamespace(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	s.registry = registry

	s.recorder = peak.New(peakBackend{s}, s.collector.Logger(logger.Logger, "peak"))
	s.loadPeak()

	p, err := poller.New(s, kv, s.recorder, registry, s.collector.Logger(logger.Logger, "poller"),
		poller.WithTrackerConfig(cfg.Tracker))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("creating poller: %w", err)
	}
	p.Load()
	s.poller = p

	s.triggers = cron.NewCronTriggerManager(s.baseLog)
	if err := s.triggers.Add(pollJob, s.pollSchedule, p); err != nil {
		kv.Close()
		return nil, err
	}
	if s.peakResetSchedule != "" {
		reset := cron.RunnableFunc(func(ctx context.Context) error {
			_, err := p.ResetPeak(ctx)
			return err
		})
		if err := s.triggers.Add(peakResetJob, s.peakResetSchedule, reset); err != nil {
			kv.Close()
			return nil, err
		}
	}

	return s, nil
}

func loggingConfig(cfg config.Config) logging.Config {
	return logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	}
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.baseLog
}

// applyConfig builds the config-derived deps and swaps them in.
func (s *Server) applyConfig(cfg *config.Config) error {
	feed, err := feedclient.New(cfg.Feed.URL,
		feedclient.WithPath(cfg.Feed.Path),
		feedclient.WithAPIKey(cfg.Feed.APIKey),
		feedclient.WithTimeout(cfg.Feed.Timeout),
		feedclient.WithLogger(s.baseLog),
	)
	if err != nil {
		return fmt.Errorf("creating feed client: %w", err)
	}

	var peakStore peak.Store = s.localPeak
	if cfg.UsesRemotePeak() {
		remote, err := peakclient.New(cfg.Peak.URL,
			peakclient.WithAPIKey(cfg.Peak.APIKey),
			peakclient.WithTimeout(cfg.Peak.Timeout),
		)
		if err != nil {
			return fmt.Errorf("creating peak client: %w", err)
		}
		peakStore = remote
	}

	s.deps.Store(&serverDeps{
		config:    cfg,
		feed:      feed,
		peakStore: peakStore,
	})
	return nil
}

// Reload reads the monitor config from disk and rebuilds server dependencies.
// On failure the running configuration is kept.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}

	prev := s.Config()
	if prev.State != cfg.State {
		s.baseLog.Warn("state backend change requires restart",
			"backend", prev.State.Backend,
			"path", prev.State.Path,
		)
	}
	if prev.Monitoring.MetricsPrefix != cfg.Monitoring.MetricsPrefix {
		s.baseLog.Warn("metrics prefix change requires restart")
	}

	if err := s.applyConfig(&cfg); err != nil {
		return err
	}
	if s.logLevel == "" {
		if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
			s.baseLog.Warn("failed to apply log level", "error", err)
		}
	}
	s.poller.SetTrackerConfig(cfg.Tracker)
	if prev.Peak != cfg.Peak {
		s.loadPeak()
	}

	s.baseLog.Info("configuration loaded", "config_path", s.configPath)
	return nil
}

// loadPeak adopts the peak held by the current backend.
func (s *Server) loadPeak() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPeakLoadTimeout)
	defer cancel()
	if err := s.recorder.Load(ctx); err != nil {
		s.baseLog.Warn("failed to load peak concurrency", "error", err)
	}
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Fetch reads the activity feed with the current feed client.
func (s *Server) Fetch(ctx context.Context) (feedclient.Result, error) {
	return s.deps.Load().feed.Fetch(ctx)
}

// Status returns the tracker view.
func (s *Server) Status() poller.Status {
	return s.poller.Status()
}

// Peak returns the recorded peak concurrency.
func (s *Server) Peak() int {
	return s.poller.Peak()
}

// OfferPeak raises the peak to candidate if it is higher.
func (s *Server) OfferPeak(ctx context.Context, candidate int) (int, error) {
	return s.poller.OfferPeak(ctx, candidate)
}

// ResetPeak resets the peak to zero.
func (s *Server) ResetPeak(ctx context.Context) (int, error) {
	return s.poller.ResetPeak(ctx)
}

// Recent returns up to limit captured log entries, newest first.
func (s *Server) Recent(limit int) []logging.LogEntry {
	return s.collector.Recent(limit)
}

// NextPoll returns the next scheduled poll.
func (s *Server) NextPoll() *time.Time {
	next, ok := s.triggers.NextRunOf(pollJob)
	if !ok {
		return nil
	}
	return &next
}

// Properties describes the running server.
func (s *Server) Properties() types.ServerProperties {
	cfg := s.Config()
	peakBackend := peakBackendLocal
	if cfg.UsesRemotePeak() {
		peakBackend = peakBackendRemote
	}
	return types.ServerProperties{
		Build:        buildinfo.Get(),
		StartedAt:    s.startedAt,
		Hostname:     s.hostname,
		PollSchedule: s.pollSchedule,
		StateBackend: cfg.State.Backend,
		PeakBackend:  peakBackend,
	}
}

// Close releases the state store.
func (s *Server) Close() error {
	return s.kv.Close()
}

// watchFiles registers the config and certificate watches with w and returns
// the TLS config when TLS is enabled. On failure w is closed.
func (s *Server) watchFiles(w *fileWatcher) (tlsConfig *tls.Config, err error) {
	defer func() {
		if err != nil {
			w.Close()
		}
	}()

	if s.watchConfig {
		if err := w.Watch(s.configPath, s.reloadFromWatch); err != nil {
			return nil, err
		}
	}

	if s.tlsCert == "" {
		return nil, nil
	}
	certLoader, err := NewCertLoader(s.tlsCert, s.tlsKey, s.baseLog)
	if err != nil {
		return nil, err
	}
	for _, path := range certLoader.Files() {
		if err := w.Watch(path, func() {
			if err := certLoader.Reload(); err != nil {
				s.baseLog.Error("failed to reload certificate", "error", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	return &tls.Config{
		GetCertificate: certLoader.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}, nil
}

// Run starts the HTTP server and the poll schedule and blocks until the
// context is cancelled. It performs a graceful shutdown when the context is
// done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	if s.watchConfig || s.tlsCert != "" {
		watcher, err := newFileWatcher(s.baseLog)
		if err != nil {
			return err
		}
		tlsConfig, err := s.watchFiles(watcher)
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = tlsConfig
		go watcher.Run(ctx)
	}

	s.baseLog.Info("starting cron triggers",
		"jobs", s.triggers.Jobs(),
		"next_run", s.triggers.NextRun(),
	)
	s.triggers.Start(ctx)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.baseLog.Info("starting server",
			"addr", s.addr,
			"config_path", s.configPath,
			"tls", s.tlsCert != "",
		)
		var err error
		if s.tlsCert != "" {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.baseLog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) reloadFromWatch() {
	if err := s.Reload(); err != nil {
		s.baseLog.Error("failed to reload changed config", "error", err)
	}
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s.baseLog, s))
	mux.Handle("GET /api/activities", handlers.NewActivitiesHandler(s))
	mux.Handle("GET /api/completed", handlers.NewCompletedHandler(s))
	mux.Handle("GET /api/events", handlers.NewEventsHandler(s))

	peakHandler := handlers.NewPeakHandler(s.baseLog, s)
	mux.Handle("GET /api/peak", peakHandler)
	mux.Handle("POST /api/peak", handlers.RequireAPIKey(s.peakAPIKey, peakHandler))
	mux.Handle("POST /api/peak/reset", handlers.RequireAPIKey(s.peakAPIKey, handlers.NewPeakResetHandler(s.baseLog, s)))

	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.baseLog, s))
	mux.Handle("GET /metrics", s.registry.Handler())
}

// peakBackend routes peak store calls to the backend of the current config.
type peakBackend struct {
	s *Server
}

func (b peakBackend) Current(ctx context.Context) (int, error) {
	return b.s.deps.Load().peakStore.Current(ctx)
}

func (b peakBackend) UpdateIfGreater(ctx context.Context, candidate int) (int, error) {
	return b.s.deps.Load().peakStore.UpdateIfGreater(ctx, candidate)
}

func (b peakBackend) Reset(ctx context.Context) (int, error) {
	return b.s.deps.Load().peakStore.Reset(ctx)
}
