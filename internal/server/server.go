package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/phenowatch/phenowatch/internal/alerts"
	"github.com/phenowatch/phenowatch/internal/api"
	"github.com/phenowatch/phenowatch/internal/auth"
	"github.com/phenowatch/phenowatch/internal/cache"
	"github.com/phenowatch/phenowatch/internal/compute"
	"github.com/phenowatch/phenowatch/internal/config"
	"github.com/phenowatch/phenowatch/internal/metrics"
	"github.com/phenowatch/phenowatch/internal/pipeline"
	"github.com/phenowatch/phenowatch/internal/render"
	"github.com/phenowatch/phenowatch/internal/ws"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "phenowatch"

const shutdownTimeout = 10 * time.Second

// Server owns the listeners and the refresh state shared by every surface.
type Server struct {
	cfg      config.ServerConfig
	interval time.Duration
	pipeline *pipeline.Pipeline
	cache    *cache.Cache
	alerts   *alerts.Engine
	digest   *alerts.Digest
	watch    string

	hub    *ws.Hub
	health *health.Server

	mu      sync.RWMutex
	latest  *compute.Report
	lastErr error
}

// Options are the collaborators of a Server. Cache, Alerts and Digest may be
// nil.
type Options struct {
	Pipeline *pipeline.Pipeline
	Cache    *cache.Cache
	Alerts   *alerts.Engine
	Digest   *alerts.Digest

	// RefreshInterval is how often the source is polled. Zero disables
	// polling.
	RefreshInterval time.Duration

	// WatchPath, when set, is a local source file whose changes trigger an
	// immediate refresh.
	WatchPath string
}

// New creates a Server. It does not listen until Run is called.
func New(cfg config.ServerConfig, opts Options) *Server {
	s := &Server{
		cfg:      cfg,
		interval: opts.RefreshInterval,
		pipeline: opts.Pipeline,
		cache:    opts.Cache,
		alerts:   opts.Alerts,
		digest:   opts.Digest,
		watch:    opts.WatchPath,
		health:   health.NewServer(),
	}
	s.hub = ws.New(s.buildDocument, cfg.BroadcastInterval)
	s.setServing(false)
	return s
}

// Handler returns the combined HTTP handler: API, WebSocket stream, metrics
// and, when configured, the static UI.
func (s *Server) Handler() http.Handler {
	protect := auth.APIKeyMiddleware(s.cfg.Auth.Mode, s.cfg.Auth.EffectiveHeader(), s.cfg.Auth.Key())

	var notes api.Notifications
	if s.alerts != nil {
		notes = s.alerts
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", protect(api.New(s.pipeline, notes)))
	mux.Handle("/ws/stream", protect(s.hub))
	mux.Handle("/metrics", protect(metrics.Handler(s.snapshot)))
	if s.cfg.UIDir != "" {
		mux.Handle("/", spaHandler(s.cfg.UIDir))
	}
	return mux
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *ws.Hub { return s.hub }

// Refresh runs the pipeline once, hands a fresh report to the alert engine,
// updates the gRPC health status and wakes the WebSocket hub.
func (s *Server) Refresh(ctx context.Context) {
	rep, err := s.pipeline.Run(ctx)

	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.latest = rep
	}
	s.mu.Unlock()

	s.setServing(err == nil)
	defer s.hub.Notify()
	if err != nil {
		return
	}
	if s.alerts == nil {
		return
	}
	fresh, err := s.alerts.Evaluate(ctx, rep)
	if err != nil {
		ctxlog.From(ctx).Error("evaluate alerts", "err", err)
		return
	}
	if len(fresh) > 0 {
		ctxlog.From(ctx).Info("new alerts", "count", len(fresh), "source", rep.Source)
	}
}

// Run starts every listener and background loop and blocks until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	logger := ctxlog.From(ctx)

	var grpcSrv *grpc.Server
	if s.cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.GRPCPort))
		if err != nil {
			return goerr.Wrap(err, "listen on grpc port", goerr.V("port", s.cfg.GRPCPort))
		}
		interceptor := auth.APIKeyInterceptor(s.cfg.Auth.Mode, s.cfg.Auth.EffectiveHeader(), s.cfg.Auth.Key())
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(interceptor))
		healthpb.RegisterHealthServer(grpcSrv, s.health)
		go func() {
			logger.Info("grpc health listening", "port", s.cfg.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server stopped", "err", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		if grpcSrv != nil {
			grpcSrv.Stop()
		}
		return goerr.Wrap(err, "listen on http address", goerr.V("addr", s.cfg.HTTPAddr))
	}
	httpSrv := &http.Server{
		Handler:           api.LoggingMiddleware(ctx)(s.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("http server listening", "addr", lis.Addr().String())
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "err", err)
		}
	}()

	s.Refresh(ctx)
	go s.hub.Run(ctx)
	go s.poll(ctx)
	if s.cache != nil {
		go s.cache.Run(ctx)
		if s.watch != "" {
			go func() {
				if err := s.cache.Watch(ctx, s.watch, func() { s.Refresh(ctx) }); err != nil {
					logger.Error("source watcher stopped", "path", s.watch, "err", err)
				}
			}()
		}
	}
	if s.digest != nil {
		go s.digest.Run(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	s.health.Shutdown()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "shutdown http server")
	}
	if s.alerts != nil {
		s.alerts.Wait()
	}
	return nil
}

func (s *Server) poll(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

// buildDocument is the hub's payload: the latest report, or the error of the
// last refresh.
func (s *Server) buildDocument(_ context.Context) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastErr != nil {
		return nil, s.lastErr
	}
	if s.latest == nil {
		return nil, goerr.New("no report yet")
	}
	return render.NewDocument(s.latest), nil
}

func (s *Server) snapshot(_ context.Context) metrics.Snapshot {
	s.mu.RLock()
	rep := s.latest
	s.mu.RUnlock()

	snap := metrics.Snapshot{
		Report:    rep,
		Status:    s.pipeline.Status(),
		WSClients: s.hub.Count(),
	}
	if s.cache != nil {
		snap.Cache = s.cache.Stats()
	}
	return snap
}

func (s *Server) setServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// spaHandler serves files from dir and falls back to index.html for any path
// that does not exist, so client-side routes resolve.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}
