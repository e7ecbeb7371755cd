// Package server hosts the dashboard HTTP and WebSocket process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comalice/trainscope/boundary"
	"github.com/comalice/trainscope/dashboard"
	"github.com/comalice/trainscope/internal/config"
	"github.com/comalice/trainscope/internal/protocol"
	"github.com/comalice/trainscope/playback"
	"github.com/comalice/trainscope/trajectory"
)

const shutdownTimeout = 5 * time.Second

// Info is served at /api/v1/cache.
type Info struct {
	Mode       string              `json:"mode"`
	Points     int                 `json:"points"`
	Trajectory *trajectory.Summary `json:"trajectory,omitempty"`
}

// Server serves one dataset to any number of dashboards. Each WebSocket
// connection gets its own session; the points and the trajectory cache
// are shared read-only.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	points     trajectory.Points
	cache      *trajectory.Cache
	httpServer *http.Server
}

// New loads the dataset named by cfg and builds the HTTP server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: logger}

	switch {
	case cfg.Trajectory != "":
		cache, err := trajectory.LoadFile(ctx, cfg.Trajectory)
		if err != nil {
			return nil, fmt.Errorf("load trajectory: %w", err)
		}
		s.cache = cache
		s.points = cache.Points
		sum := cache.Summary()
		logger.Info("trajectory loaded", "path", cfg.Trajectory, "points", sum.Points, "steps", sum.Steps, "epochs", sum.Epochs)
	default:
		s.points = trajectory.TwoBlobs(cfg.DemoPoints, cfg.DemoSeed)
		logger.Info("using demo dataset", "points", cfg.DemoPoints, "seed", cfg.DemoSeed)
	}

	mux := protocol.NewHandler(s.openSession, protocol.WithLogger(logger))
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.HandleFunc("/api/v1/cache", s.handleInfo)
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) service() *boundary.Logistic {
	svc := boundary.NewLogistic()
	svc.Iterations = s.cfg.Iterations
	svc.Padding = s.cfg.GridPadding
	svc.Size = s.cfg.GridSize
	return svc
}

// openSession is the protocol.SessionFactory.
func (s *Server) openSession(ctx context.Context, sink dashboard.Sink) (*dashboard.Session, error) {
	opts := []dashboard.Option{
		dashboard.WithSink(sink),
		dashboard.WithLogger(s.logger),
		dashboard.WithThreshold(s.cfg.Threshold),
		dashboard.WithSimplify(s.cfg.Simplify),
		dashboard.WithTickInterval(s.cfg.Interval),
	}
	if s.cfg.SelectMode == config.SelectRecord {
		opts = append(opts, dashboard.WithSelectMode(dashboard.SelectRecord))
	}

	switch s.cfg.Mode {
	case config.ModeExplore:
		opts = append(opts, dashboard.WithService(s.service()))
	case config.ModeReplay:
		opts = append(opts, dashboard.WithReplay(s.cache))
	case config.ModeLive:
		pts := make([]orb.Point, s.points.Len())
		for i := range pts {
			pts[i] = orb.Point{s.points.X[i], s.points.Y[i]}
		}
		src, err := playback.NewGrowing(pts, s.points.Class, s.cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dashboard.WithLive(src, s.service()))
	}
	return dashboard.New(ctx, s.points, opts...)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info := Info{Mode: s.cfg.Mode, Points: s.points.Len()}
	if s.cache != nil {
		sum := s.cache.Summary()
		info.Trajectory = &sum
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(info)
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	s.logger.Info("trainscope listening", "addr", s.cfg.Addr, "mode", s.cfg.Mode)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	s, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	return s.ListenAndServe(ctx)
}
