package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwell-ai/inkwell/backend/chat"
	"github.com/inkwell-ai/inkwell/backend/composer"
	"github.com/inkwell-ai/inkwell/backend/embed"
)

// ServerOptions carries the collaborators the HTTP surface exposes.
type ServerOptions struct {
	Driver   *chat.Driver
	Composer *composer.Composer
	Embed    *embed.Service
	Metrics  *prometheus.Registry
	Logger   *slog.Logger
}

type Server struct {
	mux    *http.ServeMux
	server *http.Server
	addr   string
	logger *slog.Logger

	driver   *chat.Driver
	composer *composer.Composer
	embed    *embed.Service
}

func NewServer(addr string, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:      http.NewServeMux(),
		addr:     addr,
		logger:   logger,
		driver:   opts.Driver,
		composer: opts.Composer,
		embed:    opts.Embed,
	}

	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/composer", s.handleComposer)
	s.mux.HandleFunc("POST /api/embed", s.handleEmbed)
	s.mux.HandleFunc("POST /api/log-client-error", s.handleLogClientError)
	s.mux.HandleFunc("POST /api/logs/client", s.handleClientLogs)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}

	return s
}

// Handler returns the full middleware-wrapped handler, exposed for
// httptest servers.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.logger, s.mux)
}

func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api server listening", "addr", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
