package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	poserrors "github.com/issac1998/pos-relay/internal/errors"
	"github.com/issac1998/pos-relay/internal/logging"
)

// Server serves the admin API on its own listener
type Server struct {
	addr     string
	handler  http.Handler
	logger   *logging.Logger
	server   *http.Server
	listener net.Listener
}

// NewRouter builds the admin router with the standard middleware stack
func NewRouter(h *Handler, logger *logging.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	h.RegisterRoutes(router)
	return router
}

func NewServer(addr string, h *Handler, logger *logging.Logger) *Server {
	logger = logger.WithComponent("admin")
	return &Server{
		addr:    addr,
		handler: NewRouter(h, logger),
		logger:  logger,
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return poserrors.Config("failed to listen on "+s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Failure("Admin server stopped", err)
		}
	}()

	s.logger.Info("Admin server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func requestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("Admin request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
				"duration", time.Since(start).String())
		})
	}
}
