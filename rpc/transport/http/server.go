package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("transport/http")

const readHeaderTimeout = 5 * time.Second

// Server runs an http.Handler until it is shut down
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server for handler on endpoint. Requests are logged on debug level.
func NewServer(endpoint string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              endpoint,
			Handler:           LoggerMiddleware(handler),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Listen binds the endpoint. It is split from Serve so callers learn about a taken
// port before the server goroutine starts.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr returns the bound address (useful with port 0)
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}

// Serve blocks until the server is shut down. It listens first if Listen was not called.
// A graceful shutdown is not an error.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	log.Infof("Starting HTTP server on %s", s.Addr())
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error {
	log.Infof("Stopping HTTP server on %s", s.Addr())
	return s.srv.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggerMiddleware is a middleware that logs HTTP requests on debug level
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		log.Debugf("%s %s => %d took %s", r.Method, r.URL.RequestURI(), rw.statusCode, time.Since(start))
	})
}
