package http

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/alphaloop/internal/explain"
	"github.com/sawpanic/alphaloop/internal/fastexpr"
	"github.com/sawpanic/alphaloop/internal/gates"
	"github.com/sawpanic/alphaloop/internal/metrics"
	"github.com/sawpanic/alphaloop/internal/persistence"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

// DefaultServerConfig listens on localhost; HTTP_PORT overrides the port.
func DefaultServerConfig() ServerConfig {
	port := 8080
	if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           port,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   4 << 20,
	}
}

// Dependencies are the services the handlers call.
type Dependencies struct {
	Gates          gates.Config
	ReversalWindow explain.Window
	Normalizer     *fastexpr.Normalizer
	Metrics        *metrics.Registry
	// Storage is probed by /health when set.
	Storage persistence.RepositoryHealth
}

// Server is the evaluation HTTP API.
type Server struct {
	router *mux.Router
	server *http.Server
	config ServerConfig
	deps   Dependencies
}

// NewServer wires routes for deps.
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if deps.Normalizer == nil {
		deps.Normalizer = fastexpr.NewNormalizer()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.ReversalWindow == "" {
		deps.ReversalWindow = explain.WindowInSample
	}

	s := &Server{router: mux.NewRouter(), config: config, deps: deps}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/evaluate", s.evaluate).Methods(http.MethodPost)
	api.HandleFunc("/normalize", s.normalize).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(notFound)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.Address()).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Address returns host:port.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// RequestID returns the ID assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
