package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/penguintechinc/waddlebot-core/pkg/auth"
	"github.com/penguintechinc/waddlebot-core/pkg/masking"
	"github.com/penguintechinc/waddlebot-core/pkg/router"
	"github.com/penguintechinc/waddlebot-core/pkg/streambus"
	"github.com/penguintechinc/waddlebot-core/pkg/version"
)

// Server is the HTTP boundary described by spec.md §6.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	router   *router.Router
	registry *router.Registry
	bus      streambus.Bus
	verifier *auth.Verifier
	masker   *masking.Service
}

// NewServer wires the gin engine and registers every route behind the
// fixed parse → authenticate → authorize → validate → handle → serialize
// → log pipeline.
func NewServer(rt *router.Router, registry *router.Registry, bus streambus.Bus, verifier *auth.Verifier) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		engine:   engine,
		router:   rt,
		registry: registry,
		bus:      bus,
		verifier: verifier,
		masker:   masking.NewService(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	authenticated := s.engine.Group("/")
	authenticated.Use(auth.Middleware(s.verifier))
	authenticated.POST("/events", s.handleEvents)
	authenticated.POST("/responses", s.handleResponses)
	authenticated.GET("/commands", s.handleCommands)
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Engine exposes the underlying gin engine for tests (httptest.NewServer
// or ServeHTTP directly).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version.Full(),
	})
}

// requestLogger logs method, path, status, and latency for every request,
// the "log" stage at the end of the fixed middleware pipeline (spec.md
// §9).
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// newRequestID generates a correlation id for inbound events that arrive
// without a session id.
func newRequestID() string {
	return uuid.New().String()
}
