// Package api exposes the guesser over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/logger"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/transport"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/mutations"
	"github.com/CodeMonkeyCybersecurity/clguess/pkg/smuggling"
)

const version = "0.1.0"

// GuessRequest is the body of POST /api/v1/guess.
type GuessRequest struct {
	Target    string   `json:"target" binding:"required"`
	Request   string   `json:"request"`
	TLS       bool     `json:"tls"`
	Mutations []string `json:"mutations"`
}

// LimiterStats reports on the per-host limiter the guesser sends through.
type LimiterStats interface {
	GetStats() ratelimit.Stats
}

type Server struct {
	guesser *smuggling.Guesser
	catalog *mutations.Catalog
	logger  *logger.Logger
	metrics *Collector
	cfg     config.ServerConfig
	limits  LimiterStats
	router  *gin.Engine
}

func NewServer(guesser *smuggling.Guesser, catalog *mutations.Catalog, cfg config.ServerConfig, log *logger.Logger) *Server {
	s := &Server{
		guesser: guesser,
		catalog: catalog,
		logger:  log.WithComponent("api-server"),
		metrics: NewCollector(),
		cfg:     cfg,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware(s.logger))
	router.Use(ContextLoggerMiddleware(s.logger))
	router.Use(s.metrics.Middleware())

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := router.Group("/api/v1")
	if cfg.APIKey != "" {
		v1.Use(AuthMiddleware(cfg.APIKey, s.logger))
	}
	v1.GET("/mutations", s.listMutations)
	v1.POST("/guess", RateLimitMiddleware(cfg.ClientLimits), s.guess)

	s.router = router
	return s
}

// WithLimiter adds the limiter's statistics to /health.
func (s *Server) WithLimiter(l LimiterStats) *Server {
	s.limits = l
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"healthy":   true,
		"mutations": s.catalog.Len(),
		"timestamp": time.Now().Unix(),
		"version":   version,
	}
	if s.limits != nil {
		body["rate_limit"] = s.limits.GetStats()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listMutations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"count":     s.catalog.Len(),
		"mutations": s.catalog.Names(),
	})
}

func (s *Server) guess(c *gin.Context) {
	var req GuessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target, path, err := transport.ParseTarget(req.Target, req.TLS)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	catalog := s.catalog
	if len(req.Mutations) > 0 {
		catalog, err = catalog.Subset(req.Mutations...)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	base := smuggling.DefaultRequest(transport.HostHeader(target), path)
	if req.Request != "" {
		base = smuggling.NormalizeRequest([]byte(req.Request))
	}

	ctx := c.Request.Context()
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	log := logger.FromContext(ctx).WithTarget(transport.HostHeader(target))
	start := time.Now()

	done := s.metrics.guessStarted()
	report, err := s.guesser.GuessMutations(ctx, base, target, catalog)
	done(report, err)
	if err != nil {
		log.LogError(ctx, err, "api.guess")
		status := http.StatusBadGateway
		if errors.Is(err, smuggling.ErrMalformedMessage) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error(), "report": report})
		return
	}

	log.LogDuration(ctx, "api.guess", start,
		"mutations", catalog.Len(),
		"confirmed", len(report.Confirmed),
	)
	c.JSON(http.StatusOK, report)
}
