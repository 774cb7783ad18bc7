package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/internal/events"
	"github.com/kode4food/wireflow/pkg/api"
	"github.com/kode4food/wireflow/pkg/util"
)

// Server implements the admin HTTP API
type Server struct {
	engine   *engine.Engine
	hub      *events.Hub
	token    string
	gatherer prometheus.Gatherer
	sockets  util.Set[*Client]
	mu       sync.Mutex
}

const (
	bearerPrefix     = "Bearer "
	accessTokenParam = "access_token"
)

// NewServer creates the admin API for eng. A non-empty token is required
// as a bearer credential on every route except health and metrics
func NewServer(
	eng *engine.Engine, token string, gatherer prometheus.Gatherer,
) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		engine:   eng,
		hub:      eng.Hub(),
		token:    token,
		gatherer: gatherer,
		sockets:  util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(*gin.Context, *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization, "+api.DeploymentTypeHeader,
		)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
	))

	admin := router.Group("/", s.authorize)
	{
		admin.GET("/flows", s.getFlows)
		admin.POST("/flows", s.deployFlows)
		admin.POST("/inject/:nodeID", s.injectNode)
		admin.GET("/nodes", s.listNodeTypes)
		admin.GET("/comms", s.handleWebSocket)
	}

	return router
}

func (s *Server) authorize(c *gin.Context) {
	if s.token == "" {
		c.Next()
		return
	}
	given := c.Query(accessTokenParam)
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		given = strings.TrimPrefix(h, bearerPrefix)
	}
	if given != s.token {
		abortWithError(c, http.StatusUnauthorized, ErrUnauthorized)
		return
	}
	c.Next()
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{
		Error:  err.Error(),
		Status: status,
	})
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := s.sockets.Items()
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
