package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/wireflow"
	"github.com/kode4food/wireflow/pkg/api"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

func (s *Server) handleHealth(c *gin.Context) {
	failed := len(s.engine.FailedNodes())
	status := healthOK
	if failed > 0 {
		status = healthDegraded
	}
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: wireflow.Name,
		Version: wireflow.Version,
		Status:  status,
		Rev:     s.engine.Flows().Rev,
		Nodes:   s.engine.NodeCount(),
		Failed:  failed,
	})
}

func (s *Server) listNodeTypes(c *gin.Context) {
	types := s.engine.Registry().Types()
	c.JSON(http.StatusOK, api.NodeTypesResponse{
		Types: types,
		Count: len(types),
	})
}
