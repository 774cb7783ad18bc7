package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/wireflow/internal/engine"
	"github.com/kode4food/wireflow/pkg/api"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidJSON  = errors.New("invalid JSON")
	ErrDeployFailed = errors.New("deploy failed")
	ErrInjectFailed = errors.New("inject failed")
)

func (s *Server) getFlows(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Flows())
}

func (s *Server) deployFlows(c *gin.Context) {
	typ, err := api.ParseDeploymentType(
		c.GetHeader(api.DeploymentTypeHeader),
	)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var req api.DeployRequest
	if typ != api.DeployReload {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest,
				fmt.Errorf("%w: %w", ErrInvalidJSON, err))
			return
		}
	}

	res, err := s.engine.Deploy(c.Request.Context(), &req, typ)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, engine.ErrRevisionConflict),
		errors.Is(err, engine.ErrDeployInProgress):
		abortWithError(c, http.StatusConflict, err)
	case errors.Is(err, engine.ErrInvalidFlows):
		abortWithError(c, http.StatusBadRequest, err)
	default:
		abortWithError(c, http.StatusInternalServerError,
			fmt.Errorf("%w: %w", ErrDeployFailed, err))
	}
}

func (s *Server) injectNode(c *gin.Context) {
	id := api.NodeID(c.Param("nodeID"))
	err := s.engine.Trigger(c.Request.Context(), id)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, engine.ErrNodeNotFound):
		abortWithError(c, http.StatusNotFound, err)
	case errors.Is(err, engine.ErrNotTriggerable):
		abortWithError(c, http.StatusBadRequest, err)
	default:
		abortWithError(c, http.StatusInternalServerError,
			fmt.Errorf("%w: %w", ErrInjectFailed, err))
	}
}
