package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/graphweave/bridge/pkg/agent"
)

// TurnHandler is the coordinator surface the API depends on.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResult, error)
}

func (s *Server) agentTurn(c *gin.Context) {
	var req agent.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	result, err := s.turns.HandleTurn(c.Request.Context(), req)
	if err != nil {
		status, msg := mapTurnError(err)
		c.JSON(status, gin.H{"success": false, "error": msg})
		return
	}
	c.JSON(http.StatusOK, result)
}

// mapTurnError maps coordinator and provider errors to HTTP responses.
func mapTurnError(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrMissingAPIKey):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, agent.ErrAuth):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, agent.ErrModelNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, agent.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, agent.ErrUpstream):
		return http.StatusBadGateway, err.Error()
	default:
		slog.Error("Unexpected turn error", "error", err)
		return http.StatusInternalServerError, "internal server error"
	}
}
