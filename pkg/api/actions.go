package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/graphweave/bridge/pkg/models"
)

// completeActionRequest reports the UI-side outcome of applying a patch.
type completeActionRequest struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// actionFeedbackRequest carries free-form UI feedback for the conversation
// that produced a patch.
type actionFeedbackRequest struct {
	CID     string `json:"cid" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (s *Server) pendingActions(c *gin.Context) {
	actions := s.outbox.Pending()
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (s *Server) completeAction(c *gin.Context) {
	var req completeActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	if !s.outbox.Complete(id, req.Success, req.Message) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action " + id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) actionFeedback(c *gin.Context) {
	var req actionFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.chat.Post(models.ChatMessage{
		CID:     req.CID,
		Role:    models.ChatRoleSystem,
		Content: "UI feedback on action " + c.Param("id") + ": " + req.Message,
		Payload: map[string]any{"actionId": c.Param("id")},
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}
