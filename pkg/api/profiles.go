package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/graphweave/bridge/pkg/profile"
)

// profileRequest is the write shape: the key arrives plaintext here and is
// obfuscated by the store. Responses never include key material.
type profileRequest struct {
	ID       string         `json:"id"`
	Name     string         `json:"name" binding:"required"`
	Provider string         `json:"provider" binding:"required"`
	Endpoint string         `json:"endpoint"`
	Model    string         `json:"model"`
	APIKey   string         `json:"apiKey"`
	Settings map[string]any `json:"settings"`
}

// profileView is the read shape, with a hasKey flag instead of the key.
type profileView struct {
	profile.Profile
	HasKey bool `json:"hasKey"`
}

func viewOf(p profile.Profile) profileView {
	return profileView{Profile: p, HasKey: p.HasKey()}
}

func (s *Server) listProfiles(c *gin.Context) {
	list, err := s.profiles.ListProfiles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]profileView, 0, len(list))
	for _, p := range list {
		views = append(views, viewOf(p))
	}
	c.JSON(http.StatusOK, gin.H{"profiles": views, "providers": profile.Providers()})
}

func (s *Server) storeProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, err := s.profiles.Store(c.Request.Context(), profile.Profile{
		ID:       req.ID,
		Name:     req.Name,
		Provider: req.Provider,
		Endpoint: req.Endpoint,
		Model:    req.Model,
		Key:      req.APIKey,
		Settings: req.Settings,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(stored))
}

func (s *Server) activeProfile(c *gin.Context) {
	active, err := s.profiles.GetActive(c.Request.Context())
	if errors.Is(err, profile.ErrNoActiveProfile) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active profile"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(*active))
}

func (s *Server) activateProfile(c *gin.Context) {
	err := s.profiles.SetActive(c.Request.Context(), c.Param("id"))
	if errors.Is(err, profile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown profile"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) deleteProfile(c *gin.Context) {
	err := s.profiles.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, profile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown profile"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
