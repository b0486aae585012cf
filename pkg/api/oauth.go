package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

const githubTokenURL = "https://github.com/login/oauth/access_token"

type githubOAuthRequest struct {
	Code string `json:"code" binding:"required"`
}

// githubOAuth exchanges an OAuth code for an access token. Only registered
// when both client id and secret are configured; the secret never reaches
// the browser.
func (s *Server) githubOAuth(c *gin.Context) {
	var req githubOAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	form := url.Values{
		"client_id":     {s.cfg.GitHub.ClientID},
		"client_secret": {s.cfg.GitHub.ClientSecret},
		"code":          {req.Code},
	}
	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost,
		s.githubTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed: " + err.Error()})
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed: " + err.Error()})
		return
	}

	var parsed struct {
		AccessToken      string `json:"access_token"`
		TokenType        string `json:"token_type"`
		Scope            string `json:"scope"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusBadGateway, gin.H{"error": "unexpected token exchange response"})
		return
	}
	if parsed.Error != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": parsed.Error, "description": parsed.ErrorDescription})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": parsed.AccessToken,
		"tokenType":   parsed.TokenType,
		"scope":       parsed.Scope,
	})
}
