package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphweave/bridge/pkg/agent"
	"github.com/graphweave/bridge/pkg/models"
	"github.com/graphweave/bridge/pkg/profile"
)

func TestAgentTurnSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.turns.result = &agent.TurnResult{
		Success: true,
		GoalID:  "goal-1",
		CID:     "cid-1",
		ToolCalls: []models.ToolCall{
			{Tool: "create_graph", Args: []byte(`{"name":"Cities"}`)},
		},
	}

	w := ts.do(t, http.MethodPost, "/api/v1/agent/turn",
		agent.TurnRequest{Message: "make a cities graph", APIKey: "sk-test"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "goal-1", body["goalId"])
	assert.Equal(t, "cid-1", body["cid"])
}

func TestAgentTurnRequiresMessage(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/agent/turn", agent.TurnRequest{APIKey: "sk"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgentTurnErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing key", agent.ErrMissingAPIKey, http.StatusUnauthorized},
		{"bad key", agent.ErrAuth, http.StatusUnauthorized},
		{"unknown model", agent.ErrModelNotFound, http.StatusNotFound},
		{"throttled", agent.ErrRateLimited, http.StatusTooManyRequests},
		{"provider down", agent.ErrUpstream, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.turns.err = tt.err

			w := ts.do(t, http.MethodPost, "/api/v1/agent/turn",
				agent.TurnRequest{Message: "hello"})
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, false, decode(t, w)["success"])
		})
	}
}

func TestProfilesLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/profiles", profileRequest{
		Name:     "Work",
		Provider: "openai",
		APIKey:   "sk-secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	created := decode(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, created["hasKey"])
	assert.NotContains(t, w.Body.String(), "sk-secret", "key material never leaves the store")

	w = ts.do(t, http.MethodGet, "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	profiles, ok := body["profiles"].([]any)
	require.True(t, ok)
	assert.Len(t, profiles, 1)
	assert.Contains(t, body, "providers")

	w = ts.do(t, http.MethodGet, "/api/v1/profiles/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = ts.do(t, http.MethodPost, "/api/v1/profiles/missing/activate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/v1/profiles/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/profiles/active", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActiveProfileFeedsCoordinator(t *testing.T) {
	ts := newTestServer(t)

	_, err := ts.profiles.Store(context.Background(), profile.Profile{
		Name:     "Local",
		Provider: "ollama",
	})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/v1/profiles/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "llama3.1", decode(t, w)["model"])
}

func TestOAuthRouteAbsentWithoutCredentials(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/oauth/github", githubOAuthRequest{Code: "abc"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOAuthCodeExchange(t *testing.T) {
	exchange := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.FormValue("client_id"))
		assert.Equal(t, "client-secret", r.FormValue("client_secret"))
		assert.Equal(t, "good-code", r.FormValue("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_token","token_type":"bearer","scope":"repo"}`))
	}))
	defer exchange.Close()

	ts := newTestServer(t)
	ts.cfg.GitHub.ClientID = "client-id"
	ts.cfg.GitHub.ClientSecret = "client-secret"
	ts.githubTokenURL = exchange.URL
	ts.router = ts.Router()

	w := ts.do(t, http.MethodPost, "/api/v1/oauth/github", githubOAuthRequest{Code: "good-code"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gho_token", decode(t, w)["accessToken"])
}

func TestOAuthProviderErrorSurfaces(t *testing.T) {
	exchange := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code is incorrect."}`))
	}))
	defer exchange.Close()

	ts := newTestServer(t)
	ts.cfg.GitHub.ClientID = "client-id"
	ts.cfg.GitHub.ClientSecret = "client-secret"
	ts.githubTokenURL = exchange.URL
	ts.router = ts.Router()

	w := ts.do(t, http.MethodPost, "/api/v1/oauth/github", githubOAuthRequest{Code: "stale"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_verification_code", decode(t, w)["error"])
}
