// Package agent hosts the coordinator for one user turn and the HTTP
// chat-completions client it plans with.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel errors mapped from provider status codes. The API layer turns
// these into user-visible responses.
var (
	// ErrAuth indicates the provider rejected the API key.
	ErrAuth = errors.New("provider rejected the API key")

	// ErrModelNotFound indicates the configured model does not exist at the
	// provider.
	ErrModelNotFound = errors.New("model not found")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("provider rate limit reached")

	// ErrUpstream indicates a transient provider-side failure.
	ErrUpstream = errors.New("provider unavailable")
)

// Message is one chat-completions message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is the provider's request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// PlanRequest is one planning call.
type PlanRequest struct {
	Endpoint    string
	APIKey      string
	Model       string
	Messages    []Message
	Tools       []map[string]any
	MaxTokens   int
	Temperature float64
}

// PlanResult is the parsed provider answer: prose, tool calls, or both.
type PlanResult struct {
	Content   string
	ToolCalls []ToolCall
}

// LLM plans a turn. Implemented by the HTTP client and by test fakes.
type LLM interface {
	Plan(ctx context.Context, req PlanRequest) (*PlanResult, error)
}

// HTTPClient speaks the chat-completions contract: POST, bearer auth, JSON
// body with model, messages, and optional tools.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient builds the provider client.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: 120 * time.Second}}
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Plan implements LLM.
func (c *HTTPClient) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if len(req.Tools) > 0 {
		body.ToolChoice = "auto"
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint,
		bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, req.Model, raw); err != nil {
		return nil, err
	}
	return parsePlan(raw)
}

// classifyStatus maps provider status codes onto the sentinel errors.
func classifyStatus(status int, model string, raw []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, providerMessage(raw))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %q is not available at this endpoint, check the profile's model name", ErrModelNotFound, model)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, providerMessage(raw))
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrUpstream, status)
	default:
		return fmt.Errorf("unexpected provider status %d: %s", status, providerMessage(raw))
	}
}

func providerMessage(raw []byte) string {
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != nil {
		return parsed.Error.Message
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}

func parsePlan(raw []byte) (*PlanResult, error) {
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("chat response carries no choices")
	}

	msg := parsed.Choices[0].Message
	result := &PlanResult{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	return result, nil
}
