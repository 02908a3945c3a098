package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apphttp "treatment-review/internal/common/http"
	"treatment-review/internal/conversation"
)

// OpenAIConfig configures the chat completions transport.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	JSONMode    bool
}

// OpenAI calls an OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	cfg  OpenAIConfig
	http *apphttp.Client
}

func NewOpenAI(cfg OpenAIConfig, httpClient *apphttp.Client) *OpenAI {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{cfg: cfg, http: httpClient}
}

// Model returns the configured model name.
func (c *OpenAI) Model() string { return c.cfg.Model }

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []conversation.Message `json:"messages"`
	Temperature    float64                `json:"temperature"`
	ResponseFormat *responseFormat        `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAI) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
	}
	if c.cfg.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	resp, err := c.http.PostJSON(ctx, c.cfg.BaseURL+"/chat/completions", headers, req)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
		var er errorResponse
		if json.Unmarshal(resp.Body, &er) == nil && er.Error.Message != "" {
			apiErr.Message = er.Error.Message
			apiErr.Type = er.Error.Type
		}
		return "", apiErr
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return out.Choices[0].Message.Content, nil
}
