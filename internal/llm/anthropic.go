package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cvinsight/internal/analysis"
)

const (
	defaultAnthropicModel   = "claude-sonnet-4-20250514"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicAdapter 对应 provider C（Anthropic Messages API）。
type AnthropicAdapter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicAdapter 创建 provider C 的适配器。超时由调用方的 context 控制。
func NewAnthropicAdapter(apiKey, model, baseURL string, httpClient *http.Client) (*AnthropicAdapter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("provider C api key is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultAnthropicModel
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AnthropicAdapter{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

func (a *AnthropicAdapter) Provider() analysis.Provider { return analysis.ProviderC }

func (a *AnthropicAdapter) Model() string { return a.model }

type messagesRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	System      string            `json:"system,omitempty"`
	Messages    []messagesMessage `json:"messages"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type messagesErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// httpStatusError 表示非 2xx 的 HTTP 响应。
type httpStatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *httpStatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (a *AnthropicAdapter) Invoke(ctx context.Context, system, user string) (string, error) {
	raw, err := a.doOnce(ctx, messagesRequest{
		Model:       a.model,
		MaxTokens:   MaxOutputTokens,
		Temperature: Temperature,
		System:      system,
		Messages:    []messagesMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", classify(analysis.ProviderC, err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", analysis.ProviderUnavailable(analysis.ProviderC, err, "decode messages response")
	}
	if resp.StopReason == "refusal" {
		return "", analysis.ProviderRefused(analysis.ProviderC, analysis.ReasonPolicy, nil, "model refused the request")
	}

	var builder strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	output := builder.String()
	if strings.TrimSpace(output) == "" {
		return "", analysis.ProviderUnavailable(analysis.ProviderC, nil, "provider returned empty reply")
	}
	return output, nil
}

func (a *AnthropicAdapter) doOnce(ctx context.Context, body messagesRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", &buf)
	if err != nil {
		return nil, fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &httpStatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var parsed messagesErrorBody
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
			statusErr.Type = parsed.Error.Type
			statusErr.Message = parsed.Error.Message
		}
		return nil, statusErr
	}
	return raw, nil
}
