package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"cvinsight/internal/analysis"
)

const defaultOpenAIModel = "gpt-4o"

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAdapter 对应 provider A（OpenAI Chat Completions）。
type OpenAIAdapter struct {
	client chatCompleter
	model  string
}

// NewOpenAIAdapter 创建 provider A 的适配器；baseURL 为空时使用官方地址。
func NewOpenAIAdapter(apiKey, model, baseURL string) (*OpenAIAdapter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("provider A api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (a *OpenAIAdapter) Provider() analysis.Provider { return analysis.ProviderA }

func (a *OpenAIAdapter) Model() string { return a.model }

func (a *OpenAIAdapter) Invoke(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: Temperature,
		MaxTokens:   MaxOutputTokens,
		N:           1,
	})
	if err != nil {
		return "", classify(analysis.ProviderA, err)
	}
	if len(resp.Choices) == 0 {
		return "", analysis.ProviderUnavailable(analysis.ProviderA, nil, "provider returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", analysis.ProviderRefused(analysis.ProviderA, analysis.ReasonPolicy, nil, "reply withheld by content filter")
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", analysis.ProviderUnavailable(analysis.ProviderA, nil, "provider returned empty reply")
	}
	return choice.Message.Content, nil
}
