package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"cvinsight/internal/analysis"
)

const defaultGeminiModel = "gemini-2.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAdapter 对应 provider B（Google Gemini API）。
type GeminiAdapter struct {
	models contentGenerator
	model  string
}

// NewGeminiAdapter 创建 provider B 的适配器。
func NewGeminiAdapter(ctx context.Context, apiKey, model, baseURL string) (*GeminiAdapter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("provider B api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultGeminiModel
	}
	return &GeminiAdapter{models: client.Models, model: model}, nil
}

func (a *GeminiAdapter) Provider() analysis.Provider { return analysis.ProviderB }

func (a *GeminiAdapter) Model() string { return a.model }

func (a *GeminiAdapter) Invoke(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](Temperature),
		MaxOutputTokens:   MaxOutputTokens,
		CandidateCount:    1,
	}

	resp, err := a.models.GenerateContent(ctx, a.model, genai.Text(user), config)
	if err != nil {
		return "", classify(analysis.ProviderB, err)
	}
	if resp == nil {
		return "", analysis.ProviderUnavailable(analysis.ProviderB, nil, "provider returned no response")
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", analysis.ProviderRefused(analysis.ProviderB, analysis.ReasonPolicy, nil,
			"prompt blocked: %s %s", fb.BlockReason, fb.BlockReasonMessage)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		switch candidate.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
			return "", analysis.ProviderRefused(analysis.ProviderB, analysis.ReasonPolicy, nil,
				"reply blocked: %s", candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
		// 只请求了一个候选。
		break
	}

	output := builder.String()
	if strings.TrimSpace(output) == "" {
		return "", analysis.ProviderUnavailable(analysis.ProviderB, nil, "provider returned empty reply")
	}
	return output, nil
}
