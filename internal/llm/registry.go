package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cvinsight/internal/analysis"
	"cvinsight/internal/config"
)

// Registry 保存已启用的 provider 适配器，启动后只读。
type Registry struct {
	adapters map[analysis.Provider]Adapter
}

// NewRegistry 用给定适配器构建注册表；后注册的同名 provider 覆盖先前的。
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[analysis.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Provider()] = a
		}
	}
	return r
}

// Get 返回 provider 对应的适配器；未启用时返回 ProviderUnavailable(reason=not_configured)。
func (r *Registry) Get(p analysis.Provider) (Adapter, error) {
	if !p.Valid() {
		return nil, analysis.UnknownProvider(string(p))
	}
	a, ok := r.adapters[p]
	if !ok {
		e := analysis.ProviderUnavailable(p, nil, "provider %s is not configured", p)
		e.Reason = analysis.ReasonNotConfigured
		return nil, e
	}
	return a, nil
}

// Providers 按固定顺序返回已启用的 provider。
func (r *Registry) Providers() []analysis.Provider {
	out := make([]analysis.Provider, 0, len(r.adapters))
	for _, p := range analysis.Providers() {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// FromConfig 根据配置创建适配器。
// ENABLED_PROVIDERS 中列出但缺少密钥的 provider 会让启动直接失败；
// 未设置 ENABLED_PROVIDERS 时，凡是配置了密钥的 provider 都启用。
func FromConfig(ctx context.Context, cfg config.ProvidersConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	perProvider := map[analysis.Provider]config.ProviderConfig{
		analysis.ProviderA: cfg.A,
		analysis.ProviderB: cfg.B,
		analysis.ProviderC: cfg.C,
	}

	enabled := make(map[analysis.Provider]bool)
	if names := cfg.EnabledList(); len(names) > 0 {
		for _, name := range names {
			p, err := analysis.ParseProvider(name)
			if err != nil {
				return nil, fmt.Errorf("ENABLED_PROVIDERS: %w", err)
			}
			if strings.TrimSpace(perProvider[p].APIKey) == "" {
				return nil, fmt.Errorf("provider %s is enabled but PROVIDER_%s_API_KEY is empty", p, p)
			}
			enabled[p] = true
		}
	} else {
		for p, pc := range perProvider {
			if strings.TrimSpace(pc.APIKey) != "" {
				enabled[p] = true
			}
		}
	}

	adapters := make([]Adapter, 0, len(enabled))
	for _, p := range analysis.Providers() {
		if !enabled[p] {
			continue
		}
		pc := perProvider[p]

		var (
			a   Adapter
			err error
		)
		switch p {
		case analysis.ProviderA:
			a, err = NewOpenAIAdapter(pc.APIKey, pc.Model, pc.BaseURL)
		case analysis.ProviderB:
			a, err = NewGeminiAdapter(ctx, pc.APIKey, pc.Model, pc.BaseURL)
		case analysis.ProviderC:
			a, err = NewAnthropicAdapter(pc.APIKey, pc.Model, pc.BaseURL, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("init provider %s: %w", p, err)
		}

		timeout := cfg.Timeout(pc)
		logger.Info("provider enabled",
			slog.String("provider", string(p)),
			slog.String("service", p.Service()),
			slog.String("model", a.Model()),
			slog.Duration("timeout", timeout),
		)
		adapters = append(adapters, WithGuard(a, timeout, logger))
	}

	if len(adapters) == 0 {
		logger.Warn("no provider configured; every analysis request will fail")
	}
	return NewRegistry(adapters...), nil
}
