package analysis

import "strings"

// Provider 标识一个 LLM 服务，闭集三种。
type Provider string

const (
	ProviderA Provider = "A"
	ProviderB Provider = "B"
	ProviderC Provider = "C"
)

var providerOrder = []Provider{ProviderA, ProviderB, ProviderC}

var providerAliases = map[string]Provider{
	"a":         ProviderA,
	"openai":    ProviderA,
	"b":         ProviderB,
	"gemini":    ProviderB,
	"c":         ProviderC,
	"anthropic": ProviderC,
	"claude":    ProviderC,
}

var providerServices = map[Provider]string{
	ProviderA: "openai",
	ProviderB: "gemini",
	ProviderC: "anthropic",
}

// Providers 按固定顺序返回全部 Provider。
func Providers() []Provider {
	out := make([]Provider, len(providerOrder))
	copy(out, providerOrder)
	return out
}

// ParseProvider 接受线上取值（A/B/C）以及服务别名（openai/gemini/anthropic）。
func ParseProvider(raw string) (Provider, error) {
	p, ok := providerAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", UnknownProvider(raw)
	}
	return p, nil
}

func (p Provider) Valid() bool {
	_, ok := providerServices[p]
	return ok
}

// Service 返回 Provider 背后的服务名，用于日志与指标。
func (p Provider) Service() string {
	return providerServices[p]
}

func (p Provider) String() string { return string(p) }
