// Package llm provides chat-completion adapters for the supported model
// vendors behind one interface.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Message is one turn of a conversation passed to an adapter.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a vendor-neutral generation request.
type Request struct {
	Messages    []Message
	System      string
	Temperature float64
	MaxTokens   int
}

// Adapter generates chat completions for one provider/model pair.
type Adapter interface {
	Generate(ctx context.Context, req Request) (string, error)
	Provider() string
	Model() string
}

// Supported provider identifiers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderQwen      = "qwen"
	ProviderDeepSeek  = "deepseek"
)

// DefaultModels maps each provider to the model used when none is given.
var DefaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-sonnet-latest",
	ProviderGemini:    "gemini-1.5-flash",
	ProviderQwen:      "qwen-turbo",
	ProviderDeepSeek:  "deepseek-chat",
}

// ProviderForModel infers the provider from a model name.
func ProviderForModel(model string) (string, error) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3"):
		return ProviderOpenAI, nil
	case strings.Contains(m, "claude"):
		return ProviderAnthropic, nil
	case strings.Contains(m, "gemini"):
		return ProviderGemini, nil
	case strings.Contains(m, "qwen"):
		return ProviderQwen, nil
	case strings.Contains(m, "deepseek"):
		return ProviderDeepSeek, nil
	default:
		return "", fmt.Errorf("cannot infer provider for model %q", model)
	}
}

// New builds an adapter for the given provider. An empty model selects the
// provider's default. A nil client uses a timeout-bounded default.
func New(provider, apiKey, model string, client *http.Client) (Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: api key is not configured", provider)
	}
	if model == "" {
		model = DefaultModels[provider]
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Every(time.Second), 2)

	switch provider {
	case ProviderOpenAI:
		return newOpenAICompatible(provider, "https://api.openai.com/v1", apiKey, model, client, limiter), nil
	case ProviderDeepSeek:
		return newOpenAICompatible(provider, "https://api.deepseek.com/v1", apiKey, model, client, limiter), nil
	case ProviderQwen:
		return newOpenAICompatible(provider, "https://dashscope.aliyuncs.com/compatible-mode/v1", apiKey, model, client, limiter), nil
	case ProviderAnthropic:
		return &anthropicAdapter{apiKey: apiKey, model: model, client: client, limiter: limiter, baseURL: "https://api.anthropic.com"}, nil
	case ProviderGemini:
		return &geminiAdapter{apiKey: apiKey, model: model, client: client, limiter: limiter, baseURL: "https://generativelanguage.googleapis.com"}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}
