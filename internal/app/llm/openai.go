package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// openAICompatible speaks the /chat/completions wire format shared by
// OpenAI, DeepSeek and Qwen's compatible endpoint.
type openAICompatible struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
	limiter  *rate.Limiter
}

func newOpenAICompatible(provider, baseURL, apiKey, model string, client *http.Client, limiter *rate.Limiter) *openAICompatible {
	return &openAICompatible{
		provider: provider,
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		client:   client,
		limiter:  limiter,
	}
}

func (a *openAICompatible) Provider() string { return a.provider }
func (a *openAICompatible) Model() string    { return a.model }

func (a *openAICompatible) Generate(ctx context.Context, req Request) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	messages := make([]map[string]string, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]any{
		"model":    a.model,
		"messages": messages,
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", a.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", a.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(a.provider, resp.StatusCode, raw)
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("%s response has no completion content", a.provider)
	}
	return content.String(), nil
}

// apiError extracts the vendor's error message when present, falling back to
// the raw body.
func apiError(provider string, status int, raw []byte) error {
	msg := gjson.GetBytes(raw, "error.message").String()
	if msg == "" {
		msg = string(raw)
	}
	return fmt.Errorf("%s api returned %d: %s", provider, status, msg)
}
