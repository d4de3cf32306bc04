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

type anthropicAdapter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

func (a *anthropicAdapter) Provider() string { return ProviderAnthropic }
func (a *anthropicAdapter) Model() string    { return a.model }

func (a *anthropicAdapter) Generate(ctx context.Context, req Request) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	payload := map[string]any{
		"model":      a.model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(ProviderAnthropic, resp.StatusCode, raw)
	}

	content := gjson.GetBytes(raw, "content.0.text")
	if !content.Exists() {
		return "", fmt.Errorf("anthropic response has no completion content")
	}
	return content.String(), nil
}
