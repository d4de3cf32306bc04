package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

type geminiAdapter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

func (a *geminiAdapter) Provider() string { return ProviderGemini }
func (a *geminiAdapter) Model() string    { return a.model }

func (a *geminiAdapter) Generate(ctx context.Context, req Request) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	contents := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		// Gemini uses "model" where the others use "assistant".
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]string{{"text": m.Content}},
		})
	}

	payload := map[string]any{"contents": contents}
	if req.System != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]string{{"text": req.System}},
		}
	}
	genCfg := map[string]any{}
	if req.Temperature > 0 {
		genCfg["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		genCfg["maxOutputTokens"] = req.MaxTokens
	}
	if len(genCfg) > 0 {
		payload["generationConfig"] = genCfg
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		a.baseURL, url.PathEscape(a.model), url.QueryEscape(a.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(ProviderGemini, resp.StatusCode, raw)
	}

	content := gjson.GetBytes(raw, "candidates.0.content.parts.0.text")
	if !content.Exists() {
		return "", fmt.Errorf("gemini response has no completion content")
	}
	return content.String(), nil
}
