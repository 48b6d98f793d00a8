package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAIProvider uses standard OpenAI REST APIs when keys are configured.
type OpenAIProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	model := os.Getenv("DOCCHAT_OPENAI_MODEL")
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		keyName: keyName,
		apiKey:  resolveOpenAIKey(keyName),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	model := "text-embedding-3-small"
	info := ProviderInfo{Name: "openai", Model: model, Key: o.keyName}
	if o.apiKey == "" {
		return nil, info, fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	payload, _ := json.Marshal(map[string]any{"model": model, "input": req.Inputs})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, info, fmt.Errorf("openai embedding request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, info, fmt.Errorf("openai embedding error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode embedding response: %w", err)
	}
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, matchDimension(d.Embedding, req.Dimension))
	}
	return out, info, nil
}

func (o *OpenAIProvider) StreamChat(ctx context.Context, msgs []ChatMessage, p StreamParams, onDelta func(string) error) (StreamResult, ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: o.model, Key: o.keyName}
	if o.apiKey == "" {
		return StreamResult{}, info, fmt.Errorf("openai key missing for alias %q", o.keyName)
	}
	payload, _ := json.Marshal(map[string]any{
		"model":       o.model,
		"messages":    msgs,
		"temperature": p.Temperature,
		"max_tokens":  p.MaxTokens,
		"stream":      true,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return StreamResult{}, info, fmt.Errorf("openai stream request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return StreamResult{}, info, fmt.Errorf("openai stream error %d: %s", resp.StatusCode, string(body))
	}
	res, err := readChatStream(resp.Body, onDelta)
	if err != nil {
		return StreamResult{}, info, fmt.Errorf("read openai stream: %w", err)
	}
	return res, info, nil
}

func resolveOpenAIKey(alias string) string {
	if alias != "" {
		k := os.Getenv("DOCCHAT_OPENAI_KEY_" + strings.ToUpper(alias))
		if k != "" {
			return k
		}
	}
	return os.Getenv("OPENAI_API_KEY")
}
