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

// GroqProvider streams chat completions via Groq's OpenAI-compatible API.
type GroqProvider struct {
	keyName string
	apiKey  string
	model   string
	client  *http.Client
}

func NewGroqProvider(keyName string) *GroqProvider {
	model := os.Getenv("DOCCHAT_GROQ_MODEL")
	if strings.TrimSpace(model) == "" {
		model = "llama-3.1-8b-instant"
	}
	return &GroqProvider{
		keyName: keyName,
		apiKey:  resolveGroqKey(keyName),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *GroqProvider) StreamChat(ctx context.Context, msgs []ChatMessage, p StreamParams, onDelta func(string) error) (StreamResult, ProviderInfo, error) {
	info := ProviderInfo{Name: "groq", Key: g.keyName, Model: g.model}
	if g.apiKey == "" {
		return StreamResult{}, info, fmt.Errorf("groq key missing for alias %q", g.keyName)
	}
	payload, _ := json.Marshal(map[string]any{
		"model":       g.model,
		"messages":    msgs,
		"temperature": p.Temperature,
		"max_tokens":  p.MaxTokens,
		"stream":      true,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.groq.com/openai/v1/chat/completions", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return StreamResult{}, info, fmt.Errorf("groq stream request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return StreamResult{}, info, fmt.Errorf("groq stream error %d: %s", resp.StatusCode, string(body))
	}
	res, err := readChatStream(resp.Body, onDelta)
	if err != nil {
		return StreamResult{}, info, fmt.Errorf("read groq stream: %w", err)
	}
	return res, info, nil
}

func resolveGroqKey(alias string) string {
	if alias != "" {
		if v := os.Getenv("DOCCHAT_GROQ_KEY_" + strings.ToUpper(alias)); v != "" {
			return v
		}
	}
	return os.Getenv("GROQ_API_KEY")
}
