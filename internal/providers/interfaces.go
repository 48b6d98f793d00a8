package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamParams are explicit generation settings; there are no implicit
// provider-side defaults in the chat path.
type StreamParams struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishError  = "error"
)

// StreamResult is delivered exactly once per successful stream, after the
// last delta. Text equals the concatenation of every delta passed to onDelta.
type StreamResult struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type EmbedRequest struct {
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

// StreamingLLMProvider streams a chat completion. onDelta is invoked for
// each text increment in arrival order. A failure before the first delta
// is reported synchronously with no deltas delivered; a mid-stream failure
// returns an error and the result must be discarded.
type StreamingLLMProvider interface {
	StreamChat(ctx context.Context, msgs []ChatMessage, p StreamParams, onDelta func(delta string) error) (StreamResult, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}
