package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// MockProvider is a deterministic offline stand-in for both embedding and
// generation, used in tests and local development without API keys.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

// StreamChat emits a fixed answer word by word so the streaming path is
// exercised end to end.
func (m *MockProvider) StreamChat(ctx context.Context, msgs []ChatMessage, p StreamParams, onDelta func(string) error) (StreamResult, ProviderInfo, error) {
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	question := ""
	if len(msgs) > 0 {
		question = msgs[len(msgs)-1].Content
	}
	answer := "Based on the provided document context, here is a deterministic mock answer."
	if strings.Contains(strings.ToLower(question), "refund") {
		answer = "The refund policy allows returns within 30 days, per the provided context."
	}

	words := strings.SplitAfter(answer, " ")
	var full strings.Builder
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return StreamResult{}, info, fmt.Errorf("mock stream interrupted: %w", err)
		}
		full.WriteString(w)
		if err := onDelta(w); err != nil {
			return StreamResult{}, info, fmt.Errorf("deliver mock delta: %w", err)
		}
	}
	return StreamResult{Text: full.String(), FinishReason: FinishStop}, info, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251)))
		u := binary.BigEndian.Uint32(h[:4])
		v := float32(u%2000)/1000.0 - 1.0
		vec[i] = v
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / (float64(sum) + 1e-9))
	for i := range v {
		v[i] *= inv
	}
	return v
}
