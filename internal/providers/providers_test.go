package providers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("groq|openai:backup| ollama ")
	require.Len(t, refs, 3)
	require.Equal(t, ProviderRef{Raw: "groq", Name: "groq"}, refs[0])
	require.Equal(t, ProviderRef{Raw: "openai:backup", Name: "openai", KeyAlias: "backup"}, refs[1])
	require.Equal(t, "ollama", refs[2].Name)
}

func TestParseProviderListEmptyFallsBackToMock(t *testing.T) {
	for _, raw := range []string{"", "  ", "||"} {
		refs := ParseProviderList(raw)
		require.Len(t, refs, 1, "input %q", raw)
		require.Equal(t, "mock", refs[0].Name, "input %q", raw)
	}
}

func TestMockStreamChatConcatenates(t *testing.T) {
	m := NewMockProvider(8)
	msgs := []ChatMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "What is the refund policy?"},
	}

	var got strings.Builder
	res, info, err := m.StreamChat(context.Background(), msgs, StreamParams{}, func(d string) error {
		got.WriteString(d)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "mock", info.Name)
	require.Equal(t, FinishStop, res.FinishReason)
	require.Equal(t, res.Text, got.String())
	require.Contains(t, res.Text, "refund")
}

func TestMockEmbedDeterministic(t *testing.T) {
	m := NewMockProvider(16)
	a, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"hello"}})
	require.NoError(t, err)
	b, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"hello"}})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a[0], 16)
}

func TestReadChatStream(t *testing.T) {
	body := strings.NewReader(strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hello "}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"world"}}]}`,
		`data: not json, skipped`,
		`data: {"choices":[{"delta":{},"finish_reason":"length"}]}`,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"after done, ignored"}}]}`,
	}, "\n"))

	var deltas []string
	res, err := readChatStream(body, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hello ", "world"}, deltas)
	require.Equal(t, "Hello world", res.Text)
	require.Equal(t, FinishLength, res.FinishReason)
}

func TestNormalizeFinishReason(t *testing.T) {
	require.Equal(t, FinishStop, normalizeFinishReason("stop"))
	require.Equal(t, FinishStop, normalizeFinishReason("end_turn"))
	require.Equal(t, FinishLength, normalizeFinishReason("max_tokens"))
	require.Equal(t, FinishStop, normalizeFinishReason("something-new"))
}

func TestManagerDefaultsToMock(t *testing.T) {
	pm, err := NewManager("", "", 8)
	require.NoError(t, err)
	require.NotNil(t, pm.FirstLLMProvider())
	order := pm.PreferredEmbedOrder()
	require.NotEmpty(t, order)
}
