package chat

import (
	"fmt"
	"strings"

	"docchat/internal/models"
	"docchat/internal/providers"
)

// promptTurns is how many prior turns make it into the prompt. It is
// deliberately smaller than the history window fetched for a request.
const promptTurns = 4

// AssembleContext builds the ordered message sequence for one completion
// call: system instruction, up to promptTurns most recent prior turns in
// chronological order, then a single user entry embedding the retrieved
// passages verbatim alongside the question. Passages are joined in rank
// order with a blank line; duplicates are kept as retrieved.
func AssembleContext(systemPrompt string, recent []models.Turn, passages []models.Passage, question string) []providers.ChatMessage {
	if len(recent) > promptTurns {
		recent = recent[len(recent)-promptTurns:]
	}

	msgs := make([]providers.ChatMessage, 0, len(recent)+2)
	msgs = append(msgs, providers.ChatMessage{Role: "system", Content: systemPrompt})
	for _, t := range recent {
		msgs = append(msgs, providers.ChatMessage{Role: t.Role, Content: t.Text})
	}

	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		blocks = append(blocks, p.Text)
	}
	final := fmt.Sprintf(`Based on the following document content, please answer my question:

DOCUMENT CONTEXT:
%s

QUESTION: %s

Please provide a detailed answer in markdown format. If the answer cannot be found in the provided context, please say so clearly.`,
		strings.Join(blocks, "\n\n"), question)
	msgs = append(msgs, providers.ChatMessage{Role: "user", Content: final})
	return msgs
}
