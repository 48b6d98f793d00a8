package providers

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// readChatStream consumes an OpenAI-compatible server-sent-event body
// ("data: {...}" lines, terminated by "data: [DONE]") and forwards each
// content delta. The returned Text is the concatenation of every
// forwarded delta.
func readChatStream(body io.Reader, onDelta func(string) error) (StreamResult, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder
	finish := FinishStop
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			if data == "[DONE]" {
				break
			}
			continue
		}
		var ev struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		for _, c := range ev.Choices {
			if c.Delta.Content != "" {
				full.WriteString(c.Delta.Content)
				if err := onDelta(c.Delta.Content); err != nil {
					return StreamResult{}, err
				}
			}
			if c.FinishReason != nil && *c.FinishReason != "" {
				finish = normalizeFinishReason(*c.FinishReason)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return StreamResult{}, err
	}
	return StreamResult{Text: full.String(), FinishReason: finish}, nil
}

func normalizeFinishReason(r string) string {
	switch strings.ToLower(r) {
	case "length", "max_tokens":
		return FinishLength
	case "stop", "end_turn", "":
		return FinishStop
	default:
		return FinishStop
	}
}
