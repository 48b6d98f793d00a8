package wire

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Decoder incrementally parses the frame grammar from arbitrary byte
// chunks. Input may split a line anywhere, including mid-escape-sequence;
// a line is only parsed once its terminating newline has arrived. The
// trailing unterminated line is buffered across Feed calls and decoded by
// Flush at end of stream.
//
// A Decoder serves exactly one stream; use a fresh one per request.
type Decoder struct {
	pending []byte
}

// Feed appends a chunk and returns all frames whose lines completed.
func (d *Decoder) Feed(p []byte) []Frame {
	d.pending = append(d.pending, p...)
	var frames []Frame
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			return frames
		}
		line := string(d.pending[:i])
		d.pending = d.pending[i+1:]
		if f, ok := decodeLine(line); ok {
			frames = append(frames, f)
		}
	}
}

// Flush decodes a final record that arrived without a trailing newline.
func (d *Decoder) Flush() []Frame {
	if len(d.pending) == 0 {
		return nil
	}
	line := string(d.pending)
	d.pending = nil
	if f, ok := decodeLine(line); ok {
		return []Frame{f}
	}
	return nil
}

func decodeLine(line string) (Frame, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Frame{}, false
	}
	switch {
	case strings.HasPrefix(line, `0:"`):
		if text, ok := quotedPayload(line[2:]); ok {
			return Frame{Kind: FrameTextDelta, Text: unescape(text)}, true
		}
	case strings.HasPrefix(line, `3:"`):
		if text, ok := quotedPayload(line[2:]); ok {
			return Frame{Kind: FrameError, Text: unescape(text)}, true
		}
	case strings.HasPrefix(line, "f:"):
		if raw := line[2:]; json.Valid([]byte(raw)) {
			return Frame{Kind: FrameMetadata, JSON: json.RawMessage(raw)}, true
		}
	case strings.HasPrefix(line, "e:"), strings.HasPrefix(line, "d:"):
		if raw := line[2:]; json.Valid([]byte(raw)) {
			return Frame{Kind: FrameCompletion, JSON: json.RawMessage(raw)}, true
		}
	}
	return fallbackLine(line)
}

// quotedPayload strips the surrounding double quotes from a `"..."` body.
func quotedPayload(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// unescape reverses \n, \" and \\ in a single left-to-right pass. Escapes
// are resolved once, never recursively, so decoded backslashes cannot
// re-trigger escape handling.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
			i++
		case '"':
			b.WriteByte('"')
			i++
		case '\\':
			b.WriteByte('\\')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// fallbackLine is the defined recovery path for malformed lines: the
// contents of every double-quoted substring become text-delta text.
// A line with no quoted substrings is dropped.
func fallbackLine(line string) (Frame, bool) {
	var b strings.Builder
	rest := line
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			break
		}
		b.WriteString(rest[start+1 : start+1+end])
		rest = rest[start+end+2:]
	}
	if b.Len() == 0 {
		return Frame{}, false
	}
	return Frame{Kind: FrameTextDelta, Text: b.String()}, true
}
