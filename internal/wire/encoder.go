package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Encoder writes frames to the response body. It escapes exactly the
// characters the decoder unescapes, so encode-then-decode is the identity
// for any chunking of the byte stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func (e *Encoder) TextDelta(text string) error {
	if _, err := io.WriteString(e.w, `0:"`+escaper.Replace(text)+"\"\n"); err != nil {
		return fmt.Errorf("write text delta: %w", err)
	}
	return nil
}

func (e *Encoder) Metadata(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if _, err := io.WriteString(e.w, "f:"+string(b)+"\n"); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Completion writes both the e: and d: completion records, matching the
// upstream data-stream protocol; decoders treat either as stream end.
func (e *Encoder) Completion(finishReason string) error {
	b, err := json.Marshal(map[string]string{"finishReason": finishReason})
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}
	if _, err := io.WriteString(e.w, "e:"+string(b)+"\nd:"+string(b)+"\n"); err != nil {
		return fmt.Errorf("write completion: %w", err)
	}
	return nil
}

func (e *Encoder) Error(reason string) error {
	if _, err := io.WriteString(e.w, `3:"`+escaper.Replace(reason)+"\"\n"); err != nil {
		return fmt.Errorf("write error frame: %w", err)
	}
	return nil
}
