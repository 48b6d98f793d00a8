// Package wire implements the line-oriented text-chunk protocol used by
// the chat stream. One frame per newline-terminated line:
//
//	0:"<escaped text>"   text delta
//	f:<json>             stream metadata (message id)
//	e:<json> / d:<json>  completion (finish reason, usage)
//	3:"<escaped text>"   in-band error
//
// Any other line falls back to quoted-substring extraction; a line with
// no quoted substrings is dropped.
package wire

import "encoding/json"

type FrameKind int

const (
	FrameTextDelta FrameKind = iota
	FrameMetadata
	FrameCompletion
	FrameError
)

// Frame is one decoded unit of the stream. Text is set for text-delta and
// error frames, JSON for metadata and completion frames.
type Frame struct {
	Kind FrameKind
	Text string
	JSON json.RawMessage
}
