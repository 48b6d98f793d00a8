package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func collectText(frames []Frame) string {
	var b strings.Builder
	for _, f := range frames {
		if f.Kind == FrameTextDelta {
			b.WriteString(f.Text)
		}
	}
	return b.String()
}

func TestDecodeTextDelta(t *testing.T) {
	var d Decoder
	frames := d.Feed([]byte("0:\"Hello \"\n0:\"world\"\n"))
	require.Len(t, frames, 2)
	require.Equal(t, "Hello world", collectText(frames))
}

func TestDecodeUnescapesOnce(t *testing.T) {
	cases := map[string]string{
		`0:"line\nbreak"`:  "line\nbreak",
		`0:"a \"quote\""`:  `a "quote"`,
		`0:"back\\slash"`:  `back\slash`,
		`0:"mix\\n"`:       `mix\n`, // escaped backslash then literal n, not a newline
		`0:"dangling\x"`:   `dangling\x`,
	}
	for in, want := range cases {
		var d Decoder
		frames := d.Feed([]byte(in + "\n"))
		require.Len(t, frames, 1, "input %q", in)
		require.Equal(t, want, frames[0].Text, "input %q", in)
	}
}

func TestDecodeMetadataAndCompletion(t *testing.T) {
	var d Decoder
	frames := d.Feed([]byte("f:{\"messageId\":\"m1\"}\n0:\"hi\"\ne:{\"finishReason\":\"stop\"}\nd:{\"finishReason\":\"stop\"}\n"))
	require.Len(t, frames, 4)
	require.Equal(t, FrameMetadata, frames[0].Kind)
	require.JSONEq(t, `{"messageId":"m1"}`, string(frames[0].JSON))
	require.Equal(t, FrameTextDelta, frames[1].Kind)
	require.Equal(t, FrameCompletion, frames[2].Kind)
	require.Equal(t, FrameCompletion, frames[3].Kind)
}

func TestDecodeErrorFrame(t *testing.T) {
	var d Decoder
	frames := d.Feed([]byte("3:\"generation failed\"\n"))
	require.Len(t, frames, 1)
	require.Equal(t, FrameError, frames[0].Kind)
	require.Equal(t, "generation failed", frames[0].Text)
}

func TestFallbackExtractsQuotedSubstrings(t *testing.T) {
	var d Decoder
	frames := d.Feed([]byte("garbled \"one\" noise \"two\"\n"))
	require.Len(t, frames, 1)
	require.Equal(t, FrameTextDelta, frames[0].Kind)
	require.Equal(t, "onetwo", frames[0].Text)

	// A line with no quoted substrings is dropped silently.
	require.Empty(t, d.Feed([]byte("nothing quotable here\n")))
}

func TestPartialLineBufferedAcrossChunks(t *testing.T) {
	var d Decoder
	require.Empty(t, d.Feed([]byte(`0:"split mid`)))
	require.Empty(t, d.Feed([]byte(` rec`)))
	frames := d.Feed([]byte("ord\"\n"))
	require.Len(t, frames, 1)
	require.Equal(t, "split mid record", frames[0].Text)
}

func TestSplitMidEscapeSequence(t *testing.T) {
	var d Decoder
	require.Empty(t, d.Feed([]byte("0:\"a\\")))
	frames := d.Feed([]byte("nb\"\n"))
	require.Len(t, frames, 1)
	require.Equal(t, "a\nb", frames[0].Text)
}

func TestFlushDecodesTrailingRecord(t *testing.T) {
	var d Decoder
	require.Empty(t, d.Feed([]byte(`0:"no newline at end"`)))
	frames := d.Flush()
	require.Len(t, frames, 1)
	require.Equal(t, "no newline at end", frames[0].Text)
	require.Empty(t, d.Flush())
}

// Decoding is invariant under rechunking: any split of the byte stream
// yields the same concatenated text, and encode-then-decode is identity.
func TestRechunkingInvariance(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	deltas := []string{"Hello ", "with \"quotes\"", " and\nnewlines", ` and \backslashes\`, "!"}
	require.NoError(t, enc.Metadata(map[string]string{"messageId": "m1"}))
	for _, delta := range deltas {
		require.NoError(t, enc.TextDelta(delta))
	}
	require.NoError(t, enc.Completion("stop"))

	want := strings.Join(deltas, "")
	raw := buf.Bytes()

	for _, size := range []int{1, 2, 3, 5, 7, 16, len(raw)} {
		var d Decoder
		var frames []Frame
		for i := 0; i < len(raw); i += size {
			end := i + size
			if end > len(raw) {
				end = len(raw)
			}
			frames = append(frames, d.Feed(raw[i:end])...)
		}
		frames = append(frames, d.Flush()...)
		require.Equal(t, want, collectText(frames), "chunk size %d", size)

		completions := 0
		for _, f := range frames {
			if f.Kind == FrameCompletion {
				completions++
			}
		}
		require.Equal(t, 2, completions, "chunk size %d", size)
	}
}
