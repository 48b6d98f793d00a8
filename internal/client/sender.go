package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"docchat/internal/models"
	"docchat/internal/wire"
)

// ErrStreamIncomplete marks a stream that ended without a completion
// frame. The exchange must be treated as failed and rolled back.
var ErrStreamIncomplete = errors.New("stream ended without completion frame")

// Sender talks to the chat API for one user identity.
type Sender struct {
	baseURL string
	userID  string
	client  *http.Client
}

// NewSender builds a sender. The HTTP client carries no timeout because
// the message response streams for the lifetime of the generation.
func NewSender(baseURL, userID string) *Sender {
	return &Sender{
		baseURL: baseURL,
		userID:  userID,
		client:  &http.Client{},
	}
}

// Send submits a question and returns a handle on the live stream. A
// non-2xx status or transport failure is reported here, before any cache
// merge has happened; everything after this point flows through Consume.
func (s *Sender) Send(ctx context.Context, documentID, question string) (*StreamHandle, error) {
	body, err := json.Marshal(map[string]string{
		"documentId": documentID,
		"question":   question,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/message", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", s.userID)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("send message: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return &StreamHandle{body: resp.Body}, nil
}

// ListTurnPage implements HistorySource against the server's paginated
// history feed.
func (s *Sender) ListTurnPage(ctx context.Context, documentID string, limit int) (models.TurnPage, error) {
	u := s.baseURL + "/api/documents/" + url.PathEscape(documentID) + "/messages?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.TurnPage{}, fmt.Errorf("build history request: %w", err)
	}
	req.Header.Set("X-User-ID", s.userID)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.TurnPage{}, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.TurnPage{}, fmt.Errorf("fetch history: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var page models.TurnPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return models.TurnPage{}, fmt.Errorf("decode history page: %w", err)
	}
	return page, nil
}

// StreamHandle wraps a live response body.
type StreamHandle struct {
	body io.ReadCloser
}

// Consume pumps the stream through the frame decoder into the cache. It
// returns nil only when a completion frame arrived; an early end of
// stream, an in-band error frame, or a transport error all fail the
// exchange.
func (h *StreamHandle) Consume(cache *ConversationCache) error {
	defer h.body.Close()

	var dec wire.Decoder
	completed := false
	inbandErr := ""

	apply := func(frames []wire.Frame) {
		for _, f := range frames {
			switch f.Kind {
			case wire.FrameTextDelta:
				cache.ApplyDelta(f.Text)
			case wire.FrameCompletion:
				completed = true
			case wire.FrameError:
				inbandErr = f.Text
			case wire.FrameMetadata:
				// informational only
			}
		}
	}

	buf := make([]byte, 4096)
	for {
		n, err := h.body.Read(buf)
		if n > 0 {
			apply(dec.Feed(buf[:n]))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
	apply(dec.Flush())

	if inbandErr != "" {
		return fmt.Errorf("%w: %s", ErrStreamIncomplete, inbandErr)
	}
	if !completed {
		return ErrStreamIncomplete
	}
	return nil
}

// RunExchange drives one full exchange: speculative insert, send, stream
// consumption, then reconcile or rollback. The sequencing lives here in
// the caller rather than in implicit callbacks; reconciliation happens on
// settlement regardless of outcome, mirroring the rollback-then-refresh
// behavior of the conversation view.
func RunExchange(ctx context.Context, sender *Sender, cache *ConversationCache, question string) error {
	cache.BeginExchange(question)

	handle, err := sender.Send(ctx, cache.DocumentID(), question)
	if err != nil {
		cache.Rollback()
		_ = cache.Reconcile(ctx)
		return err
	}
	if err := handle.Consume(cache); err != nil {
		cache.Rollback()
		_ = cache.Reconcile(ctx)
		return err
	}
	return cache.Reconcile(ctx)
}
