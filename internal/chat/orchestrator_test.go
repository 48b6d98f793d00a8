package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/storage"

	"github.com/stretchr/testify/require"
)

type fakeDocs struct {
	doc models.Document
	err error
}

func (f *fakeDocs) FindDocument(_ context.Context, documentID, ownerID string) (models.Document, error) {
	if f.err != nil {
		return models.Document{}, f.err
	}
	if f.doc.DocumentID != documentID || f.doc.OwnerID != ownerID {
		return models.Document{}, fmt.Errorf("find document %s: %w", documentID, storage.ErrNotFound)
	}
	return f.doc, nil
}

type fakeTurns struct {
	turns     []models.Turn
	clock     int64
	failRoles map[string]bool
}

func (f *fakeTurns) CreateTurn(_ context.Context, documentID, userID, role, text string) (models.Turn, error) {
	if f.failRoles[role] {
		return models.Turn{}, errors.New("insert failed")
	}
	f.clock++
	t := models.Turn{
		TurnID:     fmt.Sprintf("t%d", f.clock),
		DocumentID: documentID,
		UserID:     userID,
		Role:       role,
		Text:       text,
		CreatedAt:  time.Unix(f.clock, 0),
	}
	f.turns = append(f.turns, t)
	return t, nil
}

func (f *fakeTurns) ListRecentTurns(_ context.Context, documentID string, limit int) ([]models.Turn, error) {
	out := make([]models.Turn, 0, len(f.turns))
	for _, t := range f.turns {
		if t.DocumentID == documentID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeTurns) byRole(role string) []models.Turn {
	var out []models.Turn
	for _, t := range f.turns {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

type fakeRetriever struct {
	passages []models.Passage
	err      error
	called   bool
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string, k int) ([]models.Passage, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	if len(f.passages) > k {
		return f.passages[:k], nil
	}
	return f.passages, nil
}

type fakeStreamer struct {
	deltas     []string
	failBefore bool
	failAfter  int // fail before emitting delta with this index; -1 never
	gotMsgs    []providers.ChatMessage
}

func (f *fakeStreamer) StreamChat(_ context.Context, msgs []providers.ChatMessage, _ providers.StreamParams, onDelta func(string) error) (providers.StreamResult, providers.ProviderInfo, error) {
	f.gotMsgs = msgs
	info := providers.ProviderInfo{Name: "fake"}
	if f.failBefore {
		return providers.StreamResult{}, info, errors.New("upstream refused")
	}
	var full strings.Builder
	for i, d := range f.deltas {
		if f.failAfter >= 0 && i == f.failAfter {
			return providers.StreamResult{}, info, errors.New("connection dropped")
		}
		full.WriteString(d)
		if err := onDelta(d); err != nil {
			return providers.StreamResult{}, info, err
		}
	}
	return providers.StreamResult{Text: full.String(), FinishReason: providers.FinishStop}, info, nil
}

type captureSink struct {
	deltas      []string
	metadata    int
	completions []string
	errored     []string
}

func (s *captureSink) TextDelta(text string) error { s.deltas = append(s.deltas, text); return nil }
func (s *captureSink) Metadata(_ any) error        { s.metadata++; return nil }
func (s *captureSink) Completion(reason string) error {
	s.completions = append(s.completions, reason)
	return nil
}
func (s *captureSink) Error(reason string) error { s.errored = append(s.errored, reason); return nil }

func readyDoc() models.Document {
	return models.Document{DocumentID: "doc1", OwnerID: "u1", Status: models.StatusReady}
}

func newTestOrchestrator(docs *fakeDocs, turns *fakeTurns, r *fakeRetriever, llm *fakeStreamer) *Orchestrator {
	return NewOrchestrator(docs, turns, r, llm, Params{SystemPrompt: "sys", TopK: 4, HistoryLimit: 6})
}

func TestRunHappyPath(t *testing.T) {
	turns := &fakeTurns{}
	_, err := turns.CreateTurn(context.Background(), "doc1", "u1", models.RoleUser, "prior question")
	require.NoError(t, err)
	_, err = turns.CreateTurn(context.Background(), "doc1", "u1", models.RoleAssistant, "prior answer")
	require.NoError(t, err)

	llm := &fakeStreamer{deltas: []string{"The refund ", "policy is 30 days."}, failAfter: -1}
	retr := &fakeRetriever{passages: []models.Passage{{Text: "refund terms", Rank: 1}}}
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, turns, retr, llm)

	sink := &captureSink{}
	err = o.Run(context.Background(), Request{DocumentID: "doc1", Question: "What is the refund policy?", UserID: "u1"}, sink)
	require.NoError(t, err)

	// User turn persisted before the assistant turn, with a strictly
	// smaller timestamp.
	users := turns.byRole(models.RoleUser)
	assistants := turns.byRole(models.RoleAssistant)
	require.Len(t, users, 2)
	require.Len(t, assistants, 2)
	require.True(t, users[1].CreatedAt.Before(assistants[1].CreatedAt))
	require.Equal(t, "The refund policy is 30 days.", assistants[1].Text)

	// Streamed frames: metadata once, deltas in order, one completion.
	require.Equal(t, 1, sink.metadata)
	require.Equal(t, []string{"The refund ", "policy is 30 days."}, sink.deltas)
	require.Equal(t, []string{providers.FinishStop}, sink.completions)

	// Prompt context held exactly the one prior exchange, not the
	// just-persisted question.
	var history []string
	for _, m := range llm.gotMsgs[1 : len(llm.gotMsgs)-1] {
		history = append(history, m.Content)
	}
	require.Equal(t, []string{"prior question", "prior answer"}, history)
	require.Contains(t, llm.gotMsgs[len(llm.gotMsgs)-1].Content, "refund terms")
}

func TestRunRejectsMalformedRequest(t *testing.T) {
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, &fakeTurns{}, &fakeRetriever{}, &fakeStreamer{failAfter: -1})
	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "   ", UserID: "u1"}, &captureSink{})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestRunRejectsForeignDocument(t *testing.T) {
	turns := &fakeTurns{}
	retr := &fakeRetriever{}
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, turns, retr, &fakeStreamer{failAfter: -1})

	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "q", UserID: "someone-else"}, &captureSink{})
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, turns.turns)
	require.False(t, retr.called)
}

func TestRunRejectsProcessingDocument(t *testing.T) {
	doc := readyDoc()
	doc.Status = models.StatusProcessing
	turns := &fakeTurns{}
	o := newTestOrchestrator(&fakeDocs{doc: doc}, turns, &fakeRetriever{}, &fakeStreamer{failAfter: -1})

	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "q", UserID: "u1"}, &captureSink{})
	require.ErrorIs(t, err, ErrNotReady)
	require.Empty(t, turns.turns)
}

func TestRunAbortsWhenUserTurnWriteFails(t *testing.T) {
	turns := &fakeTurns{failRoles: map[string]bool{models.RoleUser: true}}
	retr := &fakeRetriever{}
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, turns, retr, &fakeStreamer{failAfter: -1})

	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "q", UserID: "u1"}, &captureSink{})
	require.ErrorIs(t, err, ErrInternal)
	require.False(t, retr.called)
}

func TestRunSurfacesRetrievalFailure(t *testing.T) {
	retr := &fakeRetriever{err: fmt.Errorf("%w: index down", ErrRetrievalUnavailable)}
	sink := &captureSink{}
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, &fakeTurns{}, retr, &fakeStreamer{failAfter: -1})

	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "q", UserID: "u1"}, sink)
	require.ErrorIs(t, err, ErrRetrievalUnavailable)
	require.Empty(t, sink.deltas)
}

func TestRunPreStreamGenerationFailure(t *testing.T) {
	turns := &fakeTurns{}
	sink := &captureSink{}
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, turns, &fakeRetriever{}, &fakeStreamer{failBefore: true})

	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "q", UserID: "u1"}, sink)
	require.ErrorIs(t, err, ErrGenerationFailed)
	// Nothing was flushed, so the request may still fail at protocol level.
	require.Zero(t, sink.metadata)
	require.Empty(t, sink.deltas)
	// The user turn is already durable by design; no assistant turn is.
	require.Len(t, turns.byRole(models.RoleUser), 1)
	require.Empty(t, turns.byRole(models.RoleAssistant))
}

func TestRunMidStreamFailure(t *testing.T) {
	turns := &fakeTurns{}
	sink := &captureSink{}
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, turns, &fakeRetriever{}, &fakeStreamer{deltas: []string{"one ", "two ", "three"}, failAfter: 2})

	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "q", UserID: "u1"}, sink)
	// The stream already flushed, so no protocol-level error is possible:
	// it ends without a completion frame and no assistant turn is written.
	require.NoError(t, err)
	require.Equal(t, []string{"one ", "two "}, sink.deltas)
	require.Empty(t, sink.completions)
	require.Empty(t, turns.byRole(models.RoleAssistant))
}

func TestRunSwallowsAssistantPersistenceFailure(t *testing.T) {
	turns := &fakeTurns{failRoles: map[string]bool{models.RoleAssistant: true}}
	sink := &captureSink{}
	o := newTestOrchestrator(&fakeDocs{doc: readyDoc()}, turns, &fakeRetriever{}, &fakeStreamer{deltas: []string{"answer"}, failAfter: -1})

	err := o.Run(context.Background(), Request{DocumentID: "doc1", Question: "q", UserID: "u1"}, sink)
	require.NoError(t, err)
	require.Equal(t, []string{providers.FinishStop}, sink.completions)
	require.Empty(t, turns.byRole(models.RoleAssistant))
}
