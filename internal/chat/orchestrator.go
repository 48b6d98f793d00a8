package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/storage"

	"github.com/google/uuid"
)

type DocumentStore interface {
	FindDocument(ctx context.Context, documentID, ownerID string) (models.Document, error)
}

type TurnStore interface {
	CreateTurn(ctx context.Context, documentID, userID, role, text string) (models.Turn, error)
	ListRecentTurns(ctx context.Context, documentID string, limit int) ([]models.Turn, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, documentID, query string, k int) ([]models.Passage, error)
}

// FrameSink receives the outgoing stream frames. The HTTP layer backs it
// with a flushing wire.Encoder.
type FrameSink interface {
	TextDelta(text string) error
	Metadata(v any) error
	Completion(finishReason string) error
	Error(reason string) error
}

type Params struct {
	SystemPrompt string
	TopK         int
	HistoryLimit int
	Generation   providers.StreamParams
}

// Orchestrator runs one chat exchange as an explicit state machine:
//
//	Validating -> AuthorizingDocument -> PersistingUserTurn ->
//	Retrieving -> Assembling -> Streaming -> Completing | Failed
//
// Each state performs at most one external call and no state starts
// before its predecessor resolved. A non-nil return from Run means the
// request failed before the first streamed byte; mid-stream failures end
// the stream without a completion frame and return nil.
type Orchestrator struct {
	docs      DocumentStore
	turns     TurnStore
	retriever Retriever
	llm       providers.StreamingLLMProvider
	params    Params
}

func NewOrchestrator(docs DocumentStore, turns TurnStore, retriever Retriever, llm providers.StreamingLLMProvider, params Params) *Orchestrator {
	if params.TopK <= 0 {
		params.TopK = 4
	}
	if params.HistoryLimit <= 0 {
		params.HistoryLimit = 6
	}
	return &Orchestrator{docs: docs, turns: turns, retriever: retriever, llm: llm, params: params}
}

type Request struct {
	DocumentID string
	Question   string
	UserID     string
}

type state int

const (
	stateValidating state = iota
	stateAuthorizing
	statePersistingUserTurn
	stateRetrieving
	stateAssembling
	stateStreaming
	stateCompleting
)

func (o *Orchestrator) Run(ctx context.Context, req Request, sink FrameSink) error {
	var (
		userTurn models.Turn
		history  []models.Turn
		passages []models.Passage
		msgs     []providers.ChatMessage
		result   providers.StreamResult

		wroteBody  bool
		sinkBroken bool
	)

	for st := stateValidating; ; {
		switch st {
		case stateValidating:
			req.DocumentID = strings.TrimSpace(req.DocumentID)
			req.Question = strings.TrimSpace(req.Question)
			if req.UserID == "" {
				return ErrUnauthorized
			}
			if req.DocumentID == "" || req.Question == "" {
				return fmt.Errorf("%w: documentId and question are required", ErrBadRequest)
			}
			st = stateAuthorizing

		case stateAuthorizing:
			doc, err := o.docs.FindDocument(ctx, req.DocumentID, req.UserID)
			if errors.Is(err, storage.ErrNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("%w: load document: %v", ErrInternal, err)
			}
			if doc.Status != models.StatusReady {
				return fmt.Errorf("%w: status %s", ErrNotReady, doc.Status)
			}
			st = statePersistingUserTurn

		case statePersistingUserTurn:
			var err error
			userTurn, err = o.turns.CreateTurn(ctx, req.DocumentID, req.UserID, models.RoleUser, req.Question)
			if err != nil {
				return fmt.Errorf("%w: record user turn: %v", ErrInternal, err)
			}
			st = stateRetrieving

		case stateRetrieving:
			var err error
			passages, err = o.retriever.Retrieve(ctx, req.DocumentID, req.Question, o.params.TopK)
			if err != nil {
				return err
			}
			history, err = o.turns.ListRecentTurns(ctx, req.DocumentID, o.params.HistoryLimit)
			if err != nil {
				return fmt.Errorf("%w: load history: %v", ErrInternal, err)
			}
			// The user turn for this exchange is already in the log; only
			// strictly older turns are conversational history.
			prior := history[:0]
			for _, t := range history {
				if t.TurnID != userTurn.TurnID && t.CreatedAt.Before(userTurn.CreatedAt) {
					prior = append(prior, t)
				}
			}
			history = prior
			st = stateAssembling

		case stateAssembling:
			msgs = AssembleContext(o.params.SystemPrompt, history, passages, req.Question)
			st = stateStreaming

		case stateStreaming:
			messageID := uuid.NewString()
			// The upstream stream and the completion hook outlive a client
			// disconnect: delivery failures are logged, not propagated.
			streamCtx := context.WithoutCancel(ctx)
			onDelta := func(delta string) error {
				if sinkBroken {
					return nil
				}
				if !wroteBody {
					wroteBody = true
					if err := sink.Metadata(map[string]string{"messageId": messageID}); err != nil {
						sinkBroken = true
						log.Printf("WARN: chat stream delivery failed: %v", err)
						return nil
					}
				}
				if err := sink.TextDelta(delta); err != nil {
					sinkBroken = true
					log.Printf("WARN: chat stream delivery failed: %v", err)
				}
				return nil
			}
			res, _, err := o.llm.StreamChat(streamCtx, msgs, o.params.Generation, onDelta)
			if err != nil {
				if !wroteBody {
					return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
				}
				// Mid-stream failure: the response is already flushed, so
				// the stream simply ends without a completion frame and no
				// assistant turn is written.
				log.Printf("WARN: chat stream for document %s ended early: %v", req.DocumentID, err)
				return nil
			}
			result = res
			st = stateCompleting

		case stateCompleting:
			if !sinkBroken {
				if err := sink.Completion(result.FinishReason); err != nil {
					log.Printf("WARN: chat stream delivery failed: %v", err)
				}
			}
			if _, err := o.turns.CreateTurn(context.WithoutCancel(ctx), req.DocumentID, req.UserID, models.RoleAssistant, result.Text); err != nil {
				log.Printf("WARN: %v: assistant turn for document %s: %v", ErrPersistenceFailed, req.DocumentID, err)
			}
			return nil
		}
	}
}
