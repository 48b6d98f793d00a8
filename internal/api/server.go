package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/providers"
	"docchat/internal/retrieval"
	"docchat/internal/storage"
	"docchat/internal/vector"
	"docchat/internal/wire"
)

// Authenticator is the session-lookup collaborator. The chat core only
// needs an identity for the caller; how it is established is external.
type Authenticator interface {
	CurrentUser(r *http.Request) (string, bool)
}

// HeaderAuthenticator trusts an identity header set by the fronting
// proxy. Default header is X-User-ID.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) CurrentUser(r *http.Request) (string, bool) {
	h := a.Header
	if h == "" {
		h = "X-User-ID"
	}
	v := strings.TrimSpace(r.Header.Get(h))
	return v, v != ""
}

type turnStore interface {
	chat.TurnStore
	ListTurnPage(ctx context.Context, documentID string, limit int, cursor *time.Time) (models.TurnPage, error)
}

type Server struct {
	cfg   config.Config
	db    *storage.DB
	docs  chat.DocumentStore
	turns turnStore
	orch  *chat.Orchestrator
	auth  Authenticator
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		panic(err)
	}
	docs := storage.NewDocumentRepo(db)
	turns := storage.NewTurnRepo(db)
	retriever := retrieval.NewClient(pm, vector.NewSearcher(db.Pool), cfg.EmbedDim)
	orch := chat.NewOrchestrator(docs, turns, retriever, pm.FirstLLMProvider(), chat.Params{
		SystemPrompt: cfg.SystemPrompt,
		TopK:         cfg.RetrievalTopK,
		HistoryLimit: cfg.HistoryLimit,
		Generation: providers.StreamParams{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
	})
	return &Server{
		cfg:   cfg,
		db:    db,
		docs:  docs,
		turns: turns,
		orch:  orch,
		auth:  HeaderAuthenticator{},
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/documents/", s.handleDocumentsScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleMessage runs one chat exchange. The response body is the frame
// stream; any error the orchestrator reports happened before the first
// byte was flushed, so a plain error status is still possible.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	userID, ok := s.auth.CurrentUser(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, chat.ErrUnauthorized)
		return
	}

	var req struct {
		DocumentID string `json:"documentId"`
		Question   string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}

	enc := wire.NewEncoder(newFlushWriter(w))
	err := s.orch.Run(r.Context(), chat.Request{
		DocumentID: req.DocumentID,
		Question:   req.Question,
		UserID:     userID,
	}, enc)
	if err != nil {
		writeErr(w, statusFor(err), err)
	}
}

// handleDocumentsScoped serves GET /api/documents/{id}/messages, the
// paginated newest-first history feed the client cache reconciles with.
func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/documents/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "messages" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	userID, ok := s.auth.CurrentUser(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, chat.ErrUnauthorized)
		return
	}
	documentID := parts[0]

	if _, err := s.docs.FindDocument(r.Context(), documentID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeErr(w, http.StatusNotFound, chat.ErrNotFound)
		} else {
			writeErr(w, http.StatusInternalServerError, err)
		}
		return
	}

	limit := s.cfg.PageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	var cursor *time.Time
	if v := r.URL.Query().Get("cursor"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid cursor"))
			return
		}
		cursor = &t
	}

	page, err := s.turns.ListTurnPage(r.Context(), documentID, limit, cursor)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrBadRequest), errors.Is(err, chat.ErrNotReady):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// flushWriter flushes after every write so deltas reach the client as
// they arrive rather than when the handler returns.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil && fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	switch {
	case errors.Is(err, chat.ErrNotReady):
		return apiError{Code: "DC-API-4002", Message: "Document is still processing. Please wait."}
	case errors.Is(err, chat.ErrBadRequest):
		return apiError{Code: "DC-API-4001", Message: "Both documentId and question are required."}
	case errors.Is(err, chat.ErrUnauthorized):
		return apiError{Code: "DC-API-4010", Message: "Sign in to chat with this document."}
	case errors.Is(err, chat.ErrNotFound):
		return apiError{Code: "DC-API-4004", Message: "Document was not found."}
	case errors.Is(err, chat.ErrRetrievalUnavailable):
		return apiError{Code: "DC-API-5002", Message: "Document search is unavailable. Retry shortly."}
	case errors.Is(err, chat.ErrGenerationFailed):
		return apiError{Code: "DC-API-5003", Message: "The assistant could not generate a response. Retry shortly."}
	}

	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}
	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "DC-DB-5001", Message: "Database schema is not initialized. Run migrations and retry."}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "DC-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "DC-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		if strings.Contains(raw, "invalid json") {
			msg = "Malformed JSON request body."
		}
		if strings.Contains(raw, "invalid cursor") {
			msg = "Invalid pagination cursor."
		}
		return apiError{Code: "DC-API-4001", Message: msg}
	case status == http.StatusNotFound:
		return apiError{Code: "DC-API-4004", Message: "Requested resource was not found."}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "DC-API-4005", Message: "This endpoint does not support the requested method."}
	default:
		return apiError{Code: "DC-API-4000", Message: "Request failed."}
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
