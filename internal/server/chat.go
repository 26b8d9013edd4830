package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/auth"
	"github.com/desertthunder/muse/internal/chat"
	"github.com/desertthunder/muse/internal/services"
	"github.com/desertthunder/muse/internal/shared"
)

// CookieChatSession identifies the chat session the proposal cache is keyed by.
const CookieChatSession = "chat_session"

// ChatOrchestrator runs one conversation turn.
type ChatOrchestrator interface {
	HandleMessage(ctx context.Context, sessionID, token, message string, history []services.Turn) (*chat.Result, error)
}

// ChatHandler serves the conversational endpoint.
type ChatHandler struct {
	tokens       TokenManager
	orchestrator ChatOrchestrator
	logger       *log.Logger
}

// NewChatHandler creates the chat route handler.
func NewChatHandler(tokens TokenManager, orchestrator ChatOrchestrator, logger *log.Logger) *ChatHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &ChatHandler{tokens: tokens, orchestrator: orchestrator, logger: logger}
}

// Routes returns the path patterns this handler serves.
func (h *ChatHandler) Routes() []string {
	return []string{"/api/chat"}
}

type chatRequest struct {
	Message string          `json:"message"`
	History []services.Turn `json:"history"`
}

type chatResponse struct {
	Text       string          `json:"text"`
	PlaylistID string          `json:"playlist_id,omitempty"`
	History    []services.Turn `json:"history"`
}

// ServeHTTP handles one chat turn.
//
// The chat session cookie is minted on first use; it keys the proposal cache and the
// transcript, independent of the OAuth token cookies.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess := auth.ReadSession(r)
	before := sess

	token, err := h.tokens.ValidAccessToken(r.Context(), &sess)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if sess != before {
		auth.WriteSession(w, sess)
	}

	sessionID := h.sessionID(w, r)

	result, err := h.orchestrator.HandleMessage(r.Context(), sessionID, token, req.Message, req.History)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Text:       result.Text,
		PlaylistID: result.PlaylistID,
		History:    result.History,
	})
}

// sessionID returns the chat session cookie value, minting and setting one when absent.
func (h *ChatHandler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieChatSession); err == nil && c.Value != "" {
		return c.Value
	}

	id := shared.GenerateID()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieChatSession,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrAuthRequired), errors.Is(err, shared.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, shared.ErrModelRequest):
		h.logger.Error("model request failed", "error", err)
		writeError(w, http.StatusBadGateway, "Chat error: "+err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Chat error: "+err.Error())
	}
}
