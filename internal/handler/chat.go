// Package handler implements the HTTP endpoints for the support chat.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/baodeli/support-desk/internal/middleware"
	"github.com/baodeli/support-desk/internal/model"
	"github.com/baodeli/support-desk/internal/session"
	"github.com/baodeli/support-desk/internal/store"
	"github.com/baodeli/support-desk/pkg/logger"
)

// ChatHandler handles the visitor-facing chat endpoints.
type ChatHandler struct {
	engine *session.Engine
	store  store.SessionStore
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(engine *session.Engine, st store.SessionStore, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		store:  st,
		logger: log,
	}
}

// newSessionID generates an opaque session id for anonymous visitors.
func newSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// OpenSession handles POST /api/v1/chat/session. It resumes the given
// session or creates a fresh id, returning recent history either way.
func (h *ChatHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req model.OpenSessionRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	} else if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.store.RecentMessages(r.Context(), sessionID, 100)
	if err != nil {
		h.logger.Error("failed to load session history", zap.Error(err))
		writeError(w, statusFromError(err), "failed to load session")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, &model.OpenSessionResponse{
		SessionID: sessionID,
		Messages:  messages,
	})
}

// SendMessage handles POST /api/v1/chat/message.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := authorMeta(r, req.UserName, req.UserPhone)

	outcome, err := h.engine.HandleInbound(r.Context(), req.SessionID, req.Message, meta)
	if err != nil {
		h.logger.Error("failed to handle inbound message",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		writeError(w, statusFromError(err), "failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{
		UserMessage: outcome.UserMessage,
		AIMessage:   outcome.AutoReply,
		Status:      outcome.Status,
		NeedHuman:   outcome.UserMessage.NeedHumanReply,
	})
}

// History handles GET /api/v1/chat/history/{sessionID} with page/limit
// query parameters, oldest first.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	messages, total, err := h.store.History(r.Context(), sessionID, (page-1)*limit, limit)
	if err != nil {
		h.logger.Error("failed to load history", zap.Error(err))
		writeError(w, statusFromError(err), "failed to load history")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, &model.HistoryResponse{
		Messages:   messages,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	})
}

// RequestHuman handles POST /api/v1/chat/request-human/{sessionID}, the
// explicit hand-off button next to phrase detection.
func (h *ChatHandler) RequestHuman(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	outcome, err := h.engine.RequestHuman(r.Context(), sessionID, req.Message, authorMeta(r, "", ""))
	if err != nil {
		h.logger.Error("failed to request human",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeError(w, statusFromError(err), "failed to request human agent")
		return
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{
		UserMessage: outcome.UserMessage,
		AIMessage:   outcome.AutoReply,
		Status:      outcome.Status,
		NeedHuman:   true,
	})
}

// authorMeta builds the optional author identity from the request body and
// whatever the (optional) token carried. Body values win so visitors can
// type a name and phone into the intake form without signing in.
func authorMeta(r *http.Request, name, phone string) *model.AuthorMeta {
	ctx := r.Context()
	meta := &model.AuthorMeta{
		UserID:      middleware.GetUserID(ctx),
		DisplayName: name,
		Phone:       phone,
	}
	if meta.DisplayName == "" {
		meta.DisplayName = middleware.GetUserName(ctx)
	}
	if meta.Phone == "" {
		meta.Phone = middleware.GetUserPhone(ctx)
	}
	if meta.UserID == "" && meta.DisplayName == "" && meta.Phone == "" {
		return nil
	}
	return meta
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
