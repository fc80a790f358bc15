package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/baodeli/support-desk/internal/middleware"
	"github.com/baodeli/support-desk/internal/model"
	"github.com/baodeli/support-desk/internal/session"
	"github.com/baodeli/support-desk/internal/store"
	"github.com/baodeli/support-desk/pkg/logger"
)

// AdminHandler handles the agent console endpoints.
type AdminHandler struct {
	engine *session.Engine
	store  store.SessionStore
	logger *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(engine *session.Engine, st store.SessionStore, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		engine: engine,
		store:  st,
		logger: log,
	}
}

// Pending handles GET /api/v1/chat/admin/pending: sessions waiting for a
// human agent.
func (h *AdminHandler) Pending(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.SessionsWithStatus(r.Context(), model.StatusHumanRequested)
	if err != nil {
		h.logger.Error("failed to list pending sessions", zap.Error(err))
		writeError(w, statusFromError(err), "failed to list pending sessions")
		return
	}
	if sessions == nil {
		sessions = []model.SessionSnapshot{}
	}
	writeJSON(w, http.StatusOK, &model.SessionListResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// Active handles GET /api/v1/chat/admin/active: sessions in the requested
// or human-attended states.
func (h *AdminHandler) Active(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.SessionsWithStatus(r.Context(),
		model.StatusHumanRequested, model.StatusHumanActive)
	if err != nil {
		h.logger.Error("failed to list active sessions", zap.Error(err))
		writeError(w, statusFromError(err), "failed to list active sessions")
		return
	}
	if sessions == nil {
		sessions = []model.SessionSnapshot{}
	}
	writeJSON(w, http.StatusOK, &model.SessionListResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// Reply handles POST /api/v1/chat/admin/reply: a human agent takes over or
// continues a session.
func (h *AdminHandler) Reply(w http.ResponseWriter, r *http.Request) {
	var req model.AgentReplyRequest
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

	msg, err := h.engine.HandleHumanReply(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.logger.Error("failed to record agent reply",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		writeError(w, statusFromError(err), "failed to send reply")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// End handles POST /api/v1/chat/admin/end/{sessionID}.
func (h *AdminHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.engine.EndSession(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to end session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeError(w, statusFromError(err), "failed to end session")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Reclaim handles POST /api/v1/chat/admin/reclaim: one on-demand sweep in
// addition to the periodic reclaimer.
func (h *AdminHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	reclaimed, err := h.engine.SweepNow(r.Context())
	if err != nil {
		h.logger.Error("on-demand sweep failed", zap.Error(err))
		writeError(w, statusFromError(err), "sweep failed")
		return
	}
	if reclaimed == nil {
		reclaimed = []string{}
	}
	writeJSON(w, http.StatusOK, &model.SweepResponse{
		Reclaimed: reclaimed,
		Count:     len(reclaimed),
	})
}
