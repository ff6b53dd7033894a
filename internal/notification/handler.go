package notification

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
)

type Handler struct {
	emitter *Emitter
	log     *zap.Logger
}

func NewHandler(e *Emitter, log *zap.Logger) *Handler {
	return &Handler{emitter: e, log: log.Named("notification.http")}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.log, apperr.Authentication("No token, authorization denied"))
	}
	return id, ok
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	p, err := h.emitter.List(r.Context(), id.UserID, page, limit)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	res := ListResponse{Success: true, Notifications: p.Notifications}
	res.Pagination.CurrentPage = p.Page
	res.Pagination.TotalPages = p.TotalPages
	res.Pagination.Total = p.Total
	apperr.JSON(w, http.StatusOK, res)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	nid, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apperr.Write(w, h.log, apperr.NotFound("Notification not found"))
		return
	}
	n, err := h.emitter.MarkRead(r.Context(), nid, id.UserID)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"msg":          "Notification marked as read",
		"notification": n,
	})
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.emitter.MarkAllRead(r.Context(), id.UserID); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, map[string]any{"success": true, "msg": "All notifications marked as read"})
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	n, err := h.emitter.UnreadCount(r.Context(), id.UserID)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, map[string]any{"success": true, "unreadCount": n})
}
