package access

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(s *Service, log *zap.Logger) *Handler {
	return &Handler{service: s, log: log.Named("access.http")}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.log, apperr.Authentication("No token, authorization denied"))
	}
	return id, ok
}

func (h *Handler) Factories(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	out, err := h.service.Factories(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, out)
}

func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request body"))
		return
	}
	req, err := h.service.RequestAccess(r.Context(), id, in.FactoryID)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, req)
}

func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	out, err := h.service.Pending(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, out)
}

func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	requestID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request ID"))
		return
	}
	var in RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request body"))
		return
	}
	req, err := h.service.Respond(r.Context(), id, requestID, &in)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, req)
}
