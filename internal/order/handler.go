package order

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
	return &Handler{service: s, log: log.Named("order.http")}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.log, apperr.Authentication("No token, authorization denied"))
	}
	return id, ok
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Invalid order ID")
	}
	return id, nil
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	var in PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request body"))
		return
	}
	o, err := h.service.Place(r.Context(), id, &in)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, OrderResponse{Msg: "Order placed successfully", Order: o})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := h.service.List(r.Context(), id, Status(q.Get("status")), page, limit)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, res)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	oid, err := orderID(r)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	o, err := h.service.Get(r.Context(), id, oid)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	oid, err := orderID(r)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	var in StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request body"))
		return
	}
	o, err := h.service.UpdateStatus(r.Context(), id, oid, in.Status)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, OrderResponse{Msg: "Order status updated successfully", Order: o})
}
