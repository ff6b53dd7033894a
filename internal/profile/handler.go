package profile

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
)

type Handler struct {
	service  *Service
	maxBytes int64
	log      *zap.Logger
}

func NewHandler(s *Service, maxBytes int64, log *zap.Logger) *Handler {
	return &Handler{service: s, maxBytes: maxBytes, log: log.Named("profile.http")}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.log, apperr.Authentication("No token, authorization denied"))
	}
	return id, ok
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	p, err := h.service.Me(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, Response{Success: true, Data: p})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request body"))
		return
	}
	if err := h.service.Update(r.Context(), id, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, Response{Success: true, Message: "Profile updated successfully"})
}

func (h *Handler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			apperr.Write(w, h.log, apperr.Validation("File too large"))
			return
		}
		apperr.Write(w, h.log, apperr.Validation("No image file provided"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var pic *Picture
	file, header, err := r.FormFile("profile_picture")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		apperr.Write(w, h.log, apperr.Validation("Invalid image upload"))
		return
	default:
		defer file.Close()
		pic = &Picture{Body: file, ContentType: header.Header.Get("Content-Type"), Size: header.Size}
	}

	res, err := h.service.UploadPicture(r.Context(), id, pic)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, Response{Success: true, Data: res, Message: "Profile picture updated successfully"})
}

func (h *Handler) Public(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		apperr.Write(w, h.log, apperr.NotFound("User not found"))
		return
	}
	p, err := h.service.Public(r.Context(), userID)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, Response{Success: true, Data: p})
}
