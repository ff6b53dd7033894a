package user

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
)

type Handler struct {
	Service *Service
	log     *zap.Logger
}

func NewHandler(s *Service, log *zap.Logger) *Handler {
	return &Handler{Service: s, log: log.Named("user.http")}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, res)
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if err := h.Service.VerifyOTP(r.Context(), &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, MessageResponse{Message: "Email verified successfully"})
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if err := h.Service.ResendOTP(r.Context(), req.Email); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, MessageResponse{Message: "OTP resent successfully"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, res)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if err := h.Service.ForgotPassword(r.Context(), req.Email); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, MessageResponse{Message: "Password reset link sent to email"})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if err := h.Service.ResetPassword(r.Context(), &req); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
}

// Search handles GET /api/users/search?q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.log, apperr.Authentication("No token, authorization denied"))
		return
	}
	users, err := h.Service.SearchUsers(r.Context(), caller, r.URL.Query().Get("q"))
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, users)
}
