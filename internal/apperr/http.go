package apperr

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// HTTPStatus maps a Kind onto the status code REST callers see.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write renders err as a structured JSON body. Server-side failures are
// logged with their cause; client errors are not.
func Write(w http.ResponseWriter, log *zap.Logger, err error) {
	kind := KindOf(err)
	status := HTTPStatus(kind)
	if status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed", zap.String("kind", kind.String()), zap.Error(err))
	}
	JSON(w, status, errorBody{Success: false, Msg: Message(err)})
}
