package myMiddleware

import (
	"net/http"
	"strings"

	"designguard/internal/apperr"
	"designguard/internal/identity"
)

// TokenValidator keeps this package independent of the user service.
type TokenValidator interface {
	ValidateToken(tokenString string) (identity.Identity, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// TokenFromRequest reads the token from the Authorization header ("Bearer x"
// or a bare token), falling back to the ?token= query parameter used by
// websocket clients.
func TokenFromRequest(r *http.Request) string {
	if authHeader := strings.TrimSpace(r.Header.Get("Authorization")); authHeader != "" {
		scheme, token, found := strings.Cut(authHeader, " ")
		if !found {
			return authHeader
		}
		if strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// Authenticate resolves the caller's identity from r.
func (am *AuthMiddleware) Authenticate(r *http.Request) (identity.Identity, error) {
	tokenString := TokenFromRequest(r)
	if tokenString == "" {
		return identity.Identity{}, apperr.Authentication("No token, authorization denied")
	}
	id, err := am.validator.ValidateToken(tokenString)
	if err != nil {
		return identity.Identity{}, apperr.Wrap(apperr.KindAuthentication, "Token is not valid", err)
	}
	return id, nil
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := am.Authenticate(r)
		if err != nil {
			apperr.Write(w, nil, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
	})
}

