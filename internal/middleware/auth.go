package middleware

import (
	"context"
	"net/http"

	"dinein-service/internal/auth"
	"dinein-service/pkg/response"
)

type contextKey string

const authContextKey contextKey = "authContext"

type AuthContext struct {
	UserID int64
	Role   auth.UserRole
}

func (a *AuthContext) IsAdmin() bool {
	return a != nil && a.Role == auth.RoleAdmin
}

func WithAuthContext(ctx context.Context, authCtx *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*AuthContext)
	return ac, ok && ac != nil
}

func authenticate(r *http.Request, jwtSecret string) (*AuthContext, error) {
	claims, err := auth.VerifyAccessToken(auth.ParseBearerToken(r.Header.Get("Authorization")), jwtSecret)
	if err != nil {
		return nil, err
	}
	id, err := claims.ID()
	if err != nil {
		return nil, err
	}
	return &AuthContext{UserID: id, Role: claims.Role}, nil
}

// AdminAuth admits only ADMIN tokens; the admin's id becomes the acting admin of session
// operations.
func AdminAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := authenticate(r, jwtSecret)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization token required")
				return
			}
			if !ac.IsAdmin() {
				response.Error(w, http.StatusForbidden, "FORBIDDEN", "Admin access required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
		})
	}
}

// OptionalUserAuth attaches the caller when a valid token is presented. Diners without an
// account pass through anonymously; an invalid token is still rejected.
func OptionalUserAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			ac, err := authenticate(r, jwtSecret)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
		})
	}
}
