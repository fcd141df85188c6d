package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/models"
	"lms-backend/pkg/token"
)

type contextKey string

const userKey contextKey = "user"

type Auth struct {
	tokens *token.TokenManager
	db     *gorm.DB
}

func NewAuth(tokens *token.TokenManager, db *gorm.DB) *Auth {
	return &Auth{tokens: tokens, db: db}
}

// AuthMiddleware accepts only access tokens, from the Authorization header
// or, for websocket upgrades, the ?token= query parameter.
func (a *Auth) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" {
			apierr.Write(w, nil, apierr.Unauthorized("Not authenticated"))
			return
		}
		user, err := a.Authenticate(r.Context(), raw)
		if err != nil {
			apierr.Write(w, nil, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, *user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate resolves an access token to an active user.
func (a *Auth) Authenticate(ctx context.Context, raw string) (*models.User, error) {
	claims, err := a.tokens.Verify(raw, token.AccessToken)
	if err != nil {
		if errors.Is(err, token.ErrWrongTokenKind) {
			return nil, apierr.Unauthorized("Invalid token type")
		}
		return nil, apierr.Unauthorized("Could not validate credentials")
	}
	id, _ := claims.UserID()
	var user models.User
	if err := a.db.WithContext(ctx).Limit(1).Find(&user, id).Error; err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, apierr.Unauthorized("User not found")
	}
	if !user.IsActive {
		return nil, apierr.Unauthorized("Account is deactivated")
	}
	return &user, nil
}

// RequireRole rejects principals whose role is not listed.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r)
			if !ok {
				apierr.Write(w, nil, apierr.Unauthorized("Not authenticated"))
				return
			}
			if !HasRole(user, roles...) {
				apierr.Write(w, nil, apierr.Forbidden("Not enough permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func HasRole(u models.User, roles ...models.Role) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

func GetUserFromContext(r *http.Request) (models.User, bool) {
	user, ok := r.Context().Value(userKey).(models.User)
	return user, ok
}

// WithUser is used by tests and internal callers to attach a principal.
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if websocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// PathID parses a numeric mux path variable.
func PathID(r *http.Request, key string) (uint, error) {
	n, err := strconv.ParseUint(mux.Vars(r)[key], 10, 64)
	if err != nil || n == 0 {
		return 0, apierr.BadRequest("Invalid " + key)
	}
	return uint(n), nil
}

// QueryUint returns nil when the parameter is absent or malformed.
func QueryUint(r *http.Request, key string) *uint {
	n, err := strconv.ParseUint(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return nil
	}
	v := uint(n)
	return &v
}
