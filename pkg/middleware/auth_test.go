package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-backend/pkg/config"
	"lms-backend/pkg/models"
	"lms-backend/pkg/testdb"
	"lms-backend/pkg/token"
)

func setup(t *testing.T) (*Auth, *token.TokenManager, models.User) {
	db := testdb.Open(t)
	tm := token.NewTokenManager(&config.Config{SecretKey: "s", Algorithm: "HS256", AccessTokenExpireMinutes: 5, RefreshTokenExpireDays: 1})
	u := testdb.User(t, db, "ann", models.RoleEmployee)
	return NewAuth(tm, db), tm, u
}

func whoami(w http.ResponseWriter, r *http.Request) {
	u, _ := GetUserFromContext(r)
	w.Write([]byte(u.Username))
}

func TestAuthMiddleware(t *testing.T) {
	auth, tm, u := setup(t)
	pair, err := tm.Issue(u)
	require.NoError(t, err)
	h := auth.AuthMiddleware(http.HandlerFunc(whoami))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"refresh kind", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"access", "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, c.status, rec.Code, c.name)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "ann", rec.Body.String())
}

func TestAuthRejectsDeactivatedUser(t *testing.T) {
	auth, tm, u := setup(t)
	pair, err := tm.Issue(u)
	require.NoError(t, err)
	require.NoError(t, auth.db.Model(&u).Update("is_active", false).Error)

	_, err = auth.Authenticate(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Account is deactivated")
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleAdmin, models.RoleHR)(http.HandlerFunc(whoami))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	emp := models.User{Username: "e", Role: models.RoleEmployee}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), emp)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not enough permissions")

	hr := models.User{Username: "h", Role: models.RoleHR}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), hr)))
	assert.Equal(t, http.StatusOK, rec.Code)
}
