package routes

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-backend/pkg/analytics"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/certificates"
	"lms-backend/pkg/config"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/models"
	"lms-backend/pkg/reviews"
	"lms-backend/pkg/testdb"
	"lms-backend/pkg/token"
	"lms-backend/pkg/users"
)

func TestRoleGatesAndPublicRoutes(t *testing.T) {
	db := testdb.Open(t)
	log := logger.Nop()
	tm := token.NewTokenManager(&config.Config{SecretKey: "s", Algorithm: "HS256", AccessTokenExpireMinutes: 5, RefreshTokenExpireDays: 1})
	admin := testdb.User(t, db, "admin", models.RoleAdmin)
	emp := testdb.User(t, db, "emp", models.RoleEmployee)

	rec := audit.NewService(db, log)
	h := Handlers{
		Users:        users.NewHandler(users.NewService(db, rec, log), log),
		Certificates: certificates.NewHandler(certificates.NewService(db, rec, log), log),
		Analytics:    analytics.NewHandler(analytics.NewService(db, log), log),
		Reviews:      reviews.NewHandler(reviews.NewService(db, rec, log), log),
		Audit:        audit.NewHandler(rec, log),
	}
	r := mux.NewRouter()
	Setup(r.PathPrefix("/api/v1").Subrouter(), middleware.NewAuth(tm, db), h)

	bearer := func(u models.User) string {
		pair, err := tm.Issue(u)
		require.NoError(t, err)
		return "Bearer " + pair.AccessToken
	}

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"no token", "/api/v1/users", "", http.StatusUnauthorized},
		{"employee on staff route", "/api/v1/users", bearer(emp), http.StatusForbidden},
		{"admin lists users", "/api/v1/users", bearer(admin), http.StatusOK},
		{"employee on audit", "/api/v1/audit/logs", bearer(emp), http.StatusForbidden},
		{"verify is public", "/api/v1/certificates/verify/nope", "", http.StatusNotFound},
		{"non numeric id", "/api/v1/users/abc", bearer(admin), http.StatusNotFound},
		{"employee on dashboard", "/api/v1/analytics/dashboard-metrics", bearer(emp), http.StatusForbidden},
		{"admin on dashboard", "/api/v1/analytics/dashboard-metrics", bearer(admin), http.StatusOK},
		{"employee reads own analytics", "/api/v1/analytics/users/" + strconv.FormatUint(uint64(emp.ID), 10), bearer(emp), http.StatusOK},
		{"employee on reviews", "/api/v1/reviews", bearer(emp), http.StatusForbidden},
		{"admin on review stats", "/api/v1/reviews/stats", bearer(admin), http.StatusOK},
		{"employee reads badges", "/api/v1/badges", bearer(emp), http.StatusOK},
		{"employee reads own points", "/api/v1/points/users/" + strconv.FormatUint(uint64(emp.ID), 10), bearer(emp), http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.path, nil)
		if c.auth != "" {
			req.Header.Set("Authorization", c.auth)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, c.status, w.Code, c.name)
	}
}
