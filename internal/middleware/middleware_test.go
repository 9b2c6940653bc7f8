package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/halaqa-api/internal/models"
	"github.com/noah-isme/halaqa-api/internal/service"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
	"github.com/noah-isme/halaqa-api/pkg/logger"
)

type validatorStub struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.token = token
	return v.claims, v.err
}

func newGuardedRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(logger.UserIDKey)})
	})
	r.GET("/guarded", handlers...)
	return r
}

func TestJWT(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}}
	router := newGuardedRouter(JWT(stub))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"valid", "Bearer good-token", http.StatusOK},
		{"lowercase scheme", "bearer good-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
		})
	}
	assert.Equal(t, "good-token", stub.token)
}

func TestJWTPropagatesUserID(t *testing.T) {
	stub := &validatorStub{claims: &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}}
	router := newGuardedRouter(JWT(stub))

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"student-1"}`, w.Body.String())
}

func TestJWTRejectsInvalidToken(t *testing.T) {
	stub := &validatorStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")}
	router := newGuardedRouter(JWT(stub))

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer stale")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")
}

func TestRequireRoles(t *testing.T) {
	withRole := func(role models.UserRole) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				c.Set(ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: role})
			}
			c.Next()
		}
	}

	cases := []struct {
		role   models.UserRole
		status int
	}{
		{models.RoleTeacher, http.StatusOK},
		{models.RoleAdmin, http.StatusOK},
		{models.RoleStudent, http.StatusForbidden},
		{"", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		router := newGuardedRouter(withRole(tc.role), RequireRoles(models.RoleTeacher, models.RoleAdmin))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", nil))
		assert.Equal(t, tc.status, w.Code, "role %q", tc.role)
	}
}

func TestMetricsRecordsRoutes(t *testing.T) {
	metrics := service.NewMetricsService()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/halaqas/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/halaqas/h-1", "/nowhere"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)

	paths := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths[label.GetValue()] = true
				}
			}
		}
	}
	assert.True(t, paths["/halaqas/:id"])
	assert.True(t, paths["unmatched"])
	assert.False(t, paths["/nowhere"])
}
