package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EternisAI/vconnector/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	api := r.Group("/api", JWTAuth(testSecret))
	api.GET("/read", RequireRole(auth.RoleReader), ok)
	api.POST("/write", RequireRole(), ok)
	return r
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(auth.Config{JWTSecret: testSecret}, "tester", role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(r *gin.Engine, method, path, authz string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthMissingHeader(t *testing.T) {
	w := do(setupRouter(), "GET", "/api/read", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestJWTAuthInvalidToken(t *testing.T) {
	w := do(setupRouter(), "GET", "/api/read", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoles(t *testing.T) {
	r := setupRouter()

	assert.Equal(t, http.StatusOK, do(r, "GET", "/api/read", token(t, auth.RoleReader)).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "POST", "/api/write", token(t, auth.RoleReader)).Code)
	assert.Equal(t, http.StatusOK, do(r, "GET", "/api/read", token(t, auth.RoleAdmin)).Code)
	assert.Equal(t, http.StatusOK, do(r, "POST", "/api/write", token(t, auth.RoleAdmin)).Code)
}

func TestRequestIDPropagated(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/read", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	setupRouter().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
