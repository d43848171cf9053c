package middleware

import (
	"Wayfarer/internal/auth"
	"Wayfarer/internal/model"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthRouter(a *auth.Authenticator, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(JWTAuth(a))
	if admin {
		r.Use(RequireAdmin())
	}
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"userId":   GetUserID(c),
			"role":     GetRole(c),
			"username": GetUsername(c),
		})
	})
	return r
}

func doGet(r http.Handler, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestJWTAuth_SetsIdentity(t *testing.T) {
	a := auth.NewAuthenticator("secret", "wayfarer", time.Hour)
	token, err := a.GenerateToken("u1", "alice", model.RoleUser)
	require.NoError(t, err)

	w := doGet(newAuthRouter(a, false), "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, model.RoleUser, body["role"])
}

func TestJWTAuth_Rejects(t *testing.T) {
	a := auth.NewAuthenticator("secret", "wayfarer", time.Hour)
	expired, err := auth.NewAuthenticator("secret", "wayfarer", -time.Minute).GenerateToken("u1", "alice", model.RoleUser)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":     "",
		"no bearer":   "Token abc",
		"empty token": "Bearer ",
		"garbage":     "Bearer not.a.jwt",
		"expired":     "Bearer " + expired,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w := doGet(newAuthRouter(a, false), header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	a := auth.NewAuthenticator("secret", "wayfarer", time.Hour)
	r := newAuthRouter(a, true)

	adminToken, _ := a.GenerateToken("a1", "root", model.RoleAdmin)
	assert.Equal(t, http.StatusOK, doGet(r, "Bearer "+adminToken).Code)

	userToken, _ := a.GenerateToken("u1", "alice", model.RoleUser)
	w := doGet(r, "Bearer "+userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ADMIN_REQUIRED", errorCode(t, w))
}

func TestRequireAdmin_NoIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireAdmin())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusForbidden, doGet(r, "").Code)
}

func TestRequestLoggerAndMetrics_PassThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()), Metrics())
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := doGet(r, "")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Request-ID", "abc123")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get("X-Request-ID"))
}
