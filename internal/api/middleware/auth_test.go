package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jroosing/labnet/internal/api/middleware"
)

func authRouter(allowLocal bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequireBasicAuth(map[string]string{"admin": "pw"}, allowLocal))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(gin.AuthUserKey)})
	})
	return r
}

func TestRequireBasicAuth(t *testing.T) {
	tests := []struct {
		name       string
		allowLocal bool
		remote     string
		user, pass string
		want       int
	}{
		{"valid credentials", false, "192.0.2.1:4000", "admin", "pw", http.StatusOK},
		{"wrong password", false, "192.0.2.1:4000", "admin", "nope", http.StatusUnauthorized},
		{"unknown user", false, "192.0.2.1:4000", "root", "pw", http.StatusUnauthorized},
		{"no credentials", false, "192.0.2.1:4000", "", "", http.StatusUnauthorized},
		{"loopback without bypass", false, "127.0.0.1:4000", "", "", http.StatusUnauthorized},
		{"loopback bypass v4", true, "127.0.0.1:4000", "", "", http.StatusOK},
		{"loopback bypass v6", true, "[::1]:4000", "", "", http.StatusOK},
		{"bypass is loopback only", true, "10.0.0.7:4000", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remote
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			w := httptest.NewRecorder()
			authRouter(tt.allowLocal).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="labnet"`, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequireBasicAuth_SetsUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.SetBasicAuth("admin", "pw")
	w := httptest.NewRecorder()
	authRouter(false).ServeHTTP(w, req)

	assert.JSONEq(t, `{"user":"admin"}`, w.Body.String())
}
