// Package middleware provides HTTP middleware for the labnet REST API,
// including Basic authentication, request logging and request metrics.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/labnet/internal/api/models"
)

// RequireBasicAuth enforces HTTP Basic credentials from users
// (name -> password). With allowLocal set, loopback clients pass without
// credentials.
func RequireBasicAuth(users map[string]string, allowLocal bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowLocal {
			if ip := c.RemoteIP(); ip == "127.0.0.1" || ip == "::1" {
				c.Next()
				return
			}
		}
		user, pass, ok := c.Request.BasicAuth()
		if ok {
			if want, known := users[user]; known && subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1 {
				c.Set(gin.AuthUserKey, user)
				c.Next()
				return
			}
		}
		c.Header("WWW-Authenticate", `Basic realm="labnet"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
	}
}
