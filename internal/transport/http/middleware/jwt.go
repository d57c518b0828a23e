package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chatvault/internal/pkg/jwtutil"
	"chatvault/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// AuthJWT authenticates requests via the Authorization header only.
func AuthJWT(secret string) gin.HandlerFunc {
	return authJWT(secret, false)
}

// AuthJWTQueryToken additionally accepts the token as a ?token= query
// parameter. Websocket clients cannot set headers, so the upgrade route
// needs it; plain REST routes must not, or tokens land in access logs.
func AuthJWTQueryToken(secret string) gin.HandlerFunc {
	return authJWT(secret, true)
}

func authJWT(secret string, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c, allowQuery)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "missing or malformed authorization header")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

func bearerToken(c *gin.Context, allowQuery bool) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		if allowQuery {
			if token := strings.TrimSpace(c.Query("token")); token != "" {
				return token, true
			}
		}
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix)), true
}
