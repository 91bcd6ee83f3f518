package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fanstage/live-service/pkg/response"
)

const (
	UserIDKey   = "user_id"
	UsernameKey = "username"

	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
)

// Identity extracts the authenticated user injected by the API gateway.
// Token validation happens upstream; this service only trusts the forwarded
// identity headers. Requests without an identity are rejected.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			response.Unauthorized(c, "missing identity")
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		if username := c.GetHeader(HeaderUsername); username != "" {
			c.Set(UsernameKey, username)
		}

		c.Next()
	}
}

// OptionalIdentity extracts the identity headers when present but lets
// anonymous requests through. Used on endpoints that serve public data.
func OptionalIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(HeaderUserID); userID != "" {
			c.Set(UserIDKey, userID)
		}
		if username := c.GetHeader(HeaderUsername); username != "" {
			c.Set(UsernameKey, username)
		}
		c.Next()
	}
}

// UserID returns the authenticated user id from the gin context.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(UserIDKey); ok {
		return v.(string)
	}
	return ""
}

// Username returns the authenticated username from the gin context.
func Username(c *gin.Context) string {
	if v, ok := c.Get(UsernameKey); ok {
		return v.(string)
	}
	return ""
}
