package middleware

import "github.com/gin-gonic/gin"

// CacheControl sets the Cache-Control header for every response of the group.
// Test state changes on every action, so the API uses "no-store".
func CacheControl(directive string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", directive)
		c.Next()
	}
}
