package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore disables intermediary caching. Attempt payloads carry question
// content and per-learner state, so they must never land in a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
