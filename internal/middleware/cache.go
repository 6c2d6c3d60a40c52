package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// CacheControl marks responses as publicly cacheable for maxAge. Immutable
// content is never revalidated by browsers.
func CacheControl(maxAge time.Duration, immutable bool) gin.HandlerFunc {
	value := "public, max-age=" + strconv.Itoa(int(maxAge/time.Second))
	if immutable {
		value += ", immutable"
	}
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}

// NoStore keeps personal responses out of shared caches.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
