package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// storageContext bounds a storage call by timeout. A non-positive timeout only inherits
// the request's cancellation.
func storageContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := requestContext(c)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
