package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/notaflow/notaflow/internal/types"
)

// RequestIDMiddleware tags every request with an id and resolves the tenant
// from the X-Tenant-Id header, falling back to the default tenant for
// single-tenant deployments.
func RequestIDMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = context.WithValue(ctx, types.CtxRequestID, requestID)

	tenantID := c.GetHeader("X-Tenant-Id")
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}
	ctx = context.WithValue(ctx, types.CtxTenantID, tenantID)

	c.Request = c.Request.WithContext(ctx)
	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}
