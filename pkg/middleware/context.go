package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// Context copies request identifiers into the request context. It must be registered with
// Use (not Pre) so the project id path parameter is already resolved.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetMethod(ctx, req.Method)
			ctx = appctx.SetRoute(ctx, c.Path())
			ctx = appctx.SetRemoteIP(ctx, c.RealIP())
			ctx = appctx.SetTenantID(ctx, req.Header.Get(HeaderTenantID))
			ctx = appctx.SetUserID(ctx, req.Header.Get(HeaderUserID))
			if projectID := c.Param("projectId"); projectID != "" {
				ctx = appctx.SetProjectID(ctx, projectID)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
