package routes

import (
	"github.com/labstack/echo/v4"
)

// Registrar is implemented by every handler in this package.
type Registrar interface {
	Register(g *echo.Group)
}

// Register mounts the handlers under /api/v1.
func Register(e *echo.Echo, handlers ...Registrar) *echo.Group {
	api := e.Group("/api/v1")
	for _, h := range handlers {
		h.Register(api)
	}
	return api
}
