package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xka/flowmon/common/clients"
	"github.com/xka/flowmon/common/logger"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// EditorIDKey is the echo context key for the editor instance id
	EditorIDKey ContextKey = "editor_id"

	// EditorIDHeader identifies the editor instance a request belongs to
	EditorIDHeader = "X-Editor-ID"
)

// ExtractEditorID requires the X-Editor-ID header and stores it in the echo
// context. The id is also put on the request context so outgoing worker
// manager calls carry it.
//
// Usage:
//
//	g := e.Group("/api/v1/editor")
//	g.Use(middleware.ExtractEditorID())
//
// Accessing in handlers:
//
//	editorID := middleware.GetEditorID(c)
func ExtractEditorID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			editorID := c.Request().Header.Get(EditorIDHeader)
			if editorID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "X-Editor-ID header is required",
				})
			}

			c.Set(string(EditorIDKey), editorID)
			ctx := clients.WithEditorID(c.Request().Context(), editorID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// PropagateRequestID copies the id assigned by echo's RequestID middleware
// into the request context for the logger and the worker manager client.
// Register it after middleware.RequestID().
func PropagateRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if requestID != "" {
				ctx := clients.WithRequestID(c.Request().Context(), requestID)
				ctx = context.WithValue(ctx, logger.RequestIDKey, requestID)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// GetEditorID retrieves the editor id from the echo context
// Returns empty string if not set
func GetEditorID(c echo.Context) string {
	editorID, _ := c.Get(string(EditorIDKey)).(string)
	return editorID
}
