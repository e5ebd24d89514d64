package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xka/flowmon/common/ratelimit"
)

// EditorRateLimit caps how often one editor may hit the wrapped route within
// window. Requires ExtractEditorID to run first. Limiter errors let the
// request through.
func EditorRateLimit(limiter ratelimit.Limiter, scope string, limit int64, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			editorID := GetEditorID(c)
			if editorID == "" || limiter == nil {
				return next(c)
			}

			result, err := limiter.Allow(c.Request().Context(), "editor:"+editorID+":"+scope, limit, window)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				retryAfter := int64(math.Ceil(result.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "editor_rate_limit_exceeded",
					"message": "Too many requests for this editor. Please wait before trying again.",
					"details": map[string]interface{}{
						"editor_id":           editorID,
						"scope":               scope,
						"limit":               result.Limit,
						"window":              window.String(),
						"current_count":       result.CurrentCount,
						"retry_after_seconds": retryAfter,
					},
				})
			}

			return next(c)
		}
	}
}
