package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/prettyneat-io/pumpfleet/internal/platform/auth"
)

// Audit logs every state-changing staff API call with the acting user and
// the record it touched. Reads are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method == http.MethodGet || req.Method == http.MethodHead ||
				!strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			rid := GetRequestID(c)
			resource, id := splitResource(req.URL.Path)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(req.Context())).
				Strs("user_roles", auth.RolesFromContext(req.Context())).
				Str("action", methodAction(req.Method, req.URL.Path)).
				Str("resource", resource).
				Str("resource_id", id).
				Int("status", status).
				Msg("staff_change")

			return err
		}
	}
}

func methodAction(method, path string) string {
	// Lifecycle verbs are the last path segment: /equipment/:id/assign.
	if method == http.MethodPost {
		segs := strings.Split(strings.Trim(path, "/"), "/")
		if len(segs) >= 5 {
			return segs[len(segs)-1]
		}
		return "create"
	}
	switch method {
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// splitResource returns the collection and record id of /api/v1/<res>/<id>/...
func splitResource(path string) (string, string) {
	segs := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	resource, id := "unknown", ""
	if len(segs) > 0 && segs[0] != "" {
		resource = segs[0]
	}
	if len(segs) > 1 {
		id = segs[1]
	}
	return resource, id
}
