package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass staff authentication.
var publicPaths = map[string]bool{
	"/health":               true,
	"/health/db":            true,
	"/metrics":              true,
	"/holiday-pump-request": true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, "/holiday-pump-request/")
}
