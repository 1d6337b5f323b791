package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	corsMethods = "GET, OPTIONS"
	corsHeaders = "Origin, Content-Type, Accept"
)

// Origins is an allow list of browser origins. An entry is either "*", an
// exact origin, or a scheme plus wildcard host such as "https://*.example.com".
type Origins []string

// Allows reports whether origin matches an entry. An empty origin is a
// non-browser client and always passes.
func (o Origins) Allows(origin string) bool {
	if origin == "" {
		return true
	}
	for _, p := range o {
		if p == "*" || strings.EqualFold(p, origin) {
			return true
		}
		if i := strings.Index(p, "://*."); i >= 0 {
			scheme, suffix := p[:i+3], p[i+4:]
			if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, suffix) && len(origin) > len(scheme)+len(suffix) {
				return true
			}
		}
	}
	return false
}

// CORS answers preflight requests for the read-only API. Disallowed origins
// get no CORS headers and their preflights are refused.
func CORS(allowed Origins) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			origin := req.Header.Get(echo.HeaderOrigin)
			h := c.Response().Header()
			h.Add(echo.HeaderVary, echo.HeaderOrigin)

			if origin == "" || !allowed.Allows(origin) {
				if origin != "" && req.Method == http.MethodOptions {
					return c.NoContent(http.StatusForbidden)
				}
				return next(c)
			}

			h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			if req.Method != http.MethodOptions {
				return next(c)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, corsMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, corsHeaders)
			return c.NoContent(http.StatusNoContent)
		}
	}
}
