package api

import (
	xhttp "PriceSentinel/pkg/http"

	"github.com/labstack/echo/v4"
)

// Routes mounts several handlers on one server.
type Routes []xhttp.Handler

func (r Routes) RegisterRoutes(e *echo.Echo) {
	for _, h := range r {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}

var _ xhttp.Handler = Routes(nil)
