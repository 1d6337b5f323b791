package api

import (
	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/usecase"
	xhttp "PriceSentinel/pkg/http"
	xlogger "PriceSentinel/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves stored prices and signals.
type MarketHandler struct {
	logger *xlogger.Logger
	query  *usecase.MarketQuery
}

func NewMarketHandler(logger *xlogger.Logger, query *usecase.MarketQuery) *MarketHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &MarketHandler{logger: logger, query: query}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/prices", h.Prices)
	g.GET("/signals", h.Signals)
	e.GET("/healthz", h.Health)
}

func (h *MarketHandler) Prices(c echo.Context) error {
	req := &models.ListPricesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.query.Prices(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("prices query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not read prices").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MarketHandler) Signals(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.query.Signals(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("signals query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("could not read signals").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MarketHandler) Health(c echo.Context) error {
	if err := h.query.Health(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"store": "ok"})
}
