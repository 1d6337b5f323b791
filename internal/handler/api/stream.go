package api

import (
	"net/http"
	"time"

	"PriceSentinel/internal/service/broadcast"
	"PriceSentinel/internal/service/ratelimit"
	xhttp "PriceSentinel/pkg/http"
	"PriceSentinel/pkg/http/middleware"
	xlogger "PriceSentinel/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const defaultPingInterval = 30 * time.Second

// StreamHandler upgrades subscribers on /ws/signals and keeps them in the
// registry until they disconnect.
type StreamHandler struct {
	logger       *xlogger.Logger
	registry     *broadcast.Registry
	limiter      *ratelimit.Limiter
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewStreamHandler accepts upgrades whose Origin header matches origins.
func NewStreamHandler(logger *xlogger.Logger, registry *broadcast.Registry, limiter *ratelimit.Limiter, pingInterval time.Duration, origins []string) *StreamHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &StreamHandler{
		logger:   logger.With(xlogger.String("component", "stream")),
		registry: registry,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.Origins(origins).Allows(r.Header.Get(echo.HeaderOrigin))
			},
		},
		pingInterval: pingInterval,
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/signals", h.Signals)
}

func (h *StreamHandler) Signals(c echo.Context) error {
	remote := c.RealIP()
	if h.limiter != nil && !h.limiter.Allow(remote) {
		h.logger.Warn("subscriber rate limited", xlogger.String("remote", remote))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many connection attempts"))
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered the client
		h.logger.Debug("websocket upgrade failed", xlogger.String("remote", remote), xlogger.Error(err))
		return nil
	}

	conn := broadcast.NewWSConn(ws)
	id := h.registry.Register(conn)
	defer h.registry.Unregister(id)
	h.logger.Info("subscriber connected", xlogger.Uint64("conn_id", uint64(id)), xlogger.String("remote", remote))

	go h.keepAlive(conn)

	err = conn.ReadLoop(2 * h.pingInterval)
	h.logger.Info("subscriber disconnected", xlogger.Uint64("conn_id", uint64(id)), xlogger.Error(err))
	return nil
}

// keepAlive pings until the connection closes; a failed ping closes it.
func (h *StreamHandler) keepAlive(conn *broadcast.WSConn) {
	t := time.NewTicker(h.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-conn.Done():
			return
		case <-t.C:
			if err := conn.Ping(5 * time.Second); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
