package gateway

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// checkOrigin admits browsers from the configured origins. Requests without
// an Origin header come from non-browser clients and are admitted; the
// token is checked in IDENTIFY either way.
func (m *Manager) checkOrigin(r *http.Request) bool {
	if len(m.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(m.allowedOrigins, origin)
}

// HandleWebSocket handles GET /gateway by upgrading to WebSocket.
func (m *Manager) HandleWebSocket(c echo.Context) error {
	if m.closing.Load() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "gateway shutting down"})
	}

	ws, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("gateway upgrade failed", "remote", c.RealIP(), "error", err)
		return nil
	}

	conn := newConnection(ws, m)
	conn.enqueue(GatewayPayload{
		Op:   OpHello,
		Data: mustMarshal(HelloData{HeartbeatInterval: int(heartbeatInterval.Milliseconds())}),
	})

	go conn.writePump()
	go conn.readPump()
	return nil
}
