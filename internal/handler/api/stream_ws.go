package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	models "LiqMap/internal/domain/models"
	"LiqMap/internal/service/metrics"
	xlogger "LiqMap/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

// WSHub fans freshly computed snapshots out to websocket subscribers.
// Subscribers pick one symbol at connect time; slow clients are dropped
// rather than allowed to stall the broadcast.
type WSHub struct {
	logger   *xlogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	symbol string
	send   chan []byte
	conn   *websocket.Conn
}

func NewWSHub(logger *xlogger.Logger) *WSHub {
	metrics.Register()
	return &WSHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *WSHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/heatmap", h.Serve)
}

// Serve upgrades the connection and streams snapshots for ?symbol=.
func (h *WSHub) Serve(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "symbol required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", xlogger.Error(err))
		return nil
	}

	cl := &wsClient{symbol: symbol, send: make(chan []byte, wsSendBuffer), conn: conn}
	h.add(cl)

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// Broadcast delivers one snapshot to all subscribers of its symbol.
func (h *WSHub) Broadcast(s *models.HeatmapSnapshot) {
	if s == nil {
		return
	}
	b, err := json.Marshal(s)
	if err != nil {
		h.logger.Error("ws marshal snapshot", xlogger.Error(err))
		return
	}

	h.mu.RLock()
	var stale []*wsClient
	for cl := range h.clients {
		if cl.symbol != s.Symbol {
			continue
		}
		select {
		case cl.send <- b:
		default:
			stale = append(stale, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range stale {
		h.logger.Warn("ws dropping slow subscriber", xlogger.String("symbol", cl.symbol))
		h.remove(cl)
	}
}

// Deliver makes the hub usable as a pipeline sink.
func (h *WSHub) Deliver(_ context.Context, s *models.HeatmapSnapshot) error {
	h.Broadcast(s)
	return nil
}

// Close disconnects all subscribers.
func (h *WSHub) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		h.remove(cl)
	}
}

func (h *WSHub) add(cl *wsClient) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	metrics.WSSubscribers.WithLabelValues(cl.symbol).Inc()
}

func (h *WSHub) remove(cl *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	if ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	if ok {
		metrics.WSSubscribers.WithLabelValues(cl.symbol).Dec()
		_ = cl.conn.Close()
	}
}

func (h *WSHub) writeLoop(cl *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case b, ok := <-cl.send:
			if !ok {
				_ = cl.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(wsWriteWait))
				return
			}
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.remove(cl)
				return
			}
		case <-ticker.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				h.remove(cl)
				return
			}
		}
	}
}

// readLoop drains client frames so pings/pongs and close frames are handled.
func (h *WSHub) readLoop(cl *wsClient) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(1024)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}
