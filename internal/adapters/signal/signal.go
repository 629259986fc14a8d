package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// RelayWSController terminates the per-participant WebSocket and feeds the
// relay. One readPump/writePump pair per connection.
type RelayWSController struct {
	Relay   *app.Relay
	Limiter *RateLimiter

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewRelayWSController(relay *app.Relay, limiter *RateLimiter) *RelayWSController {
	return &RelayWSController{
		Relay:      relay,
		Limiter:    limiter,
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and admits the participant to the room
// named by the `room` query param. The display name is opaque caller
// identity attached by the excluded auth surface.
func (ctl *RelayWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Query("room"))
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing room"})
		return
	}
	caller, err := domain.NewCaller(c.DefaultQuery("name", "guest"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	sid := ctl.Relay.Connect(roomID, caller, conn)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("new WS connection")

	go ctl.readPump(ctx, cancel, sid, conn)
}
