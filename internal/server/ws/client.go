package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// client is one authenticated connection and its ConnectionState.
type client struct {
	gw   *Gateway
	conn *websocket.Conn

	id          string
	identity    domain.Identity
	connectedAt time.Time
	lastBeat    atomic.Int64 // unix nanos of the last heartbeat

	// subs is guarded by Gateway.mu.
	subs map[domain.MarketID]struct{}

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) lastHeartbeat() time.Time {
	return time.Unix(0, c.lastBeat.Load())
}

// enqueue queues data without blocking. A full buffer drops the frame.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.gw.logger.Warn("ws: dropping message for slow client",
			slog.String("conn_id", c.id),
		)
		return false
	}
}

func (c *client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.gw.logger.Error("ws: encode message", slog.String("error", err.Error()))
		return
	}
	c.enqueue(data)
}

func (c *client) sendError(msg string) {
	c.sendJSON(errorMsg{Type: TypeError, Message: msg})
}

// close stops the write pump. The socket itself is closed by the pumps.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump is the connection's single in-order mutation path: every inbound
// operation is dispatched from here, one at a time.
func (c *client) readPump() {
	defer func() {
		c.gw.disconnect(c, "closed")
		c.conn.Close()
	}()

	pongWait := c.gw.cfg.PongWait
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.logger.Warn("ws: unexpected close error",
					slog.String("conn_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		// Any inbound frame proves the transport is alive.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError(MsgInvalidMessage)
			continue
		}
		c.gw.dispatch(c, msg)
	}
}

// writePump drains send to the socket and pings at the configured interval.
func (c *client) writePump() {
	ticker := time.NewTicker(c.gw.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
