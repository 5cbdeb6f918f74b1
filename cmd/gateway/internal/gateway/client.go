package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/alert"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/stock-tracker/cmd/gateway/internal/protocol"
)

const (
	maxMessageSize = 512 * 1024
	restoreTimeout = 3 * time.Second
)

// Client is one live websocket session. It owns the connection's alert set;
// the hub owns its streams.
type Client struct {
	id     string
	owner  string
	conn   net.Conn
	hub    *hub.Hub
	send   chan []byte
	logger *zap.Logger
	alerts alert.Set

	mu          sync.Mutex
	closed      bool
	releaseOnce sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, owner string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	id := uuid.NewString()
	return &Client{
		id:         id,
		owner:      owner,
		conn:       conn,
		hub:        h,
		send:       make(chan []byte, sendBuffer),
		logger:     logger.With(zap.String("conn", id)),
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

func (c *Client) Start() {
	metrics.Conns.Inc()
	c.logger.Info("Client connected", zap.String("remote", c.conn.RemoteAddr().String()), zap.String("owner", c.owner))

	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	if err := c.hub.Restore(ctx, c); err != nil {
		c.logger.Warn("Could not restore saved state", zap.Error(err))
	}
	cancel()

	go c.writePump()
	go c.readPump()
}

func (c *Client) ID() string           { return c.id }
func (c *Client) Owner() string        { return c.owner }
func (c *Client) AlertSet() *alert.Set { return &c.alerts }

// Close only closes the channel; writePump closes the conn.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode outbound message", zap.Error(err))
		return
	}
	c.SendBytes(b)
}

// SendBytes never blocks; a full buffer drops the message.
func (c *Client) SendBytes(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		metrics.DroppedTotal.WithLabelValues("slow_client").Inc()
	}
}

// release runs once, whichever pump notices the disconnect first.
func (c *Client) release() {
	c.releaseOnce.Do(func() {
		c.hub.Unregister(c)
		metrics.Conns.Dec()
		c.logger.Info("Client disconnected")
	})
}

func (c *Client) readPump() {
	defer func() {
		c.release()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		case ws.OpPing:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		case ws.OpText:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

			var req protocol.WSRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, Status: "error", Message: "Invalid JSON"})
				continue
			}
			c.hub.HandleCommand(c, req)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.release()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
