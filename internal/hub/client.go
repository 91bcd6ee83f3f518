package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fanstage/live-service/internal/config"
	"github.com/fanstage/live-service/pkg/log"
)

// Client is a single open push channel to one connected user. A user may
// hold several clients at once; each has its own connection id.
type Client struct {
	ID        string
	UserID    string
	Username  string
	CreatedAt time.Time

	conn *websocket.Conn // nil for clients created in tests
	send chan []byte
	done chan struct{}

	closeOnce  sync.Once
	closed     atomic.Bool
	lastActive atomic.Int64
	cfg        config.WebSocketConfig
}

func newClient(id, userID, username string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	depth := cfg.SendQueueDepth
	if depth <= 0 {
		depth = 256
	}
	c := &Client{
		ID:        id,
		UserID:    userID,
		Username:  username,
		CreatedAt: time.Now(),
		conn:      conn,
		send:      make(chan []byte, depth),
		done:      make(chan struct{}),
		cfg:       cfg,
	}
	c.lastActive.Store(time.Now().UnixNano())
	return c
}

// Touch records client activity.
func (c *Client) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the last inbound activity.
func (c *Client) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// enqueue appends a message to the outbound queue without blocking.
// A full queue means the client is too slow to keep up and is treated as
// dead rather than stalling the publisher.
func (c *Client) enqueue(message []byte) error {
	if c.closed.Load() {
		return ErrDeadConnection
	}
	select {
	case c.send <- message:
		return nil
	default:
		return ErrDeadConnection
	}
}

// SendMessage marshals and enqueues a message for this client.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// markClosed flips the closed flag and signals the write pump. The send
// channel itself is never closed so concurrent enqueues cannot panic.
func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

// ReadPump reads inbound frames and dispatches them to handler. It exits on
// any read error and reports the disconnect through onClose.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	if c.conn == nil {
		<-c.done
		return
	}

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket read error")
			}
			return
		}

		c.Touch()
		handler(c, message)
	}
}

// WritePump drains the outbound queue onto the wire and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		if c.conn != nil {
			c.conn.Close()
		}
	}()

	if c.conn == nil {
		<-c.done
		return
	}

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
