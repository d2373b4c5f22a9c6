package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"collab-service/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection. Frames are queued on a buffered
// channel drained by WritePump; the channel is never closed, done signals
// shutdown instead.
type Client struct {
	connID         string
	conn           *websocket.Conn
	send           chan []byte
	done           chan struct{}
	closeOnce      sync.Once
	maxMessageSize int64
}

// NewClient creates a client that is not yet bound to a connection.
func NewClient(connID string, bufferSize int, maxMessageSize int64) *Client {
	return &Client{
		connID:         connID,
		send:           make(chan []byte, bufferSize),
		done:           make(chan struct{}),
		maxMessageSize: maxMessageSize,
	}
}

func (c *Client) ConnID() string { return c.connID }

// Send enqueues frame without blocking. A full buffer drops the frame.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		observability.IncDroppedFrame()
		logrus.WithField("conn_id", c.connID).Warn("send buffer full, dropping frame")
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) attach(conn *websocket.Conn) {
	c.conn = conn
}

// ReadPump hands every text frame to onMessage in arrival order and returns
// the error that ended the connection.
func (c *Client) ReadPump(onMessage func([]byte)) error {
	if c.maxMessageSize > 0 {
		c.conn.SetReadLimit(c.maxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			entry := logrus.WithField("conn_id", c.connID)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.WithError(err).Warn("websocket read error")
			} else {
				entry.Debug("websocket closed")
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		onMessage(message)
	}
}

// WritePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logrus.WithError(err).WithField("conn_id", c.connID).Warn("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithError(err).WithField("conn_id", c.connID).Debug("websocket ping failed")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
