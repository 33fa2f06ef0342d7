package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subscriber side of the hub: something that can receive a
// serialized event and be closed. The websocket handler wraps gorilla
// connections in this interface; tests substitute in-memory fakes.
type Conn interface {
	// Send delivers one serialized event. It must be safe for concurrent use.
	Send(data []byte) error
	// Close tears the connection down. Closing twice is safe.
	Close() error
}

// WSConn adapts a gorilla websocket connection to the hub's Conn interface.
// gorilla permits at most one concurrent writer, so all writes (including
// control frames sent by the read loop) go through the wrapper's mutex.
type WSConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closed       bool
}

// NewWSConn wraps a websocket connection with a per-write deadline
func NewWSConn(conn *websocket.Conn, writeTimeout time.Duration) *WSConn {
	return &WSConn{conn: conn, writeTimeout: writeTimeout}
}

func (c *WSConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
