package signal

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// wsConn is one relay client. Frames are queued on send and written by writePump.
type wsConn struct {
	conn  *websocket.Conn
	room  string
	token string
	send  chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn, room, token string, buffer int) *wsConn {
	return &wsConn{conn: ws, room: room, token: token, send: make(chan []byte, buffer)}
}

func (c *wsConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
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

// Conn adapts a client-side websocket to signaling.Conn.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	wmu          sync.Mutex
}

func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *Conn) WriteMessage(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
