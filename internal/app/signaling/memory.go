package signaling

import (
	"context"
	"errors"
	"sync"
)

var ErrHubDown = errors.New("memory hub is down")

// MemoryHub is an in-process room relay. Every frame written by one connection
// is delivered, in order, to every other connection of the same room.
type MemoryHub struct {
	mu    sync.Mutex
	rooms map[string]map[*memoryConn]struct{}
	down  bool
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{rooms: make(map[string]map[*memoryConn]struct{})}
}

// Dialer returns a dialer bound to one room.
func (h *MemoryHub) Dialer(room string) Dialer {
	return memoryDialer{hub: h, room: room}
}

// SetDown makes every later Dial fail until it is reset.
func (h *MemoryHub) SetDown(down bool) {
	h.mu.Lock()
	h.down = down
	h.mu.Unlock()
}

// Drop closes every connection of the room, as a transport loss would.
func (h *MemoryHub) Drop(room string) {
	h.mu.Lock()
	conns := h.rooms[room]
	delete(h.rooms, room)
	h.mu.Unlock()
	for c := range conns {
		c.shutdown()
	}
}

func (h *MemoryHub) Count(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *MemoryHub) broadcast(room string, from *memoryConn, frame []byte) {
	h.mu.Lock()
	targets := make([]*memoryConn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != from {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.deliver(frame)
	}
}

func (h *MemoryHub) remove(room string, c *memoryConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[room]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
}

type memoryDialer struct {
	hub  *MemoryHub
	room string
}

func (d memoryDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.hub.mu.Lock()
	defer d.hub.mu.Unlock()
	if d.hub.down {
		return nil, ErrHubDown
	}
	c := &memoryConn{hub: d.hub, room: d.room, inbox: make(chan []byte, 1024), closed: make(chan struct{})}
	if d.hub.rooms[d.room] == nil {
		d.hub.rooms[d.room] = make(map[*memoryConn]struct{})
	}
	d.hub.rooms[d.room][c] = struct{}{}
	return c, nil
}

type memoryConn struct {
	hub    *MemoryHub
	room   string
	inbox  chan []byte
	once   sync.Once
	closed chan struct{}
	// wmu keeps frames of one writer in order across receivers.
	wmu sync.Mutex
}

func (c *memoryConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errors.New("memory conn closed")
	case f := <-c.inbox:
		return f, nil
	}
}

func (c *memoryConn) WriteMessage(frame []byte) error {
	select {
	case <-c.closed:
		return errors.New("memory conn closed")
	default:
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.hub.broadcast(c.room, c, frame)
	return nil
}

func (c *memoryConn) Close() error {
	c.hub.remove(c.room, c)
	c.shutdown()
	return nil
}

func (c *memoryConn) deliver(frame []byte) {
	select {
	case <-c.closed:
	case c.inbox <- frame:
	}
}

func (c *memoryConn) shutdown() {
	c.once.Do(func() { close(c.closed) })
}
