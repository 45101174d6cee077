// Package signaling carries session envelopes over an ordered duplex transport.
// The transport is reconnected on loss; nothing queued before a loss is replayed.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conn is one established transport connection.
// ReadMessage blocks until a frame arrives or Close is called.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage([]byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Handler receives the raw data of one envelope. Handlers run on the read loop,
// in arrival order.
type Handler func(ctx context.Context, data json.RawMessage)

type Config struct {
	ReconnectInterval time.Duration
	OutboxSize        int
	// DrainTimeout bounds how long Close waits for queued frames to be written.
	DrainTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{ReconnectInterval: 3 * time.Second, OutboxSize: 256, DrainTimeout: time.Second}
}

// outbox belongs to one connection and is abandoned with it.
type outbox struct {
	frames  chan []byte
	pending atomic.Int64
}

type Channel struct {
	dialer   Dialer
	cfg      Config
	log      zerolog.Logger
	handlers map[core.MessageType]Handler
	connects *core.Bus[struct{}]

	mu      sync.Mutex
	out     *outbox
	conn    Conn
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(dialer Dialer, cfg Config, owner domain.ParticipantID) *Channel {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultConfig().ReconnectInterval
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultConfig().OutboxSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	return &Channel{
		dialer:   dialer,
		cfg:      cfg,
		log:      log.With().Str("module", "signaling").Str("participant", string(owner)).Logger(),
		handlers: make(map[core.MessageType]Handler),
		connects: core.NewBus[struct{}]("signaling.connected"),
		done:     make(chan struct{}),
	}
}

// Handle registers the handler for a message type. Must be called before Start.
func (c *Channel) Handle(t core.MessageType, h Handler) {
	c.handlers[t] = h
}

// SubscribeConnected notifies after every successful (re)connect, the first one included.
func (c *Channel) SubscribeConnected(buffer int) (<-chan struct{}, func()) {
	return c.connects.Subscribe(buffer)
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out != nil
}

func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
}

// Send queues one message. It never blocks: while disconnected, or when the
// outbox is full, the message is dropped and ErrSignalingUnavailable returned.
func (c *Channel) Send(t core.MessageType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("signaling: marshal %s: %w", t, err)
	}
	frame, err := json.Marshal(core.Envelope{Type: t, Data: data})
	if err != nil {
		return fmt.Errorf("signaling: marshal envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil || c.closed {
		c.log.Warn().Str("type", string(t)).Msg("dropped message while disconnected")
		return domain.ErrSignalingUnavailable
	}
	c.out.pending.Add(1)
	select {
	case c.out.frames <- frame:
		return nil
	default:
		c.out.pending.Add(-1)
		c.log.Warn().Str("type", string(t)).Msg("outbox full, message dropped")
		return domain.ErrSignalingUnavailable
	}
}

// Close gives queued frames up to DrainTimeout to go out, then stops the
// reconnect loop and the transport. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	out := c.out
	c.mu.Unlock()

	if out != nil {
		deadline := time.Now().Add(c.cfg.DrainTimeout)
		for out.pending.Load() > 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}

	c.mu.Lock()
	started := c.started
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()

	if started {
		<-c.done
	}
	c.connects.Close()
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	for {
		conn, err := c.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Dur("retry_in", c.cfg.ReconnectInterval).Msg("signaling connect failed")
		} else {
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Dur("retry_in", c.cfg.ReconnectInterval).Msg("signaling connection lost")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

func (c *Channel) serve(ctx context.Context, conn Conn) {
	out := &outbox{frames: make(chan []byte, c.cfg.OutboxSize)}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.out = out
	c.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go c.writePump(connCtx, conn, out, writerDone)

	c.log.Info().Msg("signaling connected")
	c.connects.Publish(struct{}{})

	c.readPump(connCtx, conn)

	c.mu.Lock()
	if c.out == out {
		c.out = nil
		c.conn = nil
	}
	c.mu.Unlock()
	cancel()
	_ = conn.Close()
	<-writerDone
}

func (c *Channel) writePump(ctx context.Context, conn Conn, out *outbox, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out.frames:
			err := conn.WriteMessage(frame)
			out.pending.Add(-1)
			if err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Channel) readPump(ctx context.Context, conn Conn) {
	for {
		frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env core.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.log.Warn().Err(err).Msg("malformed envelope")
			continue
		}
		h, ok := c.handlers[env.Type]
		if !ok {
			c.log.Debug().Str("type", string(env.Type)).Msg("no handler, ignored")
			continue
		}
		h(ctx, env.Data)
	}
}
