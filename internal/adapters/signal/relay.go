// Package signal is the websocket side of signaling: a development relay that
// fans frames out to the other clients of a room, and the dialer the
// signaling channel uses to reach it.
package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type RelayConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
	// At most JoinLimit connections per client token within JoinWindow.
	JoinLimit  int
	JoinWindow time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
		SendBuffer: 64,
		JoinLimit:  10,
		JoinWindow: time.Minute,
	}
}

// Relay broadcasts every well-formed envelope to the rest of its room.
// It does not interpret routes; clients drop what is not for them.
type Relay struct {
	cfg      RelayConfig
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu     sync.Mutex
	rooms  map[string]map[*wsConn]struct{}
	closed bool
}

func NewRelay(cfg RelayConfig) *Relay {
	def := DefaultRelayConfig()
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = def.PingPeriod
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.JoinLimit <= 0 {
		cfg.JoinLimit = def.JoinLimit
	}
	if cfg.JoinWindow <= 0 {
		cfg.JoinWindow = def.JoinWindow
	}
	return &Relay{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.JoinLimit, cfg.JoinWindow),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:   log.With().Str("module", "signal").Logger(),
		rooms: make(map[string]map[*wsConn]struct{}),
	}
}

// Handle upgrades GET /api/ws/signal?room=<room>. The client token is set by
// the session middleware.
func (r *Relay) Handle(ctx context.Context, c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing room"})
		return
	}
	token := c.GetString("client_token")
	if !r.limiter.Allow(token) {
		r.log.Warn().Str("token", token).Str("room", room).Msg("join rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
		return
	}

	ws, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.Error().Err(err).Msg("ws upgrade")
		return
	}
	conn := newWSConn(ws, room, token, r.cfg.SendBuffer)
	if !r.add(conn) {
		conn.Close()
		return
	}
	r.log.Info().Str("token", token).Str("room", room).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go r.writePump(ctx, conn)
	go func() {
		defer cancel()
		r.readPump(conn)
	}()
}

func (r *Relay) add(c *wsConn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	members, ok := r.rooms[c.room]
	if !ok {
		members = make(map[*wsConn]struct{})
		r.rooms[c.room] = members
	}
	members[c] = struct{}{}
	return true
}

func (r *Relay) remove(c *wsConn) {
	r.mu.Lock()
	if members, ok := r.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, c.room)
		}
	}
	r.mu.Unlock()
	c.Close()
}

func (r *Relay) broadcast(from *wsConn, frame []byte) {
	r.mu.Lock()
	peers := make([]*wsConn, 0, len(r.rooms[from.room]))
	for c := range r.rooms[from.room] {
		if c != from {
			peers = append(peers, c)
		}
	}
	r.mu.Unlock()

	for _, c := range peers {
		if err := c.TrySend(frame); err != nil {
			r.log.Warn().Err(err).Str("room", c.room).Str("token", c.token).Msg("frame dropped")
		}
	}
}

// Count reports the connections in room.
func (r *Relay) Count(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// Close disconnects every client. Later upgrades are refused.
func (r *Relay) Close() {
	r.mu.Lock()
	r.closed = true
	var all []*wsConn
	for _, members := range r.rooms {
		for c := range members {
			all = append(all, c)
		}
	}
	r.rooms = make(map[string]map[*wsConn]struct{})
	r.mu.Unlock()
	for _, c := range all {
		c.Close()
	}
}

func (r *Relay) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(r.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				r.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				r.log.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				r.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (r *Relay) readPump(c *wsConn) {
	defer func() {
		r.log.Info().Str("token", c.token).Str("room", c.room).Msg("readPump closing")
		r.remove(c)
	}()

	pongWait := r.cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(r.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.log.Error().Err(err).Str("token", c.token).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env core.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			r.log.Warn().Str("token", c.token).Msg("bad envelope dropped")
			continue
		}
		r.broadcast(c, data)
	}
}
