package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/consult/internal/app/signaling"
	"github.com/dkeye/consult/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelayServer(t *testing.T, cfg RelayConfig) (*Relay, Dialers) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	relay := NewRelay(cfg)
	r := gin.New()
	r.GET("/api/ws/signal", func(c *gin.Context) {
		c.Set("client_token", c.Query("token"))
		relay.Handle(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		relay.Close()
		srv.Close()
	})
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	return relay, Dialers{BaseURL: base}
}

func dial(t *testing.T, d Dialers, room, token string) signaling.Conn {
	t.Helper()
	d.BaseURL += "?token=" + token
	conn, err := d.DialerFor(room, "").Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func frame(t *testing.T, typ core.MessageType, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	out, err := json.Marshal(core.Envelope{Type: typ, Data: data})
	require.NoError(t, err)
	return out
}

func TestRelayBroadcastsWithinRoom(t *testing.T) {
	t.Parallel()
	relay, d := newRelayServer(t, RelayConfig{})

	a := dial(t, d, "r1", "a")
	b := dial(t, d, "r1", "b")
	other := dial(t, d, "r2", "c")
	require.Eventually(t, func() bool { return relay.Count("r1") == 2 && relay.Count("r2") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage([]byte("not json")))
	sent := frame(t, core.MsgChatMessage, core.Chat{Route: core.Route{From: "a"}})
	require.NoError(t, a.WriteMessage(sent))

	got, err := b.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(sent), string(got))

	received := make(chan []byte, 1)
	go func() {
		data, err := other.ReadMessage()
		if err == nil {
			received <- data
		}
	}()
	select {
	case <-received:
		t.Fatal("frame leaked into another room")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayDropsClosedClients(t *testing.T) {
	t.Parallel()
	relay, d := newRelayServer(t, RelayConfig{})
	a := dial(t, d, "r", "a")
	require.Eventually(t, func() bool { return relay.Count("r") == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return relay.Count("r") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRelayRateLimitsJoins(t *testing.T) {
	t.Parallel()
	_, d := newRelayServer(t, RelayConfig{JoinLimit: 1, JoinWindow: time.Minute})
	dial(t, d, "r", "same")

	d.BaseURL += "?token=same"
	_, err := d.DialerFor("r", "").Dial(context.Background())
	assert.Error(t, err)
}

func TestRateLimiterWindow(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("k"))
	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	assert.True(t, rl.Allow("other"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("k"))
}

func TestChannelsOverRelay(t *testing.T) {
	t.Parallel()
	_, d := newRelayServer(t, RelayConfig{})
	cfg := signaling.Config{ReconnectInterval: 50 * time.Millisecond}

	a := signaling.New(d.DialerFor("room", "a"), cfg, "a")
	b := signaling.New(d.DialerFor("room", "b"), cfg, "b")
	got := make(chan core.Chat, 1)
	b.Handle(core.MsgChatMessage, func(_ context.Context, data json.RawMessage) {
		var c core.Chat
		if json.Unmarshal(data, &c) != nil {
			return
		}
		select {
		case got <- c:
		default:
		}
	})
	aUp, cancelA := a.SubscribeConnected(1)
	defer cancelA()
	bUp, cancelB := b.SubscribeConnected(1)
	defer cancelB()
	a.Start(context.Background())
	b.Start(context.Background())
	defer a.Close()
	defer b.Close()
	for _, up := range []<-chan struct{}{aUp, bUp} {
		select {
		case <-up:
		case <-time.After(3 * time.Second):
			t.Fatal("not connected")
		}
	}

	require.Eventually(t, func() bool {
		return a.Send(core.MsgChatMessage, core.Chat{Route: core.Route{From: "a"}}) == nil && len(got) > 0
	}, 3*time.Second, 50*time.Millisecond)
	c := <-got
	assert.Equal(t, "a", string(c.From))
}
