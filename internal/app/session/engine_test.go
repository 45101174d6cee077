package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder keeps every event a session publishes.
type recorder struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func record(t *testing.T, h *harness, id domain.SessionID) *recorder {
	t.Helper()
	ch, cancel, err := h.m.Subscribe(id, 1024)
	require.NoError(t, err)
	t.Cleanup(cancel)
	r := &recorder{}
	go func() {
		for ev := range ch {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) has(match func(core.SessionEvent) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			return true
		}
	}
	return false
}

func joinPair(t *testing.T, h *harness) domain.SessionID {
	t.Helper()
	ctx := context.Background()
	id := h.create(t, domain.AllFeatures())
	_, err := h.m.Join(ctx, id, ParticipantInfo{ID: "a", DisplayName: "A", Role: domain.RoleTherapist})
	require.NoError(t, err)
	_, err = h.m.Join(ctx, id, ParticipantInfo{ID: "b", DisplayName: "B", Role: domain.RolePatient})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.links(id, "a") == 1 && h.links(id, "b") == 1
	}, 3*time.Second, 20*time.Millisecond)
	return id
}

func connStatus(h *harness, id domain.SessionID, pid domain.ParticipantID) domain.ConnectionStatus {
	s, err := h.m.Get(id)
	if err != nil {
		return ""
	}
	p, ok := s.Participant(pid)
	if !ok {
		return ""
	}
	return p.ConnectionStatus
}

func TestSignalingDropReannounces(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	id := joinPair(t, h)
	s, err := h.m.Get(id)
	require.NoError(t, err)
	room := s.RoomRef

	// Hold the engines off while the listener takes its seat.
	h.hub.SetDown(true)
	h.hub.Drop(room)
	h.hub.SetDown(false)
	listener, err := h.hub.Dialer(room).Dial(context.Background())
	require.NoError(t, err)
	defer listener.Close()

	announced := make(chan domain.ParticipantID, 16)
	go func() {
		for {
			frame, err := listener.ReadMessage()
			if err != nil {
				return
			}
			var env core.Envelope
			if json.Unmarshal(frame, &env) != nil || env.Type != core.MsgParticipantJoined {
				continue
			}
			var p core.Presence
			if json.Unmarshal(env.Data, &p) == nil && !p.Reply {
				announced <- p.From
			}
		}
	}()

	seen := map[domain.ParticipantID]bool{}
	deadline := time.After(3 * time.Second)
	for len(seen) < 2 {
		select {
		case from := <-announced:
			seen[from] = true
		case <-deadline:
			t.Fatalf("presence not re-sent after reconnect, saw %v", seen)
		}
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])

	require.Eventually(t, func() bool { return h.hub.Count(room) == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.links(id, "a") == 1 && h.links(id, "b") == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.Connected, connStatus(h, id, "a"))
	assert.Equal(t, domain.Connected, connStatus(h, id, "b"))
}

func TestUnreachablePeerRecovers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	id := joinPair(t, h)
	events := record(t, h, id)

	// a answers b; its link to b fails and cannot be rebuilt.
	h.factory.FailWith(errors.New("no route"))
	h.factory.Last("b").EmitState(webrtc.PeerConnectionStateFailed)

	require.Eventually(t, func() bool {
		return connStatus(h, id, "b") == domain.Reconnecting && h.links(id, "a") == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return events.has(func(ev core.SessionEvent) bool {
			return ev.Kind == core.EventParticipantUnreachable && ev.Participant == "b" && ev.Local == "a" &&
				errors.Is(ev.Err, domain.ErrParticipantUnreachable)
		})
	}, 2*time.Second, 10*time.Millisecond)

	// b initiates; its own failure makes it offer again and a takes the offer.
	h.factory.FailWith(nil)
	h.factory.Last("a").EmitState(webrtc.PeerConnectionStateFailed)
	require.Eventually(t, func() bool { return h.links(id, "a") == 1 }, 2*time.Second, 10*time.Millisecond)

	h.factory.Last("b").EmitState(webrtc.PeerConnectionStateConnected)
	require.Eventually(t, func() bool {
		return connStatus(h, id, "b") == domain.Connected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return events.has(func(ev core.SessionEvent) bool {
			return ev.Kind == core.EventParticipantStatus && ev.Participant == "b" && ev.Conn == domain.Connected
		})
	}, 2*time.Second, 10*time.Millisecond)
}
