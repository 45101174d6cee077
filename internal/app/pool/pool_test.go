package pool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/core/fakes"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	t    core.MessageType
	data json.RawMessage
}

type recordingSignaler struct {
	mu   sync.Mutex
	msgs []sent
}

func (s *recordingSignaler) Send(t core.MessageType, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, sent{t: t, data: b})
	s.mu.Unlock()
	return nil
}

func (s *recordingSignaler) ofType(t core.MessageType) []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sent
	for _, m := range s.msgs {
		if m.t == t {
			out = append(out, m)
		}
	}
	return out
}

type sinkFunc func(domain.ParticipantID, webrtc.RTPCodecType, *rtp.Packet)

func (f sinkFunc) WriteRTP(p domain.ParticipantID, k webrtc.RTPCodecType, pkt *rtp.Packet) {
	f(p, k, pkt)
}

func newTestPool(t *testing.T) (*Pool, *fakes.Factory, *recordingSignaler) {
	t.Helper()
	f := fakes.NewFactory()
	sig := &recordingSignaler{}
	p := New("a", f, sig, Config{ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}})
	t.Cleanup(p.CloseAll)
	return p, f, sig
}

func TestShouldInitiate(t *testing.T) {
	t.Parallel()
	now := time.Now()
	early := &domain.Participant{ID: "b", JoinedAt: now}
	late := &domain.Participant{ID: "a", JoinedAt: now.Add(time.Second)}

	assert.True(t, ShouldInitiate(late, early))
	assert.False(t, ShouldInitiate(early, late))

	x := &domain.Participant{ID: "x", JoinedAt: now}
	y := &domain.Participant{ID: "y", JoinedAt: now}
	assert.True(t, ShouldInitiate(y, x))
	assert.False(t, ShouldInitiate(x, y))
}

func TestInitiatorSendsOfferWithTracks(t *testing.T) {
	t.Parallel()
	p, f, sig := newTestPool(t)
	media := fakes.NewLocalMedia("a")
	p.SetLocalTracks(media.AudioTrack(), media.VideoTrack())

	require.NoError(t, p.CreateLink(context.Background(), "b", true))

	conn := f.Last("b")
	require.NotNil(t, conn)
	assert.True(t, conn.Started())
	assert.Len(t, conn.Tracks(), 2)
	assert.Equal(t, DefaultVideoBitrate, conn.Bitrate())
	require.Len(t, f.Configs(), 1)
	assert.Len(t, f.Configs()[0].ICEServers, 1)

	offers := sig.ofType(core.MsgOffer)
	require.Len(t, offers, 1)
	var d core.Description
	require.NoError(t, json.Unmarshal(offers[0].data, &d))
	assert.Equal(t, core.Route{From: "a", To: "b"}, d.Route)
	assert.Equal(t, webrtc.SDPTypeOffer, d.SDP.Type)

	st, _ := p.State("b")
	assert.Equal(t, StateOffering, st)

	require.NoError(t, p.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}))
	st, _ = p.State("b")
	assert.Equal(t, StateStable, st)
}

func TestCandidatesQueueUntilRemoteDescription(t *testing.T) {
	t.Parallel()
	p, f, _ := newTestPool(t)
	require.NoError(t, p.CreateLink(context.Background(), "b", true))

	c1 := webrtc.ICECandidateInit{Candidate: "candidate:1"}
	c2 := webrtc.ICECandidateInit{Candidate: "candidate:2"}
	require.NoError(t, p.HandleCandidate("b", c1))
	require.NoError(t, p.HandleCandidate("b", c2))
	assert.Empty(t, f.Last("b").Candidates())

	require.NoError(t, p.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))
	assert.Equal(t, []webrtc.ICECandidateInit{c1, c2}, f.Last("b").Candidates())

	c3 := webrtc.ICECandidateInit{Candidate: "candidate:3"}
	require.NoError(t, p.HandleCandidate("b", c3))
	assert.Equal(t, []webrtc.ICECandidateInit{c1, c2, c3}, f.Last("b").Candidates())
}

func TestHandleOfferCreatesAnsweringLink(t *testing.T) {
	t.Parallel()
	p, f, sig := newTestPool(t)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "o"}
	require.NoError(t, p.HandleOffer(context.Background(), "b", offer))
	assert.Equal(t, 1, p.Len())
	require.Len(t, sig.ofType(core.MsgAnswer), 1)
	assert.Zero(t, f.Last("b").Offers())

	// a second offer on a negotiated link means the peer rebuilt its side
	require.NoError(t, p.HandleOffer(context.Background(), "b", offer))
	assert.Equal(t, 2, f.Count("b"))
	assert.Equal(t, 1, p.Len())
	assert.Len(t, sig.ofType(core.MsgAnswer), 2)
}

func TestUnexpectedAnswer(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPool(t)
	err := p.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer})
	assert.ErrorIs(t, err, domain.ErrNegotiationFailed)
}

func TestLocalCandidatesAreAddressed(t *testing.T) {
	t.Parallel()
	p, f, sig := newTestPool(t)
	require.NoError(t, p.CreateLink(context.Background(), "b", false))

	f.Last("b").EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:9"})
	got := sig.ofType(core.MsgICECandidate)
	require.Len(t, got, 1)
	var c core.Candidate
	require.NoError(t, json.Unmarshal(got[0].data, &c))
	assert.Equal(t, domain.ParticipantID("b"), c.To)
	assert.Equal(t, "candidate:9", c.Candidate.Candidate)
}

func TestFailedLinkIsRecreated(t *testing.T) {
	t.Parallel()
	p, f, sig := newTestPool(t)
	events, cancel := p.Subscribe(4)
	defer cancel()

	require.NoError(t, p.CreateLink(context.Background(), "b", true))
	first := f.Last("b")
	first.EmitState(webrtc.PeerConnectionStateFailed)

	ev := <-events
	assert.Equal(t, LinkRelinked, ev.Kind)
	assert.True(t, first.IsClosed())
	assert.Equal(t, 2, f.Count("b"))
	assert.Equal(t, 1, p.Len())
	assert.Len(t, sig.ofType(core.MsgOffer), 2)

	// events from the replaced connection are ignored
	first.EmitState(webrtc.PeerConnectionStateFailed)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, f.Count("b"))
}

func TestRelinkFailureIsUnreachable(t *testing.T) {
	t.Parallel()
	p, f, _ := newTestPool(t)
	events, cancel := p.Subscribe(4)
	defer cancel()

	require.NoError(t, p.CreateLink(context.Background(), "b", false))
	f.FailWith(errors.New("no ports"))
	f.Last("b").EmitState(webrtc.PeerConnectionStateFailed)

	ev := <-events
	assert.Equal(t, LinkUnreachable, ev.Kind)
	assert.ErrorIs(t, ev.Err, domain.ErrParticipantUnreachable)
	assert.Zero(t, p.Len())
}

func TestReplaceVideoTrackAndBitrate(t *testing.T) {
	t.Parallel()
	p, f, _ := newTestPool(t)
	ctx := context.Background()
	require.NoError(t, p.CreateLink(ctx, "b", false))
	require.NoError(t, p.CreateLink(ctx, "c", false))

	screen := fakes.NewScreen("a")
	require.NoError(t, p.ReplaceVideoTrack(screen.Track()))
	assert.Equal(t, screen.Track(), f.Last("b").Replaced(webrtc.RTPCodecTypeVideo))
	assert.Equal(t, screen.Track(), f.Last("c").Replaced(webrtc.RTPCodecTypeVideo))

	got, err := p.SetVideoBitrate("b", 10)
	require.NoError(t, err)
	assert.Equal(t, MinVideoBitrate, got)
	assert.Equal(t, MinVideoBitrate, f.Last("b").Bitrate())

	got, err = p.SetVideoBitrate("b", 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, DefaultVideoBitrate, got)

	_, err = p.SetVideoBitrate("zz", 1)
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)

	assert.Equal(t, []domain.ParticipantID{"b", "c"}, p.IDs())
	p.CloseLink("b")
	assert.Equal(t, []domain.ParticipantID{"c"}, p.IDs())
}

func TestRemoteTrackPumpsToSinks(t *testing.T) {
	t.Parallel()
	p, f, _ := newTestPool(t)
	events, cancel := p.Subscribe(4)
	defer cancel()

	got := make(chan uint16, 4)
	remove := p.AddSink(sinkFunc(func(peer domain.ParticipantID, k webrtc.RTPCodecType, pkt *rtp.Packet) {
		assert.Equal(t, domain.ParticipantID("b"), peer)
		got <- pkt.SequenceNumber
	}))
	defer remove()

	require.NoError(t, p.CreateLink(context.Background(), "b", false))
	conn := f.Last("b")
	track := fakes.NewRemoteTrack("cam-b", webrtc.RTPCodecTypeVideo, 42,
		&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}},
		&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}},
	)
	conn.EmitTrack(track)

	ev := <-events
	assert.Equal(t, LinkRemoteTrack, ev.Kind)
	assert.Equal(t, "cam-b", ev.TrackID)
	assert.Equal(t, uint16(1), <-got)
	assert.Equal(t, uint16(2), <-got)
	assert.Equal(t, []webrtc.SSRC{42}, conn.Keyframes())

	p.RequestKeyframes()
	assert.Equal(t, []webrtc.SSRC{42, 42}, conn.Keyframes())
}
