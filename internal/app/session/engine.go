package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dkeye/consult/internal/app/chat"
	"github.com/dkeye/consult/internal/app/pool"
	"github.com/dkeye/consult/internal/app/quality"
	"github.com/dkeye/consult/internal/app/signaling"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// engine is the media stack of one local participant: its signaling channel,
// peer pool, quality monitor and chat relay.
type engine struct {
	id    domain.ParticipantID
	st    *sessionState
	m     *Manager
	media core.LocalMedia
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	signal  *signaling.Channel
	pool    *pool.Pool
	monitor *quality.Monitor
	chat    *chat.Relay
}

func newEngine(m *Manager, st *sessionState, p domain.Participant, room string, features domain.Features, media core.LocalMedia) *engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &engine{
		id:     p.ID,
		st:     st,
		m:      m,
		media:  media,
		log:    st.log.With().Str("participant", string(p.ID)).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	e.signal = signaling.New(m.deps.Dialers.DialerFor(room, p.ID), m.cfg.Signaling, p.ID)
	e.pool = pool.New(p.ID, m.deps.Connections, e.signal, m.cfg.Pool)

	var audio, video webrtc.TrackLocal
	if p.Permissions.Speak {
		audio = media.AudioTrack()
	}
	if p.Permissions.Video {
		video = media.VideoTrack()
	}
	e.pool.SetLocalTracks(audio, video)

	e.monitor = quality.New(p.ID, e.pool, quality.SinkFunc(e.onQuality), m.cfg.Quality)
	e.chat = chat.New(st.id, p.ID, features, e.signal, m.deps.Persistence, m.deps.Storage)

	e.signal.Handle(core.MsgParticipantJoined, e.onPresence)
	e.signal.Handle(core.MsgParticipantLeft, e.onLeft)
	e.signal.Handle(core.MsgOffer, e.onOffer)
	e.signal.Handle(core.MsgAnswer, e.onAnswer)
	e.signal.Handle(core.MsgICECandidate, e.onCandidate)
	e.signal.Handle(core.MsgChatMessage, e.onChat(core.MsgChatMessage))
	e.signal.Handle(core.MsgWhiteboardUpdate, e.onChat(core.MsgWhiteboardUpdate))
	e.signal.Handle(core.MsgScreenShareStarted, e.onShareStarted)
	e.signal.Handle(core.MsgScreenShareEnded, e.onShareEnded)
	return e
}

func (e *engine) start() {
	connected, _ := e.signal.SubscribeConnected(4)
	links, _ := e.pool.Subscribe(32)

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		// Nothing is replayed across a signaling gap, so every (re)connect
		// announces presence again.
		for range connected {
			e.announce()
		}
	}()
	go func() {
		defer e.wg.Done()
		for ev := range links {
			e.onLink(ev)
		}
	}()
	go func() {
		defer e.wg.Done()
		e.monitor.Run(e.ctx)
	}()

	e.signal.Start(e.ctx)
}

// stop releases everything the engine holds. The participant must already be
// off the roster.
func (e *engine) stop() {
	e.st.share.Forget(e.id)
	if err := e.signal.Send(core.MsgParticipantLeft, core.Presence{Route: core.Route{From: e.id}}); err != nil {
		e.log.Debug().Err(err).Msg("leave not announced")
	}
	e.signal.Close()
	e.cancel()
	e.pool.CloseAll()
	e.media.Close()
	e.wg.Wait()
	e.log.Info().Msg("engine stopped")
}

func (e *engine) presence() (core.Presence, bool) {
	e.st.mu.Lock()
	defer e.st.mu.Unlock()
	p, ok := e.st.session.Participant(e.id)
	if !ok {
		return core.Presence{}, false
	}
	return core.Presence{
		Route:       core.Route{From: e.id},
		DisplayName: p.DisplayName,
		Role:        p.Role,
		JoinedAt:    p.JoinedAt,
	}, true
}

func (e *engine) sharing() bool {
	g, ok := e.st.share.Active()
	return ok && g.Participant == e.id
}

func (e *engine) announce() {
	p, ok := e.presence()
	if !ok {
		return
	}
	p.Sharing = e.sharing()
	if err := e.signal.Send(core.MsgParticipantJoined, p); err != nil {
		e.log.Warn().Err(err).Msg("presence not announced")
	}
}

func (e *engine) onPresence(_ context.Context, data json.RawMessage) {
	var p core.Presence
	if err := json.Unmarshal(data, &p); err != nil {
		e.log.Warn().Err(err).Msg("malformed presence")
		return
	}
	if !p.For(e.id) {
		return
	}
	st := e.st
	now := e.m.now()

	st.mu.Lock()
	self, ok := st.session.Participant(e.id)
	if !ok {
		st.mu.Unlock()
		return
	}
	remote, known := st.session.Participant(p.From)
	added, activated, reconnected := false, false, false
	if !known {
		np, err := domain.NewParticipant(p.From, p.DisplayName, p.Role, p.JoinedAt)
		if err != nil {
			st.mu.Unlock()
			e.log.Warn().Err(err).Str("peer", string(p.From)).Msg("presence rejected")
			return
		}
		st.session.AddParticipant(np)
		remote, added = np, true
		if len(st.session.Participants) >= 2 && st.session.Status == domain.StatusWaiting {
			activated = st.transitionLocked(domain.StatusActive, now)
		}
	} else if remote.ConnectionStatus != domain.Connected {
		remote.ConnectionStatus = domain.Connected
		reconnected = true
	}
	initiate := pool.ShouldInitiate(self, remote)
	reply := core.Presence{
		Route:       core.Route{From: e.id, To: p.From},
		DisplayName: self.DisplayName,
		Role:        self.Role,
		JoinedAt:    self.JoinedAt,
		Reply:       true,
	}
	var participants []domain.Participant
	if added {
		participants = st.participantsLocked()
	}
	snap := st.session.Clone()
	st.mu.Unlock()

	if added {
		e.log.Info().Str("peer", string(p.From)).Str("role", string(p.Role)).Msg("remote participant joined")
		st.publish(core.SessionEvent{Kind: core.EventParticipantJoined, Participant: p.From, Local: e.id})
		st.persistParticipants(e.ctx, participants)
	}
	if activated {
		st.statusChanged(snap)
		st.persistSession(e.ctx, snap)
	}
	if reconnected {
		st.publish(core.SessionEvent{Kind: core.EventParticipantStatus, Participant: p.From, Local: e.id, Conn: domain.Connected})
	}
	if p.Sharing {
		if err := st.share.Acquire(p.From, now); err != nil {
			e.log.Warn().Err(err).Str("peer", string(p.From)).Msg("remote share not recorded")
		}
	}

	if !p.Reply {
		reply.Sharing = e.sharing()
		if err := e.signal.Send(core.MsgParticipantJoined, reply); err != nil {
			e.log.Warn().Err(err).Str("peer", string(p.From)).Msg("presence reply not sent")
		}
	}

	if !initiate {
		return
	}
	// A fresh announcement from a peer that reconnected re-offers any link
	// that never settled; a reply only fills in a missing link.
	state, exists := e.pool.State(p.From)
	if exists && (p.Reply || state == pool.StateStable) {
		return
	}
	if err := e.pool.CreateLink(e.ctx, p.From, true); err != nil {
		e.log.Error().Err(err).Str("peer", string(p.From)).Msg("link not created")
	}
}

func (e *engine) onLeft(_ context.Context, data json.RawMessage) {
	var p core.Presence
	if err := json.Unmarshal(data, &p); err != nil {
		e.log.Warn().Err(err).Msg("malformed leave")
		return
	}
	if !p.For(e.id) {
		return
	}
	e.pool.CloseLink(p.From)

	st := e.st
	st.mu.Lock()
	removed := false
	if _, local := st.engines[p.From]; !local {
		removed = st.session.RemoveParticipant(p.From)
	}
	participants := st.participantsLocked()
	st.mu.Unlock()
	if !removed {
		return
	}

	st.share.Forget(p.From)
	st.recorder.Forget(p.From)
	e.log.Info().Str("peer", string(p.From)).Msg("remote participant left")
	st.publish(core.SessionEvent{Kind: core.EventParticipantLeft, Participant: p.From, Local: e.id})
	st.persistParticipants(e.ctx, participants)
}

func (e *engine) onOffer(ctx context.Context, data json.RawMessage) {
	var d core.Description
	if err := json.Unmarshal(data, &d); err != nil || !d.For(e.id) {
		return
	}
	if err := e.pool.HandleOffer(e.ctx, d.From, d.SDP); err != nil {
		e.log.Error().Err(err).Str("peer", string(d.From)).Msg("offer not handled")
	}
}

func (e *engine) onAnswer(_ context.Context, data json.RawMessage) {
	var d core.Description
	if err := json.Unmarshal(data, &d); err != nil || !d.For(e.id) {
		return
	}
	if err := e.pool.HandleAnswer(d.From, d.SDP); err != nil {
		e.log.Error().Err(err).Str("peer", string(d.From)).Msg("answer not handled")
	}
}

func (e *engine) onCandidate(_ context.Context, data json.RawMessage) {
	var c core.Candidate
	if err := json.Unmarshal(data, &c); err != nil || !c.For(e.id) {
		return
	}
	if err := e.pool.HandleCandidate(c.From, c.Candidate); err != nil {
		e.log.Warn().Err(err).Str("peer", string(c.From)).Msg("candidate rejected")
	}
}

func (e *engine) onChat(t core.MessageType) signaling.Handler {
	return func(_ context.Context, data json.RawMessage) {
		if m, ok := e.chat.Receive(t, data); ok {
			e.st.appendChat(m, e.id)
		}
	}
}

func (e *engine) onShareStarted(_ context.Context, data json.RawMessage) {
	var s core.ScreenShare
	if err := json.Unmarshal(data, &s); err != nil || !s.For(e.id) {
		return
	}
	if err := e.st.share.Acquire(s.From, s.At); err != nil {
		e.log.Warn().Err(err).Str("peer", string(s.From)).Msg("remote share conflicts")
	}
}

func (e *engine) onShareEnded(_ context.Context, data json.RawMessage) {
	var s core.ScreenShare
	if err := json.Unmarshal(data, &s); err != nil || !s.For(e.id) {
		return
	}
	e.st.share.Release(s.From, s.At)
}

func (e *engine) onLink(ev pool.LinkEvent) {
	st := e.st
	switch ev.Kind {
	case pool.LinkUp:
		if st.setConnection(ev.Peer, domain.Connected) {
			st.publish(core.SessionEvent{Kind: core.EventParticipantStatus, Participant: ev.Peer, Local: e.id, Conn: domain.Connected})
		}
	case pool.LinkUnreachable:
		if st.setConnection(ev.Peer, domain.Reconnecting) {
			st.publish(core.SessionEvent{Kind: core.EventParticipantStatus, Participant: ev.Peer, Local: e.id, Conn: domain.Reconnecting})
		}
		st.publish(core.SessionEvent{Kind: core.EventParticipantUnreachable, Participant: ev.Peer, Local: e.id, Err: ev.Err})
	case pool.LinkRemoteTrack:
		st.publish(core.SessionEvent{Kind: core.EventRemoteTrack, Participant: ev.Peer, Local: e.id, TrackID: ev.TrackID})
	case pool.LinkRelinked:
		e.log.Debug().Str("peer", string(ev.Peer)).Msg("link recreated")
	}
}

func (e *engine) onQuality(q domain.QualitySample) {
	st := e.st
	st.mu.Lock()
	st.session.LastQuality = &q
	if p, ok := st.session.Participant(e.id); ok {
		p.SetLinkStats(q)
	}
	participants := st.participantsLocked()
	st.mu.Unlock()

	st.publish(core.SessionEvent{Kind: core.EventQualitySample, Participant: q.Peer, Local: e.id, Quality: &q})
	if err := st.store.SaveQualitySample(e.ctx, st.id, q); err != nil {
		e.log.Warn().Err(err).Msg("quality sample not persisted")
	}
	st.persistParticipants(e.ctx, participants)
}
