// Package screenshare holds the session-wide screen-share lock.
package screenshare

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// VideoSwitcher replaces the outgoing video on every link of one participant.
type VideoSwitcher interface {
	ReplaceVideoTrack(webrtc.TrackLocal) error
}

// Share is everything a local participant hands over to start sharing.
type Share struct {
	Participant domain.ParticipantID
	Switcher    VideoSwitcher
	Camera      webrtc.TrackLocal
	Source      core.ScreenSource
	Signaler    core.Signaler
}

type local struct {
	share Share
	stop  chan struct{}
}

type Coordinator struct {
	session domain.SessionID
	log     zerolog.Logger
	events  *core.Bus[domain.ScreenShareGrant]
	now     func() time.Time

	mu    sync.Mutex
	grant *domain.ScreenShareGrant
	local *local
}

func New(session domain.SessionID) *Coordinator {
	return &Coordinator{
		session: session,
		log:     log.With().Str("module", "screenshare").Str("session", string(session)).Logger(),
		events:  core.NewBus[domain.ScreenShareGrant]("screenshare." + string(session)),
		now:     time.Now,
	}
}

// Subscribe delivers a grant whenever a share starts (Active) or ends.
func (c *Coordinator) Subscribe(buffer int) (<-chan domain.ScreenShareGrant, func()) {
	return c.events.Subscribe(buffer)
}

// Start takes the lock for a local participant and switches its outgoing video
// to the capture. A second start while the lock is held fails synchronously.
// The coordinator owns s.Source from here on and closes it on every path.
func (c *Coordinator) Start(ctx context.Context, s Share) (domain.ScreenShareGrant, error) {
	c.mu.Lock()
	if c.grant != nil && c.grant.Active {
		c.mu.Unlock()
		s.Source.Close()
		return domain.ScreenShareGrant{}, domain.ErrScreenShareAlreadyActive
	}
	g := &domain.ScreenShareGrant{Participant: s.Participant, Active: true, StartedAt: c.now()}
	c.grant = g
	l := &local{share: s, stop: make(chan struct{})}
	c.local = l
	c.mu.Unlock()

	if err := s.Switcher.ReplaceVideoTrack(s.Source.Track()); err != nil {
		c.mu.Lock()
		if c.local == l {
			c.grant, c.local = nil, nil
		}
		c.mu.Unlock()
		s.Source.Close()
		return domain.ScreenShareGrant{}, err
	}

	if err := s.Signaler.Send(core.MsgScreenShareStarted, core.ScreenShare{Route: core.Route{From: s.Participant}, At: g.StartedAt}); err != nil {
		c.log.Warn().Err(err).Str("participant", string(s.Participant)).Msg("share start not announced")
	}
	c.log.Info().Str("participant", string(s.Participant)).Msg("screen share started")
	c.events.Publish(*g)

	go c.watch(ctx, l)
	return *g, nil
}

// watch ends the share when the capture halts on its own.
func (c *Coordinator) watch(ctx context.Context, l *local) {
	select {
	case <-l.stop:
	case <-ctx.Done():
		c.end(l, "context done")
	case <-l.share.Source.Done():
		c.end(l, "capture halted")
	}
}

// Stop ends the local share of participant and restores its camera.
func (c *Coordinator) Stop(participant domain.ParticipantID) error {
	c.mu.Lock()
	l := c.local
	c.mu.Unlock()
	if l == nil || l.share.Participant != participant {
		return domain.ErrNoActiveShare
	}
	if !c.end(l, "stopped") {
		return domain.ErrNoActiveShare
	}
	return nil
}

func (c *Coordinator) end(l *local, reason string) bool {
	c.mu.Lock()
	if c.local != l {
		c.mu.Unlock()
		return false
	}
	g := *c.grant
	ended := c.now()
	g.Active = false
	g.EndedAt = &ended
	c.grant, c.local = nil, nil
	c.mu.Unlock()

	close(l.stop)
	s := l.share
	if err := s.Switcher.ReplaceVideoTrack(s.Camera); err != nil {
		c.log.Warn().Err(err).Str("participant", string(s.Participant)).Msg("camera not restored")
	}
	s.Source.Close()
	if err := s.Signaler.Send(core.MsgScreenShareEnded, core.ScreenShare{Route: core.Route{From: s.Participant}, At: ended}); err != nil {
		c.log.Warn().Err(err).Str("participant", string(s.Participant)).Msg("share end not announced")
	}
	c.log.Info().Str("participant", string(s.Participant)).Str("reason", reason).Msg("screen share ended")
	c.events.Publish(g)
	return true
}

// Acquire records a grant announced by a remote participant.
func (c *Coordinator) Acquire(participant domain.ParticipantID, at time.Time) error {
	c.mu.Lock()
	if c.grant != nil && c.grant.Active {
		holder := c.grant.Participant
		c.mu.Unlock()
		if holder == participant {
			return nil
		}
		c.log.Warn().Str("participant", string(participant)).Str("holder", string(holder)).Msg("remote share conflicts with active grant")
		return domain.ErrScreenShareAlreadyActive
	}
	g := domain.ScreenShareGrant{Participant: participant, Active: true, StartedAt: at}
	c.grant = &g
	c.mu.Unlock()
	c.events.Publish(g)
	return nil
}

// Release clears a remote grant held by participant.
func (c *Coordinator) Release(participant domain.ParticipantID, at time.Time) {
	c.mu.Lock()
	if c.grant == nil || c.grant.Participant != participant || c.local != nil {
		c.mu.Unlock()
		return
	}
	g := *c.grant
	g.Active = false
	g.EndedAt = &at
	c.grant = nil
	c.mu.Unlock()
	c.events.Publish(g)
}

// Forget drops whatever grant participant holds, local or remote. Used on leave.
func (c *Coordinator) Forget(participant domain.ParticipantID) {
	if err := c.Stop(participant); err == nil {
		return
	}
	c.Release(participant, c.now())
}

func (c *Coordinator) Active() (domain.ScreenShareGrant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grant == nil || !c.grant.Active {
		return domain.ScreenShareGrant{}, false
	}
	return *c.grant, true
}

func (c *Coordinator) Close() {
	c.mu.Lock()
	l := c.local
	c.mu.Unlock()
	if l != nil {
		c.end(l, "closed")
	}
	c.events.Close()
}
