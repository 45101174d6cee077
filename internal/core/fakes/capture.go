package fakes

import (
	"context"
	"sync"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

func sampleTrack(kind, id, stream string) webrtc.TrackLocal {
	mime := webrtc.MimeTypeVP8
	if kind == "audio" {
		mime = webrtc.MimeTypeOpus
	}
	t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, stream)
	if err != nil {
		panic(err)
	}
	return t
}

type LocalMedia struct {
	audio, video webrtc.TrackLocal

	mu     sync.Mutex
	subs   map[int]func([]byte)
	frames map[int]func([]byte)
	next   int
	closed bool
}

func NewLocalMedia(id domain.ParticipantID) *LocalMedia {
	return &LocalMedia{
		audio:  sampleTrack("audio", "audio-"+string(id), string(id)),
		video:  sampleTrack("video", "camera-"+string(id), string(id)),
		subs:   make(map[int]func([]byte)),
		frames: make(map[int]func([]byte)),
	}
}

func (m *LocalMedia) AudioTrack() webrtc.TrackLocal { return m.audio }
func (m *LocalMedia) VideoTrack() webrtc.TrackLocal { return m.video }

func (m *LocalMedia) SubscribeAudio(fn func([]byte)) func() { return m.add(m.subs, fn) }
func (m *LocalMedia) SubscribeVideo(fn func([]byte)) func() { return m.add(m.frames, fn) }

func (m *LocalMedia) add(set map[int]func([]byte), fn func([]byte)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	set[id] = fn
	return func() {
		m.mu.Lock()
		delete(set, id)
		m.mu.Unlock()
	}
}

// Speak delivers one audio payload to every subscriber.
func (m *LocalMedia) Speak(payload []byte) { m.deliver(m.subs, payload) }

// Show delivers one VP8 frame to every video subscriber.
func (m *LocalMedia) Show(frame []byte) { m.deliver(m.frames, frame) }

func (m *LocalMedia) deliver(set map[int]func([]byte), payload []byte) {
	m.mu.Lock()
	fns := make([]func([]byte), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

func (m *LocalMedia) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *LocalMedia) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type Screen struct {
	track webrtc.TrackLocal
	once  sync.Once
	done  chan struct{}
}

func NewScreen(id domain.ParticipantID) *Screen {
	return &Screen{track: sampleTrack("video", "screen-"+string(id), string(id)), done: make(chan struct{})}
}

func (s *Screen) Track() webrtc.TrackLocal { return s.track }
func (s *Screen) Done() <-chan struct{}    { return s.done }

// Halt simulates the capture ending on its own.
func (s *Screen) Halt()  { s.once.Do(func() { close(s.done) }) }
func (s *Screen) Close() { s.Halt() }

// Capturer hands out fake media. Participants in Deny fail with ErrDeviceAccessDenied.
type Capturer struct {
	mu      sync.Mutex
	Deny    map[domain.ParticipantID]bool
	media   map[domain.ParticipantID]*LocalMedia
	screens map[domain.ParticipantID]*Screen
}

func NewCapturer() *Capturer {
	return &Capturer{
		Deny:    make(map[domain.ParticipantID]bool),
		media:   make(map[domain.ParticipantID]*LocalMedia),
		screens: make(map[domain.ParticipantID]*Screen),
	}
}

func (c *Capturer) Acquire(ctx context.Context, id domain.ParticipantID) (core.LocalMedia, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Deny[id] {
		return nil, domain.ErrDeviceAccessDenied
	}
	m := NewLocalMedia(id)
	c.media[id] = m
	return m, nil
}

func (c *Capturer) AcquireScreen(ctx context.Context, id domain.ParticipantID) (core.ScreenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Deny[id] {
		return nil, domain.ErrDeviceAccessDenied
	}
	s := NewScreen(id)
	c.screens[id] = s
	return s, nil
}

func (c *Capturer) SetDeny(id domain.ParticipantID, deny bool) {
	c.mu.Lock()
	c.Deny[id] = deny
	c.mu.Unlock()
}

func (c *Capturer) Media(id domain.ParticipantID) *LocalMedia {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media[id]
}

func (c *Capturer) Screen(id domain.ParticipantID) *Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screens[id]
}
