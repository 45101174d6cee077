package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// fanout hands each payload to every current subscriber.
type fanout struct {
	mu   sync.Mutex
	subs map[int]func([]byte)
	next int
}

func (f *fanout) add(fn func([]byte)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]func([]byte))
	}
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fanout) deliver(payload []byte) {
	f.mu.Lock()
	fns := make([]func([]byte), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

type localMedia struct {
	audio, video *webrtc.TrackLocalStaticSample
	log          zerolog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	mic, camera fanout
	once        sync.Once
}

func newLocalMedia(audio, video *webrtc.TrackLocalStaticSample, l zerolog.Logger) *localMedia {
	ctx, cancel := context.WithCancel(context.Background())
	return &localMedia{audio: audio, video: video, log: l, ctx: ctx, cancel: cancel}
}

func (m *localMedia) run(play func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := play(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn().Err(err).Msg("playback stopped")
		}
	}()
}

func (m *localMedia) AudioTrack() webrtc.TrackLocal { return m.audio }
func (m *localMedia) VideoTrack() webrtc.TrackLocal { return m.video }

func (m *localMedia) SubscribeAudio(fn func(payload []byte)) func() {
	return m.mic.add(fn)
}

func (m *localMedia) SubscribeVideo(fn func(frame []byte)) func() {
	return m.camera.add(fn)
}

func (m *localMedia) Close() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
		m.log.Debug().Msg("capture released")
	})
}

type screen struct {
	track  *webrtc.TrackLocalStaticSample
	cancel context.CancelFunc
	done   chan struct{}
}

func newScreen(track *webrtc.TrackLocalStaticSample, path string, l zerolog.Logger) *screen {
	ctx, cancel := context.WithCancel(context.Background())
	s := &screen{track: track, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := playIVF(ctx, path, track, nil, false); err != nil && !errors.Is(err, context.Canceled) {
			l.Warn().Err(err).Msg("screen playback stopped")
		}
	}()
	return s
}

func (s *screen) Track() webrtc.TrackLocal { return s.track }
func (s *screen) Done() <-chan struct{}    { return s.done }

func (s *screen) Close() {
	s.cancel()
	<-s.done
}
