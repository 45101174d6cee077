// Package capture plays prerecorded files as a participant's camera,
// microphone and screen. Files are looked up as <dir>/<participant>/<name>
// first and <dir>/<name> second.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
)

const (
	cameraFile     = "camera.ivf"
	microphoneFile = "microphone.ogg"
	screenFile     = "screen.ivf"
)

type Files struct {
	dir string
	log zerolog.Logger
}

func NewFiles(dir string) *Files {
	return &Files{dir: dir, log: log.With().Str("module", "capture").Logger()}
}

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (core.Capturer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewFiles(cfg.Capture.Dir), nil
	})
}

func (f *Files) resolve(id domain.ParticipantID, name string) (string, error) {
	for _, p := range []string{filepath.Join(f.dir, string(id), name), filepath.Join(f.dir, name)} {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no %s for %s", domain.ErrDeviceAccessDenied, name, id)
}

func (f *Files) Acquire(_ context.Context, id domain.ParticipantID) (core.LocalMedia, error) {
	cam, err := f.resolve(id, cameraFile)
	if err != nil {
		return nil, err
	}
	mic, err := f.resolve(id, microphoneFile)
	if err != nil {
		return nil, err
	}
	if err := probeIVF(cam); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDeviceAccessDenied, cam, err)
	}
	if err := probeOgg(mic); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDeviceAccessDenied, mic, err)
	}

	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "camera-"+string(id), string(id))
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio-"+string(id), string(id))
	if err != nil {
		return nil, err
	}

	m := newLocalMedia(audio, video, f.log.With().Str("participant", string(id)).Logger())
	m.run(func(ctx context.Context) error { return playIVF(ctx, cam, video, m.camera.deliver, true) })
	m.run(func(ctx context.Context) error { return playOgg(ctx, mic, audio, m.mic.deliver, true) })
	f.log.Info().Str("participant", string(id)).Str("camera", cam).Str("microphone", mic).Msg("capture acquired")
	return m, nil
}

// AcquireScreen plays the screen file once; the source is done when it runs out.
func (f *Files) AcquireScreen(_ context.Context, id domain.ParticipantID) (core.ScreenSource, error) {
	path, err := f.resolve(id, screenFile)
	if err != nil {
		return nil, err
	}
	if err := probeIVF(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDeviceAccessDenied, path, err)
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen-"+string(id), string(id))
	if err != nil {
		return nil, err
	}
	return newScreen(track, path, f.log.With().Str("participant", string(id)).Logger()), nil
}
