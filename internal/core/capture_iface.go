package core

import (
	"context"
	"image"

	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

// LocalMedia is the captured camera and microphone of one local participant.
type LocalMedia interface {
	AudioTrack() webrtc.TrackLocal
	VideoTrack() webrtc.TrackLocal
	// SubscribeAudio delivers encoded Opus payloads of the local microphone.
	SubscribeAudio(fn func(payload []byte)) (cancel func())
	// SubscribeVideo delivers encoded VP8 frames of the local camera.
	SubscribeVideo(fn func(frame []byte)) (cancel func())
	Close()
}

// ScreenSource is a screen capture. Done is closed when the capture halts on its own.
type ScreenSource interface {
	Track() webrtc.TrackLocal
	Done() <-chan struct{}
	Close()
}

type Capturer interface {
	Acquire(ctx context.Context, id domain.ParticipantID) (LocalMedia, error)
	AcquireScreen(ctx context.Context, id domain.ParticipantID) (ScreenSource, error)
}

// FrameProvider yields the latest decoded video frame of a participant, or nil.
type FrameProvider interface {
	LatestFrame(id domain.ParticipantID) image.Image
}
