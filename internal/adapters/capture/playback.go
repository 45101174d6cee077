package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	defaultFrameDuration = 33 * time.Millisecond
	oggPageDuration      = 20 * time.Millisecond
)

func probeIVF(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _, err = ivfreader.NewWith(f)
	return err
}

func probeOgg(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _, err = oggreader.NewWith(f)
	return err
}

func frameDuration(h *ivfreader.IVFFileHeader) time.Duration {
	if h.TimebaseNumerator == 0 || h.TimebaseDenominator == 0 {
		return defaultFrameDuration
	}
	d := time.Second * time.Duration(h.TimebaseNumerator) / time.Duration(h.TimebaseDenominator)
	if d <= 0 {
		return defaultFrameDuration
	}
	return d
}

// playIVF writes VP8 frames at the file's frame rate until ctx ends, the file
// runs out (loop false) or a write fails. A non-nil deliver sees every frame.
func playIVF(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, deliver func([]byte), loop bool) error {
	for {
		if err := playIVFOnce(ctx, path, track, deliver); err != nil {
			return err
		}
		if !loop {
			return nil
		}
	}
}

func playIVFOnce(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, deliver func([]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, h, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}
	frame := frameDuration(h)
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		payload, _, err := r.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := track.WriteSample(media.Sample{Data: payload, Duration: frame}); err != nil {
			return err
		}
		if deliver != nil {
			deliver(payload)
		}
	}
}

// playOgg writes one Opus page every 20ms and hands each payload to deliver.
func playOgg(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, deliver func([]byte), loop bool) error {
	for {
		if err := playOggOnce(ctx, path, track, deliver); err != nil {
			return err
		}
		if !loop {
			return nil
		}
	}
}

func playOggOnce(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample, deliver func([]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		payload, _, err := r.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}
		if err := track.WriteSample(media.Sample{Data: payload, Duration: oggPageDuration}); err != nil {
			return err
		}
		deliver(payload)
	}
}
