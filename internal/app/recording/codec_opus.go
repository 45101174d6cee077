//go:build opus

package recording

import (
	"fmt"

	"github.com/hraban/opus"
)

// OpusDecoding reports whether this build decodes Opus into the mixer.
const OpusDecoding = true

type opusDecoder struct {
	dec *opus.Decoder
}

func newDecoder() (pcmDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

func (d *opusDecoder) Decode(payload []byte) ([]int16, error) {
	// 60ms is the longest Opus frame.
	pcm := make([]int16, 2880*channels)
	n, err := d.dec.Decode(payload, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n*channels], nil
}

type opusEncoder struct {
	enc *opus.Encoder
}

// NewAudioEncoder returns the Opus encoder used for the recording audio track.
func NewAudioEncoder(bitrate int) (AudioEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("opus bitrate: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

func (e *opusEncoder) CodecID() string { return "A_OPUS" }

func (e *opusEncoder) CodecPrivate() []byte { return opusHead() }

func (e *opusEncoder) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, 4000)
	n, err := e.enc.Encode(pcm, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
