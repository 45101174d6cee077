//go:build !opus

package recording

import (
	"encoding/binary"
	"errors"
)

// OpusDecoding reports whether this build decodes Opus into the mixer.
const OpusDecoding = false

var errNoOpus = errors.New("built without opus support")

type noopDecoder struct{}

func newDecoder() (pcmDecoder, error) { return noopDecoder{}, nil }

func (noopDecoder) Decode([]byte) ([]int16, error) { return nil, errNoOpus }

// pcmEncoder stores raw little-endian samples.
type pcmEncoder struct{}

func NewAudioEncoder(int) (AudioEncoder, error) { return pcmEncoder{}, nil }

func (pcmEncoder) CodecID() string { return "A_PCM/INT/LIT" }

func (pcmEncoder) CodecPrivate() []byte { return nil }

func (pcmEncoder) Encode(pcm []int16) ([]byte, error) {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}
