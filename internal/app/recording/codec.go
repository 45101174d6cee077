package recording

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
)

type AudioEncoder interface {
	CodecID() string
	CodecPrivate() []byte
	Encode(pcm []int16) ([]byte, error)
}

type VideoEncoder interface {
	CodecID() string
	Encode(img image.Image) ([]byte, error)
}

// JPEGEncoder emits every composited frame as a standalone Motion JPEG picture.
type JPEGEncoder struct {
	Quality int
}

// NewJPEGEncoder derives the JPEG quality from the target bitrate: 2.5 Mbps at
// 30 fps maps to the library default.
func NewJPEGEncoder(bitrate, fps int) *JPEGEncoder {
	q := jpeg.DefaultQuality
	if fps > 0 && bitrate > 0 {
		q = bitrate / fps / 1100
	}
	return &JPEGEncoder{Quality: max(10, min(95, q))}
}

func (e *JPEGEncoder) CodecID() string { return "V_MJPEG" }

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// opusHead is the Matroska CodecPrivate for a 48kHz stereo Opus track.
func opusHead() []byte {
	b := make([]byte, 19)
	copy(b, "OpusHead")
	b[8] = 1
	b[9] = channels
	binary.LittleEndian.PutUint16(b[10:], 312)
	binary.LittleEndian.PutUint32(b[12:], sampleRate)
	return b
}
