package recording

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
	"github.com/rs/zerolog/log"
)

const (
	trackVideo = 1
	trackAudio = 2
)

// matroskaHeader declares the file as Matroska: MJPEG and PCM tracks are not
// valid in WebM.
var matroskaHeader = &webm.EBMLHeader{
	EBMLVersion:        1,
	EBMLReadVersion:    1,
	EBMLMaxIDLength:    4,
	EBMLMaxSizeLength:  8,
	DocType:            "matroska",
	DocTypeVersion:     4,
	DocTypeReadVersion: 2,
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

// container muxes the composited video and mixed audio into an in-memory Matroska file.
type container struct {
	buf     *bytes.Buffer
	video   webm.BlockWriteCloser
	audio   webm.BlockWriteCloser
	dropped atomic.Int64
}

func newContainer(width, height, fps int, v VideoEncoder, a AudioEncoder) (*container, error) {
	c := &container{buf: &bytes.Buffer{}}
	ws, err := webm.NewSimpleBlockWriter(nopCloser{c.buf}, []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     trackVideo,
			TrackUID:        1001,
			CodecID:         v.CodecID(),
			TrackType:       1,
			DefaultDuration: uint64(1_000_000_000 / fps),
			Video: &webm.Video{
				PixelWidth:  uint64(width),
				PixelHeight: uint64(height),
			},
		},
		{
			Name:            "Audio",
			TrackNumber:     trackAudio,
			TrackUID:        1002,
			CodecID:         a.CodecID(),
			CodecPrivate:    a.CodecPrivate(),
			TrackType:       2,
			DefaultDuration: frameSizeMs * 1_000_000,
			Audio: &webm.Audio{
				SamplingFrequency: sampleRate,
				Channels:          channels,
			},
		},
	},
		mkvcore.WithEBMLHeader(matroskaHeader),
		mkvcore.WithOnErrorHandler(c.onError),
		mkvcore.WithOnFatalHandler(func(err error) {
			log.Error().Err(err).Str("module", "recording").Msg("container write failed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("matroska writer: %w", err)
	}
	c.video, c.audio = ws[0], ws[1]
	return c, nil
}

func (c *container) onError(err error) {
	if errors.Is(err, mkvcore.ErrIgnoreOldFrame) {
		if c.dropped.Add(1) == 1 {
			log.Warn().Err(err).Str("module", "recording").Msg("block too old for its cluster, dropped")
		}
		return
	}
	log.Warn().Err(err).Str("module", "recording").Msg("container block error")
}

func (c *container) writeVideo(tsMillis int64, frame []byte) error {
	_, err := c.video.Write(true, tsMillis, frame)
	return err
}

func (c *container) writeAudio(tsMillis int64, frame []byte) error {
	_, err := c.audio.Write(true, tsMillis, frame)
	return err
}

// finish closes both tracks and returns the file.
func (c *container) finish() ([]byte, error) {
	verr := c.video.Close()
	aerr := c.audio.Close()
	if verr != nil {
		return nil, verr
	}
	if aerr != nil {
		return nil, aerr
	}
	if n := c.dropped.Load(); n > 0 {
		log.Warn().Str("module", "recording").Int64("blocks", n).Msg("blocks dropped from recording")
	}
	return c.buf.Bytes(), nil
}
