package recording

import (
	"bytes"
	"image"
	"sync"

	"github.com/dkeye/consult/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/vp8"
)

const vp8ClockRate = 90000

// FrameStore keeps the latest decoded picture of every participant.
// It reassembles remote VP8 frames from RTP, takes local frames whole and
// decodes key frames. Remote audio payloads are handed to the mixer.
type FrameStore struct {
	mixer *Mixer

	mu       sync.Mutex
	builders map[domain.ParticipantID]*samplebuilder.SampleBuilder
	decoders map[domain.ParticipantID]*vp8.Decoder
	latest   map[domain.ParticipantID]image.Image
}

func NewFrameStore(mixer *Mixer) *FrameStore {
	return &FrameStore{
		mixer:    mixer,
		builders: make(map[domain.ParticipantID]*samplebuilder.SampleBuilder),
		decoders: make(map[domain.ParticipantID]*vp8.Decoder),
		latest:   make(map[domain.ParticipantID]image.Image),
	}
}

func (s *FrameStore) WriteRTP(peer domain.ParticipantID, kind webrtc.RTPCodecType, pkt *rtp.Packet) {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		if s.mixer != nil {
			s.mixer.WriteOpus(peer, pkt.Payload)
		}
	case webrtc.RTPCodecTypeVideo:
		s.writeVideo(peer, pkt)
	}
}

func (s *FrameStore) writeVideo(peer domain.ParticipantID, pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sb, ok := s.builders[peer]
	if !ok {
		sb = samplebuilder.New(64, &codecs.VP8Packet{}, vp8ClockRate)
		s.builders[peer] = sb
	}
	sb.Push(pkt)
	for sample := sb.Pop(); sample != nil; sample = sb.Pop() {
		if img := s.decodeLocked(peer, sample.Data); img != nil {
			s.latest[peer] = img
		}
	}
}

// WriteVP8 takes one complete VP8 frame of peer, as the local camera produces.
func (s *FrameStore) WriteVP8(peer domain.ParticipantID, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img := s.decodeLocked(peer, frame); img != nil {
		s.latest[peer] = img
	}
}

// decodeLocked returns nil for inter frames, which the decoder cannot handle.
func (s *FrameStore) decodeLocked(peer domain.ParticipantID, frame []byte) image.Image {
	dec, ok := s.decoders[peer]
	if !ok {
		dec = vp8.NewDecoder()
		s.decoders[peer] = dec
	}
	dec.Init(bytes.NewReader(frame), len(frame))
	fh, err := dec.DecodeFrameHeader()
	if err != nil || !fh.KeyFrame {
		return nil
	}
	img, err := dec.DecodeFrame()
	if err != nil {
		log.Debug().Err(err).Str("module", "recording").Str("peer", string(peer)).Msg("vp8 key frame not decoded")
		return nil
	}
	return img
}

func (s *FrameStore) LatestFrame(peer domain.ParticipantID) image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[peer]
}

func (s *FrameStore) Remove(peer domain.ParticipantID) {
	s.mu.Lock()
	delete(s.builders, peer)
	delete(s.decoders, peer)
	delete(s.latest, peer)
	s.mu.Unlock()
	if s.mixer != nil {
		s.mixer.Remove(peer)
	}
}
