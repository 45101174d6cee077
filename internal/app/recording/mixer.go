package recording

import (
	"sync"

	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	sampleRate      = 48000
	channels        = 2
	frameSizeMs     = 20
	samplesPerFrame = sampleRate * frameSizeMs * channels / 1000
	// maxQueuedFrames bounds one source's backlog to two seconds.
	maxQueuedFrames = 100
)

// pcmDecoder turns one encoded audio payload into interleaved stereo samples.
type pcmDecoder interface {
	Decode(payload []byte) ([]int16, error)
}

type frameQueue struct {
	frames [][]int16
}

func (q *frameQueue) push(frame []int16) {
	if len(q.frames) >= maxQueuedFrames {
		q.frames = q.frames[1:]
	}
	q.frames = append(q.frames, frame)
}

func (q *frameQueue) pop() ([]int16, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// Mixer is the recording audio bus: one frame queue per source, summed with
// saturation into 20ms 48kHz stereo frames.
type Mixer struct {
	mu       sync.Mutex
	decoders map[domain.ParticipantID]pcmDecoder
	queues   map[domain.ParticipantID]*frameQueue
	closed   bool
	dropped  int
}

func NewMixer() *Mixer {
	return &Mixer{
		decoders: make(map[domain.ParticipantID]pcmDecoder),
		queues:   make(map[domain.ParticipantID]*frameQueue),
	}
}

// WriteOpus decodes one Opus payload of source into its queue.
func (m *Mixer) WriteOpus(source domain.ParticipantID, payload []byte) {
	if len(payload) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	dec, ok := m.decoders[source]
	if !ok {
		var err error
		dec, err = newDecoder()
		if err != nil {
			log.Warn().Err(err).Str("module", "recording").Str("participant", string(source)).Msg("no audio decoder")
			return
		}
		m.decoders[source] = dec
	}
	pcm, err := dec.Decode(payload)
	if err != nil {
		m.dropped++
		if m.dropped == 1 {
			log.Warn().Err(err).Str("module", "recording").Str("participant", string(source)).Msg("audio payload not decoded")
		}
		return
	}
	if len(pcm) == 0 {
		return
	}
	m.pushLocked(source, pcm)
}

// Dropped counts payloads that could not be decoded.
func (m *Mixer) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// WritePCM queues an already decoded frame of source.
func (m *Mixer) WritePCM(source domain.ParticipantID, pcm []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || len(pcm) == 0 {
		return
	}
	m.pushLocked(source, pcm)
}

func (m *Mixer) pushLocked(source domain.ParticipantID, pcm []int16) {
	q, ok := m.queues[source]
	if !ok {
		q = &frameQueue{}
		m.queues[source] = q
	}
	n := min(len(pcm), samplesPerFrame)
	frame := make([]int16, n)
	copy(frame, pcm[:n])
	q.push(frame)
}

// ReadFrame mixes the head frame of every non-empty queue. ok is false when
// nothing is queued.
func (m *Mixer) ReadFrame() (frame []int16, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false
	}
	mixed := make([]int16, samplesPerFrame)
	for _, q := range m.queues {
		f, has := q.pop()
		if !has {
			continue
		}
		ok = true
		for i := 0; i < len(f) && i < samplesPerFrame; i++ {
			mixed[i] = clampPCM(int32(mixed[i]) + int32(f[i]))
		}
	}
	if !ok {
		return nil, false
	}
	return mixed, true
}

// Remove drops a source that left.
func (m *Mixer) Remove(source domain.ParticipantID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.decoders, source)
	delete(m.queues, source)
}

func (m *Mixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.decoders = nil
	m.queues = nil
}

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
