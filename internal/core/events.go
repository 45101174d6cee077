package core

import (
	"sync"

	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog/log"
)

type EventKind string

const (
	EventStatusChanged          EventKind = "status-changed"
	EventParticipantJoined      EventKind = "participant-joined"
	EventParticipantLeft        EventKind = "participant-left"
	EventParticipantStatus      EventKind = "participant-status"
	EventParticipantUnreachable EventKind = "participant-unreachable"
	EventRemoteTrack            EventKind = "remote-track"
	EventScreenShareStarted     EventKind = "screen-share-started"
	EventScreenShareEnded       EventKind = "screen-share-ended"
	EventChatReceived           EventKind = "chat-received"
	EventWhiteboard             EventKind = "whiteboard-update"
	EventQualitySample          EventKind = "quality-sample"
	EventRecordingFinished      EventKind = "recording-finished"
)

type SessionEvent struct {
	Kind        EventKind
	Session     domain.SessionID
	Participant domain.ParticipantID
	// Local is the participant whose engine observed the event.
	Local    domain.ParticipantID
	Status   domain.SessionStatus
	Conn     domain.ConnectionStatus
	TrackID  string
	Chat     *domain.ChatMessage
	Quality  *domain.QualitySample
	Artifact *domain.RecordingArtifact
	Payload  []byte
	Err      error
}

// Bus fans events out to any number of subscribers.
// A subscriber whose buffer is full misses the event; the drop is logged.
type Bus[T any] struct {
	name string

	mu     sync.RWMutex
	subs   map[int]chan T
	next   int
	closed bool
}

func NewBus[T any](name string) *Bus[T] {
	return &Bus[T]{name: name, subs: make(map[int]chan T)}
}

// Subscribe returns a channel of future events and a cancel func that closes it.
func (b *Bus[T]) Subscribe(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			log.Warn().Str("module", "core.events").Str("bus", b.name).Int("subscriber", id).Msg("subscriber buffer full, event dropped")
		}
	}
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
