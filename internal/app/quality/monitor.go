// Package quality polls link statistics, scores them and adapts outgoing video bitrate.
package quality

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StatsSource is the part of the peer pool the monitor drives.
type StatsSource interface {
	IDs() []domain.ParticipantID
	Stats(ctx context.Context, peer domain.ParticipantID) (core.LinkStats, error)
	VideoBitrate(peer domain.ParticipantID) (int, bool)
	SetVideoBitrate(peer domain.ParticipantID, bps int) (int, error)
}

type Sink interface {
	Sample(domain.QualitySample)
}

type SinkFunc func(domain.QualitySample)

func (f SinkFunc) Sample(q domain.QualitySample) { f(q) }

type Config struct {
	Interval time.Duration
	// LowScore triggers a bitrate cut of CutFactor.
	LowScore  float64
	CutFactor float64
	// RecoverAfter consecutive samples at or above GoodScore raise the bitrate
	// by RaiseFactor. Zero keeps cuts permanent.
	RecoverAfter int
	GoodScore    float64
	RaiseFactor  float64
}

func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		LowScore:     0.5,
		CutFactor:    0.2,
		RecoverAfter: 3,
		GoodScore:    0.8,
		RaiseFactor:  0.1,
	}
}

type peerState struct {
	last   core.LinkStats
	seen   bool
	streak int
}

type Monitor struct {
	self   domain.ParticipantID
	source StatsSource
	sink   Sink
	cfg    Config
	log    zerolog.Logger

	mu    sync.Mutex
	peers map[domain.ParticipantID]*peerState
}

func New(self domain.ParticipantID, source StatsSource, sink Sink, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.LowScore <= 0 {
		cfg.LowScore = def.LowScore
	}
	if cfg.CutFactor <= 0 {
		cfg.CutFactor = def.CutFactor
	}
	if cfg.GoodScore <= 0 {
		cfg.GoodScore = def.GoodScore
	}
	if cfg.RaiseFactor <= 0 {
		cfg.RaiseFactor = def.RaiseFactor
	}
	if cfg.RecoverAfter < 0 {
		cfg.RecoverAfter = 0
	}
	return &Monitor{
		self:   self,
		source: source,
		sink:   sink,
		cfg:    cfg,
		log:    log.With().Str("module", "quality").Str("participant", string(self)).Logger(),
		peers:  make(map[domain.ParticipantID]*peerState),
	}
}

// Run polls every Interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.log.Debug().Dur("interval", m.cfg.Interval).Msg("quality monitor started")
	for {
		select {
		case <-ctx.Done():
			m.log.Debug().Msg("quality monitor stopped")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick samples every link once.
func (m *Monitor) Tick(ctx context.Context) {
	ids := m.source.IDs()

	m.mu.Lock()
	live := make(map[domain.ParticipantID]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
	}
	for id := range m.peers {
		if _, ok := live[id]; !ok {
			delete(m.peers, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		st, err := m.source.Stats(ctx, id)
		if err != nil {
			m.log.Debug().Err(err).Str("peer", string(id)).Msg("stats unavailable")
			continue
		}
		q := m.sample(id, st)
		if m.sink != nil {
			m.sink.Sample(q)
		}
	}
}

func (m *Monitor) sample(id domain.ParticipantID, st core.LinkStats) domain.QualitySample {
	m.mu.Lock()
	ps, ok := m.peers[id]
	if !ok {
		ps = &peerState{}
		m.peers[id] = ps
	}

	lost := st.PacketsLost
	var bandwidth int64
	if ps.seen {
		lost = max(0, st.PacketsLost-ps.last.PacketsLost)
		if dt := st.Timestamp.Sub(ps.last.Timestamp); dt > 0 {
			db := int64(st.BytesSent+st.BytesReceived) - int64(ps.last.BytesSent+ps.last.BytesReceived)
			bandwidth = max(0, int64(float64(db*8)/dt.Seconds()))
		}
	}
	ps.last = st
	ps.seen = true

	score := Score(st.RoundTripTime, lost, st.Jitter)
	var adjust float64
	switch {
	case score < m.cfg.LowScore:
		ps.streak = 0
		adjust = 1 - m.cfg.CutFactor
	case score >= m.cfg.GoodScore:
		ps.streak++
		if m.cfg.RecoverAfter > 0 && ps.streak >= m.cfg.RecoverAfter {
			ps.streak = 0
			adjust = 1 + m.cfg.RaiseFactor
		}
	default:
		ps.streak = 0
	}
	m.mu.Unlock()

	bitrate, _ := m.source.VideoBitrate(id)
	if adjust != 0 && bitrate > 0 {
		applied, err := m.source.SetVideoBitrate(id, int(math.Round(float64(bitrate)*adjust)))
		if err != nil {
			m.log.Debug().Err(err).Str("peer", string(id)).Msg("bitrate not applied")
		} else {
			if applied != bitrate {
				m.log.Info().Str("peer", string(id)).Float64("score", score).Int("from", bitrate).Int("to", applied).Msg("video bitrate adjusted")
			}
			bitrate = applied
		}
	}

	return domain.QualitySample{
		Participant:   m.self,
		Peer:          id,
		BytesSent:     st.BytesSent,
		BytesReceived: st.BytesReceived,
		Bandwidth:     uint64(bandwidth),
		Latency:       st.RoundTripTime,
		PacketsLost:   lost,
		Jitter:        st.Jitter,
		Score:         score,
		VideoBitrate:  bitrate,
		Timestamp:     st.Timestamp,
	}
}
