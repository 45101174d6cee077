// Package store persists sessions, rosters, chat, recordings and quality
// samples. The engine only writes; nothing here is read back at runtime.
package store

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dkeye/consult/internal/domain"
)

// Queries use ? placeholders; the postgres store rebinds them.
const (
	upsertSessionSQL = `INSERT INTO sessions
		(id, appointment_id, patient_id, therapist_id, status, scheduled_at, started_at, ended_at, features, room_ref, last_quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			features = excluded.features,
			last_quality = excluded.last_quality`

	deleteParticipantsSQL = `DELETE FROM participants WHERE session_id = ?`

	insertParticipantSQL = `INSERT INTO participants
		(session_id, id, display_name, role, connection_status, media, permissions, link_stats, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertChatSQL = `INSERT INTO chat_messages
		(id, session_id, sender_id, kind, content, file, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	upsertRecordingSQL = `INSERT INTO recordings
		(id, session_id, started_by, started_at, ended_at, format, quality, consent, status, duration_ms, size, url, failure, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = excluded.ended_at,
			status = excluded.status,
			duration_ms = excluded.duration_ms,
			size = excluded.size,
			url = excluded.url,
			failure = excluded.failure,
			note = excluded.note`

	insertQualitySQL = `INSERT INTO quality_samples
		(session_id, participant_id, peer_id, bytes_sent, bytes_received, bandwidth, latency_ms, packets_lost, jitter_ms, score, video_bitrate, sampled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// rebind turns ? placeholders into $1..$n.
func rebind(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// nullableJSON encodes v, or returns nil for a nil pointer.
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	return jsonText(v)
}

func sessionArgs(s domain.Session) ([]any, error) {
	features, err := jsonText(s.Features)
	if err != nil {
		return nil, err
	}
	quality, err := nullableJSON(s.LastQuality)
	if err != nil {
		return nil, err
	}
	return []any{
		string(s.ID), s.AppointmentID, s.PatientID, s.TherapistID, string(s.Status),
		s.ScheduledAt, s.StartedAt, s.EndedAt, features, s.RoomRef, quality,
	}, nil
}

func participantArgs(id domain.SessionID, p domain.Participant) ([]any, error) {
	media, err := jsonText(p.Media)
	if err != nil {
		return nil, err
	}
	perms, err := jsonText(p.Permissions)
	if err != nil {
		return nil, err
	}
	stats, err := jsonText(p.LinkStats)
	if err != nil {
		return nil, err
	}
	return []any{
		string(id), string(p.ID), p.DisplayName, string(p.Role), string(p.ConnectionStatus),
		media, perms, stats, p.JoinedAt,
	}, nil
}

func chatArgs(m domain.ChatMessage) ([]any, error) {
	file, err := nullableJSON(m.File)
	if err != nil {
		return nil, err
	}
	return []any{m.ID, string(m.SessionID), string(m.Sender), string(m.Kind), m.Content, file, m.SentAt}, nil
}

func recordingArgs(a domain.RecordingArtifact) ([]any, error) {
	quality, err := jsonText(a.Quality)
	if err != nil {
		return nil, err
	}
	consent, err := jsonText(a.Consent)
	if err != nil {
		return nil, err
	}
	return []any{
		a.ID, string(a.SessionID), string(a.StartedBy), a.StartedAt, a.EndedAt, a.Format,
		quality, consent, string(a.Status), a.Duration.Milliseconds(), a.Size, a.URL, a.Failure, a.Note,
	}, nil
}

func qualityArgs(id domain.SessionID, q domain.QualitySample) []any {
	return []any{
		string(id), string(q.Participant), string(q.Peer),
		int64(q.BytesSent), int64(q.BytesReceived), int64(q.Bandwidth),
		q.Latency.Milliseconds(), q.PacketsLost, q.Jitter.Milliseconds(),
		q.Score, q.VideoBitrate, q.Timestamp,
	}
}
