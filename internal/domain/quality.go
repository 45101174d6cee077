package domain

import "time"

// QualitySample is the latest measurement of one link. Only the last value is kept.
type QualitySample struct {
	Participant   ParticipantID `json:"participant_id"`
	Peer          ParticipantID `json:"peer_id"`
	BytesSent     uint64        `json:"bytes_sent"`
	BytesReceived uint64        `json:"bytes_received"`
	Bandwidth     uint64        `json:"bandwidth_bps"`
	Latency       time.Duration `json:"latency"`
	PacketsLost   int64         `json:"packets_lost"`
	Jitter        time.Duration `json:"jitter"`
	Score         float64       `json:"score"`
	VideoBitrate  int           `json:"video_bitrate"`
	Timestamp     time.Time     `json:"timestamp"`
}
