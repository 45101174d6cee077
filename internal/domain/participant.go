package domain

import (
	"maps"
	"time"
)

const MaxParticipantIDLen = 64

type (
	ParticipantID    string
	Role             string
	ConnectionStatus string
)

const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
	RoleObserver  Role = "observer"
)

const (
	Connected    ConnectionStatus = "connected"
	Disconnected ConnectionStatus = "disconnected"
	Reconnecting ConnectionStatus = "reconnecting"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleTherapist, RoleObserver:
		return r, nil
	default:
		return "", ErrInvalidRole
	}
}

// Permissions are capability flags derived from a role. Nothing else grants them.
type Permissions struct {
	Speak     bool `json:"speak"`
	Video     bool `json:"video"`
	Share     bool `json:"share"`
	Record    bool `json:"record"`
	Chat      bool `json:"chat"`
	FileShare bool `json:"file_share"`
}

// PermissionsFor derives capabilities: only therapists record, observers only chat.
func PermissionsFor(r Role) Permissions {
	switch r {
	case RoleTherapist:
		return Permissions{Speak: true, Video: true, Share: true, Record: true, Chat: true, FileShare: true}
	case RolePatient:
		return Permissions{Speak: true, Video: true, Share: true, Chat: true, FileShare: true}
	case RoleObserver:
		return Permissions{Chat: true}
	default:
		return Permissions{}
	}
}

type MediaState struct {
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
	Screen bool `json:"screen"`
}

type Participant struct {
	ID               ParticipantID                   `json:"id"`
	DisplayName      string                          `json:"display_name"`
	Role             Role                            `json:"role"`
	ConnectionStatus ConnectionStatus                `json:"connection_status"`
	Media            MediaState                      `json:"media"`
	Permissions      Permissions                     `json:"permissions"`
	LinkStats        map[ParticipantID]QualitySample `json:"link_stats,omitempty"`
	JoinedAt         time.Time                       `json:"joined_at"`
}

// NewParticipant validates the id and derives permissions and media defaults from role.
func NewParticipant(id ParticipantID, name string, role Role, joinedAt time.Time) (*Participant, error) {
	if len(id) == 0 || len(id) > MaxParticipantIDLen {
		return nil, ErrInvalidParticipant
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	perms := PermissionsFor(role)
	return &Participant{
		ID:               id,
		DisplayName:      name,
		Role:             role,
		ConnectionStatus: Connected,
		Media:            MediaState{Audio: perms.Speak, Video: perms.Video},
		Permissions:      perms,
		JoinedAt:         joinedAt,
	}, nil
}

// SetLinkStats keeps only the latest sample per remote peer.
func (p *Participant) SetLinkStats(q QualitySample) {
	if p.LinkStats == nil {
		p.LinkStats = make(map[ParticipantID]QualitySample)
	}
	p.LinkStats[q.Peer] = q
}

func (p *Participant) Clone() Participant {
	c := *p
	c.LinkStats = maps.Clone(p.LinkStats)
	return c
}
