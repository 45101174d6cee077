package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists")
	ErrAlreadyJoined       = errors.New("participant already joined")
	ErrSessionClosed       = errors.New("session is in a terminal state")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrCapacityExceeded    = errors.New("session roster is full")
	ErrInvalidRole         = errors.New("invalid role: must be patient, therapist or observer")
	ErrInvalidParticipant  = errors.New("participant id must be 1-64 characters")

	// Media and connectivity.
	ErrDeviceAccessDenied     = errors.New("local capture device unavailable")
	ErrNegotiationFailed      = errors.New("peer negotiation failed")
	ErrParticipantUnreachable = errors.New("participant unreachable")
	ErrSignalingUnavailable   = errors.New("signaling unavailable")

	// Synchronous rejections at the call site.
	ErrPermissionDenied         = errors.New("participant lacks permission")
	ErrFeatureDisabled          = errors.New("feature disabled for this session")
	ErrRecordingConsentMissing  = errors.New("recording consent missing")
	ErrRecordingInProgress      = errors.New("recording already in progress")
	ErrNoActiveRecording        = errors.New("no active recording")
	ErrScreenShareAlreadyActive = errors.New("screen share already active")
	ErrNoActiveShare            = errors.New("no active screen share")
	ErrUploadFailed             = errors.New("artifact upload failed")

	// Chat.
	ErrInvalidMessage  = errors.New("invalid chat message")
	ErrFileNotUploaded = errors.New("file message requires an uploaded reference")
)

// ErrScreenShareConflict is the error kind name used by host applications.
var ErrScreenShareConflict = ErrScreenShareAlreadyActive
