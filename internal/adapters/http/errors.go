package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/consult/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var statusByError = []struct {
	err    error
	status int
}{
	{domain.ErrSessionNotFound, http.StatusNotFound},
	{domain.ErrParticipantNotFound, http.StatusNotFound},

	{domain.ErrInvalidRole, http.StatusBadRequest},
	{domain.ErrInvalidParticipant, http.StatusBadRequest},
	{domain.ErrInvalidMessage, http.StatusBadRequest},
	{domain.ErrFileNotUploaded, http.StatusBadRequest},

	{domain.ErrPermissionDenied, http.StatusForbidden},
	{domain.ErrFeatureDisabled, http.StatusForbidden},
	{domain.ErrRecordingConsentMissing, http.StatusForbidden},

	{domain.ErrDeviceAccessDenied, http.StatusFailedDependency},
	{domain.ErrUploadFailed, http.StatusBadGateway},
	{domain.ErrSignalingUnavailable, http.StatusServiceUnavailable},

	{domain.ErrSessionExists, http.StatusConflict},
	{domain.ErrAlreadyJoined, http.StatusConflict},
	{domain.ErrSessionClosed, http.StatusConflict},
	{domain.ErrSessionNotActive, http.StatusConflict},
	{domain.ErrInvalidTransition, http.StatusConflict},
	{domain.ErrCapacityExceeded, http.StatusConflict},
	{domain.ErrScreenShareAlreadyActive, http.StatusConflict},
	{domain.ErrRecordingInProgress, http.StatusConflict},
	{domain.ErrNoActiveRecording, http.StatusConflict},
	{domain.ErrNoActiveShare, http.StatusConflict},
}

func statusFor(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
