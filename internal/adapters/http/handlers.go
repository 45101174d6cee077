package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/dkeye/consult/internal/app/session"
	"github.com/dkeye/consult/internal/domain"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	sessions  Sessions
	consent   ConsentRecorder
	maxUpload int64
}

func sessionID(c *gin.Context) domain.SessionID { return domain.SessionID(c.Param("id")) }

func participantID(c *gin.Context) domain.ParticipantID {
	return domain.ParticipantID(c.Param("pid"))
}

func (h *handlers) create(c *gin.Context) {
	var d domain.Descriptor
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session descriptor"})
		return
	}
	s, err := h.sessions.Create(c.Request.Context(), d)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *handlers) get(c *gin.Context) {
	s, err := h.sessions.Get(sessionID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) cancel(c *gin.Context) {
	if err := h.sessions.Cancel(c.Request.Context(), sessionID(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) join(c *gin.Context) {
	var info session.ParticipantInfo
	if err := c.ShouldBindJSON(&info); err != nil || info.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid participant"})
		return
	}
	p, err := h.sessions.Join(c.Request.Context(), sessionID(c), info)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *handlers) leave(c *gin.Context) {
	if err := h.sessions.Leave(c.Request.Context(), sessionID(c), participantID(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) startShare(c *gin.Context) {
	g, err := h.sessions.StartShare(c.Request.Context(), sessionID(c), participantID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *handlers) stopShare(c *gin.Context) {
	if err := h.sessions.StopShare(c.Request.Context(), sessionID(c), participantID(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) startRecording(c *gin.Context) {
	a, err := h.sessions.StartRecording(c.Request.Context(), sessionID(c), participantID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// stopRecording answers with the artifact even when the upload failed; the
// status code tells the two apart.
func (h *handlers) stopRecording(c *gin.Context) {
	a, err := h.sessions.StopRecording(c.Request.Context(), sessionID(c), participantID(c))
	if err != nil {
		if a.ID != "" {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "recording": a})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) recording(c *gin.Context) {
	a, ok, err := h.sessions.Recording(sessionID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recording"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *handlers) setConsent(c *gin.Context) {
	var req struct {
		Granted bool `json:"granted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consent"})
		return
	}
	if _, err := h.sessions.Get(sessionID(c)); err != nil {
		abortWithError(c, err)
		return
	}
	h.consent.Set(sessionID(c), participantID(c), req.Granted)
	c.Status(http.StatusNoContent)
}

type chatRequest struct {
	Content string             `json:"content"`
	Kind    domain.MessageKind `json:"kind"`
	File    *domain.FileRef    `json:"file,omitempty"`
}

func (h *handlers) sendChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat message"})
		return
	}
	if req.Kind == "" {
		req.Kind = domain.KindText
	}
	m, err := h.sessions.SendChat(c.Request.Context(), sessionID(c), participantID(c), req.Content, req.Kind, req.File)
	if err != nil {
		if m.ID != "" && errors.Is(err, domain.ErrSignalingUnavailable) {
			// stored, not relayed
			c.JSON(http.StatusAccepted, m)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handlers) uploadFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	ref, err := h.sessions.UploadFile(c.Request.Context(), sessionID(c), participantID(c), fh.Filename, contentType, data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (h *handlers) history(c *gin.Context) {
	msgs, err := h.sessions.History(sessionID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
