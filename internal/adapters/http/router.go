// Package http exposes the host control API and the development signaling relay.
package http

import (
	"context"

	"github.com/dkeye/consult/internal/adapters/signal"
	"github.com/dkeye/consult/internal/app/session"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxUploadSize = 10 << 20

// Sessions is the part of the session manager the API drives.
type Sessions interface {
	Create(ctx context.Context, d domain.Descriptor) (*domain.Session, error)
	Get(id domain.SessionID) (domain.Session, error)
	Cancel(ctx context.Context, id domain.SessionID) error
	Join(ctx context.Context, id domain.SessionID, info session.ParticipantInfo) (domain.Participant, error)
	Leave(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) error
	StartShare(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) (domain.ScreenShareGrant, error)
	StopShare(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) error
	StartRecording(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) (domain.RecordingArtifact, error)
	StopRecording(ctx context.Context, id domain.SessionID, pid domain.ParticipantID) (domain.RecordingArtifact, error)
	Recording(id domain.SessionID) (domain.RecordingArtifact, bool, error)
	SendChat(ctx context.Context, id domain.SessionID, pid domain.ParticipantID, content string, kind domain.MessageKind, file *domain.FileRef) (domain.ChatMessage, error)
	UploadFile(ctx context.Context, id domain.SessionID, pid domain.ParticipantID, name, contentType string, data []byte) (*domain.FileRef, error)
	History(id domain.SessionID) ([]domain.ChatMessage, error)
}

// ConsentRecorder stores consent given through the host application.
type ConsentRecorder interface {
	Set(session domain.SessionID, participant domain.ParticipantID, granted bool)
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, s Sessions, consent ConsentRecorder, relay *signal.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConsultSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{sessions: s, consent: consent, maxUpload: maxUploadSize}
	api := r.Group("/api")

	api.POST("/sessions", h.create)
	api.GET("/sessions/:id", h.get)
	api.POST("/sessions/:id/cancel", h.cancel)
	api.GET("/sessions/:id/chat", h.history)
	api.GET("/sessions/:id/recording", h.recording)

	p := api.Group("/sessions/:id/participants")
	p.POST("", h.join)
	p.DELETE("/:pid", h.leave)
	p.POST("/:pid/share", h.startShare)
	p.DELETE("/:pid/share", h.stopShare)
	p.POST("/:pid/recording", h.startRecording)
	p.DELETE("/:pid/recording", h.stopRecording)
	p.PUT("/:pid/consent", h.setConsent)
	p.POST("/:pid/chat", h.sendChat)
	p.POST("/:pid/files", h.uploadFile)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		relay.Handle(ctx, c)
	})

	return r
}
