package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/app/orch"
	"github.com/dkeye/telecall/internal/core"
	"github.com/dkeye/telecall/internal/domain"
)

const identityKey = "identity"

// CallService is the call session as seen by the UI.
type CallService interface {
	Start(ctx context.Context, req orch.StartRequest) error
	Stop(ctx context.Context) error
	ToggleAudio(ctx context.Context, enabled bool) error
	ToggleVideo(ctx context.Context, enabled bool) error
	Status() orch.Status
}

type StartRequest struct {
	Channel  string `json:"channel" binding:"required"`
	Identity string `json:"identity"`
	Mode     string `json:"mode"`
	Token    string `json:"token"`
}

type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type handlers struct {
	svc CallService
}

func (h *handlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}

func (h *handlers) start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid channel"})
		return
	}

	// identity falls back to the last one used in this browser, then to the
	// client token
	sess := sessions.Default(c)
	identity := req.Identity
	if identity == "" {
		if saved, ok := sess.Get(identityKey).(string); ok {
			identity = saved
		}
	}
	if identity == "" {
		identity = c.GetString(clientTokenKey)
	}

	err := h.svc.Start(c.Request.Context(), orch.StartRequest{
		Channel:  domain.ChannelName(req.Channel),
		Identity: domain.Identity(identity),
		Mode:     domain.CallMode(req.Mode),
		Token:    req.Token,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	sess.Set(identityKey, identity)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
	c.JSON(http.StatusOK, h.svc.Status())
}

func (h *handlers) stop(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Status())
}

func (h *handlers) toggle(fn func(ctx context.Context, enabled bool) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ToggleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing enabled flag"})
			return
		}
		if err := fn(c.Request.Context(), *req.Enabled); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, h.svc.Status())
	}
}

// statusOf maps a call error onto an HTTP status.
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindAlreadyActive, domain.KindInvalidState, domain.KindCanceled:
		return http.StatusConflict
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindCredential:
		if errors.Is(err, core.ErrUnauthorized) {
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	case domain.KindConnection, domain.KindPublish, domain.KindProviderDisconnected:
		return http.StatusBadGateway
	case domain.KindDeviceUnavailable:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusOf(err)
	ev := log.Warn()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", code).Msg("call request failed")
	c.JSON(code, gin.H{"error": err.Error(), "kind": domain.KindOf(err)})
}
