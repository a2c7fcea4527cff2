package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	notificationdomain "github.com/railzwaylabs/aquaduct/internal/notification/domain"
)

// registerPushSubscriptionRequest mirrors the browser PushSubscription JSON plus the owning user.
type registerPushSubscriptionRequest struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type unregisterPushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) RegisterPushSubscription(c *gin.Context) {
	var req registerPushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.subscriptionSvc.Register(c.Request.Context(), notificationdomain.RegisterSubscriptionRequest{
		UserID:    req.UserID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: c.Request.UserAgent(),
		Actor:     actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondCreated(c, sub)
}

func (s *Server) UnregisterPushSubscription(c *gin.Context) {
	var req unregisterPushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Endpoint) == "" {
		AbortWithError(c, newValidationError("endpoint", "invalid_endpoint", "endpoint is required"))
		return
	}
	if err := s.subscriptionSvc.Unregister(c.Request.Context(), req.Endpoint, actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
