package handler

import (
	"context"

	"aibot/backend/internal/model"
	"aibot/backend/internal/service"
	"aibot/backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// List handles GET /api/v1/subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	subs, err := h.subscriptionService.ListByUser(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendSuccess(c, subs)
}

// Subscribe handles POST /api/v1/subscriptions
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req model.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.SendValidationError(c, err.Error())
		return
	}

	sub, err := h.subscriptionService.Subscribe(c.Request.Context(), c.GetString("user_id"), &req)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendCreated(c, sub, "Subscription created successfully")
}

// Pause handles POST /api/v1/subscriptions/:id/pause
func (h *SubscriptionHandler) Pause(c *gin.Context) {
	h.lifecycle(c, h.subscriptionService.Pause, "Subscription paused")
}

// Resume handles POST /api/v1/subscriptions/:id/resume
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	h.lifecycle(c, h.subscriptionService.Resume, "Subscription resumed")
}

// Stop handles POST /api/v1/subscriptions/:id/stop
func (h *SubscriptionHandler) Stop(c *gin.Context) {
	h.lifecycle(c, h.subscriptionService.Stop, "Subscription stopped")
}

type lifecycleFunc func(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error)

func (h *SubscriptionHandler) lifecycle(c *gin.Context, fn lifecycleFunc, message string) {
	sub, err := fn(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendSuccessWithMessage(c, sub, message)
}
