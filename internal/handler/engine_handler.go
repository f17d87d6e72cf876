package handler

import (
	"errors"
	"net/http"

	"aibot/backend/internal/service"
	"aibot/backend/internal/util"

	"github.com/gin-gonic/gin"
)

// EngineHandler exposes the trade scheduler to administrators
type EngineHandler struct {
	scheduler *service.TradeScheduler
}

func NewEngineHandler(scheduler *service.TradeScheduler) *EngineHandler {
	return &EngineHandler{
		scheduler: scheduler,
	}
}

// Status handles GET /api/v1/admin/engine
func (h *EngineHandler) Status(c *gin.Context) {
	util.SendSuccess(c, h.scheduler.Status())
}

// RunNow handles POST /api/v1/admin/engine/run ("distribute profits now")
func (h *EngineHandler) RunNow(c *gin.Context) {
	report, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			util.SendCustomError(c, http.StatusConflict, util.ErrCodeConflict, "A trade cycle is already running")
			return
		}
		util.SendError(c, err)
		return
	}

	util.SendSuccessWithMessage(c, report, "Trade cycle completed")
}

// Start handles POST /api/v1/admin/engine/start
func (h *EngineHandler) Start(c *gin.Context) {
	msg := "Trade scheduler started"
	if !h.scheduler.Start() {
		msg = "Trade scheduler already running"
	}
	util.SendSuccessWithMessage(c, h.scheduler.Status(), msg)
}

// Stop handles POST /api/v1/admin/engine/stop
func (h *EngineHandler) Stop(c *gin.Context) {
	msg := "Trade scheduler stopped"
	if !h.scheduler.Stop() {
		msg = "Trade scheduler already stopped"
	}
	util.SendSuccessWithMessage(c, h.scheduler.Status(), msg)
}
