package handler

import (
	"aibot/backend/internal/service"
	"aibot/backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

// GetBalance handles GET /api/v1/account/balance
func (h *AccountHandler) GetBalance(c *gin.Context) {
	balance, err := h.accountService.GetBalance(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendSuccess(c, balance)
}

// GetPortfolio handles GET /api/v1/account/portfolio
func (h *AccountHandler) GetPortfolio(c *gin.Context) {
	overview, err := h.accountService.GetOverview(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendSuccess(c, overview)
}

// GetTrades handles GET /api/v1/account/trades
func (h *AccountHandler) GetTrades(c *gin.Context) {
	limit, offset := util.ParsePagination(c, 20, 100)

	trades, total, err := h.accountService.GetTrades(c.Request.Context(), c.GetString("user_id"), offset, limit)
	if err != nil {
		util.SendError(c, err)
		return
	}

	util.SendPaginated(c, trades, util.Pagination{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}
