package service

import (
	"context"
	"errors"
	"net/http"

	"aibot/backend/internal/model"
	"aibot/backend/internal/repository"
	"aibot/backend/internal/util"

	"github.com/shopspring/decimal"
)

// AccountService serves the read side of a user's ledger
type AccountService struct {
	balances  BalanceStore
	portfolio PortfolioStore
	trades    TradeStore
	oracle    PriceOracle
}

func NewAccountService(balances BalanceStore, portfolio PortfolioStore, trades TradeStore, oracle PriceOracle) *AccountService {
	return &AccountService{
		balances:  balances,
		portfolio: portfolio,
		trades:    trades,
		oracle:    oracle,
	}
}

// GetBalance returns the user's balance, zeroed if they have none yet
func (s *AccountService) GetBalance(ctx context.Context, userID string) (*model.Balance, error) {
	balance, err := s.balances.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewBalance(userID), nil
		}
		return nil, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to load balance", err)
	}
	return balance, nil
}

// GetPortfolio returns the user's holdings with CurrentValue refreshed from
// the price oracle where a price is available
func (s *AccountService) GetPortfolio(ctx context.Context, userID string) ([]*model.PortfolioHolding, decimal.Decimal, error) {
	holdings, err := s.portfolio.ListByUser(ctx, userID)
	if err != nil {
		return nil, decimal.Zero, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to load portfolio", err)
	}

	total := decimal.Zero
	for _, h := range holdings {
		if s.oracle != nil {
			if price, ok := s.oracle.GetPrice(ctx, h.AssetID); ok {
				h.CurrentValue = util.Round(h.Amount.Mul(price))
			}
		}
		total = total.Add(h.CurrentValue)
	}
	return holdings, total, nil
}

// GetOverview combines balance and revalued portfolio
func (s *AccountService) GetOverview(ctx context.Context, userID string) (*model.AccountOverview, error) {
	balance, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings, total, err := s.GetPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.AccountOverview{
		Balance:        balance,
		Holdings:       holdings,
		PortfolioValue: util.FormatMoney(total),
	}, nil
}

// GetTrades returns the user's trade history newest first
func (s *AccountService) GetTrades(ctx context.Context, userID string, offset, limit int) ([]*model.TradeRecord, int64, error) {
	trades, total, err := s.trades.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, 0, util.WrapError(http.StatusInternalServerError, util.ErrCodeInternal, "Failed to load trades", err)
	}
	return trades, total, nil
}
