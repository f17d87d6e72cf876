package util

import (
	"aibot/backend/internal/model"
	"aibot/backend/pkg/logger"
)

// NormalizeBalance floors negative tiers at zero, rounds them to MoneyScale
// and recomputes the total so total == available + locked always holds.
// Corrupt-looking tiers are logged but kept; they need a human.
func NormalizeBalance(b *model.Balance, log *logger.Logger) {
	if b.AvailableBalanceUSD.IsNegative() {
		log.Warnf("Balance for %s: available was negative (%s), resetting to 0",
			b.UserID, b.AvailableBalanceUSD.String())
	}
	if b.LockedBalanceUSD.IsNegative() {
		log.Warnf("Balance for %s: locked was negative (%s), resetting to 0",
			b.UserID, b.LockedBalanceUSD.String())
	}

	b.AvailableBalanceUSD = Round(FloorZero(b.AvailableBalanceUSD))
	b.LockedBalanceUSD = Round(FloorZero(b.LockedBalanceUSD))
	b.TotalBalanceUSD = b.AvailableBalanceUSD.Add(b.LockedBalanceUSD)

	if b.TotalBalanceUSD.GreaterThan(MaxReasonableBalanceUSD) {
		log.Errorf("Balance for %s is unreasonably large (%s)", b.UserID, b.TotalBalanceUSD.String())
	}
}
