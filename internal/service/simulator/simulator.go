package simulator

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"aibot/backend/internal/model"
	"aibot/backend/internal/util"

	"github.com/shopspring/decimal"
)

// ErrNothingToTrade is returned when the tradeable ceiling is zero
var ErrNothingToTrade = errors.New("nothing to trade")

// Per-cycle slice of the ceiling that is put at risk
const (
	MinTradeFraction = 0.05
	MaxTradeFraction = 0.15

	// LossRangeFactor caps the loss percent below the best win percent
	LossRangeFactor = 0.7
)

// Params are a bot's trading knobs after parsing and defaulting
type Params struct {
	MinProfitPercent float64
	MaxProfitPercent float64
	WinRatePercent   float64
}

// ParamsFromBot parses the admin-entered strings of a bot.
// Blank, non-numeric or negative bounds fall back to 1 and 5, a reversed
// range is swapped, and the win rate falls back to 70 and is clamped to 0..100.
func ParamsFromBot(bot *model.Bot) Params {
	minPct, okMin := parsePercent(bot.MinProfitPercent)
	maxPct, okMax := parsePercent(bot.MaxProfitPercent)
	if !okMin {
		minPct = model.DefaultMinProfitPercent
	}
	if !okMax {
		maxPct = model.DefaultMaxProfitPercent
	}
	if minPct > maxPct {
		minPct, maxPct = maxPct, minPct
	}

	winRate, ok := parsePercent(bot.ExpectedROI)
	if !ok {
		winRate = model.DefaultWinRatePercent
	}

	return Params{
		MinProfitPercent: minPct,
		MaxProfitPercent: maxPct,
		WinRatePercent:   math.Min(winRate, 100),
	}
}

func parsePercent(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

// Outcome is one simulated trade. Exactly one of Profit and Loss is non-zero
// unless the drawn percent rounds to nothing.
type Outcome struct {
	IsWin       bool
	TradeAmount decimal.Decimal
	Percent     float64
	Profit      decimal.Decimal
	Loss        decimal.Decimal
	Ceiling     decimal.Decimal
}

// Result returns the trade result label
func (o Outcome) Result() string {
	if o.IsWin {
		return model.TradeResultWin
	}
	return model.TradeResultLoss
}

// Simulate draws one trade against min(remaining, locked).
// The slice traded is 5-15% of that ceiling; a win earns U[min,max] percent
// of it, a loss costs U[min, max*0.7] percent, never more than the ceiling.
func Simulate(p Params, remaining, locked decimal.Decimal, rng RandSource) (Outcome, error) {
	ceiling := util.Min(util.FloorZero(remaining), util.FloorZero(locked))
	if ceiling.LessThan(util.DustThreshold) {
		return Outcome{}, ErrNothingToTrade
	}

	out := Outcome{
		Ceiling: ceiling,
		Profit:  decimal.Zero,
		Loss:    decimal.Zero,
	}
	out.IsWin = rng.Float64()*100 < p.WinRatePercent

	fraction := MinTradeFraction + rng.Float64()*(MaxTradeFraction-MinTradeFraction)
	out.TradeAmount = util.Round(ceiling.Mul(decimal.NewFromFloat(fraction)))

	if out.IsWin {
		out.Percent = uniform(rng, p.MinProfitPercent, p.MaxProfitPercent)
		out.Profit = util.Round(util.Percent(out.TradeAmount, decimal.NewFromFloat(out.Percent)))
		return out, nil
	}

	upper := math.Max(p.MaxProfitPercent*LossRangeFactor, p.MinProfitPercent)
	out.Percent = uniform(rng, p.MinProfitPercent, upper)
	out.Loss = util.Min(util.Round(util.Percent(out.TradeAmount, decimal.NewFromFloat(out.Percent))), ceiling)
	return out, nil
}

func uniform(rng RandSource, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
