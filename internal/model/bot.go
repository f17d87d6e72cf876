package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BotConfig field defaults used when an admin left a value blank or unparsable
const (
	DefaultMinProfitPercent = 1.0
	DefaultMaxProfitPercent = 5.0
	DefaultWinRatePercent   = 70.0
)

// Bot is an admin-configured AI trading product users subscribe to.
// It is read-only for the trading engine.
type Bot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	IsActive    bool   `json:"is_active"`

	// Per-trade profit/loss bounds, percent of the traded amount. Stored as
	// entered by admins; parsing and defaults happen in the simulator.
	MinProfitPercent string `json:"min_profit_percent"`
	MaxProfitPercent string `json:"max_profit_percent"`

	// ExpectedROI is used by the engine as the win rate (0-100).
	ExpectedROI string `json:"expected_roi"`

	TradingAssets     []TradingAsset     `json:"trading_assets"`
	AssetDistribution map[string]float64 `json:"asset_distribution"` // symbol -> relative weight

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TradingAsset is the canonical descriptor of an asset a bot trades.
// Bot configs may list assets as bare strings ("BTC") or as objects;
// both decode into this shape.
type TradingAsset struct {
	ID      string `json:"id"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url"`
}

// DefaultAsset is traded when a bot has no assets configured
var DefaultAsset = TradingAsset{
	ID:      "bitcoin",
	Symbol:  "BTC",
	Name:    "Bitcoin",
	LogoURL: "https://assets.coingecko.com/coins/images/1/large/bitcoin.png",
}

// AssetFromString normalizes a bare string entry
func AssetFromString(s string) TradingAsset {
	s = strings.TrimSpace(s)
	return TradingAsset{ID: s, Symbol: s, Name: s}
}

// UnmarshalJSON accepts either a string or an object
func (a *TradingAsset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = AssetFromString(s)
		return nil
	}

	var raw struct {
		ID        string `json:"id"`
		Symbol    string `json:"symbol"`
		Name      string `json:"name"`
		Logo      string `json:"logo"`
		LogoURL   string `json:"logo_url"`
		LogoCamel string `json:"logoUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("trading asset: %w", err)
	}

	asset := TradingAsset{
		ID:      strings.TrimSpace(raw.ID),
		Symbol:  strings.TrimSpace(raw.Symbol),
		Name:    strings.TrimSpace(raw.Name),
		LogoURL: firstNonEmpty(raw.LogoURL, raw.LogoCamel, raw.Logo),
	}
	if asset.Symbol == "" {
		asset.Symbol = asset.ID
	}
	if asset.ID == "" {
		asset.ID = asset.Symbol
	}
	if asset.Name == "" {
		asset.Name = asset.Symbol
	}
	if asset.ID == "" {
		return fmt.Errorf("trading asset: missing id and symbol")
	}

	*a = asset
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
