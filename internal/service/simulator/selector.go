// Package simulator holds the pure pieces of the trade engine: picking which
// asset a bot trades this cycle and drawing a synthetic win or loss.
// Nothing here touches storage; randomness comes from an injected source.
package simulator

import (
	"math/rand/v2"
	"strings"

	"aibot/backend/internal/model"
)

// RandSource is the randomness the engine draws from. *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

// NewRand returns a RandSource seeded from the runtime's entropy
func NewRand() RandSource {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewSeededRand returns a deterministic RandSource
func NewSeededRand(seed uint64) RandSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// SelectAsset picks the asset a bot trades this cycle.
// With no assets it returns model.DefaultAsset; with no weights it picks
// uniformly; otherwise it walks cumulative weights against a [0,100) draw.
func SelectAsset(assets []model.TradingAsset, weights map[string]float64, rng RandSource) model.TradingAsset {
	if len(assets) == 0 {
		return model.DefaultAsset
	}
	if len(weights) == 0 {
		return assets[rng.IntN(len(assets))]
	}

	draw := rng.Float64() * 100
	cumulative := 0.0
	for _, asset := range assets {
		cumulative += weightFor(weights, asset.Symbol)
		if cumulative >= draw {
			return asset
		}
	}

	// weights summing below 100 leave the top of the range unmatched
	return assets[len(assets)-1]
}

// weightFor looks a symbol up exact, then lowercase, then uppercase.
// Missing or negative weights count as zero.
func weightFor(weights map[string]float64, symbol string) float64 {
	for _, key := range []string{symbol, strings.ToLower(symbol), strings.ToUpper(symbol)} {
		if w, ok := weights[key]; ok {
			if w < 0 {
				return 0
			}
			return w
		}
	}
	return 0
}
