package redis

import (
	"fmt"
	"strings"
)

// Redis key patterns for the application
// Following the pattern: entity:id or entity:id:attribute

var keyPrefix string

// InitKeys sets a namespace prefix applied to every key and channel
func InitKeys(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	keyPrefix = prefix
}

func k(format string, args ...interface{}) string {
	return keyPrefix + fmt.Sprintf(format, args...)
}

// Bot keys
func BotKey(botID string) string {
	return k("bot:%s", botID)
}

func AllBotsKey() string {
	return k("bots:all")
}

func ActiveBotsKey() string {
	return k("bots:active")
}

// Subscription keys
func SubscriptionKey(subscriptionID string) string {
	return k("subscription:%s", subscriptionID)
}

func BotSubscriptionsKey(botID string) string {
	return k("bot_subscriptions:%s", botID)
}

func UserSubscriptionsKey(userID string) string {
	return k("user_subscriptions:%s", userID)
}

// SubscriptionLeaseKey guards one subscription against concurrent processing
func SubscriptionLeaseKey(subscriptionID string) string {
	return k("lease:subscription:%s", subscriptionID)
}

// Balance keys
func BalanceKey(userID string) string {
	return k("balance:%s", userID)
}

// Portfolio keys
func PortfolioKey(userID, symbol string) string {
	return k("portfolio:%s:%s", userID, strings.ToUpper(symbol))
}

func UserPortfolioKey(userID string) string {
	return k("user_portfolio:%s", userID)
}

// Trade record keys
func TradeKey(tradeID string) string {
	return k("trade:%s", tradeID)
}

func UserTradesKey(userID string) string {
	return k("user_trades:%s", userID)
}

func SubscriptionTradesKey(subscriptionID string) string {
	return k("subscription_trades:%s", subscriptionID)
}

// Cache keys
func CachePriceKey(assetID string) string {
	return k("cache:price:%s", strings.ToLower(assetID))
}

// WebSocket pub/sub channels
func GetWSUserKey(userID string) string {
	return k("ws:user:%s", userID)
}

func GetWSBroadcastKey() string {
	return k("ws:broadcast")
}
