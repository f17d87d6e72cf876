package service

import (
	"context"
	"encoding/json"

	"aibot/backend/internal/model"
	"aibot/backend/pkg/logger"
	"aibot/backend/pkg/redis"
)

// NotificationService publishes events to Redis for WebSocket fan-out.
// Publishing is best-effort; failures are logged and swallowed.
type NotificationService struct {
	redis *redis.Client
	log   *logger.Logger
}

func NewNotificationService(redis *redis.Client) *NotificationService {
	return &NotificationService{
		redis: redis,
		log:   logger.GetLogger().Component("notification"),
	}
}

// NotifyUser sends a message to a specific user via WebSocket
func (s *NotificationService) NotifyUser(ctx context.Context, userID string, msgType model.WSMessageType, payload interface{}) {
	s.publish(ctx, redis.GetWSUserKey(userID), msgType, payload)
}

// Broadcast sends a message to all connected users
func (s *NotificationService) Broadcast(ctx context.Context, msgType model.WSMessageType, payload interface{}) {
	s.publish(ctx, redis.GetWSBroadcastKey(), msgType, payload)
}

// NotifyTrade sends a freshly reconciled trade record to its owner
func (s *NotificationService) NotifyTrade(ctx context.Context, trade *model.TradeRecord) {
	s.NotifyUser(ctx, trade.UserID, model.MessageTypeTradeUpdate, trade)
}

// NotifyBalance sends the user's new balance
func (s *NotificationService) NotifyBalance(ctx context.Context, balance *model.Balance) {
	s.NotifyUser(ctx, balance.UserID, model.MessageTypeBalanceUpdate, balance)
}

// NotifySubscription sends a subscription state change to its owner
func (s *NotificationService) NotifySubscription(ctx context.Context, sub *model.Subscription) {
	s.NotifyUser(ctx, sub.UserID, model.MessageTypeSubscriptionUpdate, sub)
}

func (s *NotificationService) publish(ctx context.Context, channel string, msgType model.WSMessageType, payload interface{}) {
	data, err := json.Marshal(model.WSMessage{
		Type:    msgType,
		Payload: payload,
	})
	if err != nil {
		s.log.Errorf("Failed to marshal notification: %v", err)
		return
	}

	if err := s.redis.Publish(ctx, channel, data); err != nil {
		s.log.Errorf("Failed to publish notification to channel %s: %v", channel, err)
	}
}
