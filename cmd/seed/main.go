package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"aibot/backend/internal/config"
	"aibot/backend/internal/model"
	"aibot/backend/internal/repository"
	"aibot/backend/internal/service"
	"aibot/backend/pkg/jwt"
	"aibot/backend/pkg/logger"
	"aibot/backend/pkg/redis"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Seeds a demo bot, funds a demo user and subscribes them, then prints
// tokens for exercising the API locally.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	redisClient, err := redis.New(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	redis.InitKeys(cfg.Redis.Prefix)

	ctx := context.Background()
	botRepo := repository.NewBotRepository(redisClient)
	subRepo := repository.NewSubscriptionRepository(redisClient)
	balanceRepo := repository.NewBalanceRepository(redisClient)

	bot := &model.Bot{
		ID:               "demo-momentum",
		Name:             "Demo Momentum",
		Description:      "Seeded bot for local development",
		IsActive:         true,
		MinProfitPercent: "1",
		MaxProfitPercent: "5",
		ExpectedROI:      "70",
		TradingAssets: []model.TradingAsset{
			model.DefaultAsset,
			{ID: "ethereum", Symbol: "ETH", Name: "Ethereum"},
			{ID: "solana", Symbol: "SOL", Name: "Solana"},
		},
		AssetDistribution: map[string]float64{"BTC": 50, "ETH": 30, "SOL": 20},
	}
	if existing, err := botRepo.GetByID(ctx, bot.ID); err == nil {
		bot.CreatedAt = existing.CreatedAt
	}
	if err := botRepo.Save(ctx, bot); err != nil {
		log.Fatalf("Failed to save bot: %v", err)
	}
	fmt.Printf("Bot %s saved\n", bot.ID)

	const userID = "demo-user"
	deposit := decimal.NewFromInt(10000)
	if _, err := balanceRepo.Mutate(ctx, userID, func(b *model.Balance) error {
		b.AvailableBalanceUSD = b.AvailableBalanceUSD.Add(deposit)
		b.TotalBalanceUSD = b.AvailableBalanceUSD.Add(b.LockedBalanceUSD)
		return nil
	}); err != nil {
		log.Fatalf("Failed to fund %s: %v", userID, err)
	}
	fmt.Printf("Deposited %s USD for %s\n", deposit, userID)

	reconciler := service.NewReconciler(subRepo, balanceRepo, nil, nil, nil)
	subs := service.NewSubscriptionService(botRepo, subRepo, balanceRepo, reconciler, nil)
	sub, err := subs.Subscribe(ctx, userID, &model.SubscribeRequest{
		BotID:        bot.ID,
		Amount:       decimal.NewFromInt(2500),
		DurationDays: 30,
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	fmt.Printf("Subscription %s created, expires %s\n", sub.ID, sub.ExpiryDate.Format(time.RFC3339))

	verifier := jwt.NewVerifier(cfg.JWT.Secret)
	for _, p := range []struct{ id, role string }{{"demo-admin", model.RoleAdmin}, {userID, model.RoleUser}} {
		token, err := verifier.Issue(p.id, p.id, p.role, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Printf("%s token: %s\n", p.role, token)
	}
}
