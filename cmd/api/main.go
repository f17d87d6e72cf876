package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aibot/backend/internal/config"
	"aibot/backend/internal/handler"
	"aibot/backend/internal/middleware"
	"aibot/backend/internal/repository"
	"aibot/backend/internal/service"
	"aibot/backend/pkg/coingecko"
	"aibot/backend/pkg/jwt"
	"aibot/backend/pkg/logger"
	"aibot/backend/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file (ignore error in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log := logger.GetLogger()

	log.Info("Starting AI bot engine...")
	log.Infof("Environment: %s", cfg.Server.Env)

	log.Info("Connecting to Redis...")
	redisClient, err := redis.New(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to Redis", err)
	}
	defer redisClient.Close()
	redis.InitKeys(cfg.Redis.Prefix)
	log.Info("✓ Redis connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	botRepo := repository.NewBotRepository(redisClient)
	subRepo := repository.NewSubscriptionRepository(redisClient)
	balanceRepo := repository.NewBalanceRepository(redisClient)
	portfolioRepo := repository.NewPortfolioRepository(redisClient)
	tradeRepo := repository.NewTradeRepository(redisClient)
	leaseRepo := repository.NewLeaseRepository(redisClient)

	// Engine
	priceClient := coingecko.NewClient(cfg.Price.APIURL, cfg.Price.APIKey)
	oracle := service.NewCachedPriceOracle(priceClient, redisClient, cfg.Price.Timeout, cfg.Price.CacheTTL)
	notifier := service.NewNotificationService(redisClient)

	reconciler := service.NewReconciler(subRepo, balanceRepo, portfolioRepo, tradeRepo, oracle,
		service.WithNotifier(notifier),
		service.WithMinTradeSpacing(cfg.Trading.MinTradeSpacing),
	)
	scheduler := service.NewTradeScheduler(botRepo, subRepo, leaseRepo, reconciler, service.SchedulerConfig{
		Interval:        cfg.Trading.Interval,
		LeaseTTL:        cfg.Trading.LeaseTTL,
		MinTradeSpacing: cfg.Trading.MinTradeSpacing,
	})
	if cfg.Trading.AutoStart {
		scheduler.Start()
	}

	accountService := service.NewAccountService(balanceRepo, portfolioRepo, tradeRepo, oracle)
	subscriptionService := service.NewSubscriptionService(botRepo, subRepo, balanceRepo, reconciler, notifier)

	// WebSocket fan-out
	wsHub := service.NewWSHub(redisClient, cfg.CORS.AllowedOrigins)
	go wsHub.Run(ctx)
	go wsHub.StartPubSubListener(ctx)

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log, "/health"))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	handler.Routes{
		Verifier:     jwt.NewVerifier(cfg.JWT.Secret),
		Engine:       handler.NewEngineHandler(scheduler),
		Account:      handler.NewAccountHandler(accountService),
		Subscription: handler.NewSubscriptionHandler(subscriptionService),
		WebSocket:    wsHub.ServeWS,
		Health: func(c *gin.Context) {
			pingCtx, pingCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer pingCancel()

			if err := redisClient.Ping(pingCtx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "Redis connection failed",
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"status":    "healthy",
				"redis":     "connected",
				"scheduler": scheduler.Status().State,
			})
		},
	}.Register(router)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server starting on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", err)
		}
	}()

	log.Info("✓ Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Finish the in-flight trade cycle before the connections go away
	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err)
	}

	log.Info("Server exited")
}
