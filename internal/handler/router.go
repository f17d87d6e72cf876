package handler

import (
	"net/http"
	"time"

	"aibot/backend/internal/middleware"
	"aibot/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Routes bundles everything the HTTP surface is built from
type Routes struct {
	Verifier     *jwt.Verifier
	Engine       *EngineHandler
	Account      *AccountHandler
	Subscription *SubscriptionHandler
	Health       gin.HandlerFunc
	WebSocket    gin.HandlerFunc
}

// Register mounts the API on router
func (r Routes) Register(router *gin.Engine) {
	if r.Health != nil {
		router.GET("/health", r.Health)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"message": "pong",
				"time":    time.Now().Unix(),
			})
		})

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(r.Verifier))

		account := authed.Group("/account")
		{
			account.GET("/balance", r.Account.GetBalance)
			account.GET("/portfolio", r.Account.GetPortfolio)
			account.GET("/trades", r.Account.GetTrades)
		}

		subs := authed.Group("/subscriptions")
		{
			subs.GET("", r.Subscription.List)
			subs.POST("", r.Subscription.Subscribe)
			subs.POST("/:id/pause", r.Subscription.Pause)
			subs.POST("/:id/resume", r.Subscription.Resume)
			subs.POST("/:id/stop", r.Subscription.Stop)
		}

		if r.WebSocket != nil {
			authed.GET("/ws", r.WebSocket)
		}

		admin := authed.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/engine", r.Engine.Status)
			admin.POST("/engine/run", r.Engine.RunNow)
			admin.POST("/engine/start", r.Engine.Start)
			admin.POST("/engine/stop", r.Engine.Stop)
		}
	}
}
