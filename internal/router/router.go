package router

import (
	"podium/internal/config"
	"podium/internal/handler"
	"podium/internal/ledger"
	"podium/internal/middleware"
	"podium/internal/payment"
	"podium/internal/session"
	"podium/internal/voice"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps holds the wired services the API serves.
type Deps struct {
	DB      *gorm.DB
	Ledger  *ledger.Service
	Engine  *session.Engine
	Payment *payment.Service
	Voice   *voice.Client
}

// SetupRouter configures the gin engine and all API routes.
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	api := r.Group("/api")

	pageSize := cfg.App.PageSize

	// auth and the provider webhook do not require a token
	authHandler := handler.NewAuthHandler(deps.DB, cfg.JWT.Secret, cfg.JWT.Issuer,
		cfg.JWT.ExpireHours, cfg.Security.BcryptCost)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	paymentHandler := handler.NewPaymentHandler(deps.Payment, pageSize)
	api.POST("/payments/webhook", paymentHandler.Webhook)

	creditHandler := handler.NewCreditHandler(deps.Ledger, deps.Payment.Catalog(), pageSize)
	api.GET("/credits/packages", creditHandler.Packages)

	protected := api.Group("")
	protected.Use(
		middleware.AuthMiddleware(cfg.JWT.Secret, deps.DB),
		middleware.AuditMiddleware(deps.DB),
	)

	protected.GET("/me", handler.GetMe)
	protected.POST("/profile", handler.UpdateProfile(deps.DB))
	protected.POST("/profile/password", handler.ChangePassword(deps.DB, cfg.Security.BcryptCost))

	sessionHandler := handler.NewSessionHandler(deps.Engine, pageSize)
	protected.POST("/sessions", sessionHandler.Start)
	protected.GET("/sessions", sessionHandler.List)
	protected.GET("/sessions/:id", sessionHandler.Get)
	protected.GET("/sessions/:id/current-turn", sessionHandler.CurrentTurn)
	protected.POST("/sessions/:id/turns/:turnId/answer", sessionHandler.SubmitAnswer)
	protected.POST("/sessions/:id/turns/:turnId/retry", sessionHandler.RetryFeedback)
	protected.POST("/sessions/:id/finish", sessionHandler.Finish)
	protected.POST("/sessions/:id/cancel", sessionHandler.Cancel)

	protected.GET("/credits/balance", creditHandler.Balance)
	protected.GET("/credits/history", creditHandler.History)
	protected.GET("/credits/export/xlsx", creditHandler.Export)

	protected.POST("/payments/initialize", paymentHandler.Initialize)
	protected.GET("/payments/verify/:reference", paymentHandler.Verify)
	protected.GET("/payments/history", paymentHandler.History)

	voiceHandler := handler.NewVoiceHandler(deps.Voice)
	protected.POST("/voice/speak", voiceHandler.Speak)

	return r
}
