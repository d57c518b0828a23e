package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "chatvault/internal/app"
	"chatvault/internal/bootstrap"
	"chatvault/internal/repository"
	"chatvault/internal/transport/http/handler"
	"chatvault/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.DB)
	chatRepo := repository.NewChatRepository(app.DB)
	messageRepo := repository.NewMessageRepository(app.DB)
	usageRepo := repository.NewUsageRepository(app.DB)

	usageService := appsvc.NewUsageService(
		usageRepo,
		time.Duration(app.Config.Limits.PeriodHours)*time.Hour,
		app.Config.Limits.Messages,
		app.Config.Limits.Tokens,
		app.Config.Limits.Files,
	)
	authService := appsvc.NewAuthService(
		userRepo,
		app.TagCache,
		app.SyncProvider,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		chatRepo,
		messageRepo,
		app.TagCache,
		app.SyncProvider,
		app.CleanupBatcher,
		usageService,
	)
	uploadService := appsvc.NewUploadService(
		chatRepo,
		app.Attachments,
		usageService,
		app.Config.Storage.MaxFileSizeMB,
		app.Config.Storage.MaxFilesPerUpload,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService, uploadService)
	prefsHandler := handler.NewPreferencesHandler(authService)
	usageHandler := handler.NewUsageHandler(usageService)
	syncHandler := handler.NewSyncHandler(app.Hub, app.SyncProvider)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequestLimit(app.RequestLimiter))

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)
	authGroup.PATCH("/username", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Rename)

	chatGroup := v1.Group("/chats")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.GET("", chatHandler.ListByDate)
	chatGroup.POST("", chatHandler.Create)
	chatGroup.GET("/search", chatHandler.Search)
	chatGroup.GET("/shared", chatHandler.ListShared)
	chatGroup.POST("/visibility", chatHandler.UpdateManyVisibility)
	chatGroup.POST("/visibility/all", chatHandler.SetAllVisibility)
	chatGroup.GET("/:id", chatHandler.Get)
	chatGroup.PATCH("/:id/title", chatHandler.Rename)
	chatGroup.PATCH("/:id/visibility", chatHandler.UpdateVisibility)
	chatGroup.DELETE("/:id", chatHandler.Delete)
	chatGroup.GET("/:id/messages", chatHandler.ListMessages)
	chatGroup.POST("/:id/messages", chatHandler.AddMessage)
	chatGroup.POST("/:id/files", chatHandler.UploadFiles)

	prefsGroup := v1.Group("/preferences")
	prefsGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	prefsGroup.GET("", prefsHandler.Get)
	prefsGroup.PUT("", prefsHandler.Update)

	usageGroup := v1.Group("/usage")
	usageGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	usageGroup.GET("", usageHandler.Get)

	syncGroup := v1.Group("/sync")
	syncGroup.Use(middleware.AuthJWTQueryToken(app.Config.Auth.JWTSecret))
	syncGroup.GET("/ws", syncHandler.Connect)

	return router
}
