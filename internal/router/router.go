package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studyroom/backend/internal/gateway"
	"studyroom/backend/internal/handler"
	"studyroom/backend/internal/middleware"
	"studyroom/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	roomHandler *handler.RoomHandler,
	socketHandler *gateway.Handler,
	origins middleware.OriginPolicy,
	requireSocketAuth bool,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(origins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/ws", middleware.SocketAuth(authService, requireSocketAuth), socketHandler.ServeWS)

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	api.GET("/rooms/:roomId", roomHandler.GetRoom)

	me := api.Group("/me")
	me.Use(middleware.Auth(authService))
	me.GET("", roomHandler.Me)
	me.GET("/room-history", roomHandler.RoomHistory)
	me.GET("/focus-sessions", roomHandler.FocusSessions)

	return engine
}
