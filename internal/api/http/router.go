package http

import (
	"github.com/EternisAI/vconnector/internal/api/http/handler"
	"github.com/EternisAI/vconnector/internal/api/http/middleware"
	"github.com/EternisAI/vconnector/internal/auth"
	"github.com/EternisAI/vconnector/internal/session"
	"github.com/EternisAI/vconnector/internal/store"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Store      *store.Store
	Registry   *session.Registry
	AuthSecret string
	Cache      handler.CacheConfig
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	var pinger handler.Pinger
	if srvs.Store != nil {
		pinger = srvs.Store
	}
	healthHandler := handler.NewHealthHandler(pinger)
	engine.GET("/health", healthHandler.Check)

	if srvs.Store == nil {
		return
	}

	api := engine.Group("/api/v1", middleware.JWTAuth(srvs.AuthSecret))
	read := middleware.RequireRole(auth.RoleReader)
	admin := middleware.RequireRole(auth.RoleAdmin)

	credentials := handler.NewCredentialHandler(srvs.Store)
	api.GET("/credentials", read, credentials.List)
	api.GET("/credentials/:host", read, credentials.Get)
	api.POST("/credentials", admin, credentials.Create)
	api.PATCH("/credentials/:host", admin, credentials.Update)
	api.DELETE("/credentials/:host", admin, credentials.Delete)
	api.POST("/credentials/:host/enable", admin, credentials.Enable)
	api.POST("/credentials/:host/disable", admin, credentials.Disable)

	if srvs.Registry == nil {
		return
	}

	sessions := handler.NewSessionHandler(srvs.Store, srvs.Registry, srvs.Cache)
	api.GET("/sessions", read, sessions.List)
	api.GET("/sessions/:host", read, sessions.Get)
	api.POST("/sessions/:host", admin, sessions.Connect)
	api.DELETE("/sessions/:host", admin, sessions.Disconnect)
	api.POST("/sessions/:host/reconnect", admin, sessions.Reconnect)
	api.POST("/sessions/:host/collect", read, sessions.Collect)
	api.POST("/sessions/:host/lookup", read, sessions.Lookup)
}
