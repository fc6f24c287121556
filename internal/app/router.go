package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridez/internal/domain"
	"ridez/internal/handler"
	"ridez/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler    *handler.RideHandler
	UserHandler    *handler.UserHandler
	AuthHandler    *handler.AuthHandler
	Tokens         middleware.TokenParser
	RedisClient    redis.Cmdable
	NewRelicApp    *newrelic.Application
	Logger         logrus.FieldLogger
	AllowedOrigins []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api-auth/token", deps.AuthHandler.Token)

	// Everything below is admin only; the gate runs before any handler or query.
	admin := router.Group("")
	admin.Use(middleware.Authenticate(deps.Tokens), middleware.RequireRole(domain.RoleAdmin))
	if deps.RedisClient != nil {
		admin.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	}

	rides := admin.Group("/rides")
	{
		rides.GET("", deps.RideHandler.List)
		rides.POST("", deps.RideHandler.Create)
		rides.GET("/:id", deps.RideHandler.Get)
		rides.PUT("/:id", deps.RideHandler.Update)
		rides.PATCH("/:id", deps.RideHandler.Patch)
		rides.DELETE("/:id", deps.RideHandler.Delete)
		rides.POST("/:id/events", deps.RideHandler.AddEvent)
	}

	users := admin.Group("/users")
	{
		users.GET("", deps.UserHandler.List)
		users.POST("", deps.UserHandler.Create)
		users.GET("/:id", deps.UserHandler.Get)
		users.DELETE("/:id", deps.UserHandler.Delete)
	}

	return router
}
