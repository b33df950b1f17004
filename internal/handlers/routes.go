package handlers

import (
	"time"

	"task-assign/backend/internal/monitoring"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries what the router needs beyond the handlers. Nil middlewares are
// skipped.
type RouterConfig struct {
	Tasks          *TaskHandler
	Users          *UserHandler
	Monitor        *monitoring.Monitor
	AllowedOrigins []string
	RateLimit      gin.HandlerFunc
	Authz          gin.HandlerFunc
	Recovery       gin.HandlerFunc
}

func NewRouter(config RouterConfig) *gin.Engine {
	router := gin.New()

	if config.Recovery != nil {
		router.Use(config.Recovery)
	} else {
		router.Use(gin.Recovery())
	}
	router.Use(cors.New(corsConfig(config.AllowedOrigins)))
	if config.Monitor != nil {
		router.Use(config.Monitor.MetricsMiddleware())
		router.GET("/health", config.Monitor.HealthHandler())
		router.GET("/ready", config.Monitor.ReadinessHandler())
		router.GET("/live", config.Monitor.LivenessHandler())
		router.GET("/metrics", config.Monitor.MetricsHandler())
	}

	api := router.Group("/api")
	if config.RateLimit != nil {
		api.Use(config.RateLimit)
	}

	write := []gin.HandlerFunc{}
	if config.Authz != nil {
		write = append(write, config.Authz)
	}
	guarded := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), h)
	}

	tasks := api.Group("/tasks")
	tasks.GET("", config.Tasks.GetTasks)
	tasks.POST("", guarded(config.Tasks.CreateTask)...)
	tasks.GET("/:id", config.Tasks.GetTaskByID)
	tasks.PUT("/:id", guarded(config.Tasks.UpdateTask)...)
	tasks.DELETE("/:id", guarded(config.Tasks.DeleteTask)...)

	users := api.Group("/users")
	users.GET("", config.Users.GetUsers)
	users.POST("", guarded(config.Users.CreateUser)...)
	users.GET("/:id", config.Users.GetUserByID)
	users.PUT("/:id", guarded(config.Users.UpdateUser)...)
	users.DELETE("/:id", guarded(config.Users.DeleteUser)...)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
