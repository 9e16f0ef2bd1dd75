package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/handler"
	"github.com/stemsi/speaking-test/internal/middleware"
	"github.com/stemsi/speaking-test/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Test   *handler.TestHandler
	WS     *handler.WSHandler
	System *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.TokenValidator,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// ─── 1. Test Group (Candidate JWT) ─────────────────────────────────
	testAPI := router.Group("/api/v1/test")
	testAPI.Use(
		middleware.RequireCandidateJWT(auth),
		middleware.CacheControl("no-store"),
	)
	if limiter != nil {
		testAPI.Use(limiter.Middleware())
	}
	{
		testAPI.GET("/questions", handlers.Test.GetQuestions)
		testAPI.GET("/state", handlers.Test.GetState)
		testAPI.POST("/next", handlers.Test.Next)
		testAPI.POST("/previous", handlers.Test.Previous)
		testAPI.POST("/reset", handlers.Test.Reset)
		testAPI.POST("/exit", handlers.Test.Exit)
		testAPI.POST("/parts/:part/enter", handlers.Test.EnterPart)
		testAPI.PUT("/parts/:part/notes", handlers.Test.UpdateNotes)
		testAPI.GET("/submissions", handlers.Test.ListSubmissions)
	}

	// ─── 2. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(auth))
	{
		ws.GET("/test/stream", handlers.WS.TestStream)
	}

	return router
}
