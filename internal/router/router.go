package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/config"
	"github.com/stemsi/bandexam-backend/internal/handler"
	"github.com/stemsi/bandexam-backend/internal/middleware"
	"github.com/stemsi/bandexam-backend/internal/response"
	"github.com/stemsi/bandexam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Submission *handler.SubmissionHandler
	Review     *handler.ReviewHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Submissions carry every answer, so large payloads are compressed.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	revoked := middleware.RejectRevokedTokens(authService, log)

	// ─── 1. Auth Group (any token type) ────────────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(
		middleware.RequireJWT(authService),
		middleware.RequireAnyTokenType(service.TokenTypeCandidate, service.TokenTypeReviewer),
		revoked,
	)
	{
		auth.GET("/me", handlers.Auth.Me)
		auth.POST("/logout", handlers.Auth.Logout)
	}

	// ─── 2. Candidate Group (JWT + revocation) ─────────────────────────
	progressLimiter := middleware.NewRateLimiter(cfg.ProgressRateLimit, time.Minute)

	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(
		middleware.RequireCandidateJWT(authService),
		revoked,
		middleware.NoStore(),
	)
	{
		candidateAPI.POST("/tests/:test_id/start", handlers.Submission.StartTest)
		candidateAPI.POST("/tests/:test_id/submissions", handlers.Submission.ReserveTest)

		candidateAPI.GET("/submissions", handlers.Submission.ListHistory)
		candidateAPI.GET("/submissions/:id", handlers.Submission.GetSubmission)
		candidateAPI.DELETE("/submissions/:id", handlers.Submission.DeleteSubmission)
		candidateAPI.POST("/submissions/:id/begin", handlers.Submission.Begin)
		candidateAPI.PATCH("/submissions/:id/progress",
			progressLimiter.Middleware(),
			handlers.Submission.SaveProgress,
		)
		candidateAPI.POST("/submissions/:id/pause", handlers.Submission.Pause)
		candidateAPI.POST("/submissions/:id/resume", handlers.Submission.Resume)
		candidateAPI.POST("/submissions/:id/submit", handlers.Submission.Submit)
		candidateAPI.POST("/submissions/:id/abandon", handlers.Submission.Abandon)
		candidateAPI.POST("/submissions/:id/events", handlers.Submission.ReportEvent)
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService), revoked)
	{
		ws.GET("/candidate/submissions/:id/stream", handlers.WS.SubmissionStream)
	}

	// ─── 4. Review Group (Reviewer JWT) ────────────────────────────────
	reviewAPI := router.Group("/api/v1/review")
	reviewAPI.Use(
		middleware.RequireReviewerJWT(authService),
		revoked,
	)
	{
		reviewAPI.GET("/submissions/pending", handlers.Review.ListPending)
		reviewAPI.GET("/submissions/:id", middleware.NoStore(), handlers.Review.GetSubmission)
		reviewAPI.POST("/submissions/:id/scores", handlers.Review.ApplyScore)

		reviewAPI.GET("/system/metrics", handlers.System.MetricsSSE)
	}

	return router
}
