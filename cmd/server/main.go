package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/skillchain/reputation-engine/internal/audit"
	"github.com/skillchain/reputation-engine/internal/auth"
	appcache "github.com/skillchain/reputation-engine/internal/cache"
	"github.com/skillchain/reputation-engine/internal/chain"
	"github.com/skillchain/reputation-engine/internal/database"
	"github.com/skillchain/reputation-engine/internal/engine"
	apperrors "github.com/skillchain/reputation-engine/internal/errors"
	"github.com/skillchain/reputation-engine/internal/evaluation"
	"github.com/skillchain/reputation-engine/internal/leaderboard"
	"github.com/skillchain/reputation-engine/internal/ledger"
	"github.com/skillchain/reputation-engine/internal/monitoring"
	"github.com/skillchain/reputation-engine/internal/oracle"
	"github.com/skillchain/reputation-engine/internal/ratelimit"
	"github.com/skillchain/reputation-engine/internal/types"
)

func main() {
	appLogger := monitoring.NewLogger(slog.LevelInfo)
	appMetrics := monitoring.NewMetrics()

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	port := getEnvOrDefault("PORT", "8080")
	jwtSecret := getEnvOrDefault("JWT_SECRET", "change-me-in-production")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	gatewayURL := os.Getenv("CHAIN_GATEWAY_URL")
	gatewayKey := os.Getenv("CHAIN_GATEWAY_KEY")

	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	redisClient, err := appcache.NewRedisClient(redisAddr, redisPassword, 0)
	if err != nil {
		slog.Warn("Redis unavailable, continuing without distributed cache", "error", err)
	}

	scoreCache := appcache.NewCache(5 * time.Minute)
	invalidator := appcache.NewPatternInvalidator(scoreCache, redisClient)

	var chainClient chain.Client = chain.NewDisabled()
	if gatewayURL != "" {
		chainClient = chain.NewGateway(gatewayURL, gatewayKey, appMetrics)
		slog.Info("Chain gateway enabled", "url", gatewayURL)
	} else {
		slog.Info("No chain gateway configured, running local-only")
	}

	auditor := audit.NewLogger(repo)

	txLedger := ledger.NewFallbackStore(ledger.NewSQLStore(repo), ledger.NewMemoryStore())

	reputationEngine := engine.New(engine.Config{
		Ledger:      txLedger,
		Scores:      repo,
		Chain:       chainClient,
		Invalidator: invalidator,
		ScoreCache:  scoreCache,
		Auditor:     auditor,
		Metrics:     appMetrics,
	})

	registry := oracle.NewRegistry(oracle.Config{
		Store:   repo,
		Chain:   chainClient,
		Auditor: auditor,
	})

	workflow := evaluation.NewWorkflow(evaluation.Config{
		Store:      repo,
		Oracles:    registry,
		Reputation: reputationEngine,
		Chain:      chainClient,
		Auditor:    auditor,
	})

	leaderboardService := leaderboard.NewService(repo, scoreCache)

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)
	authManager := auth.NewManager(jwtSecret, 24*time.Hour)

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(requestMetrics(appMetrics, appLogger))
	r.Use(limiter.IPRateLimitMiddleware())
	r.Use(authManager.Middleware())
	r.Use(limiter.CallerRateLimitMiddleware())

	r.GET("/health", func(c *gin.Context) {
		status := "ok"
		if txLedger.Degraded() {
			status = "degraded"
		}

		redisHealthy := false
		if redisClient != nil && redisClient.IsEnabled() {
			redisHealthy = redisClient.HealthCheck(c.Request.Context()) == nil
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          status,
			"timestamp":       time.Now().Format(time.RFC3339),
			"ledger_degraded": txLedger.Degraded(),
			"redis_enabled":   redisHealthy,
			"metrics":         appMetrics.GetSummary(),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"metrics":    appMetrics.GetSummary(),
			"rate_limit": limiter.GetStats(),
			"cache":      scoreCache.Stats(),
		})
	})

	api := r.Group("/api/v1")

	api.POST("/auth/session", func(c *gin.Context) {
		var body struct {
			Address string `json:"address" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Error(apperrors.NewValidationError("address is required"))
			return
		}
		if !types.ValidAddress(body.Address) {
			c.Error(apperrors.NewValidationError("invalid address: " + body.Address))
			return
		}

		token, err := authManager.GenerateSessionToken(body.Address)
		if err != nil {
			c.Error(apperrors.NewInternalError("failed to issue session token", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "address": body.Address})
	})

	api.GET("/reputation/:address", func(c *gin.Context) {
		address := c.Param("address")

		var category *types.Category
		if raw := c.Query("category"); raw != "" {
			cat := types.Category(raw)
			category = &cat
		}

		start := time.Now()
		result, err := reputationEngine.CalculateScore(c.Request.Context(), address, category)
		if err != nil {
			c.Error(err)
			return
		}
		appLogger.ScoreLogger(address, result.OverallScore, false, time.Since(start))
		c.JSON(http.StatusOK, result)
	})

	api.POST("/reputation/update", func(c *gin.Context) {
		var req engine.UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewValidationError("malformed update request: " + err.Error()))
			return
		}

		start := time.Now()
		result, err := reputationEngine.UpdateReputation(c.Request.Context(), req)
		if err != nil {
			c.Error(err)
			return
		}
		appMetrics.IncrementUpdate()
		appLogger.UpdateLogger(req.UserAddress, string(req.EventType), result.TransactionID, req.ImpactScore, time.Since(start))
		c.JSON(http.StatusOK, result)
	})

	api.GET("/reputation/:address/history", func(c *gin.Context) {
		address := c.Param("address")

		var f ledger.Filter
		if raw := c.Query("event_type"); raw != "" {
			f.EventType = types.EventType(raw)
		}
		if raw := c.Query("category"); raw != "" {
			f.Category = types.Category(raw)
		}
		if raw := c.Query("limit"); raw != "" {
			if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
				f.Limit = limit
			}
		}
		if raw := c.Query("since_hours"); raw != "" {
			if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
				f.Since = time.Now().Add(-time.Duration(hours) * time.Hour)
			}
		}

		transactions, err := reputationEngine.GetHistory(c.Request.Context(), address, f)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_address": address,
			"transactions": transactions,
			"count":        len(transactions),
		})
	})

	api.GET("/reputation/:address/categories", func(c *gin.Context) {
		address := c.Param("address")
		scores, err := reputationEngine.GetCategoryScores(c.Request.Context(), address)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_address":    address,
			"category_scores": scores,
		})
	})

	api.GET("/reputation/:address/chain", func(c *gin.Context) {
		address := c.Param("address")
		if !types.ValidAddress(address) {
			c.Error(apperrors.NewValidationError("invalid address: " + address))
			return
		}

		mirror, err := chainClient.GetReputationScore(c.Request.Context(), address)
		if err == nil && mirror != nil {
			c.JSON(http.StatusOK, gin.H{"user_address": address, "source": "chain", "mirror": mirror})
			return
		}
		if err != nil {
			slog.Warn("reputation mirror read failed", "user", address, "error", err)
		}

		// The mirror is advisory; fall back to the ledger-derived score.
		result, calcErr := reputationEngine.CalculateScore(c.Request.Context(), address, nil)
		if calcErr != nil {
			c.Error(calcErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_address":  address,
			"source":        "local",
			"overall_score": result.OverallScore,
			"calculated_at": result.CalculatedAt,
		})
	})

	api.POST("/oracles/register", func(c *gin.Context) {
		var req oracle.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewValidationError("malformed register request: " + err.Error()))
			return
		}
		if caller, ok := auth.CallerAddress(c); ok {
			req.CallerAddress = caller
		}

		registered, err := registry.Register(c.Request.Context(), req)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, registered)
	})

	api.GET("/oracles", func(c *gin.Context) {
		oracles, err := registry.GetActiveOracles(c.Request.Context())
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"oracles": oracles, "count": len(oracles)})
	})

	api.GET("/oracles/:address", func(c *gin.Context) {
		found, err := registry.GetOracle(c.Request.Context(), c.Param("address"))
		if err != nil {
			c.Error(err)
			return
		}
		if found == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "oracle not found"})
			return
		}
		c.JSON(http.StatusOK, found)
	})

	api.POST("/oracles/:address/slash", func(c *gin.Context) {
		var body struct {
			Amount float64 `json:"amount" binding:"required"`
			Reason string  `json:"reason" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Error(apperrors.NewValidationError("malformed slash request: " + err.Error()))
			return
		}

		actor, _ := auth.CallerAddress(c)
		slashed, err := registry.Slash(c.Request.Context(), actor, c.Param("address"), body.Amount, body.Reason)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, slashed)
	})

	api.POST("/oracles/:address/status", func(c *gin.Context) {
		var body struct {
			IsActive *bool  `json:"is_active" binding:"required"`
			Reason   string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Error(apperrors.NewValidationError("malformed status request: " + err.Error()))
			return
		}

		actor, _ := auth.CallerAddress(c)
		updated, err := registry.UpdateStatus(c.Request.Context(), actor, c.Param("address"), *body.IsActive, body.Reason)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	api.POST("/oracles/:address/withdraw", func(c *gin.Context) {
		withdrawn, err := registry.WithdrawStake(c.Request.Context(), c.Param("address"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, withdrawn)
	})

	api.POST("/evaluations", func(c *gin.Context) {
		var req evaluation.SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewValidationError("malformed evaluation request: " + err.Error()))
			return
		}
		if caller, ok := auth.CallerAddress(c); ok {
			req.OracleAddress = caller
		}

		eval, err := workflow.SubmitWorkEvaluation(c.Request.Context(), req)
		if err != nil {
			c.Error(err)
			return
		}
		appMetrics.IncrementEvaluation()
		c.JSON(http.StatusCreated, eval)
	})

	api.GET("/evaluations/:id", func(c *gin.Context) {
		eval, err := workflow.GetEvaluation(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.Error(err)
			return
		}
		if eval == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
			return
		}
		c.JSON(http.StatusOK, eval)
	})

	api.GET("/users/:address/evaluations", func(c *gin.Context) {
		evals, err := workflow.GetUserEvaluations(c.Request.Context(), c.Param("address"))
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"evaluations": evals, "count": len(evals)})
	})

	api.POST("/challenges", func(c *gin.Context) {
		var req evaluation.ChallengeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewValidationError("malformed challenge request: " + err.Error()))
			return
		}
		if caller, ok := auth.CallerAddress(c); ok {
			req.ChallengerAddress = caller
		}

		challenge, err := workflow.ChallengeEvaluation(c.Request.Context(), req)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusCreated, challenge)
	})

	api.POST("/challenges/:id/resolve", func(c *gin.Context) {
		var body struct {
			UpholdOriginal *bool  `json:"uphold_original" binding:"required"`
			Resolution     string `json:"resolution" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Error(apperrors.NewValidationError("malformed resolution request: " + err.Error()))
			return
		}

		actor, _ := auth.CallerAddress(c)
		resolved, err := workflow.ResolveChallenge(c.Request.Context(), actor, c.Param("id"), *body.UpholdOriginal, body.Resolution)
		if err != nil {
			c.Error(err)
			return
		}
		appMetrics.IncrementResolution()
		c.JSON(http.StatusOK, resolved)
	})

	api.GET("/leaderboard", func(c *gin.Context) {
		limit := leaderboard.DefaultLimit
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		entries, err := leaderboardService.Top(c.Request.Context(), limit)
		if err != nil {
			c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": entries, "count": len(entries)})
	})

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Warn("Failed to close redis client", "error", err)
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// requestMetrics records per-request counters and access logs.
func requestMetrics(metrics *monitoring.Metrics, logger *monitoring.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		c.Next()

		status := c.Writer.Status()
		metrics.RecordRequestByStatus(status)
		if status >= http.StatusInternalServerError {
			metrics.IncrementError()
		}
		logger.RequestLogger(c.Request.Method, c.Request.URL.Path, c.ClientIP(), status, time.Since(start))
	}
}

// Helper function for environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
