package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/edulabs/tutor-gateway/internal/ai"
	"github.com/edulabs/tutor-gateway/internal/chat"
	"github.com/edulabs/tutor-gateway/internal/config"
	"github.com/edulabs/tutor-gateway/internal/governor"
	"github.com/edulabs/tutor-gateway/internal/handler"
	"github.com/edulabs/tutor-gateway/internal/middleware"
	"github.com/edulabs/tutor-gateway/internal/quota"
	"github.com/edulabs/tutor-gateway/internal/ratelimit"
	"github.com/edulabs/tutor-gateway/internal/repository"
	"github.com/edulabs/tutor-gateway/internal/service"
	"github.com/edulabs/tutor-gateway/internal/session"
	"github.com/edulabs/tutor-gateway/internal/storage"
	"github.com/edulabs/tutor-gateway/internal/tier"
	"github.com/gin-gonic/gin"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	aiClient   *ai.Client
	chatLog    *service.ChatLogWriter
	limiter    ratelimit.Limiter
	httpServer *http.Server
}

func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	policy := tier.DefaultPolicy()
	limiter := ratelimit.NewFixedWindow(redis, policy)
	ledger := quota.NewLedger(redis, policy)
	buffer := chat.NewBuffer(redis)
	sessions := session.NewStore(redis)

	gov := governor.New(ledger, buffer,
		governor.NewRateCheck(limiter, tier.FeatureTutorChat),
		governor.NewBudgetCheck(ledger),
	)

	aiClient, err := ai.NewClient(ai.Config{
		Endpoints:   cfg.AI.Endpoints,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: *cfg.AI.Temperature,
		Strategy:    cfg.AI.Strategy,
	})
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(postgres)
	chatLogRepo := repository.NewChatLogRepository(postgres)

	authService := service.NewAuthService(userRepo, sessions, cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	usageService := service.NewUsageService(chatLogRepo)

	chatLog := service.NewChatLogWriter(chatLogRepo, 1000)
	chatLog.Start()

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(gov, aiClient, chatLog)
	usageHandler := handler.NewUsageHandler(usageService)

	s := &Server{
		router:   router,
		config:   cfg,
		redis:    redis,
		postgres: postgres,
		aiClient: aiClient,
		chatLog:  chatLog,
		limiter:  limiter,
	}

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	router.GET("/health", s.healthCheck)

	auth := router.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	api := router.Group("/api")
	api.Use(middleware.RequireAuth(authService))
	api.Use(middleware.RateLimit(limiter))
	{
		api.POST("/tutor/chat", chatHandler.Chat)
	}

	admin := router.Group("/admin")
	admin.Use(middleware.RequireAuth(authService))
	admin.Use(middleware.RequireRole("admin"))
	{
		admin.GET("/usage", usageHandler.Summary)
	}

	return s, nil
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true
	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisHealthy = false
		log.Printf("Redis health check failed: %v", err)
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		log.Printf("Database health check failed: %v", err)
	}

	upstreamsHealthy, upstreamsTotal := s.aiClient.Upstreams()

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy || upstreamsHealthy == 0 {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "tutor-gateway",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":        redisHealthy,
			"database":     dbHealthy,
			"ai_upstreams": fmt.Sprintf("%d/%d", upstreamsHealthy, upstreamsTotal),
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // Completion calls dominate latency
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting tutor gateway on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	s.aiClient.Close()
	s.chatLog.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
