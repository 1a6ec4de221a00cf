package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"antispam/internal/action_log"
	"antispam/internal/config"
	"antispam/internal/handler"
	"antispam/internal/middleware"
	"antispam/internal/repository"
	"antispam/internal/service"
)

// Server is the HTTP API for moderation stats and prompt inspection.
type Server struct {
	router *gin.Engine
	cfg    *config.Config
	log    *logrus.Logger
}

func NewServer(
	cfg *config.Config,
	records repository.RecordRepository,
	training repository.TrainingRepository,
	prompts repository.PromptRepository,
	actions *action_log.Logger,
	zapLogger *zap.Logger,
	log *logrus.Logger,
) *Server {
	router := gin.Default()

	s := &Server{
		router: router,
		cfg:    cfg,
		log:    log,
	}

	authService := service.NewAuthService(cfg, zapLogger)
	authHandler := handler.NewAuthHandler(authService, log)
	promptHandler := handler.NewPromptHandler(prompts, log)
	statsHandler := handler.NewStatsHandler(records, training, actions, log)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.POST("/api/auth/login", authHandler.Login)

	authRequired := router.Group("/api")
	authRequired.Use(middleware.AuthMiddleware(authService.JWTSecret(), zapLogger))
	{
		authRequired.GET("/stats", statsHandler.GetStats)
		authRequired.GET("/records", statsHandler.GetRecords)
		authRequired.GET("/mistakes", statsHandler.GetMistakes)
		authRequired.GET("/training", statsHandler.GetTraining)
		authRequired.GET("/actions", statsHandler.GetActions)
		authRequired.GET("/prompt", promptHandler.GetPrompt)
		authRequired.POST("/prompt/verify", promptHandler.VerifyPrompt)
	}

	return s
}

func (s *Server) Run(addr string) {
	s.log.Infof("Server starting on port %s...", addr)
	if err := s.router.Run(addr); err != nil {
		s.log.Fatalf("Server failed to start: %v", err)
	}
}
