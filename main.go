package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"antispam/internal/action_log"
	"antispam/internal/classifier"
	"antispam/internal/config"
	"antispam/internal/llm_client"
	"antispam/internal/moderation"
	"antispam/internal/repository"
	"antispam/internal/revision"
	"antispam/internal/server"
	"antispam/internal/telegram_bot"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Load configuration
	cfgPath := "configs/config.yml"
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	repository.MigrateDB(db, logger)

	// Initialize repositories
	recordRepo := repository.NewRecordRepository(db, logger)
	trainingRepo := repository.NewTrainingRepository(db, logger)
	promptRepo := repository.NewPromptRepository(db, logger)
	stateRepo := repository.NewModeratorStateRepository(db, logger)

	// Seed the base instruction set on first run only
	if err := promptRepo.EnsureDefault(classifier.BaseInstructionSet); err != nil {
		logger.Fatal("Failed to seed instruction set", zap.Error(err))
	}

	// Completion clients: one fast model for classification, one stronger
	// model for revision drafting
	classifyClient, err := llm_client.NewClient(llm_client.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		ModelName: cfg.LLM.ClassifyModel,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create classification client", zap.Error(err))
	}
	defer classifyClient.Close()

	revisionClient, err := llm_client.NewClient(llm_client.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		ModelName: cfg.LLM.RevisionModel,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create revision client", zap.Error(err))
	}
	defer revisionClient.Close()

	// Core pipeline
	actions := action_log.NewLogger(cfg.ActionLog.Path, logger)
	gateway := classifier.NewGateway(classifyClient, promptRepo,
		cfg.LLM.ClassifyMaxTokens, time.Duration(cfg.LLM.ClassifyTimeout)*time.Second, logger)
	engine := revision.NewEngine(revisionClient,
		cfg.LLM.RevisionMaxTokens, cfg.LLM.RevisionTemperature,
		time.Duration(cfg.LLM.RevisionTimeout)*time.Second, logger)
	workflow := revision.NewWorkflow(promptRepo, stateRepo, logger)
	service := moderation.NewService(gateway, engine, workflow, recordRepo, trainingRepo, actions, logger)

	// Telegram bot
	bot, err := telegram_bot.NewBot(cfg, service, workflow, recordRepo, promptRepo, actions, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram bot", zap.Error(err))
	}

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := bot.Start(ctx); err != nil {
			logger.Error("Telegram bot failed", zap.Error(err))
		}
	}()

	// Initialize and run the HTTP API
	log := logrus.New()
	srv := server.NewServer(cfg, recordRepo, trainingRepo, promptRepo, actions, logger, log)
	go srv.Run(cfg.Server.Port)

	<-ctx.Done()
	logger.Info("Application stopped.")
}
