package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"antispam/internal/action_log"
	"antispam/internal/repository"
)

type StatsHandler interface {
	GetStats(c *gin.Context)
	GetRecords(c *gin.Context)
	GetMistakes(c *gin.Context)
	GetTraining(c *gin.Context)
	GetActions(c *gin.Context)
}

type statsHandler struct {
	records  repository.RecordRepository
	training repository.TrainingRepository
	actions  *action_log.Logger
	log      *logrus.Logger
}

func NewStatsHandler(records repository.RecordRepository, training repository.TrainingRepository, actions *action_log.Logger, log *logrus.Logger) StatsHandler {
	return &statsHandler{records: records, training: training, actions: actions, log: log}
}

func (h *statsHandler) GetStats(c *gin.Context) {
	stats, err := h.records.Stats()
	if err != nil {
		h.log.Errorf("Failed to load stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *statsHandler) GetRecords(c *gin.Context) {
	limit := queryLimit(c, 50)
	records, err := h.records.Recent(limit)
	if err != nil {
		h.log.Errorf("Failed to load records: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// GetMistakes lists records where the moderator contradicted the model.
func (h *statsHandler) GetMistakes(c *gin.Context) {
	limit := queryLimit(c, 50)
	records, err := h.records.RecentMistakes(limit)
	if err != nil {
		h.log.Errorf("Failed to load mistakes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load mistakes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *statsHandler) GetTraining(c *gin.Context) {
	limit := queryLimit(c, 50)
	examples, err := h.training.Recent(limit)
	if err != nil {
		h.log.Errorf("Failed to load training examples: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load training examples"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"examples": examples})
}

func (h *statsHandler) GetActions(c *gin.Context) {
	limit := queryLimit(c, 100)
	c.JSON(http.StatusOK, gin.H{"actions": h.actions.Recent(limit)})
}

func queryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 1000 {
		return def
	}
	return limit
}
