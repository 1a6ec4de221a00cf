package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"antispam/internal/repository"
)

type PromptHandler interface {
	GetPrompt(c *gin.Context)
	VerifyPrompt(c *gin.Context)
}

type promptHandler struct {
	prompts repository.PromptRepository
	log     *logrus.Logger
}

func NewPromptHandler(prompts repository.PromptRepository, log *logrus.Logger) PromptHandler {
	return &promptHandler{prompts: prompts, log: log}
}

func (h *promptHandler) GetPrompt(c *gin.Context) {
	inst, err := h.prompts.GetActive()
	if err != nil {
		if errors.Is(err, repository.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active prompt"})
			return
		}
		h.log.Errorf("Failed to load active prompt: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load prompt"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"prompt_text":        inst.PromptText,
		"improvement_reason": inst.ImprovementReason,
		"updated_at":         inst.UpdatedAt,
	})
}

// VerifyPrompt re-reads the active prompt from every source and reports
// whether all copies agree.
func (h *promptHandler) VerifyPrompt(c *gin.Context) {
	inst, err := h.prompts.GetActive()
	if err != nil {
		if errors.Is(err, repository.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No active prompt"})
			return
		}
		h.log.Errorf("Failed to load active prompt: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load prompt"})
		return
	}

	report, err := h.prompts.Verify(inst.PromptText)
	if err != nil {
		h.log.Errorf("Failed to verify prompt consistency: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify prompt"})
		return
	}

	c.JSON(http.StatusOK, report)
}
