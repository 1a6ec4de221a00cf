package classifier

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"antispam/internal/models"
)

// Completer is the completion capability consumed by the gateway.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// InstructionSource is the gateway's read path for the active instruction set.
type InstructionSource interface {
	GetActive() (*models.InstructionSet, error)
}

// Gateway classifies messages by substituting them into the active instruction
// set and asking the completion capability for one of the three verdict labels.
type Gateway struct {
	completer    Completer
	instructions InstructionSource
	maxTokens    int
	timeout      time.Duration
	logger       *zap.Logger
}

func NewGateway(completer Completer, instructions InstructionSource, maxTokens int, timeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		completer:    completer,
		instructions: instructions,
		maxTokens:    maxTokens,
		timeout:      timeout,
		logger:       logger,
	}
}

// ActiveInstructions exposes the raw active instruction set for callers that
// need the text itself, not a verdict.
func (g *Gateway) ActiveInstructions() (*models.InstructionSet, error) {
	return g.instructions.GetActive()
}

// Classify returns a verdict for the message text. Provider failures, a
// missing instruction set and unparseable completions all resolve to
// VerdictMaybeSpam: classification never blocks or crashes the moderation
// pipeline.
func (g *Gateway) Classify(ctx context.Context, messageText string) Verdict {
	inst, err := g.instructions.GetActive()
	if err != nil {
		// No hardcoded fallback prompt here: the store is the single source
		// of truth, so an unreadable instruction set degrades to caution.
		g.logger.Error("Failed to load active instruction set", zap.Error(err))
		return VerdictMaybeSpam
	}

	prompt := strings.ReplaceAll(inst.PromptText, MessagePlaceholder, messageText)

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.completer.Complete(cctx, prompt, g.maxTokens, 0)
	if err != nil {
		g.logger.Warn("Completion failed, falling back to ВОЗМОЖНО_СПАМ", zap.Error(err))
		return VerdictMaybeSpam
	}

	verdict, ok := ParseVerdict(raw)
	if !ok {
		g.logger.Warn("Could not parse completion into a verdict",
			zap.String("raw", raw))
	}

	g.logger.Info("Message classified",
		zap.String("verdict", string(verdict)),
		zap.Int("response_length", len(raw)))
	return verdict
}
