package revision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"antispam/internal/classifier"
)

// Marker separating the explanation from the revised instruction set in the
// model's structured response.
const revisionMarker = "ИТОГОВЫЙ_ПРОМПТ:"

// Deterministic footer appended when the candidate lost the message
// placeholder.
const messageFooter = "\n\nСообщение: «{message_text}»\n\nОтвет:"

// Structural anchors a candidate must carry. Missing non-placeholder anchors
// are surfaced as degradations; the candidate is still returned, because a
// flagged partial win beats discarding moderator-visible work.
var requiredAnchors = []string{
	"Проанализируй сообщение из телеграм-группы",
	"безадресные вакансии",
	"сердечки 💘/💝",
}

// Proposal is the outcome of an "explain and revise" request. Candidate is
// empty when the model produced no extractable instruction set — a recoverable
// failure, not an error.
type Proposal struct {
	Explanation  string
	Candidate    string
	Degradations []string
}

// Engine asks the completion capability to diagnose a classification error
// against the current instruction set and synthesize an augmented revision.
type Engine struct {
	completer   classifier.Completer
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

func NewEngine(completer classifier.Completer, maxTokens int, temperature float64, timeout time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		completer:   completer,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger,
	}
}

// ProposeRevision builds the error-specific analysis request, extracts the
// candidate instruction set from the marker-delimited response and validates
// its structural anchors. A provider failure returns an error; the caller must
// treat it as "could not auto-draft a fix", never as "no error occurred".
func (e *Engine) ProposeRevision(ctx context.Context, messageText string, kind ErrorKind, currentInstructions string) (*Proposal, error) {
	prompt := buildAnalysisPrompt(messageText, kind, currentInstructions)

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	response, err := e.completer.Complete(cctx, prompt, e.maxTokens, e.temperature)
	if err != nil {
		e.logger.Error("Revision completion failed",
			zap.String("error_kind", string(kind)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to analyze classification error: %w", err)
	}

	proposal := extractProposal(response)
	if proposal.Candidate == "" {
		e.logger.Warn("Revision response contained no instruction set marker",
			zap.String("error_kind", string(kind)))
		return proposal, nil
	}

	e.validateCandidate(proposal)

	e.logger.Info("Revision candidate produced",
		zap.String("error_kind", string(kind)),
		zap.Int("candidate_length", len(proposal.Candidate)),
		zap.Strings("degradations", proposal.Degradations))
	return proposal, nil
}

// extractProposal splits the completion on the marker. Everything after it is
// the candidate; everything before it is the explanation.
func extractProposal(response string) *Proposal {
	idx := strings.Index(response, revisionMarker)
	if idx < 0 {
		return &Proposal{Explanation: strings.TrimSpace(response)}
	}
	return &Proposal{
		Explanation: strings.TrimSpace(response[:idx]),
		Candidate:   strings.TrimSpace(response[idx+len(revisionMarker):]),
	}
}

// validateCandidate checks the structural anchors. The placeholder alone is
// self-healed deterministically; other anchors are only reported, since the
// model's transformation is not guaranteed faithful and drift must be surfaced
// where it cannot be mitigated.
func (e *Engine) validateCandidate(p *Proposal) {
	if !strings.Contains(p.Candidate, classifier.MessagePlaceholder) {
		e.logger.Warn("Candidate lost the message placeholder, appending footer")
		p.Candidate += messageFooter
		p.Degradations = append(p.Degradations, "восстановлена подстановка {message_text}")
	}

	for _, anchor := range requiredAnchors {
		if !strings.Contains(p.Candidate, anchor) {
			e.logger.Warn("Candidate lost a structural anchor", zap.String("anchor", anchor))
			p.Degradations = append(p.Degradations, fmt.Sprintf("потерян фрагмент: %s", anchor))
		}
	}
}

func buildAnalysisPrompt(messageText string, kind ErrorKind, currentInstructions string) string {
	var statement, task string
	switch kind {
	case MissedSpam:
		statement = fmt.Sprintf("Но это сообщение ты НЕ определил как спам, хотя это спам:\n\"%s\"\n\nПочему ты не определил это как спам?", messageText)
		task = "ЗАДАЧА: Добавь к существующим критериям новое правило, которое поможет определять такие сообщения как СПАМ."
	case UncertainSpam:
		statement = fmt.Sprintf("Это сообщение ты определил как ВОЗМОЖНО_СПАМ, но это точно СПАМ:\n\"%s\"\n\nПочему ты был неуверен?", messageText)
		task = "ЗАДАЧА: Добавь к существующим критериям новое правило или уточнение, которое поможет определять такие сообщения как СПАМ."
	default: // FalsePositive
		statement = fmt.Sprintf("Но это сообщение ты определил как спам, хотя это НЕ спам:\n\"%s\"\n\nПочему ты определил это как спам?", messageText)
		task = "ЗАДАЧА: Добавь к существующим критериям исключение или уточнение, которое поможет НЕ считать такие сообщения спамом."
	}

	return fmt.Sprintf(`У тебя есть промпт, по которому ты определяешь спам в Telegram. Вот он:

%s

%s

ВАЖНО: НЕ создавай новые критерии с нуля! ДОПОЛНИ существующие критерии, сохранив ВСЕ предыдущие знания.

ОБЯЗАТЕЛЬНО сохрани в итоговом промпте:
- Все существующие пункты и критерии
- Все существующие исключения и уточнения
- Подстановку {message_text} и три варианта ответа

%s

Ответь в формате:
АНАЛИЗ: [причина ошибки]
ИТОГОВЫЙ_ПРОМПТ: [полный промпт с ВСЕМИ старыми критериями + новыми дополнениями]`,
		currentInstructions, statement, task)
}
