package revision

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"antispam/internal/classifier"
	"antispam/internal/models"
	"antispam/internal/repository"
)

// State of the approval workflow for one moderator.
type State string

const (
	// StateNone: no candidate outstanding.
	StateNone State = "none"
	// StateProposed: a candidate awaits apply/edit/reject.
	StateProposed State = "proposed"
	// StateAwaitingEdit: the moderator's next free-text submission is a
	// hand-written replacement instruction set.
	StateAwaitingEdit State = "awaiting_edit"
)

var (
	// ErrNoPending is returned by transitions that require an outstanding
	// candidate when there is none.
	ErrNoPending = errors.New("no pending revision candidate")
	// ErrNotAwaitingEdit is returned by submit/cancel when no manual edit
	// session is in progress.
	ErrNotAwaitingEdit = errors.New("no manual edit in progress")
)

// ValidationError rejects a manual edit with a specific, actionable reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Workflow is the per-moderator approval state machine for instruction
// revisions. Every transition is a compare-and-swap against the current state
// under the mutex: a transition whose expected source state does not match is
// rejected, never applied speculatively. State is written through to the
// durable store on every transition and reloaded on every call, so a restart
// mid-edit resumes correctly.
type Workflow struct {
	mu      sync.Mutex
	prompts repository.PromptRepository
	states  repository.ModeratorStateRepository
	logger  *zap.Logger
}

func NewWorkflow(prompts repository.PromptRepository, states repository.ModeratorStateRepository, logger *zap.Logger) *Workflow {
	return &Workflow{prompts: prompts, states: states, logger: logger}
}

func stateOf(ms *models.ModeratorState) State {
	switch {
	case ms.AwaitingEdit:
		return StateAwaitingEdit
	case ms.PendingPrompt != nil && *ms.PendingPrompt != "":
		return StateProposed
	default:
		return StateNone
	}
}

// CurrentState returns the moderator's workflow state.
func (w *Workflow) CurrentState(moderatorID int64) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms, err := w.states.Get(moderatorID)
	if err != nil {
		return StateNone, err
	}
	return stateOf(ms), nil
}

// Propose stores a new candidate for the moderator. Only one candidate may be
// outstanding; a proposal made while one exists replaces it
// (last-proposal-wins: the moderator is dealing with the error that just
// happened).
func (w *Workflow) Propose(moderatorID int64, candidate string, kind ErrorKind) error {
	if candidate == "" {
		return fmt.Errorf("empty revision candidate")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ms, err := w.states.Get(moderatorID)
	if err != nil {
		return err
	}
	if stateOf(ms) != StateNone {
		w.logger.Info("Replacing outstanding revision candidate",
			zap.Int64("moderator_id", moderatorID))
	}

	kindStr := string(kind)
	ms.PendingPrompt = &candidate
	ms.PendingErrorKind = &kindStr
	ms.AwaitingEdit = false
	return w.states.Set(ms)
}

// Apply commits the outstanding candidate verbatim and verifies the commit
// read-after-write. Returns the committed text and the verification report.
func (w *Workflow) Apply(moderatorID int64) (string, *models.VerifyReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms, err := w.states.Get(moderatorID)
	if err != nil {
		return "", nil, err
	}
	if stateOf(ms) != StateProposed {
		return "", nil, ErrNoPending
	}

	text := *ms.PendingPrompt
	reason := "Автоматическое улучшение на основе ошибок"
	if ms.PendingErrorKind != nil {
		reason = fmt.Sprintf("Автоматическое улучшение после ошибки: %s", *ms.PendingErrorKind)
	}

	if err := w.prompts.Commit(text, reason); err != nil {
		return "", nil, fmt.Errorf("failed to commit revision: %w", err)
	}

	if err := w.clear(ms); err != nil {
		return "", nil, err
	}

	report := w.verify(text)
	return text, report, nil
}

// Reject discards the outstanding candidate without touching the store.
func (w *Workflow) Reject(moderatorID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms, err := w.states.Get(moderatorID)
	if err != nil {
		return err
	}
	if stateOf(ms) != StateProposed {
		return ErrNoPending
	}
	return w.clear(ms)
}

// RequestEdit switches the moderator into manual-edit mode. Allowed both from
// PROPOSED (editing a candidate) and from NONE (editing the current
// instruction set via command).
func (w *Workflow) RequestEdit(moderatorID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms, err := w.states.Get(moderatorID)
	if err != nil {
		return err
	}
	ms.AwaitingEdit = true
	return w.states.Set(ms)
}

// SubmitEdit validates the moderator's hand-written instruction set and
// commits it. An invalid submission is rejected with a *ValidationError and
// the state stays AWAITING_MANUAL_EDIT so the moderator can retry or cancel.
func (w *Workflow) SubmitEdit(moderatorID int64, text string) (*models.VerifyReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms, err := w.states.Get(moderatorID)
	if err != nil {
		return nil, err
	}
	if stateOf(ms) != StateAwaitingEdit {
		return nil, ErrNotAwaitingEdit
	}

	if err := ValidateManualInstructionSet(text); err != nil {
		return nil, err
	}

	if err := w.prompts.Commit(text, "Ручное редактирование администратором"); err != nil {
		return nil, fmt.Errorf("failed to commit manual edit: %w", err)
	}

	if err := w.clear(ms); err != nil {
		return nil, err
	}

	return w.verify(text), nil
}

// Cancel leaves manual-edit mode and discards any outstanding candidate,
// returning the workflow to NONE.
func (w *Workflow) Cancel(moderatorID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms, err := w.states.Get(moderatorID)
	if err != nil {
		return err
	}
	if stateOf(ms) != StateAwaitingEdit {
		return ErrNotAwaitingEdit
	}
	return w.clear(ms)
}

func (w *Workflow) clear(ms *models.ModeratorState) error {
	ms.PendingPrompt = nil
	ms.PendingErrorKind = nil
	ms.AwaitingEdit = false
	return w.states.Set(ms)
}

func (w *Workflow) verify(text string) *models.VerifyReport {
	report, err := w.prompts.Verify(text)
	if err != nil {
		w.logger.Error("Consistency verification failed", zap.Error(err))
		return &models.VerifyReport{Consistent: false}
	}
	if !report.Consistent {
		w.logger.Error("Committed instruction set diverged from readable copies")
	}
	return report
}

// ValidateManualInstructionSet enforces the structural contract on
// hand-written instruction sets: the message placeholder and all three verdict
// labels must be present.
func ValidateManualInstructionSet(text string) error {
	if !strings.Contains(text, classifier.MessagePlaceholder) {
		return &ValidationError{Reason: "Промпт должен содержать {message_text} для подстановки сообщения"}
	}

	upper := strings.ToUpper(text)
	required := []string{
		string(classifier.VerdictSpam),
		string(classifier.VerdictNotSpam),
		string(classifier.VerdictMaybeSpam),
	}
	for _, label := range required {
		if !strings.Contains(upper, label) {
			return &ValidationError{Reason: "Промпт должен содержать все три варианта ответа: СПАМ, НЕ_СПАМ, ВОЗМОЖНО_СПАМ"}
		}
	}
	return nil
}
