package revision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"antispam/internal/models"
	"antispam/internal/repository"
)

const moderatorID = int64(42)

// validInstructionSet satisfies the manual-edit validation.
const validInstructionSet = "Определи спам: СПАМ, НЕ_СПАМ или ВОЗМОЖНО_СПАМ.\n\nСообщение: «{message_text}»\n\nОтвет:"

type fakePromptStore struct {
	active  *models.InstructionSet
	reasons []string
}

func (f *fakePromptStore) GetActive() (*models.InstructionSet, error) {
	if f.active == nil {
		return nil, repository.ErrPromptNotFound
	}
	return f.active, nil
}

func (f *fakePromptStore) Commit(text, reason string) error {
	f.active = &models.InstructionSet{PromptText: text, ImprovementReason: reason, UpdatedAt: time.Now()}
	f.reasons = append(f.reasons, reason)
	return nil
}

func (f *fakePromptStore) EnsureDefault(text string) error {
	if f.active == nil {
		return f.Commit(text, "Базовый промпт")
	}
	return nil
}

func (f *fakePromptStore) Verify(expected string) (*models.VerifyReport, error) {
	actual := ""
	if f.active != nil {
		actual = f.active.PromptText
	}
	match := actual == expected
	return &models.VerifyReport{
		Consistent: match,
		Sources:    []models.SourceCheck{{Source: "fake", Match: match}},
	}, nil
}

type fakeStateStore struct {
	states map[int64]models.ModeratorState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: make(map[int64]models.ModeratorState)}
}

func (f *fakeStateStore) Get(moderatorID int64) (*models.ModeratorState, error) {
	s, ok := f.states[moderatorID]
	if !ok {
		return &models.ModeratorState{ModeratorID: moderatorID}, nil
	}
	cp := s
	return &cp, nil
}

func (f *fakeStateStore) Set(state *models.ModeratorState) error {
	f.states[state.ModeratorID] = *state
	return nil
}

func newTestWorkflow() (*Workflow, *fakePromptStore, *fakeStateStore) {
	prompts := &fakePromptStore{}
	states := newFakeStateStore()
	return NewWorkflow(prompts, states, zap.NewNop()), prompts, states
}

func TestWorkflow_ProposeApply(t *testing.T) {
	w, prompts, _ := newTestWorkflow()

	require.NoError(t, w.Propose(moderatorID, validInstructionSet, MissedSpam))

	state, err := w.CurrentState(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, StateProposed, state)

	text, report, err := w.Apply(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, validInstructionSet, text)
	assert.True(t, report.Consistent)

	// The candidate was committed verbatim with the error kind in the reason.
	require.NotNil(t, prompts.active)
	assert.Equal(t, validInstructionSet, prompts.active.PromptText)
	assert.Contains(t, prompts.active.ImprovementReason, "missed_spam")

	state, err = w.CurrentState(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, StateNone, state)
}

func TestWorkflow_ApplyWithoutProposal(t *testing.T) {
	w, prompts, _ := newTestWorkflow()

	_, _, err := w.Apply(moderatorID)
	assert.ErrorIs(t, err, ErrNoPending)
	assert.Nil(t, prompts.active)
}

func TestWorkflow_ApplyTwice(t *testing.T) {
	w, prompts, _ := newTestWorkflow()

	require.NoError(t, w.Propose(moderatorID, validInstructionSet, MissedSpam))
	_, _, err := w.Apply(moderatorID)
	require.NoError(t, err)

	_, _, err = w.Apply(moderatorID)
	assert.ErrorIs(t, err, ErrNoPending)
	assert.Len(t, prompts.reasons, 1)
}

func TestWorkflow_LastProposalWins(t *testing.T) {
	w, prompts, _ := newTestWorkflow()

	first := validInstructionSet + "\nПравило A"
	second := validInstructionSet + "\nПравило B"

	require.NoError(t, w.Propose(moderatorID, first, MissedSpam))
	require.NoError(t, w.Propose(moderatorID, second, FalsePositive))

	text, _, err := w.Apply(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, second, text)
	assert.Contains(t, prompts.active.ImprovementReason, "false_positive")
}

func TestWorkflow_Reject(t *testing.T) {
	w, prompts, _ := newTestWorkflow()

	require.NoError(t, w.Propose(moderatorID, validInstructionSet, UncertainSpam))
	require.NoError(t, w.Reject(moderatorID))

	assert.Nil(t, prompts.active)

	_, _, err := w.Apply(moderatorID)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestWorkflow_RejectWithoutProposal(t *testing.T) {
	w, _, _ := newTestWorkflow()
	assert.ErrorIs(t, w.Reject(moderatorID), ErrNoPending)
}

func TestWorkflow_ManualEdit(t *testing.T) {
	w, prompts, _ := newTestWorkflow()

	require.NoError(t, w.RequestEdit(moderatorID))

	state, err := w.CurrentState(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingEdit, state)

	report, err := w.SubmitEdit(moderatorID, validInstructionSet)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, "Ручное редактирование администратором", prompts.active.ImprovementReason)

	state, err = w.CurrentState(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, StateNone, state)
}

func TestWorkflow_ManualEditValidation(t *testing.T) {
	w, prompts, _ := newTestWorkflow()
	require.NoError(t, w.RequestEdit(moderatorID))

	tests := []struct {
		name string
		text string
	}{
		{"no placeholder", "Определи: СПАМ, НЕ_СПАМ или ВОЗМОЖНО_СПАМ"},
		{"missing labels", "Это спам? «{message_text}»"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.SubmitEdit(moderatorID, tt.text)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
			assert.Nil(t, prompts.active)

			// An invalid submission keeps the edit session open.
			state, stateErr := w.CurrentState(moderatorID)
			require.NoError(t, stateErr)
			assert.Equal(t, StateAwaitingEdit, state)
		})
	}
}

func TestWorkflow_SubmitEditWithoutRequest(t *testing.T) {
	w, _, _ := newTestWorkflow()
	_, err := w.SubmitEdit(moderatorID, validInstructionSet)
	assert.ErrorIs(t, err, ErrNotAwaitingEdit)
}

func TestWorkflow_CancelClearsEverything(t *testing.T) {
	w, _, _ := newTestWorkflow()

	require.NoError(t, w.Propose(moderatorID, validInstructionSet, MissedSpam))
	require.NoError(t, w.RequestEdit(moderatorID))
	require.NoError(t, w.Cancel(moderatorID))

	state, err := w.CurrentState(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, StateNone, state)

	// The candidate that was pending before the edit is gone too.
	_, _, err = w.Apply(moderatorID)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestWorkflow_CancelWithoutEdit(t *testing.T) {
	w, _, _ := newTestWorkflow()
	assert.ErrorIs(t, w.Cancel(moderatorID), ErrNotAwaitingEdit)
}

// A restart is simulated by building a second workflow over the same stores:
// the edit session survives.
func TestWorkflow_StateSurvivesRestart(t *testing.T) {
	prompts := &fakePromptStore{}
	states := newFakeStateStore()

	w1 := NewWorkflow(prompts, states, zap.NewNop())
	require.NoError(t, w1.Propose(moderatorID, validInstructionSet, MissedSpam))
	require.NoError(t, w1.RequestEdit(moderatorID))

	w2 := NewWorkflow(prompts, states, zap.NewNop())
	state, err := w2.CurrentState(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingEdit, state)
}
