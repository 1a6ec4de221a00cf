package moderation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"antispam/internal/action_log"
	"antispam/internal/classifier"
	"antispam/internal/models"
	"antispam/internal/repository"
	"antispam/internal/revision"
)

const moderatorID = int64(99)

type scriptedCompleter struct {
	respond func(prompt string) (string, error)
	prompts []string
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.respond(prompt)
}

type memPromptRepo struct {
	active *models.InstructionSet
}

func (m *memPromptRepo) GetActive() (*models.InstructionSet, error) {
	if m.active == nil {
		return nil, repository.ErrPromptNotFound
	}
	return m.active, nil
}

func (m *memPromptRepo) Commit(text, reason string) error {
	m.active = &models.InstructionSet{PromptText: text, ImprovementReason: reason, UpdatedAt: time.Now()}
	return nil
}

func (m *memPromptRepo) EnsureDefault(text string) error {
	if m.active == nil {
		return m.Commit(text, "Базовый промпт")
	}
	return nil
}

func (m *memPromptRepo) Verify(expected string) (*models.VerifyReport, error) {
	actual := ""
	if m.active != nil {
		actual = m.active.PromptText
	}
	match := actual == expected
	return &models.VerifyReport{
		Consistent: match,
		Sources:    []models.SourceCheck{{Source: "mem", Match: match}},
	}, nil
}

type memStateRepo struct {
	states map[int64]models.ModeratorState
}

func (m *memStateRepo) Get(moderatorID int64) (*models.ModeratorState, error) {
	s, ok := m.states[moderatorID]
	if !ok {
		return &models.ModeratorState{ModeratorID: moderatorID}, nil
	}
	cp := s
	return &cp, nil
}

func (m *memStateRepo) Set(state *models.ModeratorState) error {
	m.states[state.ModeratorID] = *state
	return nil
}

type memRecordRepo struct {
	records map[int64]*models.ModerationRecord
	nextID  int64
}

func (m *memRecordRepo) Save(rec *models.ModerationRecord) error {
	if existing, ok := m.records[rec.MessageID]; ok {
		existing.LLMResult = rec.LLMResult
		rec.ID = existing.ID
		return nil
	}
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.records[rec.MessageID] = &cp
	return nil
}

func (m *memRecordRepo) GetByMessageID(messageID int64) (*models.ModerationRecord, error) {
	rec, ok := m.records[messageID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecordRepo) SetModeratorVerdict(messageID int64, verdict string, decidedAt time.Time) error {
	rec, ok := m.records[messageID]
	if !ok {
		return repository.ErrRecordNotFound
	}
	rec.AdminDecision = &verdict
	rec.AdminDecidedAt = &decidedAt
	return nil
}

func (m *memRecordRepo) Recent(int) ([]*models.ModerationRecord, error)         { return nil, nil }
func (m *memRecordRepo) RecentMistakes(int) ([]*models.ModerationRecord, error) { return nil, nil }
func (m *memRecordRepo) Stats() (*models.ModerationStats, error)                { return &models.ModerationStats{}, nil }

type memTrainingRepo struct {
	examples []models.TrainingExample
}

func (m *memTrainingRepo) Add(text string, isSpam bool, source string) error {
	m.examples = append(m.examples, models.TrainingExample{Text: text, IsSpam: isSpam, Source: source})
	return nil
}

func (m *memTrainingRepo) Recent(int) ([]*models.TrainingExample, error) { return nil, nil }

type fixture struct {
	service     *Service
	workflow    *revision.Workflow
	prompts     *memPromptRepo
	records     *memRecordRepo
	training    *memTrainingRepo
	classifyLLM *scriptedCompleter
	revisionLLM *scriptedCompleter
}

func newFixture(t *testing.T, classify, revise func(prompt string) (string, error)) *fixture {
	t.Helper()
	logger := zap.NewNop()

	prompts := &memPromptRepo{}
	require.NoError(t, prompts.EnsureDefault(classifier.BaseInstructionSet))

	records := &memRecordRepo{records: make(map[int64]*models.ModerationRecord)}
	training := &memTrainingRepo{}
	states := &memStateRepo{states: make(map[int64]models.ModeratorState)}
	actions := action_log.NewLogger(filepath.Join(t.TempDir(), "actions.json"), logger)

	classifyLLM := &scriptedCompleter{respond: classify}
	revisionLLM := &scriptedCompleter{respond: revise}

	gateway := classifier.NewGateway(classifyLLM, prompts, 20, 10*time.Second, logger)
	engine := revision.NewEngine(revisionLLM, 1500, 0.3, 30*time.Second, logger)
	workflow := revision.NewWorkflow(prompts, states, logger)
	service := NewService(gateway, engine, workflow, records, training, actions, logger)

	return &fixture{
		service:     service,
		workflow:    workflow,
		prompts:     prompts,
		records:     records,
		training:    training,
		classifyLLM: classifyLLM,
		revisionLLM: revisionLLM,
	}
}

func respondWith(response string) func(string) (string, error) {
	return func(string) (string, error) { return response, nil }
}

func TestService_OnMessageRecordsVerdict(t *testing.T) {
	f := newFixture(t, respondWith("СПАМ"), respondWith(""))

	verdict := f.service.OnMessage(context.Background(), 1001, -100500, 7, "spammer", "Работа без опыта! Пишите в ЛС 💘")
	assert.Equal(t, classifier.VerdictSpam, verdict)

	rec, err := f.records.GetByMessageID(1001)
	require.NoError(t, err)
	require.NotNil(t, rec.LLMResult)
	assert.Equal(t, "СПАМ", *rec.LLMResult)
	assert.Equal(t, "Работа без опыта! Пишите в ЛС 💘", rec.Text)
}

func TestService_FeedbackAgreementNoProposal(t *testing.T) {
	f := newFixture(t, respondWith("СПАМ"), respondWith(""))
	f.service.OnMessage(context.Background(), 1001, -100500, 7, "spammer", "купи крипту")

	result, err := f.service.OnFeedback(context.Background(), moderatorID, 1001, classifier.VerdictSpam)
	require.NoError(t, err)

	assert.False(t, result.HasError)
	assert.Empty(t, f.revisionLLM.prompts)

	// The confirmation still produces a training example.
	require.Len(t, f.training.examples, 1)
	assert.True(t, f.training.examples[0].IsSpam)
	assert.Equal(t, repository.SourceAdminFeedback, f.training.examples[0].Source)
}

func TestService_FeedbackUnknownMessage(t *testing.T) {
	f := newFixture(t, respondWith("СПАМ"), respondWith(""))

	_, err := f.service.OnFeedback(context.Background(), moderatorID, 555, classifier.VerdictSpam)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}

// The full learning loop: a false positive leads to a staged candidate, the
// moderator applies it, and the next classification runs on the revised text.
func TestService_FalsePositiveLearningLoop(t *testing.T) {
	revised := classifier.BaseInstructionSet + "\nИСКЛЮЧЕНИЕ: объявления о ремонте не считать спамом."
	f := newFixture(t,
		respondWith("СПАМ"),
		respondWith("АНАЛИЗ: сработал критерий вакансий.\nИТОГОВЫЙ_ПРОМПТ: "+revised),
	)

	verdict := f.service.OnMessage(context.Background(), 2002, -100500, 8, "handyman", "Ремонт квартир, обращайтесь")
	require.Equal(t, classifier.VerdictSpam, verdict)

	result, err := f.service.OnFeedback(context.Background(), moderatorID, 2002, classifier.VerdictNotSpam)
	require.NoError(t, err)

	assert.True(t, result.HasError)
	assert.Equal(t, revision.FalsePositive, result.ErrorKind)
	assert.False(t, result.ProposalFailed)
	assert.Contains(t, result.Explanation, "АНАЛИЗ")
	assert.Contains(t, result.Candidate, "ИСКЛЮЧЕНИЕ")

	// The moderator decision is on the record.
	rec, err := f.records.GetByMessageID(2002)
	require.NoError(t, err)
	require.NotNil(t, rec.AdminDecision)
	assert.Equal(t, "НЕ_СПАМ", *rec.AdminDecision)

	// The active instruction set is untouched until the moderator applies.
	active, err := f.prompts.GetActive()
	require.NoError(t, err)
	assert.Equal(t, classifier.BaseInstructionSet, active.PromptText)

	text, report, err := f.workflow.Apply(moderatorID)
	require.NoError(t, err)
	assert.Equal(t, revised, text)
	assert.True(t, report.Consistent)

	// The next classification is built on the revised instruction set.
	f.service.OnMessage(context.Background(), 2003, -100500, 8, "handyman", "Ремонт квартир недорого")
	lastPrompt := f.classifyLLM.prompts[len(f.classifyLLM.prompts)-1]
	assert.Contains(t, lastPrompt, "ИСКЛЮЧЕНИЕ")
	assert.Contains(t, lastPrompt, "Ремонт квартир недорого")
}

func TestService_MissedSpamProposal(t *testing.T) {
	revised := classifier.BaseInstructionSet + "\nНОВОЕ ПРАВИЛО: сообщения с обещанием дохода без деталей считать СПАМ."
	f := newFixture(t,
		respondWith("НЕ_СПАМ"),
		respondWith("АНАЛИЗ: не хватило правила про доход.\nИТОГОВЫЙ_ПРОМПТ: "+revised),
	)

	f.service.OnMessage(context.Background(), 3003, -100500, 9, "spammer", "Доход 5000$ в неделю!")

	result, err := f.service.OnFeedback(context.Background(), moderatorID, 3003, classifier.VerdictSpam)
	require.NoError(t, err)

	assert.True(t, result.HasError)
	assert.Equal(t, revision.MissedSpam, result.ErrorKind)
	assert.Equal(t, revised, result.Candidate)
}

func TestService_ProposalFailureStillRecordsFeedback(t *testing.T) {
	f := newFixture(t,
		respondWith("НЕ_СПАМ"),
		func(string) (string, error) { return "", errors.New("provider down") },
	)

	f.service.OnMessage(context.Background(), 4004, -100500, 10, "spammer", "Доход 5000$ в неделю!")

	result, err := f.service.OnFeedback(context.Background(), moderatorID, 4004, classifier.VerdictSpam)
	require.NoError(t, err)

	assert.True(t, result.HasError)
	assert.True(t, result.ProposalFailed)
	assert.Empty(t, result.Candidate)

	// The verdict and training example survive the drafting failure.
	rec, err := f.records.GetByMessageID(4004)
	require.NoError(t, err)
	require.NotNil(t, rec.AdminDecision)
	assert.Equal(t, "СПАМ", *rec.AdminDecision)
	require.Len(t, f.training.examples, 1)

	// Nothing is staged for approval.
	_, _, err = f.workflow.Apply(moderatorID)
	assert.ErrorIs(t, err, revision.ErrNoPending)
}

func TestService_OnForwardedSpam(t *testing.T) {
	revised := classifier.BaseInstructionSet + "\nНОВОЕ ПРАВИЛО: реклама казино."
	f := newFixture(t,
		respondWith("СПАМ"),
		respondWith("АНАЛИЗ: казино не упомянуто.\nИТОГОВЫЙ_ПРОМПТ: "+revised),
	)

	result := f.service.OnForwardedSpam(context.Background(), moderatorID, "Казино онлайн, бонус за регистрацию")

	assert.True(t, result.HasError)
	assert.Equal(t, revision.MissedSpam, result.ErrorKind)
	assert.Equal(t, revised, result.Candidate)

	require.Len(t, f.training.examples, 1)
	assert.True(t, f.training.examples[0].IsSpam)
	assert.Equal(t, repository.SourceForwardedMistake, f.training.examples[0].Source)
}
