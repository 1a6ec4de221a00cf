package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"antispam/internal/models"
)

type fakeCompleter struct {
	response   string
	err        error
	lastPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	f.lastPrompt = prompt
	return f.response, f.err
}

type fakeInstructions struct {
	inst *models.InstructionSet
	err  error
}

func (f *fakeInstructions) GetActive() (*models.InstructionSet, error) {
	return f.inst, f.err
}

func newTestGateway(completer Completer, instructions InstructionSource) *Gateway {
	return NewGateway(completer, instructions, 20, 10*time.Second, zap.NewNop())
}

func TestGateway_ClassifySubstitutesMessage(t *testing.T) {
	completer := &fakeCompleter{response: "СПАМ"}
	instructions := &fakeInstructions{inst: &models.InstructionSet{
		PromptText: "Проверь: «{message_text}»\nОтвет:",
	}}

	gateway := newTestGateway(completer, instructions)
	verdict := gateway.Classify(context.Background(), "Работа без опыта!")

	assert.Equal(t, VerdictSpam, verdict)
	assert.Equal(t, "Проверь: «Работа без опыта!»\nОтвет:", completer.lastPrompt)
	assert.NotContains(t, completer.lastPrompt, MessagePlaceholder)
}

func TestGateway_ProviderFailureFallsBackToMaybe(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection refused")}
	instructions := &fakeInstructions{inst: &models.InstructionSet{PromptText: BaseInstructionSet}}

	gateway := newTestGateway(completer, instructions)
	verdict := gateway.Classify(context.Background(), "привет")

	assert.Equal(t, VerdictMaybeSpam, verdict)
}

func TestGateway_MissingInstructionsFallsBackToMaybe(t *testing.T) {
	completer := &fakeCompleter{response: "СПАМ"}
	instructions := &fakeInstructions{err: errors.New("no active instruction set")}

	gateway := newTestGateway(completer, instructions)
	verdict := gateway.Classify(context.Background(), "привет")

	assert.Equal(t, VerdictMaybeSpam, verdict)
	// The completer must not have been called without instructions.
	assert.Empty(t, completer.lastPrompt)
}

func TestGateway_UnparseableCompletionFallsBackToMaybe(t *testing.T) {
	completer := &fakeCompleter{response: "затрудняюсь ответить"}
	instructions := &fakeInstructions{inst: &models.InstructionSet{PromptText: BaseInstructionSet}}

	gateway := newTestGateway(completer, instructions)
	verdict := gateway.Classify(context.Background(), "привет")

	assert.Equal(t, VerdictMaybeSpam, verdict)
}
