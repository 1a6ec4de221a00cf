package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"antispam/internal/models"
)

// ErrPromptNotFound is returned when no active instruction set exists.
var ErrPromptNotFound = errors.New("active instruction set not found")

// PromptRepository is the instruction store: it holds exactly one active
// instruction set at any time. Commit replaces the active set as one
// transaction, so a reader never observes zero or two active sets.
type PromptRepository interface {
	GetActive() (*models.InstructionSet, error)
	Commit(text, reason string) error
	EnsureDefault(text string) error
	Verify(expected string) (*models.VerifyReport, error)
}

type promptRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewPromptRepository(db *sqlx.DB, logger *zap.Logger) PromptRepository {
	return &promptRepository{db: db, logger: logger}
}

func (r *promptRepository) GetActive() (*models.InstructionSet, error) {
	var inst models.InstructionSet
	query := `SELECT id, prompt_text, improvement_reason, updated_at FROM current_prompt ORDER BY id DESC LIMIT 1`
	err := r.db.Get(&inst, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPromptNotFound
		}
		return nil, err
	}
	return &inst, nil
}

// Commit replaces the active instruction set: delete all, insert one, in a
// single transaction. Last committer wins.
func (r *promptRepository) Commit(text, reason string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM current_prompt`); err != nil {
		return fmt.Errorf("failed to delete previous instruction set: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO current_prompt (prompt_text, improvement_reason, updated_at) VALUES ($1, $2, $3)`,
		text, reason, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert instruction set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit instruction set: %w", err)
	}

	r.logger.Info("Instruction set replaced",
		zap.String("reason", reason),
		zap.Int("length", len(text)))
	return nil
}

// EnsureDefault seeds the base instruction set once, when the store is empty.
// It never overwrites an existing set: moderator edits survive restarts.
func (r *promptRepository) EnsureDefault(text string) error {
	_, err := r.GetActive()
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrPromptNotFound) {
		return err
	}

	r.logger.Info("No active instruction set found, seeding the base one")
	return r.Commit(text, "Базовый промпт")
}

// Verify re-reads the instruction text from every readable copy and compares it
// against the expected text. With the single-store design there is one durable
// source, which is also the gateway's read path. Mismatches are reported, not
// auto-healed.
func (r *promptRepository) Verify(expected string) (*models.VerifyReport, error) {
	report := &models.VerifyReport{Consistent: true}

	inst, err := r.GetActive()
	actual := ""
	if err != nil {
		if !errors.Is(err, ErrPromptNotFound) {
			return nil, err
		}
	} else {
		actual = inst.PromptText
	}

	check := models.SourceCheck{Source: "postgres/current_prompt", Match: actual == expected}
	if !check.Match {
		check.FirstDiffLine = firstDiffLine(expected, actual)
		check.ActualPreview = preview(actual, 200)
		report.Consistent = false
		r.logger.Error("Instruction set diverged from committed text",
			zap.String("source", check.Source),
			zap.Int("first_diff_line", check.FirstDiffLine))
	}
	report.Sources = append(report.Sources, check)

	return report, nil
}

// firstDiffLine returns the 1-based index of the first line where the two texts
// differ.
func firstDiffLine(expected, actual string) int {
	expLines := strings.Split(expected, "\n")
	actLines := strings.Split(actual, "\n")
	for i := 0; i < len(expLines) && i < len(actLines); i++ {
		if expLines[i] != actLines[i] {
			return i + 1
		}
	}
	if len(expLines) != len(actLines) {
		if len(expLines) < len(actLines) {
			return len(expLines) + 1
		}
		return len(actLines) + 1
	}
	return 0
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
