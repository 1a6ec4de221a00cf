package repository

import (
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"antispam/internal/models"
)

// Provenance tags for training examples.
const (
	SourceAdminFeedback    = "ADMIN_FEEDBACK"
	SourceForwardedMistake = "FORWARDED_MISTAKE"
)

type TrainingRepository interface {
	Add(text string, isSpam bool, source string) error
	Recent(limit int) ([]*models.TrainingExample, error)
}

type trainingRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewTrainingRepository(db *sqlx.DB, logger *zap.Logger) TrainingRepository {
	return &trainingRepository{db: db, logger: logger}
}

// Add appends a training example. The table is append-only.
func (r *trainingRepository) Add(text string, isSpam bool, source string) error {
	query := `INSERT INTO training_examples (text, is_spam, source, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.Exec(query, text, isSpam, source, time.Now())
	if err != nil {
		r.logger.Error("Failed to save training example",
			zap.String("source", source),
			zap.Error(err))
	}
	return err
}

func (r *trainingRepository) Recent(limit int) ([]*models.TrainingExample, error) {
	var examples []*models.TrainingExample
	query := `SELECT id, text, is_spam, source, created_at FROM training_examples ORDER BY created_at DESC LIMIT $1`
	if err := r.db.Select(&examples, query, limit); err != nil {
		return nil, err
	}
	return examples, nil
}
