package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"antispam/internal/models"
)

// ModeratorStateRepository persists the per-moderator revision workflow state.
// The state is read at the top of every feedback entry point and written back
// on every transition, so a restart mid-edit resumes where it left off.
type ModeratorStateRepository interface {
	Get(moderatorID int64) (*models.ModeratorState, error)
	Set(state *models.ModeratorState) error
}

type moderatorStateRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewModeratorStateRepository(db *sqlx.DB, logger *zap.Logger) ModeratorStateRepository {
	return &moderatorStateRepository{db: db, logger: logger}
}

// Get returns the stored state, or a zero-value state when the moderator has
// none yet.
func (r *moderatorStateRepository) Get(moderatorID int64) (*models.ModeratorState, error) {
	var state models.ModeratorState
	query := `SELECT moderator_id, awaiting_edit, pending_prompt, pending_error_kind, updated_at
	          FROM moderator_state WHERE moderator_id = $1`
	err := r.db.Get(&state, query, moderatorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ModeratorState{ModeratorID: moderatorID}, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *moderatorStateRepository) Set(state *models.ModeratorState) error {
	query := `INSERT INTO moderator_state (moderator_id, awaiting_edit, pending_prompt, pending_error_kind, updated_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (moderator_id) DO UPDATE SET
	            awaiting_edit = EXCLUDED.awaiting_edit,
	            pending_prompt = EXCLUDED.pending_prompt,
	            pending_error_kind = EXCLUDED.pending_error_kind,
	            updated_at = EXCLUDED.updated_at`
	_, err := r.db.Exec(query, state.ModeratorID, state.AwaitingEdit, state.PendingPrompt,
		state.PendingErrorKind, time.Now())
	if err != nil {
		r.logger.Error("Failed to persist moderator state",
			zap.Int64("moderator_id", state.ModeratorID),
			zap.Error(err))
	}
	return err
}
