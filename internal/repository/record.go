package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"antispam/internal/models"
)

// ErrRecordNotFound is returned when no moderation record exists for a message.
var ErrRecordNotFound = errors.New("moderation record not found")

type RecordRepository interface {
	Save(rec *models.ModerationRecord) error
	GetByMessageID(messageID int64) (*models.ModerationRecord, error)
	SetModeratorVerdict(messageID int64, verdict string, decidedAt time.Time) error
	Recent(limit int) ([]*models.ModerationRecord, error)
	RecentMistakes(limit int) ([]*models.ModerationRecord, error)
	Stats() (*models.ModerationStats, error)
}

type recordRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRecordRepository(db *sqlx.DB, logger *zap.Logger) RecordRepository {
	return &recordRepository{db: db, logger: logger}
}

// Save inserts a record for a newly classified message. Re-classifying the same
// message updates the gateway verdict only; a moderator decision already stored
// is never touched here.
func (r *recordRepository) Save(rec *models.ModerationRecord) error {
	query := `INSERT INTO messages (message_id, chat_id, user_id, username, text, created_at, llm_result)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (message_id) DO UPDATE SET llm_result = EXCLUDED.llm_result
	          RETURNING id`
	return r.db.QueryRowx(query, rec.MessageID, rec.ChatID, rec.UserID, rec.Username,
		rec.Text, rec.CreatedAt, rec.LLMResult).Scan(&rec.ID)
}

func (r *recordRepository) GetByMessageID(messageID int64) (*models.ModerationRecord, error) {
	var rec models.ModerationRecord
	query := `SELECT id, message_id, chat_id, user_id, username, text, created_at, llm_result, admin_decision, admin_decided_at
	          FROM messages WHERE message_id = $1`
	err := r.db.Get(&rec, query, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// SetModeratorVerdict stores the moderator's decision. The decision is written
// once; it is never reversed automatically.
func (r *recordRepository) SetModeratorVerdict(messageID int64, verdict string, decidedAt time.Time) error {
	query := `UPDATE messages SET admin_decision = $1, admin_decided_at = $2 WHERE message_id = $3`
	result, err := r.db.Exec(query, verdict, decidedAt, messageID)
	if err != nil {
		r.logger.Error("Failed to update moderator verdict",
			zap.Int64("message_id", messageID),
			zap.Error(err))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *recordRepository) Recent(limit int) ([]*models.ModerationRecord, error) {
	var records []*models.ModerationRecord
	query := `SELECT id, message_id, chat_id, user_id, username, text, created_at, llm_result, admin_decision, admin_decided_at
	          FROM messages ORDER BY created_at DESC LIMIT $1`
	if err := r.db.Select(&records, query, limit); err != nil {
		return nil, err
	}
	return records, nil
}

// RecentMistakes returns records where the moderator's verdict contradicted the
// gateway's, newest decisions first.
func (r *recordRepository) RecentMistakes(limit int) ([]*models.ModerationRecord, error) {
	var records []*models.ModerationRecord
	query := `SELECT id, message_id, chat_id, user_id, username, text, created_at, llm_result, admin_decision, admin_decided_at
	          FROM messages
	          WHERE admin_decision IS NOT NULL
	            AND ((llm_result = 'НЕ_СПАМ' AND admin_decision = 'СПАМ')
	                 OR (llm_result IN ('СПАМ', 'ВОЗМОЖНО_СПАМ') AND admin_decision = 'НЕ_СПАМ'))
	          ORDER BY admin_decided_at DESC
	          LIMIT $1`
	if err := r.db.Select(&records, query, limit); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *recordRepository) Stats() (*models.ModerationStats, error) {
	var stats models.ModerationStats
	query := `SELECT
	            (SELECT COUNT(*) FROM messages) AS total_messages,
	            (SELECT COUNT(*) FROM messages WHERE llm_result = 'СПАМ') AS spam_count,
	            (SELECT COUNT(*) FROM messages WHERE llm_result = 'ВОЗМОЖНО_СПАМ') AS maybe_spam_count,
	            (SELECT COUNT(*) FROM messages WHERE admin_decision IS NOT NULL) AS reviewed_count,
	            (SELECT COUNT(*) FROM training_examples) AS training_count`
	if err := r.db.Get(&stats, query); err != nil {
		return nil, err
	}
	return &stats, nil
}
