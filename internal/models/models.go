package models

import "time"

// ModerationRecord represents a classified message stored in the 'messages' table.
// One record exists per distinct Telegram message; the moderator verdict is set
// at most once, after feedback.
type ModerationRecord struct {
	ID              int64      `db:"id"`
	MessageID       int64      `db:"message_id"` // Telegram message ID, unique key
	ChatID          int64      `db:"chat_id"`
	UserID          int64      `db:"user_id"`
	Username        string     `db:"username"`
	Text            string     `db:"text"`
	CreatedAt       time.Time  `db:"created_at"`
	LLMResult       *string    `db:"llm_result"`
	AdminDecision   *string    `db:"admin_decision"`
	AdminDecidedAt  *time.Time `db:"admin_decided_at"`
}

// TrainingExample is an append-only audit/learning record created whenever the
// moderator confirms a verdict or forwards a known-spam example.
type TrainingExample struct {
	ID        int64     `db:"id"`
	Text      string    `db:"text"`
	IsSpam    bool      `db:"is_spam"`
	Source    string    `db:"source"` // ADMIN_FEEDBACK or FORWARDED_MISTAKE
	CreatedAt time.Time `db:"created_at"`
}

// InstructionSet is the single active prompt handed to the classification model.
// Exactly one row exists in 'current_prompt' at any time.
type InstructionSet struct {
	ID                int64     `db:"id"`
	PromptText        string    `db:"prompt_text"`
	ImprovementReason string    `db:"improvement_reason"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// ModeratorState is the durable per-moderator revision workflow state: at most
// one pending candidate plus the awaiting-manual-edit flag. Persisted so a
// process restart does not silently drop an in-flight edit session.
type ModeratorState struct {
	ModeratorID      int64     `db:"moderator_id"`
	AwaitingEdit     bool      `db:"awaiting_edit"`
	PendingPrompt    *string   `db:"pending_prompt"`
	PendingErrorKind *string   `db:"pending_error_kind"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// ModerationStats aggregates counters shown by /stats and the HTTP API.
type ModerationStats struct {
	TotalMessages  int64 `db:"total_messages" json:"total_messages"`
	SpamCount      int64 `db:"spam_count" json:"spam_count"`
	MaybeSpamCount int64 `db:"maybe_spam_count" json:"maybe_spam_count"`
	ReviewedCount  int64 `db:"reviewed_count" json:"reviewed_count"`
	TrainingCount  int64 `db:"training_count" json:"training_count"`
}

// SourceCheck is one per-source entry of a consistency verification report.
type SourceCheck struct {
	Source        string `json:"source"`
	Match         bool   `json:"match"`
	FirstDiffLine int    `json:"first_diff_line,omitempty"` // 1-based, 0 when matching
	ActualPreview string `json:"actual_preview,omitempty"`
}

// VerifyReport is the result of comparing a just-committed instruction text
// against every readable copy of it.
type VerifyReport struct {
	Consistent bool          `json:"consistent"`
	Sources    []SourceCheck `json:"sources"`
}
