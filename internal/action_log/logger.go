package action_log

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxEntries caps the on-disk journal; the oldest entries are dropped first.
const maxEntries = 1000

// Entry is one audit record of a bot action.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type journal struct {
	Actions []Entry `json:"actions"`
}

// Logger is a best-effort append-only JSON journal of user-visible bot
// actions. Write failures are logged and swallowed: auditing never takes the
// moderation pipeline down.
type Logger struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

func NewLogger(path string, logger *zap.Logger) *Logger {
	return &Logger{path: path, logger: logger}
}

// LogMessageAnalysis records a classification outcome.
func (l *Logger) LogMessageAnalysis(messageID, chatID int64, username, verdict string) {
	l.append("message_analysis", map[string]interface{}{
		"message_id": messageID,
		"chat_id":    chatID,
		"username":   username,
		"verdict":    verdict,
	})
}

// LogButtonClick records a moderator's inline-button decision.
func (l *Logger) LogButtonClick(moderatorID int64, button string, messageID int64) {
	l.append("button_click", map[string]interface{}{
		"moderator_id": moderatorID,
		"button":       button,
		"message_id":   messageID,
	})
}

// LogPromptImprovement records an instruction-set commit.
func (l *Logger) LogPromptImprovement(reason string, consistent bool) {
	l.append("prompt_improvement", map[string]interface{}{
		"reason":     reason,
		"consistent": consistent,
	})
}

// LogError records a pipeline failure worth auditing.
func (l *Logger) LogError(stage string, err error) {
	l.append("error", map[string]interface{}{
		"stage": stage,
		"error": err.Error(),
	})
}

// Recent returns the newest n entries, newest first.
func (l *Logger) Recent(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	j := l.load()
	if n > len(j.Actions) {
		n = len(j.Actions)
	}
	out := make([]Entry, 0, n)
	for i := len(j.Actions) - 1; i >= len(j.Actions)-n; i-- {
		out = append(out, j.Actions[i])
	}
	return out
}

func (l *Logger) append(action string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	j := l.load()
	j.Actions = append(j.Actions, Entry{
		Timestamp: time.Now(),
		Action:    action,
		Details:   details,
	})
	if len(j.Actions) > maxEntries {
		j.Actions = j.Actions[len(j.Actions)-maxEntries:]
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		l.logger.Warn("Failed to encode action log", zap.Error(err))
		return
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		l.logger.Warn("Failed to write action log", zap.String("path", l.path), zap.Error(err))
	}
}

// load reads the journal from disk. A missing or corrupt file yields an empty
// journal rather than an error.
func (l *Logger) load() *journal {
	j := &journal{}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("Failed to read action log", zap.String("path", l.path), zap.Error(err))
		}
		return j
	}
	if err := json.Unmarshal(data, j); err != nil {
		l.logger.Warn("Action log is corrupt, starting fresh", zap.String("path", l.path), zap.Error(err))
		return &journal{}
	}
	return j
}
