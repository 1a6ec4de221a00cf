package telegram_bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"antispam/internal/action_log"
	"antispam/internal/classifier"
	"antispam/internal/config"
	"antispam/internal/moderation"
	"antispam/internal/models"
	"antispam/internal/repository"
	"antispam/internal/revision"
)

const version = "1.0.0"

// Bot is the Telegram transport: it watches the allowed groups, notifies the
// moderator about suspicious messages and drives the revision approval dialog.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	service  *moderation.Service
	workflow *revision.Workflow
	records  repository.RecordRepository
	prompts  repository.PromptRepository
	actions  *action_log.Logger
	logger   *zap.Logger
}

func NewBot(
	cfg *config.Config,
	service *moderation.Service,
	workflow *revision.Workflow,
	records repository.RecordRepository,
	prompts repository.PromptRepository,
	actions *action_log.Logger,
	logger *zap.Logger,
) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Bot{
		api:      botAPI,
		cfg:      cfg,
		service:  service,
		workflow: workflow,
		records:  records,
		prompts:  prompts,
		actions:  actions,
		logger:   logger,
	}, nil
}

// Start begins listening for updates from Telegram.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallbackQuery(ctx, update.CallbackQuery)
			} else if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat.IsPrivate() {
		b.handlePrivateMessage(ctx, message)
		return
	}
	b.handleGroupMessage(ctx, message)
}

// handleGroupMessage classifies a message from a monitored group and notifies
// the moderator when it looks like spam.
func (b *Bot) handleGroupMessage(ctx context.Context, message *tgbotapi.Message) {
	if !b.cfg.IsAllowedGroup(message.Chat.ID) {
		return
	}
	if message.Text == "" || message.IsCommand() {
		return
	}
	if message.From == nil || message.From.IsBot {
		return
	}

	verdict := b.service.OnMessage(ctx,
		int64(message.MessageID),
		message.Chat.ID,
		message.From.ID,
		message.From.UserName,
		message.Text,
	)

	if verdict == classifier.VerdictNotSpam {
		return
	}

	b.notifyModerator(message, verdict)
}

// notifyModerator sends the suspicious message to the moderator with the two
// verdict buttons. Every button press is a moderator assertion, not a guess.
func (b *Bot) notifyModerator(message *tgbotapi.Message, verdict classifier.Verdict) {
	var header string
	if verdict == classifier.VerdictSpam {
		header = "🚨 Обнаружен СПАМ"
	} else {
		header = "⚠️ Возможно СПАМ"
	}

	text := fmt.Sprintf(
		"%s\n\n👤 Пользователь: @%s\n💬 Группа: %s\n\n📝 Сообщение:\n%s\n\nЭто спам?",
		header,
		message.From.UserName,
		message.Chat.Title,
		truncate(message.Text, 500),
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔴 СПАМ", fmt.Sprintf("spam_%d", message.MessageID)),
			tgbotapi.NewInlineKeyboardButtonData("🟢 НЕ СПАМ", fmt.Sprintf("not_spam_%d", message.MessageID)),
		),
	)

	msg := tgbotapi.NewMessage(b.cfg.Telegram.AdminID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to notify moderator", zap.Error(err))
	}
}

// handlePrivateMessage processes the moderator's private chat: commands,
// forwarded spam examples and manual instruction edits.
func (b *Bot) handlePrivateMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From.ID != b.cfg.Telegram.AdminID {
		b.sendMessage(message.Chat.ID, "⛔ Этот бот доступен только администратору.")
		return
	}

	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	// A forwarded message is a known-spam example the gateway missed.
	if message.ForwardDate != 0 {
		b.handleForwardedSpam(ctx, message)
		return
	}

	state, err := b.workflow.CurrentState(message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load workflow state", zap.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Ошибка. Попробуйте ещё раз.")
		return
	}
	if state == revision.StateAwaitingEdit {
		b.handleManualEdit(message)
		return
	}

	b.sendMessage(message.Chat.ID, "Используйте /help для списка команд. Перешлите сюда спам-сообщение, чтобы я научился его распознавать.")
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.sendMessage(message.Chat.ID,
			"👋 Привет! Я бот-модератор: анализирую сообщения в группах и учусь на ваших решениях.\n\nИспользуйте /help для списка команд.")
	case "help":
		b.sendMessage(message.Chat.ID,
			"📚 Команды:\n\n"+
				"/stats - статистика модерации\n"+
				"/editprompt - посмотреть и отредактировать промпт\n"+
				"/cancel - отменить редактирование промпта\n"+
				"/groups - отслеживаемые группы\n"+
				"/version - версия бота\n\n"+
				"Перешлите мне спам-сообщение, и я предложу улучшение промпта.")
	case "stats":
		b.handleStatsCommand(message)
	case "version":
		b.sendMessage(message.Chat.ID, fmt.Sprintf("🤖 Версия: %s", version))
	case "groups":
		b.handleGroupsCommand(message)
	case "editprompt":
		b.handleEditPromptCommand(message)
	case "cancel":
		b.handleCancelCommand(message)
	default:
		b.sendMessage(message.Chat.ID, "Неизвестная команда. Используйте /help для помощи.")
	}
}

func (b *Bot) handleStatsCommand(message *tgbotapi.Message) {
	stats, err := b.records.Stats()
	if err != nil {
		b.logger.Error("Failed to load stats", zap.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Не удалось получить статистику.")
		return
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf(
		"📊 Статистика:\n\n"+
			"Всего сообщений: %d\n"+
			"Спам: %d\n"+
			"Возможно спам: %d\n"+
			"Проверено модератором: %d\n"+
			"Обучающих примеров: %d",
		stats.TotalMessages,
		stats.SpamCount,
		stats.MaybeSpamCount,
		stats.ReviewedCount,
		stats.TrainingCount,
	))
}

func (b *Bot) handleGroupsCommand(message *tgbotapi.Message) {
	if len(b.cfg.Telegram.AllowedGroupIDs) == 0 {
		b.sendMessage(message.Chat.ID, "Список отслеживаемых групп пуст.")
		return
	}
	var sb strings.Builder
	sb.WriteString("👥 Отслеживаемые группы:\n")
	for _, id := range b.cfg.Telegram.AllowedGroupIDs {
		sb.WriteString(fmt.Sprintf("• %d\n", id))
	}
	b.sendMessage(message.Chat.ID, sb.String())
}

func (b *Bot) handleEditPromptCommand(message *tgbotapi.Message) {
	inst, err := b.prompts.GetActive()
	if err != nil {
		b.logger.Error("Failed to load active instruction set", zap.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Не удалось загрузить промпт.")
		return
	}

	text := fmt.Sprintf(
		"📝 Текущий промпт (обновлён %s):\n%s\n\n%s",
		inst.UpdatedAt.Format("2006-01-02 15:04"),
		inst.ImprovementReason,
		truncate(inst.PromptText, 3500),
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Редактировать", "edit_current_prompt"),
		),
	)

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send prompt", zap.Error(err))
	}
}

func (b *Bot) handleCancelCommand(message *tgbotapi.Message) {
	err := b.workflow.Cancel(message.From.ID)
	if errors.Is(err, revision.ErrNotAwaitingEdit) {
		b.sendMessage(message.Chat.ID, "Сейчас нечего отменять.")
		return
	}
	if err != nil {
		b.logger.Error("Failed to cancel edit", zap.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Ошибка. Попробуйте ещё раз.")
		return
	}
	b.sendMessage(message.Chat.ID, "✅ Редактирование отменено.")
}

func (b *Bot) handleForwardedSpam(ctx context.Context, message *tgbotapi.Message) {
	if message.Text == "" {
		b.sendMessage(message.Chat.ID, "В пересланном сообщении нет текста.")
		return
	}

	b.sendMessage(message.Chat.ID, "📥 Принял как пример пропущенного спама, анализирую...")

	result := b.service.OnForwardedSpam(ctx, message.From.ID, message.Text)
	b.presentProposal(message.Chat.ID, result)
}

func (b *Bot) handleManualEdit(message *tgbotapi.Message) {
	report, err := b.workflow.SubmitEdit(message.From.ID, message.Text)

	var vErr *revision.ValidationError
	if errors.As(err, &vErr) {
		b.sendMessage(message.Chat.ID,
			fmt.Sprintf("❌ %s\n\nОтправьте исправленный вариант или /cancel.", vErr.Reason))
		return
	}
	if err != nil {
		b.logger.Error("Failed to commit manual edit", zap.Error(err))
		b.sendMessage(message.Chat.ID, "❌ Не удалось сохранить промпт. Попробуйте ещё раз.")
		return
	}

	b.actions.LogPromptImprovement("Ручное редактирование администратором", report.Consistent)
	b.sendMessage(message.Chat.ID, "✅ Новый промпт сохранён."+verifySuffix(report))
}

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	b.logger.Info("Received callback query",
		zap.String("data", query.Data),
		zap.Int64("user_id", query.From.ID),
	)

	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		b.logger.Error("Failed to send callback response", zap.Error(err))
	}

	if query.From.ID != b.cfg.Telegram.AdminID {
		return
	}

	switch {
	case strings.HasPrefix(query.Data, "not_spam_"):
		b.handleVerdictCallback(ctx, query, classifier.VerdictNotSpam, strings.TrimPrefix(query.Data, "not_spam_"))
	case strings.HasPrefix(query.Data, "spam_"):
		b.handleVerdictCallback(ctx, query, classifier.VerdictSpam, strings.TrimPrefix(query.Data, "spam_"))
	case query.Data == "apply_prompt":
		b.handleApplyCallback(query)
	case query.Data == "edit_prompt", query.Data == "edit_current_prompt":
		b.handleEditCallback(query)
	case query.Data == "reject_prompt":
		b.handleRejectCallback(query)
	default:
		b.logger.Warn("Unknown callback data", zap.String("data", query.Data))
	}
}

func (b *Bot) handleVerdictCallback(ctx context.Context, query *tgbotapi.CallbackQuery, decision classifier.Verdict, idStr string) {
	messageID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.logger.Error("Failed to parse message ID from callback", zap.String("data", query.Data), zap.Error(err))
		b.sendMessage(query.From.ID, "❌ Ошибка обработки запроса")
		return
	}

	b.actions.LogButtonClick(query.From.ID, string(decision), messageID)

	result, err := b.service.OnFeedback(ctx, query.From.ID, messageID, decision)
	if errors.Is(err, repository.ErrRecordNotFound) {
		b.sendMessage(query.From.ID, "❌ Сообщение не найдено в базе.")
		return
	}
	if err != nil {
		b.logger.Error("Failed to process feedback", zap.Int64("message_id", messageID), zap.Error(err))
		b.sendMessage(query.From.ID, "❌ Не удалось сохранить решение.")
		return
	}

	// Remove the buttons so the decision cannot be submitted twice.
	edit := tgbotapi.NewEditMessageText(
		query.Message.Chat.ID,
		query.Message.MessageID,
		query.Message.Text+fmt.Sprintf("\n\n✅ Решение: %s", decision),
	)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Error("Failed to edit message", zap.Error(err))
	}

	if !result.HasError {
		b.sendMessage(query.From.ID, "👍 Решение записано, модель была права.")
		return
	}

	b.presentProposal(query.From.ID, result)
}

// presentProposal shows the drafted revision with the approval keyboard, or
// reports that drafting failed.
func (b *Bot) presentProposal(chatID int64, result *moderation.FeedbackResult) {
	if result.ProposalFailed || result.Candidate == "" {
		b.sendMessage(chatID, "⚠️ Ошибка зафиксирована, но не удалось подготовить улучшение промпта. Попробуйте позже или отредактируйте промпт вручную: /editprompt")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🔍 Анализ ошибки (%s):\n%s\n\n", errorKindLabel(result.ErrorKind), truncate(result.Explanation, 800)))
	sb.WriteString(fmt.Sprintf("📝 Предлагаемый промпт:\n%s", truncate(result.Candidate, 2500)))
	if len(result.Degradations) > 0 {
		sb.WriteString("\n\n⚠️ Предупреждения:\n")
		for _, d := range result.Degradations {
			sb.WriteString(fmt.Sprintf("• %s\n", d))
		}
	}
	sb.WriteString("\n\nПрименить изменения?")

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Применить", "apply_prompt"),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Редактировать", "edit_prompt"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", "reject_prompt"),
		),
	)

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send proposal", zap.Error(err))
	}
}

func (b *Bot) handleApplyCallback(query *tgbotapi.CallbackQuery) {
	_, report, err := b.workflow.Apply(query.From.ID)
	if errors.Is(err, revision.ErrNoPending) {
		b.sendMessage(query.From.ID, "ℹ️ Нет ожидающего предложения.")
		return
	}
	if err != nil {
		b.logger.Error("Failed to apply revision", zap.Error(err))
		b.sendMessage(query.From.ID, "❌ Не удалось применить промпт. Предложение сохранено, попробуйте ещё раз.")
		return
	}

	b.actions.LogPromptImprovement("Автоматическое улучшение", report.Consistent)
	b.sendMessage(query.From.ID, "✅ Новый промпт применён."+verifySuffix(report))
}

func (b *Bot) handleEditCallback(query *tgbotapi.CallbackQuery) {
	if err := b.workflow.RequestEdit(query.From.ID); err != nil {
		b.logger.Error("Failed to enter edit mode", zap.Error(err))
		b.sendMessage(query.From.ID, "❌ Ошибка. Попробуйте ещё раз.")
		return
	}
	b.sendMessage(query.From.ID,
		"✏️ Отправьте новый текст промпта одним сообщением.\n\n"+
			"Он должен содержать {message_text} и три варианта ответа: СПАМ, НЕ_СПАМ, ВОЗМОЖНО_СПАМ.\n\n"+
			"Для отмены: /cancel")
}

func (b *Bot) handleRejectCallback(query *tgbotapi.CallbackQuery) {
	err := b.workflow.Reject(query.From.ID)
	if errors.Is(err, revision.ErrNoPending) {
		b.sendMessage(query.From.ID, "ℹ️ Нет ожидающего предложения.")
		return
	}
	if err != nil {
		b.logger.Error("Failed to reject revision", zap.Error(err))
		b.sendMessage(query.From.ID, "❌ Ошибка. Попробуйте ещё раз.")
		return
	}
	b.sendMessage(query.From.ID, "❌ Предложение отклонено, промпт не изменён.")
}

func errorKindLabel(kind revision.ErrorKind) string {
	switch kind {
	case revision.MissedSpam:
		return "пропущен спам"
	case revision.UncertainSpam:
		return "неуверенность"
	case revision.FalsePositive:
		return "ложное срабатывание"
	default:
		return string(kind)
	}
}

func verifySuffix(report *models.VerifyReport) string {
	if report == nil || report.Consistent {
		return ""
	}
	return "\n\n⚠️ Проверка чтения показала расхождение, проверьте /editprompt."
}

// sendMessage is a helper to send a simple text message.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// truncate shortens text to at most limit runes for Telegram display.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
