package classifier

import (
	"strings"
	"unicode"
)

// Verdict is the closed three-way classification output space.
type Verdict string

const (
	VerdictSpam      Verdict = "СПАМ"
	VerdictNotSpam   Verdict = "НЕ_СПАМ"
	VerdictMaybeSpam Verdict = "ВОЗМОЖНО_СПАМ"
)

// MessagePlaceholder is the literal substitution marker inside an instruction
// set where the message under evaluation is inserted.
const MessagePlaceholder = "{message_text}"

// BaseInstructionSet is the instruction set seeded on first run, when the
// store is empty.
const BaseInstructionSet = `Проанализируй сообщение из телеграм-группы и ответь строго одним из трёх вариантов:
СПАМ
НЕ_СПАМ
ВОЗМОЖНО_СПАМ

Считай особенно подозрительными: безадресные вакансии/работу "без опыта/высокий доход", призывы писать в ЛС/бота/внешние ссылки, сердечки 💘/💝 с намёком на интим-услуги. Если данных мало — выбирай ВОЗМОЖНО_СПАМ.

Сообщение: «{message_text}»

Ответ:`

// Keyword families for the substring pass. The maybe-spam family is checked
// first: "ВОЗМОЖНО_СПАМ" contains "СПАМ" as a substring, so the more specific
// labels must win before the generic spam check. Truncated prefixes cover
// completions cut off by the token budget.
var (
	maybeSpamKeywords = []string{
		"ВОЗМОЖНО_СПАМ", "ВОЗМОЖНО СПАМ", "ВОЗМОЖНОСПАМ",
		"MAYBE_SPAM", "MAYBE SPAM", "MAYBEСПАМ",
		"ВОЗМО", "ВОЗМОЖ",
	}
	notSpamKeywords = []string{
		"НЕ_СПАМ", "НЕ СПАМ", "НЕСПАМ",
		"NOT_SPAM", "NOT SPAM", "NOTSPAM",
		"НЕ_СП", "НЕ_С",
	}
	spamKeywords = []string{"СПАМ", "SPAM"}
)

var (
	spamExact      = []string{"СПАМ", "SPAM"}
	notSpamExact   = []string{"НЕ_СПАМ", "НЕ СПАМ", "НЕСПАМ", "NOT_SPAM", "NOT SPAM", "NOTSPAM"}
	maybeSpamExact = []string{"ВОЗМОЖНО_СПАМ", "ВОЗМОЖНО СПАМ", "ВОЗМОЖНОСПАМ", "MAYBE_SPAM", "MAYBE SPAM"}
)

// ParseVerdict maps a raw model completion to a verdict. The second return
// value is false when nothing matched and the caution default was used.
func ParseVerdict(raw string) (Verdict, bool) {
	cleaned := normalizeResponse(raw)

	switch {
	case containsExact(spamExact, cleaned):
		return VerdictSpam, true
	case containsExact(notSpamExact, cleaned):
		return VerdictNotSpam, true
	case containsExact(maybeSpamExact, cleaned):
		return VerdictMaybeSpam, true
	}

	switch {
	case containsAny(cleaned, maybeSpamKeywords):
		return VerdictMaybeSpam, true
	case containsAny(cleaned, notSpamKeywords):
		return VerdictNotSpam, true
	case containsAny(cleaned, spamKeywords):
		return VerdictSpam, true
	}

	// Fail toward caution, not toward silence or false confidence.
	return VerdictMaybeSpam, false
}

// normalizeResponse trims, uppercases and strips every rune that is not a
// letter, digit, whitespace or underscore.
func normalizeResponse(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsExact(set []string, s string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
