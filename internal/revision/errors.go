package revision

import "antispam/internal/classifier"

// ErrorKind names the three kinds of confirmed classification errors that
// trigger an instruction revision.
type ErrorKind string

const (
	// MissedSpam: the gateway said НЕ_СПАМ, the moderator says СПАМ.
	MissedSpam ErrorKind = "missed_spam"
	// UncertainSpam: the gateway said ВОЗМОЖНО_СПАМ, the moderator says СПАМ.
	UncertainSpam ErrorKind = "uncertain_spam"
	// FalsePositive: the gateway said СПАМ or ВОЗМОЖНО_СПАМ, the moderator
	// says НЕ_СПАМ.
	FalsePositive ErrorKind = "false_positive"
)

// ClassifyError decides whether the moderator's verdict contradicts the
// gateway's and, if so, which kind of error it is. The moderator only ever
// asserts СПАМ or НЕ_СПАМ. Agreement (and НЕ_СПАМ confirmed as НЕ_СПАМ)
// triggers no revision.
func ClassifyError(gatewayVerdict, moderatorVerdict classifier.Verdict) (ErrorKind, bool) {
	switch moderatorVerdict {
	case classifier.VerdictSpam:
		switch gatewayVerdict {
		case classifier.VerdictNotSpam:
			return MissedSpam, true
		case classifier.VerdictMaybeSpam:
			return UncertainSpam, true
		}
	case classifier.VerdictNotSpam:
		switch gatewayVerdict {
		case classifier.VerdictSpam, classifier.VerdictMaybeSpam:
			return FalsePositive, true
		}
	}
	return "", false
}
