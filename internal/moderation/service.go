package moderation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"antispam/internal/action_log"
	"antispam/internal/classifier"
	"antispam/internal/models"
	"antispam/internal/repository"
	"antispam/internal/revision"
)

// FeedbackResult summarizes what happened after a moderator verdict: whether
// it contradicted the gateway and, if so, whether a revision candidate was
// drafted for approval.
type FeedbackResult struct {
	Decision       classifier.Verdict
	ErrorKind      revision.ErrorKind
	HasError       bool
	Explanation    string
	Candidate      string
	Degradations   []string
	ProposalFailed bool
}

// Service orchestrates the moderation pipeline: classify incoming messages,
// record them, turn moderator feedback into training examples and revision
// proposals.
type Service struct {
	gateway  *classifier.Gateway
	engine   *revision.Engine
	workflow *revision.Workflow
	records  repository.RecordRepository
	training repository.TrainingRepository
	actions  *action_log.Logger
	logger   *zap.Logger
}

func NewService(
	gateway *classifier.Gateway,
	engine *revision.Engine,
	workflow *revision.Workflow,
	records repository.RecordRepository,
	training repository.TrainingRepository,
	actions *action_log.Logger,
	logger *zap.Logger,
) *Service {
	return &Service{
		gateway:  gateway,
		engine:   engine,
		workflow: workflow,
		records:  records,
		training: training,
		actions:  actions,
		logger:   logger,
	}
}

// OnMessage classifies a group message and records the verdict. Storage
// failures are logged but do not suppress the verdict: moderation keeps
// working even when the database is down.
func (s *Service) OnMessage(ctx context.Context, messageID, chatID, userID int64, username, text string) classifier.Verdict {
	verdict := s.gateway.Classify(ctx, text)

	result := string(verdict)
	rec := &models.ModerationRecord{
		MessageID: messageID,
		ChatID:    chatID,
		UserID:    userID,
		Username:  username,
		Text:      text,
		CreatedAt: time.Now(),
		LLMResult: &result,
	}
	if err := s.records.Save(rec); err != nil {
		s.logger.Error("Failed to save moderation record",
			zap.Int64("message_id", messageID),
			zap.Error(err))
		s.actions.LogError("save_record", err)
	}

	s.actions.LogMessageAnalysis(messageID, chatID, username, result)
	return verdict
}

// OnFeedback applies the moderator's verdict to a recorded message. When the
// verdict contradicts the stored gateway verdict, the error is classified and
// an "explain and revise" proposal is drafted and staged for approval. A
// drafting failure is reported via ProposalFailed; the verdict and training
// example are stored regardless.
func (s *Service) OnFeedback(ctx context.Context, moderatorID, messageID int64, decision classifier.Verdict) (*FeedbackResult, error) {
	rec, err := s.records.GetByMessageID(messageID)
	if err != nil {
		return nil, err
	}

	if err := s.records.SetModeratorVerdict(messageID, string(decision), time.Now()); err != nil {
		return nil, err
	}

	if err := s.training.Add(rec.Text, decision == classifier.VerdictSpam, repository.SourceAdminFeedback); err != nil {
		s.actions.LogError("save_training_example", err)
	}

	res := &FeedbackResult{Decision: decision}

	var gatewayVerdict classifier.Verdict
	if rec.LLMResult != nil {
		gatewayVerdict = classifier.Verdict(*rec.LLMResult)
	}
	kind, isError := revision.ClassifyError(gatewayVerdict, decision)
	if !isError {
		return res, nil
	}
	res.HasError = true
	res.ErrorKind = kind

	s.propose(ctx, moderatorID, rec.Text, kind, res)
	return res, nil
}

// OnForwardedSpam handles a known-spam example forwarded into the moderator
// chat: it is stored as a training example and treated as missed spam for
// revision purposes.
func (s *Service) OnForwardedSpam(ctx context.Context, moderatorID int64, text string) *FeedbackResult {
	if err := s.training.Add(text, true, repository.SourceForwardedMistake); err != nil {
		s.actions.LogError("save_training_example", err)
	}

	res := &FeedbackResult{
		Decision:  classifier.VerdictSpam,
		HasError:  true,
		ErrorKind: revision.MissedSpam,
	}
	s.propose(ctx, moderatorID, text, revision.MissedSpam, res)
	return res
}

func (s *Service) propose(ctx context.Context, moderatorID int64, messageText string, kind revision.ErrorKind, res *FeedbackResult) {
	inst, err := s.gateway.ActiveInstructions()
	if err != nil {
		s.logger.Error("Cannot load instructions for revision", zap.Error(err))
		s.actions.LogError("load_instructions", err)
		res.ProposalFailed = true
		return
	}

	proposal, err := s.engine.ProposeRevision(ctx, messageText, kind, inst.PromptText)
	if err != nil {
		s.actions.LogError("propose_revision", err)
		res.ProposalFailed = true
		return
	}

	res.Explanation = proposal.Explanation
	res.Degradations = proposal.Degradations
	if proposal.Candidate == "" {
		res.ProposalFailed = true
		return
	}

	if err := s.workflow.Propose(moderatorID, proposal.Candidate, kind); err != nil {
		s.logger.Error("Failed to stage revision candidate", zap.Error(err))
		s.actions.LogError("stage_candidate", err)
		res.ProposalFailed = true
		return
	}
	res.Candidate = proposal.Candidate
}
