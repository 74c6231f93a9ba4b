package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nps-sync-service/internal/logger"
	"nps-sync-service/internal/store"
	"nps-sync-service/internal/surveymonkey"
)

const maxErrorMessage = 255

// Syncer reconciles one survey's remote structure and responses into the
// store. It is not safe to run twice concurrently for the same survey; the
// Manager serialises calls.
type Syncer struct {
	source     Source
	store      store.Store
	classifier *NPSClassifier
	now        func() time.Time
}

func NewSyncer(source Source, st store.Store, classifier *NPSClassifier) *Syncer {
	return &Syncer{
		source:     source,
		store:      st,
		classifier: classifier,
		now:        time.Now,
	}
}

// resolve returns the remote survey ID. A name that does not resolve is
// recorded on the survey and reported through ok=false with a nil error.
func (s *Syncer) resolve(ctx context.Context, survey *store.Survey) (smID string, ok bool, err error) {
	smID, err = s.source.ResolveSurveyID(ctx, survey.Name)
	if err == nil {
		return smID, true, nil
	}

	var (
		nf  *surveymonkey.NotFoundError
		amb *surveymonkey.AmbiguousError
		msg string
	)
	switch {
	case errors.As(err, &nf):
		msg = fmt.Sprintf("Could not find a SurveyMonkey survey whose title contains %q. Check the survey name.", survey.Name)
	case errors.As(err, &amb):
		msg = fmt.Sprintf("%d SurveyMonkey surveys match %q. Use a more specific survey name.", len(amb.Matches), survey.Name)
	default:
		return "", false, err
	}

	logger.Log.Warn("Survey name did not resolve",
		zap.Uint("survey_id", survey.ID),
		zap.String("name", survey.Name),
		zap.Error(err),
	)
	if r := []rune(msg); len(r) > maxErrorMessage {
		msg = string(r[:maxErrorMessage])
	}
	survey.ErrorMessage = &msg
	survey.LastUpdated = s.now()
	if err := s.store.SaveSurveySyncState(ctx, survey); err != nil {
		return "", false, fmt.Errorf("failed to record sync error: %w", err)
	}
	return "", false, nil
}

func (s *Syncer) markResolved(ctx context.Context, survey *store.Survey, smID string) error {
	survey.SMID = &smID
	survey.ErrorMessage = nil
	survey.LastUpdated = s.now()
	if err := s.store.SaveSurveySyncState(ctx, survey); err != nil {
		return fmt.Errorf("failed to save survey state: %w", err)
	}
	return nil
}

// SyncDetails upserts the survey's questions and choices.
func (s *Syncer) SyncDetails(ctx context.Context, survey *store.Survey) (*DetailResult, error) {
	smID, ok, err := s.resolve(ctx, survey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &DetailResult{NotFound: true}, nil
	}

	pages, err := s.source.FetchStructure(ctx, smID)
	if err != nil {
		return nil, err
	}
	if err := s.markResolved(ctx, survey, smID); err != nil {
		return nil, err
	}

	res := &DetailResult{}
	for _, page := range pages {
		for _, rq := range page.Questions {
			if rq.IsDescriptive() {
				continue
			}
			if err := s.syncQuestion(ctx, survey, rq, res); err != nil {
				return res, err
			}
		}
	}

	logger.Log.Info("Synced survey details",
		zap.Uint("survey_id", survey.ID),
		zap.String("sm_id", smID),
		zap.Int("questions", res.Questions),
		zap.Int("questions_created", res.QuestionsCreated),
		zap.Int("choices_created", res.ChoicesCreated),
	)
	return res, nil
}

func (s *Syncer) syncQuestion(ctx context.Context, survey *store.Survey, rq surveymonkey.Question, res *DetailResult) error {
	q, created, err := s.store.GetOrCreateQuestion(ctx, store.QuestionKey{SurveyID: survey.ID, SMID: rq.QuestionID})
	if err != nil {
		return fmt.Errorf("question %s: %w", rq.QuestionID, err)
	}
	res.Questions++
	if created {
		res.QuestionsCreated++
	}

	q.Text = rq.Heading
	if rq.IsOpenEnded() {
		q.OpenEnded = true
	}
	// The flag is only proposed for new questions; afterwards it belongs to
	// the operator.
	if created && s.classifier.IsNPS(rq) {
		q.NPS = true
	}
	if err := s.store.SaveQuestion(ctx, q); err != nil {
		return fmt.Errorf("question %s: %w", rq.QuestionID, err)
	}
	logger.Log.Debug("Synced question",
		zap.String("sm_id", rq.QuestionID),
		zap.String("question", store.Truncate(rq.Heading)),
		zap.Bool("created", created),
		zap.Bool("nps", q.NPS),
	)

	for _, a := range rq.Answers {
		if a.Text == "" {
			continue
		}
		_, created, err := s.store.GetOrCreateChoice(ctx, store.ChoiceKey{
			QuestionID: q.ID,
			SMID:       a.AnswerID,
			Text:       a.Text,
			Weight:     a.Weight,
		})
		if err != nil {
			return fmt.Errorf("choice %s of question %s: %w", a.AnswerID, rq.QuestionID, err)
		}
		if created {
			res.ChoicesCreated++
		}
	}
	return nil
}

// SyncResponses stores respondents and their answers. Respondents already in
// the store are skipped entirely, so answers edited remotely after the first
// sync are never picked up. A question or choice missing from the store
// aborts the run; rows written before the failure stay.
func (s *Syncer) SyncResponses(ctx context.Context, survey *store.Survey) (*ResponseResult, error) {
	smID, ok, err := s.resolve(ctx, survey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ResponseResult{NotFound: true}, nil
	}

	ids, err := s.source.FetchRespondentIDs(ctx, smID)
	if err != nil {
		return nil, err
	}
	responses, err := s.source.FetchResponses(ctx, smID, ids)
	if err != nil {
		return nil, err
	}
	if err := s.markResolved(ctx, survey, smID); err != nil {
		return nil, err
	}

	res := &ResponseResult{Responses: len(responses)}
	for _, r := range responses {
		respondent, created, err := s.store.GetOrCreateRespondent(ctx, store.RespondentKey{SurveyID: survey.ID, SMID: r.RespondentID})
		if err != nil {
			return res, fmt.Errorf("respondent %s: %w", r.RespondentID, err)
		}
		if !created {
			res.RespondentsSkipped++
			continue
		}
		res.RespondentsAdded++

		for _, qr := range r.Questions {
			if err := s.syncAnswers(ctx, survey, respondent, qr, res); err != nil {
				return res, fmt.Errorf("respondent %s: %w", r.RespondentID, err)
			}
		}
	}

	logger.Log.Info("Synced survey responses",
		zap.Uint("survey_id", survey.ID),
		zap.String("sm_id", smID),
		zap.Int("responses", res.Responses),
		zap.Int("respondents_added", res.RespondentsAdded),
		zap.Int("respondents_skipped", res.RespondentsSkipped),
		zap.Int("answers_created", res.AnswersCreated),
	)
	return res, nil
}

func (s *Syncer) syncAnswers(ctx context.Context, survey *store.Survey, respondent *store.Respondent, qr surveymonkey.QuestionResponse, res *ResponseResult) error {
	q, err := s.store.FindQuestion(ctx, survey.ID, qr.QuestionID)
	if err != nil {
		return err
	}

	has, err := s.store.HasRespondentQuestion(ctx, respondent.ID, q.ID)
	if err != nil {
		return err
	}
	if !has {
		if err := s.store.AddRespondentQuestion(ctx, respondent.ID, q.ID); err != nil {
			return err
		}
	}

	for _, raw := range qr.Answers {
		var value store.AnswerValue
		switch a := raw.(type) {
		case surveymonkey.FreeText:
			value = store.FreeText{Text: a.Text}
		case surveymonkey.ScaleResponse:
			choice, err := s.store.FindChoice(ctx, q.ID, a.ChoiceRef)
			if err != nil {
				return err
			}
			value = store.ChoiceAnswer{ChoiceID: choice.ID}
		default:
			return fmt.Errorf("question %s: unsupported answer %T", qr.QuestionID, raw)
		}

		_, created, err := s.store.GetOrCreateAnswer(ctx, store.AnswerKey{
			QuestionID:   q.ID,
			RespondentID: respondent.ID,
			Value:        value,
		})
		if err != nil {
			return err
		}
		if created {
			res.AnswersCreated++
		}
	}
	return nil
}
