package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nps-sync-service/internal/database"
	"nps-sync-service/internal/logger"
)

type GormStore struct {
	db *database.Database
}

func NewGormStore(db *database.Database) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Close() error {
	return s.db.Close()
}

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.DB.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	logger.Log.Info("Store migrated", zap.Int("tables", len(Models())))
	return nil
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.DB.WithContext(ctx)
}

// getOrCreate looks a row up by conds and inserts build() on a miss, inside a
// single transaction. The bool reports whether the row was created.
func getOrCreate[T any](ctx context.Context, db *database.Database, conds map[string]interface{}, build func() *T) (*T, bool, error) {
	var (
		out     T
		created bool
	)
	err := db.ExecTx(ctx, func(tx *gorm.DB) error {
		err := tx.Where(conds).First(&out).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		rec := build()
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		out = *rec
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func notFound(err error, kind, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &LookupError{Kind: kind, Key: key}
	}
	return err
}

func idKey(id uint) string {
	return "id=" + strconv.FormatUint(uint64(id), 10)
}

// Surveys

func (s *GormStore) CreateSurvey(ctx context.Context, name string) (*Survey, error) {
	survey := &Survey{Name: name}
	if err := s.conn(ctx).Create(survey).Error; err != nil {
		return nil, err
	}
	return survey, nil
}

func (s *GormStore) GetSurvey(ctx context.Context, id uint) (*Survey, error) {
	var survey Survey
	if err := s.conn(ctx).First(&survey, id).Error; err != nil {
		return nil, notFound(err, "survey", idKey(id))
	}
	return &survey, nil
}

func (s *GormStore) ListSurveys(ctx context.Context) ([]*Survey, error) {
	var surveys []*Survey
	err := s.conn(ctx).Order("last_updated").Order("name").Find(&surveys).Error
	return surveys, err
}

func (s *GormStore) SaveSurveySyncState(ctx context.Context, survey *Survey) error {
	return s.conn(ctx).
		Model(survey).
		Select("sm_id", "error_message", "last_updated").
		Updates(survey).Error
}

// Questions

func (s *GormStore) GetOrCreateQuestion(ctx context.Context, key QuestionKey) (*Question, bool, error) {
	return getOrCreate(ctx, s.db,
		map[string]interface{}{"survey_id": key.SurveyID, "sm_id": key.SMID},
		func() *Question { return &Question{SurveyID: key.SurveyID, SMID: key.SMID} },
	)
}

func (s *GormStore) SaveQuestion(ctx context.Context, question *Question) error {
	return s.conn(ctx).Save(question).Error
}

func (s *GormStore) GetQuestion(ctx context.Context, id uint) (*Question, error) {
	var q Question
	if err := s.conn(ctx).First(&q, id).Error; err != nil {
		return nil, notFound(err, "question", idKey(id))
	}
	return &q, nil
}

func (s *GormStore) FindQuestion(ctx context.Context, surveyID uint, smID string) (*Question, error) {
	var q Question
	err := s.conn(ctx).
		Where(map[string]interface{}{"survey_id": surveyID, "sm_id": smID}).
		First(&q).Error
	if err != nil {
		return nil, notFound(err, "question", fmt.Sprintf("sm_id=%s survey=%d", smID, surveyID))
	}
	return &q, nil
}

func (s *GormStore) SetQuestionNPS(ctx context.Context, id uint, nps bool) (*Question, error) {
	q, err := s.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.conn(ctx).Model(q).Update("nps", nps).Error; err != nil {
		return nil, err
	}
	q.NPS = nps
	return q, nil
}

func (s *GormStore) ListQuestions(ctx context.Context, surveyID uint) ([]*Question, error) {
	var qs []*Question
	err := s.conn(ctx).
		Where("survey_id = ?", surveyID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "text"}}).
		Order("id").
		Find(&qs).Error
	return qs, err
}

func (s *GormStore) ListNPSQuestions(ctx context.Context, surveyID uint) ([]*Question, error) {
	var qs []*Question
	err := s.conn(ctx).
		Where(map[string]interface{}{"survey_id": surveyID, "nps": true}).
		Order("id").
		Find(&qs).Error
	return qs, err
}

// Choices

func (s *GormStore) GetOrCreateChoice(ctx context.Context, key ChoiceKey) (*Choice, bool, error) {
	conds := map[string]interface{}{
		"question_id": key.QuestionID,
		"sm_id":       key.SMID,
		"text":        key.Text,
		"weight":      nil,
	}
	if key.Weight != nil {
		conds["weight"] = *key.Weight
	}
	return getOrCreate(ctx, s.db, conds, func() *Choice {
		c := &Choice{QuestionID: key.QuestionID, SMID: key.SMID, Text: key.Text}
		if key.Weight != nil {
			w := *key.Weight
			c.Weight = &w
		}
		return c
	})
}

// FindChoice returns the newest choice with smID under the question. Older
// rows with the same smID are left behind when the remote text or weight
// changes.
func (s *GormStore) FindChoice(ctx context.Context, questionID uint, smID string) (*Choice, error) {
	var c Choice
	err := s.conn(ctx).
		Where(map[string]interface{}{"question_id": questionID, "sm_id": smID}).
		Last(&c).Error
	if err != nil {
		return nil, notFound(err, "choice", fmt.Sprintf("sm_id=%s question=%d", smID, questionID))
	}
	return &c, nil
}

func (s *GormStore) ListChoices(ctx context.Context, questionID uint) ([]*Choice, error) {
	var cs []*Choice
	err := s.conn(ctx).Where("question_id = ?", questionID).Order("id").Find(&cs).Error
	return cs, err
}

func (s *GormStore) ListSurveyChoices(ctx context.Context, surveyID uint) ([]*Choice, error) {
	var cs []*Choice
	err := s.conn(ctx).
		Joins("JOIN questions ON questions.id = choices.question_id").
		Where("questions.survey_id = ?", surveyID).
		Order("choices.id").
		Find(&cs).Error
	return cs, err
}

// Respondents

func (s *GormStore) GetOrCreateRespondent(ctx context.Context, key RespondentKey) (*Respondent, bool, error) {
	return getOrCreate(ctx, s.db,
		map[string]interface{}{"survey_id": key.SurveyID, "sm_id": key.SMID},
		func() *Respondent { return &Respondent{SurveyID: key.SurveyID, SMID: key.SMID} },
	)
}

func (s *GormStore) ListRespondents(ctx context.Context, surveyID uint) ([]*Respondent, error) {
	var rs []*Respondent
	err := s.conn(ctx).Where("survey_id = ?", surveyID).Order("id").Find(&rs).Error
	return rs, err
}

func (s *GormStore) AddRespondentQuestion(ctx context.Context, respondentID, questionID uint) error {
	return s.conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&RespondentQuestion{RespondentID: respondentID, QuestionID: questionID}).Error
}

func (s *GormStore) HasRespondentQuestion(ctx context.Context, respondentID, questionID uint) (bool, error) {
	var n int64
	err := s.conn(ctx).
		Model(&RespondentQuestion{}).
		Where("respondent_id = ? AND question_id = ?", respondentID, questionID).
		Count(&n).Error
	return n > 0, err
}

// Answers

func (s *GormStore) GetOrCreateAnswer(ctx context.Context, key AnswerKey) (*Answer, bool, error) {
	if err := key.validate(); err != nil {
		return nil, false, err
	}
	conds := map[string]interface{}{
		"question_id":   key.QuestionID,
		"respondent_id": key.RespondentID,
	}
	build := &Answer{QuestionID: key.QuestionID, RespondentID: key.RespondentID}
	switch v := key.Value.(type) {
	case FreeText:
		conds["choice_id"] = nil
		conds["text"] = v.Text
		text := v.Text
		build.Text = &text
	case ChoiceAnswer:
		conds["choice_id"] = v.ChoiceID
		choiceID := v.ChoiceID
		build.ChoiceID = &choiceID
	}
	return getOrCreate(ctx, s.db, conds, func() *Answer { return build })
}

func (s *GormStore) ListAnswers(ctx context.Context, surveyID uint) ([]*Answer, error) {
	var as []*Answer
	err := s.conn(ctx).
		Joins("JOIN respondents ON respondents.id = answers.respondent_id").
		Where("respondents.survey_id = ?", surveyID).
		Order("answers.id").
		Find(&as).Error
	return as, err
}

// Counts

func (s *GormStore) CountQuestions(ctx context.Context, surveyID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&Question{}).Where("survey_id = ?", surveyID).Count(&n).Error
	return n, err
}

func (s *GormStore) CountChoices(ctx context.Context, surveyID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).
		Model(&Choice{}).
		Joins("JOIN questions ON questions.id = choices.question_id").
		Where("questions.survey_id = ?", surveyID).
		Count(&n).Error
	return n, err
}

func (s *GormStore) CountRespondents(ctx context.Context, surveyID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&Respondent{}).Where("survey_id = ?", surveyID).Count(&n).Error
	return n, err
}

func (s *GormStore) CountAnswers(ctx context.Context, surveyID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).
		Model(&Answer{}).
		Joins("JOIN respondents ON respondents.id = answers.respondent_id").
		Where("respondents.survey_id = ?", surveyID).
		Count(&n).Error
	return n, err
}

func (s *GormStore) CountQuestionRespondents(ctx context.Context, questionID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&RespondentQuestion{}).Where("question_id = ?", questionID).Count(&n).Error
	return n, err
}

func (s *GormStore) CountAnswersByWeight(ctx context.Context, questionID uint, weights []int) (int64, error) {
	if len(weights) == 0 {
		return 0, nil
	}
	var n int64
	err := s.conn(ctx).
		Model(&Answer{}).
		Joins("JOIN choices ON choices.id = answers.choice_id").
		Where("answers.question_id = ? AND choices.question_id = ? AND choices.weight IN ?", questionID, questionID, weights).
		Count(&n).Error
	return n, err
}

func (s *GormStore) CountChoiceAnswers(ctx context.Context, choiceID uint) (int64, error) {
	var n int64
	err := s.conn(ctx).Model(&Answer{}).Where("choice_id = ?", choiceID).Count(&n).Error
	return n, err
}

// History

func (s *GormStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	return s.conn(ctx).Create(history).Error
}

func (s *GormStore) UpdateSyncHistory(ctx context.Context, history *SyncHistory) error {
	return s.conn(ctx).Save(history).Error
}

func (s *GormStore) ListSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	var history []*SyncHistory
	err := s.conn(ctx).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&history).Error
	return history, err
}
