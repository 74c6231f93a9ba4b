package store

import (
	"context"
)

type Store interface {
	// Surveys
	CreateSurvey(ctx context.Context, name string) (*Survey, error)
	GetSurvey(ctx context.Context, id uint) (*Survey, error)
	ListSurveys(ctx context.Context) ([]*Survey, error)
	SaveSurveySyncState(ctx context.Context, survey *Survey) error

	// Questions
	GetOrCreateQuestion(ctx context.Context, key QuestionKey) (*Question, bool, error)
	SaveQuestion(ctx context.Context, question *Question) error
	GetQuestion(ctx context.Context, id uint) (*Question, error)
	FindQuestion(ctx context.Context, surveyID uint, smID string) (*Question, error)
	SetQuestionNPS(ctx context.Context, id uint, nps bool) (*Question, error)
	ListQuestions(ctx context.Context, surveyID uint) ([]*Question, error)
	ListNPSQuestions(ctx context.Context, surveyID uint) ([]*Question, error)

	// Choices
	GetOrCreateChoice(ctx context.Context, key ChoiceKey) (*Choice, bool, error)
	FindChoice(ctx context.Context, questionID uint, smID string) (*Choice, error)
	ListChoices(ctx context.Context, questionID uint) ([]*Choice, error)
	ListSurveyChoices(ctx context.Context, surveyID uint) ([]*Choice, error)

	// Respondents
	GetOrCreateRespondent(ctx context.Context, key RespondentKey) (*Respondent, bool, error)
	ListRespondents(ctx context.Context, surveyID uint) ([]*Respondent, error)
	AddRespondentQuestion(ctx context.Context, respondentID, questionID uint) error
	HasRespondentQuestion(ctx context.Context, respondentID, questionID uint) (bool, error)

	// Answers
	GetOrCreateAnswer(ctx context.Context, key AnswerKey) (*Answer, bool, error)
	ListAnswers(ctx context.Context, surveyID uint) ([]*Answer, error)

	// Counts
	CountQuestions(ctx context.Context, surveyID uint) (int64, error)
	CountChoices(ctx context.Context, surveyID uint) (int64, error)
	CountRespondents(ctx context.Context, surveyID uint) (int64, error)
	CountAnswers(ctx context.Context, surveyID uint) (int64, error)
	CountQuestionRespondents(ctx context.Context, questionID uint) (int64, error)
	CountAnswersByWeight(ctx context.Context, questionID uint, weights []int) (int64, error)
	CountChoiceAnswers(ctx context.Context, choiceID uint) (int64, error)

	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	UpdateSyncHistory(ctx context.Context, history *SyncHistory) error
	ListSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error)

	// General
	Migrate(ctx context.Context) error
	Close() error
}
