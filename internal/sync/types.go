package sync

import (
	"context"
	"errors"
	"fmt"

	"nps-sync-service/internal/store"
	"nps-sync-service/internal/surveymonkey"
)

// Source is the remote survey service as seen by the sync engine.
type Source interface {
	ResolveSurveyID(ctx context.Context, name string) (string, error)
	FetchStructure(ctx context.Context, surveyID string) ([]surveymonkey.Page, error)
	FetchRespondentIDs(ctx context.Context, surveyID string) ([]string, error)
	FetchResponses(ctx context.Context, surveyID string, respondentIDs []string) ([]surveymonkey.Response, error)
}

var ErrAlreadyRunning = errors.New("sync already running for survey")

const (
	StatusIdle    = "idle"
	StatusRunning = "running"
)

type DetailResult struct {
	// NotFound is set when the survey name did not resolve; nothing was
	// written besides the survey's error message.
	NotFound         bool `json:"not_found"`
	Questions        int  `json:"questions"`
	QuestionsCreated int  `json:"questions_created"`
	ChoicesCreated   int  `json:"choices_created"`
}

type ResponseResult struct {
	NotFound           bool `json:"not_found"`
	Responses          int  `json:"responses"`
	RespondentsAdded   int  `json:"respondents_added"`
	RespondentsSkipped int  `json:"respondents_skipped"`
	AnswersCreated     int  `json:"answers_created"`
}

type Result struct {
	HistoryID string           `json:"history_id"`
	SurveyID  uint             `json:"survey_id"`
	Status    store.SyncStatus `json:"status"`
	Details   *DetailResult    `json:"details,omitempty"`
	Responses *ResponseResult  `json:"responses,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (r Result) String() string {
	return fmt.Sprintf("[%s] survey %d", r.Status, r.SurveyID)
}
