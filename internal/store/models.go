package store

import (
	"time"
)

type Survey struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`
	// SurveyMonkey ID, unresolved until the first successful sync.
	SMID        *string   `gorm:"column:sm_id;size:50" json:"sm_id"`
	LastUpdated time.Time `gorm:"autoUpdateTime" json:"last_updated"`
	// Most recent sync failure that was recorded rather than returned.
	ErrorMessage *string `gorm:"size:255" json:"error_message"`
}

type Question struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SurveyID  uint   `gorm:"not null;uniqueIndex:idx_questions_survey_sm" json:"survey_id"`
	SMID      string `gorm:"column:sm_id;size:50;not null;uniqueIndex:idx_questions_survey_sm" json:"sm_id"`
	Text      string `gorm:"column:text;type:text" json:"text"`
	OpenEnded bool   `gorm:"not null;default:false" json:"open_ended"`
	NPS       bool   `gorm:"column:nps;not null;default:false" json:"nps"`
}

func (q Question) String() string { return Truncate(q.Text) }

// Choice identity is (sm_id, text, weight) within its question, so a remote
// option whose text or weight changes is stored as a new row.
type Choice struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index:idx_choices_question_sm" json:"question_id"`
	SMID       string `gorm:"column:sm_id;size:50;not null;index:idx_choices_question_sm" json:"sm_id"`
	Text       string `gorm:"column:text;type:text" json:"text"`
	Weight     *int   `json:"weight"`
}

type Respondent struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	SurveyID uint   `gorm:"not null;uniqueIndex:idx_respondents_survey_sm" json:"survey_id"`
	SMID     string `gorm:"column:sm_id;size:50;not null;uniqueIndex:idx_respondents_survey_sm" json:"sm_id"`
}

// RespondentQuestion is the respondent <-> answered question set.
type RespondentQuestion struct {
	RespondentID uint `gorm:"primaryKey;autoIncrement:false"`
	QuestionID   uint `gorm:"primaryKey;autoIncrement:false;index"`
}

func (RespondentQuestion) TableName() string { return "respondent_questions" }

// Answer holds either ChoiceID or Text, never both. Use Value to read it.
type Answer struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	QuestionID   uint    `gorm:"not null;index" json:"question_id"`
	RespondentID uint    `gorm:"not null;index" json:"respondent_id"`
	ChoiceID     *uint   `gorm:"index" json:"choice_id"`
	Text         *string `gorm:"column:text;type:text" json:"text"`
}

func (a Answer) Value() AnswerValue {
	if a.ChoiceID != nil {
		return ChoiceAnswer{ChoiceID: *a.ChoiceID}
	}
	if a.Text != nil {
		return FreeText{Text: *a.Text}
	}
	return nil
}

type SyncStatus string

const (
	SyncRunning  SyncStatus = "running"
	SyncSuccess  SyncStatus = "success"
	SyncNotFound SyncStatus = "not_found"
	SyncFailed   SyncStatus = "failed"
)

type SyncHistory struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	SurveyID         uint       `gorm:"not null;index" json:"survey_id"`
	StartedAt        time.Time  `gorm:"not null;index" json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	Status           SyncStatus `gorm:"size:16;not null" json:"status"`
	QuestionsCreated int        `json:"questions_created"`
	ChoicesCreated   int        `json:"choices_created"`
	RespondentsAdded int        `json:"respondents_added"`
	AnswersCreated   int        `json:"answers_created"`
	ErrorMessage     *string    `gorm:"type:text" json:"error_message"`
}

func (SyncHistory) TableName() string { return "sync_history" }

// Models lists every table owned by the store, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Survey{},
		&Question{},
		&Choice{},
		&Respondent{},
		&RespondentQuestion{},
		&Answer{},
		&SyncHistory{},
	}
}
