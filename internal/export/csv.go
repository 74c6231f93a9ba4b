// Package export renders synced survey data as spreadsheets.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"nps-sync-service/internal/store"
)

// Reader is the part of the store the exporter needs.
type Reader interface {
	ListQuestions(ctx context.Context, surveyID uint) ([]*store.Question, error)
	ListSurveyChoices(ctx context.Context, surveyID uint) ([]*store.Choice, error)
	ListRespondents(ctx context.Context, surveyID uint) ([]*store.Respondent, error)
	ListAnswers(ctx context.Context, surveyID uint) ([]*store.Answer, error)
}

// SurveyCSV renders one row per respondent and one column per question.
// A selected option is written as its weight when it has one, otherwise as
// its text.
func SurveyCSV(ctx context.Context, r Reader, surveyID uint) ([]byte, error) {
	questions, err := r.ListQuestions(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	choices, err := r.ListSurveyChoices(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list choices: %w", err)
	}
	respondents, err := r.ListRespondents(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list respondents: %w", err)
	}
	answers, err := r.ListAnswers(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	choiceByID := make(map[uint]*store.Choice, len(choices))
	for _, c := range choices {
		choiceByID[c.ID] = c
	}

	// Only the first answer per (respondent, question) is kept, so a
	// select-all question shows a single option. Full multi-select support
	// would need one column per option.
	cells := make(map[uint]map[uint]string, len(respondents))
	for _, a := range answers {
		row, ok := cells[a.RespondentID]
		if !ok {
			row = make(map[uint]string)
			cells[a.RespondentID] = row
		}
		if _, seen := row[a.QuestionID]; seen {
			continue
		}
		row[a.QuestionID] = cellValue(a, choiceByID)
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := make([]string, 0, 1+len(questions))
	header = append(header, "respondent_id")
	for _, q := range questions {
		header = append(header, q.Text)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, resp := range respondents {
		rec := make([]string, 0, 1+len(questions))
		rec = append(rec, resp.SMID)
		for _, q := range questions {
			rec = append(rec, cells[resp.ID][q.ID])
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func cellValue(a *store.Answer, choices map[uint]*store.Choice) string {
	switch v := a.Value().(type) {
	case store.ChoiceAnswer:
		c, ok := choices[v.ChoiceID]
		if !ok {
			return ""
		}
		if c.Weight != nil {
			return strconv.Itoa(*c.Weight)
		}
		return c.Text
	case store.FreeText:
		return v.Text
	default:
		return ""
	}
}
