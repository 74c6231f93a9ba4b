package surveymonkey

import (
	"encoding/json"
	"fmt"
)

type SurveyRef struct {
	SurveyID string `json:"survey_id"`
	Title    string `json:"title,omitempty"`
}

type Page struct {
	PageID    string     `json:"page_id"`
	Heading   string     `json:"heading"`
	Questions []Question `json:"questions"`
}

type Question struct {
	QuestionID string         `json:"question_id"`
	Heading    string         `json:"heading"`
	Type       QuestionType   `json:"type"`
	Answers    []AnswerOption `json:"answers"`
}

type QuestionType struct {
	Family  string `json:"family"`
	Subtype string `json:"subtype"`
}

const (
	FamilyOpenEnded        = "open_ended"
	SubtypeDescriptiveText = "descriptive_text"
)

// IsDescriptive reports instructional text that never takes an answer.
func (q Question) IsDescriptive() bool {
	return q.Type.Subtype == SubtypeDescriptiveText
}

func (q Question) IsOpenEnded() bool {
	return q.Type.Family == FamilyOpenEnded
}

// AnswerOption is a selectable option of a question. Weight is set for rating
// scales only.
type AnswerOption struct {
	AnswerID string `json:"answer_id"`
	Text     string `json:"text"`
	Weight   *int   `json:"weight,omitempty"`
	Type     string `json:"type,omitempty"`
}

type Response struct {
	RespondentID string             `json:"respondent_id"`
	Questions    []QuestionResponse `json:"questions"`
}

type QuestionResponse struct {
	QuestionID string
	Answers    []Answer
}

// Answer is either FreeText or ScaleResponse. The shape of the raw payload is
// inspected once, while decoding.
type Answer interface {
	isAnswer()
}

type FreeText struct {
	Text string
}

type Layout string

const (
	LayoutRow    Layout = "row"
	LayoutColumn Layout = "col"
)

// ScaleResponse references an answer option by its remote ID.
type ScaleResponse struct {
	ChoiceRef string
	Layout    Layout
}

func (FreeText) isAnswer()      {}
func (ScaleResponse) isAnswer() {}

type rawAnswer struct {
	Text *string `json:"text,omitempty"`
	Row  string  `json:"row,omitempty"`
	Col  string  `json:"col,omitempty"`
}

// UnmarshalJSON records the "text" key whenever it is present, so a null
// text still marks a free-text answer.
func (r *rawAnswer) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*r = rawAnswer{}
	if v, ok := fields["text"]; ok {
		var text *string
		if err := json.Unmarshal(v, &text); err != nil {
			return fmt.Errorf("answer text: %w", err)
		}
		if text == nil {
			text = new(string)
		}
		r.Text = text
	}
	for key, dst := range map[string]*string{"row": &r.Row, "col": &r.Col} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("answer %s: %w", key, err)
		}
	}
	return nil
}

// classify picks the answer variant. A "text" key wins; otherwise a column
// reference (matrix layouts) is preferred over the row reference.
func (r rawAnswer) classify() Answer {
	if r.Text != nil {
		return FreeText{Text: *r.Text}
	}
	if r.Col != "" {
		return ScaleResponse{ChoiceRef: r.Col, Layout: LayoutColumn}
	}
	return ScaleResponse{ChoiceRef: r.Row, Layout: LayoutRow}
}

func (q *QuestionResponse) UnmarshalJSON(b []byte) error {
	var raw struct {
		QuestionID string      `json:"question_id"`
		Answers    []rawAnswer `json:"answers"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	q.QuestionID = raw.QuestionID
	q.Answers = make([]Answer, 0, len(raw.Answers))
	for _, a := range raw.Answers {
		q.Answers = append(q.Answers, a.classify())
	}
	return nil
}

func (q QuestionResponse) MarshalJSON() ([]byte, error) {
	raw := struct {
		QuestionID string      `json:"question_id"`
		Answers    []rawAnswer `json:"answers"`
	}{QuestionID: q.QuestionID, Answers: make([]rawAnswer, 0, len(q.Answers))}
	for _, a := range q.Answers {
		switch v := a.(type) {
		case FreeText:
			text := v.Text
			raw.Answers = append(raw.Answers, rawAnswer{Text: &text})
		case ScaleResponse:
			if v.Layout == LayoutColumn {
				raw.Answers = append(raw.Answers, rawAnswer{Col: v.ChoiceRef})
			} else {
				raw.Answers = append(raw.Answers, rawAnswer{Row: v.ChoiceRef})
			}
		}
	}
	return json.Marshal(raw)
}
