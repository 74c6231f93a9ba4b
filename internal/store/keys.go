package store

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidAnswer = errors.New("answer must carry exactly one of choice or text")
)

// LookupError reports a keyed lookup that found nothing.
type LookupError struct {
	Kind string
	Key  string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *LookupError) Unwrap() error { return ErrNotFound }

type QuestionKey struct {
	SurveyID uint
	SMID     string
}

type ChoiceKey struct {
	QuestionID uint
	SMID       string
	Text       string
	Weight     *int
}

func (k ChoiceKey) String() string {
	w := "null"
	if k.Weight != nil {
		w = strconv.Itoa(*k.Weight)
	}
	return fmt.Sprintf("(question=%d sm_id=%s text=%q weight=%s)", k.QuestionID, k.SMID, k.Text, w)
}

type RespondentKey struct {
	SurveyID uint
	SMID     string
}

// AnswerValue is either FreeText or ChoiceAnswer.
type AnswerValue interface {
	answerValue()
}

type FreeText struct {
	Text string
}

type ChoiceAnswer struct {
	ChoiceID uint
}

func (FreeText) answerValue()     {}
func (ChoiceAnswer) answerValue() {}

type AnswerKey struct {
	QuestionID   uint
	RespondentID uint
	Value        AnswerValue
}

func (k AnswerKey) validate() error {
	switch v := k.Value.(type) {
	case FreeText:
		return nil
	case ChoiceAnswer:
		if v.ChoiceID == 0 {
			return ErrInvalidAnswer
		}
		return nil
	default:
		return ErrInvalidAnswer
	}
}

// Truncate shortens display strings to 30 characters plus an ellipsis.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) > 30 {
		return string(r[:30]) + "..."
	}
	return s
}
