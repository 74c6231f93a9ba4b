// Package nps computes Net Promoter Score figures from stored answers.
//
// Ratings are bucketed by the weight of the chosen option: 9-10 promoters,
// 7-8 passives, 0-6 detractors. Survey totals add up every question flagged
// as an NPS question. The respondent total is the sum of per-question
// respondent counts, so a respondent who answered two NPS questions is
// counted twice.
package nps

import (
	"context"
	"math"

	"nps-sync-service/internal/store"
)

type Class int

const (
	Unclassified Class = iota
	Detractor
	Passive
	Promoter
)

func (c Class) String() string {
	switch c {
	case Detractor:
		return "detractor"
	case Passive:
		return "passive"
	case Promoter:
		return "promoter"
	default:
		return "unclassified"
	}
}

var (
	PromoterWeights  = []int{9, 10}
	PassiveWeights   = []int{7, 8}
	DetractorWeights = []int{0, 1, 2, 3, 4, 5, 6}
)

// Classify buckets a rating weight.
func Classify(weight int) Class {
	switch {
	case weight >= 9 && weight <= 10:
		return Promoter
	case weight >= 7 && weight <= 8:
		return Passive
	case weight >= 0 && weight <= 6:
		return Detractor
	default:
		return Unclassified
	}
}

type QuestionCounts struct {
	QuestionID  uint  `json:"question_id"`
	Promoters   int64 `json:"promoters_count"`
	Passives    int64 `json:"passives_count"`
	Detractors  int64 `json:"detractors_count"`
	Respondents int64 `json:"respondent_count"`
}

// Report is the survey level aggregate. The proportions and the score are nil
// when the survey has no NPS question or no NPS respondent.
type Report struct {
	NPSQuestions     int              `json:"nps_question_count"`
	Questions        []QuestionCounts `json:"questions"`
	RespondentCount  int64            `json:"nps_respondent_count"`
	PromotersCount   int64            `json:"promoters_count"`
	PassivesCount    int64            `json:"passives_count"`
	DetractorsCount  int64            `json:"detractors_count"`
	PromotersProp    *int             `json:"promoters_prop"`
	PassivesProp     *int             `json:"passives_prop"`
	DetractorsProp   *int             `json:"detractors_prop"`
	NetPromoterScore *int             `json:"net_promoter_score"`
}

// Aggregate sums per-question counts into a Report. The result does not
// depend on the order of counts.
func Aggregate(counts []QuestionCounts) Report {
	r := Report{
		NPSQuestions: len(counts),
		Questions:    counts,
	}
	for _, c := range counts {
		r.PromotersCount += c.Promoters
		r.PassivesCount += c.Passives
		r.DetractorsCount += c.Detractors
		r.RespondentCount += c.Respondents
	}
	if len(counts) == 0 || r.RespondentCount == 0 {
		return r
	}

	total := float64(r.RespondentCount)
	r.PromotersProp = percent(float64(r.PromotersCount) / total)
	r.PassivesProp = percent(float64(r.PassivesCount) / total)
	r.DetractorsProp = percent(float64(r.DetractorsCount) / total)
	r.NetPromoterScore = percent(float64(r.PromotersCount)/total - float64(r.DetractorsCount)/total)
	return r
}

// percent rounds half away from zero.
func percent(ratio float64) *int {
	v := int(math.Round(ratio * 100))
	return &v
}

// ChoiceShare is the share of a question's respondents that picked a choice,
// 0 when nobody answered the question.
func ChoiceShare(selected, respondents int64) float64 {
	if respondents == 0 {
		return 0
	}
	return float64(selected) / float64(respondents)
}

type Store interface {
	ListNPSQuestions(ctx context.Context, surveyID uint) ([]*store.Question, error)
	CountAnswersByWeight(ctx context.Context, questionID uint, weights []int) (int64, error)
	CountQuestionRespondents(ctx context.Context, questionID uint) (int64, error)
}

type Engine struct {
	store Store
}

func NewEngine(s Store) *Engine {
	return &Engine{store: s}
}

// QuestionCounts returns nil for a question not flagged as NPS.
func (e *Engine) QuestionCounts(ctx context.Context, q *store.Question) (*QuestionCounts, error) {
	if !q.NPS {
		return nil, nil
	}
	promoters, err := e.store.CountAnswersByWeight(ctx, q.ID, PromoterWeights)
	if err != nil {
		return nil, err
	}
	passives, err := e.store.CountAnswersByWeight(ctx, q.ID, PassiveWeights)
	if err != nil {
		return nil, err
	}
	detractors, err := e.store.CountAnswersByWeight(ctx, q.ID, DetractorWeights)
	if err != nil {
		return nil, err
	}
	respondents, err := e.store.CountQuestionRespondents(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return &QuestionCounts{
		QuestionID:  q.ID,
		Promoters:   promoters,
		Passives:    passives,
		Detractors:  detractors,
		Respondents: respondents,
	}, nil
}

func (e *Engine) SurveyReport(ctx context.Context, surveyID uint) (*Report, error) {
	questions, err := e.store.ListNPSQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	counts := make([]QuestionCounts, 0, len(questions))
	for _, q := range questions {
		c, err := e.QuestionCounts(ctx, q)
		if err != nil {
			return nil, err
		}
		if c != nil {
			counts = append(counts, *c)
		}
	}
	r := Aggregate(counts)
	return &r, nil
}
