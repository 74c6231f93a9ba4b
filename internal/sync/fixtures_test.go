package sync

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"nps-sync-service/internal/config"
	"nps-sync-service/internal/database"
	"nps-sync-service/internal/store"
	"nps-sync-service/internal/surveymonkey"
)

func newTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	db, err := database.NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "sync.db"),
	})
	require.NoError(t, err)
	s := store.NewGormStore(db)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func weight(w int) *int { return &w }

func defaultClassifier() *NPSClassifier {
	return NewNPSClassifier(config.NPSConfig{
		HeadingKeywords: []string{"how likely", "recommend"},
		MinWeight:       0,
		MaxWeight:       10,
	})
}

// fakeSource serves a fixed survey keyed by exact name.
type fakeSource struct {
	mu        sync.Mutex
	surveys   map[string]string
	pages     []surveymonkey.Page
	responses []surveymonkey.Response

	structureErr error
	resolveCalls int
}

func (f *fakeSource) ResolveSurveyID(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	id, ok := f.surveys[name]
	if !ok {
		return "", &surveymonkey.NotFoundError{Name: name}
	}
	return id, nil
}

func (f *fakeSource) FetchStructure(ctx context.Context, surveyID string) ([]surveymonkey.Page, error) {
	if f.structureErr != nil {
		return nil, f.structureErr
	}
	return f.pages, nil
}

func (f *fakeSource) FetchRespondentIDs(ctx context.Context, surveyID string) ([]string, error) {
	ids := make([]string, 0, len(f.responses))
	for _, r := range f.responses {
		ids = append(ids, r.RespondentID)
	}
	return ids, nil
}

func (f *fakeSource) FetchResponses(ctx context.Context, surveyID string, respondentIDs []string) ([]surveymonkey.Response, error) {
	want := make(map[string]bool, len(respondentIDs))
	for _, id := range respondentIDs {
		want[id] = true
	}
	var out []surveymonkey.Response
	for _, r := range f.responses {
		if want[r.RespondentID] {
			out = append(out, r)
		}
	}
	return out, nil
}

const fixtureSurveyName = "Customer Pulse 2015"

// fixturePages has one descriptive block plus four answerable questions: an
// open-ended comment box, a single choice (3 options), a multi choice
// (3 options) and a weighted recommendation scale (5 options). That is 4
// questions and 11 choices once synced.
func fixturePages() []surveymonkey.Page {
	return []surveymonkey.Page{
		{
			PageID: "p1",
			Questions: []surveymonkey.Question{
				{
					QuestionID: "q0",
					Heading:    "Thanks for taking the time to answer a few questions.",
					Type:       surveymonkey.QuestionType{Family: "presentation", Subtype: "descriptive_text"},
				},
				{
					QuestionID: "q1",
					Heading:    "Any other comments?",
					Type:       surveymonkey.QuestionType{Family: "open_ended", Subtype: "essay"},
					Answers:    []surveymonkey.AnswerOption{{AnswerID: "q1-blank", Text: ""}},
				},
				{
					QuestionID: "q2",
					Heading:    "Which product do you use most?",
					Type:       surveymonkey.QuestionType{Family: "single_choice", Subtype: "vertical"},
					Answers: []surveymonkey.AnswerOption{
						{AnswerID: "p1", Text: "Widget"},
						{AnswerID: "p2", Text: "Gadget"},
						{AnswerID: "p3", Text: "Gizmo"},
					},
				},
			},
		},
		{
			PageID: "p2",
			Questions: []surveymonkey.Question{
				{
					QuestionID: "q3",
					Heading:    "Which features do you use?",
					Type:       surveymonkey.QuestionType{Family: "multiple_choice", Subtype: "vertical"},
					Answers: []surveymonkey.AnswerOption{
						{AnswerID: "f1", Text: "Reports"},
						{AnswerID: "f2", Text: "Alerts"},
						{AnswerID: "f3", Text: "Exports"},
					},
				},
				{
					QuestionID: "q4",
					Heading:    "How likely is it that you would recommend us to a friend?",
					Type:       surveymonkey.QuestionType{Family: "single_choice", Subtype: "menu"},
					Answers: []surveymonkey.AnswerOption{
						{AnswerID: "n0", Text: "0 - Not at all likely", Weight: weight(0)},
						{AnswerID: "n6", Text: "6", Weight: weight(6)},
						{AnswerID: "n7", Text: "7", Weight: weight(7)},
						{AnswerID: "n9", Text: "9", Weight: weight(9)},
						{AnswerID: "n10", Text: "10 - Extremely likely", Weight: weight(10)},
					},
				},
			},
		},
	}
}

func text(s string) surveymonkey.Answer { return surveymonkey.FreeText{Text: s} }

func row(ref string) surveymonkey.Answer {
	return surveymonkey.ScaleResponse{ChoiceRef: ref, Layout: surveymonkey.LayoutRow}
}

func col(ref string) surveymonkey.Answer {
	return surveymonkey.ScaleResponse{ChoiceRef: ref, Layout: surveymonkey.LayoutColumn}
}

func answered(qid string, answers ...surveymonkey.Answer) surveymonkey.QuestionResponse {
	return surveymonkey.QuestionResponse{QuestionID: qid, Answers: answers}
}

// fixtureResponses holds 5 respondents and 26 answers. On the recommendation
// question there are 2 promoters (10, 9), 1 passive (7) and 2 detractors
// (0, 6).
func fixtureResponses() []surveymonkey.Response {
	return []surveymonkey.Response{
		{RespondentID: "r1", Questions: []surveymonkey.QuestionResponse{
			answered("q1", text("Survey taker 1")),
			answered("q2", row("p1")),
			answered("q3", row("f1"), row("f2")),
			answered("q4", row("n10")),
		}},
		{RespondentID: "r2", Questions: []surveymonkey.QuestionResponse{
			answered("q1", text("Survey taker 2")),
			answered("q2", row("p2")),
			answered("q3", row("f1"), row("f2"), row("f3")),
			answered("q4", col("n9")),
		}},
		{RespondentID: "r3", Questions: []surveymonkey.QuestionResponse{
			answered("q1", text("Survey taker 3")),
			answered("q2", row("p3")),
			answered("q3", row("f2")),
			answered("q4", row("n0")),
		}},
		{RespondentID: "r4", Questions: []surveymonkey.QuestionResponse{
			answered("q1", text("Survey taker 4")),
			answered("q2", row("p1")),
			answered("q3", row("f1"), row("f3")),
			answered("q4", row("n7")),
		}},
		{RespondentID: "r5", Questions: []surveymonkey.QuestionResponse{
			answered("q1", text("Survey taker 5")),
			answered("q2", row("p2")),
			answered("q3", row("f1"), row("f2"), row("f3")),
			answered("q4", row("n6")),
		}},
	}
}

func newFixtureSource() *fakeSource {
	return &fakeSource{
		surveys:   map[string]string{fixtureSurveyName: "71175037"},
		pages:     fixturePages(),
		responses: fixtureResponses(),
	}
}
