package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nps-sync-service/internal/config"
	"nps-sync-service/internal/database"
	"nps-sync-service/internal/nps"
	"nps-sync-service/internal/store"
	"nps-sync-service/internal/surveymonkey"
	"nps-sync-service/internal/sync"
)

func weight(w int) *int { return &w }

type fakeSource struct {
	fail error
	// firstRef overrides the option r1 picked, to reference an unknown one.
	firstRef string
}

func (f *fakeSource) ResolveSurveyID(ctx context.Context, name string) (string, error) {
	if name != "Pulse" {
		return "", &surveymonkey.NotFoundError{Name: name}
	}
	return "900", nil
}

func (f *fakeSource) FetchStructure(ctx context.Context, surveyID string) ([]surveymonkey.Page, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	return []surveymonkey.Page{{PageID: "p", Questions: []surveymonkey.Question{
		{
			QuestionID: "q1",
			Heading:    "How likely are you to recommend us to a colleague?",
			Type:       surveymonkey.QuestionType{Family: "single_choice", Subtype: "menu"},
			Answers: []surveymonkey.AnswerOption{
				{AnswerID: "n0", Text: "0", Weight: weight(0)},
				{AnswerID: "n9", Text: "9", Weight: weight(9)},
				{AnswerID: "n10", Text: "10", Weight: weight(10)},
			},
		},
		{
			QuestionID: "q2",
			Heading:    "Anything else?",
			Type:       surveymonkey.QuestionType{Family: "open_ended", Subtype: "essay"},
		},
	}}}, nil
}

func (f *fakeSource) FetchRespondentIDs(ctx context.Context, surveyID string) ([]string, error) {
	return []string{"r1", "r2", "r3"}, nil
}

func (f *fakeSource) FetchResponses(ctx context.Context, surveyID string, ids []string) ([]surveymonkey.Response, error) {
	scale := func(ref string) surveymonkey.QuestionResponse {
		return surveymonkey.QuestionResponse{QuestionID: "q1", Answers: []surveymonkey.Answer{
			surveymonkey.ScaleResponse{ChoiceRef: ref, Layout: surveymonkey.LayoutRow},
		}}
	}
	first := "n10"
	if f.firstRef != "" {
		first = f.firstRef
	}
	return []surveymonkey.Response{
		{RespondentID: "r1", Questions: []surveymonkey.QuestionResponse{
			scale(first),
			{QuestionID: "q2", Answers: []surveymonkey.Answer{surveymonkey.FreeText{Text: "Keep it up"}}},
		}},
		{RespondentID: "r2", Questions: []surveymonkey.QuestionResponse{scale("n9")}},
		{RespondentID: "r3", Questions: []surveymonkey.QuestionResponse{scale("n0")}},
	}, nil
}

type testEnv struct {
	store   *store.GormStore
	source  *fakeSource
	handler http.Handler
}

func newTestEnv(t *testing.T, cfg config.ServerConfig) *testEnv {
	t.Helper()
	db, err := database.NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	st := store.NewGormStore(db)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	src := &fakeSource{}
	classifier := sync.NewNPSClassifier(config.NPSConfig{HeadingKeywords: []string{"recommend"}, MaxWeight: 10})
	manager := sync.NewManager(st, sync.NewSyncer(src, st, classifier), 1)
	h := NewHandler(st, manager, nps.NewEngine(st), cfg)
	return &testEnv{store: st, source: src, handler: h.Routes()}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{AuthToken: "secret"})
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{AuthToken: "secret"})

	rec := env.do(t, http.MethodGet, "/api/v1/surveys", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/surveys", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/surveys", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorsMiddleware(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{CorsOrigins: []string{"https://dash.example.com"}})

	rec := env.do(t, http.MethodOptions, "/api/v1/surveys", "", "Origin", "https://dash.example.com")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, http.MethodGet, "/health", "", "Origin", "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateSurvey(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/v1/surveys", `{"name": "Pulse"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created store.Survey
	decode(t, rec, &created)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Pulse", created.Name)

	rec = env.do(t, http.MethodPost, "/api/v1/surveys", `{"name": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/surveys", `{"title": "Pulse"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncAndPresent(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	survey, err := env.store.CreateSurvey(context.Background(), "Pulse")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/v1/surveys/1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res sync.Result
	decode(t, rec, &res)
	assert.Equal(t, store.SyncSuccess, res.Status)
	assert.Equal(t, survey.ID, res.SurveyID)
	require.NotNil(t, res.Responses)
	assert.Equal(t, 3, res.Responses.RespondentsAdded)

	rec = env.do(t, http.MethodGet, "/api/v1/surveys", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []surveySummary
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].RespondentCount)
	assert.Equal(t, int64(2), list[0].QuestionCount)
	require.NotNil(t, list[0].NetPromoterScore)
	// 2/3 promoters - 1/3 detractors
	assert.Equal(t, 33, *list[0].NetPromoterScore)

	rec = env.do(t, http.MethodGet, "/api/v1/surveys/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		surveySummary
		ChoiceCount int64          `json:"choice_count"`
		AnswerCount int64          `json:"answer_count"`
		Report      nps.Report     `json:"nps"`
		Questions   []questionView `json:"questions"`
	}
	decode(t, rec, &detail)
	assert.Equal(t, int64(3), detail.ChoiceCount)
	assert.Equal(t, int64(4), detail.AnswerCount)
	assert.Equal(t, int64(2), detail.Report.PromotersCount)
	require.Len(t, detail.Questions, 2)

	// Ordered by text.
	assert.Equal(t, "Anything else?", detail.Questions[0].Text)
	rating := detail.Questions[1]
	assert.True(t, rating.NPS)
	assert.Equal(t, "How likely are you to recommen...", rating.Summary)
	require.NotNil(t, rating.Counts)
	assert.Equal(t, int64(3), rating.Counts.Respondents)
	require.Len(t, rating.Choices, 3)
	for _, c := range rating.Choices {
		assert.Equal(t, int64(1), c.AnswerCount)
		assert.InDelta(t, 1.0/3.0, c.RawPercentage, 1e-9)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/surveys/1/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "r1,Keep it up,10")

	rec = env.do(t, http.MethodGet, "/api/v1/sync/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []store.SyncHistory
	decode(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, res.HistoryID, history[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/sync/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "idle"}`, rec.Body.String())
}

func TestSyncErrors(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})

	rec := env.do(t, http.MethodPost, "/api/v1/surveys/42/sync", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/surveys/abc/sync", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := env.store.CreateSurvey(context.Background(), "Pulse")
	require.NoError(t, err)
	env.source.fail = &surveymonkey.TransportError{Endpoint: "details", StatusCode: 500, Err: errors.New("upstream")}

	rec = env.do(t, http.MethodPost, "/api/v1/surveys/1/sync", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Error  string      `json:"error"`
		Result sync.Result `json:"result"`
	}
	decode(t, rec, &body)
	assert.Contains(t, body.Error, "upstream")
	assert.Equal(t, store.SyncFailed, body.Result.Status)
}

func TestSyncLookupFailureIsConflict(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	_, err := env.store.CreateSurvey(context.Background(), "Pulse")
	require.NoError(t, err)
	env.source.firstRef = "n5"

	rec := env.do(t, http.MethodPost, "/api/v1/surveys/1/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "choice")
}

func TestSyncNotFoundSurveyName(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	_, err := env.store.CreateSurvey(context.Background(), "Does not exist")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/v1/surveys/1/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res sync.Result
	decode(t, rec, &res)
	assert.Equal(t, store.SyncNotFound, res.Status)

	rec = env.do(t, http.MethodGet, "/api/v1/surveys/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail surveySummary
	decode(t, rec, &detail)
	require.NotNil(t, detail.ErrorMessage)
	assert.Contains(t, *detail.ErrorMessage, "Does not exist")
	assert.Nil(t, detail.NetPromoterScore)
}

func TestUpdateQuestion(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	ctx := context.Background()
	survey, err := env.store.CreateSurvey(ctx, "Pulse")
	require.NoError(t, err)
	q, _, err := env.store.GetOrCreateQuestion(ctx, store.QuestionKey{SurveyID: survey.ID, SMID: "q"})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPatch, "/api/v1/questions/1", `{"nps": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := env.store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.True(t, got.NPS)

	rec = env.do(t, http.MethodPatch, "/api/v1/questions/1", `{"nps": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err = env.store.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.False(t, got.NPS)

	rec = env.do(t, http.MethodPatch, "/api/v1/questions/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/questions/77", `{"nps": true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncHistoryRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t, config.ServerConfig{})
	rec := env.do(t, http.MethodGet, "/api/v1/sync/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(sync.ErrAlreadyRunning))
	assert.Equal(t, http.StatusNotFound, statusFor(&store.LookupError{Kind: "survey", Key: "x"}))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusBadGateway, statusFor(&surveymonkey.TransportError{Err: errors.New("x")}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}
