package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nps-sync-service/internal/export"
	"nps-sync-service/internal/nps"
	"nps-sync-service/internal/store"
)

type surveySummary struct {
	ID               uint      `json:"id"`
	Name             string    `json:"name"`
	SMID             *string   `json:"sm_id"`
	LastUpdated      time.Time `json:"last_updated"`
	ErrorMessage     *string   `json:"error_message"`
	RespondentCount  int64     `json:"respondent_count"`
	QuestionCount    int64     `json:"question_count"`
	NetPromoterScore *int      `json:"net_promoter_score"`
}

type choiceView struct {
	ID            uint    `json:"id"`
	SMID          string  `json:"sm_id"`
	Text          string  `json:"text"`
	Weight        *int    `json:"weight"`
	AnswerCount   int64   `json:"answer_count"`
	RawPercentage float64 `json:"raw_percentage"`
}

type questionView struct {
	ID              uint                `json:"id"`
	SMID            string              `json:"sm_id"`
	Text            string              `json:"text"`
	Summary         string              `json:"summary"`
	OpenEnded       bool                `json:"open_ended"`
	NPS             bool                `json:"nps"`
	RespondentCount int64               `json:"respondent_count"`
	Counts          *nps.QuestionCounts `json:"nps_counts,omitempty"`
	Choices         []choiceView        `json:"choices"`
}

type surveyDetail struct {
	surveySummary
	ChoiceCount int64          `json:"choice_count"`
	AnswerCount int64          `json:"answer_count"`
	Report      *nps.Report    `json:"nps"`
	Questions   []questionView `json:"questions"`
}

type createSurveyRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type updateQuestionRequest struct {
	NPS *bool `json:"nps" validate:"required"`
}

func (h *Handler) summarize(ctx context.Context, s *store.Survey) (*surveySummary, *nps.Report, error) {
	respondents, err := h.store.CountRespondents(ctx, s.ID)
	if err != nil {
		return nil, nil, err
	}
	questions, err := h.store.CountQuestions(ctx, s.ID)
	if err != nil {
		return nil, nil, err
	}
	report, err := h.engine.SurveyReport(ctx, s.ID)
	if err != nil {
		return nil, nil, err
	}
	return &surveySummary{
		ID:               s.ID,
		Name:             s.Name,
		SMID:             s.SMID,
		LastUpdated:      s.LastUpdated,
		ErrorMessage:     s.ErrorMessage,
		RespondentCount:  respondents,
		QuestionCount:    questions,
		NetPromoterScore: report.NetPromoterScore,
	}, report, nil
}

func (h *Handler) ListSurveys(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.store.ListSurveys(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	out := make([]*surveySummary, 0, len(surveys))
	for _, s := range surveys {
		sum, _, err := h.summarize(r.Context(), s)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		out = append(out, sum)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req createSurveyRequest
	if err := h.decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	survey, err := h.store.CreateSurvey(r.Context(), req.Name)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, survey)
}

func (h *Handler) GetSurvey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	survey, err := h.store.GetSurvey(ctx, id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	detail, err := h.detail(ctx, survey)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) detail(ctx context.Context, survey *store.Survey) (*surveyDetail, error) {
	sum, report, err := h.summarize(ctx, survey)
	if err != nil {
		return nil, err
	}
	choices, err := h.store.CountChoices(ctx, survey.ID)
	if err != nil {
		return nil, err
	}
	answers, err := h.store.CountAnswers(ctx, survey.ID)
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]nps.QuestionCounts, len(report.Questions))
	for _, c := range report.Questions {
		counts[c.QuestionID] = c
	}

	questions, err := h.store.ListQuestions(ctx, survey.ID)
	if err != nil {
		return nil, err
	}
	views := make([]questionView, 0, len(questions))
	for _, q := range questions {
		view, err := h.questionView(ctx, q)
		if err != nil {
			return nil, err
		}
		if c, ok := counts[q.ID]; ok {
			view.Counts = &c
		}
		views = append(views, *view)
	}

	return &surveyDetail{
		surveySummary: *sum,
		ChoiceCount:   choices,
		AnswerCount:   answers,
		Report:        report,
		Questions:     views,
	}, nil
}

func (h *Handler) questionView(ctx context.Context, q *store.Question) (*questionView, error) {
	respondents, err := h.store.CountQuestionRespondents(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	choices, err := h.store.ListChoices(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	view := &questionView{
		ID:              q.ID,
		SMID:            q.SMID,
		Text:            q.Text,
		Summary:         q.String(),
		OpenEnded:       q.OpenEnded,
		NPS:             q.NPS,
		RespondentCount: respondents,
		Choices:         make([]choiceView, 0, len(choices)),
	}
	for _, c := range choices {
		picked, err := h.store.CountChoiceAnswers(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		view.Choices = append(view.Choices, choiceView{
			ID:            c.ID,
			SMID:          c.SMID,
			Text:          c.Text,
			Weight:        c.Weight,
			AnswerCount:   picked,
			RawPercentage: nps.ChoiceShare(picked, respondents),
		})
	}
	return view, nil
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.GetSurvey(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}

	res, err := h.syncManager.SyncSurvey(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			// Anything missing past this point is a local lookup failure.
			status = http.StatusConflict
		}
		body := errorBody{Error: err.Error()}
		if res != nil {
			body.Result = res
		}
		respondJSON(w, status, body)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) ExportSurvey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.GetSurvey(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	b, err := export.SurveyCSV(r.Context(), h.store, id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"survey-%d.csv\"", id))
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func (h *Handler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateQuestionRequest
	if err := h.decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.store.SetQuestionNPS(r.Context(), id, *req.NPS)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": h.syncManager.GetStatus()})
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50, 500)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = 50
	}
	offset, err := queryInt(r, "offset", 0, 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	history, err := h.store.ListSyncHistory(r.Context(), limit, offset)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}
