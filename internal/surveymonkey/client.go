package surveymonkey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"nps-sync-service/internal/config"
	"nps-sync-service/internal/logger"
)

const (
	surveyListEndpoint     = "/v2/surveys/get_survey_list"
	surveyDetailsEndpoint  = "/v2/surveys/get_survey_details"
	respondentListEndpoint = "/v2/surveys/get_respondent_list"
	responsesEndpoint      = "/v2/surveys/get_responses"
)

// MatchPolicy decides which remote survey a name resolves to.
type MatchPolicy string

const (
	// MatchFirst takes the first survey the list endpoint returns. The
	// service does not define that order, so with several matches the pick is
	// nondeterministic.
	MatchFirst MatchPolicy = "first"
	// MatchExact takes the survey whose title equals the name, ignoring case.
	MatchExact MatchPolicy = "exact"
	// MatchUnique fails with AmbiguousError unless exactly one survey matches.
	MatchUnique MatchPolicy = "unique"
)

type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	apiKey      string
	matchPolicy MatchPolicy
	batchSize   int
}

func NewClient(cfg config.RemoteConfig) *Client {
	policy := MatchPolicy(cfg.MatchPolicy)
	if policy == "" {
		policy = MatchFirst
	}
	batch := cfg.ResponsesBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		apiKey:      cfg.APIKey,
		matchPolicy: policy,
		batchSize:   batch,
	}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Errmsg string          `json:"errmsg"`
}

func (c *Client) post(ctx context.Context, endpoint string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}

	uri := c.baseURL + endpoint + "?" + url.Values{"api_key": {c.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Authorization", "bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", bytes.TrimSpace(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if env.Status != 0 {
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("api status %d: %s", env.Status, env.Errmsg)}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: errors.New("response has no data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// ListSurveys returns the surveys whose title contains title.
func (c *Client) ListSurveys(ctx context.Context, title string) ([]SurveyRef, error) {
	var data struct {
		Surveys []SurveyRef `json:"surveys"`
	}
	body := map[string]interface{}{
		"title":  title,
		"fields": []string{"title"},
	}
	if err := c.post(ctx, surveyListEndpoint, body, &data); err != nil {
		return nil, err
	}
	return data.Surveys, nil
}

// ResolveSurveyID maps a survey name to its SurveyMonkey ID using the
// configured match policy.
func (c *Client) ResolveSurveyID(ctx context.Context, name string) (string, error) {
	surveys, err := c.ListSurveys(ctx, name)
	if err != nil {
		return "", err
	}
	ref, err := pick(c.matchPolicy, name, surveys)
	if err != nil {
		return "", err
	}
	return ref.SurveyID, nil
}

func pick(policy MatchPolicy, name string, surveys []SurveyRef) (SurveyRef, error) {
	if len(surveys) == 0 {
		return SurveyRef{}, &NotFoundError{Name: name}
	}

	switch policy {
	case MatchExact:
		for _, s := range surveys {
			if strings.EqualFold(strings.TrimSpace(s.Title), strings.TrimSpace(name)) {
				return s, nil
			}
		}
		return SurveyRef{}, &NotFoundError{Name: name}
	case MatchUnique:
		if len(surveys) > 1 {
			return SurveyRef{}, &AmbiguousError{Name: name, Matches: surveys}
		}
		return surveys[0], nil
	default:
		if len(surveys) > 1 {
			logger.Log.Warn("Several SurveyMonkey surveys match name, using the first returned",
				zap.String("name", name),
				zap.Int("matches", len(surveys)),
				zap.String("survey_id", surveys[0].SurveyID),
			)
		}
		return surveys[0], nil
	}
}

// FetchStructure returns the pages of questions and answer options.
func (c *Client) FetchStructure(ctx context.Context, surveyID string) ([]Page, error) {
	var data struct {
		Pages []Page `json:"pages"`
	}
	if err := c.post(ctx, surveyDetailsEndpoint, map[string]string{"survey_id": surveyID}, &data); err != nil {
		return nil, err
	}
	return data.Pages, nil
}

func (c *Client) FetchRespondentIDs(ctx context.Context, surveyID string) ([]string, error) {
	var data struct {
		Respondents []struct {
			RespondentID string `json:"respondent_id"`
		} `json:"respondents"`
	}
	if err := c.post(ctx, respondentListEndpoint, map[string]string{"survey_id": surveyID}, &data); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(data.Respondents))
	for _, r := range data.Respondents {
		ids = append(ids, r.RespondentID)
	}
	return ids, nil
}

// FetchResponses downloads responses for respondentIDs, batchSize IDs per
// request.
func (c *Client) FetchResponses(ctx context.Context, surveyID string, respondentIDs []string) ([]Response, error) {
	out := make([]Response, 0, len(respondentIDs))
	for start := 0; start < len(respondentIDs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(respondentIDs) {
			end = len(respondentIDs)
		}
		body := map[string]interface{}{
			"survey_id":      surveyID,
			"respondent_ids": respondentIDs[start:end],
		}
		var batch []Response
		if err := c.post(ctx, responsesEndpoint, body, &batch); err != nil {
			return nil, err
		}
		logger.Log.Debug("Fetched responses batch",
			zap.String("survey_id", surveyID),
			zap.Int("requested", end-start),
			zap.Int("received", len(batch)),
		)
		out = append(out, batch...)
	}
	return out, nil
}
