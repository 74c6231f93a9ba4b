package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nps-sync-service/internal/logger"
	"nps-sync-service/internal/store"
)

// Manager runs syncs, one at a time per survey, and records each run in the
// sync history.
type Manager struct {
	store   store.Store
	syncer  *Syncer
	workers int

	mu      sync.Mutex
	locks   map[uint]*sync.Mutex
	running int
}

func NewManager(st store.Store, syncer *Syncer, workers int) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		store:   st,
		syncer:  syncer,
		workers: workers,
		locks:   make(map[uint]*sync.Mutex),
	}
}

func (m *Manager) surveyLock(id uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) setRunning(delta int) {
	m.mu.Lock()
	m.running += delta
	m.mu.Unlock()
}

func (m *Manager) GetStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running > 0 {
		return StatusRunning
	}
	return StatusIdle
}

// SyncSurvey runs detail sync and then response sync for one survey. It
// returns ErrAlreadyRunning if a sync of the same survey is in progress.
func (m *Manager) SyncSurvey(ctx context.Context, surveyID uint) (*Result, error) {
	lock := m.surveyLock(surveyID)
	if !lock.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer lock.Unlock()

	m.setRunning(1)
	defer m.setRunning(-1)

	survey, err := m.store.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	history := &store.SyncHistory{
		ID:        uuid.New().String(),
		SurveyID:  survey.ID,
		StartedAt: time.Now(),
		Status:    store.SyncRunning,
	}
	if err := m.store.CreateSyncHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("failed to create sync history: %w", err)
	}

	logger.Log.Info("Starting survey sync",
		zap.Uint("survey_id", survey.ID),
		zap.String("name", survey.Name),
		zap.String("history_id", history.ID),
	)

	res := &Result{HistoryID: history.ID, SurveyID: survey.ID}
	runErr := m.run(ctx, survey, res)

	switch {
	case runErr != nil:
		res.Status = store.SyncFailed
		res.Error = runErr.Error()
		msg := runErr.Error()
		history.ErrorMessage = &msg
	case res.Details != nil && res.Details.NotFound:
		res.Status = store.SyncNotFound
		history.ErrorMessage = survey.ErrorMessage
	default:
		res.Status = store.SyncSuccess
	}
	history.Status = res.Status
	if res.Details != nil {
		history.QuestionsCreated = res.Details.QuestionsCreated
		history.ChoicesCreated = res.Details.ChoicesCreated
	}
	if res.Responses != nil {
		history.RespondentsAdded = res.Responses.RespondentsAdded
		history.AnswersCreated = res.Responses.AnswersCreated
	}
	completed := time.Now()
	history.CompletedAt = &completed

	// The run may have been cancelled; the history row is still written.
	if err := m.store.UpdateSyncHistory(context.WithoutCancel(ctx), history); err != nil {
		logger.Log.Error("Failed to update sync history", zap.String("history_id", history.ID), zap.Error(err))
	}

	if runErr != nil {
		logger.Log.Error("Survey sync failed",
			zap.Uint("survey_id", survey.ID),
			zap.Duration("elapsed", completed.Sub(history.StartedAt)),
			zap.Error(runErr),
		)
		return res, runErr
	}
	logger.Log.Info("Finished survey sync",
		zap.Uint("survey_id", survey.ID),
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", completed.Sub(history.StartedAt)),
	)
	return res, nil
}

func (m *Manager) run(ctx context.Context, survey *store.Survey, res *Result) error {
	details, err := m.syncer.SyncDetails(ctx, survey)
	res.Details = details
	if err != nil {
		return err
	}
	if details.NotFound {
		return nil
	}

	responses, err := m.syncer.SyncResponses(ctx, survey)
	res.Responses = responses
	return err
}

// SyncAll syncs every survey on the worker pool and joins the failures.
// Surveys already being synced are skipped.
func (m *Manager) SyncAll(ctx context.Context) error {
	surveys, err := m.store.ListSurveys(ctx)
	if err != nil {
		return err
	}

	pool := NewWorkerPool(ctx, m.workers, func(ctx context.Context, surveyID uint) error {
		_, err := m.SyncSurvey(ctx, surveyID)
		if errors.Is(err, ErrAlreadyRunning) {
			logger.Log.Info("Sync already running, skipping survey", zap.Uint("survey_id", surveyID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("survey %d: %w", surveyID, err)
		}
		return nil
	})
	pool.Start()
	for _, s := range surveys {
		if !pool.Submit(s.ID) {
			break
		}
	}
	return pool.Stop()
}
