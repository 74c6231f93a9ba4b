package sync

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"nps-sync-service/internal/logger"
)

// WorkerPool fans survey IDs out to a fixed number of workers. Each survey is
// still synced by a single goroutine.
type WorkerPool struct {
	workers []*Worker
	jobs    chan uint
	handle  func(ctx context.Context, surveyID uint) error
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

func NewWorkerPool(ctx context.Context, size int, handle func(ctx context.Context, surveyID uint) error) *WorkerPool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers: make([]*Worker, size),
		jobs:    make(chan uint),
		handle:  handle,
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < size; i++ {
		pool.workers[i] = newWorker(i, pool)
	}

	return pool
}

func (p *WorkerPool) Start() {
	logger.Log.Debug("Starting worker pool", zap.Int("workers", len(p.workers)))
	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}
}

// Submit queues a survey. It returns false once the pool's context is done.
func (p *WorkerPool) Submit(surveyID uint) bool {
	select {
	case p.jobs <- surveyID:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Stop waits for queued work to finish and returns the joined errors.
func (p *WorkerPool) Stop() error {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
	logger.Log.Debug("Stopped worker pool")

	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.errs...)
}

func (p *WorkerPool) record(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

type Worker struct {
	id   int
	pool *WorkerPool
}

func newWorker(id int, pool *WorkerPool) *Worker {
	return &Worker{
		id:   id,
		pool: pool,
	}
}

func (w *Worker) run() {
	defer w.pool.wg.Done()

	for {
		select {
		case surveyID, ok := <-w.pool.jobs:
			if !ok {
				return
			}
			if err := w.pool.handle(w.pool.ctx, surveyID); err != nil {
				logger.Log.Debug("Worker job failed",
					zap.Int("workerID", w.id),
					zap.Uint("survey_id", surveyID),
					zap.Error(err),
				)
				w.pool.record(err)
			}

		case <-w.pool.ctx.Done():
			return
		}
	}
}
