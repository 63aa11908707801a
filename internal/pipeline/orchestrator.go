package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/djsydney04/wrapshot/internal/chunker"
	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/extract"
	"github.com/djsydney04/wrapshot/internal/jobs"
)

var (
	// ErrQueueFull means the worker queue had no room; the job was marked FAILED.
	ErrQueueFull = errors.New("job queue is full")
	// ErrNoDocument means the request carried no document id.
	ErrNoDocument = errors.New("document id is required")
	// ErrStopped means Submit ran after Stop; the job was marked FAILED.
	ErrStopped = errors.New("orchestrator is stopped")
)

// Request is one breakdown run over a document's full text.
type Request struct {
	DocumentID string
	Title      string
	Text       string
	PageCount  int
}

// Orchestrator starts breakdown jobs and runs them on a worker pool.
type Orchestrator struct {
	store     *jobs.Store
	extractor *extract.Extractor
	queue     chan *Task
	log       *slog.Logger
	cfg       config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex // guards stopped and enqueueing
	stopped bool
}

func NewOrchestrator(cfg config.Config, store *jobs.Store, extractor *extract.Extractor, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		queue:     make(chan *Task, max(cfg.MaxQueueSize, 1)),
		log:       log,
		cfg:       cfg,
	}
}

// Launch starts the workers and the periodic staleness sweep. Workers run on
// ctx, not on any request context.
func (o *Orchestrator) Launch(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range max(o.cfg.WorkerCount, 1) {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-workerCtx.Done():
					return
				case task := <-o.queue:
					task.Run(workerCtx)
				}
			}
		}()
	}

	if o.cfg.SweepInterval <= 0 {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.sweep(workerCtx)
		ticker := time.NewTicker(o.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.sweep(workerCtx)
			}
		}
	}()
}

func (o *Orchestrator) sweep(ctx context.Context) {
	n, err := o.store.CancelAllStale(ctx, o.cfg.StaleTimeout)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Error("staleness sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		o.log.Warn("cancelled stale jobs", "count", n, "older_than", o.cfg.StaleTimeout.String())
	}
}

// Stop cancels running tasks, waits for the workers and fails whatever is
// still queued.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	for {
		select {
		case task := <-o.queue:
			task.fail(context.Background(), "shutdown before start")
		default:
			return
		}
	}
}

// Start sweeps stale jobs for the document, then creates a job and advances it
// to IN_PROGRESS. The returned Task does the work; pass it to Submit or call
// Run directly.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*jobs.Job, *Task, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		return nil, nil, ErrNoDocument
	}
	if strings.TrimSpace(chunker.Normalize(req.Text)) == "" {
		return nil, nil, chunker.ErrNoContent
	}

	log := o.log.With("doc_id", req.DocumentID)
	n, err := o.store.CancelStale(ctx, req.DocumentID, o.cfg.StaleTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("sweep stale jobs: %w", err)
	}
	if n > 0 {
		log.Warn("cancelled stale jobs", "count", n)
	}

	job, err := o.store.Create(ctx, req.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	job, err = o.store.MarkInProgress(ctx, job.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("start job: %w", err)
	}

	log.Info("breakdown started", "job_id", job.ID, "chars", len(req.Text), "page_count", req.PageCount)
	return job, o.newTask(job, req), nil
}

// Submit queues a task for the worker pool without blocking. A task that
// cannot be queued is failed before Submit returns.
func (o *Orchestrator) Submit(task *Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		task.fail(context.Background(), "shutdown before start")
		return ErrStopped
	}
	select {
	case o.queue <- task:
		return nil
	default:
		task.fail(context.Background(), "queue full")
		return fmt.Errorf("%w (%d)", ErrQueueFull, cap(o.queue))
	}
}

// Process starts a job and runs it on the calling goroutine, returning the
// final job record.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*jobs.Job, error) {
	job, task, err := o.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	task.Run(ctx)
	return o.store.Get(context.WithoutCancel(ctx), job.ID)
}

// CancelStaleJobs cancels the document's non-terminal jobs older than the
// staleness timeout.
func (o *Orchestrator) CancelStaleJobs(ctx context.Context, documentID string) (int64, error) {
	return o.store.CancelStale(ctx, documentID, o.cfg.StaleTimeout)
}

// CancelAllStale runs the staleness sweep for every document.
func (o *Orchestrator) CancelAllStale(ctx context.Context) (int64, error) {
	return o.store.CancelAllStale(ctx, o.cfg.StaleTimeout)
}

// Job returns a job by id.
func (o *Orchestrator) Job(ctx context.Context, id string) (*jobs.Job, error) {
	return o.store.Get(ctx, id)
}

// Jobs returns a document's jobs, newest first.
func (o *Orchestrator) Jobs(ctx context.Context, documentID string) ([]*jobs.Job, error) {
	return o.store.ListByDocument(ctx, documentID)
}

// Breakdown returns the latest persisted result for a document.
func (o *Orchestrator) Breakdown(ctx context.Context, documentID string) (*jobs.Breakdown, error) {
	return o.store.Breakdown(ctx, documentID)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
