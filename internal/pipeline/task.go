package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/djsydney04/wrapshot/internal/chunker"
	"github.com/djsydney04/wrapshot/internal/extract"
	"github.com/djsydney04/wrapshot/internal/jobs"
	"github.com/djsydney04/wrapshot/internal/scenes"
)

// Task is the deferred work for one started job.
type Task struct {
	Job *jobs.Job

	req       Request
	store     *jobs.Store
	extractor *extract.Extractor
	chunkCfg  chunker.Config
	limit     int
	log       *slog.Logger
}

func (o *Orchestrator) newTask(job *jobs.Job, req Request) *Task {
	return &Task{
		Job:       job,
		req:       req,
		store:     o.store,
		extractor: o.extractor,
		chunkCfg: chunker.Config{
			MinChars:     o.cfg.MinChunkChars,
			MaxChars:     o.cfg.MaxChunkChars,
			CharsPerPage: o.cfg.CharsPerPage,
		},
		limit: max(o.cfg.MaxConcurrentExtract, 1),
		log:   o.log.With("job_id", job.ID, "doc_id", job.DocumentID),
	}
}

// Run chunks the text, extracts every chunk and merges the scenes, then
// records COMPLETE or FAILED on the job. Nothing escapes: errors and panics
// end up on the job record.
func (t *Task) Run(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("breakdown panicked", "panic", r, "stack", string(debug.Stack()))
			t.fail(ctx, fmt.Sprintf("internal error: %v", r))
		}
	}()

	result, err := t.execute(ctx)
	if errors.Is(err, jobs.ErrNotActive) {
		t.log.Warn("job no longer active, dropping result")
		return
	}
	if err != nil {
		t.log.Error("breakdown failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		t.fail(ctx, err.Error())
		return
	}

	if err := t.store.Complete(context.WithoutCancel(ctx), t.Job.ID, result); err != nil {
		if errors.Is(err, jobs.ErrNotActive) {
			t.log.Warn("job no longer active, dropping result", "scenes", result.TotalScenes)
			return
		}
		t.log.Error("persist result failed", "error", err)
		t.fail(ctx, fmt.Sprintf("persist result: %s", err))
		return
	}
	t.log.Info("breakdown complete",
		"scenes", result.TotalScenes,
		"pages", result.TotalPages,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (t *Task) execute(ctx context.Context) (scenes.Result, error) {
	cfg := t.chunkCfg
	cfg.CharsPerPage = chunker.CharsPerPageFor(t.req.Text, t.req.PageCount, cfg.CharsPerPage)
	chunks, err := chunker.Split(t.req.Text, cfg)
	if err != nil {
		return scenes.Result{}, fmt.Errorf("chunk: %w", err)
	}
	totalPages := t.req.PageCount
	if totalPages <= 0 {
		totalPages = chunker.EstimatePages(t.req.Text, cfg.CharsPerPage)
	}
	t.log.Info("chunked document", "chunks", len(chunks), "pages", totalPages, "chars_per_page", cfg.CharsPerPage)

	progress := jobs.Progress{TotalChunks: len(chunks)}
	if err := t.store.UpdateProgress(ctx, t.Job.ID, progress); err != nil {
		return scenes.Result{}, err
	}

	batches := make([]scenes.Batch, len(chunks))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.limit)
	for i, c := range chunks {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := t.extractChunk(gctx, c, len(chunks))
			batches[i] = scenes.Batch{ChunkIndex: c.Index, FirstPage: c.FirstPage, Candidates: res.Candidates}

			mu.Lock()
			defer mu.Unlock()
			progress.ChunksProcessed++
			if res.Err != nil {
				progress.ChunksFailed++
			}
			err := t.store.UpdateProgress(context.WithoutCancel(gctx), t.Job.ID, progress)
			if errors.Is(err, jobs.ErrNotActive) {
				return err
			}
			if err != nil {
				t.log.Warn("progress write failed", "chunk", c.Index, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return scenes.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return scenes.Result{}, fmt.Errorf("interrupted: %w", err)
	}

	merged, err := scenes.Merge(batches)
	if errors.Is(err, scenes.ErrEmptyResult) && progress.ChunksFailed == len(chunks) {
		return scenes.Result{}, fmt.Errorf("%w: all %d chunks failed extraction", err, len(chunks))
	}
	if err != nil {
		return scenes.Result{}, err
	}
	return scenes.NewResult(merged, totalPages, time.Now()), nil
}

// extractChunk runs the adapter for one chunk and turns a panic into a failed
// chunk.
func (t *Task) extractChunk(ctx context.Context, c chunker.Chunk, total int) (res extract.ChunkResult) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("extraction panicked", "chunk", c.Index, "panic", r)
			res = extract.ChunkResult{Index: c.Index, Err: fmt.Errorf("extraction panic: %v", r)}
		}
	}()
	return t.extractor.Extract(ctx, t.req.Title, c, total)
}

func (t *Task) fail(ctx context.Context, msg string) {
	err := t.store.Fail(context.WithoutCancel(ctx), t.Job.ID, msg)
	switch {
	case errors.Is(err, jobs.ErrNotActive):
		t.log.Warn("job no longer active, dropping failure", "reason", msg)
	case err != nil:
		t.log.Error("persist failure failed", "error", err, "reason", msg)
	}
}
