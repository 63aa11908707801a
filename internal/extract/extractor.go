package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/djsydney04/wrapshot/internal/chunker"
	"github.com/djsydney04/wrapshot/internal/scenes"
)

// Options tunes the extraction call.
type Options struct {
	MaxTokens   int
	Temperature float64
	MaxRetries  int
	Backoff     func(attempt int) time.Duration
}

// Extractor runs one extraction request per chunk.
type Extractor struct {
	client Completer
	log    *slog.Logger
	opts   Options
}

// ChunkResult is the outcome for one chunk. Err records why the chunk
// contributed no candidates; it is informational and never fatal.
type ChunkResult struct {
	Index      int
	Candidates []scenes.Candidate
	Rejected   int // scenes skipped for badly typed fields
	Err        error
}

func NewExtractor(client Completer, log *slog.Logger, opts Options) *Extractor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8192
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = MaxRetries
	}
	if opts.Backoff == nil {
		opts.Backoff = Backoff
	}
	return &Extractor{client: client, log: log, opts: opts}
}

// Extract asks the model for the scenes in one chunk. Transient upstream
// errors are retried with backoff. Any remaining call or parse failure is
// logged and yields zero candidates.
func (e *Extractor) Extract(ctx context.Context, docTitle string, c chunker.Chunk, total int) ChunkResult {
	log := e.log.With("chunk", c.Index, "total", total, "pages", [2]int{c.FirstPage, c.LastPage})
	req := Request{
		System:      ExtractionPrompt,
		Prompt:      BuildChunkPrompt(docTitle, c, total),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
	}

	var raw string
	var lastErr error
	for attempt := range e.opts.MaxRetries {
		raw, lastErr = e.client.Complete(ctx, req)
		if lastErr == nil || !IsRetryable(lastErr) || attempt == e.opts.MaxRetries-1 {
			break
		}
		log.Warn("retryable extraction error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(e.opts.Backoff(attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		log.Error("extraction failed", "error", lastErr)
		return ChunkResult{Index: c.Index, Err: lastErr}
	}

	candidates, rejected, err := parseResponse(raw)
	if err != nil {
		log.Error("unparseable extraction response", "error", err, "raw", truncate(raw, 200))
		return ChunkResult{Index: c.Index, Err: err}
	}

	for _, r := range rejected {
		log.Warn("rejected scene", "error", r)
	}
	log.Info("chunk extracted", "candidates", len(candidates), "rejected", len(rejected))
	return ChunkResult{Index: c.Index, Candidates: candidates, Rejected: len(rejected)}
}
