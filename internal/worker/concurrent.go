package worker

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/ffmpeg"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/metrics"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/progress"
)

type chunkOutcome struct {
	result pipeline.ChunkResult
	err    error
}

// runChunked extracts and transcribes chunk windows with bounded
// concurrency, then merges results strictly in index order. Each chunk owns
// a one-slot completion channel; the reducer drains the slots in order, so
// a chunk that finishes early parks its result without blocking its worker.
func (r *Runner) runChunked(ctx context.Context, audioPath, workDir string, windows []pipeline.ChunkWindow, merger *pipeline.Merger) ([]pipeline.ChunkResult, []int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(float64(r.cfg.Chunking.APIRateLimitPerMin)/60.0), 1)

	slots := make([]chan chunkOutcome, len(windows))
	for i := range slots {
		slots[i] = make(chan chunkOutcome, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Chunking.MaxConcurrentChunks)

	for i, window := range windows {
		i, window := i, window
		g.Go(func() error {
			res, err := r.processChunk(gctx, audioPath, workDir, window, limiter, len(windows))
			slots[i] <- chunkOutcome{result: res, err: err}
			// Chunk failures are absorbed by the reducer, not the group;
			// returning them here would cancel healthy siblings.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}

	results := make([]pipeline.ChunkResult, 0, len(windows))
	var failed []int
	for i, window := range windows {
		var out chunkOutcome
		select {
		case out = <-slots[i]:
		case <-ctx.Done():
			g.Wait()
			return nil, nil, ctx.Err()
		}

		if out.err != nil {
			empty, err := absorbFailure(merger, window, out.err)
			if err != nil {
				cancel()
				g.Wait()
				return nil, nil, err
			}
			results = append(results, empty)
			failed = append(failed, window.Index)
			r.reporter.Emit(progress.StatusChunkComplete, map[string]any{
				"chunk": window.Index, "total": len(windows),
				"segments_count": 0,
				"failed":         true, "error": out.err.Error(),
			})
			continue
		}

		merged, err := merger.Append(out.result)
		if err != nil {
			cancel()
			g.Wait()
			return nil, nil, err
		}
		results = append(results, out.result)
		r.reporter.Emit(progress.StatusChunkComplete, map[string]any{
			"chunk": window.Index, "total": len(windows),
			"segments_count": len(merged), "segments": merged,
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, nil, err
	}
	return results, failed, nil
}

// processChunk extracts one window to a temporary file and transcribes it.
func (r *Runner) processChunk(ctx context.Context, audioPath, workDir string, window pipeline.ChunkWindow, limiter *rate.Limiter, total int) (pipeline.ChunkResult, error) {
	chunkPath := ffmpeg.ChunkPath(workDir, audioPath, window.Index)
	if err := r.extractWindow(ctx, audioPath, chunkPath, window); err != nil {
		metrics.RecordChunk("extract", false)
		return pipeline.ChunkResult{}, &pipeline.ExtractionError{Chunk: window.Index, Err: err}
	}
	metrics.RecordChunk("extract", true)
	defer os.Remove(chunkPath)

	if err := limiter.Wait(ctx); err != nil {
		return pipeline.ChunkResult{}, err
	}

	r.reporter.Emit(progress.StatusTranscribingChunk, map[string]any{
		"chunk": window.Index, "total": total,
	})
	return r.transcribeChunk(ctx, chunkPath, window)
}
