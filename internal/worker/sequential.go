package worker

import (
	"context"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/progress"
)

// runSingle handles media at or under the chunk ceiling: the source audio
// is sent to the API as-is, with no splitting and no seams to reconcile.
func (r *Runner) runSingle(ctx context.Context, audioPath string, window pipeline.ChunkWindow, merger *pipeline.Merger) ([]pipeline.ChunkResult, []int, error) {
	r.reporter.Emit(progress.StatusTranscribingChunk, map[string]any{
		"chunk": window.Index, "total": 1,
	})

	res, err := r.transcribeChunk(ctx, audioPath, window)
	if err != nil {
		// A single-chunk run has nothing to fall back on.
		return nil, nil, err
	}
	merged, err := merger.Append(res)
	if err != nil {
		return nil, nil, err
	}

	r.reporter.Emit(progress.StatusChunkComplete, map[string]any{
		"chunk": window.Index, "total": 1,
		"segments_count": len(merged), "segments": merged,
	})
	return []pipeline.ChunkResult{res}, nil, nil
}
