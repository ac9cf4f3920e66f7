// Package worker orchestrates one transcription run end to end: probe the
// media, split long audio into chunk windows, transcribe the chunks with
// bounded concurrency, merge the results into a global timeline, and write
// the artifact family.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/api"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/config"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/ffmpeg"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/llm"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/metrics"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/output"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/progress"
)

// RunResult summarizes a completed run.
type RunResult struct {
	OutputIndex   int
	Timeline      pipeline.Timeline
	TotalChunks   int
	TotalSegments int

	// Partial is set when at least one chunk failed after retry exhaustion
	// and contributed nothing to the timeline.
	Partial      bool
	FailedChunks []int

	// Files maps artifact kind (diarized, raw, transcript, formatted, mom)
	// to the written path.
	Files map[string]string
}

// Options carries per-run inputs that are not part of the static config.
type Options struct {
	// SourcePath is the media file to transcribe.
	SourcePath string

	// Participants, when set, is handed to the formatter so generic
	// speaker labels can be attributed to real names.
	Participants string
}

// Runner executes transcription runs. One Runner is safe to reuse across
// runs; each Run gets its own merger, reporter sequence, and output index.
type Runner struct {
	cfg         *config.Config
	transcriber api.Transcriber
	formatter   *llm.Formatter
	reporter    *progress.Reporter

	// ffmpeg entry points, swappable in tests.
	probe         func(ctx context.Context, path string) (*ffmpeg.MediaInfo, error)
	extractAudio  func(ctx context.Context, videoPath, outputPath string) error
	extractWindow func(ctx context.Context, sourcePath, destPath string, window pipeline.ChunkWindow) error
}

// NewRunner wires a runner against the real ffmpeg toolchain.
func NewRunner(cfg *config.Config, transcriber api.Transcriber, formatter *llm.Formatter, reporter *progress.Reporter) *Runner {
	extractor := ffmpeg.Extractor{SeamOverlap: cfg.Chunking.SeamOverlap()}
	return &Runner{
		cfg:           cfg,
		transcriber:   transcriber,
		formatter:     formatter,
		reporter:      reporter,
		probe:         ffmpeg.ProbeMedia,
		extractAudio:  ffmpeg.ExtractAudio,
		extractWindow: extractor.ExtractWindow,
	}
}

// Run transcribes one media file and writes the artifact family. A run with
// some failed chunks still succeeds with RunResult.Partial set; Run returns
// an error only when nothing usable was produced.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunResult, error) {
	started := time.Now()
	res, err := r.run(ctx, opts)
	if err != nil {
		metrics.RecordRun("failed")
		r.reporter.Emit(progress.StatusError, map[string]any{"error": err.Error()})
		return nil, err
	}
	if res.Partial {
		metrics.RecordRun("partial")
	} else {
		metrics.RecordRun("complete")
	}
	metrics.ObserveStage("run", time.Since(started).Seconds())
	return res, nil
}

func (r *Runner) run(ctx context.Context, opts Options) (*RunResult, error) {
	source := opts.SourcePath
	r.reporter.Emit(progress.StatusFileUploaded, map[string]any{
		"file": filepath.Base(source),
	})

	info, err := r.probe(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", filepath.Base(source), err)
	}
	ffmpeg.LogMediaInfo(source, info)

	workDir, err := os.MkdirTemp("", "transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	audioPath := source
	if ffmpeg.IsVideoExtension(strings.ToLower(filepath.Ext(source))) {
		audioPath = filepath.Join(workDir, "audio.mp3")
		if err := r.extractAudio(ctx, source, audioPath); err != nil {
			return nil, fmt.Errorf("extract audio track: %w", err)
		}
		slog.Info("audio track extracted from video", "file", filepath.Base(source))
	}

	windows, err := pipeline.Plan(info.Duration, r.cfg.Chunking.MaxChunkDuration())
	if err != nil {
		return nil, err
	}
	r.reporter.Emit(progress.StatusAudioSplit, map[string]any{
		"total_chunks":     len(windows),
		"duration_seconds": info.Duration.Seconds(),
	})

	merger := pipeline.NewMerger(r.cfg.Chunking.SpeakerGap(), r.cfg.Chunking.SeamOverlap())

	var (
		results []pipeline.ChunkResult
		failed  []int
	)
	if len(windows) == 1 {
		results, failed, err = r.runSingle(ctx, audioPath, windows[0], merger)
	} else {
		results, failed, err = r.runChunked(ctx, audioPath, workDir, windows, merger)
	}
	if err != nil {
		return nil, err
	}
	if len(failed) == len(windows) {
		return nil, fmt.Errorf("all %d chunks failed transcription", len(windows))
	}

	timeline := merger.Seal()
	r.reporter.Emit(progress.StatusTranscriptionComplete, map[string]any{
		"chunks":     len(windows),
		"utterances": len(timeline.Utterances),
	})

	result := &RunResult{
		Timeline:      timeline,
		TotalChunks:   len(windows),
		TotalSegments: len(timeline.Utterances),
		Partial:       len(failed) > 0,
		FailedChunks:  failed,
		Files:         make(map[string]string),
	}
	if err := r.writeArtifacts(ctx, opts, results, result); err != nil {
		return nil, err
	}

	r.reporter.Emit(progress.StatusComplete, map[string]any{
		"output_index":  result.OutputIndex,
		"files":         result.Files,
		"utterances":    result.TotalSegments,
		"partial":       result.Partial,
		"failed_chunks": result.FailedChunks,
	})
	return result, nil
}

// writeArtifacts persists the artifact family and runs the optional
// formatting step. Artifact writes are ordered so the machine-readable
// outputs land before the LLM-dependent ones.
func (r *Runner) writeArtifacts(ctx context.Context, opts Options, results []pipeline.ChunkResult, run *RunResult) error {
	writer, err := output.NewWriter(r.cfg.Output.Dir)
	if err != nil {
		return err
	}
	index, err := writer.NextIndex()
	if err != nil {
		return err
	}
	run.OutputIndex = index

	path, err := writer.WriteDiarized(index, filepath.Base(opts.SourcePath), run.TotalChunks, run.Timeline)
	if err != nil {
		return err
	}
	run.Files["diarized"] = path
	r.reporter.Emit(progress.StatusSavedDiarizedJSON, map[string]any{"path": path})

	path, err = writer.WriteRaw(index, results)
	if err != nil {
		return err
	}
	run.Files["raw"] = path
	r.reporter.Emit(progress.StatusSavedRawOutput, map[string]any{"path": path})

	path, err = writer.WriteTranscript(index, run.Timeline)
	if err != nil {
		return err
	}
	run.Files["transcript"] = path
	r.reporter.Emit(progress.StatusSavedTranscript, map[string]any{"path": path})

	if r.formatter == nil || !r.formatter.Enabled {
		return nil
	}

	r.reporter.Emit(progress.StatusFormattingWithLLM, map[string]any{
		"utterances": run.TotalSegments,
	})
	formatted, err := r.formatter.Format(ctx, run.Timeline.Utterances, opts.Participants)
	if err != nil {
		// Formatting is best effort; the transcript artifacts already exist.
		slog.Warn("formatting failed", "err", err)
		return nil
	}

	path, err = writer.WriteFormatted(index, formatted.Formatted)
	if err != nil {
		return err
	}
	run.Files["formatted"] = path
	r.reporter.Emit(progress.StatusSavedFormatted, map[string]any{"path": path})

	if formatted.Summary != "" {
		path, err = writer.WriteMinutes(index, formatted.Summary, formatted.ActionItems)
		if err != nil {
			return err
		}
		run.Files["mom"] = path
	}
	return nil
}

// transcribeChunk runs one chunk through the API and normalizes failures
// into TranscriptionError. The client has already exhausted its retries by
// the time an error surfaces here.
func (r *Runner) transcribeChunk(ctx context.Context, audioPath string, window pipeline.ChunkWindow) (pipeline.ChunkResult, error) {
	started := time.Now()
	resp, raw, err := r.transcriber.Transcribe(ctx, audioPath)
	metrics.ObserveStage("transcribe", time.Since(started).Seconds())
	if err != nil {
		metrics.RecordChunk("transcribe", false)
		if ctx.Err() != nil {
			return pipeline.ChunkResult{}, ctx.Err()
		}
		return pipeline.ChunkResult{}, &pipeline.TranscriptionError{
			Chunk:    window.Index,
			Attempts: r.cfg.Chunking.MaxRetries,
			Err:      err,
		}
	}
	metrics.RecordChunk("transcribe", true)
	return pipeline.ChunkResult{
		Window:     window,
		Utterances: resp.Utterances(),
		Raw:        raw,
	}, nil
}

// absorbFailure merges an empty placeholder for a failed chunk so the
// timeline keeps its index bookkeeping and the boundary heuristic resets.
// Only transcription and extraction failures are absorbable; an extraction
// failure on the first chunk means the source itself is unreadable, so that
// one fails the run.
func absorbFailure(merger *pipeline.Merger, window pipeline.ChunkWindow, err error) (pipeline.ChunkResult, error) {
	var (
		terr *pipeline.TranscriptionError
		xerr *pipeline.ExtractionError
	)
	switch {
	case errors.As(err, &terr):
	case errors.As(err, &xerr) && window.Index > 0:
	default:
		return pipeline.ChunkResult{}, err
	}
	slog.Error("chunk failed after retries, continuing without it",
		"chunk", window.Index, "err", err)
	empty := pipeline.ChunkResult{Window: window}
	if _, merr := merger.Append(empty); merr != nil {
		return pipeline.ChunkResult{}, merr
	}
	return empty, nil
}
