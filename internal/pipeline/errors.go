package pipeline

import (
	"fmt"
	"time"
)

// InvalidDurationError rejects a run before any chunk work begins.
type InvalidDurationError struct {
	Duration time.Duration
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid audio duration %s: must be positive", e.Duration)
}

// ExtractionError reports that one chunk's audio could not be materialized.
// Fatal for the chunk, not for the run (unless it is the first chunk).
type ExtractionError struct {
	Chunk int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract chunk %d: %v", e.Chunk, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TranscriptionError reports that one chunk failed transcription after all
// retry attempts were exhausted. The chunk contributes zero utterances; the
// run proceeds and is reported as a partial failure.
type TranscriptionError struct {
	Chunk    int
	Attempts int
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribe chunk %d: %d attempts exhausted: %v", e.Chunk, e.Attempts, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// InvariantError signals a merge-order violation: a chunking or
// reconciliation bug produced a timeline that is no longer sorted.
// The run must refuse to emit the timeline rather than silently reorder it.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "timeline invariant violated: " + e.Detail
}
