// Package progress turns pipeline milestones into an ordered event stream
// consumable by a streaming caller. The reporter is a pure observer: it has
// no authority over pipeline state, and the transport drains its sink
// independently of the pipeline's own pacing.
package progress

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Status is the enumerated kind of a progress event.
type Status string

const (
	StatusFileUploaded          Status = "file_uploaded"
	StatusAudioSplit            Status = "audio_split"
	StatusTranscribingChunk     Status = "transcribing_chunk"
	StatusChunkComplete         Status = "chunk_complete"
	StatusTranscriptionComplete Status = "transcription_complete"
	StatusSavedDiarizedJSON     Status = "saved_diarized_json"
	StatusSavedRawOutput        Status = "saved_raw_output"
	StatusSavedTranscript       Status = "saved_transcript"
	StatusFormattingWithLLM     Status = "formatting_with_llm"
	StatusSavedFormatted        Status = "saved_formatted"
	StatusComplete              Status = "complete"
	StatusError                 Status = "error"
)

// Event is one immutable milestone. Sequence numbers are strictly
// increasing per run, so a consumer can detect reordering or replays.
type Event struct {
	Status   Status
	Sequence uint64
	RunID    string
	Payload  map[string]any
}

// MarshalJSON flattens the payload into the event object, matching the
// wire shape streaming clients consume:
//
//	{"status":"chunk_complete","sequence":7,"chunk":2,...}
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat["status"] = e.Status
	flat["sequence"] = e.Sequence
	if e.RunID != "" {
		flat["run_id"] = e.RunID
	}
	return json.Marshal(flat)
}

// Reporter emits sequenced events for one run onto a buffered sink channel.
// Safe for concurrent use; events are assigned sequence numbers and
// delivered to the channel in that order.
type Reporter struct {
	mu      sync.Mutex
	seq     uint64
	dropped uint64
	closed  bool
	runID   string
	sink    chan Event
}

// NewReporter creates a reporter with the given sink buffer. The buffer
// absorbs bursts so pipeline stages rarely block on a slow consumer.
func NewReporter(buffer int) *Reporter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Reporter{
		runID: uuid.NewString(),
		sink:  make(chan Event, buffer),
	}
}

// RunID identifies this run on every emitted event.
func (r *Reporter) RunID() string {
	if r == nil {
		return ""
	}
	return r.runID
}

// Emit records one milestone and delivers it to the sink. A nil reporter
// discards events so callers without a streaming consumer need no guards.
//
// Emit never blocks the pipeline: when the sink buffer is full with no
// consumer draining it, the event is dropped. The sequence number is still
// consumed, so a consumer sees a gap where events were lost.
func (r *Reporter) Emit(status Status, payload map[string]any) Event {
	if r == nil {
		return Event{Status: status, Payload: payload}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Event{Status: status, Payload: payload}
	}
	r.seq++
	ev := Event{
		Status:   status,
		Sequence: r.seq,
		RunID:    r.runID,
		Payload:  payload,
	}
	// Deliver while holding the lock so sink order matches sequence order.
	select {
	case r.sink <- ev:
	default:
		r.dropped++
		slog.Warn("progress sink full, dropping event",
			"status", status, "sequence", ev.Sequence)
	}
	r.mu.Unlock()
	return ev
}

// Dropped reports how many events were discarded on a full sink.
func (r *Reporter) Dropped() uint64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Events returns the sink channel for the transport to drain.
func (r *Reporter) Events() <-chan Event {
	if r == nil {
		return nil
	}
	return r.sink
}

// Close seals the stream after the final milestone. Emit becomes a no-op.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.sink)
	}
}
