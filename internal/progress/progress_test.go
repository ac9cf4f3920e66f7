package progress

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestReporter_SequencesAreStrictlyIncreasing(t *testing.T) {
	r := NewReporter(16)

	r.Emit(StatusFileUploaded, nil)
	r.Emit(StatusAudioSplit, map[string]any{"total_chunks": 3})
	r.Emit(StatusTranscribingChunk, map[string]any{"chunk": 1, "total": 3})
	r.Close()

	var last uint64
	count := 0
	for ev := range r.Events() {
		count++
		if ev.Sequence <= last {
			t.Errorf("sequence %d not greater than previous %d", ev.Sequence, last)
		}
		last = ev.Sequence
	}
	if count != 3 {
		t.Errorf("drained %d events, want 3", count)
	}
}

func TestReporter_ConcurrentEmitStaysOrdered(t *testing.T) {
	r := NewReporter(256)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.Emit(StatusTranscribingChunk, map[string]any{"chunk": j})
			}
		}()
	}
	wg.Wait()
	r.Close()

	var last uint64
	for ev := range r.Events() {
		if ev.Sequence != last+1 {
			t.Fatalf("sink order broken: got sequence %d after %d", ev.Sequence, last)
		}
		last = ev.Sequence
	}
	if last != 160 {
		t.Errorf("final sequence = %d, want 160", last)
	}
}

func TestReporter_FullSinkDropsInsteadOfBlocking(t *testing.T) {
	r := NewReporter(2)

	done := make(chan struct{})
	go func() {
		// No consumer is draining; the third emit must not block.
		r.Emit(StatusTranscribingChunk, map[string]any{"chunk": 0})
		r.Emit(StatusTranscribingChunk, map[string]any{"chunk": 1})
		r.Emit(StatusTranscribingChunk, map[string]any{"chunk": 2})
		r.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full sink")
	}

	if got := r.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	var sequences []uint64
	for ev := range r.Events() {
		sequences = append(sequences, ev.Sequence)
	}
	// The dropped event still consumed sequence 3, leaving a visible gap.
	if len(sequences) != 2 || sequences[0] != 1 || sequences[1] != 2 {
		t.Errorf("delivered sequences = %v, want [1 2]", sequences)
	}
}

func TestReporter_EmitAfterCloseIsNoop(t *testing.T) {
	r := NewReporter(4)
	r.Emit(StatusFileUploaded, nil)
	r.Close()
	r.Emit(StatusComplete, nil) // must not panic on a closed channel

	count := 0
	for range r.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("drained %d events, want 1", count)
	}
}

func TestReporter_NilIsSafe(t *testing.T) {
	var r *Reporter
	r.Emit(StatusFileUploaded, nil)
	r.Close()
	if r.RunID() != "" {
		t.Error("nil reporter should have empty run id")
	}
}

func TestEvent_MarshalFlattensPayload(t *testing.T) {
	r := NewReporter(4)
	ev := r.Emit(StatusChunkComplete, map[string]any{"chunk": 2, "segments_count": 14})

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != "chunk_complete" {
		t.Errorf("status = %v", decoded["status"])
	}
	if decoded["chunk"] != float64(2) {
		t.Errorf("chunk = %v, want 2", decoded["chunk"])
	}
	if decoded["sequence"] != float64(1) {
		t.Errorf("sequence = %v, want 1", decoded["sequence"])
	}
	if decoded["run_id"] == "" {
		t.Error("run_id missing")
	}
}
