package pipeline

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func window(index int, start, end time.Duration) ChunkWindow {
	return ChunkWindow{Index: index, Start: start, End: end}
}

func TestMerger_OffsetsAreExact(t *testing.T) {
	m := NewMerger(3*time.Second, 0)

	_, err := m.Append(ChunkResult{
		Window: window(0, 0, 20*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0.5, End: 4.25, Text: "hello everyone"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 0: %v", err)
	}

	utts, err := m.Append(ChunkResult{
		Window: window(1, 20*time.Minute, 40*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 1.5, End: 3.0, Text: "as I was saying"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 1: %v", err)
	}
	if utts[0].Start != 1201.5 || utts[0].End != 1203.0 {
		t.Errorf("global times = [%v, %v], want [1201.5, 1203.0]", utts[0].Start, utts[0].End)
	}
}

func TestMerger_BridgesSpeakerAcrossSeam(t *testing.T) {
	m := NewMerger(3*time.Second, 0)

	first, err := m.Append(ChunkResult{
		Window: window(0, 0, 10*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0, End: 5, Text: "welcome"},
			{Speaker: "B", Start: 6, End: 300, Text: "thanks"},
			{Speaker: "A", Start: 301, End: 598, Text: "next item"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 0: %v", err)
	}
	if first[0].Speaker != "Speaker 1" || first[1].Speaker != "Speaker 2" {
		t.Fatalf("chunk 0 speakers = %q, %q; want Speaker 1, Speaker 2",
			first[0].Speaker, first[1].Speaker)
	}

	// Chunk 1 opens 1s into its window, 3s after Speaker 1 stopped: bridge.
	second, err := m.Append(ChunkResult{
		Window: window(1, 10*time.Minute, 20*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 1, End: 10, Text: "continuing"},
			{Speaker: "B", Start: 11, End: 20, Text: "a question"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 1: %v", err)
	}
	if second[0].Speaker != "Speaker 1" {
		t.Errorf("bridged speaker = %q, want Speaker 1", second[0].Speaker)
	}
	// The second label of chunk 1 is a new identity, not chunk 0's "B".
	if second[1].Speaker != "Speaker 3" {
		t.Errorf("non-bridged speaker = %q, want Speaker 3", second[1].Speaker)
	}
}

func TestMerger_NoBridgeWhenGapTooLarge(t *testing.T) {
	m := NewMerger(3*time.Second, 0)

	if _, err := m.Append(ChunkResult{
		Window: window(0, 0, 10*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0, End: 598, Text: "monologue"},
		},
	}); err != nil {
		t.Fatalf("append chunk 0: %v", err)
	}

	// Chunk 1 opens 50s into its window: 52s of silence, no bridge.
	utts, err := m.Append(ChunkResult{
		Window: window(1, 10*time.Minute, 20*time.Minute),
		Utterances: []Utterance{
			{Speaker: "B", Start: 50, End: 60, Text: "after the break"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 1: %v", err)
	}
	if utts[0].Speaker != "Speaker 2" {
		t.Errorf("speaker = %q, want fresh Speaker 2", utts[0].Speaker)
	}
}

func TestMerger_NoBridgeWhenAnotherSpeakerEndsCloser(t *testing.T) {
	m := NewMerger(5*time.Second, 0)

	if _, err := m.Append(ChunkResult{
		Window: window(0, 0, 10*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0, End: 595, Text: "main point"},
			{Speaker: "B", Start: 596, End: 599, Text: "brief aside"},
		},
	}); err != nil {
		t.Fatalf("append chunk 0: %v", err)
	}

	// Chunk 1's opener is within the gap of B (ends 599), so it must not
	// inherit A's identity; it inherits B's.
	utts, err := m.Append(ChunkResult{
		Window: window(1, 10*time.Minute, 20*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 1, End: 8, Text: "to finish that thought"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 1: %v", err)
	}
	if utts[0].Speaker != "Speaker 2" {
		t.Errorf("speaker = %q, want Speaker 2 (the closest-ending identity)", utts[0].Speaker)
	}
}

func TestMerger_SeamDeduplication(t *testing.T) {
	m := NewMerger(3*time.Second, 2*time.Second)

	if _, err := m.Append(ChunkResult{
		Window: window(0, 0, 10*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0, End: 595, Text: "the long opening"},
			{Speaker: "A", Start: 598.5, End: 599.8, Text: "see you next week"},
		},
	}); err != nil {
		t.Fatalf("append chunk 0: %v", err)
	}

	// Chunk 1's audio starts 2s before its window, so local 0 is global
	// 598s and the first utterance repeats the previous chunk's tail.
	utts, err := m.Append(ChunkResult{
		Window: window(1, 10*time.Minute, 20*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0.5, End: 1.8, Text: "See you next week."},
			{Speaker: "B", Start: 3.0, End: 6.0, Text: "one more thing"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 1: %v", err)
	}
	if len(utts) != 1 {
		t.Fatalf("expected duplicate dropped, got %d utterances: %v", len(utts), utts)
	}
	if utts[0].Text != "one more thing" {
		t.Errorf("kept utterance = %q, want 'one more thing'", utts[0].Text)
	}

	timeline := m.Seal()
	count := 0
	for _, u := range timeline.Utterances {
		if SimilarText(u.Text, "see you next week") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("seam utterance appears %d times in timeline, want exactly 1", count)
	}
}

func TestMerger_Idempotent(t *testing.T) {
	results := []ChunkResult{
		{
			Window: window(0, 0, 10*time.Minute),
			Utterances: []Utterance{
				{Speaker: "A", Start: 0, End: 5, Text: "alpha"},
				{Speaker: "B", Start: 6, End: 599, Text: "beta"},
			},
		},
		{
			Window: window(1, 10*time.Minute, 20*time.Minute),
			Utterances: []Utterance{
				{Speaker: "A", Start: 1, End: 9, Text: "gamma"},
			},
		},
	}

	run := func() Timeline {
		m := NewMerger(3*time.Second, 0)
		for _, r := range results {
			if _, err := m.Append(r); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		return m.Seal()
	}

	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Errorf("merging the same inputs twice produced different timelines:\n%v\n%v", a, b)
	}
}

func TestMerger_RejectsOutOfOrderAppend(t *testing.T) {
	m := NewMerger(3*time.Second, 0)

	var inv *InvariantError
	_, err := m.Append(ChunkResult{Window: window(1, 10*time.Minute, 20*time.Minute)})
	if !errors.As(err, &inv) {
		t.Errorf("out-of-order append error = %v, want InvariantError", err)
	}
}

func TestMerger_RejectsAppendAfterSeal(t *testing.T) {
	m := NewMerger(3*time.Second, 0)
	if _, err := m.Append(ChunkResult{Window: window(0, 0, time.Minute)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	m.Seal()

	var inv *InvariantError
	_, err := m.Append(ChunkResult{Window: window(1, time.Minute, 2*time.Minute)})
	if !errors.As(err, &inv) {
		t.Errorf("append after seal error = %v, want InvariantError", err)
	}
}

func TestMerger_EmptyChunkBreaksBridge(t *testing.T) {
	m := NewMerger(3*time.Second, 0)

	if _, err := m.Append(ChunkResult{
		Window: window(0, 0, 10*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0, End: 599, Text: "speaking"},
		},
	}); err != nil {
		t.Fatalf("append chunk 0: %v", err)
	}
	// Failed chunk: zero utterances.
	if _, err := m.Append(ChunkResult{Window: window(1, 10*time.Minute, 20*time.Minute)}); err != nil {
		t.Fatalf("append empty chunk 1: %v", err)
	}
	utts, err := m.Append(ChunkResult{
		Window: window(2, 20*time.Minute, 30*time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 0.5, End: 3, Text: "still speaking"},
		},
	})
	if err != nil {
		t.Fatalf("append chunk 2: %v", err)
	}
	if utts[0].Speaker != "Speaker 2" {
		t.Errorf("speaker after empty chunk = %q, want fresh Speaker 2", utts[0].Speaker)
	}
}

func TestMerger_DetectsUnsortedTimeline(t *testing.T) {
	m := NewMerger(3*time.Second, 0)

	var inv *InvariantError
	_, err := m.Append(ChunkResult{
		Window: window(0, 0, time.Minute),
		Utterances: []Utterance{
			{Speaker: "A", Start: 10, End: 12, Text: "later"},
			{Speaker: "A", Start: 2, End: 4, Text: "earlier"},
		},
	})
	if !errors.As(err, &inv) {
		t.Errorf("unsorted input error = %v, want InvariantError", err)
	}
}
