package pipeline

import (
	"fmt"
	"math"
	"time"
)

// Merger accumulates per-chunk transcription results into one globally
// consistent timeline. Chunks must be appended in index order; a later chunk
// that finishes transcription first is held back by the caller.
//
// The merger is the sole mutator of speaker identity and timestamps: it
// offsets chunk-local times into global time, maps chunk-local speaker
// labels to stable global identities, and drops utterances re-transcribed
// inside a seam overlap. The speaker/label mapping is run-scoped and never
// shared between runs.
type Merger struct {
	speakerGap  time.Duration
	seamOverlap time.Duration

	timeline []Utterance
	nextID   int
	next     int
	sealed   bool

	// State of the previously merged chunk, used by the boundary heuristic
	// and seam de-duplication.
	prevWindow   ChunkWindow
	prevLastEnd  map[string]float64
	prevTrailing []Utterance
}

// NewMerger creates a merger for one run. speakerGap is the boundary
// heuristic threshold: the first utterance of a chunk inherits the previous
// chunk's trailing speaker identity only when it starts within this gap of
// that speaker's last utterance. seamOverlap is the amount of audio the
// extractor re-processes at each seam; zero disables de-duplication.
func NewMerger(speakerGap, seamOverlap time.Duration) *Merger {
	return &Merger{
		speakerGap:  speakerGap,
		seamOverlap: seamOverlap,
	}
}

// Merged returns the number of chunks appended so far.
func (m *Merger) Merged() int { return m.next }

// Append merges the next chunk result into the timeline and returns the
// global utterances it contributed. Chunks must arrive in index order.
func (m *Merger) Append(res ChunkResult) ([]Utterance, error) {
	if m.sealed {
		return nil, &InvariantError{Detail: "append after seal"}
	}
	if res.Window.Index != m.next {
		return nil, &InvariantError{Detail: fmt.Sprintf(
			"chunk %d appended out of order, expected %d", res.Window.Index, m.next)}
	}

	// Step 1: timestamp offset. Chunk-local zero is the start of the
	// extracted audio, which sits seamOverlap before the window start for
	// every chunk after the first.
	offset := res.Window.Start
	if res.Window.Index > 0 {
		offset -= m.seamOverlap
	}
	offsetSec := offset.Seconds()

	utts := make([]Utterance, len(res.Utterances))
	for i, u := range res.Utterances {
		u.Start = roundMs(u.Start + offsetSec)
		u.End = roundMs(u.End + offsetSec)
		utts[i] = u
	}

	// Step 2: speaker reconciliation.
	globals := m.reconcileSpeakers(res.Window, utts)
	for i := range utts {
		utts[i].Speaker = globals[res.Utterances[i].Speaker]
	}

	// Step 3: seam de-duplication.
	if res.Window.Index > 0 && m.seamOverlap > 0 {
		utts = m.dedupeSeam(res.Window, utts)
	}

	// Step 4: append, then verify ordering before exposing anything.
	merged := len(m.timeline)
	m.timeline = append(m.timeline, utts...)
	if err := m.checkOrdered(merged); err != nil {
		return nil, err
	}

	m.prevWindow = res.Window
	m.prevLastEnd = lastEndBySpeaker(utts)
	m.prevTrailing = trailing(utts, res.Window.End-m.seamOverlap)
	m.next++
	return utts, nil
}

// Seal freezes the timeline and returns it. Further appends fail.
func (m *Merger) Seal() Timeline {
	m.sealed = true
	return Timeline{Utterances: m.timeline}
}

// reconcileSpeakers maps each chunk-local speaker label to a global
// identity. For the first chunk every distinct label gets a fresh identity
// in order of first appearance. For later chunks, only the label of the
// chunk's first utterance may inherit an identity, and only when the
// boundary heuristic holds; every other label is treated as a new speaker,
// because the model carries no signal across chunks.
func (m *Merger) reconcileSpeakers(window ChunkWindow, utts []Utterance) map[string]string {
	globals := make(map[string]string)
	if len(utts) == 0 {
		return globals
	}

	if window.Index > 0 {
		first := utts[0]
		if prev, ok := m.bridgeLabel(first); ok {
			globals[first.Speaker] = prev
		}
	}

	for _, u := range utts {
		if _, ok := globals[u.Speaker]; ok {
			continue
		}
		m.nextID++
		globals[u.Speaker] = fmt.Sprintf("Speaker %d", m.nextID)
	}
	return globals
}

// bridgeLabel decides whether the first utterance of the current chunk
// continues the speaker who held the floor at the end of the previous
// chunk. It returns that speaker's global identity when:
//
//   - the utterance starts within speakerGap of the previous chunk's
//     latest-ending utterance, and
//   - no utterance of a different label in the previous chunk ends closer
//     to the boundary.
//
// This is a documented heuristic, not acoustic matching; seams where the
// floor changes hands inside the gap will mislabel until the next fresh
// label appears.
func (m *Merger) bridgeLabel(first Utterance) (string, bool) {
	if len(m.prevLastEnd) == 0 {
		return "", false
	}

	best, bestEnd, runnerUp := "", math.Inf(-1), math.Inf(-1)
	for id, end := range m.prevLastEnd {
		switch {
		case end > bestEnd:
			best, runnerUp, bestEnd = id, bestEnd, end
		case end > runnerUp:
			runnerUp = end
		}
	}

	if best == "" || bestEnd == runnerUp {
		// Two speakers end at the exact boundary: ambiguous, no bridge.
		return "", false
	}
	if first.Start-bestEnd > m.speakerGap.Seconds() {
		return "", false
	}
	return best, true
}

// dedupeSeam removes utterances re-transcribed inside the seam overlap.
// A leading utterance that starts before the window boundary is dropped when
// it is a near-duplicate of a trailing utterance of the previous chunk
// (matching text, overlapping time range). Non-duplicates are trimmed to the
// boundary so the timeline stays ordered; anything entirely inside the seam
// that the previous chunk already covered is dropped.
func (m *Merger) dedupeSeam(window ChunkWindow, utts []Utterance) []Utterance {
	boundary := window.Start.Seconds()
	out := utts[:0]
	for _, u := range utts {
		if u.Start >= boundary {
			out = append(out, u)
			continue
		}
		if isNearDuplicate(u, m.prevTrailing) {
			continue
		}
		if u.End <= boundary {
			continue
		}
		u.Start = boundary
		out = append(out, u)
	}
	return out
}

// isNearDuplicate reports whether u repeats one of the previous chunk's
// trailing utterances: overlapping time range and near-identical text.
func isNearDuplicate(u Utterance, prev []Utterance) bool {
	for _, p := range prev {
		if u.Start >= p.End || u.End <= p.Start {
			continue
		}
		if SimilarText(u.Text, p.Text) {
			return true
		}
	}
	return false
}

// checkOrdered verifies the timeline post-condition from position from
// onward: starts sorted, ends non-decreasing. A violation indicates a
// chunking or reconciliation bug and must not be papered over by sorting.
func (m *Merger) checkOrdered(from int) error {
	for i := max(from, 1); i < len(m.timeline); i++ {
		a, b := m.timeline[i-1], m.timeline[i]
		if b.Start < a.Start {
			return &InvariantError{Detail: fmt.Sprintf(
				"utterance %d starts at %.3fs before predecessor at %.3fs", i, b.Start, a.Start)}
		}
		if b.End < a.End {
			return &InvariantError{Detail: fmt.Sprintf(
				"utterance %d ends at %.3fs before predecessor end %.3fs", i, b.End, a.End)}
		}
	}
	return nil
}

// lastEndBySpeaker returns the latest end time per global speaker identity.
func lastEndBySpeaker(utts []Utterance) map[string]float64 {
	out := make(map[string]float64)
	for _, u := range utts {
		if u.End > out[u.Speaker] {
			out[u.Speaker] = u.End
		}
	}
	return out
}

// trailing returns the utterances ending after cutoff, in order. These are
// the candidates the next chunk's seam may have re-transcribed.
func trailing(utts []Utterance, cutoff time.Duration) []Utterance {
	sec := cutoff.Seconds()
	var out []Utterance
	for _, u := range utts {
		if u.End > sec {
			out = append(out, u)
		}
	}
	return out
}

func roundMs(sec float64) float64 {
	return math.Round(sec*1000) / 1000
}
