package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Utterance is one contiguous span of speech attributed to one speaker.
// Times are seconds; chunk-local when produced by the transcription client,
// global after passing through the Merger.
type Utterance struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// ChunkWindow is one time window of the source audio. Windows are contiguous,
// non-overlapping, ordered by Index, and together cover [0, total duration).
type ChunkWindow struct {
	Index int
	Start time.Duration
	End   time.Duration
}

// Width returns the window length.
func (w ChunkWindow) Width() time.Duration {
	return w.End - w.Start
}

func (w ChunkWindow) String() string {
	return fmt.Sprintf("chunk %d [%s-%s)", w.Index, w.Start, w.End)
}

// DiarizedSegment mirrors one segment of the diarized_json response.
type DiarizedSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// DiarizedResponse is the top-level JSON structure returned by the
// diarization model for one chunk. Timestamps and speaker labels are local
// to that chunk.
type DiarizedResponse struct {
	Text     string            `json:"text"`
	Segments []DiarizedSegment `json:"segments"`
}

// Utterances converts the wire segments into chunk-local utterances,
// skipping segments with empty text or a non-positive time span.
func (r *DiarizedResponse) Utterances() []Utterance {
	if r == nil {
		return nil
	}
	var out []Utterance
	for _, seg := range r.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		out = append(out, Utterance{
			Speaker: seg.Speaker,
			Start:   seg.Start,
			End:     seg.End,
			Text:    text,
		})
	}
	return out
}

// ChunkResult is the outcome of transcribing one chunk. Utterances are
// chunk-local; Raw preserves the model response verbatim for the raw
// output artifact and is never re-read by the pipeline.
type ChunkResult struct {
	Window     ChunkWindow
	Utterances []Utterance
	Raw        json.RawMessage
}

// Timeline is the sealed, fully merged utterance sequence for the whole
// recording. Utterances are sorted by start and carry global speaker
// identities.
type Timeline struct {
	Utterances []Utterance `json:"utterances"`
}

// Speakers returns the distinct global speaker identities in order of first
// appearance.
func (t Timeline) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range t.Utterances {
		if !seen[u.Speaker] {
			seen[u.Speaker] = true
			out = append(out, u.Speaker)
		}
	}
	return out
}

// Duration returns the end time of the last utterance in seconds.
func (t Timeline) Duration() float64 {
	if len(t.Utterances) == 0 {
		return 0
	}
	return t.Utterances[len(t.Utterances)-1].End
}

// PlainText renders the timeline as "Speaker: text" lines.
func (t Timeline) PlainText() string {
	var b strings.Builder
	for i, u := range t.Utterances {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(u.Speaker)
		b.WriteString(": ")
		b.WriteString(u.Text)
	}
	return b.String()
}
