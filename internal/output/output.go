// Package output writes the per-run artifact family. Every run gets the
// next free numeric index in the output directory so repeated runs never
// clobber earlier results.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/llm"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
)

var indexPattern = regexp.MustCompile(`^output_(\d+)_diarized\.json$`)

// Writer persists run artifacts under Dir using an output_N_* naming scheme.
type Writer struct {
	Dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{Dir: dir}, nil
}

// NextIndex scans the directory for existing diarized artifacts and returns
// one past the highest index found. The first run in a fresh directory is 1.
func (w *Writer) NextIndex() (int, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return 0, fmt.Errorf("scan output dir: %w", err)
	}
	max := 0
	for _, e := range entries {
		m := indexPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

// diarizedArtifact is the canonical machine-readable result for one run.
type diarizedArtifact struct {
	Source      string               `json:"source"`
	OutputIndex int                  `json:"output_index"`
	Timestamp   string               `json:"timestamp"`
	Chunks      int                  `json:"chunks"`
	Utterances  []pipeline.Utterance `json:"utterances"`
}

type rawChunk struct {
	Chunk         int             `json:"chunk"`
	OffsetSeconds float64         `json:"offset_seconds"`
	Raw           json.RawMessage `json:"raw"`
}

// WriteDiarized writes output_N_diarized.json and returns its path.
func (w *Writer) WriteDiarized(index int, source string, chunks int, timeline pipeline.Timeline) (string, error) {
	artifact := diarizedArtifact{
		Source:      source,
		OutputIndex: index,
		Timestamp:   time.Now().Format(time.RFC3339),
		Chunks:      chunks,
		Utterances:  timeline.Utterances,
	}
	return w.writeJSON(index, "diarized.json", artifact)
}

// WriteRaw writes output_N_raw.json preserving each chunk's untouched API
// response alongside the offset that was applied to it.
func (w *Writer) WriteRaw(index int, results []pipeline.ChunkResult) (string, error) {
	payload := struct {
		Chunks []rawChunk `json:"chunks"`
	}{Chunks: make([]rawChunk, 0, len(results))}
	for _, res := range results {
		payload.Chunks = append(payload.Chunks, rawChunk{
			Chunk:         res.Window.Index,
			OffsetSeconds: res.Window.Start.Seconds(),
			Raw:           res.Raw,
		})
	}
	return w.writeJSON(index, "raw.json", payload)
}

// WriteTranscript writes the plain speaker-attributed text transcript.
func (w *Writer) WriteTranscript(index int, timeline pipeline.Timeline) (string, error) {
	return w.writeText(index, "transcript.txt", timeline.PlainText()+"\n")
}

// WriteFormatted writes the LLM-formatted Markdown document.
func (w *Writer) WriteFormatted(index int, formatted string) (string, error) {
	return w.writeText(index, "formatted.md", formatted)
}

// WriteMinutes writes the minutes-of-meeting section with its structured
// action items appended as a JSON block for downstream tooling.
func (w *Writer) WriteMinutes(index int, summary string, items []llm.ActionItem) (string, error) {
	doc := summary
	if len(items) > 0 {
		blob, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal action items: %w", err)
		}
		doc += "\n\n<!-- action-items\n" + string(blob) + "\n-->\n"
	}
	return w.writeText(index, "mom.md", doc)
}

func (w *Writer) path(index int, suffix string) string {
	return filepath.Join(w.Dir, fmt.Sprintf("output_%d_%s", index, suffix))
}

func (w *Writer) writeJSON(index int, suffix string, v any) (string, error) {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", suffix, err)
	}
	return w.writeBytes(index, suffix, append(blob, '\n'))
}

func (w *Writer) writeText(index int, suffix, content string) (string, error) {
	return w.writeBytes(index, suffix, []byte(content))
}

func (w *Writer) writeBytes(index int, suffix string, data []byte) (string, error) {
	p := w.path(index, suffix)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", filepath.Base(p), err)
	}
	return p, nil
}
