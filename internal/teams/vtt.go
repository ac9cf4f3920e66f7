// Package teams adapts externally supplied Microsoft Teams transcripts into
// the same utterance shape the chunk engine produces, so they can enter the
// formatting pipeline unchanged.
package teams

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
)

var (
	speakerTag = regexp.MustCompile(`(?s)<v\s+([^>]+)>(.*?)</v>`)
	cueIDLine  = regexp.MustCompile(`^[A-Za-z0-9\-]+/\d+-\d+$`)
)

// ParseVTT parses a Teams WebVTT transcript. It supports <v Speaker>text</v>
// voice spans and ignores cue ID lines (Teams emits GUID/NN identifiers).
// Cues without a voice span are skipped rather than failing the whole file.
func ParseVTT(content string) ([]pipeline.Utterance, error) {
	lines := strings.Split(content, "\n")
	var utterances []pipeline.Utterance

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if cueIDLine.MatchString(line) {
			continue
		}
		if !strings.Contains(line, "-->") {
			continue
		}

		parts := strings.SplitN(line, "-->", 2)
		start, err1 := parseTimestamp(strings.TrimSpace(parts[0]))
		end, err2 := parseTimestamp(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil {
			continue
		}

		if i+1 >= len(lines) {
			break
		}
		m := speakerTag.FindStringSubmatch(strings.TrimSpace(lines[i+1]))
		if m == nil {
			continue
		}

		utterances = append(utterances, pipeline.Utterance{
			Speaker: strings.TrimSpace(m[1]),
			Text:    strings.TrimSpace(m[2]),
			Start:   start,
			End:     end,
		})
		i++
	}

	if len(utterances) == 0 {
		return nil, fmt.Errorf("no utterances found: not a Teams VTT transcript?")
	}
	return utterances, nil
}

// parseTimestamp converts "HH:MM:SS.mmm" (or "MM:SS.mmm") to seconds.
func parseTimestamp(ts string) (float64, error) {
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		total = total*60 + v
	}
	return total, nil
}
