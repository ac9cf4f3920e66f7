package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
)

// fakeChat replays canned responses and records the requests it saw.
type fakeChat struct {
	responses []string
	errs      []error
	requests  []ChatRequest
}

func (f *fakeChat) Complete(_ context.Context, req ChatRequest) (string, error) {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func sampleUtterances(n int) []pipeline.Utterance {
	utts := make([]pipeline.Utterance, n)
	for i := range utts {
		utts[i] = pipeline.Utterance{
			Speaker: "Speaker 1",
			Start:   float64(i * 5),
			End:     float64(i*5 + 4),
			Text:    "Sentence number " + string(rune('A'+i%26)) + ".",
		}
	}
	return utts
}

func TestFormatDisabledUsesPlainFallback(t *testing.T) {
	f := NewFormatter(nil, false, 50)
	res, err := f.Format(context.Background(), sampleUtterances(2), "")
	require.NoError(t, err)
	assert.Contains(t, res.Formatted, "[00:00:00] Speaker 1:")
	assert.Contains(t, res.Formatted, "[00:00:05] Speaker 1:")
	assert.Empty(t, res.Summary)
}

func TestFormatBatchesWithContextCarryover(t *testing.T) {
	chat := &fakeChat{responses: []string{
		"Formatted batch one.",
		"Formatted batch two.",
		`{"summary_markdown":"## Meeting Summary\n\nShort.","action_items":[]}`,
	}}
	f := NewFormatter(chat, true, 4)

	res, err := f.Format(context.Background(), sampleUtterances(6), "")
	require.NoError(t, err)
	require.Len(t, chat.requests, 3)

	// First batch has no carry-over context.
	assert.NotContains(t, chat.requests[0].Messages[1].Content, "CONTEXT FROM PREVIOUS BATCH")
	// Second batch carries the tail of the first.
	assert.Contains(t, chat.requests[1].Messages[1].Content, "CONTEXT FROM PREVIOUS BATCH")
	// Summary call requests JSON.
	assert.True(t, chat.requests[2].JSONOutput)

	assert.Contains(t, res.Formatted, "Formatted batch one.")
	assert.Contains(t, res.Formatted, "Formatted batch two.")
	assert.Contains(t, res.Formatted, "# Meeting Transcript")
	assert.Equal(t, "## Meeting Summary\n\nShort.", res.Summary)
}

func TestFormatBatchFailureDegradesToPlain(t *testing.T) {
	chat := &fakeChat{
		responses: []string{"", `{"summary_markdown":"## Meeting Summary","action_items":[]}`},
		errs:      []error{errors.New("rate limited")},
	}
	f := NewFormatter(chat, true, 50)

	res, err := f.Format(context.Background(), sampleUtterances(2), "")
	require.NoError(t, err)
	// Failed batch falls back to speaker/timestamp markup, document survives.
	assert.Contains(t, res.Formatted, "**Speaker 1** (00:00:00)")
}

func TestFormatParticipantsThreadedIntoPrompt(t *testing.T) {
	chat := &fakeChat{responses: []string{"dialogue", "{}"}}
	f := NewFormatter(chat, true, 50)

	_, err := f.Format(context.Background(), sampleUtterances(1), "Alice, Bob")
	require.NoError(t, err)
	assert.Contains(t, chat.requests[0].Messages[0].Content, "Alice, Bob")
}

func TestGenerateSummaryNonJSONFallsBackToScraping(t *testing.T) {
	chat := &fakeChat{responses: []string{
		"```markdown\n## Meeting Summary\n\nTalked.\n\n## Action Items\n- Alice will send the report\n- Review: budget numbers\n```",
	}}
	f := NewFormatter(chat, true, 50)

	summary, items := f.generateSummary(context.Background(), sampleUtterances(1))
	assert.Contains(t, summary, "## Action Items")
	assert.False(t, strings.HasPrefix(summary, "```"))
	require.Len(t, items, 2)
	assert.Equal(t, "Alice", items[0].AssignedTo)
	assert.Equal(t, "send the report", items[0].Title)
}

func TestExtractActionItems(t *testing.T) {
	summary := "## Meeting Summary\n\nStuff.\n\n## Action Items\n" +
		"- Bob will update the roadmap\n" +
		"- Carol: schedule the retro\n" +
		"- Investigate flaky tests\n\n" +
		"## Decisions Made\n- Ship it\n"

	items := extractActionItems(summary)
	require.Len(t, items, 3)
	assert.Equal(t, "Bob", items[0].AssignedTo)
	assert.Equal(t, "Carol", items[1].AssignedTo)
	assert.Equal(t, "schedule the retro", items[1].Title)
	assert.Empty(t, items[2].AssignedTo)
	assert.Equal(t, "Investigate flaky tests", items[2].Title)
	assert.Equal(t, "Medium", items[2].Priority)
}

func TestExtractActionItemsNoSection(t *testing.T) {
	assert.Nil(t, extractActionItems("## Meeting Summary\n\nNo tasks."))
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{65.9, "00:01:05"},
		{3661, "01:01:01"},
	}
	for _, tc := range cases {
		if got := formatTimestamp(tc.seconds); got != tc.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
