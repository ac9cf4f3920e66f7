// Package llm drives the prose formatting step: it turns the merged
// utterance timeline into a business-formatted Markdown transcript, a
// minutes-of-meeting section, and structured action items. The model is an
// opaque text-to-text transform; everything here is prompt plumbing and
// fallbacks.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
)

const formatPrompt = `You are a professional transcription editor. Format the
meeting dialogue you are given into clean, readable speaker-attributed prose.
Fix obvious transcription artifacts, keep every sentence, and never invent
content.`

const momPrompt = `Based on the transcript below, generate ONLY the following
sections:
1. ## Meeting Summary
2. ## Key Discussion Points
3. ## Action Items
4. ## Decisions Made
5. ## Follow-up Required

Do NOT output a metadata header or the conversation dialogue.`

// ActionItem is one structured task extracted from the meeting.
type ActionItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to"`
	Priority    string `json:"priority"`
}

// Result bundles the formatter outputs.
type Result struct {
	Formatted   string
	Summary     string
	ActionItems []ActionItem
}

// Formatter formats a timeline in bounded batches to stay under model
// output limits, then generates the summary section in one pass over the
// plain transcript.
type Formatter struct {
	Chat      ChatClient
	Enabled   bool
	BatchSize int
}

// NewFormatter creates a formatter. A zero batch size defaults to 50
// utterances per call.
func NewFormatter(chat ChatClient, enabled bool, batchSize int) *Formatter {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Formatter{Chat: chat, Enabled: enabled, BatchSize: batchSize}
}

// Format produces the full formatted document. participants, when provided
// by the caller, prompts the model to attribute generic speaker labels to
// real names. Per-batch failures degrade to plainly formatted dialogue for
// that batch rather than failing the document.
func (f *Formatter) Format(ctx context.Context, utterances []pipeline.Utterance, participants string) (Result, error) {
	if !f.Enabled || f.Chat == nil {
		plain := plainFallback(utterances)
		return Result{Formatted: plain, Summary: ""}, nil
	}

	conversation := f.formatConversation(ctx, utterances, participants)
	summary, actions := f.generateSummary(ctx, utterances)

	doc := assembleDocument(utterances, conversation, summary, participants)
	return Result{Formatted: doc, Summary: summary, ActionItems: actions}, nil
}

// formatConversation formats the dialogue in batches, feeding the last few
// utterances of the previous batch back as context so the model keeps
// attribution consistent across batch boundaries.
func (f *Formatter) formatConversation(ctx context.Context, utterances []pipeline.Utterance, participants string) string {
	var parts []string
	total := (len(utterances) + f.BatchSize - 1) / f.BatchSize

	for i := 0; i < total; i++ {
		lo := i * f.BatchSize
		hi := min(lo+f.BatchSize, len(utterances))
		batch := utterances[lo:hi]

		slog.Debug("formatting batch", "batch", i+1, "total", total)

		var carry string
		if lo >= 3 {
			var tail []string
			for _, u := range utterances[lo-3 : lo] {
				tail = append(tail, u.Speaker+": "+u.Text)
			}
			carry = "\n\nCONTEXT FROM PREVIOUS BATCH (DO NOT REPEAT, JUST FOR CONTEXT):\n" +
				strings.Join(tail, "\n")
		}

		system := formatPrompt
		if participants != "" {
			system += "\n\nPARTICIPANT LIST PROVIDED BY USER: " + participants +
				"\nAttribute the diarized speaker labels to these names based on context" +
				" clues. If unsure, keep the generic label."
		}
		system += "\n\nOutput ONLY the formatted dialogue for the provided segments." +
			" No metadata header, no summary, no markdown code fences." +
			" Capture every sentence; do not summarize."

		segments, _ := json.Marshal(map[string]any{"segments": batch})
		part, err := f.Chat.Complete(ctx, ChatRequest{
			Messages: []Message{
				{Role: "system", Content: system},
				{Role: "user", Content: carry + "\n\nTranscript segment data to format:\n" + string(segments)},
			},
		})
		if err != nil {
			slog.Warn("batch formatting failed, using plain fallback", "batch", i+1, "err", err)
			var fallback []string
			for _, u := range batch {
				fallback = append(fallback, fmt.Sprintf("**%s** (%s)\n%s",
					u.Speaker, formatTimestamp(u.Start), u.Text))
			}
			part = strings.Join(fallback, "\n\n")
		}

		parts = append(parts, stripFences(part))
	}
	return strings.Join(parts, "\n\n")
}

// generateSummary asks for JSON so the Markdown summary and the structured
// action items come from one call. If the model ignores the JSON contract,
// action items are scraped from the Markdown bullet list instead.
func (f *Formatter) generateSummary(ctx context.Context, utterances []pipeline.Utterance) (string, []ActionItem) {
	plain := pipeline.Timeline{Utterances: utterances}.PlainText()

	system := "You are a professional meeting secretary. Output MUST be JSON with keys:\n" +
		"1. 'summary_markdown': full markdown text per the formatting instructions\n" +
		"2. 'action_items': list of {'title','description','assigned_to','priority'}\n\n" +
		"Formatting instructions for 'summary_markdown':\n" + momPrompt

	content, err := f.Chat.Complete(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: "Full transcript:\n" + plain},
		},
		JSONOutput: true,
	})
	if err != nil {
		slog.Warn("summary generation failed", "err", err)
		return "## Meeting Summary\n\n(Summary generation failed.)", nil
	}

	var data struct {
		SummaryMarkdown string       `json:"summary_markdown"`
		ActionItems     []ActionItem `json:"action_items"`
	}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		summary := stripFences(content)
		return summary, extractActionItems(summary)
	}

	if len(data.ActionItems) == 0 {
		data.ActionItems = extractActionItems(data.SummaryMarkdown)
	}
	return data.SummaryMarkdown, data.ActionItems
}

var (
	actionSection = regexp.MustCompile(`(?is)#+\s*Action Items\s*\n(.*?)(?:\n#|\z)`)
	bulletLine    = regexp.MustCompile(`(?m)^[•*-]\s*(.+)$`)
	assigneeLead  = regexp.MustCompile(`(?i)^([A-Z][a-z]+(?:\s[A-Z][a-z]+)?)\s+(?:will|to|should)\s+(.+)$`)
	assigneeColon = regexp.MustCompile(`^([A-Z][a-z]+(?:\s[A-Z][a-z]+)?):\s+(.+)$`)
)

// extractActionItems scrapes bullet points under an "Action Items" heading.
func extractActionItems(summary string) []ActionItem {
	m := actionSection.FindStringSubmatch(summary)
	if m == nil {
		return nil
	}

	var items []ActionItem
	for _, bullet := range bulletLine.FindAllStringSubmatch(m[1], -1) {
		line := strings.TrimSpace(bullet[1])
		if line == "" {
			continue
		}

		item := ActionItem{Title: line, Description: line, Priority: "Medium"}
		if am := assigneeLead.FindStringSubmatch(line); am != nil {
			item.AssignedTo, item.Title = am[1], am[2]
		} else if am := assigneeColon.FindStringSubmatch(line); am != nil {
			item.AssignedTo, item.Title = am[1], am[2]
		}
		items = append(items, item)
	}
	return items
}

func assembleDocument(utterances []pipeline.Utterance, conversation, summary, participants string) string {
	date := time.Now().Format("January 2, 2006")

	duration := "Unknown"
	speakers := participants
	if len(utterances) > 0 {
		t := pipeline.Timeline{Utterances: utterances}
		duration = humanDuration(t.Duration())
		if speakers == "" {
			speakers = strings.Join(t.Speakers(), ", ")
		}
	}

	return fmt.Sprintf(`# Meeting Transcript

**Date:** %s
**Duration:** %s
**Participants:** %s

---

## Conversation

%s

---

%s
`, date, duration, speakers, conversation, summary)
}

// plainFallback renders timestamped dialogue when LLM formatting is off.
func plainFallback(utterances []pipeline.Utterance) string {
	var lines []string
	for _, u := range utterances {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", formatTimestamp(u.Start), u.Speaker, u.Text))
	}
	return strings.Join(lines, "\n")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// formatTimestamp converts seconds to HH:MM:SS.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func humanDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%d hour%s, %d minute%s", hours, plural(hours), minutes, plural(minutes))
	}
	return fmt.Sprintf("%d minute%s", minutes, plural(minutes))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
