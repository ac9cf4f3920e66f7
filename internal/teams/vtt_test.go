package teams

import "testing"

const sampleVTT = `WEBVTT

6f7a2b1c-1234/12-1
00:00:01.500 --> 00:00:04.200
<v Alice Johnson>Good morning everyone.</v>

6f7a2b1c-1234/13-1
00:00:04.800 --> 00:00:09.100
<v Bob Smith>Morning. Shall we get started?</v>

00:00:09.500 --> 00:00:12.000
<v Alice Johnson>Yes, first item is the roadmap.</v>
`

func TestParseVTT(t *testing.T) {
	utts, err := ParseVTT(sampleVTT)
	if err != nil {
		t.Fatalf("ParseVTT: %v", err)
	}
	if len(utts) != 3 {
		t.Fatalf("got %d utterances, want 3", len(utts))
	}

	first := utts[0]
	if first.Speaker != "Alice Johnson" {
		t.Errorf("speaker = %q, want Alice Johnson", first.Speaker)
	}
	if first.Text != "Good morning everyone." {
		t.Errorf("text = %q", first.Text)
	}
	if first.Start != 1.5 || first.End != 4.2 {
		t.Errorf("times = [%v, %v], want [1.5, 4.2]", first.Start, first.End)
	}
	if utts[1].Speaker != "Bob Smith" {
		t.Errorf("second speaker = %q, want Bob Smith", utts[1].Speaker)
	}
}

func TestParseVTT_SkipsMalformedCues(t *testing.T) {
	content := `WEBVTT

garbage --> more garbage
<v Someone>dropped</v>

00:01:00.000 --> 00:01:02.000
plain cue without voice span

00:01:05.000 --> 00:01:07.000
<v Carol>kept</v>
`
	utts, err := ParseVTT(content)
	if err != nil {
		t.Fatalf("ParseVTT: %v", err)
	}
	if len(utts) != 1 || utts[0].Speaker != "Carol" {
		t.Errorf("got %v, want single utterance from Carol", utts)
	}
}

func TestParseVTT_EmptyInput(t *testing.T) {
	if _, err := ParseVTT("WEBVTT\n"); err == nil {
		t.Error("expected error for transcript with no utterances")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"00:00:01.500", 1.5},
		{"01:02:03.000", 3723},
		{"02:30.250", 150.25},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if err != nil {
			t.Errorf("parseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := parseTimestamp("nonsense"); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}
