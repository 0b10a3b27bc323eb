package segment

import (
	"strings"
	"testing"
)

func feedAll(s *Segmenter, deltas ...string) []Sentence {
	var out []Sentence
	for _, d := range deltas {
		out = append(out, s.Feed(d)...)
	}
	return out
}

func contents(sentences []Sentence) []string {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = s.Content
	}
	return out
}

func TestSegmenterBasicSplitting(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "two sentences",
			input: "Hello there. How are you?",
			want:  []string{"Hello there.", "How are you?"},
		},
		{
			name:  "exclamation and question",
			input: "Wow! Really? Yes.",
			want:  []string{"Wow!", "Really?", "Yes."},
		},
		{
			name:  "newline boundary",
			input: "First line\nSecond line",
			want:  []string{"First line", "Second line"},
		},
		{
			name:  "full width terminators",
			input: "こんにちは。元気ですか？",
			want:  []string{"こんにちは。", "元気ですか？"},
		},
		{
			name:  "no terminator",
			input: "an unterminated fragment",
			want:  []string{"an unterminated fragment"},
		},
		{
			name:  "grouped terminators",
			input: "What?! No way. Sure.",
			want:  []string{"What?!", "No way.", "Sure."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			got := contents(append(s.Feed(tt.input), s.Flush()...))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSegmenterNumbersAndAbbreviations(t *testing.T) {
	s := New()
	input := "The temperature is 42.7 degrees. Heute ist der 1. Dezember."
	got := contents(append(s.Feed(input), s.Flush()...))
	want := []string{
		"The temperature is 42.7 degrees.",
		"Heute ist der 1. Dezember.",
	}
	if len(got) != 2 {
		t.Fatalf("got %d sentences %q, want 2", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSegmenterSingleLetterAbbreviation(t *testing.T) {
	s := New()
	got := contents(append(s.Feed("Das gilt z. B. für Äpfel. Und Birnen."), s.Flush()...))
	want := []string{"Das gilt z. B. für Äpfel.", "Und Birnen."}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSegmenterWithholdsTrailingSentence(t *testing.T) {
	s := New()
	if got := s.Feed("The answer is 42."); len(got) != 0 {
		t.Errorf("Feed emitted %q before stream end, want nothing", contents(got))
	}
	// The next delta reveals the period was a decimal point.
	if got := s.Feed("5 exactly. And more"); len(got) != 1 || got[0].Content != "The answer is 42.5 exactly." {
		t.Errorf("Feed = %q, want [The answer is 42.5 exactly.]", contents(got))
	}
	if got := s.Flush(); len(got) != 1 || got[0].Content != "And more" {
		t.Errorf("Flush = %q, want [And more]", contents(got))
	}
}

func TestSegmenterIncrementalMatchesWhole(t *testing.T) {
	input := "One sentence here. A second one follows! Finally, question? Done"

	whole := New()
	wantSentences := contents(append(whole.Feed(input), whole.Flush()...))

	// Feed the same text three runes at a time.
	chunked := New()
	var got []Sentence
	runes := []rune(input)
	for i := 0; i < len(runes); i += 3 {
		end := min(i+3, len(runes))
		got = append(got, chunked.Feed(string(runes[i:end]))...)
	}
	got = append(got, chunked.Flush()...)

	gotContents := contents(got)
	if len(gotContents) != len(wantSentences) {
		t.Fatalf("chunked feeding produced %q, whole input produced %q", gotContents, wantSentences)
	}
	for i := range gotContents {
		if gotContents[i] != wantSentences[i] {
			t.Errorf("sentence %d = %q, want %q", i, gotContents[i], wantSentences[i])
		}
	}
}

func TestSegmenterReconstruction(t *testing.T) {
	inputs := []string{
		"Hello world. Second sentence! Third?",
		"No terminator at all",
		"Weird   spacing.   Everywhere.  ",
		"Line one\n\nLine two.\nLine three",
	}
	for _, input := range inputs {
		s := New()
		all := append(s.Feed(input), s.Flush()...)
		joined := strings.Join(contents(all), " ")

		normalize := func(v string) string { return strings.Join(strings.Fields(v), " ") }
		if normalize(joined) != normalize(input) {
			t.Errorf("input %q reconstructed as %q", input, joined)
		}
	}
}

func TestSegmenterOffsets(t *testing.T) {
	s := New()
	input := "First. Second. Third."
	all := append(s.Feed(input), s.Flush()...)
	for _, sentence := range all {
		at := input[sentence.Offset : sentence.Offset+len(sentence.Content)]
		if at != sentence.Content {
			t.Errorf("offset %d points at %q, content is %q", sentence.Offset, at, sentence.Content)
		}
	}
}

func TestSegmenterEmptyFeed(t *testing.T) {
	s := New()
	if got := s.Feed(""); got != nil {
		t.Errorf("Feed(\"\") = %q, want nil", contents(got))
	}
	if got := s.Flush(); got != nil {
		t.Errorf("Flush on empty segmenter = %q, want nil", contents(got))
	}
}

func TestSegmenterReset(t *testing.T) {
	s := New()
	s.Feed("Leftover text without end")
	s.Reset()
	got := contents(append(s.Feed("Fresh start."), s.Flush()...))
	if len(got) != 1 || got[0] != "Fresh start." {
		t.Errorf("after Reset got %q, want [Fresh start.]", got)
	}
}
