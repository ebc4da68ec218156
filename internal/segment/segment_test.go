package segment

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitProtectsDecimalsAndListMarkers(t *testing.T) {
	input := "The value is 3.14. See list 1. Next item 2. Done."
	got := Split(input)

	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "3.14") {
		t.Fatalf("Split(%q) lost the decimal: %q", input, got)
	}
	for _, s := range got {
		if strings.HasSuffix(s, " 1.") || strings.HasSuffix(s, " 2.") {
			t.Fatalf("list marker treated as sentence boundary: %q", s)
		}
	}

	want := []string{
		"The value is 3.14.",
		"See list 1. Next item 2. Done.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Split(%q) = %q, want %q", input, got, want)
	}
}

func TestSplitSingleSentenceIsIdempotent(t *testing.T) {
	input := "Photosynthesis converts light into chemical energy."
	got := Split(input)
	if len(got) != 1 || got[0] != input {
		t.Fatalf("Split(%q) = %q, want the same single sentence", input, got)
	}
	again := Split(got[0])
	if !reflect.DeepEqual(again, got) {
		t.Fatalf("re-splitting changed output: %q then %q", got, again)
	}
}

func TestSplitCases(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "multiple terminators",
			input: "Really?! Yes. Good.",
			want:  []string{"Really?!", "Yes.", "Good."},
		},
		{
			name:  "no terminal punctuation at all",
			input: "an unterminated fragment",
			want:  []string{"an unterminated fragment"},
		},
		{
			name:  "terminator not followed by space stays inside",
			input: "Version v1.x shipped today. Next up is v2.",
			want:  []string{"Version v1.x shipped today.", "Next up is v2."},
		},
		{
			name:  "exclamation and question",
			input: "What is this? It is a leaf!",
			want:  []string{"What is this?", "It is a leaf!"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
		{
			name:  "whitespace only",
			input: "   \n\t ",
			want:  nil,
		},
		{
			name:  "decimal at end of sentence",
			input: "Pi is roughly 3.14159. It never ends.",
			want:  []string{"Pi is roughly 3.14159.", "It never ends."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Split(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSentencesIsRestartable(t *testing.T) {
	seq := Sentences("One. Two. Three.")

	var first []string
	for s := range seq {
		first = append(first, s)
	}
	var second []string
	for s := range seq {
		second = append(second, s)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("second iteration differs: %q vs %q", first, second)
	}
	if len(first) != 3 {
		t.Fatalf("len = %d, want 3: %q", len(first), first)
	}
}

func TestSentencesEarlyStop(t *testing.T) {
	count := 0
	for range Sentences("One. Two. Three.") {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Fatalf("consumed %d sentences, want 2", count)
	}
}
