package markdown

import (
	"reflect"
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "heading and paragraph",
			in:   "# Welcome\n\nThis is vista",
			want: "Welcome. This is vista.",
		},
		{
			name: "emphasis and links keep text",
			in:   "Read **the** [docs](https://example.com) now!",
			want: "Read the docs now!",
		},
		{
			name: "code blocks skipped",
			in:   "Before.\n\n```go\nfmt.Println(1)\n```\n\nAfter.",
			want: "Before. After.",
		},
		{
			name: "inline code kept",
			in:   "Run `vista speak` today.",
			want: "Run vista speak today.",
		},
		{
			name: "list items become sentences",
			in:   "Items:\n\n- one\n- two\n",
			want: "Items: one. two.",
		},
		{
			name: "image alt text",
			in:   "![a red fox](fox.png)",
			want: "Image: a red fox.",
		},
		{
			name: "html dropped",
			in:   "<div>hidden</div>\n\nShown.",
			want: "Shown.",
		},
		{
			name: "soft line breaks joined",
			in:   "one\ntwo",
			want: "one two.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlainTextCodeMarker(t *testing.T) {
	got := NewExtractor(WithCodeMarker(true)).PlainText("Intro\n\n    indented code\n")
	want := "Intro. " + codeBlockMarker
	if got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}
}

func TestSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "Hello world. How are you? Fine!", []string{"Hello world.", "How are you?", "Fine!"}},
		{"decimal", "Pi is 3.14 roughly. Yes.", []string{"Pi is 3.14 roughly.", "Yes."}},
		{"title", "Dr. Smith is here. Good.", []string{"Dr. Smith is here.", "Good."}},
		{"initial", "J. R. R. Tolkien wrote it.", []string{"J. R. R. Tolkien wrote it."}},
		{"abbreviation mid sentence", "Apples, pears, etc. are fruit.", []string{"Apples, pears, etc. are fruit."}},
		{"abbreviation at end", "I like fruit, etc. Then I left.", []string{"I like fruit, etc.", "Then I left."}},
		{"ellipsis", "Wait... what now.", []string{"Wait... what now."}},
		{"quote", `He said "Stop." Then left.`, []string{`He said "Stop."`, "Then left."}},
		{"no terminal", "trailing words", []string{"trailing words"}},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sentences(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Sentences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegments(t *testing.T) {
	text := "One two. Three four five. Six."

	tests := []struct {
		name string
		max  int
		want []string
	}{
		{"unlimited", 0, []string{text}},
		{"fits", 100, []string{text}},
		{"per sentence", 20, []string{"One two.", "Three four five.", "Six."}},
		{"pairs", 26, []string{"One two. Three four five.", "Six."}},
		{"long sentence cut at space", 10, []string{"One two.", "Three four", "five. Six."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Segments(text, tt.max); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Segments(%d) = %q, want %q", tt.max, got, tt.want)
			}
		})
	}
}

func TestSegmentsHardCut(t *testing.T) {
	word := strings.Repeat("x", 25)
	got := Segments(word, 10)
	want := []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Segments() = %q, want %q", got, want)
	}
	for _, s := range Segments(strings.Repeat("word ", 200), 50) {
		if n := len([]rune(s)); n > 50 {
			t.Errorf("segment has %d runes, limit 50", n)
		}
	}
}
