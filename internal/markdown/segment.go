package markdown

import (
	"strings"
	"unicode"
)

// titles never end a sentence.
var titles = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true,
}

// abbreviations end a sentence only when the next word is capitalized.
var abbreviations = map[string]bool{
	"etc": true, "vs": true, "e.g": true, "i.e": true, "inc": true,
	"ltd": true, "co": true, "corp": true, "approx": true, "no": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true,
}

// Sentences splits plain text into sentences. Decimal numbers, ellipses,
// URL schemes and common abbreviations do not end a sentence.
func Sentences(text string) []string {
	runes := []rune(collapseSpace(text))
	var (
		out   []string
		start int
	)
	for i := range runes {
		if !boundary(runes, i) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func boundary(runes []rune, pos int) bool {
	end := pos
	switch r := runes[pos]; {
	case isCloser(r):
		// A closing quote or bracket right after the punctuation ends the
		// sentence in its place.
		if pos == 0 || !isTerminal(runes[pos-1]) {
			return false
		}
		end = pos - 1
	case !isTerminal(r):
		return false
	}

	next := pos + 1
	if next == len(runes) {
		return true
	}
	if isCloser(runes[next]) || !unicode.IsSpace(runes[next]) {
		return false
	}
	if runes[end] != '.' {
		return true
	}

	if end > 0 && runes[end-1] == '.' {
		return false // ellipsis
	}
	word := strings.ToLower(wordBefore(runes, end))
	if titles[word] || isInitial(wordBefore(runes, end)) {
		return false
	}
	if abbreviations[word] {
		return nextUpper(runes, next)
	}
	return true
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isCloser(r rune) bool { return strings.ContainsRune(`"')]»”’`, r) }

func wordBefore(runes []rune, pos int) string {
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) && !strings.ContainsRune(`"'(`, runes[start]) {
		start--
	}
	return string(runes[start+1 : pos])
}

func nextUpper(runes []rune, from int) bool {
	for from < len(runes) && unicode.IsSpace(runes[from]) {
		from++
	}
	return from < len(runes) && unicode.IsUpper(runes[from])
}

// isInitial matches single letters such as the "J" in "J. Smith".
func isInitial(word string) bool {
	r := []rune(word)
	return len(r) == 1 && unicode.IsLetter(r[0]) && unicode.IsUpper(r[0])
}

// Segments groups sentences into pieces of at most maxChars runes. A
// sentence longer than maxChars is cut at the last space before the limit,
// or hard at the limit when it has none.
func Segments(text string, maxChars int) []string {
	if maxChars <= 0 {
		if t := collapseSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	var (
		out []string
		cur []rune
	)
	flush := func() {
		if s := strings.TrimSpace(string(cur)); s != "" {
			out = append(out, s)
		}
		cur = cur[:0]
	}
	for _, s := range Sentences(text) {
		for _, piece := range cut([]rune(s), maxChars) {
			if len(cur) > 0 && len(cur)+1+len(piece) > maxChars {
				flush()
			}
			if len(cur) > 0 {
				cur = append(cur, ' ')
			}
			cur = append(cur, piece...)
		}
	}
	flush()
	return out
}

func cut(s []rune, limit int) [][]rune {
	var pieces [][]rune
	for len(s) > limit {
		at := limit
		for i := limit; i > 0; i-- {
			if s[i] == ' ' {
				at = i
				break
			}
		}
		pieces = append(pieces, s[:at])
		s = []rune(strings.TrimLeft(string(s[at:]), " "))
	}
	return append(pieces, s)
}
