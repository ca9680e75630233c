package htmlworker

import (
	"strings"
	"unicode/utf8"
)

// commonEnglishWords is a frequency-ordered sample used for the word-ratio
// fallback check.
var commonEnglishWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "had": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "day": true, "get": true, "has": true,
	"him": true, "his": true, "how": true, "man": true, "new": true, "now": true,
	"old": true, "see": true, "two": true, "way": true, "who": true, "boy": true,
	"did": true, "its": true, "let": true, "put": true, "say": true, "she": true,
	"too": true, "use": true, "about": true, "after": true, "again": true,
	"also": true, "been": true, "before": true, "being": true, "between": true,
	"both": true, "called": true, "came": true, "come": true, "could": true,
	"each": true, "find": true, "first": true, "from": true, "good": true,
	"great": true, "have": true, "here": true, "into": true, "just": true,
	"know": true, "like": true, "long": true, "look": true, "make": true,
	"many": true, "more": true, "most": true, "move": true, "much": true,
	"must": true, "name": true, "need": true, "number": true, "only": true,
	"other": true, "over": true, "part": true, "place": true, "right": true,
	"same": true, "should": true, "show": true, "since": true, "some": true,
	"such": true, "take": true, "than": true, "that": true, "their": true,
	"them": true, "there": true, "these": true, "they": true, "thing": true,
	"think": true, "this": true, "those": true, "through": true, "time": true,
	"under": true, "very": true, "want": true, "water": true, "well": true,
	"were": true, "what": true, "where": true, "which": true, "while": true,
	"will": true, "with": true, "work": true, "would": true, "write": true,
	"year": true, "your": true,
}

// englishHostMarkers is a curated allow-list of English-speaking TLDs and
// well-known English-language sites, checked against the full URL.
var englishHostMarkers = []string{
	".com", ".org", ".net", ".edu", ".gov", ".uk", ".us", ".ca", ".au",
	".nz", ".ie", ".za", "wikipedia.org", "github.com", "stackoverflow.com",
	"medium.com", "reddit.com", "youtube.com", "google.com", "microsoft.com",
	"mozilla.org", "geeksforgeeks.org", "w3schools.com",
}

// nonEnglishRanges are Unicode code-point ranges belonging to non-Latin
// scripts. A single code point in one of these ranges found within the
// first 2KB of the body is a fast, immediate rejection.
var nonEnglishRanges = [][2]rune{
	{0x4e00, 0x9fff},  // Chinese (CJK unified ideographs)
	{0x3040, 0x309f},  // Hiragana
	{0x30a0, 0x30ff},  // Katakana
	{0x0600, 0x06ff},  // Arabic
	{0x0400, 0x04ff},  // Cyrillic
	{0x0590, 0x05ff},  // Hebrew
	{0x0e00, 0x0e7f},  // Thai
	{0x0900, 0x097f},  // Devanagari
	{0x0980, 0x09ff},  // Bengali
	{0x0a00, 0x0a7f},  // Gurmukhi
	{0x0a80, 0x0aff},  // Gujarati
	{0x0b00, 0x0b7f},  // Oriya
	{0x0b80, 0x0bff},  // Tamil
	{0x0c00, 0x0c7f},  // Telugu
	{0x0c80, 0x0cff},  // Kannada
	{0x0d00, 0x0d7f},  // Malayalam
	{0x1100, 0x11ff},  // Hangul Jamo
	{0xac00, 0xd7a3},  // Hangul syllables
}

const scriptScanWindow = 2048

// isEnglish decides, cheaply, whether body is English content, in order of
// increasing cost: lang attribute, host allow-list, non-Latin script scan,
// and finally a sampled English-word ratio.
func isEnglish(body []byte, url string) bool {
	if lang := extractHTMLLang(body); lang != "" {
		return strings.HasPrefix(lang, "en")
	}
	if isEnglishHost(url) {
		return true
	}
	if hasNonEnglishScript(body) {
		return false
	}
	sample := extractTextSample(body)
	if len(sample) < 50 {
		return false
	}
	return englishWordRatio(sample) > 0.3
}

func extractHTMLLang(body []byte) string {
	lower := strings.ToLower(string(body))
	start := strings.Index(lower, "<html")
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(lower[start:], '>')
	if end < 0 {
		return ""
	}
	tag := lower[start : start+end]

	langPos := strings.Index(tag, "lang")
	if langPos < 0 {
		return ""
	}
	eqPos := strings.IndexByte(tag[langPos:], '=')
	if eqPos < 0 {
		return ""
	}
	rest := strings.TrimLeft(tag[langPos+eqPos+1:], " \t\n")
	if rest == "" {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return ""
	}
	rest = rest[1:]
	closeIdx := strings.IndexByte(rest, quote)
	if closeIdx < 0 {
		return ""
	}
	return rest[:closeIdx]
}

func isEnglishHost(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, marker := range englishHostMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// hasNonEnglishScript scans only the first scriptScanWindow bytes for
// performance; a single rune in a blocked range is sufficient to reject.
func hasNonEnglishScript(body []byte) bool {
	window := body
	if len(window) > scriptScanWindow {
		window = window[:scriptScanWindow]
	}
	for len(window) > 0 {
		r, size := utf8.DecodeRune(window)
		if r == utf8.RuneError && size <= 1 {
			window = window[1:]
			continue
		}
		for _, rng := range nonEnglishRanges {
			if r >= rng[0] && r <= rng[1] {
				return true
			}
		}
		window = window[size:]
	}
	return false
}

const maxTextSampleLen = 1000

// extractTextSample strips tags, scripts and styles, replacing punctuation
// with spaces, up to maxTextSampleLen runes.
func extractTextSample(body []byte) string {
	var out strings.Builder
	out.Grow(maxTextSampleLen)

	inTag, inScript, inStyle := false, false, false
	s := string(body)
	for i := 0; i < len(s) && out.Len() < maxTextSampleLen; i++ {
		c := s[i]
		switch {
		case c == '<':
			inTag = true
			if strings.HasPrefix(s[i:], "<script") {
				inScript = true
			} else if strings.HasPrefix(s[i:], "<style") {
				inStyle = true
			}
		case c == '>':
			inTag = false
			if inScript && i >= 8 && s[i-8:i+1] == "</script>" {
				inScript = false
			} else if inStyle && i >= 7 && s[i-7:i+1] == "</style>" {
				inStyle = false
			}
		case !inTag && !inScript && !inStyle:
			if isAlnumByte(c) || c == ' ' || c == '\t' || c == '\n' {
				out.WriteByte(c)
			} else {
				out.WriteByte(' ')
			}
		}
	}
	return out.String()
}

func isAlnumByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

const maxWordsSampled = 200

func englishWordRatio(text string) float64 {
	total, matched := 0, 0
	for _, word := range strings.Fields(text) {
		if total >= maxWordsSampled {
			break
		}
		clean := strings.ToLower(strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
				return r
			}
			return -1
		}, word))
		if len(clean) < 2 {
			continue
		}
		total++
		if commonEnglishWords[clean] {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
